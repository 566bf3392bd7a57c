//go:build unix

package ffmpegio

import (
	"bufio"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStartCapturesStdoutAndStderr(t *testing.T) {
	ctx := context.Background()
	p, err := Start(ctx, "sh", []string{"-c", "echo out; echo err >&2"}, nil)
	require.NoError(t, err)

	var lines []string
	for line := range p.StderrLines {
		lines = append(lines, line)
	}

	out, err := io.ReadAll(bufio.NewReader(p.Stdout))
	require.NoError(t, err)
	require.Equal(t, "out\n", string(out))
	require.Equal(t, []string{"err"}, lines)

	require.NoError(t, p.Wait())
}

func TestWaitReportsNonZeroExitWithStderrTail(t *testing.T) {
	ctx := context.Background()
	p, err := Start(ctx, "sh", []string{"-c", "echo boom >&2; exit 3"}, nil)
	require.NoError(t, err)

	for range p.StderrLines {
	}
	_, _ = io.ReadAll(p.Stdout)

	err = p.Wait()
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")
}

func TestTerminateKillsLongRunningProcess(t *testing.T) {
	ctx := context.Background()
	p, err := Start(ctx, "sleep", []string{"30"}, nil)
	require.NoError(t, err)

	go func() {
		for range p.StderrLines {
		}
	}()
	go func() { _, _ = io.ReadAll(p.Stdout) }()

	start := time.Now()
	p.Terminate(100 * time.Millisecond)
	require.Error(t, p.Wait())
	require.Less(t, time.Since(start), 5*time.Second)
}
