package proxy

import (
	"io"
	"os"
	"path/filepath"

	"github.com/mediasearch/mediasearch/internal/ffmpegio"
)

// ensureParentDirs creates the directories each path lives in.
func ensureParentDirs(paths ...string) error {
	for _, p := range paths {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
	}
	return nil
}

// drainStdout discards the cascade's stdout so the pipe never backs up;
// the still-image invocation writes its outputs to files, not stdout.
func drainStdout(proc *ffmpegio.Proc) {
	_, _ = io.Copy(io.Discard, proc.Stdout)
}
