//go:build !unix

package ffmpegio

import (
	"os/exec"
	"syscall"
)

func setProcessGroup(cmd *exec.Cmd) {
	// No process-group support outside unix; killGroup below is a no-op,
	// so Terminate sends no signal here and only cancelling the context
	// passed to Start kills the direct child.
}

func killGroup(pid int, sig syscall.Signal) error {
	return nil
}
