//go:build !windows

package supervisor

import (
	"errors"
	"os/exec"
	"syscall"
	"time"
)

func configureProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminate sends SIGTERM to the process group and SIGKILL once grace has
// passed without an exit.
func terminate(h *Handle, grace time.Duration) error {
	if err := syscall.Kill(-h.PID, syscall.SIGTERM); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
		return err
	}
	go func() {
		select {
		case <-h.done:
		case <-time.After(grace):
			_ = syscall.Kill(-h.PID, syscall.SIGKILL)
		}
	}()
	return nil
}
