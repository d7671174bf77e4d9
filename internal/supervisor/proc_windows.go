//go:build windows

package supervisor

import (
	"os/exec"
	"syscall"
	"time"
)

func configureProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

// terminate kills the process. Windows has no graceful signal for console-less
// children.
func terminate(h *Handle, _ time.Duration) error {
	return h.cmd.Process.Kill()
}
