//go:build linux

package process

import (
	"os/exec"
	"syscall"
)

// Set puts the child in its own process group and asks the kernel to
// SIGKILL it if the gateway dies first, so no agent outlives the server.
func Set(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
}
