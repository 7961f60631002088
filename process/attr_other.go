//go:build unix && !linux

package process

import (
	"os/exec"
	"syscall"
)

// Set puts the child in its own process group. Pdeathsig is linux-only.
func Set(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}
