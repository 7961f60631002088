//go:build !unix

package process

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// Set is a no-op; there are no process groups to join.
func Set(cmd *exec.Cmd) {}

// SignalGroup can only reach p itself here.
func SignalGroup(p *os.Process, sig syscall.Signal) error {
	if p == nil {
		return nil
	}
	err := p.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func StatusOf(state *os.ProcessState) ExitStatus {
	if state == nil {
		return ExitStatus{Code: -1}
	}
	return ExitStatus{Code: state.ExitCode()}
}
