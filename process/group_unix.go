//go:build unix

package process

import (
	"errors"
	"os"
	"syscall"
)

// SignalGroup delivers sig to every process in p's group. The agent CLI
// spawns its own tool subprocesses, and signalling -pgid reaches them too.
func SignalGroup(p *os.Process, sig syscall.Signal) error {
	if p == nil {
		return nil
	}
	err := syscall.Kill(-p.Pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		// Group already gone.
		return nil
	}
	return err
}

// StatusOf decodes a finished process state. A nil state (the process never
// ran to a wait) is reported as exit code -1.
func StatusOf(state *os.ProcessState) ExitStatus {
	if state == nil {
		return ExitStatus{Code: -1}
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return ExitStatus{Code: -1, Signaled: true, Signal: ws.Signal()}
	}
	return ExitStatus{Code: state.ExitCode()}
}
