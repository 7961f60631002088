// Package process holds the OS-level pieces of agent process supervision:
// process-group setup, group signalling and exit status decoding.
package process

import (
	"fmt"
	"os"
	"syscall"
)

// KillGroup sends SIGKILL to the entire process group of p.
func KillGroup(p *os.Process) error {
	return SignalGroup(p, syscall.SIGKILL)
}

// ExitStatus describes how a child process ended.
type ExitStatus struct {
	Code     int
	Signaled bool
	Signal   syscall.Signal
}

// Success reports a clean zero exit.
func (s ExitStatus) Success() bool {
	return !s.Signaled && s.Code == 0
}

func (s ExitStatus) String() string {
	if s.Signaled {
		return fmt.Sprintf("signal %s", s.Signal)
	}
	return fmt.Sprintf("exit code %d", s.Code)
}
