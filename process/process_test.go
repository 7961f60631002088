//go:build unix

package process

import (
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet_ConfiguresProcessGroup(t *testing.T) {
	t.Parallel()
	cmd := exec.Command("echo", "test")
	require.Nil(t, cmd.SysProcAttr)

	Set(cmd)

	require.NotNil(t, cmd.SysProcAttr)
	assert.True(t, cmd.SysProcAttr.Setpgid)
}

func TestSignalGroup_NilProcess(t *testing.T) {
	t.Parallel()
	assert.NoError(t, SignalGroup(nil, syscall.SIGTERM))
	assert.NoError(t, KillGroup(nil))
}

func TestKillGroup_ReachesGrandchildren(t *testing.T) {
	t.Parallel()

	// The shell forks a background sleep that shares its process group.
	cmd := exec.Command("sh", "-c", "sleep 60 & wait")
	Set(cmd)
	require.NoError(t, cmd.Start())

	require.NoError(t, KillGroup(cmd.Process))

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("process group was not killed")
	}

	status := StatusOf(cmd.ProcessState)
	assert.True(t, status.Signaled)
	assert.Equal(t, syscall.SIGKILL, status.Signal)
	assert.False(t, status.Success())

	// The group is gone now; signalling it again is not an error.
	assert.NoError(t, KillGroup(cmd.Process))
}

func TestStatusOf_ExitCodes(t *testing.T) {
	t.Parallel()

	ok := exec.Command("true")
	require.NoError(t, ok.Run())
	assert.Equal(t, ExitStatus{Code: 0}, StatusOf(ok.ProcessState))
	assert.True(t, StatusOf(ok.ProcessState).Success())

	fail := exec.Command("sh", "-c", "exit 7")
	require.Error(t, fail.Run())
	status := StatusOf(fail.ProcessState)
	assert.Equal(t, 7, status.Code)
	assert.False(t, status.Signaled)
	assert.Equal(t, "exit code 7", status.String())
}

func TestStatusOf_Nil(t *testing.T) {
	t.Parallel()
	assert.Equal(t, -1, StatusOf(nil).Code)
}
