package runner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func waitTerminal(t *testing.T, r *Runner, timeout time.Duration) ProcInfo {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if info := r.UpdateProcState(); info.State.Terminal() {
			return info
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("runner did not reach a terminal state within %s", timeout)
	return ProcInfo{}
}

func TestSpawnExitOk(t *testing.T) {
	done := make(chan [2]uint32, 1)
	r, err := Spawn(1, []string{"sh", "-c", "exit 0"}, Restart{Policy: PolicyNever}, done)
	require.NoError(t, err)

	info := waitTerminal(t, r, time.Second)
	require.Equal(t, ExitOk, info.State)
	require.True(t, info.EndTS.IsZero(), "EndTS must only be set by the watcher, never by UpdateProcState")

	<-done
}

func TestSpawnExitErr(t *testing.T) {
	done := make(chan [2]uint32, 1)
	r, err := Spawn(1, []string{"sh", "-c", "exit 7"}, Restart{Policy: PolicyNever}, done)
	require.NoError(t, err)

	info := waitTerminal(t, r, time.Second)
	require.Equal(t, ExitErr, info.State)
	require.Equal(t, 7, info.ExitCode)

	<-done
}

func TestSpawnEmptyArgs(t *testing.T) {
	_, err := Spawn(1, nil, Restart{}, nil)
	require.ErrorIs(t, err, ErrEmptyCommand)
}

func TestRestartNeverNeverRespawns(t *testing.T) {
	done := make(chan [2]uint32, 1)
	r, err := Spawn(1, []string{"sh", "-c", "exit 1"}, Restart{Policy: PolicyNever}, done)
	require.NoError(t, err)
	waitTerminal(t, r, time.Second)
	<-done

	_, ok := r.RestartInfos()
	require.False(t, ok)
}

func TestRestartOnFailureRespawnsOnlyOnNonZeroExit(t *testing.T) {
	done := make(chan [2]uint32, 1)

	okRunner, err := Spawn(1, []string{"sh", "-c", "exit 0"}, Restart{Policy: PolicyOnFailure, WaitMS: 50}, done)
	require.NoError(t, err)
	waitTerminal(t, okRunner, time.Second)
	<-done
	_, ok := okRunner.RestartInfos()
	require.False(t, ok)

	failRunner, err := Spawn(2, []string{"sh", "-c", "exit 3"}, Restart{Policy: PolicyOnFailure, WaitMS: 50}, done)
	require.NoError(t, err)
	waitTerminal(t, failRunner, time.Second)
	<-done
	info, ok := failRunner.RestartInfos()
	require.True(t, ok)
	require.Equal(t, uint32(2), info.JobID)
}

func TestUserTerminatedSuppressesRespawnRegardlessOfPolicy(t *testing.T) {
	done := make(chan [2]uint32, 1)
	r, err := Spawn(1, []string{"sh", "-c", "exit 1"}, Restart{Policy: PolicyAlways, WaitMS: 50}, done)
	require.NoError(t, err)

	r.MarkUserTerminated()
	waitTerminal(t, r, time.Second)
	<-done

	_, ok := r.RestartInfos()
	require.False(t, ok)
}

func TestTerminateKillsLongRunningChild(t *testing.T) {
	done := make(chan [2]uint32, 1)
	r, err := Spawn(1, []string{"sh", "-c", "sleep 30"}, Restart{Policy: PolicyNever}, done)
	require.NoError(t, err)

	require.NoError(t, r.Terminate())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("terminated process was never reaped")
	}

	info := r.UpdateProcState()
	require.True(t, info.State.Terminal() || info.State == Unknown)
}
