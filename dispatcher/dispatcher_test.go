package dispatcher

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shell-compose/shellcompose/ipc"
	"github.com/shell-compose/shellcompose/recipe"
	"github.com/shell-compose/shellcompose/telemetry"
)

func newTestDispatcher(t *testing.T, recipeArgv []string, onExit func()) *Dispatcher {
	t.Helper()
	return New(nil, recipe.Just{}, recipeArgv, onExit)
}

// scenario 1: spawn and observe.
func TestSpawnAndObserve(t *testing.T) {
	d := newTestDispatcher(t, nil, nil)

	ids, err := d.Run([]string{"sh", "-c", "echo hi; sleep 0.5"})
	require.NoError(t, err)
	require.Equal(t, []uint32{1}, ids)

	procs := d.Ps()
	require.Len(t, procs, 1)
	require.Equal(t, "running", procs[0].State)
	require.Equal(t, []string{"sh", "-c", "echo hi; sleep 0.5"}, procs[0].Args)

	require.Eventually(t, func() bool {
		procs := d.Ps()
		return len(procs) == 1 && procs[0].State == "exit-ok" && procs[0].EndNanos != 0
	}, 2*time.Second, 25*time.Millisecond)
}

// scenario 2: startup failure.
func TestStartupFailure(t *testing.T) {
	d := newTestDispatcher(t, nil, nil)

	_, err := d.Run([]string{"/nonexistent/bin"})
	require.Error(t, err)

	// §8 scenario 2: Ps "may still list" the Runner as exit-err/unknown;
	// here the OS refuses to create the child at all, so no Runner is
	// ever appended — an empty Ps snapshot is a valid outcome too.
	for _, p := range d.Ps() {
		require.Contains(t, []string{"exit-err", "unknown"}, p.State)
	}
}

// scenario 3: restart on failure, then Stop suppresses further respawns.
// The "flaky" service is modeled as `sh -c "exit 2"`, using the
// dispatcher's configurable recipe-runner argv so the test needs no
// external recipe tool.
func TestRestartOnFailureThenStop(t *testing.T) {
	d := newTestDispatcher(t, []string{"sh", "-c"}, nil)

	_, err := d.Start("exit 2")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(d.Jobs()) == 1
	}, 200*time.Millisecond, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(d.Ps()) >= 2
	}, 500*time.Millisecond, 10*time.Millisecond)

	jobs := d.Jobs()
	require.Len(t, jobs, 1)

	require.NoError(t, d.Stop(jobs[0].JobID))

	// §8 scenario 3: within 200ms of Stop, every Runner for the job has
	// reached a terminal state and none are still running. Each Ps call
	// itself spends telemetry.SampleInterval sampling, so the wait allows
	// for that on top of the 200ms.
	require.Eventually(t, func() bool {
		for _, p := range d.Ps() {
			if p.State != "exit-ok" && p.State != "exit-err" {
				return false
			}
		}
		return true
	}, 200*time.Millisecond+telemetry.SampleInterval, 10*time.Millisecond)
}

// scenario 4: a cron job fires repeatedly, each firing spawning its own
// Runner, and Logs streams lines captured from every fired instance.
func TestCronFiringRespawnsAndLogs(t *testing.T) {
	d := newTestDispatcher(t, nil, nil)

	ids, err := d.Runat("* * * * * *", []string{"sh", "-c", "echo tick"})
	require.NoError(t, err)
	require.Len(t, ids, 1)

	require.Eventually(t, func() bool {
		return len(d.Ps()) >= 2
	}, 5*time.Second, 50*time.Millisecond, "cron job should have fired at least twice")

	client, server := net.Pipe()
	conn := ipc.NewConn(client)
	srvConn := ipc.NewConn(server)
	t.Cleanup(func() {
		conn.Close()
		srvConn.Close()
	})

	lines := make(chan ipc.LogLine, 16)
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			msg, err := srvConn.ReadMessage()
			if err != nil {
				return
			}
			if msg.Kind == ipc.KindLogLine && msg.Log != nil {
				select {
				case lines <- *msg.Log:
				default:
				}
			}
		}
	}()

	go func() { _ = d.Logs(conn, nil) }()

	seen := make(map[uint32]struct{})
	timeout := time.After(5 * time.Second)
	for len(seen) < 2 {
		select {
		case l := <-lines:
			// each fired Runner logs "tick" and then the synthetic
			// "<process terminated>" entry pushed on stdout EOF.
			require.Contains(t, []string{"tick", "<process terminated>"}, l.Line)
			if l.Line == "tick" {
				seen[l.Pid] = struct{}{}
			}
		case <-timeout:
			t.Fatalf("observed only %d distinct cron-fired pids before timing out", len(seen))
		}
	}

	conn.Close()
	srvConn.Close()
	select {
	case <-readDone:
	case <-time.After(time.Second):
		t.Fatal("log reader goroutine never exited after conn closed")
	}
}

// scenario 6: Exit returns before the daemon terminates, and the next
// connection probe fails once shutdown completes.
func TestExitTerminatesChildrenAndStopsAcceptingConnections(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "test.sock")

	exited := make(chan struct{})
	d := New(nil, recipe.Just{}, nil, func() {
		_ = os.Remove(socketPath)
		close(exited)
	})

	_, err := d.Run([]string{"sh", "-c", "sleep 30"})
	require.NoError(t, err)

	go ipc.Listen(socketPath, d.HandleConn, func(error) {}) //nolint:errcheck

	require.Eventually(t, func() bool {
		_, err := os.Stat(socketPath)
		return err == nil
	}, time.Second, 10*time.Millisecond)

	conn, err := ipc.Dial(socketPath)
	require.NoError(t, err)

	require.NoError(t, conn.WriteMessage(ipc.Message{Kind: ipc.KindCliExit}))
	reply, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, ipc.KindOk, reply.Kind)
	conn.Close()

	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("onExit was never invoked")
	}

	_, err = ipc.Dial(socketPath)
	require.Error(t, err, "socket should be gone after Exit")

	require.Eventually(t, func() bool {
		procs := d.Ps()
		if len(procs) != 1 {
			return false
		}
		s := procs[0].State
		return s == "exit-ok" || s == "exit-err" || s == "unknown"
	}, time.Second, 10*time.Millisecond, "child should be terminated after Exit")
}
