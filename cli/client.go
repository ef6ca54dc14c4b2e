// Package cli supplies the ambient front end named in spec.md §1/§6/§14:
// a thin command-line client that auto-spawns the daemon, opens a
// framed stream, sends one command, and renders whatever comes back.
// It follows the teacher's cli package shape (a clientCmd embedded in
// every client subcommand, CmdServe for the daemon side) with gRPC
// replaced by the raw ipc.Conn stream.
package cli

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"text/tabwriter"
	"time"

	"github.com/shell-compose/shellcompose/ipc"
	"github.com/shell-compose/shellcompose/service"
)

// spawnProbeInterval/spawnProbeTimeout implement §5's "client waits up
// to 2000 ms in 50 ms increments for the socket to answer, else
// ProcSpawnTimeout".
const (
	spawnProbeInterval = 50 * time.Millisecond
	spawnProbeTimeout  = 2000 * time.Millisecond
)

// ErrSpawnTimeout is returned when the daemon doesn't come up in time,
// the ProcSpawnTimeout entry in spec.md §7.
var ErrSpawnTimeout = fmt.Errorf("daemon did not come up within %s", spawnProbeTimeout)

// clientCmd is embedded in every client subcommand struct, providing the
// socket path flag and a connect() helper, matching the teacher's
// clientCmd embedding a dial target and TLS material (dropped here —
// see DESIGN.md for why mTLS has no place in this transport).
type clientCmd struct {
	Socket string `short:"s" help:"Path to the daemon's local socket" env:"SHELLCOMPOSE_SOCKET"`

	output io.Writer
}

func (c *clientCmd) socketPath() string {
	if c.Socket != "" {
		return c.Socket
	}
	return service.SocketPath()
}

func (c *clientCmd) writer() io.Writer {
	if c.output != nil {
		return c.output
	}
	return os.Stdout
}

// connect dials the daemon, spawning it first if the socket doesn't
// answer, per §6's "CLI behaviour" collaborator description.
func (c *clientCmd) connect() (*ipc.Conn, error) {
	path := c.socketPath()

	conn, err := ipc.Dial(path)
	if err == nil {
		return conn, nil
	}

	if spawnErr := spawnDaemon(path); spawnErr != nil {
		return nil, spawnErr
	}

	deadline := time.Now().Add(spawnProbeTimeout)
	for time.Now().Before(deadline) {
		if conn, err := ipc.Dial(path); err == nil {
			return conn, nil
		}
		time.Sleep(spawnProbeInterval)
	}
	return nil, ErrSpawnTimeout
}

// spawnDaemon launches the daemon binary in the background. The binary
// is derived by filename rule from the running client binary: the same
// executable, invoked with "serve", matching this repo's single-binary
// main.go (client and daemon share one executable, as the teacher's
// jobber binary does for its own subcommands).
func spawnDaemon(socketPath string) error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate daemon binary: %w", err)
	}

	cmd := exec.Command(self, "serve", "--socket", socketPath)
	return cmd.Start()
}

// printProcs renders a ProcInfo table, the analogue of the teacher's
// printStatus.
func printProcs(w io.Writer, procs []ipc.ProcInfo) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB ID\tPID\tSTATE\tSTART\tCPU%\tMEM\tCOMMAND")
	for _, p := range procs {
		start := time.Unix(0, p.StartNanos).Format(time.Stamp)
		state := p.State
		if p.State == "exit-err" {
			state = fmt.Sprintf("exit-err(%d)", p.ExitCode)
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%.1f\t%d\t%s\n",
			p.JobID, p.Pid, state, start, p.CPUPercent, p.MemBytes, joinArgs(p.Args))
	}
	return tw.Flush()
}

// printJobs renders a Job table.
func printJobs(w io.Writer, jobs []ipc.Job) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB ID\tKIND\tRESTART\tCOMMAND")
	for _, j := range jobs {
		kind := j.Kind
		switch j.Kind {
		case "cron":
			kind = fmt.Sprintf("cron(%s)", j.CronExpr)
		case "service":
			kind = fmt.Sprintf("service(%s)", j.Service)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", j.JobID, kind, j.RestartPolicy, joinArgs(j.Args))
	}
	return tw.Flush()
}

func joinArgs(args []string) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += " "
		}
		out += a
	}
	return out
}

// printLogLine writes one streamed log line, timestamp-prefixed.
func printLogLine(w io.Writer, l ipc.LogLine) {
	ts := time.Unix(0, l.Nanos).Format(time.RFC3339)
	stream := "out"
	if l.IsStderr {
		stream = "err"
	}
	fmt.Fprintf(w, "%s [%d|%d|%s] %s\n", ts, l.JobID, l.Pid, stream, l.Line)
}
