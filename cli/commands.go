package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/shell-compose/shellcompose/ipc"
	"github.com/shell-compose/shellcompose/service"
)

// CmdServe is the entrypoint for the daemon-side subcommand.
type CmdServe struct {
	Socket string `short:"s" help:"Path to the local socket to listen on" env:"SHELLCOMPOSE_SOCKET"`
	Recipe string `help:"Recipe runner executable" default:"just"`
}

// Run starts the daemon and blocks for its lifetime.
func (cmd *CmdServe) Run() error {
	path := cmd.Socket
	if path == "" {
		path = service.SocketPath()
	}
	return service.Serve(path, nil, []string{cmd.Recipe}, os.Exit)
}

// CmdRun is the `run` subcommand: one-shot shell command.
type CmdRun struct {
	clientCmd
	Args []string `arg:"" help:"Command and arguments to run"`
}

func (cmd *CmdRun) Run() error {
	return cmd.execAndReport(ipc.Message{Kind: ipc.KindExecRun, Args: cmd.Args})
}

// CmdRunat is the `runat` subcommand: cron-scheduled command.
type CmdRunat struct {
	clientCmd
	Expr string   `arg:"" help:"Cron expression (6-field, seconds first)"`
	Args []string `arg:"" help:"Command and arguments to run on each firing"`
}

func (cmd *CmdRunat) Run() error {
	return cmd.execAndReport(ipc.Message{Kind: ipc.KindExecRunat, CronExpr: cmd.Expr, Args: cmd.Args})
}

// CmdStart is the `start` subcommand: start a named service.
type CmdStart struct {
	clientCmd
	Service string `arg:"" help:"Service name"`
}

func (cmd *CmdStart) Run() error {
	return cmd.execAndReport(ipc.Message{Kind: ipc.KindExecStart, Service: cmd.Service})
}

// CmdUp is the `up` subcommand: start every service in a recipe group.
type CmdUp struct {
	clientCmd
	Group string `arg:"" help:"Recipe group name"`
}

func (cmd *CmdUp) Run() error {
	return cmd.execAndReport(ipc.Message{Kind: ipc.KindExecUp, Group: cmd.Group})
}

// CmdStop is the `stop` subcommand: stop one job.
type CmdStop struct {
	clientCmd
	JobID uint32 `arg:"" help:"Job id to stop"`
}

func (cmd *CmdStop) Run() error {
	return cmd.okAndReport(ipc.Message{Kind: ipc.KindCliStop, JobID: cmd.JobID})
}

// CmdDown is the `down` subcommand: stop every service in a group.
type CmdDown struct {
	clientCmd
	Group string `arg:"" help:"Recipe group name"`
}

func (cmd *CmdDown) Run() error {
	return cmd.okAndReport(ipc.Message{Kind: ipc.KindCliDown, Group: cmd.Group})
}

// CmdPs is the `ps` subcommand: list running/terminated processes.
type CmdPs struct {
	clientCmd
}

func (cmd *CmdPs) Run() error {
	conn, err := cmd.connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.WriteMessage(ipc.Message{Kind: ipc.KindCliPs}); err != nil {
		return err
	}

	msg, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	if msg.Kind != ipc.KindPsInfo {
		return terminalErr(msg)
	}
	if err := printProcs(cmd.writer(), msg.Procs); err != nil {
		return err
	}

	term, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	return terminalErr(term)
}

// CmdJobs is the `jobs` subcommand: list registered jobs.
type CmdJobs struct {
	clientCmd
}

func (cmd *CmdJobs) Run() error {
	conn, err := cmd.connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.WriteMessage(ipc.Message{Kind: ipc.KindCliJobs}); err != nil {
		return err
	}

	msg, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	if msg.Kind != ipc.KindJobInfo {
		return terminalErr(msg)
	}
	if err := printJobs(cmd.writer(), msg.Jobs); err != nil {
		return err
	}

	term, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	return terminalErr(term)
}

// CmdLogs is the `logs` subcommand: stream log lines, optionally
// filtered to one job id, until interrupted or the daemon disconnects.
type CmdLogs struct {
	clientCmd
	JobID *uint32 `help:"Restrict to one job id" optional:""`
}

func (cmd *CmdLogs) Run() error {
	conn, err := cmd.connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	req := ipc.Message{Kind: ipc.KindCliLogs}
	if cmd.JobID != nil {
		req.HasLogFilter = true
		req.LogFilter = *cmd.JobID
	}
	if err := conn.WriteMessage(req); err != nil {
		return err
	}

	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		switch msg.Kind {
		case ipc.KindLogLine:
			if msg.Log != nil {
				printLogLine(cmd.writer(), *msg.Log)
			}
		case ipc.KindConnect:
			// liveness heartbeat; nothing to render
		default:
			return terminalErr(msg)
		}
	}
}

// CmdExit is the `exit` subcommand: terminate the daemon.
type CmdExit struct {
	clientCmd
}

func (cmd *CmdExit) Run() error {
	return cmd.okAndReport(ipc.Message{Kind: ipc.KindCliExit})
}

// execAndReport sends req and expects a terminal JobsStarted or Err,
// printing the started ids on success.
func (cmd *clientCmd) execAndReport(req ipc.Message) error {
	conn, err := cmd.connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.WriteMessage(req); err != nil {
		return err
	}
	msg, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	if msg.Kind == ipc.KindErr {
		return fmt.Errorf("%s", msg.ErrMsg)
	}
	if msg.Kind != ipc.KindJobsStarted {
		return terminalErr(msg)
	}
	fmt.Fprintln(cmd.writer(), "job ids:", msg.JobIDs)
	return nil
}

// okAndReport sends req and expects a terminal Ok or Err.
func (cmd *clientCmd) okAndReport(req ipc.Message) error {
	conn, err := cmd.connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.WriteMessage(req); err != nil {
		return err
	}
	msg, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	return terminalErr(msg)
}

// terminalErr interprets a terminal message, returning nil for Ok and an
// error for anything else (Err, or an unexpected Kind — a protocol
// violation per §7's UnexpectedMessage).
func terminalErr(msg ipc.Message) error {
	switch msg.Kind {
	case ipc.KindOk:
		return nil
	case ipc.KindErr:
		return fmt.Errorf("%s", msg.ErrMsg)
	default:
		return fmt.Errorf("unexpected terminal message kind %s", msg.Kind)
	}
}
