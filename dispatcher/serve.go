package dispatcher

import (
	"errors"
	"io"

	"github.com/shell-compose/shellcompose/ipc"
)

// HandleConn services one accepted connection end to end: the initial
// Connect handshake, then exactly one command, producing whatever
// intermediate messages the command calls for followed by its single
// terminal message (Ok/JobsStarted/Err), per §4.1/§4.3/§6. It is the
// function wired into ipc.Listen's handleConn callback — the glue the
// teacher's service.Service played for gRPC, here adapted to the raw
// framed stream.
func (d *Dispatcher) HandleConn(conn *ipc.Conn) {
	defer conn.Close()

	hello, err := conn.ReadMessage()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			d.Log.WithError(err).Debug("handshake read failed")
		}
		return
	}
	if hello.Kind != ipc.KindConnect {
		_ = conn.WriteMessage(ipc.Err(ipc.ErrUnexpectedMessage.Error()))
		return
	}
	if err := conn.WriteMessage(ipc.Connect()); err != nil {
		return
	}

	cmd, err := conn.ReadMessage()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			d.Log.WithError(err).Debug("command read failed")
		}
		return
	}

	d.dispatch(conn, cmd)
}

func (d *Dispatcher) dispatch(conn *ipc.Conn, cmd ipc.Message) {
	switch cmd.Kind {
	case ipc.KindExecRun:
		d.replyIDs(conn, d.Run(cmd.Args))
	case ipc.KindExecRunat:
		d.replyIDs(conn, d.Runat(cmd.CronExpr, cmd.Args))
	case ipc.KindExecStart:
		d.replyIDs(conn, d.Start(cmd.Service))
	case ipc.KindExecUp:
		d.replyIDs(conn, d.Up(cmd.Group))

	case ipc.KindCliStop:
		d.replyOk(conn, d.Stop(cmd.JobID))
	case ipc.KindCliDown:
		d.replyOk(conn, d.Down(cmd.Group))

	case ipc.KindCliPs:
		procs := d.Ps()
		if err := conn.WriteMessage(ipc.Message{Kind: ipc.KindPsInfo, Procs: procs}); err != nil {
			return
		}
		_ = conn.WriteMessage(ipc.Ok())

	case ipc.KindCliJobs:
		jobs := d.Jobs()
		if err := conn.WriteMessage(ipc.Message{Kind: ipc.KindJobInfo, Jobs: jobs}); err != nil {
			return
		}
		_ = conn.WriteMessage(ipc.Ok())

	case ipc.KindCliLogs:
		var filter *uint32
		if cmd.HasLogFilter {
			f := cmd.LogFilter
			filter = &f
		}
		if err := d.Logs(conn, filter); err != nil {
			_ = conn.WriteMessage(ipc.Err(err.Error()))
		}

	case ipc.KindCliExit:
		_ = conn.WriteMessage(ipc.Ok())
		d.Exit()

	default:
		_ = conn.WriteMessage(ipc.Err(ipc.ErrUnexpectedMessage.Error()))
	}
}

func (d *Dispatcher) replyIDs(conn *ipc.Conn, ids []uint32, err error) {
	if err != nil {
		_ = conn.WriteMessage(ipc.Err(err.Error()))
		return
	}
	_ = conn.WriteMessage(ipc.JobsStarted(ids))
}

func (d *Dispatcher) replyOk(conn *ipc.Conn, err error) {
	if err != nil {
		_ = conn.WriteMessage(ipc.Err(err.Error()))
		return
	}
	_ = conn.WriteMessage(ipc.Ok())
}
