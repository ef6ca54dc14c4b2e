package dispatcher

import (
	"github.com/shell-compose/shellcompose/ipc"
	"github.com/shell-compose/shellcompose/job"
	"github.com/shell-compose/shellcompose/runner"
)

func toWireProcInfo(p runner.ProcInfo) ipc.ProcInfo {
	w := ipc.ProcInfo{
		JobID:      p.JobID,
		Pid:        uint32(p.Pid),
		Args:       p.Args,
		State:      p.State.String(),
		ExitCode:   int32(p.ExitCode),
		Message:    p.Message,
		StartNanos: p.StartTS.UnixNano(),
		CPUPercent: p.CPUPercent,
		MemBytes:   p.MemBytes,
		VMemBytes:  p.VMemBytes,
		TotalWrite: p.TotalWrite,
		WriteBPS:   p.WriteBPS,
		TotalRead:  p.TotalRead,
		ReadBPS:    p.ReadBPS,
	}
	if !p.EndTS.IsZero() {
		w.EndNanos = p.EndTS.UnixNano()
	}
	return w
}

func toWireJob(info job.Info) ipc.Job {
	w := ipc.Job{
		JobID:         uint32(info.ID),
		Kind:          info.Kind.Tag.String(),
		CronExpr:      info.Kind.Expr,
		Service:       info.Kind.Service,
		Args:          info.Args,
		RestartPolicy: info.Restart.Policy.String(),
		RestartWaitMS: info.Restart.WaitMS,
	}
	return w
}

func toWireLogLine(l runner.LogLine) ipc.LogLine {
	return ipc.LogLine{
		Nanos:    l.TS.UnixNano(),
		JobID:    l.JobID,
		Pid:      uint32(l.Pid),
		Line:     l.Line,
		IsStderr: l.IsStderr,
	}
}
