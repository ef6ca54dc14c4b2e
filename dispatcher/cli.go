package dispatcher

import (
	"fmt"
	"sort"
	"time"

	"github.com/shell-compose/shellcompose/ipc"
	"github.com/shell-compose/shellcompose/job"
	"github.com/shell-compose/shellcompose/runner"
)

// logsPollInterval is the poll sleep used by Logs when a wake-up found
// nothing new, per §4.6.
const logsPollInterval = 100 * time.Millisecond

// Stop removes jobID's cron schedule (if any), marks every Runner ever
// spawned for it as user-terminated and signals it, then removes the
// job from the registry, per §4.3.
func (d *Dispatcher) Stop(jobID uint32) error {
	info, err := d.registry.Get(job.ID(jobID))
	if err != nil {
		return fmt.Errorf("stop %d: %w", jobID, ErrJobNotFound)
	}

	if info.Kind.Tag == job.KindCron {
		d.cronMu.Lock()
		if h, ok := d.cronHandles[info.ID]; ok {
			d.cron.Remove(h)
			delete(d.cronHandles, info.ID)
		}
		d.cronMu.Unlock()
	}

	isService := info.Kind.Tag == job.KindService
	for _, r := range d.runners.ByJob(jobID) {
		if err := d.terminateRunner(r, isService); err != nil {
			d.Log.WithError(err).WithField("job_id", jobID).Warn("stop: terminate failed")
		}
	}

	d.registry.Remove(info.ID)
	return nil
}

// Down resolves group to service names via the recipe interface, then
// to job ids via the registry, and issues Stop for each, per §4.3.
// Service names with no currently registered job are skipped.
func (d *Dispatcher) Down(group string) error {
	names, err := d.recipes.GroupRecipes(group)
	if err != nil {
		return fmt.Errorf("down %q: %w", group, err)
	}

	for _, name := range names {
		id, ok := d.registry.FindService(name)
		if !ok {
			continue
		}
		if err := d.Stop(uint32(id)); err != nil {
			d.Log.WithError(err).WithField("service", name).Warn("down: stop failed")
		}
	}
	return nil
}

// Ps refreshes telemetry for every non-terminal Runner, then returns a
// ProcInfo snapshot for every Runner ever spawned, newest first, per
// §4.3/§4.9.
func (d *Dispatcher) Ps() []ipc.ProcInfo {
	pids := d.runners.RunningPids()
	d.telem.Refresh(pids)

	all := d.runners.All()
	out := make([]ipc.ProcInfo, 0, len(all))
	for _, r := range all {
		info := r.UpdateProcState()
		if sample, ok := d.telem.Fill(int32(info.Pid)); ok {
			r.SetTelemetry(sample.CPUPercent, sample.MemBytes, sample.VMemBytes,
				sample.TotalRead, sample.ReadBPS, sample.TotalWrite, sample.WriteBPS)
			info = r.Info()
		}
		out = append(out, toWireProcInfo(info))
	}
	return out
}

// Jobs returns every registered job, newest first, per §4.3.
func (d *Dispatcher) Jobs() []ipc.Job {
	all := d.registry.All()
	out := make([]ipc.Job, 0, len(all))
	for _, info := range all {
		out = append(out, toWireJob(info))
	}
	return out
}

// Logs streams LogLine messages matching the optional job id filter
// until conn errors or disconnects, implementing the poll loop in §4.6
// exactly: snapshot, filter, sort-and-send or heartbeat-and-sleep.
func (d *Dispatcher) Logs(conn *ipc.Conn, filter *uint32) error {
	cursors := make(map[int]int64)

	for {
		var batch []runner.LogLine
		for _, r := range d.runners.All() {
			if filter != nil && r.JobID != *filter {
				continue
			}
			pid := r.Pid()
			lines, newest := r.Output.LinesSince(cursors[pid])
			if len(lines) == 0 {
				continue
			}
			cursors[pid] = newest
			batch = append(batch, lines...)
		}

		if len(batch) == 0 {
			if err := conn.WriteMessage(ipc.Connect()); err != nil {
				return nil
			}
			time.Sleep(logsPollInterval)
			continue
		}

		sort.Slice(batch, func(i, j int) bool { return batch[i].TS.Before(batch[j].TS) })
		for _, l := range batch {
			if err := conn.WriteMessage(ipc.Message{Kind: ipc.KindLogLine, Log: ptrLogLine(toWireLogLine(l))}); err != nil {
				return nil
			}
		}
	}
}

func ptrLogLine(l ipc.LogLine) *ipc.LogLine { return &l }

// Exit replies is handled by the caller (serve.go sends Ok first); Exit
// itself terminates every Runner best-effort and invokes onExit, which
// the daemon wires to its own shutdown/os.Exit, matching §4.3/§8
// scenario 6: "Exit returns before the daemon terminates".
func (d *Dispatcher) Exit() {
	for _, r := range d.runners.All() {
		isService := false
		if info, err := d.registry.Get(job.ID(r.JobID)); err == nil {
			isService = info.Kind.Tag == job.KindService
		}
		_ = d.terminateRunner(r, isService)
	}
	d.cron.Stop()

	d.exitOnce.Do(func() {
		if d.onExit != nil {
			go d.onExit()
		}
	})
}
