package dispatcher

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/shell-compose/shellcompose/job"
	"github.com/shell-compose/shellcompose/runner"
)

// Run allocates a Shell job with restart=Never and spawns it, per §4.3.
// It returns only after startupWindow has elapsed, so an immediate
// startup failure is reported synchronously as an error rather than a
// success followed by a silent exit.
func (d *Dispatcher) Run(args []string) ([]uint32, error) {
	return d.runOnce(job.Kind{Tag: job.KindShell}, args, job.Restart{Policy: job.Never}, true)
}

// Runat allocates a Cron job with restart=Never and registers it with
// the cron scheduler; it does not spawn anything until the expression
// next fires. Reply is JobsStarted([id]) regardless of when the first
// firing happens.
func (d *Dispatcher) Runat(expr string, args []string) ([]uint32, error) {
	info := job.Info{
		Kind:    job.Kind{Tag: job.KindCron, Expr: expr},
		Args:    args,
		Restart: job.Restart{Policy: job.Never},
	}
	if err := info.Validate(); err != nil {
		return nil, err
	}

	id := d.registry.Add(info)

	handle, err := d.cron.Add(expr, func() { d.cronFire(id, args) })
	if err != nil {
		d.registry.Remove(id)
		return nil, fmt.Errorf("runat: %w", err)
	}

	d.cronMu.Lock()
	d.cronHandles[id] = handle
	d.cronMu.Unlock()

	return []uint32{uint32(id)}, nil
}

func (d *Dispatcher) cronFire(id job.ID, args []string) {
	_, err := d.spawn(runner.SpawnInfo{
		JobID:   uint32(id),
		Args:    args,
		Restart: runner.Restart{Policy: runner.PolicyNever},
	})
	if err != nil {
		// §7: spawn errors of cron-triggered runs are logged but do not
		// de-register the cron.
		d.Log.WithFields(logrus.Fields{"job_id": id}).WithError(err).
			Error("cron-triggered spawn failed")
	}
}

// Start spawns the named service if it has no currently running
// instance, per §4.3. If a Service job with this name exists and has a
// Runner whose state has not yet transitioned to terminal, Start is a
// no-op and reports zero newly-started ids.
func (d *Dispatcher) Start(service string) ([]uint32, error) {
	if id, ok := d.registry.FindService(service); ok {
		running := slices.ContainsFunc(d.runners.ByJob(uint32(id)), func(r *runner.Runner) bool {
			return !r.UpdateProcState().State.Terminal()
		})
		if running {
			return nil, nil
		}
		// job exists but every Runner has terminated: spawn a fresh one
		// under the same job id, reusing its recorded restart policy.
		info, err := d.registry.Get(id)
		if err != nil {
			return nil, err
		}
		if _, err := d.spawn(runner.SpawnInfo{
			JobID: uint32(id), Args: info.Args, Restart: jobRestart(info.Restart),
		}); err != nil {
			return nil, fmt.Errorf("start %q: %w", service, err)
		}
		return []uint32{uint32(id)}, nil
	}

	// Unlike Run, an immediate failure here does not surface as Err: a
	// Service job carries restart=OnFailure by default, so a service
	// that exits non-zero on its very first run is expected to recover
	// via the Watcher's restart path rather than fail the command (§8
	// scenario 3).
	return d.runOnce(job.Kind{Tag: job.KindService, Service: service}, d.serviceArgv(service), job.DefaultServiceRestart(), false)
}

// Up expands group via the recipe interface and Starts each member,
// replying with the full list of newly-started ids.
func (d *Dispatcher) Up(group string) ([]uint32, error) {
	names, err := d.recipes.GroupRecipes(group)
	if err != nil {
		return nil, fmt.Errorf("up %q: %w", group, err)
	}

	var ids []uint32
	for _, name := range names {
		started, err := d.Start(name)
		if err != nil {
			d.Log.WithFields(logrus.Fields{"group": group, "service": name}).WithError(err).
				Error("up: service failed to start")
			continue
		}
		ids = append(ids, started...)
	}
	return ids, nil
}

// runOnce allocates a job and spawns its first Runner. When
// checkStartup is set, it waits startupWindow and reports an immediate
// failure as an error, per §4.3/§5's 10ms startup-failure window.
func (d *Dispatcher) runOnce(kind job.Kind, args []string, restart job.Restart, checkStartup bool) ([]uint32, error) {
	info := job.Info{Kind: kind, Args: args, Restart: restart}
	if err := info.Validate(); err != nil {
		return nil, err
	}

	id := d.registry.Add(info)

	r, err := d.spawn(runner.SpawnInfo{JobID: uint32(id), Args: args, Restart: jobRestart(restart)})
	if err != nil {
		d.registry.Remove(id)
		return nil, fmt.Errorf("spawn job %d: %w", id, err)
	}

	if !checkStartup {
		return []uint32{uint32(id)}, nil
	}

	time.Sleep(startupWindow)

	if state := r.UpdateProcState(); state.State == runner.ExitErr {
		return nil, fmt.Errorf("job %d: exited with code %d during startup", id, state.ExitCode)
	}

	return []uint32{uint32(id)}, nil
}
