// Package dispatcher implements the request handlers described in
// spec.md §4.3: it owns the JobRegistry, the shared Runner list, the
// cron Scheduler, the telemetry Sampler, and the Recipe interface, and
// wires every IPC command to its precise core-engine effect. It plays
// the role the teacher's service.Service (a thin gRPC-to-job.Tracker
// adapter) plays, generalized to the richer command set named in §4.3
// and without the gRPC framing service.go builds on.
package dispatcher

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shell-compose/shellcompose/cron"
	"github.com/shell-compose/shellcompose/job"
	"github.com/shell-compose/shellcompose/recipe"
	"github.com/shell-compose/shellcompose/registry"
	"github.com/shell-compose/shellcompose/runner"
	"github.com/shell-compose/shellcompose/telemetry"
	"github.com/shell-compose/shellcompose/watcher"
)

// startupWindow is how long Run waits to observe an immediate startup
// failure before reporting success, per §4.3/§5. Runat spawns nothing
// up front, so it does not wait.
const startupWindow = 10 * time.Millisecond

// Dispatcher orchestrates the core engine. One Dispatcher exists per
// daemon process.
type Dispatcher struct {
	Log *logrus.Entry

	registry *registry.Registry
	runners  *runnerList
	cron     *cron.Scheduler
	telem    *telemetry.Sampler
	recipes  recipe.Recipes

	// recipeArgv is the command line prefix used to launch a named
	// service, e.g. ["just"]; a Service job's full argv is
	// append(recipeArgv, name). trapName is its basename, the process
	// FirstNonTrapChild skips over per §4.5.
	recipeArgv []string
	trapName   string

	done chan [2]uint32

	cronMu      sync.Mutex
	cronHandles map[job.ID]cron.Handle

	watcher *watcher.Watcher

	exitOnce sync.Once
	onExit   func()
}

// New builds a Dispatcher wired to a fresh registry/runner list/cron
// scheduler, a recipe.Recipes used for group expansion, and onExit, the
// daemon-process-termination hook invoked by the Exit handler after it
// has replied Ok (see §4.3, §8 scenario 6: "Exit returns before the
// daemon terminates").
func New(log *logrus.Entry, recipes recipe.Recipes, recipeArgv []string, onExit func()) *Dispatcher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	d := &Dispatcher{
		Log:         log,
		registry:    registry.New(),
		runners:     newRunnerList(),
		cron:        cron.New(log),
		telem:       telemetry.NewSampler(),
		recipes:     recipes,
		recipeArgv:  recipeArgv,
		done:        make(chan [2]uint32, 64),
		cronHandles: make(map[job.ID]cron.Handle),
		onExit:      onExit,
	}
	if len(recipeArgv) > 0 {
		d.trapName = filepath.Base(recipeArgv[0])
	}
	// The watcher appends each respawned Runner itself, so its spawner
	// must not go through d.spawn (which appends too). It also records
	// the new back-off on the job.
	respawn := func(info runner.SpawnInfo) (*runner.Runner, error) {
		d.registry.MutateRestart(job.ID(info.JobID), info.Restart.WaitMS)
		return runner.Spawn(info.JobID, info.Args, info.Restart, d.done)
	}
	d.watcher = watcher.New(d.done, d.runners, respawn, log)
	go d.watcher.Run()
	return d
}

// spawn starts a Runner from a runner.SpawnInfo and appends it to the
// runner list, the shared entry point used by Run/Start/Up and cron
// firings. The watcher's respawn path uses its own spawner (see New).
func (d *Dispatcher) spawn(info runner.SpawnInfo) (*runner.Runner, error) {
	r, err := runner.Spawn(info.JobID, info.Args, info.Restart, d.done)
	if err != nil {
		return nil, err
	}
	d.runners.Append(r)
	return r, nil
}

// jobRestart converts a job.Restart into the runner package's mirror
// type, keeping runner free of a dependency on package job.
func jobRestart(r job.Restart) runner.Restart {
	return runner.Restart{Policy: runner.PolicyTag(r.Policy), WaitMS: r.WaitMS}
}

// serviceArgv builds the argv for a named service: the configured
// recipe runner invoked with the service name, per §4.5 ("services
// implemented by a recipe runner, argv[0] == the recipe tool").
func (d *Dispatcher) serviceArgv(name string) []string {
	argv := make([]string, 0, len(d.recipeArgv)+1)
	argv = append(argv, d.recipeArgv...)
	argv = append(argv, name)
	return argv
}

// terminateRunner signals r's process per §4.5: for Service jobs
// fronted by the recipe runner, the kill must target the first
// non-trap child rather than the recipe process itself, since killing
// the parent does not propagate.
func (d *Dispatcher) terminateRunner(r *runner.Runner, isService bool) error {
	r.MarkUserTerminated()

	if !isService || d.trapName == "" {
		return r.Terminate()
	}

	pid := r.Pid()
	if childPid, ok := telemetry.FirstNonTrapChild(int32(pid), d.trapName); ok {
		// best effort: still issue the group kill too, in case the
		// trap process itself forwards signals in this recipe config.
		_ = r.Terminate()
		return killPid(childPid)
	}
	return r.Terminate()
}

func killPid(pid int32) error {
	if err := killOne(pid); err != nil {
		return fmt.Errorf("terminate child pid %d: %w", pid, err)
	}
	return nil
}
