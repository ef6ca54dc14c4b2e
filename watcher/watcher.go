// Package watcher implements the reaper described in spec.md §4.8: a
// dedicated goroutine that consumes process terminations, reaps them,
// and applies the restart policy. It plays the role the teacher's
// job.Job.Start goroutine plays inline (job/job.go's anonymous "go func"
// that waits on the child and updates status) but pulled out into its
// own component, since spec.md requires restart decisions and back-off
// sleeps to happen off any request-handling goroutine.
package watcher

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shell-compose/shellcompose/runner"
)

// Lister is the subset of the runner list the watcher needs: look a
// Runner up by pid, and append a freshly spawned one.
type Lister interface {
	FindByPid(pid int) (*runner.Runner, bool)
	Append(r *runner.Runner)
}

// Spawner starts a fresh Runner for a job from a runner.SpawnInfo. It
// must not add the Runner to the Lister: the watcher appends it itself.
type Spawner func(info runner.SpawnInfo) (*runner.Runner, error)

// Watcher consumes terminated pids from Done, reaps them, and respawns
// per the restart policy, per §4.8.
type Watcher struct {
	Done    <-chan [2]uint32 // (jobID, pid)
	List    Lister
	Spawn   Spawner
	Log     *logrus.Entry
	sleeper func(time.Duration)
}

// New creates a Watcher. log may be nil, in which case a disabled entry
// is used.
func New(done <-chan [2]uint32, list Lister, spawn Spawner, log *logrus.Entry) *Watcher {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = logrus.NewEntry(l)
	}
	return &Watcher{Done: done, List: list, Spawn: spawn, Log: log, sleeper: time.Sleep}
}

// Run processes terminations until Done is closed. It is meant to be run
// in its own goroutine for the life of the daemon.
func (w *Watcher) Run() {
	for pair := range w.Done {
		jobID, pid := pair[0], pair[1]
		w.handle(jobID, int(pid))
	}
}

func (w *Watcher) handle(jobID uint32, pid int) {
	r, ok := w.List.FindByPid(pid)
	if !ok {
		w.Log.WithFields(logrus.Fields{"job_id": jobID, "pid": pid}).
			Warn("watcher: termination for unknown pid")
		return
	}

	info := r.WaitReaped()
	r.SetEndTS(time.Now())
	w.Log.WithFields(logrus.Fields{
		"job_id": jobID, "pid": pid, "state": info.State.String(), "exit_code": info.ExitCode,
	}).Info("process terminated")

	spawnInfo, ok := r.RestartInfos()
	if !ok {
		return
	}

	w.sleeper(time.Duration(spawnInfo.Restart.WaitMS) * time.Millisecond)

	fresh, err := w.Spawn(spawnInfo)
	if err != nil {
		w.Log.WithFields(logrus.Fields{"job_id": jobID}).WithError(err).
			Error("restart spawn failed")
		return
	}
	w.List.Append(fresh)
}
