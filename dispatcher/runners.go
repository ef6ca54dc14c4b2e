package dispatcher

import (
	"sync"

	"golang.org/x/exp/slices"

	"github.com/shell-compose/shellcompose/runner"
)

// runnerList is the single guarded vector of *runner.Runner shared
// between the Dispatcher, the Watcher, and cron-triggered spawn
// callbacks, per spec.md §3/§5: one mutex, no blocking I/O performed
// while it is held, holders may only insert/remove/iterate/try_reap.
// It implements watcher.Lister.
//
// Runners are never evicted once appended (per §9 Open Question (i),
// resolved here as "keep for the full daemon lifetime") — only Stop/Down
// removing the owning job from the registry changes what Jobs reports;
// Ps continues to show every Runner that ever existed for the job.
type runnerList struct {
	mu   sync.Mutex
	runs []*runner.Runner
}

func newRunnerList() *runnerList {
	return &runnerList{}
}

// Append adds a freshly spawned Runner to the list.
func (l *runnerList) Append(r *runner.Runner) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runs = append(l.runs, r)
}

// FindByPid returns the Runner whose current (or last-known) pid
// matches, for the watcher's termination handling.
func (l *runnerList) FindByPid(pid int) (*runner.Runner, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := slices.IndexFunc(l.runs, func(r *runner.Runner) bool { return r.Pid() == pid })
	if i < 0 {
		return nil, false
	}
	return l.runs[i], true
}

// ByJob returns every Runner ever spawned for jobID, oldest first.
func (l *runnerList) ByJob(jobID uint32) []*runner.Runner {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*runner.Runner
	for _, r := range l.runs {
		if r.JobID == jobID {
			out = append(out, r)
		}
	}
	return out
}

// All returns every Runner, newest first, matching the reverse-order
// contract of the Ps response in §4.3.
func (l *runnerList) All() []*runner.Runner {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*runner.Runner, len(l.runs))
	for i, r := range l.runs {
		out[len(l.runs)-1-i] = r
	}
	return out
}

// RunningPids returns the pid of every Runner whose last-observed state
// has not yet transitioned to terminal, for the telemetry plug to
// sample ahead of a Ps response.
func (l *runnerList) RunningPids() []int32 {
	l.mu.Lock()
	runs := append([]*runner.Runner(nil), l.runs...)
	l.mu.Unlock()

	pids := make([]int32, 0, len(runs))
	for _, r := range runs {
		info := r.UpdateProcState()
		if !info.State.Terminal() {
			pids = append(pids, int32(info.Pid))
		}
	}
	return pids
}
