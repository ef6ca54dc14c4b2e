// Package registry implements the JobRegistry described in spec.md §3/§6:
// an ordered map of job.ID to *job.Info, with monotonic id allocation. It
// generalizes the teacher's job/tracker.go (which keyed jobs by a random
// string id and folded in ownership checks) down to the simpler allocation
// and lookup role spec.md assigns the registry — ownership/auth is out of
// scope here (single-user daemon).
package registry

import (
	"fmt"
	"sync"

	"github.com/shell-compose/shellcompose/job"
)

// ErrNotFound is returned when a job id is not present in the registry.
var ErrNotFound = fmt.Errorf("job not found")

// Registry is an ordered map of job.ID to *job.Info. It is safe for
// concurrent use; the Dispatcher is its sole owner and serialises access
// to it via request handling, but the mutex lets tests and the watcher's
// restart path read it without routing through the dispatcher.
type Registry struct {
	mu     sync.Mutex
	order  []job.ID
	jobs   map[job.ID]*job.Info
	lastID job.ID
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{jobs: make(map[job.ID]*job.Info)}
}

// Add allocates a new job.ID, stores info under it, and returns the
// allocated id. The id is strictly greater than every previously
// allocated id and is never reused within the Registry's lifetime.
func (r *Registry) Add(info job.Info) job.ID {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastID++
	id := r.lastID
	info.ID = id
	r.jobs[id] = &info
	r.order = append(r.order, id)
	return id
}

// Get returns the job.Info for id, or ErrNotFound.
func (r *Registry) Get(id job.ID) (job.Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.jobs[id]
	if !ok {
		return job.Info{}, fmt.Errorf("%d: %w", id, ErrNotFound)
	}
	return *info, nil
}

// FindService returns the id of a Service-kind job with the given name, if
// one is currently registered.
func (r *Registry) FindService(name string) (job.ID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.order {
		info := r.jobs[id]
		if info.Kind.Tag == job.KindService && info.Kind.Service == name {
			return id, true
		}
	}
	return 0, false
}

// Remove deletes id from the registry. It is a no-op if id is not present.
func (r *Registry) Remove(id job.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[id]; !ok {
		return
	}
	delete(r.jobs, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// All returns a snapshot of every job.Info currently registered, in
// reverse insertion order (newest first), matching the CLI's "Jobs"
// listing order in §4.3.
func (r *Registry) All() []job.Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]job.Info, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		out = append(out, *r.jobs[r.order[i]])
	}
	return out
}

// MutateRestart atomically updates the restart back-off value (WaitMS) for
// id. It is used by the watcher after computing the next back-off per
// §4.4's double-or-reset rule.
func (r *Registry) MutateRestart(id job.ID, waitMS uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if info, ok := r.jobs[id]; ok {
		info.Restart.WaitMS = waitMS
	}
}
