// Package cron implements the Cron Scheduler described in spec.md §4.7: a
// schedule table of (expression, callback) pairs ticked by a single
// dedicated routine, with Add/Remove as the only external operations.
//
// It is grounded in the retrieval pack's gaz cron.Scheduler, which wraps
// the same robfig/cron/v3 library with a slog logging adapter and a
// skip-if-still-running chain; we keep the "wrap robfig/cron, expose a
// narrow Add/Remove surface" shape but drop the DI container/health-check
// layer that project adds, since spec.md names exactly two operations.
package cron

import (
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Handle identifies a registered schedule entry so it can be removed.
type Handle = cron.EntryID

// Scheduler wraps a robfig/cron/v3 *cron.Cron with a logging adapter and
// a mutex-guarded Add/Remove surface, matching §4.7 exactly: a single
// dedicated goroutine (robfig/cron's own runner) computes the next fire
// time across all entries and invokes due callbacks.
type Scheduler struct {
	mu  sync.Mutex
	c   *cron.Cron
	log *logrus.Entry
}

// New creates a Scheduler and starts its internal goroutine. Stop must
// be called to release it.
func New(log *logrus.Entry) *Scheduler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	c := cron.New(cron.WithSeconds(), cron.WithLogger(slogAdapter{log}))
	c.Start()
	return &Scheduler{c: c, log: log}
}

// Add registers a cron expression and callback, returning a Handle that
// can later be passed to Remove. Invalid expressions surface the
// underlying parse error, matching the Cron(parse_err) taxonomy entry in
// §7.
func (s *Scheduler) Add(expr string, cb func()) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.c.AddFunc(expr, cb)
	if err != nil {
		return 0, fmt.Errorf("cron: invalid expression %q: %w", expr, err)
	}
	return id, nil
}

// Remove de-registers a previously Added schedule. It is a no-op if the
// handle is unknown.
func (s *Scheduler) Remove(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.Remove(h)
}

// Stop halts the scheduler's internal goroutine, waiting for any
// in-flight callback to return.
func (s *Scheduler) Stop() {
	<-s.c.Stop().Done()
}

// slogAdapter routes robfig/cron's internal logging through logrus,
// matching the teacher's preference for one structured-logging path
// rather than stdlib log output leaking directly to the terminal.
type slogAdapter struct {
	log *logrus.Entry
}

func (a slogAdapter) Info(msg string, kv ...interface{}) {
	a.log.WithFields(fieldsFromKV(kv)).Debug(msg)
}

func (a slogAdapter) Error(err error, msg string, kv ...interface{}) {
	a.log.WithFields(fieldsFromKV(kv)).WithError(err).Error(msg)
}

func fieldsFromKV(kv []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		f[key] = kv[i+1]
	}
	return f
}
