package job

import "errors"

// ErrEmptyArgs is returned when a job's argv is empty, violating the §3
// non-empty-args invariant.
var ErrEmptyArgs = errors.New("empty job command")
