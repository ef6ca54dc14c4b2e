package dispatcher

import "errors"

// Sentinel errors matching the taxonomy named in spec.md §7. Recoverable
// command errors are wrapped with context and surfaced to the caller as
// Err(msg); they are never used to terminate the daemon.
var (
	ErrJobNotFound     = errors.New("job not found")
	ErrServiceNotFound = errors.New("service not found")
)
