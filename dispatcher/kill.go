package dispatcher

import (
	"errors"

	"golang.org/x/sys/unix"
)

// killOne sends SIGKILL to a single pid, used for the first-non-trap
// child located by the telemetry plug per §4.5 — unlike
// runner.Runner.Terminate, this targets one process, not a whole
// process group, since the child may not be the group leader.
func killOne(pid int32) error {
	if err := unix.Kill(int(pid), unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}
	return nil
}
