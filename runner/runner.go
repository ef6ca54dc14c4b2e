package runner

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// ErrEmptyCommand is returned by Spawn when args is empty, per §7.
var ErrEmptyCommand = errors.New("empty proc command")

// resetThreshold is the run duration above which RestartInfos resets the
// back-off to the starting wait instead of doubling it, per §4.4.
const resetThreshold = 50 * time.Millisecond

// startingWaitMS is the back-off value a reset returns to.
const startingWaitMS = 50

// SpawnInfo is what a restart (or the initial Start/Up handler) needs to
// spawn a fresh Runner: the job it belongs to, its argv, and the restart
// policy/back-off to carry forward.
type SpawnInfo struct {
	JobID   uint32
	Args    []string
	Restart Restart
}

// Restart mirrors job.Restart without importing the job package, keeping
// runner free of a dependency on the registry's data model.
type Restart struct {
	Policy PolicyTag
	WaitMS uint64
}

// PolicyTag mirrors job.Policy.
type PolicyTag int

const (
	PolicyNever PolicyTag = iota
	PolicyOnFailure
	PolicyAlways
)

// Runner owns one spawned OS process: its handle, captured output, and
// supervision metadata. It is the Go analogue of the teacher's job.Job,
// minus the cgroup/namespace container machinery (out of scope here) and
// plus the restart-policy bookkeeping spec.md §4.4 requires.
//
// Reaping follows the same shape as the teacher's job.go Start(): a
// goroutine drains stdout, then calls cmd.Wait() exactly once and stores
// the result, closing waitDone. UpdateProcState (the non-blocking
// "try_reap" of §4.4) only ever reads that cached result; the watcher's
// blocking reap (§4.8) waits on the same channel, so no code path issues
// a second wait4 on an already-reaped pid.
type Runner struct {
	JobID   uint32
	Restart Restart

	mu             sync.Mutex
	cmd            *exec.Cmd
	info           ProcInfo
	userTerminated bool
	startTime      time.Time
	runDuration    time.Duration // set once terminal, used by RestartInfos
	Output         *OutputBuffer

	waitDone chan struct{}
}

// Spawn starts args[0] with args[1:], capturing stdout/stderr as pipes,
// in its own process group (so Terminate can signal the whole subtree),
// per §4.4. It launches two reader goroutines that decode lines into
// Output and echo them to the daemon's own stdout/stderr prefixed
// "[job|pid]". On EOF of stdout, it pushes a synthetic
// "<process terminated>" entry, reaps the process, and sends
// (jobID, pid) on done for the watcher to pick up.
func Spawn(jobID uint32, args []string, restart Restart, done chan<- [2]uint32) (*Runner, error) {
	if len(args) == 0 {
		return nil, ErrEmptyCommand
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("spawn job %d: %w", jobID, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("spawn job %d: %w", jobID, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn job %d: %w", jobID, err)
	}

	pid := cmd.Process.Pid
	r := &Runner{
		JobID:     jobID,
		Restart:   restart,
		cmd:       cmd,
		startTime: time.Now(),
		Output:    NewOutputBuffer(DefaultMaxLines),
		waitDone:  make(chan struct{}),
		info: ProcInfo{
			JobID:   jobID,
			Pid:     pid,
			Args:    args,
			State:   Running,
			StartTS: time.Now(),
		},
	}

	var stderrDone sync.WaitGroup
	stderrDone.Add(1)
	go func() {
		defer stderrDone.Done()
		readLines(stderr, jobID, pid, true, r.Output)
	}()

	go func() {
		readLines(stdout, jobID, pid, false, r.Output)
		r.Output.Push(LogLine{TS: time.Now(), JobID: jobID, Pid: pid, Line: "<process terminated>"})
		stderrDone.Wait()

		err := cmd.Wait()
		r.finish(err)
		close(r.waitDone)

		if done != nil {
			done <- [2]uint32{jobID, uint32(pid)}
		}
	}()

	return r, nil
}

func readLines(r io.Reader, jobID uint32, pid int, isStderr bool, buf *OutputBuffer) {
	prefix := fmt.Sprintf("[%d|%d]", jobID, pid)
	out := os.Stdout
	if isStderr {
		out = os.Stderr
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		fmt.Fprintf(out, "%s %s\n", prefix, line)
		buf.Push(LogLine{TS: time.Now(), JobID: jobID, Pid: pid, Line: line, IsStderr: isStderr})
	}
}

// finish records the outcome of cmd.Wait(), classifying it per the
// state machine in §4.4.
func (r *Runner) finish(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.runDuration = time.Since(r.startTime)

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		r.info.State = ExitOk
	case errors.As(err, &exitErr):
		code := exitErr.ExitCode()
		if code < 0 {
			// terminated by signal; report as failure with a synthetic code
			r.info.State = ExitErr
			r.info.ExitCode = 128
		} else if code == 0 {
			r.info.State = ExitOk
		} else {
			r.info.State = ExitErr
			r.info.ExitCode = code
		}
	default:
		r.info.State = Unknown
		r.info.Message = err.Error()
	}
}

// Pid returns the process id of the Runner's child.
func (r *Runner) Pid() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.info.Pid
}

// UpdateProcState reports the Runner's current state without blocking.
// Before the process has been reaped it always reports Running (the
// transition out of Spawned happens implicitly — Spawn already leaves
// the Runner in Running since the first observable state read always
// follows the "no transition observed yet" instant); once the waiter
// goroutine has reaped the process, the cached terminal state from
// finish is returned. It never sets EndTS — only the watcher does.
func (r *Runner) UpdateProcState() ProcInfo {
	select {
	case <-r.waitDone:
	default:
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.info
}

// WaitReaped blocks until the process has been reaped (cmd.Wait()
// returned) and returns the final ProcInfo. Called by the watcher per
// §4.8 step 2 — by the time a pid reaches the watcher's termination
// channel, the waiter goroutine has already reaped it, so this never
// actually blocks in practice, but the shape matches the spec's
// "blocking-reap" step.
func (r *Runner) WaitReaped() ProcInfo {
	<-r.waitDone
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.info
}

// SetEndTS stamps EndTS on the Runner's ProcInfo. Only the watcher calls
// this, per the §3 invariant that end_ts is set only by the watcher.
func (r *Runner) SetEndTS(t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.info.EndTS = t
}

// SetTelemetry fills in the CPU/memory/IO fields populated by the
// telemetry plug ahead of a Ps response, per §4.9.
func (r *Runner) SetTelemetry(cpu float64, mem, vmem, totalRead, readBPS, totalWrite, writeBPS uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.info.CPUPercent = cpu
	r.info.MemBytes = mem
	r.info.VMemBytes = vmem
	r.info.TotalRead = totalRead
	r.info.ReadBPS = readBPS
	r.info.TotalWrite = totalWrite
	r.info.WriteBPS = writeBPS
}

// Info returns a copy of the Runner's current ProcInfo without sampling.
func (r *Runner) Info() ProcInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.info
}

// MarkUserTerminated records that a user command (Stop/Down/Exit) is
// responsible for this Runner's termination, suppressing any further
// respawn regardless of restart policy, per §4.4/§8.
func (r *Runner) MarkUserTerminated() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userTerminated = true
}

// Terminate sends SIGKILL to the Runner's whole process group. A Runner
// may outlive its OS process; repeated calls are harmless.
func (r *Runner) Terminate() error {
	r.mu.Lock()
	pid := r.cmd.Process.Pid
	r.mu.Unlock()

	if err := unix.Kill(-pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("kill job %d pid %d: %w", r.JobID, pid, err)
	}
	return nil
}

// RestartInfos consults the restart policy and current state to decide
// whether the Runner should be respawned, and if so computes the next
// back-off per §4.4: reset to the starting wait if the last run exceeded
// resetThreshold, otherwise double the current wait.
func (r *Runner) RestartInfos() (SpawnInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.userTerminated {
		return SpawnInfo{}, false
	}

	switch r.Restart.Policy {
	case PolicyNever:
		return SpawnInfo{}, false
	case PolicyOnFailure:
		if r.info.State != ExitErr || r.info.ExitCode <= 0 {
			return SpawnInfo{}, false
		}
	case PolicyAlways:
		// always restarts, checked userTerminated above
	default:
		return SpawnInfo{}, false
	}

	wait := r.Restart.WaitMS
	if r.runDuration > resetThreshold {
		wait = startingWaitMS
	} else {
		wait *= 2
	}

	return SpawnInfo{
		JobID:   r.JobID,
		Args:    append([]string(nil), r.info.Args...),
		Restart: Restart{Policy: r.Restart.Policy, WaitMS: wait},
	}, true
}
