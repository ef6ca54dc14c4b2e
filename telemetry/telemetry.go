// Package telemetry implements the plug described in spec.md §4.9 and
// §6: before answering Ps, sample the host process table twice ~200ms
// apart, then fill each Runner's cpu/mem/vmem/io fields. The two samples
// give the read/write byte rates; the CPU percent is gopsutil's
// CPUPercent, an average over the process's whole lifetime, not over the
// sampled interval. The teacher has no equivalent (per-process
// telemetry is out of scope for it); this mirrors hashicorp/nomad's
// executor.pidStats(), which samples a tracked pid's MemoryInfo/Times
// via shirou/gopsutil/v3/process the same way.
package telemetry

import (
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// SampleInterval is the gap between the two samples Refresh takes, per
// §4.9.
const SampleInterval = 200 * time.Millisecond

// Sample holds one process's telemetry snapshot.
type Sample struct {
	CPUPercent float64
	MemBytes   uint64
	VMemBytes  uint64
	TotalRead  uint64
	ReadBPS    uint64
	TotalWrite uint64
	WriteBPS   uint64
}

type ioCounters struct {
	read, write uint64
}

// Sampler takes two host process-table snapshots ~200ms apart and
// exposes per-pid deltas as rates, matching §4.9's "convert byte
// counters to rates over the sampled interval".
type Sampler struct {
	before map[int32]ioCounters
	after  map[int32]ioCounters
	procs  map[int32]*process.Process
}

// NewSampler creates an empty Sampler.
func NewSampler() *Sampler {
	return &Sampler{}
}

// Refresh takes two samples of the host process table for the given
// pids, SampleInterval apart.
func (s *Sampler) Refresh(pids []int32) {
	s.before = s.snapshot(pids)
	time.Sleep(SampleInterval)
	s.after = s.snapshot(pids)
}

func (s *Sampler) snapshot(pids []int32) map[int32]ioCounters {
	out := make(map[int32]ioCounters, len(pids))
	s.procs = make(map[int32]*process.Process, len(pids))
	for _, pid := range pids {
		p, err := process.NewProcess(pid)
		if err != nil {
			continue
		}
		s.procs[pid] = p
		if io, err := p.IOCounters(); err == nil {
			out[pid] = ioCounters{read: io.ReadBytes, write: io.WriteBytes}
		}
	}
	return out
}

// Fill returns the Sample for pid computed from the two snapshots taken
// by the most recent Refresh, or false if pid was not observed.
func (s *Sampler) Fill(pid int32) (Sample, bool) {
	p, ok := s.procs[pid]
	if !ok {
		return Sample{}, false
	}

	var sample Sample
	if cpu, err := p.CPUPercent(); err == nil {
		sample.CPUPercent = cpu
	}
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		sample.MemBytes = mem.RSS
		sample.VMemBytes = mem.VMS
	}

	before, hasBefore := s.before[pid]
	after, hasAfter := s.after[pid]
	if hasAfter {
		sample.TotalRead = after.read
		sample.TotalWrite = after.write
	}
	if hasBefore && hasAfter {
		secs := SampleInterval.Seconds()
		if after.read >= before.read {
			sample.ReadBPS = uint64(float64(after.read-before.read) / secs)
		}
		if after.write >= before.write {
			sample.WriteBPS = uint64(float64(after.write-before.write) / secs)
		}
	}

	return sample, true
}

// FirstNonTrapChild walks the children of pid and returns the pid of the
// first one whose executable name does not match trapName, per §4.5/§9:
// recipe-runner parents (e.g. "just") don't propagate a kill signal to
// their child, so the daemon must locate and signal the real service
// process instead.
func FirstNonTrapChild(pid int32, trapName string) (int32, bool) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return 0, false
	}
	children, err := p.Children()
	if err != nil {
		return 0, false
	}
	for _, c := range children {
		name, err := c.Name()
		if err != nil {
			continue
		}
		if name == trapName {
			if pid, ok := FirstNonTrapChild(c.Pid, trapName); ok {
				return pid, true
			}
			continue
		}
		return c.Pid, true
	}
	return 0, false
}
