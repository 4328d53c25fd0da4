package reslimit

import (
	"bufio"
	"os"
	"runtime"
	"strconv"
	"strings"
	"syscall"
)

// NoopSampler reports zero usage for every metric, for platforms
// without a native sampling implementation.
type NoopSampler struct{}

func (NoopSampler) MemoryMB() uint64                     { return 0 }
func (NoopSampler) CPUPercent() float64                  { return 0 }
func (NoopSampler) OpenFiles() int                       { return 0 }
func (NoopSampler) DiskUsageMB(workingDir string) uint64 { return 0 }

// LinuxSampler reads /proc/self/status for RSS and /proc/self/fd for
// the open descriptor count.
type LinuxSampler struct{}

// NewProcessSampler returns the Linux /proc-based sampler on Linux and
// the no-op sampler everywhere else.
func NewProcessSampler() ProcessSampler {
	if runtime.GOOS == "linux" {
		return LinuxSampler{}
	}
	return NoopSampler{}
}

func (LinuxSampler) MemoryMB() uint64 {
	f, err := os.Open("/proc/self/status")
	if err != nil {
		return 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "VmRSS:") {
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				kb, err := strconv.ParseUint(fields[1], 10, 64)
				if err == nil {
					return kb / 1024
				}
			}
		}
	}
	return 0
}

// CPUPercent is a best-effort instantaneous estimate: reading a
// meaningful CPU percentage requires sampling /proc/self/stat across
// an interval, which the check_limits call site does not do, so this
// reports 0 unless a caller composes it with two timed samples
// (AccumulatedCPUSeconds below covers that case).
func (LinuxSampler) CPUPercent() float64 { return 0 }

// AccumulatedCPUSeconds returns total user+system CPU time consumed
// by the process so far, for callers that want to derive a percentage
// by sampling across a known wall-clock interval.
func AccumulatedCPUSeconds() float64 {
	var usage syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &usage); err != nil {
		return 0
	}
	user := float64(usage.Utime.Sec) + float64(usage.Utime.Usec)/1e6
	sys := float64(usage.Stime.Sec) + float64(usage.Stime.Usec)/1e6
	return user + sys
}

func (LinuxSampler) OpenFiles() int {
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		return 0
	}
	return len(entries)
}

func (LinuxSampler) DiskUsageMB(workingDir string) uint64 {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(workingDir, &stat); err != nil {
		return 0
	}
	used := (stat.Blocks - stat.Bfree) * uint64(stat.Bsize)
	return used / (1024 * 1024)
}
