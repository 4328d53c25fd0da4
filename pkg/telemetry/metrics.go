// Package telemetry holds process-level diagnostics: Go runtime
// memory/GC statistics and pprof CPU/heap profile capture. Dimensional
// security metrics (tool executions, auth attempts, policy violations,
// and the like) live in pkg/secmetrics instead, where cardinality is
// bounded per-label — a bare Counter/Gauge registry with unbounded
// label sets cannot refuse the label tuple that would blow a metric's
// budget, so that concern lives in the prometheus-backed registry
// rather than here.
package telemetry

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"runtime/pprof"
	"sync"
	"time"
)

// cpuProfileWriter is the current CPU profile writer, if any.
var (
	cpuProfileMu     sync.Mutex
	cpuProfileWriter io.WriteCloser
)

// StartCPUProfile starts CPU profiling and writes to the given writer.
// Returns an error if profiling is already started.
func StartCPUProfile(w io.Writer) error {
	cpuProfileMu.Lock()
	defer cpuProfileMu.Unlock()

	if cpuProfileWriter != nil {
		return fmt.Errorf("cpu profiling already started")
	}

	wc, ok := w.(io.WriteCloser)
	if !ok {
		return fmt.Errorf("writer must implement io.WriteCloser")
	}

	cpuProfileWriter = wc
	if err := pprof.StartCPUProfile(w); err != nil {
		cpuProfileWriter = nil
		return fmt.Errorf("starting cpu profile: %w", err)
	}
	return nil
}

// StopCPUProfile stops the current CPU profiling.
func StopCPUProfile() {
	cpuProfileMu.Lock()
	defer cpuProfileMu.Unlock()

	if cpuProfileWriter != nil {
		pprof.StopCPUProfile()
		cpuProfileWriter.Close()
		cpuProfileWriter = nil
	}
}

// WriteHeapProfile writes the current heap profile to the given writer.
func WriteHeapProfile(w io.Writer) error {
	if err := pprof.WriteHeapProfile(w); err != nil {
		return fmt.Errorf("writing heap profile: %w", err)
	}
	return nil
}

// MemoryStats holds key memory statistics, sampled on demand or by a
// ProfileRecorder and surfaced through the security manager's
// diagnostics endpoint during development mode.
type MemoryStats struct {
	Alloc        uint64 `json:"alloc"`
	TotalAlloc   uint64 `json:"total_alloc"`
	Sys          uint64 `json:"sys"`
	NumGC        uint32 `json:"num_gc"`
	HeapAlloc    uint64 `json:"heap_alloc"`
	HeapSys      uint64 `json:"heap_sys"`
	HeapIdle     uint64 `json:"heap_idle"`
	HeapInuse    uint64 `json:"heap_inuse"`
	HeapReleased uint64 `json:"heap_released"`
	HeapObjects  uint64 `json:"heap_objects"`
	StackInuse   uint64 `json:"stack_inuse"`
	StackSys     uint64 `json:"stack_sys"`
	Goroutines   int    `json:"goroutines"`
	Timestamp    int64  `json:"timestamp"`
}

// GetMemoryStats returns current memory statistics.
func GetMemoryStats() MemoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return MemoryStats{
		Alloc:        m.Alloc,
		TotalAlloc:   m.TotalAlloc,
		Sys:          m.Sys,
		NumGC:        m.NumGC,
		HeapAlloc:    m.HeapAlloc,
		HeapSys:      m.HeapSys,
		HeapIdle:     m.HeapIdle,
		HeapInuse:    m.HeapInuse,
		HeapReleased: m.HeapReleased,
		HeapObjects:  m.HeapObjects,
		StackInuse:   m.StackInuse,
		StackSys:     m.StackSys,
		Goroutines:   runtime.NumGoroutine(),
		Timestamp:    time.Now().Unix(),
	}
}

// GetMemoryStatsJSON returns memory statistics as JSON.
func GetMemoryStatsJSON() ([]byte, error) {
	stats := GetMemoryStats()
	return json.Marshal(stats)
}

// ProfileConfig holds configuration for continuous profiling.
type ProfileConfig struct {
	MemoryInterval time.Duration // Interval for recording memory stats
}

// DefaultProfileConfig returns default profiling configuration.
func DefaultProfileConfig() *ProfileConfig {
	return &ProfileConfig{
		MemoryInterval: 30 * time.Second,
	}
}

// ProfileRecorder samples GetMemoryStats on an interval, feeding a
// sink (typically secmetrics.Registry.ActiveSessions' neighboring
// process gauges, or a development-mode debug log) without requiring
// the caller to manage its own ticker.
type ProfileRecorder struct {
	config *ProfileConfig
	sink   func(MemoryStats)
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewProfileRecorder creates a new profile recorder. sink is called
// with each sample; pass nil to discard samples and just keep GetMemoryStats
// available on demand.
func NewProfileRecorder(config *ProfileConfig, sink func(MemoryStats)) *ProfileRecorder {
	if config == nil {
		config = DefaultProfileConfig()
	}
	return &ProfileRecorder{
		config: config,
		sink:   sink,
		stopCh: make(chan struct{}),
	}
}

// Start begins continuous profiling.
func (pr *ProfileRecorder) Start() {
	if pr == nil {
		return
	}
	pr.wg.Add(1)
	go pr.recordLoop()
}

// Stop stops continuous profiling.
func (pr *ProfileRecorder) Stop() {
	if pr == nil {
		return
	}
	close(pr.stopCh)
	pr.wg.Wait()
}

func (pr *ProfileRecorder) recordLoop() {
	defer pr.wg.Done()

	ticker := time.NewTicker(pr.config.MemoryInterval)
	defer ticker.Stop()

	pr.sample()
	for {
		select {
		case <-pr.stopCh:
			return
		case <-ticker.C:
			pr.sample()
		}
	}
}

func (pr *ProfileRecorder) sample() {
	if pr.sink == nil {
		return
	}
	pr.sink(GetMemoryStats())
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer, already started.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Start resets and starts the timer.
func (t *Timer) Start() {
	if t == nil {
		return
	}
	t.start = time.Now()
}

// Elapsed returns the elapsed time.
func (t *Timer) Elapsed() time.Duration {
	if t == nil {
		return 0
	}
	return time.Since(t.start)
}
