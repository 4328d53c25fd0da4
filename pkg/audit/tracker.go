package audit

import (
	"fmt"
	"sync"
	"time"
)

// violationKey identifies one (violation_type, tool) pair for repeat-
// offender counting.
type violationKey struct {
	violationType string
	tool          string
}

func (k violationKey) String() string { return fmt.Sprintf("%s:%s", k.violationType, k.tool) }

type violationRecord struct {
	at  time.Time
	key violationKey
}

// ViolationTracker maintains a 24-hour sliding window of policy
// violations and a per-(violation_type,tool) count to flag repeat
// offenders (>5 in-window occurrences => suspicious), feeding the
// config-driven lockdown triggers.
type ViolationTracker struct {
	mu      sync.Mutex
	window  time.Duration
	records []violationRecord
	counts  map[violationKey]int

	// RepeatThreshold is the count above which a (type,tool) pair is
	// considered a repeat offender. Defaults to 5.
	RepeatThreshold int
}

// NewViolationTracker constructs a tracker with the default 24-hour
// window and repeat threshold of 5.
func NewViolationTracker() *ViolationTracker {
	return &ViolationTracker{
		window:          24 * time.Hour,
		counts:          make(map[violationKey]int),
		RepeatThreshold: 5,
	}
}

// Record adds a violation observation and returns whether this
// (violationType, tool) pair is now a suspicious repeat offender.
func (v *ViolationTracker) Record(violationType, tool string) (suspicious bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.prune(time.Now())

	key := violationKey{violationType: violationType, tool: tool}
	v.records = append(v.records, violationRecord{at: time.Now(), key: key})
	v.counts[key]++

	return v.counts[key] > v.RepeatThreshold
}

// Count returns the current in-window count for (violationType, tool).
func (v *ViolationTracker) Count(violationType, tool string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.prune(time.Now())
	return v.counts[violationKey{violationType: violationType, tool: tool}]
}

// prune drops records older than the window and rebuilds counts.
// Must be called with v.mu held.
func (v *ViolationTracker) prune(now time.Time) {
	cutoff := now.Add(-v.window)
	kept := v.records[:0]
	for _, r := range v.records {
		if r.at.After(cutoff) {
			kept = append(kept, r)
		}
	}
	v.records = kept

	counts := make(map[violationKey]int, len(v.counts))
	for _, r := range v.records {
		counts[r.key]++
	}
	v.counts = counts
}

// Total returns the number of violations currently inside the window,
// across every (type, tool) pair.
func (v *ViolationTracker) Total() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.prune(time.Now())
	return len(v.records)
}
