package reslimit

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/corvidlabs/gatekeeper/pkg/ident"
)

// ProcessSampler samples real process resource usage. The Linux
// implementation reads /proc/self/status and /proc/self/fd; other
// platforms get a no-op sampler returning zeroes.
type ProcessSampler interface {
	MemoryMB() uint64
	CPUPercent() float64
	OpenFiles() int
	DiskUsageMB(workingDir string) uint64
}

type agentState struct {
	activeOps     atomic.Int32
	memoryMB      atomic.Uint64
	cpuPercent    atomic.Uint64 // stored as value*100 for integer atomics
	totalProcessed atomic.Int64
	startTime     time.Time
}

// Tracker holds per-agent resource state and enforces ResourceLimits
// at check time. active_ops is lock-free (an atomic counter); the
// agent map itself uses a read-write lock, read-heavy on the
// check_limits hot path.
type Tracker struct {
	mu      sync.RWMutex
	agents  map[ident.AgentID]*agentState
	sampler ProcessSampler
	limits  ResourceLimits
}

// NewTracker constructs a Tracker enforcing limits uniformly across
// agents, sampling real process state via sampler.
func NewTracker(limits ResourceLimits, sampler ProcessSampler) *Tracker {
	if sampler == nil {
		sampler = NoopSampler{}
	}
	return &Tracker{
		agents:  make(map[ident.AgentID]*agentState),
		sampler: sampler,
		limits:  limits,
	}
}

func (t *Tracker) stateFor(agentID ident.AgentID) *agentState {
	t.mu.RLock()
	s, ok := t.agents[agentID]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.agents[agentID]; ok {
		return s
	}
	s = &agentState{startTime: time.Now()}
	t.agents[agentID] = s
	return s
}

// CheckLimits returns a LimitError if agentID currently violates any
// bound in t.limits, evaluated at the time of the call.
func (t *Tracker) CheckLimits(agentID ident.AgentID) error {
	s := t.stateFor(agentID)

	if t.limits.MaxConcurrentOps > 0 && int(s.activeOps.Load()) >= t.limits.MaxConcurrentOps {
		return &LimitError{Kind: ErrConcurrencyLimitExceeded, Observed: float64(s.activeOps.Load()), Limit: float64(t.limits.MaxConcurrentOps)}
	}

	mem := t.sampler.MemoryMB()
	s.memoryMB.Store(mem)
	if t.limits.MaxMemoryMB > 0 && mem > t.limits.MaxMemoryMB {
		return &LimitError{Kind: ErrMemoryLimitExceeded, Observed: float64(mem), Limit: float64(t.limits.MaxMemoryMB)}
	}

	cpu := t.sampler.CPUPercent()
	s.cpuPercent.Store(uint64(cpu * 100))
	if max := t.limits.MaxCPUPercent.Value(); max > 0 && cpu > max {
		return &LimitError{Kind: ErrCPULimitExceeded, Observed: cpu, Limit: max}
	}

	if t.limits.MaxOpenFiles > 0 {
		if fds := t.sampler.OpenFiles(); fds > t.limits.MaxOpenFiles {
			return &LimitError{Kind: ErrOpenFilesLimitExceeded, Observed: float64(fds), Limit: float64(t.limits.MaxOpenFiles)}
		}
	}

	return nil
}

// OperationGuard is the RAII-equivalent handle for one in-flight
// operation: Start increments active_ops; Release (idiomatically
// `defer`red immediately after Start) decrements it and records the
// operation's duration, on every exit path — success, error, timeout,
// or a recovered panic further up the call stack, since Release runs
// from the same defer regardless of how the enclosing function
// returns.
type OperationGuard struct {
	tracker   *Tracker
	state     *agentState
	agentID   ident.AgentID
	startedAt time.Time
	onRelease func(d time.Duration)
	released  atomic.Bool
}

// StartOperation begins tracking one operation for agentID, returning
// a guard whose Release must be deferred by the caller.
func (t *Tracker) StartOperation(agentID ident.AgentID, onRelease func(time.Duration)) *OperationGuard {
	s := t.stateFor(agentID)
	s.activeOps.Add(1)
	return &OperationGuard{tracker: t, state: s, agentID: agentID, startedAt: time.Now(), onRelease: onRelease}
}

// Release decrements the active-ops counter and records the
// operation's duration. It is safe to call multiple times; only the
// first call has effect, so a deferred Release composed with an
// explicit early Release never double-decrements.
func (g *OperationGuard) Release() {
	if g.released.Swap(true) {
		return
	}
	g.state.activeOps.Add(-1)
	g.state.totalProcessed.Add(1)
	if g.onRelease != nil {
		g.onRelease(time.Since(g.startedAt))
	}
}

// ActiveOps returns the current in-flight operation count for agentID.
func (t *Tracker) ActiveOps(agentID ident.AgentID) int32 {
	return t.stateFor(agentID).activeOps.Load()
}

// TotalActiveOps sums active_ops across every tracked agent, used to
// enforce the global concurrency bound.
func (t *Tracker) TotalActiveOps() int32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var total int32
	for _, s := range t.agents {
		total += s.activeOps.Load()
	}
	return total
}

// CleanupStaleAgents prunes tracked agents whose entry has existed
// longer than maxAge and currently has zero active operations —
// never evicts an agent mid-operation.
func (t *Tracker) CleanupStaleAgents(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	t.mu.Lock()
	defer t.mu.Unlock()
	pruned := 0
	for id, s := range t.agents {
		if s.activeOps.Load() == 0 && s.startTime.Before(cutoff) {
			delete(t.agents, id)
			pruned++
		}
	}
	return pruned
}
