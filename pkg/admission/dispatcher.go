package admission

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/corvidlabs/gatekeeper/pkg/ident"
)

// Executor actually runs a tool call. It is supplied by the caller
// (the security manager) and may itself compose a resource-tracker
// guard, audit emission, and the tool invocation proper — the
// dispatcher's only concern is concurrency admission, not what runs
// once admitted.
type Executor func(ctx context.Context, agentID ident.AgentID, toolID ident.ToolID, input string) (string, error)

// Config tunes a Manager's admission behavior.
type Config struct {
	Mode                  Mode
	MaxQueueSize          int
	MaxConcurrentPerAgent int
	GlobalMaxConcurrent   int
	QueueTimeout          time.Duration
	ProcessingTimeout     time.Duration
	LoadThreshold         float64
	ReapInterval          time.Duration
	Workers               int
}

// DefaultConfig returns conservative defaults. ReapInterval is a
// default, not a hard constant; deployments tune it like any other
// field.
func DefaultConfig() Config {
	return Config{
		Mode:                  ModeStrict,
		MaxQueueSize:          100,
		MaxConcurrentPerAgent: 4,
		GlobalMaxConcurrent:   64,
		QueueTimeout:          30 * time.Second,
		ProcessingTimeout:     2 * time.Minute,
		LoadThreshold:         0.9,
		ReapInterval:          30 * time.Second,
		Workers:               8,
	}
}

// Manager is the BackpressureManager: per-agent priority queues bound
// by global and per-agent semaphores, a reaper sweeping expired
// entries, and a pool of dispatch workers using non-blocking
// try-acquire so a contended agent yields to another instead of
// blocking a worker.
type Manager struct {
	cfg Config

	mu           sync.RWMutex
	agentQueues  map[ident.AgentID]*AgentQueue
	globalSema   chan struct{}

	ready   chan ident.AgentID
	shuttingDown atomic.Bool
	shutdownCh   chan struct{}
	wg           sync.WaitGroup

	globalRejections atomic.Int64
	executor         atomic.Pointer[Executor]
}

// NewManager constructs a Manager. Call Start to begin dispatching.
func NewManager(cfg Config) *Manager {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	return &Manager{
		cfg:         cfg,
		agentQueues: make(map[ident.AgentID]*AgentQueue),
		globalSema:  make(chan struct{}, cfg.GlobalMaxConcurrent),
		ready:       make(chan ident.AgentID, 4096),
		shutdownCh:  make(chan struct{}),
	}
}

func (m *Manager) queueFor(agentID ident.AgentID) *AgentQueue {
	m.mu.RLock()
	q, ok := m.agentQueues[agentID]
	m.mu.RUnlock()
	if ok {
		return q
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if q, ok := m.agentQueues[agentID]; ok {
		return q
	}
	q = newAgentQueue(m.cfg.MaxConcurrentPerAgent)
	m.agentQueues[agentID] = q
	return q
}

// SystemLoad is Σ active_requests / global_max_concurrent across every
// tracked agent.
func (m *Manager) SystemLoad() float64 {
	if m.cfg.GlobalMaxConcurrent == 0 {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var active int32
	for _, q := range m.agentQueues {
		active += q.activeRequests.Load()
	}
	return float64(active) / float64(m.cfg.GlobalMaxConcurrent)
}

// QueueRequest admits req into agentID's priority queue, or rejects
// it:
//  1. Adaptive mode + system overloaded -> SystemOverloaded.
//  2. Queue at capacity -> QueueFull.
//  3. Otherwise priority-ordered insert, FIFO within priority.
func (m *Manager) QueueRequest(ctx context.Context, agentID ident.AgentID, toolID ident.ToolID, priority Priority, input string, timeout time.Duration) (uuid.UUID, <-chan Response, error) {
	if m.shuttingDown.Load() {
		return uuid.UUID{}, nil, &ErrAgentNotFound{AgentID: agentID}
	}

	q := m.queueFor(agentID)

	if m.cfg.Mode == ModeAdaptive {
		if load := m.SystemLoad(); load > m.cfg.LoadThreshold {
			q.totalRejections.Add(1)
			m.globalRejections.Add(1)
			return uuid.UUID{}, nil, &ErrSystemOverloaded{Load: load}
		}
	}

	if timeout <= 0 {
		timeout = m.cfg.QueueTimeout
	}

	respCh := make(chan Response, 1)
	req := &QueuedRequest{
		ID:         uuid.New(),
		AgentID:    agentID,
		ToolID:     toolID,
		Priority:   priority,
		QueuedAt:   time.Now(),
		Timeout:    timeout,
		Input:      input,
		responseCh: respCh,
	}

	if q.Len() >= m.cfg.MaxQueueSize {
		q.totalRejections.Add(1)
		m.globalRejections.Add(1)
		return uuid.UUID{}, nil, &ErrQueueFull{AgentID: agentID, Size: q.Len()}
	}

	q.insert(req)
	m.wake(agentID)
	return req.ID, respCh, nil
}

func (m *Manager) wake(agentID ident.AgentID) {
	select {
	case m.ready <- agentID:
	default:
		// Wake channel momentarily full: another worker wake for this
		// or another agent is already pending, and every worker
		// re-signals its own agent after each dispatch until the
		// queue drains, so this request will still be picked up.
	}
}

// Start launches cfg.Workers dispatch workers and the reaper. It
// returns immediately; call Shutdown to stop.
func (m *Manager) Start(ctx context.Context) {
	for i := 0; i < m.cfg.Workers; i++ {
		m.wg.Add(1)
		go m.workerLoop(ctx)
	}
	m.wg.Add(1)
	go m.reaperLoop(ctx)
}

// Shutdown stops accepting new enqueues and waits for in-flight
// dispatch loops to exit. Already-dispatched tool calls run to
// completion; Shutdown does not cancel them.
func (m *Manager) Shutdown() {
	if m.shuttingDown.Swap(true) {
		return
	}
	close(m.shutdownCh)
	m.wg.Wait()
}

func (m *Manager) workerLoop(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-m.shutdownCh:
			return
		case <-ctx.Done():
			return
		case agentID := <-m.ready:
			if m.dispatchOne(ctx, agentID) {
				// more work may remain for this agent; re-signal so
				// another worker (or this one) keeps draining it
				// instead of starving behind newer wakes.
				m.wake(agentID)
			}
		}
	}
}

// dispatchOne implements process_next_request for one agent. It
// returns true if the queue likely still has work worth re-signaling.
func (m *Manager) dispatchOne(ctx context.Context, agentID ident.AgentID) bool {
	m.mu.RLock()
	q, ok := m.agentQueues[agentID]
	m.mu.RUnlock()
	if !ok {
		return false
	}

	req := q.popFront()
	if req == nil {
		return false
	}

	select {
	case m.globalSema <- struct{}{}:
	default:
		q.pushFront(req)
		return false
	}

	select {
	case q.semaphore <- struct{}{}:
	default:
		<-m.globalSema
		q.pushFront(req)
		return false
	}

	if time.Since(req.QueuedAt) > req.Timeout {
		<-q.semaphore
		<-m.globalSema
		q.totalTimeouts.Add(1)
		m.sendResponse(req, Response{Err: &ErrQueueTimeout{AgentID: agentID, WaitedMs: time.Since(req.QueuedAt).Milliseconds()}})
		return q.Len() > 0
	}

	m.mu.RLock()
	_, stillTracked := m.agentQueues[agentID]
	m.mu.RUnlock()
	if !stillTracked {
		<-q.semaphore
		<-m.globalSema
		m.sendResponse(req, Response{Err: &ErrAgentNotFound{AgentID: agentID}})
		return false
	}

	q.activeRequests.Add(1)
	m.runExecutor(ctx, q, req)
	return q.Len() > 0
}

// SetExecutor installs the tool-invocation function every dispatched
// request is run through. It must be set before Start is called.
func (m *Manager) SetExecutor(exec Executor) {
	m.executor.Store(&exec)
}

func (m *Manager) runExecutor(parent context.Context, q *AgentQueue, req *QueuedRequest) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() { <-q.semaphore; <-m.globalSema; q.activeRequests.Add(-1) }()

		ctx := parent
		var cancel context.CancelFunc
		if m.cfg.ProcessingTimeout > 0 {
			ctx, cancel = context.WithTimeout(parent, m.cfg.ProcessingTimeout)
			defer cancel()
		}

		start := time.Now()
		execPtr := m.executor.Load()
		if execPtr == nil {
			m.sendResponse(req, Response{Err: &ErrAgentNotFound{AgentID: req.AgentID}})
			return
		}

		done := make(chan Response, 1)
		go func() {
			out, err := (*execPtr)(ctx, req.AgentID, req.ToolID, req.Input)
			done <- Response{Output: out, Err: err}
		}()

		select {
		case resp := <-done:
			q.totalProcessed.Add(1)
			q.recordDuration(time.Since(start))
			m.sendResponse(req, resp)
		case <-ctx.Done():
			q.totalTimeouts.Add(1)
			m.sendResponse(req, Response{Err: &ErrProcessingTimeout{AgentID: req.AgentID, TookMs: time.Since(start).Milliseconds()}})
		}
	}()
}

// sendResponse delivers resp to req's one-shot channel. The channel
// is buffered to capacity 1, so this never blocks even if the caller
// has stopped reading: dropping the receiver cancels interest, not
// execution. The result is silently discarded by virtue of nobody
// reading it, and no further bookkeeping happens here because counters
// were already released by the caller's deferred cleanup.
func (m *Manager) sendResponse(req *QueuedRequest, resp Response) {
	select {
	case req.responseCh <- resp:
	default:
	}
}

func (m *Manager) reaperLoop(ctx context.Context) {
	defer m.wg.Done()
	interval := m.cfg.ReapInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.shutdownCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.reapOnce()
		}
	}
}

func (m *Manager) reapOnce() {
	m.mu.RLock()
	queues := make(map[ident.AgentID]*AgentQueue, len(m.agentQueues))
	for id, q := range m.agentQueues {
		queues[id] = q
	}
	m.mu.RUnlock()

	for agentID, q := range queues {
		q.reapExpired(m.cfg.QueueTimeout, func(req *QueuedRequest) {
			q.totalTimeouts.Add(1)
			m.sendResponse(req, Response{Err: &ErrQueueTimeout{AgentID: agentID, WaitedMs: time.Since(req.QueuedAt).Milliseconds()}})
		})
	}
}

// GlobalMetrics aggregates rejection, timeout, and processed counts
// across every tracked agent queue.
type GlobalMetrics struct {
	TotalRejections int64
	TotalTimeouts   int64
	TotalProcessed  int64
}

func (m *Manager) GlobalMetrics() GlobalMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out GlobalMetrics
	for _, q := range m.agentQueues {
		out.TotalRejections += q.totalRejections.Load()
		out.TotalTimeouts += q.totalTimeouts.Load()
		out.TotalProcessed += q.totalProcessed.Load()
	}
	return out
}

// AgentStats returns a point-in-time snapshot for agentID, or the
// zero Stats if the agent has never enqueued a request.
func (m *Manager) AgentStats(agentID ident.AgentID) Stats {
	m.mu.RLock()
	q, ok := m.agentQueues[agentID]
	m.mu.RUnlock()
	if !ok {
		return Stats{}
	}
	return q.Stats()
}
