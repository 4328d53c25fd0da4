package admission

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidlabs/gatekeeper/pkg/ident"
)

// For any sequence of enqueues, dequeue order is a stable sort by
// (-priority, insertion index).
func TestAgentQueue_DequeueIsStableSortByPriority(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for trial := 0; trial < 20; trial++ {
		q := newAgentQueue(4)
		n := 1 + rng.Intn(50)

		type entry struct {
			req   *QueuedRequest
			index int
		}
		entries := make([]entry, 0, n)
		for i := 0; i < n; i++ {
			req := mkReq(Priority(rng.Intn(4)))
			entries = append(entries, entry{req: req, index: i})
			q.insert(req)
		}

		expected := make([]entry, len(entries))
		copy(expected, entries)
		sort.SliceStable(expected, func(a, b int) bool {
			if expected[a].req.Priority != expected[b].req.Priority {
				return expected[a].req.Priority > expected[b].req.Priority
			}
			return expected[a].index < expected[b].index
		})

		for i := 0; i < n; i++ {
			got := q.popFront()
			require.NotNil(t, got)
			assert.Equal(t, expected[i].req.ID, got.ID, "trial %d position %d", trial, i)
		}
		assert.Nil(t, q.popFront())
	}
}

func TestManager_ProcessingTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ProcessingTimeout = 50 * time.Millisecond
	m := NewManager(cfg)
	m.SetExecutor(func(ctx context.Context, agentID ident.AgentID, toolID ident.ToolID, input string) (string, error) {
		select {
		case <-time.After(5 * time.Second):
			return "too late", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Shutdown()

	_, respCh, err := m.QueueRequest(context.Background(), "agent-1", "slow", PriorityNormal, "x", 10*time.Second)
	require.NoError(t, err)

	select {
	case resp := <-respCh:
		require.Error(t, resp.Err)
		assert.IsType(t, &ErrProcessingTimeout{}, resp.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for processing-timeout response")
	}
}

func TestManager_ReaperExpiresQueuedRequests(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QueueTimeout = 20 * time.Millisecond
	cfg.ReapInterval = 10 * time.Millisecond
	m := NewManager(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// Saturate the global semaphore so dispatch cannot drain the
	// queue; only the reaper can resolve the request.
	for i := 0; i < cfg.GlobalMaxConcurrent; i++ {
		m.globalSema <- struct{}{}
	}
	m.Start(ctx)
	defer m.Shutdown()

	_, respCh, err := m.QueueRequest(context.Background(), "agent-1", "t", PriorityNormal, "x", 20*time.Millisecond)
	require.NoError(t, err)

	select {
	case resp := <-respCh:
		require.Error(t, resp.Err)
		assert.IsType(t, &ErrQueueTimeout{}, resp.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("reaper never expired the request")
	}
	assert.GreaterOrEqual(t, m.GlobalMetrics().TotalTimeouts, int64(1))
}

func TestManager_ShutdownRejectsNewEnqueues(t *testing.T) {
	m := NewManager(DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	m.Shutdown()

	_, _, err := m.QueueRequest(context.Background(), "agent-1", "t", PriorityNormal, "x", time.Second)
	require.Error(t, err)
}

// At no observable instant may per-agent concurrency exceed the
// configured bound, and all guards must be released at quiescence.
func TestManager_ConcurrencyBoundHolds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConcurrentPerAgent = 2
	cfg.GlobalMaxConcurrent = 4
	cfg.Workers = 8
	cfg.ProcessingTimeout = 5 * time.Second
	m := NewManager(cfg)

	var inFlight atomic.Int32
	var maxSeen atomic.Int32
	m.SetExecutor(func(ctx context.Context, agentID ident.AgentID, toolID ident.ToolID, input string) (string, error) {
		cur := inFlight.Add(1)
		for {
			prev := maxSeen.Load()
			if cur <= prev || maxSeen.CompareAndSwap(prev, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return "ok", nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Shutdown()

	const requests = 30
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		_, respCh, err := m.QueueRequest(context.Background(), "agent-1", "t", PriorityNormal, "x", 10*time.Second)
		require.NoError(t, err)
		wg.Add(1)
		go func(ch <-chan Response) {
			defer wg.Done()
			<-ch
		}(respCh)
	}
	wg.Wait()

	assert.LessOrEqual(t, maxSeen.Load(), int32(cfg.MaxConcurrentPerAgent))
	assert.Equal(t, int32(0), m.AgentStats("agent-1").ActiveRequests)
	assert.Equal(t, int64(requests), m.GlobalMetrics().TotalProcessed)
}

// Dropping the response channel abandons interest, not execution:
// counters still return to zero.
func TestManager_CallerAbandonment(t *testing.T) {
	cfg := DefaultConfig()
	m := NewManager(cfg)
	executed := make(chan struct{}, 1)
	m.SetExecutor(func(ctx context.Context, agentID ident.AgentID, toolID ident.ToolID, input string) (string, error) {
		executed <- struct{}{}
		return "ok", nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Shutdown()

	_, _, err := m.QueueRequest(context.Background(), "agent-1", "t", PriorityNormal, "x", time.Second)
	require.NoError(t, err) // receiver discarded immediately

	select {
	case <-executed:
	case <-time.After(2 * time.Second):
		t.Fatal("tool never executed after caller abandoned")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if m.AgentStats("agent-1").ActiveRequests == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("active requests never drained")
}
