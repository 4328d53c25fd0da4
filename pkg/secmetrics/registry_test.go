package secmetrics

import (
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(prometheus.NewRegistry())
}

// The (N+1)-th distinct tool label must be refused with a
// CardinalityError, not recorded or truncated.
func TestRecordToolExecution_CardinalityCap(t *testing.T) {
	r := newTestRegistry(t)

	for i := 0; i < ToolLabelBudget; i++ {
		require.NoError(t, r.RecordToolExecution(fmt.Sprintf("tool-%d", i), 0.01))
	}

	err := r.RecordToolExecution("tool-overflow", 0.01)
	var cerr *CardinalityError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ToolLabelBudget, cerr.Limit)
	assert.Equal(t, ToolLabelBudget, cerr.Current)

	// A previously admitted label keeps working.
	require.NoError(t, r.RecordToolExecution("tool-0", 0.02))
}

func TestRecordHTTPRequest_RouteCap(t *testing.T) {
	r := newTestRegistry(t)

	for i := 0; i < HTTPRouteLabelBudget; i++ {
		require.NoError(t, r.RecordHTTPRequest(fmt.Sprintf("/route/%d", i), "200", 0.01))
	}

	err := r.RecordHTTPRequest("/route/overflow", "200", 0.01)
	var cerr *CardinalityError
	require.ErrorAs(t, err, &cerr)

	// Status is not part of the budget: an existing route with a new
	// status is always admitted.
	require.NoError(t, r.RecordHTTPRequest("/route/0", "500", 0.01))
}

func TestRecordAgentError_ClosedEnumeration(t *testing.T) {
	r := newTestRegistry(t)
	kinds := []string{
		"tool_execution", "validation", "auth", "rate_limit", "timeout",
		"queue_full", "overloaded", "policy", "internal", "cancelled",
	}
	for _, k := range kinds {
		require.NoError(t, r.RecordAgentError(k))
	}
	require.Error(t, r.RecordAgentError("one-too-many"))
}

func TestRecordMemoryOp_FourKinds(t *testing.T) {
	r := newTestRegistry(t)
	for _, op := range []string{"load", "store", "transaction", "snapshot"} {
		require.NoError(t, r.RecordMemoryOp(op))
	}
	require.Error(t, r.RecordMemoryOp("compact"))
}

func TestUnboundedMetricsAlwaysRecord(t *testing.T) {
	r := newTestRegistry(t)
	r.RecordAuthAttempt("allowed")
	r.RecordAuthorizationCheck("denied", "echo")
	r.RecordPolicyViolation("ssrf")
	r.RecordResourceLimitHit("memory_limit_exceeded")
	r.RecordRateLimitHit("per_agent")
	r.ActiveSessions.Inc()
	r.HTTPInFlight.Set(3)
}

func TestDefaultLatencyBuckets_CoverRequiredRange(t *testing.T) {
	require.NotEmpty(t, DefaultLatencyBuckets)
	assert.LessOrEqual(t, DefaultLatencyBuckets[0], 0.00001)
	assert.GreaterOrEqual(t, DefaultLatencyBuckets[len(DefaultLatencyBuckets)-1], 10.0)
}
