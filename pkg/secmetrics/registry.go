// Package secmetrics holds the cardinality-bounded counters,
// histograms, and gauges for the security/admission subsystem. Each
// per-label metric carries a hard cap (tool names <=20, HTTP routes
// <=30, error kinds =10, memory ops =4) enforced by a tracker layered
// in front of github.com/prometheus/client_golang's CounterVec/
// HistogramVec/GaugeVec: the (N+1)-th distinct label tuple is refused
// with an error instead of being recorded, so a hostile or buggy
// caller can never explode a metric's label space.
package secmetrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// CardinalityError is returned instead of silently truncating or
// silently dropping a metric observation when a label would exceed
// its budget: label addition beyond the cap yields an error, never
// silent truncation.
type CardinalityError struct {
	Metric  string
	Limit   int
	Current int
}

func (e *CardinalityError) Error() string {
	return fmt.Sprintf("cardinality budget exceeded for %q: %d/%d labels already tracked", e.Metric, e.Current, e.Limit)
}

// boundedVec wraps a CounterVec (or any *Vec sharing this shape) with
// an explicit set of observed label tuples, refusing new tuples once
// the budget is reached. A budget of 0 means unbounded (used for
// metrics with a closed label enumeration guaranteed not to exceed
// their size by construction, e.g. memory-op kind).
type boundedVec struct {
	mu      sync.Mutex
	name    string
	budget  int
	seen    map[string]struct{}
}

func newBoundedVec(name string, budget int) *boundedVec {
	return &boundedVec{name: name, budget: budget, seen: make(map[string]struct{})}
}

// admit returns an error if labelKey is new and admitting it would
// exceed the budget; otherwise it records the tuple (if new) and
// returns nil.
func (b *boundedVec) admit(labelKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.seen[labelKey]; ok {
		return nil
	}
	if b.budget > 0 && len(b.seen) >= b.budget {
		return &CardinalityError{Metric: b.name, Limit: b.budget, Current: len(b.seen)}
	}
	b.seen[labelKey] = struct{}{}
	return nil
}

func (b *boundedVec) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.seen)
}

// Closed-enumeration budgets. Fixed; not configuration.
const (
	ToolLabelBudget      = 20
	HTTPRouteLabelBudget = 30
	ErrorKindCardinality = 10
	MemoryOpCardinality  = 4
)

// DefaultLatencyBuckets spans [10µs, 10s] in a standard power-of-ten
// progression.
var DefaultLatencyBuckets = []float64{
	0.00001, 0.0001, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// Registry holds every cardinality-bounded metric the security core
// exposes. Construct one per process with NewRegistry; it registers
// its collectors with the supplied prometheus.Registerer (pass
// prometheus.DefaultRegisterer to expose via promhttp.Handler()).
type Registry struct {
	ActiveSessions prometheus.Gauge

	ToolExecutions     *prometheus.CounterVec
	ToolDuration       *prometheus.HistogramVec
	toolBudget         *boundedVec

	AgentErrors  *prometheus.CounterVec
	errorBudget  *boundedVec

	MemoryOps   *prometheus.CounterVec
	memoryBudget *boundedVec

	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	HTTPInFlight    prometheus.Gauge
	httpRouteBudget *boundedVec

	AuthAttempts       *prometheus.CounterVec
	AuthorizationChecks *prometheus.CounterVec
	PolicyViolations   *prometheus.CounterVec
	ResourceLimitHits  *prometheus.CounterVec
	RateLimitHits      *prometheus.CounterVec
}

// NewRegistry builds and registers every metric against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gatekeeper", Name: "active_sessions",
			Help: "Number of currently active agent sessions.",
		}),
		ToolExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatekeeper", Name: "tool_executions_total",
			Help: "Total tool invocations, by tool name.",
		}, []string{"tool_name"}),
		ToolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gatekeeper", Name: "tool_duration_seconds",
			Help: "Tool invocation duration, by tool name.", Buckets: DefaultLatencyBuckets,
		}, []string{"tool_name"}),
		toolBudget: newBoundedVec("tool_executions_total", ToolLabelBudget),

		AgentErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatekeeper", Name: "agent_errors_total",
			Help: "Agent errors, by error kind.",
		}, []string{"error_kind"}),
		errorBudget: newBoundedVec("agent_errors_total", ErrorKindCardinality),

		MemoryOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatekeeper", Name: "memory_ops_total",
			Help: "Memory-store operations, by kind.",
		}, []string{"op"}),
		memoryBudget: newBoundedVec("memory_ops_total", MemoryOpCardinality),

		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatekeeper", Name: "http_requests_total",
			Help: "HTTP requests, by route and status.",
		}, []string{"route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gatekeeper", Name: "http_request_duration_seconds",
			Help: "HTTP request duration, by route.", Buckets: DefaultLatencyBuckets,
		}, []string{"route"}),
		HTTPInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gatekeeper", Name: "http_requests_in_flight",
			Help: "HTTP requests currently in flight.",
		}),
		httpRouteBudget: newBoundedVec("http_requests_total", HTTPRouteLabelBudget),

		AuthAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatekeeper", Subsystem: "security", Name: "auth_attempts_total",
			Help: "Authentication attempts, by result.",
		}, []string{"result"}),
		AuthorizationChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatekeeper", Subsystem: "security", Name: "authz_checks_total",
			Help: "RBAC authorization checks, by result and tool.",
		}, []string{"result", "tool_name"}),
		PolicyViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatekeeper", Subsystem: "security", Name: "policy_violations_total",
			Help: "Policy gate violations, by violation type.",
		}, []string{"violation_type"}),
		ResourceLimitHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatekeeper", Subsystem: "security", Name: "resource_limit_exceeded_total",
			Help: "Resource-limit violations, by limit kind.",
		}, []string{"limit_kind"}),
		RateLimitHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatekeeper", Subsystem: "security", Name: "rate_limit_exceeded_total",
			Help: "Rate-limit violations, by limit type.",
		}, []string{"limit_type"}),
	}

	if reg != nil {
		reg.MustRegister(
			r.ActiveSessions, r.ToolExecutions, r.ToolDuration, r.AgentErrors, r.MemoryOps,
			r.HTTPRequests, r.HTTPDuration, r.HTTPInFlight, r.AuthAttempts,
			r.AuthorizationChecks, r.PolicyViolations, r.ResourceLimitHits, r.RateLimitHits,
		)
	}
	return r
}

// RecordToolExecution increments ToolExecutions and observes duration
// for toolName, refusing to do either if toolName would exceed the
// tool-name cardinality budget.
func (r *Registry) RecordToolExecution(toolName string, duration float64) error {
	if err := r.toolBudget.admit(toolName); err != nil {
		return err
	}
	r.ToolExecutions.WithLabelValues(toolName).Inc()
	r.ToolDuration.WithLabelValues(toolName).Observe(duration)
	return nil
}

// RecordAgentError increments AgentErrors for errorKind. errorKind
// must be one of the closed ten-member enumeration; callers never
// derive this label from user input.
func (r *Registry) RecordAgentError(errorKind string) error {
	if err := r.errorBudget.admit(errorKind); err != nil {
		return err
	}
	r.AgentErrors.WithLabelValues(errorKind).Inc()
	return nil
}

// RecordMemoryOp increments MemoryOps for op, one of the closed
// four-member enumeration (load, store, transaction, snapshot).
func (r *Registry) RecordMemoryOp(op string) error {
	if err := r.memoryBudget.admit(op); err != nil {
		return err
	}
	r.MemoryOps.WithLabelValues(op).Inc()
	return nil
}

// RecordHTTPRequest increments HTTPRequests and observes duration for
// route, refusing new routes past the route cardinality budget.
func (r *Registry) RecordHTTPRequest(route, status string, duration float64) error {
	if err := r.httpRouteBudget.admit(route); err != nil {
		return err
	}
	r.HTTPRequests.WithLabelValues(route, status).Inc()
	r.HTTPDuration.WithLabelValues(route).Observe(duration)
	return nil
}

// RecordAuthAttempt increments AuthAttempts for result
// ("success"|"expired"|"invalid"|"revoked").
func (r *Registry) RecordAuthAttempt(result string) {
	r.AuthAttempts.WithLabelValues(result).Inc()
}

// RecordAuthorizationCheck increments AuthorizationChecks for
// (result, toolName).
func (r *Registry) RecordAuthorizationCheck(result, toolName string) {
	r.AuthorizationChecks.WithLabelValues(result, toolName).Inc()
}

// RecordPolicyViolation increments PolicyViolations for violationType
// (e.g. "ssrf", "path_traversal").
func (r *Registry) RecordPolicyViolation(violationType string) {
	r.PolicyViolations.WithLabelValues(violationType).Inc()
}

// RecordResourceLimitHit increments ResourceLimitHits for limitKind.
func (r *Registry) RecordResourceLimitHit(limitKind string) {
	r.ResourceLimitHits.WithLabelValues(limitKind).Inc()
}

// RecordRateLimitHit increments RateLimitHits for limitType.
func (r *Registry) RecordRateLimitHit(limitType string) {
	r.RateLimitHits.WithLabelValues(limitType).Inc()
}
