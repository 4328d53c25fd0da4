package audit

import (
	"sync"

	"github.com/corvidlabs/gatekeeper/pkg/ident"
	"github.com/corvidlabs/gatekeeper/pkg/logging"
)

// Format selects how an event is rendered before being handed to the
// backend sink.
type Format string

const (
	FormatJSON       Format = "json"
	FormatStructured Format = "structured"
	FormatText       Format = "text"
)

const maxAuditLog = 10000

// severityRank orders Severity for min-level filtering.
var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityWarning:  1,
	SeverityError:    2,
	SeverityCritical: 3,
}

// Emitter is the backend-neutral audit sink: it filters by configured
// minimum severity, redacts secrets, keeps a bounded in-memory log
// (capped at 10000 entries, oldest dropped first) for inspection and
// testing, and forwards every admitted event to a structured logger.
type Emitter struct {
	mu        sync.Mutex
	minLevel  Severity
	redactor  *SecretRedactor
	logger    *logging.Logger
	format    Format
	events    []Event
	tracker   *ViolationTracker
}

// NewEmitter constructs an Emitter. logger may be nil, in which case
// events are kept only in the in-memory log (useful for tests).
func NewEmitter(minLevel Severity, logger *logging.Logger, format Format) *Emitter {
	return &Emitter{
		minLevel: minLevel,
		redactor: NewSecretRedactor(),
		logger:   logger,
		format:   format,
		tracker:  NewViolationTracker(),
	}
}

// Emit records e if its severity clears the configured floor,
// redacting its metadata and tool name first. Severity is derived
// from e if e.Severity is empty.
func (em *Emitter) Emit(e Event) {
	if e.Severity == "" {
		e.Severity = DeriveSeverity(e)
	}
	if severityRank[e.Severity] < severityRank[em.minLevel] {
		return
	}

	e.Metadata = em.redactor.RedactMetadata(e.Metadata)
	e.ToolName = em.redactor.Redact(e.ToolName)
	e.Result.Reason = em.redactor.Redact(e.Result.Reason)
	e.Result.ErrorMsg = em.redactor.Redact(e.Result.ErrorMsg)

	if e.Kind == EventPolicyViolation {
		em.tracker.Record(string(e.ViolationType), e.ToolName)
	}

	em.mu.Lock()
	em.events = append(em.events, e)
	if len(em.events) > maxAuditLog {
		em.events = em.events[len(em.events)-maxAuditLog:]
	}
	em.mu.Unlock()

	em.forward(e)
}

func (em *Emitter) forward(e Event) {
	if em.logger == nil {
		return
	}
	_ = em.logger.Log(logging.Event{
		Timestamp: e.Timestamp,
		Level:     severityToLevel(e.Severity),
		Category:  logging.CategoryAudit,
		EventType: string(e.Kind),
		SessionID: string(e.SessionID),
		Message:   e.Result.Reason,
		Details: map[string]any{
			"agent_id":       string(e.AgentID),
			"tool_name":      e.ToolName,
			"result":         string(e.Result.Kind),
			"correlation_id": e.CorrelationID,
		},
		Metadata: e.Metadata,
	})
}

func severityToLevel(s Severity) logging.Level {
	switch s {
	case SeverityInfo:
		return logging.LevelInfo
	case SeverityWarning:
		return logging.LevelWarn
	case SeverityError:
		return logging.LevelError
	case SeverityCritical:
		return logging.LevelCritical
	default:
		return logging.LevelInfo
	}
}

// Recent returns the last n recorded events, newest first (mirrors
// ToolApprover.GetAuditLog's newest-first read idiom).
func (em *Emitter) Recent(n int) []Event {
	em.mu.Lock()
	defer em.mu.Unlock()
	out := make([]Event, 0, n)
	for i := len(em.events) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, em.events[i])
	}
	return out
}

// ForAgent returns up to limit recent events for agentID, newest
// first.
func (em *Emitter) ForAgent(agentID ident.AgentID, limit int) []Event {
	em.mu.Lock()
	defer em.mu.Unlock()
	out := make([]Event, 0, limit)
	for i := len(em.events) - 1; i >= 0 && len(out) < limit; i-- {
		if em.events[i].AgentID == agentID {
			out = append(out, em.events[i])
		}
	}
	return out
}

// Violations exposes the emitter's violation tracker so lockdown
// trigger evaluation can query repeat-offender state.
func (em *Emitter) Violations() *ViolationTracker { return em.tracker }
