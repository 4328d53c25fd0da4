// Package audit is the structured security-event pipeline every gate
// decision is recorded through — severity derivation, secret
// redaction, and a sliding-window violation tracker feeding lockdown
// triggers. Events are kept in a bounded in-memory log (10000-entry
// cap, newest-first read, the same shape pkg/authz keeps its access
// log in) and forwarded to pkg/logging for structured JSON emission.
package audit

import (
	"time"

	"github.com/corvidlabs/gatekeeper/pkg/ident"
)

// Severity is the audit pipeline's own four-level scale, distinct
// from pkg/security's CVSS-style float score — audit severities map
// directly to operational urgency (what a human watching the log
// should do), not to a vulnerability-scoring convention.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// PolicyViolationSeverity is the severity embedded in a
// PolicyViolation event before Derive maps it onto the audit Severity
// scale.
type PolicyViolationSeverity string

const (
	PolicyLow      PolicyViolationSeverity = "low"
	PolicyMedium   PolicyViolationSeverity = "medium"
	PolicyHigh     PolicyViolationSeverity = "high"
	PolicyCritical PolicyViolationSeverity = "critical"
)

// ResultKind is the closed tagged-variant of a gate decision.
type ResultKind string

const (
	ResultAllowed       ResultKind = "allowed"
	ResultDenied        ResultKind = "denied"
	ResultLimitExceeded ResultKind = "limit_exceeded"
	ResultError         ResultKind = "error"
)

// Result carries a gate decision plus whatever detail that decision
// produced.
type Result struct {
	Kind     ResultKind
	Reason   string
	ErrorMsg string
}

// EventKind is the closed tagged-variant of an audit event.
type EventKind string

const (
	EventValidationAttempt     EventKind = "validation_attempt"
	EventResourceLimitCheck    EventKind = "resource_limit_check"
	EventPolicyViolation       EventKind = "policy_violation"
	EventAuthenticationAttempt EventKind = "authentication_attempt"
	EventAuthorizationCheck    EventKind = "authorization_check"
	EventSuspiciousActivity    EventKind = "suspicious_activity"
	EventEmergencyAction       EventKind = "emergency_action"
)

// Event is one audit record. Only the fields relevant to Kind are
// populated by the component that emits it; the rest are zero.
type Event struct {
	ID            string
	Timestamp     time.Time
	Kind          EventKind
	SessionID     ident.SessionID
	AgentID       ident.AgentID
	ToolName      string
	Result        Result
	Severity      Severity
	ViolationType PolicyViolationSeverity // only set for EventPolicyViolation
	Confidence    float64                 // only set for EventSuspiciousActivity
	CorrelationID string                  // propagated from an upstream request, if any
	Metadata      map[string]string
}

// DeriveSeverity computes an event's severity from its kind, result,
// and (for policy violations / suspicious activity) embedded detail.
func DeriveSeverity(e Event) Severity {
	switch e.Kind {
	case EventPolicyViolation:
		switch e.ViolationType {
		case PolicyLow:
			return SeverityInfo
		case PolicyMedium:
			return SeverityWarning
		case PolicyHigh:
			return SeverityError
		case PolicyCritical:
			return SeverityCritical
		default:
			return SeverityWarning
		}
	case EventSuspiciousActivity:
		switch {
		case e.Confidence > 0.8:
			return SeverityCritical
		case e.Confidence > 0.6:
			return SeverityError
		default:
			return SeverityWarning
		}
	case EventEmergencyAction:
		return SeverityCritical
	}

	switch e.Result.Kind {
	case ResultDenied:
		return SeverityWarning
	case ResultLimitExceeded:
		return SeverityError
	case ResultError:
		return SeverityCritical
	case ResultAllowed:
		return SeverityInfo
	default:
		return SeverityInfo
	}
}
