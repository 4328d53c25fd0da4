// Package admission holds the per-agent priority queue and dispatcher
// that gate every tool invocation behind global and per-agent
// concurrency bounds, with non-blocking semaphore acquisition so a
// contended agent yields to another rather than blocking a worker.
package admission

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/corvidlabs/gatekeeper/pkg/ident"
)

// Priority is totally ordered: Critical > High > Normal > Low.
type Priority int8

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Mode selects how the manager reacts to sustained overload.
type Mode string

const (
	ModeStrict   Mode = "strict"
	ModeAdaptive Mode = "adaptive"
)

// Response is delivered to the caller exactly once over a request's
// one-shot channel.
type Response struct {
	Output string
	Err    error
}

// QueuedRequest is one admitted-to-the-queue tool call.
type QueuedRequest struct {
	ID         uuid.UUID
	AgentID    ident.AgentID
	ToolID     ident.ToolID
	Priority   Priority
	QueuedAt   time.Time
	Timeout    time.Duration
	Input      string
	responseCh chan Response
}

// Boundary error taxonomy: each carries the structured metadata
// callers need to implement retry/backoff.

type ErrQueueFull struct{ AgentID ident.AgentID; Size int }

func (e *ErrQueueFull) Error() string {
	return fmt.Sprintf("queue full for agent %s (size=%d)", e.AgentID, e.Size)
}

type ErrSystemOverloaded struct{ Load float64 }

func (e *ErrSystemOverloaded) Error() string {
	return fmt.Sprintf("system overloaded: load=%.3f", e.Load)
}

type ErrQueueTimeout struct {
	AgentID  ident.AgentID
	WaitedMs int64
}

func (e *ErrQueueTimeout) Error() string {
	return fmt.Sprintf("queue timeout for agent %s after %dms", e.AgentID, e.WaitedMs)
}

type ErrProcessingTimeout struct {
	AgentID ident.AgentID
	TookMs  int64
}

func (e *ErrProcessingTimeout) Error() string {
	return fmt.Sprintf("processing timeout for agent %s after %dms", e.AgentID, e.TookMs)
}

type ErrAgentNotFound struct{ AgentID ident.AgentID }

func (e *ErrAgentNotFound) Error() string {
	return fmt.Sprintf("agent %s not found during dispatch", e.AgentID)
}
