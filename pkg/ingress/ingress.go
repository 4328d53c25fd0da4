// Package ingress adapts a message bus into the admission pipeline:
// tool-call envelopes arriving on a bus subject are parsed, their
// identifiers validated, and handed to the security manager's full
// gate chain, with the result sent back over the bus. It is one of
// the ingress shapes producing core inputs; the gRPC interceptor in
// pkg/auth is the other. Both feed the same Execute path — there is
// deliberately a single dispatch route, not one per transport.
package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/corvidlabs/gatekeeper/pkg/admission"
	"github.com/corvidlabs/gatekeeper/pkg/bus"
	gkerrors "github.com/corvidlabs/gatekeeper/pkg/errors"
	"github.com/corvidlabs/gatekeeper/pkg/ident"
	"github.com/corvidlabs/gatekeeper/pkg/logging"
	"github.com/corvidlabs/gatekeeper/pkg/reliability"
	"github.com/corvidlabs/gatekeeper/pkg/secmanager"
)

// DefaultSubject is the bus subject tool-call envelopes arrive on.
const DefaultSubject = "gatekeeper.requests"

// DefaultResultSubject receives results for envelopes published
// without a reply inbox (fire-and-forget callers).
const DefaultResultSubject = "gatekeeper.results"

// Envelope is the wire shape of one tool-call request.
type Envelope struct {
	AgentID       string `json:"agent_id"`
	ToolID        string `json:"tool_id"`
	SessionID     string `json:"session_id,omitempty"`
	Input         string `json:"input"`
	Priority      string `json:"priority,omitempty"` // low | normal | high | critical
	TimeoutMs     int64  `json:"timeout_ms,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// ReplyError is the boundary error shape carried in a Reply.
type ReplyError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Status    int    `json:"status"`
	Retryable bool   `json:"retryable"`
}

// Reply is the wire shape of one tool-call response.
type Reply struct {
	TaskID        string      `json:"task_id"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	Result        string      `json:"result,omitempty"`
	Error         *ReplyError `json:"error,omitempty"`
}

// ParsePriority maps an envelope priority string onto the admission
// priority scale; unknown or empty values default to normal.
func ParsePriority(s string) admission.Priority {
	switch s {
	case "low":
		return admission.PriorityLow
	case "high":
		return admission.PriorityHigh
	case "critical":
		return admission.PriorityCritical
	default:
		return admission.PriorityNormal
	}
}

// Config tunes a Listener.
type Config struct {
	Subject       string
	ResultSubject string
	QueueGroup    string
	// ReplyRetry retries fire-and-forget result publishes on transient
	// bus failures. Nil disables retrying.
	ReplyRetry *reliability.RetryStrategy
}

// DefaultConfig returns the default subjects and a small publish-retry
// budget.
func DefaultConfig() Config {
	return Config{
		Subject:       DefaultSubject,
		ResultSubject: DefaultResultSubject,
		QueueGroup:    "gatekeeper-ingress",
		ReplyRetry: &reliability.RetryStrategy{
			MaxRetries: 3,
			BaseDelay:  50 * time.Millisecond,
			MaxDelay:   time.Second,
			Multiplier: 2.0,
			Retryable: func(err error) bool {
				return !errors.Is(err, bus.ErrClosed)
			},
		},
	}
}

// Listener consumes tool-call envelopes from a bus subject and runs
// them through the security manager.
type Listener struct {
	cfg    Config
	mgr    *secmanager.Manager
	bus    bus.MessageBus
	logger *logging.Logger // optional
	sub    bus.Subscription
}

// NewListener constructs a Listener over b. logger may be nil.
func NewListener(cfg Config, mgr *secmanager.Manager, b bus.MessageBus, logger *logging.Logger) *Listener {
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	if cfg.ResultSubject == "" {
		cfg.ResultSubject = DefaultResultSubject
	}
	if cfg.QueueGroup == "" {
		cfg.QueueGroup = "gatekeeper-ingress"
	}
	return &Listener{cfg: cfg, mgr: mgr, bus: b, logger: logger}
}

// Start subscribes and begins handling envelopes. The admission queue
// is the concurrency control; the handler itself blocks for the
// duration of each call, and the queue-group subscription spreads load
// across listener instances.
func (l *Listener) Start(ctx context.Context) error {
	sub, err := l.bus.QueueSubscribe(ctx, l.cfg.Subject, l.cfg.QueueGroup, func(msg *bus.Message) []byte {
		reply := l.handle(ctx, msg.Data)
		data, err := json.Marshal(reply)
		if err != nil {
			return nil
		}
		if msg.ReplyTo != "" {
			return data
		}
		l.publishResult(ctx, data)
		return nil
	})
	if err != nil {
		return err
	}
	l.sub = sub
	return nil
}

// Stop unsubscribes from the request subject.
func (l *Listener) Stop() error {
	if l.sub == nil {
		return nil
	}
	return l.sub.Unsubscribe()
}

func (l *Listener) publishResult(ctx context.Context, data []byte) {
	publish := func() error {
		return l.bus.Publish(ctx, l.cfg.ResultSubject, data)
	}
	var err error
	if l.cfg.ReplyRetry != nil {
		err = l.cfg.ReplyRetry.Execute(ctx, publish)
	} else {
		err = publish()
	}
	if err != nil && l.logger != nil {
		_ = l.logger.Error(logging.CategoryNetwork, "result_publish_failed", err.Error(), nil)
	}
}

func (l *Listener) handle(ctx context.Context, data []byte) Reply {
	taskID := string(ident.GenerateRequestID())

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Reply{TaskID: taskID, Error: &ReplyError{
			Code:    string(gkerrors.ErrCodeInvalidInput),
			Message: "malformed request envelope",
			Status:  400,
		}}
	}

	reply := Reply{TaskID: taskID, CorrelationID: env.CorrelationID}

	agentID, err := ident.ParseAgentID(env.AgentID)
	if err != nil {
		reply.Error = replyError(gkerrors.Wrap(err, gkerrors.ErrCodeInvalidInput, "invalid agent_id"))
		return reply
	}
	toolID, err := ident.ParseToolID(env.ToolID)
	if err != nil {
		reply.Error = replyError(gkerrors.Wrap(err, gkerrors.ErrCodeInvalidInput, "invalid tool_id"))
		return reply
	}
	sessionID := ident.GenerateSessionID()
	if env.SessionID != "" {
		sessionID, err = ident.ParseSessionID(env.SessionID)
		if err != nil {
			reply.Error = replyError(gkerrors.Wrap(err, gkerrors.ErrCodeInvalidInput, "invalid session_id"))
			return reply
		}
	}

	secCtx := l.mgr.CreateContext(agentID, toolID, sessionID)
	secCtx.CorrelationID = env.CorrelationID

	timeout := time.Duration(env.TimeoutMs) * time.Millisecond
	out, err := l.mgr.Execute(ctx, secCtx, ParsePriority(env.Priority), env.Input, timeout)
	if err != nil {
		reply.Error = replyError(err)
		if l.logger != nil {
			_ = l.logger.Warn(logging.CategoryAdmission, "request_rejected", err.Error(), map[string]any{
				"agent_id": env.AgentID,
				"tool_id":  env.ToolID,
			})
		}
		return reply
	}
	reply.Result = out
	return reply
}

func replyError(err error) *ReplyError {
	return &ReplyError{
		Code:      string(gkerrors.GetCode(err)),
		Message:   err.Error(),
		Status:    gkerrors.TransportCode(err),
		Retryable: gkerrors.IsRetryable(err),
	}
}
