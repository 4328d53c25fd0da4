// Package secmanager is the composition root of the gatekeeper: the
// only package that imports every subsystem and threads them into the
// per-call sequence every tool invocation traverses — build a
// SecurityContext from the effective policy, validate input, gate
// paths/URLs, authenticate, check resources and rate limits, admit
// into the dispatch queue, execute, audit. Execute is authored as the
// same kind of "wrap a plain execution function with concerns in a
// fixed order" composition pkg/tool's middleware chain uses for
// individual tools, generalized to the full security-gate ordering.
package secmanager

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/corvidlabs/gatekeeper/pkg/admission"
	"github.com/corvidlabs/gatekeeper/pkg/approval"
	"github.com/corvidlabs/gatekeeper/pkg/audit"
	"github.com/corvidlabs/gatekeeper/pkg/auth"
	"github.com/corvidlabs/gatekeeper/pkg/authz"
	gkerrors "github.com/corvidlabs/gatekeeper/pkg/errors"
	"github.com/corvidlabs/gatekeeper/pkg/ident"
	"github.com/corvidlabs/gatekeeper/pkg/logging"
	"github.com/corvidlabs/gatekeeper/pkg/reliability"
	"github.com/corvidlabs/gatekeeper/pkg/reslimit"
	"github.com/corvidlabs/gatekeeper/pkg/risk"
	"github.com/corvidlabs/gatekeeper/pkg/secconfig"
	"github.com/corvidlabs/gatekeeper/pkg/secmetrics"
	"github.com/corvidlabs/gatekeeper/pkg/secpolicy"
	"github.com/corvidlabs/gatekeeper/pkg/tool"
	"github.com/corvidlabs/gatekeeper/pkg/validate"
)

// SecurityContext is the immutable, per-invocation bundle every gate
// and the dispatcher consult. It is created by CreateContext, never
// mutated during execution, and dropped after the final audit
// emission.
type SecurityContext struct {
	AgentID       ident.AgentID
	ToolID        ident.ToolID
	SessionID     ident.SessionID
	Policy        secpolicy.SecurityPolicy
	Limits        reslimit.ResourceLimits
	CorrelationID string
}

// ToolRegistry resolves a ToolID to the collaborator that executes it.
// The registry itself, and its contents, are an embedder's concern;
// the manager only needs to look one up by name.
type ToolRegistry interface {
	Lookup(id ident.ToolID) (tool.Tool, bool)
}

// Manager is the security manager: the single composition root that
// owns a Config and every subsystem instance it configures, and
// exposes CreateContext, the individual gates, and Execute.
type Manager struct {
	cfg *secconfig.Config

	tracker     *reslimit.Tracker
	rateLimiter *reslimit.RateLimiter
	admission   *admission.Manager
	auditLog    *audit.Emitter
	metrics     *secmetrics.Registry
	tokens      *auth.TokenManager  // optional; nil if auth is not configured
	tools       ToolRegistry
	logger      *logging.Logger     // optional; may be nil
	risk        *risk.Engine        // optional; advisory risk score feeding Authorize
	acl         *authz.ToolApprover // optional; role-based tool grants consulted by Authorize
	chain       tool.Middleware

	approvalMode approval.Mode

	breakerMu sync.Mutex
	breakers  map[ident.ToolID]*reliability.CircuitBreaker

	lockdownActive atomic.Bool
}

// Deps bundles the collaborators a Manager composes. Tokens, Logger,
// Risk, and ACL may be left nil: authentication, operational logging,
// risk scoring, and role-based tool grants are all optional concerns.
type Deps struct {
	Config      *secconfig.Config
	Tracker     *reslimit.Tracker
	RateLimiter *reslimit.RateLimiter
	Admission   *admission.Manager
	AuditLog    *audit.Emitter
	Metrics     *secmetrics.Registry
	Tokens      *auth.TokenManager
	Tools       ToolRegistry
	Logger      *logging.Logger
	Risk        *risk.Engine
	ACL         *authz.ToolApprover

	// ApprovalMode resolves risk-layer "requires approval" flags. The
	// zero value is approval.ModeAuto: flags are recorded as advisory
	// audit events and never block.
	ApprovalMode approval.Mode

	// Middleware overrides the execution chain wrapped around every
	// tool invocation. Nil installs the default chain: panic recovery
	// plus a 1MB result-size limit.
	Middleware []tool.Middleware
}

const defaultResultSizeLimit = 1 << 20

// New constructs a Manager from deps and wires the admission manager's
// executor to run tool calls through the resource tracker and audit
// pipeline. Start must still be called (on deps.Admission) for
// dispatch workers to run.
func New(deps Deps) *Manager {
	mw := deps.Middleware
	if mw == nil {
		mw = []tool.Middleware{
			tool.PanicRecovery(),
			tool.ResultSizeLimit(defaultResultSizeLimit, "... [truncated]"),
		}
	}
	m := &Manager{
		cfg:          deps.Config,
		tracker:      deps.Tracker,
		rateLimiter:  deps.RateLimiter,
		admission:    deps.Admission,
		auditLog:     deps.AuditLog,
		metrics:      deps.Metrics,
		tokens:       deps.Tokens,
		tools:        deps.Tools,
		logger:       deps.Logger,
		risk:         deps.Risk,
		acl:          deps.ACL,
		chain:        tool.Chain(mw...),
		approvalMode: deps.ApprovalMode,
		breakers:     make(map[ident.ToolID]*reliability.CircuitBreaker),
	}
	if deps.Config != nil && deps.Config.Emergency.LockdownEnabled {
		m.lockdownActive.Store(true)
	}
	if m.admission != nil {
		m.admission.SetExecutor(m.runTool)
	}
	return m
}

// CreateContext derives the effective policy for (agentID, toolID)
// from the global policy masked by the tool's override, and snapshots
// resource limits.
func (m *Manager) CreateContext(agentID ident.AgentID, toolID ident.ToolID, sessionID ident.SessionID) *SecurityContext {
	var override *secpolicy.ToolOverride
	if ov, ok := m.cfg.Overrides[string(toolID)]; ok {
		override = &ov
	}
	return &SecurityContext{
		AgentID:   agentID,
		ToolID:    toolID,
		SessionID: sessionID,
		Policy:    secpolicy.EffectivePolicy(m.cfg.Policy, override),
		Limits:    m.resourceLimits(),
	}
}

func (m *Manager) resourceLimits() reslimit.ResourceLimits {
	cpu, ok := reslimit.NewCpuPercent(m.cfg.Resources.MaxCPUPercent)
	if !ok {
		cpu = reslimit.NewCpuPercentUnchecked(100)
	}
	return reslimit.ResourceLimits{
		MaxMemoryMB:      m.cfg.Resources.MaxMemoryMB,
		MaxCPUPercent:    cpu,
		MaxExecutionTime: time.Duration(m.cfg.Resources.MaxExecutionSeconds) * time.Second,
		MaxConcurrentOps: m.cfg.Resources.MaxConcurrentOps,
		MaxOpenFiles:     m.cfg.Resources.MaxOpenFiles,
		MaxDiskUsageMB:   m.cfg.Resources.MaxDiskUsageMB,
	}
}

// ValidateOperation runs the input validator against ctx's gates and
// emits the resulting audit event. Development mode's "disable gates"
// knobs never apply here: only the path/URL/resource gates are
// development-skippable.
func (m *Manager) ValidateOperation(ctx *SecurityContext, input string) error {
	err := validate.Input(input, validate.StrictGates())
	if err != nil {
		m.auditReject(ctx, audit.EventValidationAttempt, "input rejected", err)
		m.recordViolation(ctx, "input_validation")
		return gkerrors.Wrap(err, gkerrors.ErrCodeValidationSuspiciousActivity, "input rejected by validator").WithRetryable(false)
	}
	m.auditAllow(ctx, audit.EventValidationAttempt)
	return nil
}

// AuthorizePath canonicalizes raw and checks it against ctx's
// filesystem policy, returning the type-state CanonicalPath that
// proves the path was gated — a tool must accept this type, never a
// raw string. Skipped only in development mode with the path gate
// explicitly disabled.
func (m *Manager) AuthorizePath(ctx *SecurityContext, raw string) (validate.CanonicalPath, error) {
	if m.cfg.Development.Enabled && m.cfg.Development.DisablePathGate {
		return validate.CanonicalPath{}, nil
	}
	if ctx.Policy.FS.Access.Disabled {
		denyErr := gkerrors.New(gkerrors.ErrCodePolicyPathNotAllowed, "filesystem access disabled for this tool")
		m.auditReject(ctx, audit.EventPolicyViolation, "filesystem disabled", denyErr)
		m.recordViolation(ctx, "path_not_allowed")
		return validate.CanonicalPath{}, denyErr
	}
	cp, err := validate.ValidatePath(raw, validate.PathPolicy{
		AllowPaths:      ctx.Policy.FS.AllowPaths,
		DenyPatterns:    ctx.Policy.FS.DenyPatterns,
		SymlinkBehavior: validate.SymlinkBehavior(ctx.Policy.FS.Access.SymlinkBehavior),
	})
	if err != nil {
		m.auditReject(ctx, audit.EventPolicyViolation, "path rejected", err)
		m.recordViolation(ctx, "path_not_allowed")
		return cp, gkerrors.Wrap(err, gkerrors.ErrCodePolicyPathNotAllowed, "path rejected by policy")
	}
	if ctx.Policy.FS.MaxFileSizeBy > 0 {
		if err := validate.ValidateFileSize(cp, ctx.Policy.FS.MaxFileSizeBy); err != nil {
			m.auditReject(ctx, audit.EventPolicyViolation, "file size exceeded", err)
			m.recordViolation(ctx, "file_size_exceeded")
			return cp, gkerrors.Wrap(err, gkerrors.ErrCodePolicyFileSizeExceeded, "file exceeds max size")
		}
	}
	m.auditAllow(ctx, audit.EventPolicyViolation)
	return cp, nil
}

// AuthorizeURL parses and gates raw against ctx's HTTP policy,
// returning the type-state ValidatedUrl that proves the SSRF/scheme
// checks passed. Skipped only in development mode with the domain
// gate explicitly disabled.
func (m *Manager) AuthorizeURL(ctx *SecurityContext, raw string) (validate.ValidatedUrl, error) {
	if m.cfg.Development.Enabled && m.cfg.Development.DisableDomainGate {
		return validate.ValidatedUrl{}, nil
	}
	if ctx.Policy.HTTP.Mode == secpolicy.HTTPDisabled {
		denyErr := gkerrors.New(gkerrors.ErrCodePolicyDomainNotAllowed, "http access disabled for this tool")
		m.auditReject(ctx, audit.EventPolicyViolation, "http disabled", denyErr)
		m.recordViolation(ctx, "ssrf")
		return validate.ValidatedUrl{}, denyErr
	}
	includeLocal := ctx.Policy.HTTP.IncludeLocal || ctx.Policy.HTTP.Mode == secpolicy.HTTPLocalOnly
	filter := validate.DomainFilter{
		AllowAll: ctx.Policy.HTTP.DomainFilter.Mode == secpolicy.DomainFilterAllowAll,
		AllowSet: ctx.Policy.HTTP.DomainFilter.AllowSet,
		DenySet:  ctx.Policy.HTTP.DomainFilter.DenySet,
	}
	u, err := validate.ValidateURL(raw, filter, includeLocal)
	if err != nil {
		m.auditReject(ctx, audit.EventPolicyViolation, "url rejected", err)
		m.recordViolation(ctx, "ssrf")
		return u, gkerrors.Wrap(err, gkerrors.ErrCodePolicyDomainNotAllowed, "url rejected by domain gate")
	}
	m.auditAllow(ctx, audit.EventPolicyViolation)
	return u, nil
}

// ScanOutput classifies tool-produced bytes before they are returned
// to an agent, when ctx's filesystem policy has content scanning
// enabled. Unsafe content comes back redacted alongside a policy
// error; with scanning disabled the bytes pass through untouched.
func (m *Manager) ScanOutput(ctx *SecurityContext, data []byte) (string, error) {
	if ctx.Policy.FS.Access.Disabled || !ctx.Policy.FS.Access.ContentScanning {
		return string(data), nil
	}
	res := validate.ScanContent(data)
	if res.Safe {
		return res.Content, nil
	}
	m.auditReject(ctx, audit.EventPolicyViolation, fmt.Sprintf("unsafe content: %v", res.Violations), nil)
	m.recordViolation(ctx, "unsafe_content")
	return res.RedactedContent, gkerrors.New(gkerrors.ErrCodeValidationSecretInInput, "tool output failed content scan").WithRetryable(false)
}

// Authenticate verifies accessToken and returns the reconstructed
// Principal.
func (m *Manager) Authenticate(ctx *SecurityContext, accessToken string) (auth.Principal, error) {
	if m.tokens == nil {
		return auth.Principal{}, gkerrors.New(gkerrors.ErrCodeAuthInvalidToken, "authentication not configured")
	}
	p, err := m.tokens.Authenticate(accessToken)
	if err != nil {
		m.auditReject(ctx, audit.EventAuthenticationAttempt, "authentication failed", err)
		if m.metrics != nil {
			m.metrics.RecordAuthAttempt("denied")
		}
		return auth.Principal{}, gkerrors.Wrap(err, gkerrors.ErrCodeAuthInvalidToken, "authentication failed")
	}
	m.auditAllow(ctx, audit.EventAuthenticationAttempt)
	if m.metrics != nil {
		m.metrics.RecordAuthAttempt("allowed")
	}
	return p, nil
}

// Authorize performs the RBAC check: principal must hold requiredRole
// (and, when a role-based tool ACL is configured, a role granting
// ctx.ToolID) to invoke the tool. When a risk engine is configured it
// also consults the advisory risk score: a rule whose Decision is
// ActionReject denies the call outright even for an otherwise-
// permitted role, and a RequiresApproval verdict is resolved by the
// configured autonomy mode — advisory in auto mode, denying in ask
// mode.
func (m *Manager) Authorize(ctx *SecurityContext, principal auth.Principal, requiredRole string) error {
	allowed := requiredRole == "" || principal.HasRole(requiredRole)
	denyReason := fmt.Sprintf("principal %s lacks role %q", principal.ID, requiredRole)

	if allowed && m.acl != nil {
		if err := m.acl.CheckPrincipal(principal, string(ctx.ToolID)); err != nil {
			allowed = false
			denyReason = err.Error()
		}
	}

	if allowed && m.risk != nil {
		eval := m.risk.Evaluate(risk.ToolCall{
			Name:      string(ctx.ToolID),
			SessionID: string(ctx.SessionID),
		})
		if eval.Decision == risk.ActionReject {
			allowed = false
			denyReason = fmt.Sprintf("risk policy rejected tool %q (score %d, rule %q)", ctx.ToolID, eval.RiskScore, eval.MatchedRule)
		} else if eval.RequiresApproval {
			res := approval.Resolve(m.approvalMode, approval.Request{
				Operation: approval.ClassifyTool(string(ctx.ToolID)),
				Tool:      string(ctx.ToolID),
				RiskScore: eval.RiskScore,
				Rule:      eval.MatchedRule,
			})
			if res.Decision == approval.DecisionDeny {
				allowed = false
				denyReason = res.Reason
			} else {
				m.emit(ctx, audit.EventAuthorizationCheck, audit.Result{
					Kind:   audit.ResultAllowed,
					Reason: fmt.Sprintf("risk score %d flagged for approval (rule %q): %s", eval.RiskScore, eval.MatchedRule, res.Reason),
				})
			}
		}
	}

	if m.metrics != nil {
		result := "denied"
		if allowed {
			result = "allowed"
		}
		m.metrics.RecordAuthorizationCheck(result, string(ctx.ToolID))
	}
	if !allowed {
		err := gkerrors.New(gkerrors.ErrCodeAuthNotAuthorized, denyReason)
		m.auditReject(ctx, audit.EventAuthorizationCheck, denyReason, err)
		return err
	}
	m.auditAllow(ctx, audit.EventAuthorizationCheck)
	return nil
}

// checkLockdown denies any tool not in the lockdown allow-set while
// lockdown is active.
func (m *Manager) checkLockdown(ctx *SecurityContext) error {
	if !m.lockdownActive.Load() {
		return nil
	}
	if m.cfg.ToolAllowedInLockdown(string(ctx.ToolID)) {
		return nil
	}
	err := gkerrors.New(gkerrors.ErrCodeAuthNotAuthorized, "tool invocation restricted during emergency lockdown").WithRetryable(false)
	m.auditReject(ctx, audit.EventEmergencyAction, "lockdown denied tool", err)
	return err
}

// EnterLockdown activates emergency lockdown manually or via an
// auto-lockdown trigger evaluation elsewhere in the host.
func (m *Manager) EnterLockdown() {
	if m.lockdownActive.CompareAndSwap(false, true) {
		if m.logger != nil {
			_ = m.logger.Error(logging.CategorySecurity, "lockdown_entered", "emergency lockdown activated", nil)
		}
	}
}

// ExitLockdown deactivates emergency lockdown.
func (m *Manager) ExitLockdown() {
	m.lockdownActive.Store(false)
}

// InLockdown reports whether lockdown is currently active.
func (m *Manager) InLockdown() bool { return m.lockdownActive.Load() }

// Execute orchestrates the full per-call chain: lockdown check, input
// validation, rate limiting, admission, dispatch, audit. The caller
// has already built ctx via CreateContext. input/output are opaque
// strings per the ingress envelope.
func (m *Manager) Execute(parentCtx context.Context, ctx *SecurityContext, priority admission.Priority, input string, timeout time.Duration) (string, error) {
	if err := m.checkLockdown(ctx); err != nil {
		return "", err
	}
	if err := m.ValidateOperation(ctx, input); err != nil {
		return "", err
	}
	if m.rateLimiter != nil {
		if err := m.rateLimiter.CheckRateLimit(string(ctx.AgentID)); err != nil {
			m.auditReject(ctx, audit.EventResourceLimitCheck, "rate limit exceeded", err)
			if m.metrics != nil {
				m.metrics.RecordRateLimitHit("per_agent")
			}
			return "", gkerrors.Wrap(err, gkerrors.ErrCodeResourceRateLimitExceeded, "rate limit exceeded").WithRetryable(true)
		}
	}
	if m.admission == nil {
		return "", gkerrors.New(gkerrors.ErrCodeInternal, "admission manager not configured")
	}

	_, respCh, err := m.admission.QueueRequest(parentCtx, ctx.AgentID, ctx.ToolID, priority, input, timeout)
	if err != nil {
		return "", translateAdmissionError(err)
	}

	select {
	case resp := <-respCh:
		if resp.Err != nil {
			return "", translateAdmissionError(resp.Err)
		}
		return resp.Output, nil
	case <-parentCtx.Done():
		return "", parentCtx.Err()
	}
}

func translateAdmissionError(err error) error {
	if gkErr, ok := err.(*gkerrors.Error); ok {
		// Executor failures arrive already coded; re-wrapping them as
		// internal would lose the boundary code.
		return gkErr
	}
	switch err.(type) {
	case *admission.ErrQueueFull:
		return gkerrors.Wrap(err, gkerrors.ErrCodeAdmissionQueueFull, "admission queue full").WithRetryable(true)
	case *admission.ErrSystemOverloaded:
		return gkerrors.Wrap(err, gkerrors.ErrCodeAdmissionSystemOverloaded, "system overloaded").WithRetryable(true)
	case *admission.ErrQueueTimeout:
		return gkerrors.Wrap(err, gkerrors.ErrCodeAdmissionQueueTimeout, "queue timeout").WithRetryable(true)
	case *admission.ErrProcessingTimeout:
		return gkerrors.Wrap(err, gkerrors.ErrCodeAdmissionProcessingTimeout, "processing timeout").WithRetryable(true)
	case *admission.ErrAgentNotFound:
		return gkerrors.Wrap(err, gkerrors.ErrCodeAdmissionAgentNotFound, "agent not found internally").WithRetryable(false)
	default:
		return gkerrors.Wrap(err, gkerrors.ErrCodeInternal, "admission failure")
	}
}

// breakerFor returns the circuit breaker guarding toolID, creating it
// on first use. A tool that fails repeatedly trips its own breaker
// without affecting other tools.
func (m *Manager) breakerFor(toolID ident.ToolID) *reliability.CircuitBreaker {
	m.breakerMu.Lock()
	defer m.breakerMu.Unlock()
	cb, ok := m.breakers[toolID]
	if !ok {
		cb = reliability.NewCircuitBreaker(reliability.CircuitBreakerConfig{
			MaxFailures:      5,
			Timeout:          30 * time.Second,
			SuccessThreshold: 2,
		})
		m.breakers[toolID] = cb
	}
	return cb
}

// runTool is installed as the admission.Manager's Executor: it
// acquires a resource-tracker operation guard (released on every exit
// path, including panic, via the deferred call below), checks resource
// limits, runs the tool through the middleware chain and its circuit
// breaker, and emits the audit/metrics records.
func (m *Manager) runTool(ctx context.Context, agentID ident.AgentID, toolID ident.ToolID, input string) (out string, execErr error) {
	if m.tracker != nil {
		if !(m.cfg.Development.Enabled && m.cfg.Development.DisableResourceGate) {
			if err := m.tracker.CheckLimits(agentID); err != nil {
				if m.metrics != nil {
					m.metrics.RecordResourceLimitHit(string(limitKind(err)))
				}
				return "", gkerrors.Wrap(err, gkerrors.ErrCodeResourceConcurrencyExceeded, "resource limit exceeded")
			}
		}
	}

	var guard *reslimit.OperationGuard
	if m.tracker != nil {
		guard = m.tracker.StartOperation(agentID, func(time.Duration) {})
	}
	defer func() {
		if guard != nil {
			guard.Release()
		}
		if r := recover(); r != nil {
			execErr = fmt.Errorf("tool %s panicked: %v", toolID, r)
			out = ""
		}
	}()

	if m.tools == nil {
		return "", gkerrors.New(gkerrors.ErrCodeToolNotFound, "no tool registry configured")
	}
	t, ok := m.tools.Lookup(toolID)
	if !ok {
		return "", gkerrors.New(gkerrors.ErrCodeToolNotFound, fmt.Sprintf("tool %q not registered", toolID))
	}

	exec := m.chain(func(ec *tool.ExecutionContext) (*tool.Result, error) {
		return ec.Tool.Execute(ec.Params)
	})
	ec := &tool.ExecutionContext{
		Context:   ctx,
		ToolName:  string(toolID),
		Tool:      t,
		AgentID:   string(agentID),
		Params:    map[string]any{"input": input},
		StartTime: time.Now(),
	}

	var result *tool.Result
	cbErr := m.breakerFor(toolID).Execute(func() error {
		var err error
		result, err = exec(ec)
		if err != nil {
			return err
		}
		if result == nil || !result.Success {
			msg := "tool execution failed"
			if result != nil && result.Error != "" {
				msg = result.Error
			}
			return fmt.Errorf("%s", msg)
		}
		return nil
	})
	if cbErr != nil {
		if m.metrics != nil {
			m.metrics.RecordAgentError("tool_execution")
		}
		if _, open := cbErr.(*reliability.CircuitOpenError); open {
			return "", gkerrors.Wrap(cbErr, gkerrors.ErrCodeToolExecution, "tool circuit open").WithRetryable(true)
		}
		return "", cbErr
	}

	if m.metrics != nil {
		_ = m.metrics.RecordToolExecution(string(toolID), time.Since(ec.StartTime).Seconds())
	}
	if data, ok := result.Data["output"].(string); ok {
		return data, nil
	}
	js, err := tool.ToJSON(result)
	if err != nil {
		return "", err
	}
	return js, nil
}

func limitKind(err error) string {
	if le, ok := err.(*reslimit.LimitError); ok {
		return string(le.Kind)
	}
	return "unknown"
}

func (m *Manager) auditAllow(ctx *SecurityContext, kind audit.EventKind) {
	m.emit(ctx, kind, audit.Result{Kind: audit.ResultAllowed})
}

func (m *Manager) auditReject(ctx *SecurityContext, kind audit.EventKind, reason string, err error) {
	m.emit(ctx, kind, audit.Result{Kind: audit.ResultDenied, Reason: reason, ErrorMsg: errString(err)})
}

func (m *Manager) emit(ctx *SecurityContext, kind audit.EventKind, result audit.Result) {
	if m.auditLog == nil {
		return
	}
	var agentID ident.AgentID
	var toolID ident.ToolID
	var sessionID ident.SessionID
	correlationID := ""
	if ctx != nil {
		agentID = ctx.AgentID
		toolID = ctx.ToolID
		sessionID = ctx.SessionID
		correlationID = ctx.CorrelationID
	}
	m.auditLog.Emit(audit.Event{
		ID:            ident.GenerateULID(),
		Timestamp:     time.Now(),
		Kind:          kind,
		SessionID:     sessionID,
		AgentID:       agentID,
		ToolName:      string(toolID),
		Result:        result,
		CorrelationID: correlationID,
	})
}

func (m *Manager) recordViolation(ctx *SecurityContext, violationType string) {
	if m.metrics != nil {
		m.metrics.RecordPolicyViolation(violationType)
	}
	if m.auditLog == nil || ctx == nil {
		return
	}
	if suspicious := m.auditLog.Violations().Record(violationType, string(ctx.ToolID)); suspicious {
		m.emit(ctx, audit.EventSuspiciousActivity, audit.Result{Kind: audit.ResultDenied, Reason: "repeated violations"})
		if m.cfg.HasLockdownTrigger(secconfig.TriggerRepeatedViolations) {
			m.EnterLockdown()
		}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
