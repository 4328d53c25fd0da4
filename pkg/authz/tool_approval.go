package authz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/corvidlabs/gatekeeper/pkg/auth"
)

var (
	ErrToolNotAllowed = fmt.Errorf("tool not allowed for agent capabilities")
)

// ToolPolicy defines which tools are allowed for each capability
type ToolPolicy struct {
	mu    sync.RWMutex
	rules map[string][]string // capability -> allowed tools
}

// NewToolPolicy creates a new empty tool policy
func NewToolPolicy() *ToolPolicy {
	return &ToolPolicy{
		rules: make(map[string][]string),
	}
}

// AddRule adds a policy rule allowing certain tools for a capability
func (tp *ToolPolicy) AddRule(capability string, tools []string) {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	tp.rules[capability] = append(tp.rules[capability], tools...)
}

// RemoveRule removes all tools for a capability
func (tp *ToolPolicy) RemoveRule(capability string) {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	delete(tp.rules, capability)
}

// IsToolAllowed checks if a single capability allows a tool
func (tp *ToolPolicy) IsToolAllowed(capability string, tool string) bool {
	tp.mu.RLock()
	defer tp.mu.RUnlock()

	tools, exists := tp.rules[capability]
	if !exists {
		return false
	}

	// Check for wildcard (*) which allows all tools
	for _, t := range tools {
		if t == "*" || t == tool {
			return true
		}
	}

	return false
}

// IsToolAllowedForCapabilities checks if any of the given capabilities allow a tool
func (tp *ToolPolicy) IsToolAllowedForCapabilities(capabilities []string, tool string) bool {
	for _, cap := range capabilities {
		if tp.IsToolAllowed(cap, tool) {
			return true
		}
	}
	return false
}

// GetAllowedTools returns all tools allowed for a capability
func (tp *ToolPolicy) GetAllowedTools(capability string) []string {
	tp.mu.RLock()
	defer tp.mu.RUnlock()

	tools, exists := tp.rules[capability]
	if !exists {
		return []string{}
	}

	// Make a copy to avoid mutation
	result := make([]string, len(tools))
	copy(result, tools)
	return result
}

// ToolApprover enforces tool access policies for agents
type ToolApprover struct {
	policy   *ToolPolicy
	mu       sync.RWMutex
	auditLog []AuditEntry
}

// AuditEntry records a tool access attempt
type AuditEntry struct {
	Timestamp time.Time
	AgentID   string
	ToolName  string
	Allowed   bool
	Reason    string
}

// NewToolApprover creates a new tool approver with the given policy
func NewToolApprover(policy *ToolPolicy) *ToolApprover {
	return &ToolApprover{
		policy:   policy,
		auditLog: make([]AuditEntry, 0),
	}
}

// CheckToolAccess verifies that an agent can use a specific tool
func (ta *ToolApprover) CheckToolAccess(ctx context.Context, tool string) error {
	claims, ok := auth.ClaimsFromContext(ctx)
	if !ok {
		ta.logAccess("unknown", tool, false, "no authentication claims")
		return auth.ErrInsufficientAuth
	}

	// Admin role bypasses all restrictions
	if claims.HasRole("admin") {
		ta.logAccess(claims.Subject, tool, true, "admin bypass")
		return nil
	}

	// Check if any role allows this tool
	if ta.policy.IsToolAllowedForCapabilities(claims.Roles, tool) {
		ta.logAccess(claims.Subject, tool, true, "allowed by role")
		return nil
	}

	ta.logAccess(claims.Subject, tool, false, "no role grants access")
	return fmt.Errorf("%w: %s (agent: %s, roles: %v)",
		ErrToolNotAllowed, tool, claims.Subject, claims.Roles)
}

// CheckPrincipal verifies that an already-authenticated principal can
// use a specific tool. It is the non-transport counterpart of
// CheckToolAccess for callers that hold a Principal directly instead
// of carrying claims on a context.
func (ta *ToolApprover) CheckPrincipal(principal auth.Principal, tool string) error {
	if principal.HasRole("admin") {
		ta.logAccess(principal.ID, tool, true, "admin bypass")
		return nil
	}
	if ta.policy.IsToolAllowedForCapabilities(principal.Roles, tool) {
		ta.logAccess(principal.ID, tool, true, "allowed by role")
		return nil
	}
	ta.logAccess(principal.ID, tool, false, "no role grants access")
	return fmt.Errorf("%w: %s (principal: %s, roles: %v)",
		ErrToolNotAllowed, tool, principal.ID, principal.Roles)
}

// GetAllowedToolsForAgent returns all tools an agent can use
func (ta *ToolApprover) GetAllowedToolsForAgent(ctx context.Context) []string {
	claims, ok := auth.ClaimsFromContext(ctx)
	if !ok {
		return []string{}
	}

	// Admin gets all tools (represented by wildcard)
	if claims.HasRole("admin") {
		return []string{"*"}
	}

	// Collect unique tools from all roles
	toolSet := make(map[string]bool)
	for _, role := range claims.Roles {
		tools := ta.policy.GetAllowedTools(role)
		for _, tool := range tools {
			toolSet[tool] = true
		}
	}

	// Convert set to slice
	result := make([]string, 0, len(toolSet))
	for tool := range toolSet {
		result = append(result, tool)
	}

	return result
}

// logAccess records a tool access attempt in the audit log
func (ta *ToolApprover) logAccess(agentID, tool string, allowed bool, reason string) {
	ta.mu.Lock()
	defer ta.mu.Unlock()

	entry := AuditEntry{
		Timestamp: time.Now(),
		AgentID:   agentID,
		ToolName:  tool,
		Allowed:   allowed,
		Reason:    reason,
	}

	ta.auditLog = append(ta.auditLog, entry)

	// Keep only last 10000 entries to prevent unbounded growth
	if len(ta.auditLog) > 10000 {
		ta.auditLog = ta.auditLog[len(ta.auditLog)-10000:]
	}
}

// GetAuditLog returns recent audit entries for an agent
func (ta *ToolApprover) GetAuditLog(agentID string, limit int) []AuditEntry {
	ta.mu.RLock()
	defer ta.mu.RUnlock()

	result := make([]AuditEntry, 0, limit)

	// Iterate from most recent to oldest
	for i := len(ta.auditLog) - 1; i >= 0 && len(result) < limit; i-- {
		if ta.auditLog[i].AgentID == agentID {
			result = append(result, ta.auditLog[i])
		}
	}

	// Reverse to return oldest-to-newest
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}

	return result
}

// DefaultToolPolicy returns a sensible default policy binding the
// gatekeeper's own capability roles (mirroring secpolicy's
// filesystem/HTTP/network axes) to the tool-category names an
// effective SecurityPolicy gates, for deployments that want RBAC role
// grants expressed as tool categories rather than per-tool overrides.
func DefaultToolPolicy() *ToolPolicy {
	policy := NewToolPolicy()

	// Admin can do everything
	policy.AddRule("admin", []string{"*"})

	// Filesystem-capable tools (gated further by secpolicy.FSPolicy)
	policy.AddRule("fs_read", []string{
		"fs_read", // read a canonicalized path
	})
	policy.AddRule("fs_write", []string{
		"fs_read",
		"fs_write", // write/delete under an allow-listed path
	})

	// HTTP-capable tools (gated further by secpolicy.HTTPPolicy / ValidatedUrl)
	policy.AddRule("http_access", []string{
		"http_fetch", // issue an HTTP request against a ValidatedUrl
	})

	// Network-capable tools (gated further by secpolicy.NetworkPolicy)
	policy.AddRule("network_access", []string{
		"network_connect", // open a raw network connection
	})

	// Agent memory read/write
	policy.AddRule("memory_access", []string{
		"memory_read",
		"memory_write",
	})

	// Read-only safe operations (no side-effecting capability)
	policy.AddRule("read_only", []string{
		"fs_read",
		"memory_read",
	})

	return policy
}
