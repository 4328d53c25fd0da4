package ident

import (
	"crypto/rand"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// AgentID uniquely names a long-lived agent session.
type AgentID string

// ToolID uniquely names an invocable tool.
type ToolID string

// SessionID uniquely names an agent's session.
type SessionID string

// RequestID uniquely names one tool-call request.
type RequestID string

// PrincipalID uniquely names an authenticated principal. It carries a
// stricter charset than the other identifier types (see validatePrincipal).
type PrincipalID string

// ParseAgentID validates s and returns it as an AgentID, or the
// structured reason it was rejected.
func ParseAgentID(s string) (AgentID, error) {
	if err := validateShared(s, defaultMaxLength, "._-"); err != nil {
		return "", err
	}
	return AgentID(s), nil
}

// ParseToolID validates s and returns it as a ToolID.
func ParseToolID(s string) (ToolID, error) {
	if err := validateShared(s, defaultMaxLength, "._-"); err != nil {
		return "", err
	}
	return ToolID(s), nil
}

// ParseSessionID validates s and returns it as a SessionID.
func ParseSessionID(s string) (SessionID, error) {
	if err := validateShared(s, defaultMaxLength, "._-"); err != nil {
		return "", err
	}
	return SessionID(s), nil
}

// ParseRequestID validates s and returns it as a RequestID.
func ParseRequestID(s string) (RequestID, error) {
	if err := validateShared(s, defaultMaxLength, "._-"); err != nil {
		return "", err
	}
	return RequestID(s), nil
}

// ParsePrincipalID validates s under the stricter principal rules
// (256-char cap, SQL-comment and shell-metacharacter rejection) and
// returns it as a PrincipalID.
func ParsePrincipalID(s string) (PrincipalID, error) {
	if err := validatePrincipal(s); err != nil {
		return "", err
	}
	return PrincipalID(s), nil
}

// NewAgentIDUnchecked constructs an AgentID bypassing validation, for
// tests and system-generated values only.
func NewAgentIDUnchecked(s string) AgentID { return AgentID(s) }

// NewToolIDUnchecked constructs a ToolID bypassing validation.
func NewToolIDUnchecked(s string) ToolID { return ToolID(s) }

// NewSessionIDUnchecked constructs a SessionID bypassing validation.
func NewSessionIDUnchecked(s string) SessionID { return SessionID(s) }

// NewPrincipalIDUnchecked constructs a PrincipalID bypassing validation.
func NewPrincipalIDUnchecked(s string) PrincipalID { return PrincipalID(s) }

var ulidEntropy = ulid.Monotonic(rand.Reader, 0)

// GenerateRequestID produces a fresh RequestID from a UUIDv4.
func GenerateRequestID() RequestID {
	return RequestID(uuid.NewString())
}

// GenerateSessionID produces a fresh SessionID from a UUIDv4.
func GenerateSessionID() SessionID {
	return SessionID(uuid.NewString())
}

// GenerateULID produces a monotonic ULID string, used where a
// lexically-sortable identifier is preferred over a UUID (audit event
// IDs, internal bus subjects).
func GenerateULID() string {
	return ulid.MustNew(ulid.Now(), ulidEntropy).String()
}

func (a AgentID) String() string     { return string(a) }
func (t ToolID) String() string      { return string(t) }
func (s SessionID) String() string   { return string(s) }
func (r RequestID) String() string   { return string(r) }
func (p PrincipalID) String() string { return string(p) }
