// Package storage provides a concrete, in-memory implementation of
// the long-lived operator API tokens a deployment issues for
// out-of-band administrative access (provisioning principals,
// inspecting audit state, triggering manual lockdown). It is not the
// agent memory backend; that contract lives in pkg/memstore and its
// concrete backends are a deployment concern.
package storage

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrStoreClosed is returned by every Store method once Close has
// been called.
var ErrStoreClosed = errors.New("storage: store is closed")

// APIToken represents an operator-managed API token. The secret value
// itself is never stored; only its hash and an 8-byte prefix (for
// display/lookup during revocation) persist.
type APIToken struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Owner      string     `json:"owner,omitempty"`
	Scope      string     `json:"scope"`
	Prefix     string     `json:"prefix"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	Revoked    bool       `json:"revoked"`
}

const (
	TokenScopeOperator = "operator"
	TokenScopeMember   = "member"
	TokenScopeViewer   = "viewer"
)

// record is the internal representation; tokenHash is never exposed
// through APIToken.
type record struct {
	token     APIToken
	tokenHash string
}

// Store is an in-memory, mutex-guarded API token store. A deployment
// wanting persistence supplies its own implementation behind the same
// method set.
type Store struct {
	mu     sync.RWMutex
	tokens map[string]*record
	closed bool
}

// NewStore constructs an empty, open Store.
func NewStore() *Store {
	return &Store{tokens: make(map[string]*record)}
}

// Close marks the store closed; subsequent calls return ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// GenerateAPITokenValue creates a random token string suitable for CLI clients.
func GenerateAPITokenValue() (string, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf[:]), nil
}

func normalizeScope(scope string) string {
	switch strings.ToLower(strings.TrimSpace(scope)) {
	case TokenScopeOperator:
		return TokenScopeOperator
	case TokenScopeViewer:
		return TokenScopeViewer
	default:
		return TokenScopeMember
	}
}

// CreateAPIToken stores a new API token record, hashing the provided secret.
func (s *Store) CreateAPIToken(name, owner, scope, secret string) (*APIToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = "token-" + ulid.Make().String()
	}

	tok := APIToken{
		ID:        strings.ToLower(ulid.Make().String()),
		Name:      name,
		Owner:     strings.TrimSpace(owner),
		Scope:     normalizeScope(scope),
		Prefix:    tokenPrefix(secret),
		CreatedAt: time.Now().UTC(),
	}
	s.tokens[tok.ID] = &record{token: tok, tokenHash: hashSecret(secret)}

	out := tok
	return &out, nil
}

// ListAPITokens returns active and revoked tokens for operator review,
// newest first.
func (s *Store) ListAPITokens() ([]APIToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	out := make([]APIToken, 0, len(s.tokens))
	for _, r := range s.tokens {
		out = append(out, r.token)
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CreatedAt.After(out[i].CreatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

// RevokeAPIToken marks the token as revoked.
func (s *Store) RevokeAPIToken(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	id = strings.TrimSpace(id)
	r, ok := s.tokens[id]
	if !ok {
		return nil
	}
	r.token.Revoked = true
	return nil
}

// ValidateAPIToken verifies a token secret and updates LastUsedAt.
// Returns (nil, nil) when no matching, non-revoked token exists.
func (s *Store) ValidateAPIToken(secret string) (*APIToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	hash := hashSecret(secret)
	for _, r := range s.tokens {
		if r.tokenHash == hash && !r.token.Revoked {
			now := time.Now().UTC()
			r.token.LastUsedAt = &now
			out := r.token
			return &out, nil
		}
	}
	return nil, nil
}

func tokenPrefix(secret string) string {
	secret = strings.TrimSpace(secret)
	if len(secret) <= 8 {
		return secret
	}
	return secret[:8]
}

// ExportAPITokens encodes token metadata for backups.
func (s *Store) ExportAPITokens() ([]byte, error) {
	tokens, err := s.ListAPITokens()
	if err != nil {
		return nil, err
	}
	return json.Marshal(tokens)
}
