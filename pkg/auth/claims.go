// Package auth handles JWT issuance/verification/refresh/revocation,
// phantom-typed access/refresh tokens, and the AES-256-GCM encrypted
// credential store. Revoked tokens stay blacklisted by jti for the
// remainder of their validity and no longer.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoToken          = errors.New("no authentication token provided")
	ErrInvalidToken     = errors.New("invalid authentication token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrRevokedToken     = errors.New("token has been revoked")
	ErrInsufficientAuth = errors.New("insufficient authentication")
	ErrNoCapability     = errors.New("missing required capability")
	ErrRefreshDisabled  = errors.New("refresh tokens are disabled for this manager")
	ErrWrongTokenType   = errors.New("token type mismatch")
)

// TokenType is the closed set of JWT "typ" values.
type TokenType string

const (
	TypeAccess  TokenType = "access"
	TypeRefresh TokenType = "refresh"
)

// Claims is the JWT claim set carried by every gatekeeper token.
type Claims struct {
	Roles  []string          `json:"roles"`
	Typ    TokenType         `json:"typ"`
	Custom map[string]string `json:"custom,omitempty"`
	jwt.RegisteredClaims
}

// HasRole reports whether the claims grant the given role.
func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// tokenKind is implemented only by AccessToken and RefreshToken,
// giving Token[K] its phantom-type discrimination: a function
// requiring Token[AccessToken] cannot be called with a
// Token[RefreshToken] value.
type tokenKind interface {
	kind() TokenType
}

// AccessToken marks a Token[AccessToken] value.
type AccessToken struct{}

func (AccessToken) kind() TokenType { return TypeAccess }

// RefreshToken marks a Token[RefreshToken] value.
type RefreshToken struct{}

func (RefreshToken) kind() TokenType { return TypeRefresh }

// Token is a signed JWT string carrying a compile-time-distinct kind.
type Token[K tokenKind] struct {
	raw string
}

// String returns the signed JWT string.
func (t Token[K]) String() string { return t.raw }

// TokenPair holds both halves of a login/refresh response.
type TokenPair struct {
	Access  Token[AccessToken]
	Refresh Token[RefreshToken] // zero value if refresh is disabled
	HasRefresh bool
	ExpiresAt  time.Time
}

// Principal is the authenticated subject reconstructed from claims.
type Principal struct {
	ID       string
	Name     string
	Roles    []string
	Metadata map[string]string
}

// HasRole reports whether the principal holds the given role.
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}
