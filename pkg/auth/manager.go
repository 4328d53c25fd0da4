package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Config configures a TokenManager.
type Config struct {
	SecretKey       []byte
	Issuer          string
	Audience        string
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	RefreshAllowed  bool
	Blacklist       Blacklist // nil disables revocation entirely
}

// TokenManager issues, verifies, refreshes, and revokes JWTs. It is
// the gatekeeper's sole source of authenticated Principal values.
type TokenManager struct {
	cfg Config
}

// NewTokenManager constructs a TokenManager. A nil cfg.Blacklist means
// Revoke always fails with a config error rather than silently
// succeeding against nothing.
func NewTokenManager(cfg Config) *TokenManager {
	return &TokenManager{cfg: cfg}
}

// GenerateTokens builds an access token (and, if refresh is enabled,
// a refresh token) for principal.
func (tm *TokenManager) GenerateTokens(principal Principal) (TokenPair, error) {
	now := time.Now()
	accessExp := now.Add(tm.cfg.AccessTTL)

	access, err := tm.sign(principal, TypeAccess, now, accessExp)
	if err != nil {
		return TokenPair{}, err
	}

	pair := TokenPair{
		Access:    Token[AccessToken]{raw: access},
		ExpiresAt: accessExp,
	}

	if tm.cfg.RefreshAllowed {
		refreshExp := now.Add(tm.cfg.RefreshTTL)
		refresh, err := tm.sign(principal, TypeRefresh, now, refreshExp)
		if err != nil {
			return TokenPair{}, err
		}
		pair.Refresh = Token[RefreshToken]{raw: refresh}
		pair.HasRefresh = true
	}

	return pair, nil
}

func (tm *TokenManager) sign(principal Principal, typ TokenType, issuedAt, expiresAt time.Time) (string, error) {
	jti, err := generateTokenID()
	if err != nil {
		return "", fmt.Errorf("generate token id: %w", err)
	}

	claims := &Claims{
		Roles:  principal.Roles,
		Typ:    typ,
		Custom: principal.Metadata,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   principal.ID,
			Issuer:    tm.cfg.Issuer,
			Audience:  jwt.ClaimStrings{tm.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.cfg.SecretKey)
}

// verify parses and fully validates tokenString, checking signature,
// issuer, audience, exp/nbf, revocation, and required typ.
func (tm *TokenManager) verify(tokenString string, want TokenType) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return tm.cfg.SecretKey, nil
	}, jwt.WithIssuer(tm.cfg.Issuer), jwt.WithAudience(tm.cfg.Audience))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Typ != want {
		return nil, ErrWrongTokenType
	}

	if tm.cfg.Blacklist != nil && tm.cfg.Blacklist.IsRevoked(claims.ID) {
		return nil, ErrRevokedToken
	}

	return claims, nil
}

// Authenticate verifies an access token string and reconstructs its Principal.
func (tm *TokenManager) Authenticate(accessTokenString string) (Principal, error) {
	claims, err := tm.verify(accessTokenString, TypeAccess)
	if err != nil {
		return Principal{}, err
	}
	return principalFromClaims(claims), nil
}

// AuthenticateToken is the type-safe counterpart of Authenticate: it
// accepts only a Token[AccessToken], so passing a refresh token where
// an access token is required fails to compile rather than at runtime.
func (tm *TokenManager) AuthenticateToken(token Token[AccessToken]) (Principal, error) {
	return tm.Authenticate(token.raw)
}

// Refresh validates a refresh token and issues a new token pair.
func (tm *TokenManager) Refresh(refreshTokenString string, duration time.Duration) (TokenPair, error) {
	if !tm.cfg.RefreshAllowed {
		return TokenPair{}, ErrRefreshDisabled
	}
	claims, err := tm.verify(refreshTokenString, TypeRefresh)
	if err != nil {
		return TokenPair{}, fmt.Errorf("cannot refresh invalid token: %w", err)
	}

	principal := principalFromClaims(claims)
	pair, err := tm.GenerateTokens(principal)
	if err != nil {
		return TokenPair{}, err
	}

	if err := tm.Revoke(refreshTokenString); err != nil {
		return TokenPair{}, fmt.Errorf("revoke old refresh token: %w", err)
	}

	return pair, nil
}

// Revoke blacklists tokenString's jti for the remainder of its
// validity (ttl = exp - now). If the manager has no blacklist
// configured, Revoke fails with a config error rather than silently
// no-op'ing.
func (tm *TokenManager) Revoke(tokenString string) error {
	if tm.cfg.Blacklist == nil {
		return errors.New("revocation requested but no blacklist is configured")
	}

	token, _, err := jwt.NewParser().ParseUnverified(tokenString, &Claims{})
	if err != nil {
		return fmt.Errorf("parse token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return ErrInvalidToken
	}

	var exp time.Time
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	ttl := time.Until(exp)
	return tm.cfg.Blacklist.Revoke(claims.ID, ttl)
}

func principalFromClaims(c *Claims) Principal {
	return Principal{
		ID:       c.Subject,
		Roles:    c.Roles,
		Metadata: c.Custom,
	}
}

func generateTokenID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
