package auth

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type claimsContextKey struct{}

// ContextWithClaims attaches verified claims to ctx for downstream
// handlers (and for pkg/authz's capability checks).
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// ClaimsFromContext retrieves claims attached by the auth interceptor.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*Claims)
	return claims, ok
}

// AuthInterceptor enforces bearer-token authentication on gRPC calls,
// exempting a configurable set of methods (health checks, login).
type AuthInterceptor struct {
	tm          *TokenManager
	skipMethods map[string]bool
}

// NewAuthInterceptor builds an interceptor backed by tm. skipMethods
// are full gRPC method names (e.g. "/gatekeeper.Auth/Login") exempt
// from the bearer-token check.
func NewAuthInterceptor(tm *TokenManager, skipMethods ...string) *AuthInterceptor {
	skip := make(map[string]bool, len(skipMethods))
	for _, m := range skipMethods {
		skip[m] = true
	}
	return &AuthInterceptor{tm: tm, skipMethods: skip}
}

func (i *AuthInterceptor) shouldSkipAuth(fullMethod string) bool {
	return i.skipMethods[fullMethod]
}

func (i *AuthInterceptor) extractToken(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "missing metadata")
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return "", status.Error(codes.Unauthenticated, "missing authorization header")
	}
	const prefix = "Bearer "
	header := values[0]
	if !strings.HasPrefix(header, prefix) {
		return "", status.Error(codes.Unauthenticated, "authorization header must use Bearer scheme")
	}
	return strings.TrimPrefix(header, prefix), nil
}

func (i *AuthInterceptor) authenticate(ctx context.Context) (context.Context, error) {
	tokenString, err := i.extractToken(ctx)
	if err != nil {
		return ctx, err
	}
	claims, err := i.tm.verify(tokenString, TypeAccess)
	if err != nil {
		return ctx, status.Error(codes.Unauthenticated, err.Error())
	}
	return ContextWithClaims(ctx, claims), nil
}

// UnaryInterceptor returns the grpc.UnaryServerInterceptor form.
func (i *AuthInterceptor) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if i.shouldSkipAuth(info.FullMethod) {
			return handler(ctx, req)
		}
		authed, err := i.authenticate(ctx)
		if err != nil {
			return nil, err
		}
		return handler(authed, req)
	}
}

// StreamInterceptor returns the grpc.StreamServerInterceptor form.
func (i *AuthInterceptor) StreamInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if i.shouldSkipAuth(info.FullMethod) {
			return handler(srv, ss)
		}
		authed, err := i.authenticate(ss.Context())
		if err != nil {
			return err
		}
		return handler(srv, &authenticatedStream{ServerStream: ss, ctx: authed})
	}
}

// authenticatedStream overrides Context() to expose claims to handlers
// that read from ss.Context() rather than a parameter.
type authenticatedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authenticatedStream) Context() context.Context { return s.ctx }

// RequireRole returns a gRPC status error unless ctx carries claims
// granting role. Handlers call this after the interceptor has already
// authenticated the request, to enforce per-method authorization.
func RequireRole(ctx context.Context, role string) error {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "no authentication claims in context")
	}
	if !claims.HasRole(role) && !claims.HasRole("admin") {
		return status.Errorf(codes.PermissionDenied, "requires role %q", role)
	}
	return nil
}
