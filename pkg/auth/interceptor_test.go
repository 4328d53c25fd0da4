package auth

import (
	"context"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func interceptorManager(t *testing.T) *TokenManager {
	t.Helper()
	return NewTokenManager(Config{
		SecretKey:      []byte("test-secret-key-for-interceptor!"),
		Issuer:         "gatekeeper-test",
		Audience:       "agents",
		AccessTTL:      time.Minute,
		RefreshAllowed: false,
	})
}

func incomingCtx(token string) context.Context {
	md := metadata.Pairs("authorization", "Bearer "+token)
	return metadata.NewIncomingContext(context.Background(), md)
}

func TestUnaryInterceptor_AuthenticatesAndAttachesClaims(t *testing.T) {
	tm := interceptorManager(t)
	pair, err := tm.GenerateTokens(Principal{ID: "svc-1", Roles: []string{"reader"}})
	require.NoError(t, err)

	i := NewAuthInterceptor(tm)
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		claims, ok := ClaimsFromContext(ctx)
		require.True(t, ok)
		assert.Equal(t, "svc-1", claims.Subject)
		return "ok", nil
	}

	resp, err := i.UnaryInterceptor()(
		incomingCtx(pair.Access.String()),
		nil,
		&grpc.UnaryServerInfo{FullMethod: "/gatekeeper.Tools/Invoke"},
		handler,
	)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
}

func TestUnaryInterceptor_RejectsMissingAndMalformedTokens(t *testing.T) {
	i := NewAuthInterceptor(interceptorManager(t))
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		t.Fatal("handler must not run")
		return nil, nil
	}
	info := &grpc.UnaryServerInfo{FullMethod: "/gatekeeper.Tools/Invoke"}

	_, err := i.UnaryInterceptor()(context.Background(), nil, info, handler)
	require.Error(t, err)

	md := metadata.Pairs("authorization", "Basic dXNlcjpwYXNz")
	_, err = i.UnaryInterceptor()(metadata.NewIncomingContext(context.Background(), md), nil, info, handler)
	require.Error(t, err)

	_, err = i.UnaryInterceptor()(incomingCtx("not-a-jwt"), nil, info, handler)
	require.Error(t, err)
}

func TestUnaryInterceptor_SkipMethods(t *testing.T) {
	i := NewAuthInterceptor(interceptorManager(t), "/gatekeeper.Health/Check")
	called := false
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		called = true
		return "healthy", nil
	}

	_, err := i.UnaryInterceptor()(
		context.Background(),
		nil,
		&grpc.UnaryServerInfo{FullMethod: "/gatekeeper.Health/Check"},
		handler,
	)
	require.NoError(t, err)
	assert.True(t, called)
}

func TestRequireRole(t *testing.T) {
	claims := &Claims{Roles: []string{"reader"}}
	ctx := ContextWithClaims(context.Background(), claims)

	require.NoError(t, RequireRole(ctx, "reader"))
	require.Error(t, RequireRole(ctx, "operator"))
	require.Error(t, RequireRole(context.Background(), "reader"))

	adminCtx := ContextWithClaims(context.Background(), &Claims{Roles: []string{"admin"}})
	require.NoError(t, RequireRole(adminCtx, "anything"))
}
