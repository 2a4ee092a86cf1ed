package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"erpsync/internal/config"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const healthCheckMethod = "/grpc.health.v1.Health/Check"

func authConfig(perms ...string) config.APIConfig {
	return config.APIConfig{
		Enabled: true,
		HTTP:    config.APIHTTPConfig{Enabled: true},
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			HeaderExtra:  "x-api-extra",
			APIKeys: []config.APIClientKey{
				{Key: "valid-key", Extra: "valid-extra", Permissions: perms},
			},
		},
		RateLimit: config.APIRateLimitConfig{
			RPS:   100,
			Burst: 200,
		},
	}
}

func TestAuthInterceptor(t *testing.T) {
	cfg := authConfig("read:health")
	interceptor := NewAuthInterceptor(&cfg, nil).Unary()

	handler := func(_ context.Context, req any) (any, error) {
		return "ok", nil
	}
	info := &grpc.UnaryServerInfo{FullMethod: healthCheckMethod}

	t.Run("Success", func(t *testing.T) {
		md := metadata.Pairs("x-api-key", "valid-key", "x-api-extra", "valid-extra")
		ctx := metadata.NewIncomingContext(context.Background(), md)
		resp, err := interceptor(ctx, "req", info, handler)
		assert.NoError(t, err)
		assert.Equal(t, "ok", resp)
	})

	t.Run("MissingMetadata", func(t *testing.T) {
		_, err := interceptor(context.Background(), "req", info, handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("MissingHeaders", func(t *testing.T) {
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs())
		_, err := interceptor(ctx, "req", info, handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("InvalidKey", func(t *testing.T) {
		md := metadata.Pairs("x-api-key", "invalid", "x-api-extra", "valid-extra")
		ctx := metadata.NewIncomingContext(context.Background(), md)
		_, err := interceptor(ctx, "req", info, handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("InvalidExtra", func(t *testing.T) {
		md := metadata.Pairs("x-api-key", "valid-key", "x-api-extra", "invalid")
		ctx := metadata.NewIncomingContext(context.Background(), md)
		_, err := interceptor(ctx, "req", info, handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("PermissionDenied", func(t *testing.T) {
		cfg := authConfig("read:queue")
		denied := NewAuthInterceptor(&cfg, nil).Unary()
		md := metadata.Pairs("x-api-key", "valid-key", "x-api-extra", "valid-extra")
		ctx := metadata.NewIncomingContext(context.Background(), md)
		_, err := denied(ctx, "req", info, handler)
		assert.Equal(t, codes.PermissionDenied, status.Code(err))
	})

	t.Run("Disabled", func(t *testing.T) {
		cfg := authConfig()
		cfg.Enabled = false
		open := NewAuthInterceptor(&cfg, nil).Unary()
		_, err := open(context.Background(), "req", info, handler)
		assert.NoError(t, err)
	})
}

func TestAuthInterceptor_RateLimit(t *testing.T) {
	cfg := config.APIConfig{
		Enabled: true,
		Auth:    config.APIAuthConfig{Enabled: false},
		RateLimit: config.APIRateLimitConfig{
			RPS:   1,
			Burst: 1,
		},
	}

	interceptor := NewAuthInterceptor(&cfg, nil).Unary()
	info := &grpc.UnaryServerInfo{FullMethod: "test"}
	handler := func(_ context.Context, req any) (any, error) { return "ok", nil }

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-api-key", "key1"))

	_, err := interceptor(ctx, "req", info, handler)
	assert.NoError(t, err)

	_, err = interceptor(ctx, "req", info, handler)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))

	// another key has its own bucket
	other := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-api-key", "key2"))
	_, err = interceptor(other, "req", info, handler)
	assert.NoError(t, err)
}

func TestRateLimitSharedAcrossTransports(t *testing.T) {
	cfg := config.APIConfig{
		Enabled:   true,
		HTTP:      config.APIHTTPConfig{Enabled: true},
		RateLimit: config.APIRateLimitConfig{RPS: 1, Burst: 1},
	}
	limiter := NewRateLimiter(cfg.RateLimit)

	grpcAuth := NewAuthInterceptor(&cfg, limiter).Unary()
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-api-key", "shared"))
	_, err := grpcAuth(ctx, "req", &grpc.UnaryServerInfo{FullMethod: "test"}, func(context.Context, any) (any, error) {
		return nil, nil
	})
	assert.NoError(t, err)

	httpAuth := NewHTTPAuth(cfg, limiter).Wrap(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/queue", nil)
	req.Header.Set("x-api-key", "shared")
	rr := httptest.NewRecorder()
	httpAuth.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestLoggingUnaryInterceptor(t *testing.T) {
	interceptor := LoggingUnaryInterceptor(nil)
	handler := func(ctx context.Context, req any) (any, error) {
		return "ok", nil
	}
	info := &grpc.UnaryServerInfo{FullMethod: "test"}

	resp, err := interceptor(context.Background(), "req", info, handler)
	assert.NoError(t, err)
	assert.Equal(t, "ok", resp)
}

func TestRequestIDFromMetadata(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-request-id", "req-42"))
	assert.Equal(t, "req-42", requestIDFromMetadata(ctx))
	assert.NotEmpty(t, requestIDFromMetadata(context.Background()))
}

func TestRequiredPermission(t *testing.T) {
	tests := []struct {
		method string
		want   string
	}{
		{"/grpc.health.v1.Health/Check", "read:health"},
		{"/grpc.health.v1.Health/Watch", "read:health"},
		{"/grpc.reflection.v1.ServerReflection/ServerReflectionInfo", ""},
		{"other", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, requiredPermission(tt.method))
	}
}

func TestRequiredPermissionHTTP(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   string
	}{
		{http.MethodGet, "/api/v1/queue", "read:queue"},
		{http.MethodGet, "/api/v1/queue/export", "read:queue"},
		{http.MethodGet, "/api/v1/dead-letters", "read:queue"},
		{http.MethodPost, "/api/v1/actions", "write:queue"},
		{http.MethodDelete, "/api/v1/queue/abc", "write:queue"},
		{http.MethodPost, "/api/v1/dead-letters/abc/requeue", "write:queue"},
		{http.MethodPost, "/api/v1/sync", "sync"},
		{http.MethodPost, "/api/v1/connectivity/refresh", "sync"},
		{http.MethodGet, "/health", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		assert.Equal(t, tt.want, requiredPermissionHTTP(req), tt.method+" "+tt.path)
	}
}
