package api

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"erpsync/internal/config"
)

// HTTPAuth provides API-key auth and per-key rate limiting for HTTP endpoints.
type HTTPAuth struct {
	cfg     config.APIConfig
	keys    *keyring
	limiter *RateLimiter
}

func NewHTTPAuth(cfg config.APIConfig, limiter *RateLimiter) *HTTPAuth {
	if limiter == nil {
		limiter = NewRateLimiter(cfg.RateLimit)
	}
	return &HTTPAuth{cfg: cfg, keys: newKeyring(cfg.Auth), limiter: limiter}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.cfg.Enabled || !a.cfg.HTTP.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		if a.cfg.Auth.Enabled {
			if err := a.checkAuth(r); err != nil {
				statusCode := http.StatusUnauthorized
				if errors.Is(err, errPermissionDenied) {
					statusCode = http.StatusForbidden
				}
				writeError(w, statusCode, err.Error())
				return
			}
		}

		if !a.limiter.allow(a.clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, errRateLimited.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *HTTPAuth) checkAuth(r *http.Request) error {
	client, err := a.keys.authenticate(
		strings.TrimSpace(r.Header.Get(a.keys.apiKeyHeader)),
		strings.TrimSpace(r.Header.Get(a.keys.extraHeader)),
	)
	if err != nil {
		return err
	}
	return authorize(client, requiredPermissionHTTP(r))
}

func requiredPermissionHTTP(r *http.Request) string {
	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "/api/v1/sync" || path == "/api/v1/connectivity/refresh":
		return permSync
	case r.Method == http.MethodGet || r.Method == http.MethodHead:
		if strings.HasPrefix(path, "/api/v1/") {
			return permReadQueue
		}
	case strings.HasPrefix(path, "/api/v1/"):
		return permWriteQueue
	}
	return ""
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(a.keys.apiKeyHeader)); apiKey != "" {
		return apiKey
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}
