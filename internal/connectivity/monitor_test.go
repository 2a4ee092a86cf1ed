package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestHTTPProbe(t *testing.T) {
	logger := zerolog.Nop()
	ctx := context.Background()

	t.Run("AnyStatusIsOnline", func(t *testing.T) {
		for _, code := range []int{http.StatusOK, http.StatusNotFound, http.StatusServiceUnavailable} {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodHead, r.Method)
				w.WriteHeader(code)
			}))
			probe := NewHTTPProbe(srv.URL, time.Second, &logger)
			assert.True(t, probe.FetchStatus(ctx), "status %d", code)
			srv.Close()
		}
	})

	t.Run("UnreachableIsOffline", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		probe := NewHTTPProbe(url, time.Second, &logger)
		assert.False(t, probe.FetchStatus(ctx))
	})

	t.Run("TimeoutIsOffline", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-release
		}))
		defer srv.Close()
		defer close(release)

		probe := NewHTTPProbe(srv.URL, 50*time.Millisecond, &logger)
		assert.False(t, probe.FetchStatus(ctx))
	})

	t.Run("BadURL", func(t *testing.T) {
		probe := NewHTTPProbe("://nope", time.Second, &logger)
		assert.False(t, probe.FetchStatus(ctx))
	})
}

func TestStatic(t *testing.T) {
	s := NewStatic(false)
	assert.False(t, s.FetchStatus(context.Background()))
	s.Set(true)
	assert.True(t, s.FetchStatus(context.Background()))
}
