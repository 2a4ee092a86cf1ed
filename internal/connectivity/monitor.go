package connectivity

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// HTTPProbe reports the network as reachable when the probe URL answers with
// any HTTP status. Only transport failures count as offline.
type HTTPProbe struct {
	url        string
	httpClient *http.Client
	logger     *zerolog.Logger
}

// NewHTTPProbe constructs a probe against url with the given per-request timeout.
func NewHTTPProbe(url string, timeout time.Duration, logger *zerolog.Logger) *HTTPProbe {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPProbe{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (p *HTTPProbe) FetchStatus(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		p.logger.Error().Err(err).Str("url", p.url).Msg("invalid connectivity probe url")
		return false
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Debug().Err(err).Str("url", p.url).Msg("connectivity probe failed")
		return false
	}
	_ = resp.Body.Close()
	return true
}

// Static is a monitor whose answer is set by hand.
type Static struct {
	online atomic.Bool
}

func NewStatic(online bool) *Static {
	s := &Static{}
	s.online.Store(online)
	return s
}

func (s *Static) FetchStatus(ctx context.Context) bool {
	return s.online.Load()
}

func (s *Static) Set(online bool) {
	s.online.Store(online)
}
