package apiclient

import (
	"context"
	"net/http"
	"sync"

	"erpsync/internal/config"

	"golang.org/x/oauth2"
)

// tokenSource hands out bearer tokens. With a token URL configured it refreshes
// through the OAuth2 refresh-token grant; otherwise the configured access token
// is used as is, and without either no Authorization header is sent.
type tokenSource struct {
	conf *oauth2.Config
	ctx  context.Context

	mu  sync.Mutex
	src oauth2.TokenSource
}

func newTokenSource(cfg config.BackendConfig, httpClient *http.Client) *tokenSource {
	ts := &tokenSource{}
	initial := &oauth2.Token{AccessToken: cfg.AccessToken, RefreshToken: cfg.RefreshToken, TokenType: "Bearer"}

	switch {
	case cfg.TokenURL != "":
		ts.conf = &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL},
		}
		ts.ctx = context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		ts.src = ts.conf.TokenSource(ts.ctx, initial)
	case cfg.AccessToken != "":
		ts.src = oauth2.StaticTokenSource(initial)
	}
	return ts
}

func (s *tokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	src := s.src
	s.mu.Unlock()
	if src == nil {
		return nil, nil
	}
	return src.Token()
}

// Invalidate drops the cached access token so the next Token call refreshes.
// It reports false when no refresh is possible.
func (s *tokenSource) Invalidate(rejected *oauth2.Token) bool {
	if s.conf == nil || rejected == nil || rejected.RefreshToken == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.src = s.conf.TokenSource(s.ctx, &oauth2.Token{RefreshToken: rejected.RefreshToken})
	return true
}
