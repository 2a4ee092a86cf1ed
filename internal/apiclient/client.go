package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"erpsync/internal/config"
	"erpsync/internal/models"

	"github.com/rs/zerolog"
)

const maxErrorBody = 4 << 10

// APIError is a non-2xx answer from the ERP backend.
type APIError struct {
	Method     string
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: http %d", e.Method, e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: http %d: %s", e.Method, e.Endpoint, e.StatusCode, e.Body)
}

// Client replays mutations against the ERP REST backend with a bearer token.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	tokens     *tokenSource
	logger     *zerolog.Logger
}

func New(cfg config.BackendConfig, logger *zerolog.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("parse backend base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("backend base url %q must be absolute", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Client{
		baseURL:    base,
		httpClient: httpClient,
		tokens:     newTokenSource(cfg, httpClient),
		logger:     logger,
	}, nil
}

func (c *Client) Create(ctx context.Context, endpoint string, payload models.Payload) error {
	return c.do(ctx, http.MethodPost, endpoint, payload)
}

func (c *Client) Update(ctx context.Context, endpoint string, payload models.Payload) error {
	return c.do(ctx, http.MethodPatch, endpoint, payload)
}

func (c *Client) Delete(ctx context.Context, endpoint string) error {
	return c.do(ctx, http.MethodDelete, endpoint, nil)
}

// ResolveURL joins endpoint onto the base URL. Absolute endpoints are returned unchanged.
func (c *Client) ResolveURL(endpoint string) (string, error) {
	ref, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint %q: %w", endpoint, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	u := *c.baseURL
	u.Path = strings.TrimRight(c.baseURL.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/")
	u.RawPath = ""
	u.RawQuery = ref.RawQuery
	u.Fragment = ""
	return u.String(), nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload models.Payload) error {
	target, err := c.ResolveURL(endpoint)
	if err != nil {
		return err
	}

	var body []byte
	if payload != nil && method != http.MethodDelete {
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", payload.Entity(), err)
		}
	}

	// A 401 invalidates the cached token; the request is retried once with a fresh one.
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
		if err != nil {
			return err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")

		tok, err := c.tokens.Token()
		if err != nil {
			return fmt.Errorf("obtain access token: %w", err)
		}
		if tok != nil {
			tok.SetAuthHeader(req)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, endpoint, err)
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 && c.tokens.Invalidate(tok) {
			drain(resp.Body)
			c.logger.Debug().Str("endpoint", endpoint).Msg("access token rejected, refreshing")
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			drain(resp.Body)
			return &APIError{
				Method:     method,
				Endpoint:   endpoint,
				StatusCode: resp.StatusCode,
				Body:       strings.TrimSpace(string(raw)),
			}
		}
		drain(resp.Body)
		return nil
	}
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
