package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"erpsync/internal/config"
	"erpsync/internal/metrics"
	"erpsync/internal/models"
	"erpsync/internal/queue"
	"erpsync/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Syncer runs connectivity polls and sync passes on request.
type Syncer interface {
	Refresh(ctx context.Context) (bool, *models.SyncResult, error)
	SyncNow(ctx context.Context) (*models.SyncResult, error)
}

// Submitter accepts domain mutations from front-ends.
type Submitter interface {
	Submit(ctx context.Context, m service.Mutation) (service.Submission, error)
}

// HTTPServer is the local control API: it accepts mutations and exposes the
// queue, the dead letters and the sync controls.
type HTTPServer struct {
	cfg       config.APIConfig
	queue     *queue.Queue
	syncer    Syncer
	mutations Submitter
	auth      *HTTPAuth
	server    *http.Server
	log       zerolog.Logger
	now       func() time.Time
}

func NewHTTPServer(
	cfg config.APIConfig,
	q *queue.Queue,
	syncer Syncer,
	mutations Submitter,
	limiter *RateLimiter,
	logger *zerolog.Logger,
) *HTTPServer {
	srv := &HTTPServer{
		cfg:       cfg,
		queue:     q,
		syncer:    syncer,
		mutations: mutations,
		auth:      NewHTTPAuth(cfg, limiter),
		log:       zerolog.Nop(),
		now:       time.Now,
	}
	if logger != nil {
		srv.log = logger.With().Str("component", "http").Logger()
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		// a sync pass replays the whole queue inside the request
		WriteTimeout: 5 * time.Minute,
	}

	return srv
}

func (s *HTTPServer) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.auth.Wrap)

		r.Get("/queue", s.handleQueue)
		r.Get("/queue/export", s.handleExport)
		r.Delete("/queue/{id}", s.handleRemove)
		r.Post("/actions", s.handleSubmit)
		r.Post("/sync", s.handleSync)
		r.Post("/connectivity/refresh", s.handleRefresh)
		r.Get("/dead-letters", s.handleDeadLetters)
		r.Delete("/dead-letters/{id}", s.handleDiscardDeadLetter)
		r.Post("/dead-letters/{id}/requeue", s.handleRequeue)
	})

	return r
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return errors.New("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		metrics.IncHTTP(route)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
