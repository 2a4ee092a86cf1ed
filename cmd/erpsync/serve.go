package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"erpsync/internal/api"
	"erpsync/internal/config"
	"erpsync/internal/database"
	"erpsync/internal/export"
	"erpsync/internal/logging"
	"erpsync/internal/metrics"
	"erpsync/internal/notify"
	"erpsync/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the agent: control API, connectivity polling and sync",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func serve(ctx context.Context) error {
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := logging.Component(a.logger, "main")

	if a.db != nil && a.cfg.Storage.Backup.Enabled {
		backups := database.NewBackupService(a.db, a.cfg.Storage.Backup, logging.Component(a.logger, "backup"))
		go backups.Start(ctx)
	}

	startMetrics(ctx, a.cfg, logger)
	startNotifier(ctx, a, logger)
	startSheetsMirror(ctx, a, logger)

	// first poll; replays anything left from the previous run when online
	if _, result, err := a.trigger.Refresh(ctx); err != nil {
		logger.Error().Err(err).Msg("startup sync failed")
	} else if result != nil {
		logger.Info().Int("succeeded", len(result.Succeeded)).Int("failed", len(result.Failed)).Msg("startup sync finished")
	}

	poller := worker.NewPoller(a.cfg.Connectivity.PollSchedule, a.trigger, logging.Component(a.logger, "poller"))
	if err := poller.Start(); err != nil {
		return fmt.Errorf("start poller: %w", err)
	}
	defer poller.Stop()

	limiter := api.NewRateLimiter(a.cfg.API.RateLimit)

	var grpcServer *api.GRPCServer
	if a.cfg.API.Enabled && a.cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(&a.cfg.API, a.bus, a.queue.Online(), limiter, a.logger)
		if err != nil {
			return err
		}
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	var httpServer *api.HTTPServer
	if a.cfg.API.Enabled && a.cfg.API.HTTP.Enabled {
		httpServer = api.NewHTTPServer(a.cfg.API, a.queue, a.trigger, a.mutations, limiter, a.logger)
		go func() {
			if err := httpServer.Start(); err != nil {
				logger.Error().Err(err).Msg("http server stopped")
			}
		}()
	} else {
		logger.Warn().Msg("control API disabled, mutations can only be replayed from the existing queue")
	}

	logger.Info().
		Int("pending", a.queue.Len()).
		Bool("online", a.queue.Online()).
		Str("storage", a.cfg.Storage.Backend).
		Msg("erpsync agent started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	if httpServer != nil {
		_ = httpServer.Shutdown(shutdownCtx)
	}

	logger.Info().Msg("erpsync agent stopped")
	return nil
}

// startNotifier subscribes before the first poll so the initial connectivity
// change is reported too.
func startNotifier(ctx context.Context, a *app, logger *zerolog.Logger) {
	if !a.cfg.Notify.Telegram.Enabled {
		return
	}
	n, err := notify.NewTelegramNotifier(a.cfg.Notify.Telegram, logging.Component(a.logger, "telegram"))
	if err != nil {
		logger.Warn().Err(err).Msg("telegram alerts disabled")
		return
	}
	n.Subscribe(a.bus)
	go n.Run(ctx)
}

func startSheetsMirror(ctx context.Context, a *app, logger *zerolog.Logger) {
	if !a.cfg.Sheets.Enabled {
		return
	}
	reporter, err := export.NewSheetsReporter(ctx, a.cfg.Sheets.CredentialsFile, a.cfg.Sheets.SpreadsheetID)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return
	}
	mirror := export.NewSheetsMirror(reporter, a.queue, logging.Component(a.logger, "sheets"))
	mirror.Subscribe(a.bus)
	go mirror.Run(ctx)
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}
	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
