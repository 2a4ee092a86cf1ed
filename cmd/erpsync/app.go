package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"erpsync/internal/apiclient"
	"erpsync/internal/config"
	"erpsync/internal/connectivity"
	"erpsync/internal/database"
	"erpsync/internal/domain"
	"erpsync/internal/events"
	"erpsync/internal/logging"
	"erpsync/internal/queue"
	"erpsync/internal/repository"
	"erpsync/internal/service"
	"erpsync/internal/store"
	"erpsync/internal/worker"

	"github.com/rs/zerolog"
)

// app holds the wired agent components shared by every subcommand.
type app struct {
	cfg     *config.Config
	logger  *zerolog.Logger
	closers []io.Closer

	db        *database.DB
	bus       *events.EventBus
	queue     *queue.Queue
	monitor   domain.ConnectivityMonitor
	sync      *worker.Synchronizer
	trigger   *worker.Trigger
	mutations *service.MutationService
}

func newApp(ctx context.Context, path string) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, logCloser, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a := &app{cfg: cfg, logger: logger}
	if logCloser != nil {
		a.closers = append(a.closers, logCloser)
	}

	backend, err := a.openBackend(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	client, err := apiclient.New(cfg.Backend, logging.Component(logger, "apiclient"))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init backend client: %w", err)
	}

	a.monitor = newMonitor(cfg.Connectivity, logger)
	a.bus = events.NewEventBus(logger)
	a.queue = queue.New(
		store.NewActionStore(backend, cfg.Storage.PendingKey, cfg.Storage.DeadLetterKey, logging.Component(logger, "store")),
		a.bus,
		logging.Component(logger, "queue"),
	)
	a.sync = worker.NewSynchronizer(a.queue, client, a.monitor, a.bus, worker.PolicyFromConfig(cfg.Sync), logging.Component(logger, "sync"))
	a.trigger = worker.NewTrigger(a.queue, a.monitor, a.sync, logging.Component(logger, "trigger"))
	a.mutations = service.NewMutationService(a.queue, client, a.trigger, logging.Component(logger, "mutations"))

	a.queue.LoadFromStore(ctx)
	return a, nil
}

// openBackend selects the key-value backend behind the action store and wraps
// it with the in-memory failover when configured.
func (a *app) openBackend(ctx context.Context) (domain.KVBackend, error) {
	cfg := a.cfg.Storage
	var primary domain.KVBackend

	switch cfg.Backend {
	case config.StorageSQLite:
		db, err := database.NewDB(cfg.SQLitePath, logging.Component(a.logger, "database"))
		if err != nil {
			return nil, fmt.Errorf("init database: %w", err)
		}
		a.db = db
		a.closers = append(a.closers, db)
		primary = db
	case config.StorageRedis:
		client := repository.NewRedisClient(a.cfg.Redis)
		a.closers = append(a.closers, client)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := repository.Ping(pingCtx, client)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		a.logger.Info().Str("addr", a.cfg.Redis.Address).Msg("redis connected")
		primary = repository.NewRedisBackend(client)
	default:
		a.logger.Warn().Msg("memory storage selected, pending actions will not survive a restart")
		return repository.NewMemoryBackend(), nil
	}

	if !cfg.Failover {
		return primary, nil
	}

	// the fallback only takes over keys it has read from the primary; starting
	// without them would load an empty queue and later overwrite the stored one
	failover := repository.NewFailoverBackend(primary, repository.NewMemoryBackend(), cfg.RecoveryAfter, logging.Component(a.logger, "failover"))
	primeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := failover.Prime(primeCtx, cfg.PendingKey, cfg.DeadLetterKey); err != nil {
		return nil, fmt.Errorf("load queue from primary store: %w", err)
	}
	return failover, nil
}

func newMonitor(cfg config.ConnectivityConfig, logger *zerolog.Logger) domain.ConnectivityMonitor {
	if cfg.Mode == config.ConnectivityStatic {
		return connectivity.NewStatic(cfg.StaticOnline)
	}
	return connectivity.NewHTTPProbe(cfg.ProbeURL, cfg.Timeout, logging.Component(logger, "connectivity"))
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && a.logger != nil {
			a.logger.Warn().Err(err).Msg("close failed")
		}
	}
	a.closers = nil
}
