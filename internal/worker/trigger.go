package worker

import (
	"context"
	"errors"

	"erpsync/internal/domain"
	"erpsync/internal/models"
	"erpsync/internal/queue"

	"github.com/rs/zerolog"
)

// Trigger decides when a synchronization pass runs: automatically when a poll
// observes the transition to online with work queued, or on explicit request.
type Trigger struct {
	queue   *queue.Queue
	monitor domain.ConnectivityMonitor
	sync    *Synchronizer
	logger  *zerolog.Logger
}

func NewTrigger(q *queue.Queue, monitor domain.ConnectivityMonitor, s *Synchronizer, logger *zerolog.Logger) *Trigger {
	return &Trigger{queue: q, monitor: monitor, sync: s, logger: logger}
}

// Refresh polls connectivity and stores the result. When the poll flips the
// flag to online, the queue is non-empty and no pass is running, it runs a
// pass and returns its result; otherwise the result is nil.
func (t *Trigger) Refresh(ctx context.Context) (bool, *models.SyncResult, error) {
	online := t.monitor.FetchStatus(ctx)
	changed := t.queue.SetOnline(online)
	if !changed || !online {
		return online, nil, nil
	}
	if t.queue.Len() == 0 || t.queue.Syncing() {
		return online, nil, nil
	}

	t.logger.Info().Int("pending", t.queue.Len()).Msg("back online, starting sync")
	result, err := t.sync.Sync(ctx)
	switch {
	case errors.Is(err, ErrSyncInProgress):
		return online, nil, nil
	case errors.Is(err, ErrOffline):
		// connectivity dropped again between the two polls
		return false, nil, nil
	}
	return online, result, err
}

// SyncNow runs a pass on explicit request under the same guard.
func (t *Trigger) SyncNow(ctx context.Context) (*models.SyncResult, error) {
	return t.sync.Sync(ctx)
}
