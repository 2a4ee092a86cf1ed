package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"erpsync/internal/domain"
	"erpsync/internal/events"
	"erpsync/internal/metrics"
	"erpsync/internal/models"
	"erpsync/internal/queue"

	"github.com/rs/zerolog"
)

var (
	// ErrSyncInProgress means another pass holds the guard; the request did nothing.
	ErrSyncInProgress = errors.New("synchronization already in progress")
	// ErrOffline means the backend was unreachable; no action was attempted.
	ErrOffline = errors.New("no connectivity")
)

// Synchronizer replays queued actions against the backend, one pass at a time.
type Synchronizer struct {
	queue   *queue.Queue
	api     domain.RemoteAPI
	monitor domain.ConnectivityMonitor
	events  domain.EventPublisher
	policy  RetryPolicy
	logger  *zerolog.Logger
	now     func() time.Time
}

func NewSynchronizer(
	q *queue.Queue,
	api domain.RemoteAPI,
	monitor domain.ConnectivityMonitor,
	publisher domain.EventPublisher,
	policy RetryPolicy,
	logger *zerolog.Logger,
) *Synchronizer {
	if publisher == nil {
		publisher = (*events.EventBus)(nil)
	}
	return &Synchronizer{
		queue:   q,
		api:     api,
		monitor: monitor,
		events:  publisher,
		policy:  policy,
		logger:  logger,
		now:     time.Now,
	}
}

// Sync runs one pass over a snapshot of the queue in insertion order. Every
// action is attempted once; a failure never stops its siblings. The pass is
// detached from ctx cancellation and always runs to completion.
func (s *Synchronizer) Sync(ctx context.Context) (*models.SyncResult, error) {
	if !s.queue.BeginSync() {
		metrics.IncSyncPass(metrics.OutcomeBusy)
		return nil, ErrSyncInProgress
	}
	finished := false
	defer func() {
		if !finished {
			s.queue.AbortSync()
		}
	}()

	ctx = context.WithoutCancel(ctx)

	online := s.monitor.FetchStatus(ctx)
	s.queue.SetOnline(online)
	if !online {
		metrics.IncSyncPass(metrics.OutcomeOffline)
		s.logger.Info().Msg("sync skipped: offline")
		return nil, ErrOffline
	}

	result := &models.SyncResult{
		Succeeded: []string{},
		Failed:    []string{},
		StartedAt: s.now(),
	}
	succeeded := make(map[string]struct{})
	deadLettered := make(map[string]struct{})

	for _, action := range s.queue.Pending() {
		if s.policy.Backoff && !action.NextAttemptAt.IsZero() && s.now().Before(action.NextAttemptAt) {
			result.Skipped = append(result.Skipped, action.ID)
			continue
		}

		err := s.replay(ctx, action)
		if err == nil {
			succeeded[action.ID] = struct{}{}
			result.Succeeded = append(result.Succeeded, action.ID)
			metrics.IncReplay(string(action.Operation), metrics.ReplaySucceeded)
			continue
		}

		result.Failed = append(result.Failed, action.ID)
		next := s.policy.NextAttempt(s.now(), action.RetryCount+1)
		retries, _ := s.queue.RecordFailure(action.ID, err.Error(), next)

		event := s.logger.Warn().
			Err(err).
			Str("action_id", action.ID).
			Str("operation", string(action.Operation)).
			Str("endpoint", action.Endpoint).
			Int("retry_count", retries)
		if s.policy.Exhausted(retries) {
			deadLettered[action.ID] = struct{}{}
			result.DeadLettered = append(result.DeadLettered, action.ID)
			metrics.IncReplay(string(action.Operation), metrics.ReplayDeadLettered)
			event.Msg("replay failed, retries exhausted")
			continue
		}
		metrics.IncReplay(string(action.Operation), metrics.ReplayFailed)
		event.Msg("replay failed, action stays queued")
	}

	finished = true
	// a failed flush leaves replayed actions in the store until the next save
	persistErr := s.queue.FinishSync(ctx, succeeded, deadLettered)
	if persistErr != nil {
		s.logger.Error().Err(persistErr).Msg("failed to persist queue after sync")
		persistErr = fmt.Errorf("persist sync result: %w", persistErr)
	}
	result.FinishedAt = s.now()
	pending := s.queue.Len()

	metrics.IncSyncPass(metrics.OutcomeCompleted)
	metrics.ObserveSyncDuration(result.FinishedAt.Sub(result.StartedAt))
	s.logger.Info().
		Int("succeeded", len(result.Succeeded)).
		Int("failed", len(result.Failed)).
		Int("dead_lettered", len(result.DeadLettered)).
		Int("skipped", len(result.Skipped)).
		Int("pending", pending).
		Dur("took", result.FinishedAt.Sub(result.StartedAt)).
		Msg("sync pass completed")

	if err := s.events.PublishJSON(events.EventSyncCompleted, events.SyncPayload{
		Succeeded:    len(result.Succeeded),
		Failed:       len(result.Failed),
		DeadLettered: len(result.DeadLettered),
		Pending:      pending,
		FinishedAt:   result.FinishedAt,
	}); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish sync event")
	}
	return result, persistErr
}

func (s *Synchronizer) replay(ctx context.Context, action models.PendingAction) error {
	switch action.Operation {
	case models.OperationCreate:
		return s.api.Create(ctx, action.Endpoint, action.Payload)
	case models.OperationUpdate:
		return s.api.Update(ctx, action.Endpoint, action.Payload)
	case models.OperationDelete:
		return s.api.Delete(ctx, action.Endpoint)
	default:
		return fmt.Errorf("unknown operation %q", action.Operation)
	}
}
