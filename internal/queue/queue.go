package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"erpsync/internal/domain"
	"erpsync/internal/events"
	"erpsync/internal/metrics"
	"erpsync/internal/models"

	"github.com/rs/zerolog"
)

var ErrNotFound = errors.New("pending action not found")

// Removal reasons carried by action_removed events.
const (
	ReasonManual       = "manual"
	ReasonDeadLettered = "dead_lettered"
	ReasonRequeued     = "requeued"
)

// Queue owns the offline queue state: the connectivity flag, the ordered
// pending actions, the dead-letter list, the sync guard and the last sync time.
// Every mutation holds mu and is flushed to the store before mu is released,
// so the stored list never lags behind a later in-memory state.
type Queue struct {
	store  domain.ActionStore
	events domain.EventPublisher
	logger *zerolog.Logger
	now    func() time.Time

	mu          sync.Mutex
	online      bool
	actions     []models.PendingAction
	deadLetters []models.PendingAction
	syncing     bool
	lastSync    *time.Time
}

func New(store domain.ActionStore, publisher domain.EventPublisher, logger *zerolog.Logger) *Queue {
	if publisher == nil {
		publisher = (*events.EventBus)(nil)
	}
	return &Queue{
		store:   store,
		events:  publisher,
		logger:  logger,
		now:     time.Now,
		actions: []models.PendingAction{},
	}
}

// LoadFromStore replaces the in-memory lists with the stored ones and returns
// the number of pending actions loaded.
func (q *Queue) LoadFromStore(ctx context.Context) int {
	pending := q.store.Load(ctx)
	dead := q.store.LoadDeadLetters(ctx)

	q.mu.Lock()
	q.actions = pending
	q.deadLetters = dead
	n := len(q.actions)
	q.mu.Unlock()

	metrics.SetPending(n)
	q.logger.Info().Int("pending", n).Int("dead_letters", len(dead)).Msg("offline queue loaded")
	return n
}

// Enqueue appends a new action and persists the full list. The action stays
// queued in memory even when persisting fails; the error reports the failed flush.
func (q *Queue) Enqueue(ctx context.Context, op models.Operation, entity models.EntityKind, endpoint string, payload models.Payload) (models.PendingAction, error) {
	now := q.now()
	action := models.PendingAction{
		ID:        models.NewActionID(now),
		Operation: op,
		Entity:    entity,
		Endpoint:  endpoint,
		Payload:   payload,
		CreatedAt: now,
	}

	q.mu.Lock()
	q.actions = append(q.actions, action)
	n := len(q.actions)
	err := q.store.Save(ctx, q.actions)
	q.mu.Unlock()

	metrics.SetPending(n)
	q.publishAction(events.EventActionEnqueued, action, n, "")
	if err != nil {
		q.logger.Error().Err(err).Str("action_id", action.ID).Msg("failed to persist enqueued action")
		return action, fmt.Errorf("persist queue: %w", err)
	}

	q.logger.Debug().
		Str("action_id", action.ID).
		Str("operation", string(op)).
		Str("entity", string(entity)).
		Str("endpoint", endpoint).
		Int("pending", n).
		Msg("action enqueued")
	return action, nil
}

// Remove drops the action with the given id and persists the list.
// An absent id is a no-op and reports false.
func (q *Queue) Remove(ctx context.Context, id string) (bool, error) {
	q.mu.Lock()
	idx := indexOf(q.actions, id)
	if idx < 0 {
		q.mu.Unlock()
		return false, nil
	}
	removed := q.actions[idx]
	q.actions = append(q.actions[:idx:idx], q.actions[idx+1:]...)
	n := len(q.actions)
	err := q.store.Save(ctx, q.actions)
	q.mu.Unlock()

	metrics.SetPending(n)
	q.publishAction(events.EventActionRemoved, removed, n, ReasonManual)
	if err != nil {
		return true, fmt.Errorf("persist queue: %w", err)
	}
	return true, nil
}

// IncrementRetry bumps the retry count of an action in memory only.
func (q *Queue) IncrementRetry(id string) bool {
	_, ok := q.RecordFailure(id, "", time.Time{})
	return ok
}

// RecordFailure bumps the retry count of an action in memory and notes the
// failure cause and the earliest next attempt. It returns the new retry count.
func (q *Queue) RecordFailure(id, cause string, nextAttempt time.Time) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := indexOf(q.actions, id)
	if idx < 0 {
		return 0, false
	}
	a := &q.actions[idx]
	a.RetryCount++
	if cause != "" {
		a.LastError = cause
	}
	a.NextAttemptAt = nextAttempt
	return a.RetryCount, true
}

// SetOnline stores the connectivity flag and reports whether it changed.
func (q *Queue) SetOnline(online bool) bool {
	q.mu.Lock()
	changed := q.online != online
	q.online = online
	q.mu.Unlock()

	metrics.SetOnline(online)
	if changed {
		q.logger.Info().Bool("online", online).Msg("connectivity changed")
		if err := q.events.PublishJSON(events.EventConnectivityChanged, events.ConnectivityPayload{
			Online:    online,
			CheckedAt: q.now(),
		}); err != nil {
			q.logger.Warn().Err(err).Msg("failed to publish connectivity event")
		}
	}
	return changed
}

func (q *Queue) Online() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.online
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.actions)
}

// Pending returns a copy of the queued actions in insertion order.
func (q *Queue) Pending() []models.PendingAction {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.PendingAction{}, q.actions...)
}

func (q *Queue) Syncing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.syncing
}

func (q *Queue) LastSyncTime() *time.Time {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.lastSync == nil {
		return nil
	}
	t := *q.lastSync
	return &t
}

func (q *Queue) Snapshot() models.QueueState {
	q.mu.Lock()
	defer q.mu.Unlock()

	state := models.QueueState{
		Online:  q.online,
		Syncing: q.syncing,
		Pending: append([]models.PendingAction{}, q.actions...),
	}
	if q.lastSync != nil {
		t := *q.lastSync
		state.LastSyncTime = &t
	}
	return state
}

// BeginSync takes the sync guard. It returns false when a pass already holds it.
func (q *Queue) BeginSync() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.syncing {
		return false
	}
	q.syncing = true
	return true
}

// AbortSync releases the guard without touching the queue.
func (q *Queue) AbortSync() {
	q.mu.Lock()
	q.syncing = false
	q.mu.Unlock()
}

// FinishSync ends a pass: succeeded ids leave the queue, dead-lettered ids move
// to the dead-letter list, both lists are persisted, the last sync time is set
// and the guard is released. Actions enqueued during the pass are kept.
func (q *Queue) FinishSync(ctx context.Context, succeeded, deadLettered map[string]struct{}) error {
	q.mu.Lock()
	kept := make([]models.PendingAction, 0, len(q.actions))
	var moved []models.PendingAction
	for _, a := range q.actions {
		if _, ok := succeeded[a.ID]; ok {
			continue
		}
		if _, ok := deadLettered[a.ID]; ok {
			moved = append(moved, a)
			continue
		}
		kept = append(kept, a)
	}
	q.actions = kept
	n := len(kept)

	var errs []error
	if err := q.store.Save(ctx, q.actions); err != nil {
		errs = append(errs, fmt.Errorf("persist queue: %w", err))
	}
	if len(moved) > 0 {
		q.deadLetters = append(q.deadLetters, moved...)
		if err := q.store.SaveDeadLetters(ctx, q.deadLetters); err != nil {
			errs = append(errs, fmt.Errorf("persist dead letters: %w", err))
		}
	}

	now := q.now()
	q.lastSync = &now
	q.syncing = false
	q.mu.Unlock()

	metrics.SetPending(n)
	for _, a := range moved {
		q.publishAction(events.EventActionRemoved, a, n, ReasonDeadLettered)
	}
	return errors.Join(errs...)
}

// DeadLetters returns a copy of the dead-letter list.
func (q *Queue) DeadLetters() []models.PendingAction {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.PendingAction{}, q.deadLetters...)
}

// DiscardDeadLetter permanently drops a dead-lettered action.
func (q *Queue) DiscardDeadLetter(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := indexOf(q.deadLetters, id)
	if idx < 0 {
		return ErrNotFound
	}
	q.deadLetters = append(q.deadLetters[:idx:idx], q.deadLetters[idx+1:]...)
	if err := q.store.SaveDeadLetters(ctx, q.deadLetters); err != nil {
		return fmt.Errorf("persist dead letters: %w", err)
	}
	return nil
}

// Requeue moves a dead-lettered action back to the tail of the queue with its
// retry state cleared.
func (q *Queue) Requeue(ctx context.Context, id string) (models.PendingAction, error) {
	q.mu.Lock()
	idx := indexOf(q.deadLetters, id)
	if idx < 0 {
		q.mu.Unlock()
		return models.PendingAction{}, ErrNotFound
	}
	action := q.deadLetters[idx]
	action.RetryCount = 0
	action.LastError = ""
	action.NextAttemptAt = time.Time{}

	q.deadLetters = append(q.deadLetters[:idx:idx], q.deadLetters[idx+1:]...)
	q.actions = append(q.actions, action)
	n := len(q.actions)

	var errs []error
	if err := q.store.Save(ctx, q.actions); err != nil {
		errs = append(errs, fmt.Errorf("persist queue: %w", err))
	}
	if err := q.store.SaveDeadLetters(ctx, q.deadLetters); err != nil {
		errs = append(errs, fmt.Errorf("persist dead letters: %w", err))
	}
	q.mu.Unlock()

	metrics.SetPending(n)
	q.publishAction(events.EventActionEnqueued, action, n, ReasonRequeued)
	return action, errors.Join(errs...)
}

func (q *Queue) publishAction(eventType string, a models.PendingAction, pending int, reason string) {
	err := q.events.PublishJSON(eventType, events.ActionPayload{
		ActionID:  a.ID,
		Operation: string(a.Operation),
		Entity:    string(a.Entity),
		Endpoint:  a.Endpoint,
		Pending:   pending,
		Reason:    reason,
	})
	if err != nil {
		q.logger.Warn().Err(err).Str("event", eventType).Msg("failed to publish queue event")
	}
}

func indexOf(actions []models.PendingAction, id string) int {
	for i := range actions {
		if actions[i].ID == id {
			return i
		}
	}
	return -1
}
