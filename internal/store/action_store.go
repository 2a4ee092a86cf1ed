package store

import (
	"context"
	"encoding/json"
	"fmt"

	"erpsync/internal/domain"
	"erpsync/internal/models"

	"github.com/rs/zerolog"
)

// ActionStore serializes pending actions as a JSON array under fixed keys of a
// KVBackend. Reads never fail: absent or unreadable data is an empty list.
type ActionStore struct {
	backend       domain.KVBackend
	pendingKey    string
	deadLetterKey string
	logger        *zerolog.Logger
}

func NewActionStore(backend domain.KVBackend, pendingKey, deadLetterKey string, logger *zerolog.Logger) *ActionStore {
	if pendingKey == "" {
		pendingKey = models.DefaultPendingKey
	}
	if deadLetterKey == "" {
		deadLetterKey = models.DefaultDeadLetterKey
	}
	return &ActionStore{
		backend:       backend,
		pendingKey:    pendingKey,
		deadLetterKey: deadLetterKey,
		logger:        logger,
	}
}

func (s *ActionStore) Load(ctx context.Context) []models.PendingAction {
	return s.load(ctx, s.pendingKey)
}

func (s *ActionStore) Save(ctx context.Context, actions []models.PendingAction) error {
	return s.save(ctx, s.pendingKey, actions)
}

func (s *ActionStore) LoadDeadLetters(ctx context.Context) []models.PendingAction {
	return s.load(ctx, s.deadLetterKey)
}

func (s *ActionStore) SaveDeadLetters(ctx context.Context, actions []models.PendingAction) error {
	return s.save(ctx, s.deadLetterKey, actions)
}

func (s *ActionStore) load(ctx context.Context, key string) []models.PendingAction {
	raw, err := s.backend.Get(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("offline store unreadable, starting empty")
		return []models.PendingAction{}
	}
	if len(raw) == 0 {
		return []models.PendingAction{}
	}

	var actions []models.PendingAction
	if err := json.Unmarshal(raw, &actions); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Int("bytes", len(raw)).Msg("offline store corrupted, starting empty")
		return []models.PendingAction{}
	}
	if actions == nil {
		actions = []models.PendingAction{}
	}
	return actions
}

func (s *ActionStore) save(ctx context.Context, key string, actions []models.PendingAction) error {
	if actions == nil {
		actions = []models.PendingAction{}
	}
	raw, err := json.Marshal(actions)
	if err != nil {
		return fmt.Errorf("encode pending actions: %w", err)
	}
	if err := s.backend.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("persist %s: %w", key, err)
	}
	return nil
}
