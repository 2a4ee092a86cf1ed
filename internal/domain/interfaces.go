package domain

import (
	"context"

	"erpsync/internal/models"
)

// KVBackend is a byte-oriented key-value store. Get returns (nil, nil) for a missing key.
type KVBackend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// ActionStore persists the pending action list and the dead-letter list.
type ActionStore interface {
	Load(ctx context.Context) []models.PendingAction
	Save(ctx context.Context, actions []models.PendingAction) error
	LoadDeadLetters(ctx context.Context) []models.PendingAction
	SaveDeadLetters(ctx context.Context, actions []models.PendingAction) error
}

// ConnectivityMonitor answers whether the backend network is reachable right now.
type ConnectivityMonitor interface {
	FetchStatus(ctx context.Context) bool
}

// RemoteAPI replays mutations against the ERP backend. Calls are already authenticated.
type RemoteAPI interface {
	Create(ctx context.Context, endpoint string, payload models.Payload) error
	Update(ctx context.Context, endpoint string, payload models.Payload) error
	Delete(ctx context.Context, endpoint string) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}
