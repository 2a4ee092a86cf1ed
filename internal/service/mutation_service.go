package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"erpsync/internal/apiclient"
	"erpsync/internal/domain"
	"erpsync/internal/models"
	"erpsync/internal/queue"

	"github.com/rs/zerolog"
)

var ErrInvalidMutation = errors.New("invalid mutation")

// ConnectivityRefresher polls connectivity and may start a sync pass on the way.
type ConnectivityRefresher interface {
	Refresh(ctx context.Context) (bool, *models.SyncResult, error)
}

// Mutation is one create, update or delete requested by a front-end.
type Mutation struct {
	Operation models.Operation
	Entity    models.EntityKind
	Endpoint  string
	Payload   models.Payload
}

// Submission reports where a mutation went. Action is set when it was queued.
type Submission struct {
	Queued bool
	Action *models.PendingAction
}

// MutationService is the entry point for domain mutations. Online with an
// empty queue it calls the backend directly; otherwise the mutation is queued
// behind the pending ones so replay order matches submission order.
type MutationService struct {
	queue   *queue.Queue
	api     domain.RemoteAPI
	refresh ConnectivityRefresher
	logger  *zerolog.Logger
}

func NewMutationService(q *queue.Queue, api domain.RemoteAPI, refresh ConnectivityRefresher, logger *zerolog.Logger) *MutationService {
	return &MutationService{queue: q, api: api, refresh: refresh, logger: logger}
}

func (s *MutationService) Submit(ctx context.Context, m Mutation) (Submission, error) {
	if err := validate(m); err != nil {
		return Submission{}, err
	}

	online, _, err := s.refresh.Refresh(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("sync triggered by submission failed")
	}

	if online && s.queue.Len() == 0 && !s.queue.Syncing() {
		err := s.apply(ctx, m)
		if err == nil {
			return Submission{}, nil
		}
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) {
			return Submission{}, err
		}
		s.logger.Warn().Err(err).Str("endpoint", m.Endpoint).Msg("direct call failed, queueing mutation")
		s.queue.SetOnline(false)
	}

	action, err := s.queue.Enqueue(ctx, m.Operation, m.Entity, m.Endpoint, m.Payload)
	return Submission{Queued: true, Action: &action}, err
}

func (s *MutationService) apply(ctx context.Context, m Mutation) error {
	switch m.Operation {
	case models.OperationCreate:
		return s.api.Create(ctx, m.Endpoint, m.Payload)
	case models.OperationUpdate:
		return s.api.Update(ctx, m.Endpoint, m.Payload)
	default:
		return s.api.Delete(ctx, m.Endpoint)
	}
}

func validate(m Mutation) error {
	if !m.Operation.Valid() {
		return fmt.Errorf("%w: unknown operation %q", ErrInvalidMutation, m.Operation)
	}
	if strings.TrimSpace(string(m.Entity)) == "" {
		return fmt.Errorf("%w: entity is required", ErrInvalidMutation)
	}
	if strings.TrimSpace(m.Endpoint) == "" {
		return fmt.Errorf("%w: endpoint is required", ErrInvalidMutation)
	}
	if m.Operation != models.OperationDelete && m.Payload == nil {
		return fmt.Errorf("%w: %s requires a payload", ErrInvalidMutation, m.Operation)
	}
	if m.Payload != nil && m.Payload.Entity() != m.Entity {
		return fmt.Errorf("%w: payload is %s, entity is %s", ErrInvalidMutation, m.Payload.Entity(), m.Entity)
	}
	return nil
}
