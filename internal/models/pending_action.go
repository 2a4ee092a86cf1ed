package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Operation determines how a pending action is replayed against the backend.
type Operation string

const (
	OperationCreate Operation = "CREATE"
	OperationUpdate Operation = "UPDATE"
	OperationDelete Operation = "DELETE"
)

// Valid reports whether op is one of the known operations.
func (op Operation) Valid() bool {
	switch op {
	case OperationCreate, OperationUpdate, OperationDelete:
		return true
	default:
		return false
	}
}

// ParseOperation normalizes a user supplied operation name.
func ParseOperation(raw string) (Operation, error) {
	op := Operation(strings.ToUpper(strings.TrimSpace(raw)))
	if !op.Valid() {
		return "", fmt.Errorf("unknown operation %q", raw)
	}
	return op, nil
}

// PendingAction is one buffered mutation awaiting replay.
type PendingAction struct {
	ID         string
	Operation  Operation
	Entity     EntityKind
	Endpoint   string
	Payload    Payload
	CreatedAt  time.Time
	RetryCount int

	// LastError and NextAttemptAt are set on failed replays.
	LastError     string
	NextAttemptAt time.Time
}

// NewActionID returns a time-ordered id with a random suffix.
func NewActionID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
	return strconv.FormatInt(now.UnixMilli(), 36) + "-" + suffix
}

type pendingActionJSON struct {
	ID            string          `json:"id"`
	Operation     Operation       `json:"operation"`
	Entity        EntityKind      `json:"entity"`
	Endpoint      string          `json:"endpoint"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	CreatedAt     int64           `json:"created_at"`
	RetryCount    int             `json:"retry_count"`
	LastError     string          `json:"last_error,omitempty"`
	NextAttemptAt int64           `json:"next_attempt_at,omitempty"`
}

// MarshalJSON writes timestamps as unix milliseconds and the payload as a plain object.
func (a PendingAction) MarshalJSON() ([]byte, error) {
	out := pendingActionJSON{
		ID:         a.ID,
		Operation:  a.Operation,
		Entity:     a.Entity,
		Endpoint:   a.Endpoint,
		CreatedAt:  a.CreatedAt.UnixMilli(),
		RetryCount: a.RetryCount,
		LastError:  a.LastError,
	}
	if !a.NextAttemptAt.IsZero() {
		out.NextAttemptAt = a.NextAttemptAt.UnixMilli()
	}
	if a.Payload != nil {
		raw, err := json.Marshal(a.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		out.Payload = raw
	}
	return json.Marshal(out)
}

func (a *PendingAction) UnmarshalJSON(data []byte) error {
	var in pendingActionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	payload, err := DecodePayload(in.Entity, in.Payload)
	if err != nil {
		return err
	}

	*a = PendingAction{
		ID:         in.ID,
		Operation:  in.Operation,
		Entity:     in.Entity,
		Endpoint:   in.Endpoint,
		Payload:    payload,
		CreatedAt:  time.UnixMilli(in.CreatedAt),
		RetryCount: in.RetryCount,
		LastError:  in.LastError,
	}
	if in.NextAttemptAt > 0 {
		a.NextAttemptAt = time.UnixMilli(in.NextAttemptAt)
	}
	return nil
}
