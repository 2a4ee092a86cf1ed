package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"erpsync/internal/domain"

	"github.com/rs/zerolog"
)

// ErrPrimaryUnavailable is returned while degraded for keys the fallback has
// never held a primary-confirmed copy of. Serving or overwriting such a key
// from the fallback would replace the primary's value on recovery.
var ErrPrimaryUnavailable = errors.New("primary store unavailable and key not synced")

// FailoverBackend writes through to a primary backend and mirrors every value
// it reads or writes into a fallback. When the primary fails, reads and writes
// of synced keys move to the fallback; keys written meanwhile are copied back
// before the primary is trusted again.
type FailoverBackend struct {
	primary       domain.KVBackend
	fallback      domain.KVBackend
	logger        *zerolog.Logger
	recoveryAfter time.Duration
	now           func() time.Time

	isDown    atomic.Bool
	lastCheck atomic.Int64

	mu     sync.Mutex
	dirty  map[string]struct{}
	synced map[string]struct{}
}

func NewFailoverBackend(primary, fallback domain.KVBackend, recoveryAfter time.Duration, logger *zerolog.Logger) *FailoverBackend {
	if recoveryAfter <= 0 {
		recoveryAfter = time.Minute
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &FailoverBackend{
		primary:       primary,
		fallback:      fallback,
		logger:        logger,
		recoveryAfter: recoveryAfter,
		now:           time.Now,
		dirty:         make(map[string]struct{}),
		synced:        make(map[string]struct{}),
	}
}

// Prime reads keys from the primary and mirrors them into the fallback. It
// fails when the primary cannot be read, so callers can refuse to start on a
// fallback that has never seen the stored values.
func (r *FailoverBackend) Prime(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		val, err := r.primary.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("read %s from primary: %w", key, err)
		}
		r.mirror(ctx, key, val)
	}
	return nil
}

func (r *FailoverBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if r.primaryAvailable(ctx) {
		val, err := r.primary.Get(ctx, key)
		if err == nil {
			r.mirror(ctx, key, val)
			return val, nil
		}
		r.markDown(err)
	}
	if !r.isSynced(key) {
		return nil, ErrPrimaryUnavailable
	}
	return r.fallback.Get(ctx, key)
}

func (r *FailoverBackend) Set(ctx context.Context, key string, value []byte) error {
	if r.primaryAvailable(ctx) {
		err := r.primary.Set(ctx, key, value)
		if err == nil {
			r.mirror(ctx, key, value)
			return nil
		}
		r.markDown(err)
	}
	if !r.isSynced(key) {
		return ErrPrimaryUnavailable
	}

	r.markDirty(key)
	return r.fallback.Set(ctx, key, value)
}

func (r *FailoverBackend) Delete(ctx context.Context, key string) error {
	if r.primaryAvailable(ctx) {
		err := r.primary.Delete(ctx, key)
		if err == nil {
			r.mirror(ctx, key, nil)
			return nil
		}
		r.markDown(err)
	}
	if !r.isSynced(key) {
		return ErrPrimaryUnavailable
	}

	r.markDirty(key)
	return r.fallback.Delete(ctx, key)
}

// Degraded reports whether calls are currently served by the fallback.
func (r *FailoverBackend) Degraded() bool {
	return r.isDown.Load()
}

// mirror copies a primary-confirmed value into the fallback; nil deletes it.
func (r *FailoverBackend) mirror(ctx context.Context, key string, val []byte) {
	var err error
	if val == nil {
		err = r.fallback.Delete(ctx, key)
	} else {
		err = r.fallback.Set(ctx, key, val)
	}
	if err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("fallback mirror write failed")
		return
	}
	r.mu.Lock()
	r.synced[key] = struct{}{}
	r.mu.Unlock()
}

func (r *FailoverBackend) isSynced(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.synced[key]
	return ok
}

func (r *FailoverBackend) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("primary store failed, falling back")
	}
	r.lastCheck.Store(r.now().UnixNano())
}

func (r *FailoverBackend) markDirty(key string) {
	r.mu.Lock()
	r.dirty[key] = struct{}{}
	r.mu.Unlock()
}

// primaryAvailable returns true when the primary is healthy, or when the
// recovery window has passed and every dirty key was copied back to it.
func (r *FailoverBackend) primaryAvailable(ctx context.Context) bool {
	if !r.isDown.Load() {
		return true
	}
	since := r.now().Sub(time.Unix(0, r.lastCheck.Load()))
	if since < r.recoveryAfter {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for key := range r.dirty {
		val, err := r.fallback.Get(ctx, key)
		if err == nil {
			if val == nil {
				err = r.primary.Delete(ctx, key)
			} else {
				err = r.primary.Set(ctx, key, val)
			}
		}
		if err != nil {
			r.lastCheck.Store(r.now().UnixNano())
			r.logger.Debug().Err(err).Msg("primary store still unavailable")
			return false
		}
		delete(r.dirty, key)
	}

	r.isDown.Store(false)
	r.logger.Info().Msg("primary store recovered")
	return true
}
