package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockBackend) Set(ctx context.Context, key string, value []byte) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *mockBackend) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func newTestFailover(primary *mockBackend, fallback *MemoryBackend) (*FailoverBackend, *time.Time) {
	logger := zerolog.Nop()
	repo := NewFailoverBackend(primary, fallback, time.Minute, &logger)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return clock }
	return repo, &clock
}

func TestFailoverBackend(t *testing.T) {
	ctx := context.Background()

	t.Run("PrimarySuccessMirrorsFallback", func(t *testing.T) {
		primary := new(mockBackend)
		fallback := NewMemoryBackend()
		repo, _ := newTestFailover(primary, fallback)

		primary.On("Set", ctx, "k", []byte("v1")).Return(nil).Once()
		primary.On("Get", ctx, "k").Return([]byte("v1"), nil).Once()

		require.NoError(t, repo.Set(ctx, "k", []byte("v1")))
		got, err := repo.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), got)

		mirrored, _ := fallback.Get(ctx, "k")
		assert.Equal(t, []byte("v1"), mirrored)
		assert.False(t, repo.Degraded())
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryFailFallbackServes", func(t *testing.T) {
		primary := new(mockBackend)
		fallback := NewMemoryBackend()
		repo, _ := newTestFailover(primary, fallback)

		primary.On("Get", ctx, "k").Return([]byte("cached"), nil).Once()
		require.NoError(t, repo.Prime(ctx, "k"))
		primary.On("Get", ctx, "k").Return(nil, errors.New("connection refused")).Once()

		got, err := repo.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("cached"), got)
		assert.True(t, repo.Degraded())

		// while degraded the primary is not touched
		got, err = repo.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("cached"), got)
		primary.AssertExpectations(t)
	})

	t.Run("RecoveryCopiesDirtyKeys", func(t *testing.T) {
		primary := new(mockBackend)
		fallback := NewMemoryBackend()
		repo, clock := newTestFailover(primary, fallback)
		primary.On("Get", ctx, "pending").Return([]byte("v0"), nil).Once()
		primary.On("Get", ctx, "dead").Return(nil, nil).Once()
		require.NoError(t, repo.Prime(ctx, "pending", "dead"))

		primary.On("Set", ctx, "pending", []byte("v1")).Return(errors.New("down")).Once()
		require.NoError(t, repo.Set(ctx, "pending", []byte("v1")))
		require.NoError(t, repo.Delete(ctx, "dead"))
		assert.True(t, repo.Degraded())

		*clock = clock.Add(2 * time.Minute)
		primary.On("Set", ctx, "pending", []byte("v1")).Return(nil).Once()
		primary.On("Delete", ctx, "dead").Return(nil).Once()
		primary.On("Get", ctx, "pending").Return([]byte("v1"), nil).Once()

		got, err := repo.Get(ctx, "pending")
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), got)
		assert.False(t, repo.Degraded())
		primary.AssertExpectations(t)
	})

	t.Run("RecoveryAttemptFails", func(t *testing.T) {
		primary := new(mockBackend)
		fallback := NewMemoryBackend()
		repo, clock := newTestFailover(primary, fallback)
		primary.On("Get", ctx, "pending").Return([]byte("v1"), nil).Once()
		require.NoError(t, repo.Prime(ctx, "pending"))

		primary.On("Set", ctx, "pending", []byte("v2")).Return(errors.New("down")).Once()
		require.NoError(t, repo.Set(ctx, "pending", []byte("v2")))

		*clock = clock.Add(2 * time.Minute)
		primary.On("Set", ctx, "pending", []byte("v2")).Return(errors.New("still down")).Once()

		got, err := repo.Get(ctx, "pending")
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), got)
		assert.True(t, repo.Degraded())

		// the failed probe restarts the recovery window
		got, err = repo.Get(ctx, "pending")
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), got)
		primary.AssertExpectations(t)
	})

	t.Run("DeleteFailover", func(t *testing.T) {
		primary := new(mockBackend)
		fallback := NewMemoryBackend()
		repo, _ := newTestFailover(primary, fallback)
		primary.On("Get", ctx, "k").Return([]byte("x"), nil).Once()
		require.NoError(t, repo.Prime(ctx, "k"))

		primary.On("Delete", ctx, "k").Return(errors.New("fail")).Once()
		require.NoError(t, repo.Delete(ctx, "k"))

		got, _ := fallback.Get(ctx, "k")
		assert.Nil(t, got)
		assert.True(t, repo.Degraded())
		primary.AssertExpectations(t)
	})

	t.Run("UnsyncedKeyRefusedWhileDegraded", func(t *testing.T) {
		primary := new(mockBackend)
		fallback := NewMemoryBackend()
		repo, clock := newTestFailover(primary, fallback)

		primary.On("Get", ctx, "pending").Return(nil, errors.New("connection refused")).Once()
		_, err := repo.Get(ctx, "pending")
		assert.ErrorIs(t, err, ErrPrimaryUnavailable)
		assert.ErrorIs(t, repo.Set(ctx, "pending", []byte("[C]")), ErrPrimaryUnavailable)
		assert.ErrorIs(t, repo.Delete(ctx, "pending"), ErrPrimaryUnavailable)

		got, _ := fallback.Get(ctx, "pending")
		assert.Nil(t, got)

		// nothing dirty, so recovery writes nothing over the primary's value
		*clock = clock.Add(2 * time.Minute)
		primary.On("Get", ctx, "pending").Return([]byte("[A,B]"), nil).Once()
		got, err = repo.Get(ctx, "pending")
		require.NoError(t, err)
		assert.Equal(t, []byte("[A,B]"), got)
		assert.False(t, repo.Degraded())
		primary.AssertExpectations(t)
	})

	t.Run("PrimeFailsWhenPrimaryDown", func(t *testing.T) {
		primary := new(mockBackend)
		repo, _ := newTestFailover(primary, NewMemoryBackend())

		primary.On("Get", ctx, "pending").Return(nil, errors.New("connection refused")).Once()
		err := repo.Prime(ctx, "pending", "dead")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "pending")
		primary.AssertExpectations(t)
	})

	t.Run("ReadMirrorsFallback", func(t *testing.T) {
		primary := new(mockBackend)
		fallback := NewMemoryBackend()
		repo, _ := newTestFailover(primary, fallback)

		primary.On("Get", ctx, "pending").Return([]byte("[A]"), nil).Once()
		primary.On("Set", ctx, "pending", []byte("[A,B]")).Return(errors.New("down")).Once()

		_, err := repo.Get(ctx, "pending")
		require.NoError(t, err)
		require.NoError(t, repo.Set(ctx, "pending", []byte("[A,B]")))

		got, err := repo.Get(ctx, "pending")
		require.NoError(t, err)
		assert.Equal(t, []byte("[A,B]"), got)
		primary.AssertExpectations(t)
	})
}
