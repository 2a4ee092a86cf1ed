package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBackend(t *testing.T) {
	repo := NewMemoryBackend()
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		value := []byte("hello")
		require.NoError(t, repo.Set(ctx, "k", value))
		value[0] = 'j'

		got, err := repo.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), got, "stored value is a copy")
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, "k"))
		got, err := repo.Get(ctx, "k")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}
