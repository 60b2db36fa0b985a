package statestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMemoryStore_SetGetDelete(t *testing.T) {
	s := newTestStore(t)
	entry := Entry{UserID: "u1", SessionKeyAddress: "xion1abc"}

	require.NoError(t, s.Set(context.Background(), "token-1", entry, time.Minute))

	got, err := s.Get(context.Background(), "token-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "xion1abc", got.SessionKeyAddress)

	require.NoError(t, s.Delete(context.Background(), "token-1"))
	got, err = s.Get(context.Background(), "token-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Deleting an absent token is a no-op.
	require.NoError(t, s.Delete(context.Background(), "token-1"))
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Set(context.Background(), "token-1", Entry{UserID: "u1"}, 20*time.Millisecond))

	time.Sleep(40 * time.Millisecond)
	got, err := s.Get(context.Background(), "token-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Keys)
}

func TestMemoryStore_Stats(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Set(context.Background(), "token-1", Entry{UserID: "u1"}, time.Minute))
	require.NoError(t, s.Set(context.Background(), "token-2", Entry{UserID: "u2"}, time.Minute))

	_, err := s.Get(context.Background(), "token-1")
	require.NoError(t, err)
	_, err = s.Get(context.Background(), "missing")
	require.NoError(t, err)

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Keys)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(len("token-1")+len("token-2")), stats.KSize)
	assert.Positive(t, stats.VSize)
}

func TestMemoryStore_OverwriteKeepsSizesConsistent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Set(context.Background(), "token-1", Entry{UserID: "u1"}, time.Minute))
	require.NoError(t, s.Set(context.Background(), "token-1", Entry{UserID: "user-with-longer-id"}, time.Minute))

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Keys)
	assert.Equal(t, int64(len("token-1")), stats.KSize)
}

func TestMemoryStore_Clear(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Set(context.Background(), "token-1", Entry{UserID: "u1"}, time.Minute))
	require.NoError(t, s.Clear(context.Background()))

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Keys)
	assert.Equal(t, int64(0), stats.KSize)
	assert.Equal(t, int64(0), stats.VSize)
}

func TestMemoryStore_CloseTwice(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}
