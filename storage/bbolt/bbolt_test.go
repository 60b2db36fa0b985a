package bbolt

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burnt-labs/abstraxion-backend/storage"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	a, err := NewAdapterFromFile(t.TempDir()+"/sessions.db", nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func addKey(t *testing.T, a *Adapter, userID, address string, state ...storage.SessionState) {
	t.Helper()
	err := a.AddNewSessionKey(context.Background(), userID, storage.NewSessionKey{
		Address:           address,
		EncryptedMaterial: "encrypted:" + address,
		Expiry:            time.Now().Add(time.Hour),
	}, state...)
	require.NoError(t, err)
}

func TestAdapter_PersistAndGet(t *testing.T) {
	a := newTestAdapter(t)
	addKey(t, a, "u1", "addr1")

	info, err := a.GetSessionKey(context.Background(), "u1", "addr1")
	require.NoError(t, err)
	assert.Equal(t, storage.StatePending, info.SessionState)
	assert.Equal(t, "encrypted:addr1", info.SessionKeyMaterial)

	_, err = a.GetSessionKey(context.Background(), "u1", "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAdapter_GetLastSessionKey(t *testing.T) {
	a := newTestAdapter(t)
	_, err := a.GetLastSessionKey(context.Background(), "u1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	addKey(t, a, "u1", "addr1")
	time.Sleep(2 * time.Millisecond)
	addKey(t, a, "u1", "addr2")

	info, err := a.GetLastSessionKey(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "addr2", info.SessionKeyAddress)
}

func TestAdapter_ConditionalUpdateGuard(t *testing.T) {
	a := newTestAdapter(t)
	addKey(t, a, "u1", "addr1")

	active := storage.StateActive
	pending := storage.StatePending
	err := a.UpdateSessionKeyWithParams(context.Background(), "u1", "addr1", storage.SessionKeyUpdate{
		State:         &active,
		ExpectedState: &pending,
	})
	require.NoError(t, err)

	err = a.UpdateSessionKeyWithParams(context.Background(), "u1", "addr1", storage.SessionKeyUpdate{
		State:         &active,
		ExpectedState: &pending,
	})
	assert.ErrorIs(t, err, storage.ErrStateConflict)
}

func TestAdapter_RevokeFlow(t *testing.T) {
	a := newTestAdapter(t)
	addKey(t, a, "u1", "addr1", storage.StateActive)
	addKey(t, a, "u1", "addr2", storage.StateActive)
	addKey(t, a, "u2", "addr3", storage.StateActive)

	revoked, err := a.RevokeSessionKey(context.Background(), "u1", "addr1")
	require.NoError(t, err)
	assert.True(t, revoked)

	require.NoError(t, a.RevokeActiveSessionKeys(context.Background(), "u1"))

	active, err := a.GetActiveSessionKeys(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, active)

	otherActive, err := a.GetActiveSessionKeys(context.Background(), "u2")
	require.NoError(t, err)
	assert.Len(t, otherActive, 1)

	revoked, err = a.RevokeSessionKey(context.Background(), "u1", "missing")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestAdapter_AuditOrderAndLimit(t *testing.T) {
	a := newTestAdapter(t)
	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		err := a.LogAuditEvent(context.Background(), storage.AuditEvent{
			ID:        fmt.Sprintf("ev-%d", i),
			UserID:    "u1",
			Action:    storage.AuditSessionKeyAccessed,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	events, err := a.GetAuditLogs(context.Background(), "u1", 0)
	require.NoError(t, err)
	require.Len(t, events, 5)
	assert.Equal(t, "ev-4", events[0].ID)
	assert.Equal(t, "ev-0", events[4].ID)

	limited, err := a.GetAuditLogs(context.Background(), "u1", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "ev-4", limited[0].ID)
	assert.Equal(t, "ev-3", limited[1].ID)
}

func TestAdapter_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	a, err := NewAdapterFromFile(dir+"/sessions.db", nil)
	require.NoError(t, err)
	addKey(t, a, "u1", "addr1", storage.StateActive)
	require.NoError(t, a.Close())

	reopened, err := NewAdapterFromFile(dir+"/sessions.db", nil)
	require.NoError(t, err)
	defer reopened.Close()

	info, err := reopened.GetSessionKey(context.Background(), "u1", "addr1")
	require.NoError(t, err)
	assert.Equal(t, storage.StateActive, info.SessionState)
}

func TestAdapter_HealthCheck(t *testing.T) {
	a := newTestAdapter(t)
	assert.True(t, a.HealthCheck(context.Background()))
}
