package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burnt-labs/abstraxion-backend/storage"
)

func addKey(t *testing.T, a *Adapter, userID, address string, state ...storage.SessionState) {
	t.Helper()
	err := a.AddNewSessionKey(context.Background(), userID, storage.NewSessionKey{
		Address:           address,
		EncryptedMaterial: "encrypted:" + address,
		Expiry:            time.Now().Add(time.Hour),
	}, state...)
	require.NoError(t, err)
}

func TestAdapter_GetSessionKey(t *testing.T) {
	a := NewAdapter()
	addKey(t, a, "u1", "addr1")

	info, err := a.GetSessionKey(context.Background(), "u1", "addr1")
	require.NoError(t, err)
	assert.Equal(t, "u1", info.UserID)
	assert.Equal(t, storage.StatePending, info.SessionState)
	assert.Equal(t, "encrypted:addr1", info.SessionKeyMaterial)

	_, err = a.GetSessionKey(context.Background(), "u1", "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = a.GetSessionKey(context.Background(), "other", "addr1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAdapter_GetLastSessionKey(t *testing.T) {
	a := NewAdapter()
	_, err := a.GetLastSessionKey(context.Background(), "u1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	addKey(t, a, "u1", "addr1")
	time.Sleep(2 * time.Millisecond)
	addKey(t, a, "u1", "addr2")

	info, err := a.GetLastSessionKey(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "addr2", info.SessionKeyAddress)
}

func TestAdapter_ConditionalUpdate(t *testing.T) {
	a := NewAdapter()
	addKey(t, a, "u1", "addr1")

	active := storage.StateActive
	pending := storage.StatePending
	granter := "xion1granter"
	err := a.UpdateSessionKeyWithParams(context.Background(), "u1", "addr1", storage.SessionKeyUpdate{
		State:              &active,
		MetaAccountAddress: &granter,
		ExpectedState:      &pending,
	})
	require.NoError(t, err)

	info, err := a.GetSessionKey(context.Background(), "u1", "addr1")
	require.NoError(t, err)
	assert.Equal(t, storage.StateActive, info.SessionState)
	assert.Equal(t, granter, info.MetaAccountAddress)

	// Second conditional update against PENDING must conflict.
	err = a.UpdateSessionKeyWithParams(context.Background(), "u1", "addr1", storage.SessionKeyUpdate{
		State:         &active,
		ExpectedState: &pending,
	})
	assert.ErrorIs(t, err, storage.ErrStateConflict)
}

func TestAdapter_UpdateMissing(t *testing.T) {
	a := NewAdapter()
	active := storage.StateActive
	err := a.UpdateSessionKeyWithParams(context.Background(), "u1", "nope", storage.SessionKeyUpdate{State: &active})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAdapter_RevokeSessionKey(t *testing.T) {
	a := NewAdapter()
	addKey(t, a, "u1", "addr1", storage.StateActive)

	revoked, err := a.RevokeSessionKey(context.Background(), "u1", "addr1")
	require.NoError(t, err)
	assert.True(t, revoked)

	info, err := a.GetSessionKey(context.Background(), "u1", "addr1")
	require.NoError(t, err)
	assert.Equal(t, storage.StateRevoked, info.SessionState)

	revoked, err = a.RevokeSessionKey(context.Background(), "u1", "missing")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestAdapter_RevokeActiveSessionKeys(t *testing.T) {
	a := NewAdapter()
	addKey(t, a, "u1", "addr1", storage.StateActive)
	addKey(t, a, "u1", "addr2", storage.StateActive)
	addKey(t, a, "u1", "addr3") // PENDING, untouched
	addKey(t, a, "u2", "addr4", storage.StateActive)

	require.NoError(t, a.RevokeActiveSessionKeys(context.Background(), "u1"))

	active, err := a.GetActiveSessionKeys(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, active)

	pending, err := a.GetSessionKey(context.Background(), "u1", "addr3")
	require.NoError(t, err)
	assert.Equal(t, storage.StatePending, pending.SessionState)

	othersActive, err := a.GetActiveSessionKeys(context.Background(), "u2")
	require.NoError(t, err)
	assert.Len(t, othersActive, 1)

	// No active keys left: still a no-op success.
	require.NoError(t, a.RevokeActiveSessionKeys(context.Background(), "u1"))
}

func TestAdapter_AuditLogs(t *testing.T) {
	a := NewAdapter()
	for i, action := range []storage.AuditAction{
		storage.AuditSessionKeyCreated,
		storage.AuditSessionKeyUpdated,
		storage.AuditSessionKeyRevoked,
	} {
		err := a.LogAuditEvent(context.Background(), storage.AuditEvent{
			ID:        string(rune('a' + i)),
			UserID:    "u1",
			Action:    action,
			Timestamp: time.Now().UTC(),
		})
		require.NoError(t, err)
	}

	events, err := a.GetAuditLogs(context.Background(), "u1", 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	// Newest first.
	assert.Equal(t, storage.AuditSessionKeyRevoked, events[0].Action)
	assert.Equal(t, storage.AuditSessionKeyCreated, events[2].Action)

	limited, err := a.GetAuditLogs(context.Background(), "u1", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestAdapter_CloneIsolation(t *testing.T) {
	a := NewAdapter()
	addKey(t, a, "u1", "addr1")

	info, err := a.GetSessionKey(context.Background(), "u1", "addr1")
	require.NoError(t, err)
	info.SessionState = storage.StateRevoked

	again, err := a.GetSessionKey(context.Background(), "u1", "addr1")
	require.NoError(t, err)
	assert.Equal(t, storage.StatePending, again.SessionState)
}

func TestAdapter_HealthCheckAndClose(t *testing.T) {
	a := NewAdapter()
	assert.True(t, a.HealthCheck(context.Background()))
	require.NoError(t, a.Close())
	assert.False(t, a.HealthCheck(context.Background()))
}
