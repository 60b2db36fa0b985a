// Package memory provides a thread-safe in-memory implementation of
// storage.Adapter. Suitable for tests, demos, and single-process use.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/burnt-labs/abstraxion-backend/storage"
)

// Adapter is a thread-safe in-memory implementation of storage.Adapter.
// Records are lost on process exit.
type Adapter struct {
	mu     sync.RWMutex
	keys   map[string][]*storage.SessionKeyInfo
	audits map[string][]storage.AuditEvent
	closed bool
}

var _ storage.Adapter = (*Adapter)(nil)

// NewAdapter creates an empty in-memory Adapter.
func NewAdapter() *Adapter {
	return &Adapter{
		keys:   make(map[string][]*storage.SessionKeyInfo),
		audits: make(map[string][]storage.AuditEvent),
	}
}

func cloneInfo(info *storage.SessionKeyInfo) *storage.SessionKeyInfo {
	if info == nil {
		return nil
	}
	out := *info
	if info.SessionPermissions != nil {
		perms := *info.SessionPermissions
		perms.Contracts = append([]storage.ContractGrant(nil), info.SessionPermissions.Contracts...)
		perms.Bank = append([]storage.SpendLimit(nil), info.SessionPermissions.Bank...)
		out.SessionPermissions = &perms
	}
	return &out
}

func (a *Adapter) GetLastSessionKey(ctx context.Context, userID string) (*storage.SessionKeyInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	records := a.keys[userID]
	if len(records) == 0 {
		return nil, storage.ErrNotFound
	}
	last := records[0]
	for _, r := range records[1:] {
		if r.CreatedAt.After(last.CreatedAt) {
			last = r
		}
	}
	return cloneInfo(last), nil
}

func (a *Adapter) GetSessionKey(ctx context.Context, userID, address string) (*storage.SessionKeyInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	info := a.findLocked(userID, address)
	if info == nil {
		return nil, storage.ErrNotFound
	}
	return cloneInfo(info), nil
}

func (a *Adapter) findLocked(userID, address string) *storage.SessionKeyInfo {
	for _, r := range a.keys[userID] {
		if r.SessionKeyAddress == address {
			return r
		}
	}
	return nil
}

func (a *Adapter) GetActiveSessionKeys(ctx context.Context, userID string) ([]*storage.SessionKeyInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	var active []*storage.SessionKeyInfo
	for _, r := range a.keys[userID] {
		if r.SessionState == storage.StateActive {
			active = append(active, cloneInfo(r))
		}
	}
	return active, nil
}

func (a *Adapter) AddNewSessionKey(ctx context.Context, userID string, key storage.NewSessionKey, state ...storage.SessionState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	initial := storage.StatePending
	if len(state) > 0 {
		initial = state[0]
	}
	now := time.Now().UTC()
	info := &storage.SessionKeyInfo{
		UserID:             userID,
		SessionKeyAddress:  key.Address,
		SessionKeyMaterial: key.EncryptedMaterial,
		SessionKeyExpiry:   key.Expiry,
		SessionState:       initial,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys[userID] = append(a.keys[userID], info)
	return nil
}

func (a *Adapter) UpdateSessionKeyWithParams(ctx context.Context, userID, address string, update storage.SessionKeyUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	info := a.findLocked(userID, address)
	if info == nil {
		return storage.ErrNotFound
	}
	if update.ExpectedState != nil && info.SessionState != *update.ExpectedState {
		return storage.ErrStateConflict
	}
	if update.State != nil {
		info.SessionState = *update.State
	}
	if update.MetaAccountAddress != nil {
		info.MetaAccountAddress = *update.MetaAccountAddress
	}
	if update.Permissions != nil {
		info.SessionPermissions = cloneInfo(&storage.SessionKeyInfo{SessionPermissions: update.Permissions}).SessionPermissions
	}
	if update.Expiry != nil {
		info.SessionKeyExpiry = *update.Expiry
	}
	if update.EncryptedMaterial != nil {
		info.SessionKeyMaterial = *update.EncryptedMaterial
	}
	info.UpdatedAt = time.Now().UTC()
	return nil
}

func (a *Adapter) RevokeSessionKey(ctx context.Context, userID, address string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	info := a.findLocked(userID, address)
	if info == nil {
		return false, nil
	}
	info.SessionState = storage.StateRevoked
	info.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (a *Adapter) RevokeActiveSessionKeys(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	now := time.Now().UTC()
	for _, r := range a.keys[userID] {
		if r.SessionState == storage.StateActive {
			r.SessionState = storage.StateRevoked
			r.UpdatedAt = now
		}
	}
	return nil
}

func (a *Adapter) LogAuditEvent(ctx context.Context, event storage.AuditEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.audits[event.UserID] = append(a.audits[event.UserID], event)
	return nil
}

func (a *Adapter) GetAuditLogs(ctx context.Context, userID string, limit int) ([]storage.AuditEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	events := a.audits[userID]
	out := make([]storage.AuditEvent, len(events))
	copy(out, events)
	// Newest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (a *Adapter) HealthCheck(ctx context.Context) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return !a.closed
}

func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}
