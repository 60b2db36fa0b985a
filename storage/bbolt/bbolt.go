// Package bbolt provides a BBolt-backed storage adapter for durable
// single-node deployments.
package bbolt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/burnt-labs/abstraxion-backend/storage"
)

const (
	sessionKeyPrefix = "session:"
	auditKeyPrefix   = "audit:"
)

// Adapter implements storage.Adapter backed by a BBolt database. Each user
// gets one bucket; session-key records and audit events share it under
// distinct key prefixes.
type Adapter struct {
	db *bbolt.DB
}

var _ storage.Adapter = (*Adapter)(nil)

// NewAdapter returns an Adapter backed by the given BBolt database.
func NewAdapter(db *bbolt.DB) *Adapter {
	return &Adapter{db: db}
}

// NewAdapterFromFile opens a BBolt database at path and returns an Adapter.
func NewAdapterFromFile(path string, options *bbolt.Options) (*Adapter, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return NewAdapter(db), nil
}

// Close closes the underlying BBolt database.
func (a *Adapter) Close() error {
	return a.db.Close()
}

func sessionKey(address string) []byte {
	return []byte(sessionKeyPrefix + address)
}

func auditKey(ts time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", auditKeyPrefix, ts.UnixNano(), id))
}

func (a *Adapter) GetLastSessionKey(ctx context.Context, userID string) (*storage.SessionKeyInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var last *storage.SessionKeyInfo
	err := a.forEachSessionKey(userID, func(info *storage.SessionKeyInfo) {
		if last == nil || info.CreatedAt.After(last.CreatedAt) {
			last = info
		}
	})
	if err != nil {
		return nil, err
	}
	if last == nil {
		return nil, storage.ErrNotFound
	}
	return last, nil
}

func (a *Adapter) GetSessionKey(ctx context.Context, userID, address string) (*storage.SessionKeyInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var info storage.SessionKeyInfo
	err := a.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(userID))
		if b == nil {
			return storage.ErrNotFound
		}
		data := b.Get(sessionKey(address))
		if data == nil {
			return storage.ErrNotFound
		}
		return json.Unmarshal(data, &info)
	})
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (a *Adapter) GetActiveSessionKeys(ctx context.Context, userID string) ([]*storage.SessionKeyInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var active []*storage.SessionKeyInfo
	err := a.forEachSessionKey(userID, func(info *storage.SessionKeyInfo) {
		if info.SessionState == storage.StateActive {
			active = append(active, info)
		}
	})
	if err != nil {
		return nil, err
	}
	return active, nil
}

func (a *Adapter) forEachSessionKey(userID string, fn func(*storage.SessionKeyInfo)) error {
	return a.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(userID))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		prefix := []byte(sessionKeyPrefix)
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var info storage.SessionKeyInfo
			if err := json.Unmarshal(v, &info); err != nil {
				return fmt.Errorf("decoding session key record %q: %w", k, err)
			}
			fn(&info)
		}
		return nil
	})
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
	info := storage.SessionKeyInfo{
		UserID:             userID,
		SessionKeyAddress:  key.Address,
		SessionKeyMaterial: key.EncryptedMaterial,
		SessionKeyExpiry:   key.Expiry,
		SessionState:       initial,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	return a.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(userID))
		if err != nil {
			return err
		}
		data, err := json.Marshal(&info)
		if err != nil {
			return err
		}
		return b.Put(sessionKey(key.Address), data)
	})
}

func (a *Adapter) UpdateSessionKeyWithParams(ctx context.Context, userID, address string, update storage.SessionKeyUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(userID))
		if b == nil {
			return storage.ErrNotFound
		}
		data := b.Get(sessionKey(address))
		if data == nil {
			return storage.ErrNotFound
		}
		var info storage.SessionKeyInfo
		if err := json.Unmarshal(data, &info); err != nil {
			return err
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
			info.SessionPermissions = update.Permissions
		}
		if update.Expiry != nil {
			info.SessionKeyExpiry = *update.Expiry
		}
		if update.EncryptedMaterial != nil {
			info.SessionKeyMaterial = *update.EncryptedMaterial
		}
		info.UpdatedAt = time.Now().UTC()
		out, err := json.Marshal(&info)
		if err != nil {
			return err
		}
		return b.Put(sessionKey(address), out)
	})
}

func (a *Adapter) RevokeSessionKey(ctx context.Context, userID, address string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	state := storage.StateRevoked
	err := a.UpdateSessionKeyWithParams(ctx, userID, address, storage.SessionKeyUpdate{State: &state})
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (a *Adapter) RevokeActiveSessionKeys(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(userID))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		prefix := []byte(sessionKeyPrefix)
		now := time.Now().UTC()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var info storage.SessionKeyInfo
			if err := json.Unmarshal(v, &info); err != nil {
				return err
			}
			if info.SessionState != storage.StateActive {
				continue
			}
			info.SessionState = storage.StateRevoked
			info.UpdatedAt = now
			data, err := json.Marshal(&info)
			if err != nil {
				return err
			}
			if err := b.Put(k, data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (a *Adapter) LogAuditEvent(ctx context.Context, event storage.AuditEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(event.UserID))
		if err != nil {
			return err
		}
		data, err := json.Marshal(&event)
		if err != nil {
			return err
		}
		return b.Put(auditKey(event.Timestamp, event.ID), data)
	})
}

func (a *Adapter) GetAuditLogs(ctx context.Context, userID string, limit int) ([]storage.AuditEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var events []storage.AuditEvent
	err := a.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(userID))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		prefix := []byte(auditKeyPrefix)
		// Audit keys are timestamp-ordered; walk backwards for newest first.
		var start []byte
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			start = k
		}
		for k, v := c.Seek(start); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Prev() {
			var event storage.AuditEvent
			if err := json.Unmarshal(v, &event); err != nil {
				return err
			}
			events = append(events, event)
			if limit > 0 && len(events) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (a *Adapter) HealthCheck(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	return a.db.View(func(tx *bbolt.Tx) error { return nil }) == nil
}
