// Package session owns the session-key lifecycle: generation, encrypted
// storage, validation, revocation, refresh, and audit logging.
//
// The state machine is PENDING -> ACTIVE -> {EXPIRED, REVOKED}. EXPIRED and
// REVOKED are terminal. Activation is the only path into ACTIVE and requires
// the stored record to be exactly PENDING, so a replayed or duplicated
// callback can never re-grant permissions to an already-active key. Expiry
// is detected lazily at read time; correctness never depends on a scheduler
// running.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/burnt-labs/abstraxion-backend/autherr"
	"github.com/burnt-labs/abstraxion-backend/encryption"
	"github.com/burnt-labs/abstraxion-backend/signer"
	"github.com/burnt-labs/abstraxion-backend/storage"
)

const (
	// DefaultExpiry is how long a session key lives after creation.
	DefaultExpiry = 24 * time.Hour
	// DefaultRefreshThreshold is how close to expiry a key must be before
	// RefreshIfNeeded rotates it.
	DefaultRefreshThreshold = time.Hour
)

// Manager drives session-key lifecycle transitions against an injected
// storage adapter and encryption service.
type Manager struct {
	adapter          storage.Adapter
	enc              *encryption.Service
	logger           *slog.Logger
	expiry           time.Duration
	refreshThreshold time.Duration
	auditEnabled     bool
	now              func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithExpiry sets the session-key lifetime.
func WithExpiry(d time.Duration) Option {
	return func(m *Manager) { m.expiry = d }
}

// WithRefreshThreshold sets the remaining-lifetime threshold below which
// RefreshIfNeeded rotates the key.
func WithRefreshThreshold(d time.Duration) Option {
	return func(m *Manager) { m.refreshThreshold = d }
}

// WithLogger sets the operational logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithAuditEnabled toggles persistence of audit events. Operational slog
// output is unaffected.
func WithAuditEnabled(enabled bool) Option {
	return func(m *Manager) { m.auditEnabled = enabled }
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager.
func NewManager(adapter storage.Adapter, enc *encryption.Service, opts ...Option) *Manager {
	m := &Manager{
		adapter:          adapter,
		enc:              enc,
		expiry:           DefaultExpiry,
		refreshThreshold: DefaultRefreshThreshold,
		auditEnabled:     true,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With("component", "session")
	return m
}

// IsExpired reports whether info's expiry has passed at instant now.
func IsExpired(info *storage.SessionKeyInfo, now time.Time) bool {
	return now.After(info.SessionKeyExpiry)
}

// IsActive reports whether info is usable for signing at instant now.
func IsActive(info *storage.SessionKeyInfo, now time.Time) bool {
	return info.SessionState == storage.StateActive && !IsExpired(info, now)
}

// GenerateSessionKeypair produces a fresh keypair and its address. Pure
// generation: no I/O side effects beyond randomness.
func (m *Manager) GenerateSessionKeypair() (*signer.Keypair, error) {
	return signer.GenerateKeypair()
}

// CreatePendingSessionKey encrypts the keypair's private material and
// persists a PENDING record with expiry now + the configured lifetime.
func (m *Manager) CreatePendingSessionKey(ctx context.Context, userID string, kp *signer.Keypair) (*storage.SessionKeyInfo, error) {
	if userID == "" {
		return nil, autherr.UserIDRequired()
	}

	material := kp.Serialize()
	encrypted, err := m.enc.Encrypt(material)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	expiry := now.Add(m.expiry)
	err = m.adapter.AddNewSessionKey(ctx, userID, storage.NewSessionKey{
		Address:           kp.Address(),
		EncryptedMaterial: encrypted,
		Expiry:            expiry,
	})
	if err != nil {
		return nil, autherr.SessionKeyStorage(
			fmt.Sprintf("failed to store session key: %v", err), err)
	}

	m.audit(ctx, userID, storage.AuditSessionKeyCreated,
		fmt.Sprintf("session key %s created, expires %s", kp.Address(), expiry.Format(time.RFC3339)))

	return &storage.SessionKeyInfo{
		UserID:            userID,
		SessionKeyAddress: kp.Address(),
		SessionKeyExpiry:  expiry,
		SessionState:      storage.StatePending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// GetLastSessionKeyInfo resolves the most recently created record for the
// user. Records past their expiry are reported as not found; an ACTIVE
// record past expiry is additionally flipped to EXPIRED in storage.
func (m *Manager) GetLastSessionKeyInfo(ctx context.Context, userID string) (*storage.SessionKeyInfo, error) {
	if userID == "" {
		return nil, autherr.UserIDRequired()
	}
	info, err := m.adapter.GetLastSessionKey(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, autherr.SessionKeyNotFound(userID)
		}
		return nil, autherr.SessionKeyStorage("failed to load session key", err)
	}
	if IsExpired(info, m.now()) {
		if info.SessionState == storage.StateActive || info.SessionState == storage.StatePending {
			m.markAsExpired(ctx, info)
		}
		return nil, autherr.SessionKeyNotFound(userID)
	}
	return info, nil
}

// GetSessionKeypair resolves the user's latest record and decrypts its
// signing keypair. Decryption failures surface as ENCRYPTION_ERROR, never
// as "not found".
func (m *Manager) GetSessionKeypair(ctx context.Context, userID string) (*signer.Keypair, error) {
	info, err := m.GetLastSessionKeyInfo(ctx, userID)
	if err != nil {
		return nil, err
	}
	return m.KeypairFromInfo(ctx, info)
}

// KeypairFromInfo decrypts the signing keypair from an already-resolved
// record, applying the same lazy-expiry guard as the lookup path.
func (m *Manager) KeypairFromInfo(ctx context.Context, info *storage.SessionKeyInfo) (*signer.Keypair, error) {
	if IsExpired(info, m.now()) {
		if info.SessionState == storage.StateActive || info.SessionState == storage.StatePending {
			m.markAsExpired(ctx, info)
		}
		return nil, autherr.SessionKeyNotFound(info.UserID)
	}

	material, err := m.enc.Decrypt(info.SessionKeyMaterial)
	if err != nil {
		return nil, err
	}
	kp, err := signer.FromSerialized(material)
	if err != nil {
		return nil, autherr.Encryption("restoring session keypair", err)
	}

	m.audit(ctx, info.UserID, storage.AuditSessionKeyAccessed,
		fmt.Sprintf("session key %s accessed", info.SessionKeyAddress))
	return kp, nil
}

// ValidateSessionKey reports whether the user's latest record exists, is
// not expired, and is ACTIVE. "Not found" is false, not an error.
func (m *Manager) ValidateSessionKey(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, autherr.UserIDRequired()
	}
	info, err := m.adapter.GetLastSessionKey(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, autherr.SessionKeyStorage("failed to load session key", err)
	}
	if IsExpired(info, m.now()) {
		if info.SessionState == storage.StateActive {
			m.markAsExpired(ctx, info)
		}
		return false, nil
	}
	return info.SessionState == storage.StateActive, nil
}

// ValidateSessionKeyInfo applies the same predicate to an already-resolved
// record without touching storage.
func (m *Manager) ValidateSessionKeyInfo(info *storage.SessionKeyInfo) bool {
	return info != nil && IsActive(info, m.now())
}

// StoreGrantedSessionKey is the only path into ACTIVE. The stored record
// must be exactly PENDING; any other state (including already ACTIVE)
// fails, so a duplicated callback cannot double-activate.
func (m *Manager) StoreGrantedSessionKey(ctx context.Context, userID, address, granter string, permissions *storage.Permissions) error {
	if userID == "" {
		return autherr.UserIDRequired()
	}
	if granter == "" {
		return autherr.GranterRequired()
	}

	info, err := m.adapter.GetSessionKey(ctx, userID, address)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return autherr.SessionKeyNotFound(userID)
		}
		return autherr.SessionKeyStorage("failed to load session key", err)
	}
	if info.SessionState != storage.StatePending {
		return autherr.SessionKeyInvalid(
			fmt.Sprintf("cannot activate session key %s in state %s, expected %s",
				address, info.SessionState, storage.StatePending))
	}

	expected := storage.StatePending
	active := storage.StateActive
	err = m.adapter.UpdateSessionKeyWithParams(ctx, userID, address, storage.SessionKeyUpdate{
		State:              &active,
		MetaAccountAddress: &granter,
		Permissions:        permissions,
		ExpectedState:      &expected,
	})
	if err != nil {
		if errors.Is(err, storage.ErrStateConflict) {
			return autherr.SessionKeyInvalid(
				fmt.Sprintf("session key %s left %s state during activation", address, storage.StatePending))
		}
		return autherr.SessionKeyStorage("failed to activate session key", err)
	}

	m.audit(ctx, userID, storage.AuditSessionKeyUpdated,
		fmt.Sprintf("session key %s activated for granter %s", address, granter))
	return nil
}

// RevokeSessionKey transitions one record to REVOKED.
func (m *Manager) RevokeSessionKey(ctx context.Context, userID, address string) error {
	if userID == "" {
		return autherr.UserIDRequired()
	}
	revoked, err := m.adapter.RevokeSessionKey(ctx, userID, address)
	if err != nil {
		return autherr.SessionKeyRevocation("failed to revoke session key", err)
	}
	if !revoked {
		return autherr.SessionKeyRevocation(
			fmt.Sprintf("session key %s not found for revocation", address), nil)
	}
	m.audit(ctx, userID, storage.AuditSessionKeyRevoked,
		fmt.Sprintf("session key %s revoked", address))
	return nil
}

// RevokeActiveSessionKeys revokes every ACTIVE key for the user in one
// persistence call, auditing each key first. Revoking when none are active
// is a silent no-op.
func (m *Manager) RevokeActiveSessionKeys(ctx context.Context, userID string) error {
	if userID == "" {
		return autherr.UserIDRequired()
	}
	active, err := m.adapter.GetActiveSessionKeys(ctx, userID)
	if err != nil {
		return autherr.SessionKeyRevocation("failed to list active session keys", err)
	}
	if len(active) == 0 {
		return nil
	}
	for _, info := range active {
		m.audit(ctx, userID, storage.AuditSessionKeyRevoked,
			fmt.Sprintf("session key %s revoked", info.SessionKeyAddress))
	}
	if err := m.adapter.RevokeActiveSessionKeys(ctx, userID); err != nil {
		return autherr.SessionKeyRevocation("failed to revoke active session keys", err)
	}
	return nil
}

// RefreshResult is the outcome of RefreshIfNeeded.
type RefreshResult struct {
	Keypair *signer.Keypair
	// Rotated is true when a brand-new PENDING key was created. The caller
	// must drive it through the grant flow again; refresh never silently
	// re-activates with the old permissions.
	Rotated bool
}

// RefreshIfNeeded reads the user's latest record. With no record it
// returns nil. When remaining lifetime is at or below the refresh
// threshold it generates and persists a new PENDING key and returns its
// plaintext keypair; otherwise it returns the existing key's material
// unchanged.
func (m *Manager) RefreshIfNeeded(ctx context.Context, userID string) (*RefreshResult, error) {
	if userID == "" {
		return nil, autherr.UserIDRequired()
	}
	info, err := m.adapter.GetLastSessionKey(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, autherr.SessionKeyRefresh("failed to load session key", err)
	}

	remaining := info.SessionKeyExpiry.Sub(m.now())
	if remaining <= m.refreshThreshold {
		kp, err := m.GenerateSessionKeypair()
		if err != nil {
			return nil, autherr.SessionKeyRefresh("failed to generate session key", err)
		}
		if _, err := m.CreatePendingSessionKey(ctx, userID, kp); err != nil {
			return nil, autherr.SessionKeyRefresh("failed to store refreshed session key", err)
		}
		return &RefreshResult{Keypair: kp, Rotated: true}, nil
	}

	material, err := m.enc.Decrypt(info.SessionKeyMaterial)
	if err != nil {
		return nil, autherr.SessionKeyRefresh("failed to decrypt session key", err)
	}
	kp, err := signer.FromSerialized(material)
	if err != nil {
		return nil, autherr.SessionKeyRefresh("failed to restore session key", err)
	}
	return &RefreshResult{Keypair: kp, Rotated: false}, nil
}

// GetAuditLogs returns the user's newest audit events.
func (m *Manager) GetAuditLogs(ctx context.Context, userID string, limit int) ([]storage.AuditEvent, error) {
	if userID == "" {
		return nil, autherr.UserIDRequired()
	}
	return m.adapter.GetAuditLogs(ctx, userID, limit)
}

// markAsExpired flips a record to EXPIRED. Best-effort: failures are
// logged, never surfaced, and the caller proceeds as if the record were
// absent.
func (m *Manager) markAsExpired(ctx context.Context, info *storage.SessionKeyInfo) {
	expected := info.SessionState
	expired := storage.StateExpired
	err := m.adapter.UpdateSessionKeyWithParams(ctx, info.UserID, info.SessionKeyAddress, storage.SessionKeyUpdate{
		State:         &expired,
		ExpectedState: &expected,
	})
	if err != nil {
		m.logger.Warn("marking session key expired failed",
			"user_id", info.UserID,
			"session_key_address", info.SessionKeyAddress,
			"error", err)
		return
	}
	m.audit(ctx, info.UserID, storage.AuditSessionKeyExpired,
		fmt.Sprintf("session key %s expired", info.SessionKeyAddress))
}

// audit persists an audit event. Logging failures never abort the primary
// operation; they are reported through the operational log only.
func (m *Manager) audit(ctx context.Context, userID string, action storage.AuditAction, details string) {
	if !m.auditEnabled {
		return
	}
	event := storage.AuditEvent{
		ID:        uuid.New().String(),
		UserID:    userID,
		Action:    action,
		Timestamp: m.now().UTC(),
		Details:   details,
	}
	if err := m.adapter.LogAuditEvent(ctx, event); err != nil {
		m.logger.Warn("audit logging failed",
			"user_id", userID,
			"action", string(action),
			"error", err)
	}
}
