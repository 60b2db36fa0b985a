package storage

import "context"

// Adapter is the durable store for session-key records and audit events.
// Implementations must keep users isolated: operations for one userID
// never observe another's records.
type Adapter interface {
	// GetLastSessionKey returns the most recently created record for the
	// user, or ErrNotFound.
	GetLastSessionKey(ctx context.Context, userID string) (*SessionKeyInfo, error)
	// GetSessionKey returns the record for (userID, address), or ErrNotFound.
	GetSessionKey(ctx context.Context, userID, address string) (*SessionKeyInfo, error)
	// GetActiveSessionKeys returns all records in ACTIVE state for the user.
	GetActiveSessionKeys(ctx context.Context, userID string) ([]*SessionKeyInfo, error)
	// AddNewSessionKey persists a new record. State defaults to PENDING
	// unless an explicit initial state is given.
	AddNewSessionKey(ctx context.Context, userID string, key NewSessionKey, state ...SessionState) error
	// UpdateSessionKeyWithParams applies a partial update. Honors the
	// conditional-update guard (SessionKeyUpdate.ExpectedState).
	UpdateSessionKeyWithParams(ctx context.Context, userID, address string, update SessionKeyUpdate) error
	// RevokeSessionKey transitions one record to REVOKED. Returns false if
	// no such record exists.
	RevokeSessionKey(ctx context.Context, userID, address string) (bool, error)
	// RevokeActiveSessionKeys transitions every ACTIVE record for the user
	// to REVOKED in one call. A user with no active keys is a no-op.
	RevokeActiveSessionKeys(ctx context.Context, userID string) error
	// LogAuditEvent appends an audit event.
	LogAuditEvent(ctx context.Context, event AuditEvent) error
	// GetAuditLogs returns the newest events for the user, newest first,
	// up to limit (0 means no limit).
	GetAuditLogs(ctx context.Context, userID string, limit int) ([]AuditEvent, error)
	// HealthCheck reports whether the store is reachable.
	HealthCheck(ctx context.Context) bool
	// Close releases the store's resources.
	Close() error
}
