// Package storage defines the session-key data model and the adapter
// contract implemented by persistence backends.
package storage

import (
	"encoding/json"
	"fmt"
	"time"
)

// SessionState is the lifecycle state of a session key.
type SessionState string

const (
	StatePending SessionState = "PENDING"
	StateActive  SessionState = "ACTIVE"
	StateExpired SessionState = "EXPIRED"
	StateRevoked SessionState = "REVOKED"
)

// SpendLimit bounds bank-module spending for one denom.
type SpendLimit struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

// ContractGrant authorizes execution against one contract, optionally
// bounded by per-call spend limits. On the wire a grant without limits is
// a bare address string; with limits it is an object. Both forms round-trip.
type ContractGrant struct {
	Address string       `json:"address"`
	Amounts []SpendLimit `json:"amounts,omitempty"`
}

func (g ContractGrant) MarshalJSON() ([]byte, error) {
	if len(g.Amounts) == 0 {
		return json.Marshal(g.Address)
	}
	type alias ContractGrant
	return json.Marshal(alias(g))
}

func (g *ContractGrant) UnmarshalJSON(data []byte) error {
	var address string
	if err := json.Unmarshal(data, &address); err == nil {
		g.Address = address
		g.Amounts = nil
		return nil
	}
	type alias ContractGrant
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return fmt.Errorf("contract grant must be a string or an object: %w", err)
	}
	*g = ContractGrant(a)
	return nil
}

// Permissions describes what a session key is authorized to do. Bound to
// the key at activation time; empty while the key is PENDING.
type Permissions struct {
	Contracts []ContractGrant `json:"contracts,omitempty"`
	Bank      []SpendLimit    `json:"bank,omitempty"`
	Stake     bool            `json:"stake,omitempty"`
	Treasury  string          `json:"treasury,omitempty"`
}

// IsZero reports whether no permission of any kind is present.
func (p *Permissions) IsZero() bool {
	return p == nil || (len(p.Contracts) == 0 && len(p.Bank) == 0 && !p.Stake && p.Treasury == "")
}

// SessionKeyInfo is one row per session key ever created. For a given
// (userID, sessionKeyAddress) pair there is at most one record; the last
// session key for a user is the most recently created record, not
// necessarily the active one.
type SessionKeyInfo struct {
	UserID             string       `json:"user_id"`
	SessionKeyAddress  string       `json:"session_key_address"`
	SessionKeyMaterial string       `json:"session_key_material"`
	SessionKeyExpiry   time.Time    `json:"session_key_expiry"`
	SessionPermissions *Permissions `json:"session_permissions,omitempty"`
	SessionState       SessionState `json:"session_state"`
	MetaAccountAddress string       `json:"meta_account_address,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// NewSessionKey carries the fields of a freshly generated key being
// persisted for the first time.
type NewSessionKey struct {
	Address           string
	EncryptedMaterial string
	Expiry            time.Time
}

// SessionKeyUpdate is a partial update applied to an existing record.
// Nil fields are left unchanged. When ExpectedState is set the update is
// conditional: it fails with ErrStateConflict unless the stored record is
// currently in that state.
type SessionKeyUpdate struct {
	State              *SessionState
	MetaAccountAddress *string
	Permissions        *Permissions
	Expiry             *time.Time
	EncryptedMaterial  *string
	ExpectedState      *SessionState
}

// AuditAction identifies the kind of session-key event being recorded.
type AuditAction string

const (
	AuditSessionKeyCreated  AuditAction = "SESSION_KEY_CREATED"
	AuditSessionKeyAccessed AuditAction = "SESSION_KEY_ACCESSED"
	AuditSessionKeyUpdated  AuditAction = "SESSION_KEY_UPDATED"
	AuditSessionKeyRevoked  AuditAction = "SESSION_KEY_REVOKED"
	AuditSessionKeyExpired  AuditAction = "SESSION_KEY_EXPIRED"
)

// AuditEvent is an append-only log entry. Never mutated after insertion.
type AuditEvent struct {
	ID        string      `json:"id"`
	UserID    string      `json:"user_id"`
	Action    AuditAction `json:"action"`
	Timestamp time.Time   `json:"timestamp"`
	Details   string      `json:"details,omitempty"`
	IPAddress string      `json:"ip_address,omitempty"`
	UserAgent string      `json:"user_agent,omitempty"`
}
