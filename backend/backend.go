// Package backend orchestrates the session-key authorization handshake:
// connect-init mints a PENDING key and a single-use state token, the
// external consent UI redirects the user back, and the callback consumes
// the token exactly once before activating the key.
//
// Construction and direct-argument validation fail loudly with typed
// errors. The externally reachable callback and status paths degrade to
// tagged result values instead: they are fed by adversarial redirects and
// must never let an exception escape into whatever thin HTTP layer wraps
// them.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/burnt-labs/abstraxion-backend/autherr"
	"github.com/burnt-labs/abstraxion-backend/encryption"
	"github.com/burnt-labs/abstraxion-backend/internal/util"
	"github.com/burnt-labs/abstraxion-backend/session"
	"github.com/burnt-labs/abstraxion-backend/statestore"
	"github.com/burnt-labs/abstraxion-backend/storage"
)

const stateTokenBytes = 32

// Backend exposes the authorization lifecycle to callers.
type Backend struct {
	cfg       Config
	manager   *session.Manager
	states    statestore.Store
	logger    *slog.Logger
	dashboard *url.URL
	stateTTL  time.Duration
	closeOnce sync.Once
	closeErr  error
}

// ConnectResult is returned by ConnectInit.
type ConnectResult struct {
	SessionKeyAddress string `json:"session_key_address"`
	AuthorizationURL  string `json:"authorization_url"`
	State             string `json:"state"`
}

// CallbackInput is the payload delivered by the consent UI redirect.
type CallbackInput struct {
	State   string `json:"state"`
	Granted bool   `json:"granted"`
	Granter string `json:"granter"`
	UserID  string `json:"user_id,omitempty"`
}

// CallbackResult is a tagged result: check Success, don't catch.
type CallbackResult struct {
	Success            bool                 `json:"success"`
	Error              string               `json:"error,omitempty"`
	SessionKeyAddress  string               `json:"session_key_address,omitempty"`
	MetaAccountAddress string               `json:"meta_account_address,omitempty"`
	Permissions        *storage.Permissions `json:"permissions,omitempty"`
	GrantedRedirectURL string               `json:"granted_redirect_url,omitempty"`
}

// StatusResult reports a user's connection state. Internal errors are
// swallowed into Connected=false; this is a polling-style health check.
type StatusResult struct {
	Connected          bool                 `json:"connected"`
	SessionKeyAddress  string               `json:"session_key_address,omitempty"`
	MetaAccountAddress string               `json:"meta_account_address,omitempty"`
	Permissions        *storage.Permissions `json:"permissions,omitempty"`
	Expiry             time.Time            `json:"expiry,omitzero"`
	State              storage.SessionState `json:"state,omitempty"`
}

// DisconnectResult reports the outcome of Disconnect.
type DisconnectResult struct {
	Success bool `json:"success"`
}

// New validates cfg eagerly and wires the backend. Missing or malformed
// configuration fails here, before any I/O.
func New(cfg Config) (*Backend, error) {
	dashboard, err := cfg.validate()
	if err != nil {
		return nil, err
	}

	enc, err := encryption.NewService(cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.SessionKeyExpiry == 0 {
		cfg.SessionKeyExpiry = session.DefaultExpiry
	}
	if cfg.RefreshThreshold == 0 {
		cfg.RefreshThreshold = session.DefaultRefreshThreshold
	}
	stateTTL := cfg.StateTTL
	if stateTTL == 0 {
		stateTTL = DefaultStateTTL
	}

	states := cfg.StateStore
	if states == nil {
		states = statestore.NewMemoryStore()
	}

	manager := session.NewManager(cfg.Adapter, enc,
		session.WithExpiry(cfg.SessionKeyExpiry),
		session.WithRefreshThreshold(cfg.RefreshThreshold),
		session.WithAuditEnabled(!cfg.AuditDisabled),
		session.WithLogger(logger),
	)

	return &Backend{
		cfg:       cfg,
		manager:   manager,
		states:    states,
		logger:    logger.With("component", "backend"),
		dashboard: dashboard,
		stateTTL:  stateTTL,
	}, nil
}

// Manager exposes the underlying session-key manager for callers that
// need direct lifecycle access (signing clients, maintenance jobs).
func (b *Backend) Manager() *session.Manager {
	return b.manager
}

// ConnectInit begins the handshake: generates and persists a PENDING key,
// mints a single-use state token, and returns the consent URL to redirect
// the user to.
func (b *Backend) ConnectInit(ctx context.Context, userID string, permissions *storage.Permissions, grantedRedirectURL string) (*ConnectResult, error) {
	if userID == "" {
		return nil, autherr.UserIDRequired()
	}

	kp, err := b.manager.GenerateSessionKeypair()
	if err != nil {
		return nil, autherr.SessionKeyStorage("failed to generate session keypair", err)
	}
	if _, err := b.manager.CreatePendingSessionKey(ctx, userID, kp); err != nil {
		return nil, err
	}

	state, err := newStateToken()
	if err != nil {
		return nil, autherr.SessionKeyStorage("failed to mint state token", err)
	}
	entry := statestore.Entry{
		UserID:             userID,
		SessionKeyAddress:  kp.Address(),
		Permissions:        permissions,
		GrantedRedirectURL: grantedRedirectURL,
		CreatedAt:          time.Now().UTC(),
	}
	if err := b.states.Set(ctx, state, entry, b.stateTTL); err != nil {
		return nil, autherr.SessionKeyStorage("failed to store authorization state", err)
	}

	authorizationURL, err := b.buildAuthorizationURL(kp.Address(), state, permissions)
	if err != nil {
		return nil, err
	}

	b.logger.Info("connect initiated",
		"user_id", userID,
		"session_key_address", kp.Address())

	return &ConnectResult{
		SessionKeyAddress: kp.Address(),
		AuthorizationURL:  authorizationURL,
		State:             state,
	}, nil
}

// buildAuthorizationURL assembles the consent-UI URL. When a permissions
// object is present, contracts and bank are always serialized -- an empty
// list becomes "[]" so the UI can tell "no permissions requested" from
// "parameter omitted". stake is only emitted when requested.
func (b *Backend) buildAuthorizationURL(grantee, state string, permissions *storage.Permissions) (string, error) {
	u := *b.dashboard
	q := u.Query()
	q.Set("grantee", grantee)
	q.Set("redirect_uri", b.cfg.RedirectURL)
	q.Set("treasury", b.cfg.Treasury)
	q.Set("state", state)

	if permissions != nil {
		contracts, err := json.Marshal(orEmpty(permissions.Contracts))
		if err != nil {
			return "", autherr.SessionKeyStorage("failed to serialize contract grants", err)
		}
		q.Set("contracts", string(contracts))

		bank, err := json.Marshal(orEmpty(permissions.Bank))
		if err != nil {
			return "", autherr.SessionKeyStorage("failed to serialize bank limits", err)
		}
		q.Set("bank", string(bank))

		if permissions.Stake {
			q.Set("stake", strconv.FormatBool(true))
		}
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// HandleCallback consumes the state token exactly once and either
// activates the PENDING key or reports denial. It returns an error only
// for missing required fields; everything else, including adversarial
// input, becomes a failure result.
func (b *Backend) HandleCallback(ctx context.Context, input CallbackInput) (*CallbackResult, error) {
	if input.State == "" {
		return nil, autherr.StateRequired()
	}
	if input.Granter == "" {
		return nil, autherr.GranterRequired()
	}

	entry, err := b.states.Get(ctx, input.State)
	if err != nil {
		b.logger.Error("state lookup failed", "error", err)
		return &CallbackResult{Success: false, Error: "Invalid state parameter or expired request"}, nil
	}
	if entry == nil {
		return &CallbackResult{Success: false, Error: "Invalid state parameter or expired request"}, nil
	}
	// Single-use: remove the token before acting on it, success or not.
	if err := b.states.Delete(ctx, input.State); err != nil {
		b.logger.Warn("state delete failed", "error", err)
	}

	if !input.Granted {
		// The PENDING key is deliberately left alone; it expires naturally
		// and a later retry is not masked by a premature revocation.
		b.logger.Info("authorization denied by user", "user_id", entry.UserID)
		return &CallbackResult{
			Success:            false,
			Error:              "Authorization was not granted by user",
			GrantedRedirectURL: entry.GrantedRedirectURL,
		}, nil
	}

	permissions := entry.Permissions
	if permissions == nil {
		permissions = &storage.Permissions{}
	}
	permissions.Treasury = b.cfg.Treasury

	if err := b.manager.StoreGrantedSessionKey(ctx, entry.UserID, entry.SessionKeyAddress, input.Granter, permissions); err != nil {
		b.logger.Error("session key activation failed",
			"user_id", entry.UserID,
			"session_key_address", entry.SessionKeyAddress,
			"error", err)
		return &CallbackResult{
			Success: false,
			Error:   fmt.Sprintf("Failed to activate session key: %v", err),
		}, nil
	}

	b.logger.Info("session key activated",
		"user_id", entry.UserID,
		"session_key_address", entry.SessionKeyAddress,
		"granter", input.Granter)

	return &CallbackResult{
		Success:            true,
		SessionKeyAddress:  entry.SessionKeyAddress,
		MetaAccountAddress: input.Granter,
		Permissions:        permissions,
		GrantedRedirectURL: entry.GrantedRedirectURL,
	}, nil
}

// CheckStatus reports whether the user has an ACTIVE session key. It never
// returns an error: absence, non-ACTIVE states, and internal failures all
// collapse to Connected=false. Storage outages are therefore
// indistinguishable from "not connected" -- acceptable for a polling
// health check, logged for operators.
func (b *Backend) CheckStatus(ctx context.Context, userID string) StatusResult {
	if userID == "" {
		return StatusResult{Connected: false}
	}
	info, err := b.manager.GetLastSessionKeyInfo(ctx, userID)
	if err != nil {
		if autherr.CodeOf(err) != autherr.CodeSessionKeyNotFound {
			b.logger.Warn("status check failed", "user_id", userID, "error", err)
		}
		return StatusResult{Connected: false}
	}
	if !b.manager.ValidateSessionKeyInfo(info) {
		return StatusResult{Connected: false}
	}
	return StatusResult{
		Connected:          true,
		SessionKeyAddress:  info.SessionKeyAddress,
		MetaAccountAddress: info.MetaAccountAddress,
		Permissions:        info.SessionPermissions,
		Expiry:             info.SessionKeyExpiry,
		State:              info.SessionState,
	}
}

// Disconnect revokes all of the user's active session keys. Idempotent:
// disconnecting with nothing active still succeeds.
func (b *Backend) Disconnect(ctx context.Context, userID string) (*DisconnectResult, error) {
	if userID == "" {
		return nil, autherr.UserIDRequired()
	}
	if err := b.manager.RevokeActiveSessionKeys(ctx, userID); err != nil {
		return nil, err
	}
	b.logger.Info("disconnected", "user_id", userID)
	return &DisconnectResult{Success: true}, nil
}

// RefreshSessionKey is a thin pass-through to the manager. Typed errors
// pass through unchanged; anything else is wrapped as a refresh failure.
func (b *Backend) RefreshSessionKey(ctx context.Context, userID string) (*session.RefreshResult, error) {
	result, err := b.manager.RefreshIfNeeded(ctx, userID)
	if err != nil {
		return nil, autherr.SessionKeyRefresh("Failed to refresh session key", err)
	}
	return result, nil
}

// GetAuditLogs returns the user's newest audit events.
func (b *Backend) GetAuditLogs(ctx context.Context, userID string, limit int) ([]storage.AuditEvent, error) {
	return b.manager.GetAuditLogs(ctx, userID, limit)
}

// GetCacheStats exposes state-store counters for operational visibility.
func (b *Backend) GetCacheStats(ctx context.Context) (statestore.Stats, error) {
	return b.states.Stats(ctx)
}

// ClearCache drops all pending authorization state.
func (b *Backend) ClearCache(ctx context.Context) error {
	return b.states.Clear(ctx)
}

// HealthCheck reports whether the underlying store is reachable.
func (b *Backend) HealthCheck(ctx context.Context) bool {
	return b.cfg.Adapter.HealthCheck(ctx)
}

// Close tears down the state store and releases the database adapter.
// Safe to call more than once; later calls return the first result.
func (b *Backend) Close() error {
	b.closeOnce.Do(func() {
		if err := b.states.Close(); err != nil {
			b.closeErr = err
		}
		if err := b.cfg.Adapter.Close(); err != nil && b.closeErr == nil {
			b.closeErr = err
		}
	})
	return b.closeErr
}

func newStateToken() (string, error) {
	return util.RandomToken(stateTokenBytes)
}
