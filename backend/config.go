package backend

import (
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/burnt-labs/abstraxion-backend/autherr"
	"github.com/burnt-labs/abstraxion-backend/encryption"
	"github.com/burnt-labs/abstraxion-backend/session"
	"github.com/burnt-labs/abstraxion-backend/statestore"
	"github.com/burnt-labs/abstraxion-backend/storage"
)

const (
	// DefaultDashboardURL is the consent UI users are redirected to.
	DefaultDashboardURL = "https://dashboard.burnt.com"
	// DefaultStateTTL bounds how long a consent redirect may take.
	DefaultStateTTL = 10 * time.Minute
)

// Config carries everything the Backend needs. Validation happens eagerly
// at construction; a Backend that constructs successfully will not fail on
// configuration at runtime.
type Config struct {
	// EncryptionKey is the base64-encoded 256-bit master key. Required.
	EncryptionKey string
	// Adapter is the durable session-key store. Required.
	Adapter storage.Adapter
	// RedirectURL is where the consent UI sends the user back. Required.
	RedirectURL string
	// RPCURL is the chain RPC endpoint handed to signing clients. Required.
	RPCURL string
	// Treasury is the grant target merged into activated permissions. Required.
	Treasury string
	// DashboardURL overrides the consent UI base URL.
	DashboardURL string
	// SessionKeyExpiry is the session-key lifetime. Defaults to
	// session.DefaultExpiry.
	SessionKeyExpiry time.Duration
	// RefreshThreshold must be strictly less than SessionKeyExpiry.
	// Defaults to session.DefaultRefreshThreshold.
	RefreshThreshold time.Duration
	// StateTTL bounds the consent step. Defaults to DefaultStateTTL.
	StateTTL time.Duration
	// AuditDisabled turns off persisted audit events.
	AuditDisabled bool
	// StateStore overrides the in-memory state store.
	StateStore statestore.Store
	// Logger is the operational logger. Defaults to slog.Default.
	Logger *slog.Logger
}

func (c *Config) validate() (*url.URL, error) {
	if c.EncryptionKey == "" {
		return nil, autherr.Configuration(autherr.CodeEncryptionKeyRequired, "encryption key is required")
	}
	if !encryption.ValidateEncryptionKey(c.EncryptionKey) {
		return nil, autherr.Configuration(autherr.CodeEncryptionKeyRequired,
			"encryption key must be 32 bytes of base64")
	}
	if c.Adapter == nil {
		return nil, autherr.Configuration(autherr.CodeDatabaseAdapterRequired, "database adapter is required")
	}
	if c.RedirectURL == "" {
		return nil, autherr.Configuration(autherr.CodeRedirectURLRequired, "redirect URL is required")
	}
	if err := validateURL(c.RedirectURL); err != nil {
		return nil, autherr.Configuration(autherr.CodeRedirectURLRequired,
			fmt.Sprintf("redirect URL is invalid: %v", err))
	}
	if c.RPCURL == "" {
		return nil, autherr.Configuration(autherr.CodeRPCURLRequired, "RPC URL is required")
	}
	if err := validateURL(c.RPCURL); err != nil {
		return nil, autherr.Configuration(autherr.CodeRPCURLRequired,
			fmt.Sprintf("RPC URL is invalid: %v", err))
	}
	if c.Treasury == "" {
		return nil, autherr.Configuration(autherr.CodeTreasuryRequired, "treasury address is required")
	}

	dashboard := c.DashboardURL
	if dashboard == "" {
		dashboard = DefaultDashboardURL
	}
	parsed, err := url.Parse(dashboard)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, autherr.Configuration(autherr.CodeInvalidConfiguration,
			fmt.Sprintf("dashboard URL is invalid: %q", dashboard))
	}

	expiry := c.SessionKeyExpiry
	if expiry == 0 {
		expiry = session.DefaultExpiry
	}
	threshold := c.RefreshThreshold
	if threshold == 0 {
		threshold = session.DefaultRefreshThreshold
	}
	if threshold >= expiry {
		return nil, autherr.Configuration(autherr.CodeInvalidConfiguration,
			fmt.Sprintf("refresh threshold %s must be less than session key expiry %s", threshold, expiry))
	}
	return parsed, nil
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("missing scheme or host in %q", raw)
	}
	return nil
}
