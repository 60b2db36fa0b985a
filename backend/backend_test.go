package backend

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burnt-labs/abstraxion-backend/autherr"
	"github.com/burnt-labs/abstraxion-backend/encryption"
	"github.com/burnt-labs/abstraxion-backend/storage"
	"github.com/burnt-labs/abstraxion-backend/storage/memory"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	key, err := encryption.GenerateEncryptionKey()
	require.NoError(t, err)
	return Config{
		EncryptionKey: key,
		Adapter:       memory.NewAdapter(),
		RedirectURL:   "https://app.example.com/callback",
		RPCURL:        "https://rpc.xion-testnet-2.burnt.com:443",
		Treasury:      "xion1treasury",
	}
}

func newTestBackend(t *testing.T, mutate ...func(*Config)) *Backend {
	t.Helper()
	cfg := testConfig(t)
	for _, fn := range mutate {
		fn(&cfg)
	}
	b, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestNew_ConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		code   autherr.Code
	}{
		{"missing encryption key", func(c *Config) { c.EncryptionKey = "" }, autherr.CodeEncryptionKeyRequired},
		{"bad encryption key", func(c *Config) { c.EncryptionKey = "dG9vIHNob3J0" }, autherr.CodeEncryptionKeyRequired},
		{"missing adapter", func(c *Config) { c.Adapter = nil }, autherr.CodeDatabaseAdapterRequired},
		{"missing redirect URL", func(c *Config) { c.RedirectURL = "" }, autherr.CodeRedirectURLRequired},
		{"malformed redirect URL", func(c *Config) { c.RedirectURL = "not-a-url" }, autherr.CodeRedirectURLRequired},
		{"missing RPC URL", func(c *Config) { c.RPCURL = "" }, autherr.CodeRPCURLRequired},
		{"malformed RPC URL", func(c *Config) { c.RPCURL = "://bad" }, autherr.CodeRPCURLRequired},
		{"missing treasury", func(c *Config) { c.Treasury = "" }, autherr.CodeTreasuryRequired},
		{"threshold not below expiry", func(c *Config) {
			c.SessionKeyExpiry = time.Hour
			c.RefreshThreshold = time.Hour
		}, autherr.CodeInvalidConfiguration},
		{"malformed dashboard URL", func(c *Config) { c.DashboardURL = "not-a-url" }, autherr.CodeInvalidConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(&cfg)
			_, err := New(cfg)
			require.Error(t, err)
			assert.Equal(t, tt.code, autherr.CodeOf(err))
		})
	}
}

func TestConnectInit_RequiresUserID(t *testing.T) {
	b := newTestBackend(t)
	_, err := b.ConnectInit(context.Background(), "", nil, "")
	assert.Equal(t, autherr.CodeUserIDRequired, autherr.CodeOf(err))
}

func TestConnectInit_AuthorizationURL(t *testing.T) {
	b := newTestBackend(t)
	result, err := b.ConnectInit(context.Background(), "u1", &storage.Permissions{
		Contracts: []storage.ContractGrant{{Address: "c1"}},
		Bank:      []storage.SpendLimit{{Denom: "uxion", Amount: "1000000"}},
		Stake:     true,
	}, "")
	require.NoError(t, err)

	parsed, err := url.Parse(result.AuthorizationURL)
	require.NoError(t, err)
	q := parsed.Query()
	assert.Equal(t, result.SessionKeyAddress, q.Get("grantee"))
	assert.Equal(t, "https://app.example.com/callback", q.Get("redirect_uri"))
	assert.Equal(t, "xion1treasury", q.Get("treasury"))
	assert.Equal(t, result.State, q.Get("state"))
	assert.Equal(t, `["c1"]`, q.Get("contracts"))
	assert.Equal(t, `[{"denom":"uxion","amount":"1000000"}]`, q.Get("bank"))
	assert.Equal(t, "true", q.Get("stake"))
}

func TestConnectInit_EmptyPermissionsStillSerialized(t *testing.T) {
	b := newTestBackend(t)
	result, err := b.ConnectInit(context.Background(), "u1", &storage.Permissions{}, "")
	require.NoError(t, err)

	parsed, err := url.Parse(result.AuthorizationURL)
	require.NoError(t, err)
	q := parsed.Query()
	// Empty arrays are serialized as "[]" so the UI can tell "nothing
	// requested" from "parameter omitted"; stake is omitted entirely.
	assert.Equal(t, "[]", q.Get("contracts"))
	assert.Equal(t, "[]", q.Get("bank"))
	assert.False(t, q.Has("stake"))
}

func TestConnectInit_NilPermissionsOmitsParams(t *testing.T) {
	b := newTestBackend(t)
	result, err := b.ConnectInit(context.Background(), "u1", nil, "")
	require.NoError(t, err)

	parsed, err := url.Parse(result.AuthorizationURL)
	require.NoError(t, err)
	q := parsed.Query()
	assert.False(t, q.Has("contracts"))
	assert.False(t, q.Has("bank"))
	assert.False(t, q.Has("stake"))
}

func TestFullAuthorizationLoop(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	connect, err := b.ConnectInit(ctx, "u1", nil, "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(connect.SessionKeyAddress, "xion1"))

	stats, err := b.GetCacheStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Keys)

	callback, err := b.HandleCallback(ctx, CallbackInput{
		State:   connect.State,
		Granted: true,
		Granter: "xion1granter123",
	})
	require.NoError(t, err)
	require.True(t, callback.Success, callback.Error)
	assert.Equal(t, connect.SessionKeyAddress, callback.SessionKeyAddress)
	assert.Equal(t, "xion1granter123", callback.MetaAccountAddress)
	require.NotNil(t, callback.Permissions)
	assert.Equal(t, "xion1treasury", callback.Permissions.Treasury)

	status := b.CheckStatus(ctx, "u1")
	assert.True(t, status.Connected)
	assert.Equal(t, "xion1granter123", status.MetaAccountAddress)
	assert.Equal(t, storage.StateActive, status.State)

	disconnect, err := b.Disconnect(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, disconnect.Success)

	assert.False(t, b.CheckStatus(ctx, "u1").Connected)
}

func TestHandleCallback_SingleUseState(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	connect, err := b.ConnectInit(ctx, "u1", nil, "")
	require.NoError(t, err)

	first, err := b.HandleCallback(ctx, CallbackInput{State: connect.State, Granted: true, Granter: "xion1granter"})
	require.NoError(t, err)
	assert.True(t, first.Success)

	second, err := b.HandleCallback(ctx, CallbackInput{State: connect.State, Granted: true, Granter: "xion1granter"})
	require.NoError(t, err)
	assert.False(t, second.Success)
	assert.Contains(t, second.Error, "Invalid state parameter")
}

func TestHandleCallback_UnknownState(t *testing.T) {
	b := newTestBackend(t)
	result, err := b.HandleCallback(context.Background(), CallbackInput{State: "forged", Granted: true, Granter: "xion1granter"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "Invalid state parameter")
}

func TestHandleCallback_Denied(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	connect, err := b.ConnectInit(ctx, "u1", nil, "")
	require.NoError(t, err)

	result, err := b.HandleCallback(ctx, CallbackInput{State: connect.State, Granted: false, Granter: "xion1granter"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "Authorization was not granted by user", result.Error)

	// Denial consumes the state token too.
	replay, err := b.HandleCallback(ctx, CallbackInput{State: connect.State, Granted: true, Granter: "xion1granter"})
	require.NoError(t, err)
	assert.False(t, replay.Success)

	// The PENDING key is left as-is; the user is simply not connected.
	assert.False(t, b.CheckStatus(ctx, "u1").Connected)
}

func TestHandleCallback_RequiredFields(t *testing.T) {
	b := newTestBackend(t)

	_, err := b.HandleCallback(context.Background(), CallbackInput{State: "", Granted: true, Granter: "g"})
	assert.Equal(t, autherr.CodeStateRequired, autherr.CodeOf(err))

	_, err = b.HandleCallback(context.Background(), CallbackInput{State: "s", Granted: true, Granter: ""})
	assert.Equal(t, autherr.CodeGranterRequired, autherr.CodeOf(err))
}

func TestUsersAreIndependent(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	c1, err := b.ConnectInit(ctx, "u1", nil, "")
	require.NoError(t, err)
	c2, err := b.ConnectInit(ctx, "u2", nil, "")
	require.NoError(t, err)
	assert.NotEqual(t, c1.SessionKeyAddress, c2.SessionKeyAddress)

	for _, c := range []*ConnectResult{c1, c2} {
		result, err := b.HandleCallback(ctx, CallbackInput{State: c.State, Granted: true, Granter: "xion1granter"})
		require.NoError(t, err)
		require.True(t, result.Success)
	}

	_, err = b.Disconnect(ctx, "u1")
	require.NoError(t, err)

	assert.False(t, b.CheckStatus(ctx, "u1").Connected)
	assert.True(t, b.CheckStatus(ctx, "u2").Connected)
}

func TestConcurrentConnectInitsForSameUser(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	// Two tabs: independent PENDING records with independent tokens.
	c1, err := b.ConnectInit(ctx, "u1", nil, "")
	require.NoError(t, err)
	c2, err := b.ConnectInit(ctx, "u1", nil, "")
	require.NoError(t, err)
	assert.NotEqual(t, c1.State, c2.State)
	assert.NotEqual(t, c1.SessionKeyAddress, c2.SessionKeyAddress)

	result, err := b.HandleCallback(ctx, CallbackInput{State: c2.State, Granted: true, Granter: "xion1granter"})
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, c2.SessionKeyAddress, result.SessionKeyAddress)
}

func TestDisconnect_Idempotent(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	first, err := b.Disconnect(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, first.Success)

	second, err := b.Disconnect(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, second.Success)
}

func TestDisconnect_RequiresUserID(t *testing.T) {
	b := newTestBackend(t)
	_, err := b.Disconnect(context.Background(), "")
	assert.Equal(t, autherr.CodeUserIDRequired, autherr.CodeOf(err))
}

func TestCheckStatus_SwallowsErrors(t *testing.T) {
	b := newTestBackend(t)
	assert.False(t, b.CheckStatus(context.Background(), "").Connected)
	assert.False(t, b.CheckStatus(context.Background(), "nobody").Connected)
}

func TestRefreshSessionKey_PassThrough(t *testing.T) {
	b := newTestBackend(t)

	result, err := b.RefreshSessionKey(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, result)

	_, err = b.RefreshSessionKey(context.Background(), "")
	assert.Equal(t, autherr.CodeUserIDRequired, autherr.CodeOf(err))
}

func TestGrantedRedirectURLRoundTrips(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	connect, err := b.ConnectInit(ctx, "u1", nil, "https://app.example.com/after-grant")
	require.NoError(t, err)

	result, err := b.HandleCallback(ctx, CallbackInput{State: connect.State, Granted: true, Granter: "xion1granter"})
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "https://app.example.com/after-grant", result.GrantedRedirectURL)
}

func TestClearCache(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	_, err := b.ConnectInit(ctx, "u1", nil, "")
	require.NoError(t, err)
	require.NoError(t, b.ClearCache(ctx))

	stats, err := b.GetCacheStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Keys)
}

func TestClose_SafeToCallTwice(t *testing.T) {
	cfg := testConfig(t)
	b, err := New(cfg)
	require.NoError(t, err)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
}

func TestHealthCheck(t *testing.T) {
	b := newTestBackend(t)
	assert.True(t, b.HealthCheck(context.Background()))
}
