package gate

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calmcp/calendar-mcp/internal/autherr"
	"github.com/calmcp/calendar-mcp/internal/credential"
	"github.com/calmcp/calendar-mcp/internal/googleauth"
)

func newTestManager(t *testing.T, now func() time.Time) *credential.Manager {
	t.Helper()

	store, err := credential.OpenStore(filepath.Join(t.TempDir(), "gate_test.db"))
	require.NoError(t, err)

	opts := []credential.ManagerOption{}
	if now != nil {
		opts = append(opts, credential.WithClock(now))
	}
	return credential.NewManager(store, []string{"https://www.googleapis.com/auth/calendar"}, opts...)
}

func toolRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()

	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	return text.Text
}

func decodeRejection(t *testing.T, result *mcp.CallToolResult) rejection {
	t.Helper()

	var rej rejection
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &rej))
	return rej
}

func TestRequirePassesValidServerHeldCredential(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t, nil)

	_, err := mgr.Issue(ctx, "alice", "access-token", "Bearer", 3600, "refresh-token", nil)
	require.NoError(t, err)

	gate := New(NewServerHeldResolver(mgr))

	var handlerCred *Credential
	handler := func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		cred, ok := CredentialFromContext(ctx)
		require.True(t, ok, "credential must be attached before the handler runs")
		handlerCred = cred
		return mcp.NewToolResultText("ok"), nil
	}

	result, err := gate.Require(handler)(ctx, toolRequest("calendar_list_calendars", map[string]any{
		"user_id": "alice",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "ok", resultText(t, result))

	require.NotNil(t, handlerCred)
	assert.Equal(t, "alice", handlerCred.PrincipalID)
	assert.Equal(t, "access-token", handlerCred.AccessToken)
	assert.Equal(t, "refresh-token", handlerCred.RefreshToken)
}

func TestRequireRejectsUnknownPrincipalBeforeHandler(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t, nil)
	gate := New(NewServerHeldResolver(mgr))

	handlerCalled := false
	handler := func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		handlerCalled = true
		return mcp.NewToolResultText("ok"), nil
	}

	result, err := gate.Require(handler)(ctx, toolRequest("calendar_list_calendars", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.False(t, handlerCalled, "handler must not run for an unauthenticated invocation")

	rej := decodeRejection(t, result)
	assert.Equal(t, string(autherr.Unauthenticated), rej.Code)
	assert.NotEmpty(t, rej.Message)
}

func TestRequireRejectsCorruptStoredScopes(t *testing.T) {
	ctx := context.Background()

	store, err := credential.OpenStore(filepath.Join(t.TempDir(), "gate_test.db"))
	require.NoError(t, err)
	mgr := credential.NewManager(store, []string{"https://www.googleapis.com/auth/calendar"})

	_, err = mgr.Issue(ctx, "alice", "access-token", "Bearer", 3600, "refresh-token", nil)
	require.NoError(t, err)

	// Mangle the scope blob directly in the store, bypassing the manager.
	rec, err := store.FindActive(ctx, "alice")
	require.NoError(t, err)
	rec.Scopes = "not json"
	require.NoError(t, store.Persist(ctx, rec))

	gate := New(NewServerHeldResolver(mgr))

	handlerCalled := false
	handler := func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		handlerCalled = true
		return mcp.NewToolResultText("ok"), nil
	}

	result, err := gate.Require(handler)(ctx, toolRequest("calendar_list_calendars", map[string]any{
		"user_id": "alice",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.False(t, handlerCalled, "handler must not run on an unreadable credential")

	rej := decodeRejection(t, result)
	assert.Equal(t, string(autherr.StoreUnavailable), rej.Code)
}

func TestRequireRejectsExpiredStoredCredential(t *testing.T) {
	ctx := context.Background()

	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mgr := newTestManager(t, func() time.Time { return issued })

	// No refresh token, so renewal is not an option.
	_, err := mgr.Issue(ctx, "bob", "stale-token", "Bearer", 3600, "", nil)
	require.NoError(t, err)

	later := issued.Add(2 * time.Hour)
	resolver := NewServerHeldResolver(mgr, WithResolverClock(func() time.Time { return later }))
	gate := New(resolver)

	handler := func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		t.Fatal("handler must not run for an expired credential")
		return nil, nil
	}

	result, err := gate.Require(handler)(ctx, toolRequest("calendar_list_calendars", map[string]any{
		"user_id": "bob",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, string(autherr.Expired), decodeRejection(t, result).Code)
}

type fakeRenewer struct {
	raw    *googleauth.RawCredential
	err    error
	calls  int
	gotTok string
}

func (f *fakeRenewer) Renew(_ context.Context, refreshToken string) (*googleauth.RawCredential, error) {
	f.calls++
	f.gotTok = refreshToken
	if f.err != nil {
		return nil, f.err
	}
	return f.raw, nil
}

func TestServerHeldResolverRenewsExpiredCredential(t *testing.T) {
	ctx := context.Background()

	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := issued
	clock := func() time.Time { return now }
	mgr := newTestManager(t, clock)

	_, err := mgr.Issue(ctx, "carol", "stale-token", "Bearer", 3600, "refresh-token", nil)
	require.NoError(t, err)

	renewer := &fakeRenewer{raw: &googleauth.RawCredential{
		AccessToken: "fresh-token",
		ExpiresIn:   3600,
	}}

	now = issued.Add(2 * time.Hour)
	resolver := NewServerHeldResolver(mgr,
		WithRenewer(renewer),
		WithResolverClock(clock))

	cred, err := resolver.Resolve(ctx, map[string]any{"user_id": "carol"})
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", cred.AccessToken)
	assert.Equal(t, 1, renewer.calls)
	assert.Equal(t, "refresh-token", renewer.gotTok)

	// The store now serves the renewed token directly.
	rec, err := mgr.GetActive(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", rec.AccessToken)
	assert.False(t, rec.IsExpired(now))
}

func TestServerHeldResolverRenewalFailureIsExpired(t *testing.T) {
	ctx := context.Background()

	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mgr := newTestManager(t, func() time.Time { return issued })

	_, err := mgr.Issue(ctx, "dave", "stale-token", "Bearer", 3600, "revoked-refresh", nil)
	require.NoError(t, err)

	renewer := &fakeRenewer{err: autherr.New(autherr.ExchangeFailed, "invalid_grant")}
	resolver := NewServerHeldResolver(mgr,
		WithRenewer(renewer),
		WithResolverClock(func() time.Time { return issued.Add(2 * time.Hour) }))

	_, err = resolver.Resolve(ctx, map[string]any{"user_id": "dave"})
	require.Error(t, err)
	assert.True(t, autherr.IsKind(err, autherr.Expired))
}

func TestCallerSuppliedResolverValidToken(t *testing.T) {
	now := time.Unix(1400, 0)
	resolver := NewCallerSuppliedResolver(func() time.Time { return now })

	cred, err := resolver.Resolve(context.Background(), map[string]any{
		"token": map[string]any{
			"access_token": "x",
			"issued_at":    float64(1000),
			"expires_in":   float64(500),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "x", cred.AccessToken)
	assert.Equal(t, "Bearer", cred.TokenType)
	assert.Equal(t, time.Unix(1500, 0), cred.ExpiresAt)
	assert.Equal(t, DefaultPrincipalID, cred.PrincipalID)
}

func TestCallerSuppliedResolverTemporalCheck(t *testing.T) {
	tests := []struct {
		name     string
		token    map[string]any
		now      int64
		wantKind autherr.Kind
	}{
		{
			name: "issued_at plus expires_in still valid",
			token: map[string]any{
				"access_token": "x",
				"issued_at":    float64(1000),
				"expires_in":   float64(500),
			},
			now: 1499,
		},
		{
			name: "issued_at plus expires_in expired",
			token: map[string]any{
				"access_token": "x",
				"issued_at":    float64(1000),
				"expires_in":   float64(500),
			},
			now:      1501,
			wantKind: autherr.Expired,
		},
		{
			name: "expires_at takes precedence over expires_in",
			token: map[string]any{
				"access_token": "x",
				"expires_at":   float64(2000),
				"expires_in":   float64(1),
			},
			now: 1999,
		},
		{
			name: "expires_at in the past",
			token: map[string]any{
				"access_token": "x",
				"expires_at":   float64(1000),
			},
			now:      1001,
			wantKind: autherr.Expired,
		},
		{
			name: "missing issued_at defaults to now",
			token: map[string]any{
				"access_token": "x",
				"expires_in":   float64(60),
			},
			now: 5000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := NewCallerSuppliedResolver(func() time.Time { return time.Unix(tt.now, 0) })
			_, err := resolver.Resolve(context.Background(), map[string]any{"token": tt.token})
			if tt.wantKind == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.True(t, autherr.IsKind(err, tt.wantKind), "got %v", err)
			}
		})
	}
}

func TestCallerSuppliedResolverStructuralCheck(t *testing.T) {
	resolver := NewCallerSuppliedResolver(nil)

	tests := []struct {
		name string
		args map[string]any
	}{
		{name: "missing token", args: map[string]any{}},
		{name: "token not an object", args: map[string]any{"token": "just-a-string"}},
		{name: "missing access_token", args: map[string]any{
			"token": map[string]any{"expires_in": float64(3600)},
		}},
		{name: "missing expiry fields", args: map[string]any{
			"token": map[string]any{"access_token": "x"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resolver.Resolve(context.Background(), tt.args)
			require.Error(t, err)
			assert.True(t, autherr.IsKind(err, autherr.Unauthenticated), "got %v", err)
		})
	}
}

func TestCallerSuppliedTokenIsNeverPersisted(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t, nil)

	resolver := NewCallerSuppliedResolver(nil)
	gate := New(resolver)

	handler := func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("ok"), nil
	}

	result, err := gate.Require(handler)(ctx, toolRequest("calendar_list_calendars", map[string]any{
		"token": map[string]any{
			"access_token": "inline-token",
			"expires_in":   float64(3600),
		},
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	_, err = mgr.GetActive(ctx, DefaultPrincipalID)
	assert.ErrorIs(t, err, credential.ErrNotFound)
}

func TestPrincipalFromArgs(t *testing.T) {
	assert.Equal(t, "alice", PrincipalFromArgs(map[string]any{"user_id": "alice"}))
	assert.Equal(t, DefaultPrincipalID, PrincipalFromArgs(map[string]any{"user_id": ""}))
	assert.Equal(t, DefaultPrincipalID, PrincipalFromArgs(map[string]any{}))
	assert.Equal(t, DefaultPrincipalID, PrincipalFromArgs(nil))
}

type fakeValidationRecorder struct {
	modes   []string
	results []string
}

func (f *fakeValidationRecorder) RecordAuthValidation(_ context.Context, mode, result string) {
	f.modes = append(f.modes, mode)
	f.results = append(f.results, result)
}

func TestRequireRecordsValidationOutcome(t *testing.T) {
	ctx := context.Background()
	recorder := &fakeValidationRecorder{}

	gate := New(NewCallerSuppliedResolver(func() time.Time { return time.Unix(1400, 0) }),
		WithValidationRecorder("caller-supplied", recorder))

	handler := func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("ok"), nil
	}

	// Valid token
	_, err := gate.Require(handler)(ctx, toolRequest("calendar_list_calendars", map[string]any{
		"token": map[string]any{"access_token": "tok", "expires_at": float64(1500)},
	}))
	require.NoError(t, err)

	// Expired token
	_, err = gate.Require(handler)(ctx, toolRequest("calendar_list_calendars", map[string]any{
		"token": map[string]any{"access_token": "tok", "expires_at": float64(100)},
	}))
	require.NoError(t, err)

	// Structurally invalid token
	_, err = gate.Require(handler)(ctx, toolRequest("calendar_list_calendars", map[string]any{}))
	require.NoError(t, err)

	assert.Equal(t, []string{"valid", "expired", "failure"}, recorder.results)
	assert.Equal(t, []string{"caller-supplied", "caller-supplied", "caller-supplied"}, recorder.modes)
}
