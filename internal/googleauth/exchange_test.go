package googleauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calmcp/calendar-mcp/internal/autherr"
	"github.com/calmcp/calendar-mcp/internal/config"
)

func newTestExchanger(t *testing.T, handler http.HandlerFunc) *Exchanger {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	auth := config.GoogleAuth{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		AuthURI:      srv.URL + "/auth",
		TokenURI:     srv.URL + "/token",
		RedirectURI:  "http://localhost:8080/oauth2callback",
		Scopes:       []string{"https://www.googleapis.com/auth/calendar"},
	}
	return NewExchanger(auth, 5*time.Second, WithHTTPClient(srv.Client()))
}

func TestExchange(t *testing.T) {
	exchanger := newTestExchanger(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.FormValue("grant_type"))
		assert.Equal(t, "test-code", r.FormValue("code"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"access_token": "ya29.access",
			"refresh_token": "1//refresh",
			"token_type": "Bearer",
			"expires_in": 3600,
			"scope": "https://www.googleapis.com/auth/calendar openid"
		}`))
	})

	raw, err := exchanger.Exchange(context.Background(), "test-code", "")
	require.NoError(t, err)

	assert.Equal(t, "ya29.access", raw.AccessToken)
	assert.Equal(t, "1//refresh", raw.RefreshToken)
	assert.Equal(t, "Bearer", raw.TokenType)
	assert.InDelta(t, 3600, raw.ExpiresIn, 5)
	assert.Equal(t, []string{"https://www.googleapis.com/auth/calendar", "openid"}, raw.Scopes)
}

func TestExchange_ProviderError(t *testing.T) {
	exchanger := newTestExchanger(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "invalid_grant", "error_description": "Code was already redeemed."}`))
	})

	_, err := exchanger.Exchange(context.Background(), "used-code", "")
	require.Error(t, err)
	assert.True(t, autherr.IsKind(err, autherr.ExchangeFailed))
	assert.Contains(t, err.Error(), "invalid_grant")
}

func TestExchange_NoExpiryDefaults(t *testing.T) {
	exchanger := newTestExchanger(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token": "ya29.access", "token_type": "Bearer"}`))
	})

	raw, err := exchanger.Exchange(context.Background(), "test-code", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultExpiresIn, raw.ExpiresIn)
	assert.Empty(t, raw.Scopes)
}

func TestExchange_PastExpiryFloorsAtZero(t *testing.T) {
	exchanger := newTestExchanger(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token": "ya29.access", "token_type": "Bearer", "expires_in": -120}`))
	})

	raw, err := exchanger.Exchange(context.Background(), "test-code", "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), raw.ExpiresIn)
}

func TestRenew(t *testing.T) {
	exchanger := newTestExchanger(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.FormValue("grant_type"))
		assert.Equal(t, "1//refresh", r.FormValue("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token": "ya29.renewed", "token_type": "Bearer", "expires_in": 3600}`))
	})

	raw, err := exchanger.Renew(context.Background(), "1//refresh")
	require.NoError(t, err)
	assert.Equal(t, "ya29.renewed", raw.AccessToken)
}

func TestRenew_MissingRefreshToken(t *testing.T) {
	exchanger := newTestExchanger(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Error("provider must not be called without a refresh token")
	})

	_, err := exchanger.Renew(context.Background(), "")
	assert.True(t, autherr.IsKind(err, autherr.ExchangeFailed))
}

func TestAuthURL(t *testing.T) {
	exchanger := newTestExchanger(t, func(w http.ResponseWriter, _ *http.Request) {})

	url := exchanger.AuthURL("state-123")
	assert.Contains(t, url, "access_type=offline")
	assert.Contains(t, url, "prompt=consent")
	assert.Contains(t, url, "state=state-123")
	assert.Contains(t, url, "client_id=client-id")
}
