// Package googleauth is the boundary to the external identity provider.
// It turns single-use authorization codes into raw credential material and
// renews access tokens from refresh tokens. It holds no state and performs
// no retries: authorization codes cannot be safely retried blindly, so a
// failed exchange is reported upward immediately.
package googleauth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/calmcp/calendar-mcp/internal/autherr"
	"github.com/calmcp/calendar-mcp/internal/config"
	"github.com/calmcp/calendar-mcp/internal/logging"
)

// DefaultExpiresIn is assumed when the provider response carries no expiry.
const DefaultExpiresIn int64 = 3600

// RawCredential is the material returned by a successful exchange, before
// the lifecycle manager turns it into a stored record.
type RawCredential struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64
	Scopes       []string
}

// Exchanger talks to the identity provider's token endpoint.
type Exchanger struct {
	conf       *oauth2.Config
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// ExchangerOption configures an Exchanger.
type ExchangerOption func(*Exchanger)

// WithHTTPClient overrides the HTTP client used for provider calls.
// Tests point this at an httptest server.
func WithHTTPClient(client *http.Client) ExchangerOption {
	return func(e *Exchanger) {
		e.httpClient = client
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ExchangerOption {
	return func(e *Exchanger) {
		e.logger = logger
	}
}

// WithClock overrides the clock used to compute expires_in from absolute
// provider expiries.
func WithClock(now func() time.Time) ExchangerOption {
	return func(e *Exchanger) {
		e.now = now
	}
}

// NewExchanger builds an Exchanger from the injected provider settings.
// Every provider call is bounded by timeout; a timeout surfaces as a
// transient exchange failure, never as an authentication failure.
func NewExchanger(auth config.GoogleAuth, timeout time.Duration, opts ...ExchangerOption) *Exchanger {
	e := &Exchanger{
		conf: &oauth2.Config{
			ClientID:     auth.ClientID,
			ClientSecret: auth.ClientSecret,
			RedirectURL:  auth.RedirectURI,
			Scopes:       auth.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  auth.AuthURI,
				TokenURL: auth.TokenURI,
			},
		},
		httpClient: &http.Client{Timeout: timeout},
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AuthURL returns the provider URL a user visits to authorize access.
// Offline access and a consent prompt are requested so the exchange
// returns a refresh token.
func (e *Exchanger) AuthURL(state string) string {
	return e.conf.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)
}

// Exchange trades an authorization code for raw credential material.
// An optional redirectURI overrides the configured one for this call.
func (e *Exchanger) Exchange(ctx context.Context, code, redirectURI string) (*RawCredential, error) {
	conf := e.conf
	if redirectURI != "" {
		override := *e.conf
		override.RedirectURL = redirectURI
		conf = &override
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)
	token, err := conf.Exchange(ctx, code)
	if err != nil {
		e.logger.Warn("authorization code exchange failed",
			logging.Operation("exchange"),
			logging.Err(err))
		return nil, autherr.Wrap(autherr.ExchangeFailed, "authorization code exchange failed", err)
	}

	raw := e.toRawCredential(token)
	e.logger.Info("authorization code exchanged",
		logging.Operation("exchange"),
		slog.Int64("expires_in", raw.ExpiresIn),
		slog.Bool("has_refresh_token", raw.RefreshToken != ""))
	return raw, nil
}

// Renew obtains a fresh access token from a refresh token, without a new
// authorization-code exchange.
func (e *Exchanger) Renew(ctx context.Context, refreshToken string) (*RawCredential, error) {
	if refreshToken == "" {
		return nil, autherr.New(autherr.ExchangeFailed, "no refresh token available")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)
	source := e.conf.TokenSource(ctx, &oauth2.Token{
		RefreshToken: refreshToken,
		// Forces the token source to refresh instead of reusing material.
		Expiry: time.Unix(1, 0),
	})

	token, err := source.Token()
	if err != nil {
		return nil, autherr.Wrap(autherr.ExchangeFailed, "token refresh failed", err)
	}

	return e.toRawCredential(token), nil
}

// toRawCredential normalizes a provider token into RawCredential fields.
func (e *Exchanger) toRawCredential(token *oauth2.Token) *RawCredential {
	expiresIn := DefaultExpiresIn
	if !token.Expiry.IsZero() {
		expiresIn = int64(token.Expiry.Sub(e.now()).Seconds())
		// A provider clock ahead of ours can hand back an expiry in the
		// past; floor it so storing the credential never backdates it.
		if expiresIn < 0 {
			expiresIn = 0
		}
	}

	tokenType := token.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	var scopes []string
	if scope, ok := token.Extra("scope").(string); ok && scope != "" {
		scopes = strings.Fields(scope)
	}

	return &RawCredential{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    tokenType,
		ExpiresIn:    expiresIn,
		Scopes:       scopes,
	}
}
