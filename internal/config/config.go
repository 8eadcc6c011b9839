// Package config holds the process configuration for the calendar MCP
// server. The Config value is constructed once at startup (from flags and
// environment variables in cmd/serve.go) and passed by injection into the
// components that need it. Core logic never reads ambient global state.
package config

import (
	"fmt"
	"time"
)

// AuthMode selects how the request authentication gate resolves the
// credential for an inbound tool call.
type AuthMode string

const (
	// AuthModeServerHeld resolves the active stored credential by the
	// principal id carried on the call.
	AuthModeServerHeld AuthMode = "server-held"

	// AuthModeCallerSupplied validates a raw token object carried
	// directly on the call, without a store lookup.
	AuthModeCallerSupplied AuthMode = "caller-supplied"
)

// Default endpoint and scope values, matching Google's OAuth endpoints.
const (
	DefaultAuthURI     = "https://accounts.google.com/o/oauth2/auth"
	DefaultTokenURI    = "https://oauth2.googleapis.com/token"
	DefaultRedirectURI = "http://localhost:8080/oauth2callback"

	// DefaultDatabasePath is the sqlite file holding credential records.
	DefaultDatabasePath = "calendar-mcp.db"

	// DefaultHTTPTimeout bounds every network-bound call (token exchange,
	// calendar backend). Timeouts surface as transient errors, never as
	// authentication failures.
	DefaultHTTPTimeout = 30 * time.Second
)

// DefaultScopes is the scope set substituted when an exchange does not
// return one. Granted scopes are never stored empty.
var DefaultScopes = []string{
	"https://www.googleapis.com/auth/calendar",
}

// GoogleAuth holds the identity provider settings used for
// authorization-code exchange.
type GoogleAuth struct {
	ClientID     string
	ClientSecret string
	AuthURI      string
	TokenURI     string
	RedirectURI  string
	Scopes       []string
}

// Config is the assembled process configuration.
type Config struct {
	// GoogleAuth configures the authorization exchange adapter.
	GoogleAuth GoogleAuth

	// AuthMode selects the gate's credential resolution strategy.
	AuthMode AuthMode

	// DatabasePath is the sqlite file for the credential record store.
	DatabasePath string

	// HTTPTimeout bounds identity provider and calendar backend calls.
	HTTPTimeout time.Duration
}

// New returns a Config populated with defaults. Callers overwrite fields
// from flags/env before passing it down.
func New() *Config {
	return &Config{
		GoogleAuth: GoogleAuth{
			AuthURI:     DefaultAuthURI,
			TokenURI:    DefaultTokenURI,
			RedirectURI: DefaultRedirectURI,
			Scopes:      append([]string(nil), DefaultScopes...),
		},
		AuthMode:     AuthModeServerHeld,
		DatabasePath: DefaultDatabasePath,
		HTTPTimeout:  DefaultHTTPTimeout,
	}
}

// Validate checks the configuration for values that would only fail later
// at request time.
func (c *Config) Validate() error {
	switch c.AuthMode {
	case AuthModeServerHeld, AuthModeCallerSupplied:
	default:
		return fmt.Errorf("unsupported auth mode: %q (supported: %s, %s)",
			c.AuthMode, AuthModeServerHeld, AuthModeCallerSupplied)
	}

	if c.DatabasePath == "" && c.AuthMode == AuthModeServerHeld {
		return fmt.Errorf("database path is required in %s mode", AuthModeServerHeld)
	}

	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http timeout must be positive, got %s", c.HTTPTimeout)
	}

	if len(c.GoogleAuth.Scopes) == 0 {
		return fmt.Errorf("at least one OAuth scope is required")
	}

	return nil
}
