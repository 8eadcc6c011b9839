package gate

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/calmcp/calendar-mcp/internal/autherr"
	"github.com/calmcp/calendar-mcp/internal/credential"
	"github.com/calmcp/calendar-mcp/internal/googleauth"
	"github.com/calmcp/calendar-mcp/internal/logging"
)

// DefaultPrincipalID is used when an invocation does not carry a user_id
// argument. Single-user deployments never need to pass one explicitly.
const DefaultPrincipalID = "default"

// Resolver turns tool-call arguments into a validated credential, or an
// *autherr.Error describing why the invocation must be rejected.
type Resolver interface {
	Resolve(ctx context.Context, args map[string]any) (*Credential, error)
}

// Renewer renews an access token from a refresh token. Satisfied by
// *googleauth.Exchanger.
type Renewer interface {
	Renew(ctx context.Context, refreshToken string) (*googleauth.RawCredential, error)
}

// ServerHeldResolver resolves credentials from the server-side store. The
// invocation identifies the principal via the optional user_id argument;
// the credential material itself never travels with the request.
type ServerHeldResolver struct {
	manager *credential.Manager
	renewer Renewer
	logger  *slog.Logger
	now     func() time.Time
}

// ServerHeldOption configures a ServerHeldResolver.
type ServerHeldOption func(*ServerHeldResolver)

// WithRenewer enables transparent renewal of expired stored credentials
// that carry a refresh token.
func WithRenewer(renewer Renewer) ServerHeldOption {
	return func(r *ServerHeldResolver) {
		r.renewer = renewer
	}
}

// WithResolverLogger sets a custom logger for the resolver.
func WithResolverLogger(logger *slog.Logger) ServerHeldOption {
	return func(r *ServerHeldResolver) {
		r.logger = logger
	}
}

// WithResolverClock overrides the time source, for tests.
func WithResolverClock(now func() time.Time) ServerHeldOption {
	return func(r *ServerHeldResolver) {
		r.now = now
	}
}

// NewServerHeldResolver creates a resolver backed by the credential store.
func NewServerHeldResolver(manager *credential.Manager, opts ...ServerHeldOption) *ServerHeldResolver {
	r := &ServerHeldResolver{
		manager: manager,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve looks up the active credential for the invoking principal. A
// missing record rejects as Unauthenticated, an expired one as Expired.
// When a renewer is configured and the expired record carries a refresh
// token, the resolver renews in place instead of rejecting.
func (r *ServerHeldResolver) Resolve(ctx context.Context, args map[string]any) (*Credential, error) {
	principalID := PrincipalFromArgs(args)

	rec, err := r.manager.GetActive(ctx, principalID)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return nil, autherr.Newf(autherr.Unauthenticated,
				"no active credential for principal %s; authorize first", logging.AnonymizePrincipal(principalID))
		}
		return nil, err
	}

	if rec.IsExpired(r.now()) {
		rec, err = r.renew(ctx, principalID, rec)
		if err != nil {
			return nil, err
		}
	}

	scopes, err := rec.ScopeList()
	if err != nil {
		// A record whose scope blob cannot be decoded is store corruption,
		// not a caller problem.
		return nil, autherr.Wrap(autherr.StoreUnavailable, "stored credential is unreadable", err)
	}

	return &Credential{
		PrincipalID:  rec.PrincipalID,
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken,
		TokenType:    rec.TokenType,
		ExpiresAt:    rec.ExpiresAt,
		Scopes:       scopes,
	}, nil
}

func (r *ServerHeldResolver) renew(ctx context.Context, principalID string, rec *credential.Record) (*credential.Record, error) {
	if r.renewer == nil || rec.RefreshToken == "" {
		return nil, autherr.Newf(autherr.Expired,
			"credential for principal %s has expired; authorize again", logging.AnonymizePrincipal(principalID))
	}

	r.logger.Info("renewing expired credential",
		logging.PrincipalHash(principalID))

	raw, err := r.renewer.Renew(ctx, rec.RefreshToken)
	if err != nil {
		// A failed renewal means the grant itself is dead, not just stale.
		return nil, autherr.Wrap(autherr.Expired, "credential renewal failed", err)
	}

	renewed, err := r.manager.Refresh(ctx, rec, raw.AccessToken, raw.ExpiresIn)
	if err != nil {
		return nil, err
	}
	return renewed, nil
}

// CallerSuppliedResolver resolves credentials presented inline with the
// invocation as a token argument. The store is never consulted in this
// mode and presented tokens are never persisted.
type CallerSuppliedResolver struct {
	now func() time.Time
}

// NewCallerSuppliedResolver creates a resolver for inline tokens. The now
// function may be nil, in which case time.Now is used.
func NewCallerSuppliedResolver(now func() time.Time) *CallerSuppliedResolver {
	if now == nil {
		now = time.Now
	}
	return &CallerSuppliedResolver{now: now}
}

// presentedToken is the shape of the inline token argument.
type presentedToken struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
	ExpiresAt    *float64 `json:"expires_at"`
	ExpiresIn    *float64 `json:"expires_in"`
	IssuedAt     *float64 `json:"issued_at"`
	Scopes       []string `json:"scopes"`
}

// Resolve validates the token argument structurally, then temporally.
// The effective expiry is expires_at when present, otherwise
// issued_at + expires_in with issued_at defaulting to the current time.
func (r *CallerSuppliedResolver) Resolve(_ context.Context, args map[string]any) (*Credential, error) {
	rawToken, ok := args["token"]
	if !ok || rawToken == nil {
		return nil, autherr.New(autherr.Unauthenticated, "missing token argument")
	}

	tokenMap, ok := rawToken.(map[string]any)
	if !ok {
		return nil, autherr.New(autherr.Unauthenticated, "token argument must be an object")
	}

	// Round-trip through JSON so numeric fields arriving as float64,
	// int, or json.Number all decode uniformly.
	encoded, err := json.Marshal(tokenMap)
	if err != nil {
		return nil, autherr.Wrap(autherr.Unauthenticated, "malformed token argument", err)
	}
	var tok presentedToken
	if err := json.Unmarshal(encoded, &tok); err != nil {
		return nil, autherr.Wrap(autherr.Unauthenticated, "malformed token argument", err)
	}

	if tok.AccessToken == "" {
		return nil, autherr.New(autherr.Unauthenticated, "token is missing access_token")
	}
	if tok.ExpiresAt == nil && tok.ExpiresIn == nil {
		return nil, autherr.New(autherr.Unauthenticated, "token is missing expiry information")
	}

	now := r.now()
	var expiresAt time.Time
	if tok.ExpiresAt != nil {
		expiresAt = time.Unix(int64(*tok.ExpiresAt), 0)
	} else {
		issuedAt := now
		if tok.IssuedAt != nil {
			issuedAt = time.Unix(int64(*tok.IssuedAt), 0)
		}
		expiresAt = issuedAt.Add(time.Duration(*tok.ExpiresIn) * time.Second)
	}

	if now.After(expiresAt) {
		return nil, autherr.New(autherr.Expired, "presented token has expired")
	}

	tokenType := tok.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	return &Credential{
		PrincipalID:  DefaultPrincipalID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tokenType,
		ExpiresAt:    expiresAt,
		Scopes:       tok.Scopes,
	}, nil
}

// PrincipalFromArgs extracts the principal id from tool-call arguments,
// falling back to DefaultPrincipalID.
func PrincipalFromArgs(args map[string]any) string {
	if v, ok := args["user_id"].(string); ok && v != "" {
		return v
	}
	return DefaultPrincipalID
}
