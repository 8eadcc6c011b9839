package server

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"

	"github.com/calmcp/calendar-mcp/internal/calendar"
	"github.com/calmcp/calendar-mcp/internal/config"
	"github.com/calmcp/calendar-mcp/internal/credential"
	"github.com/calmcp/calendar-mcp/internal/gate"
	"github.com/calmcp/calendar-mcp/internal/googleauth"
	"github.com/calmcp/calendar-mcp/internal/instrumentation"
	"github.com/calmcp/calendar-mcp/internal/logging"
)

// ServerContext holds the shared state for the MCP server: the credential
// manager, the exchange adapter, the request gate, and a per-principal
// cache of calendar clients.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	cfg       *config.Config
	manager   *credential.Manager
	exchanger *googleauth.Exchanger
	gate      *gate.Gate
	readOnly  bool

	metrics *instrumentation.Metrics
	audit   *instrumentation.AuditLogger
	logger  *slog.Logger

	// calClients caches a calendar client per principal. The cached
	// client becomes stale when the principal's access token changes
	// (refresh, re-issuance), so the entry records the token it was
	// built with.
	calClients map[string]cachedClient
	calOpts    []option.ClientOption
	mu         sync.RWMutex
	shutdown   bool
}

type cachedClient struct {
	accessToken string
	client      *calendar.Client
}

// ContextOption configures a ServerContext.
type ContextOption func(*ServerContext)

// WithReadOnly controls whether mutating calendar tools are exposed.
func WithReadOnly(readOnly bool) ContextOption {
	return func(sc *ServerContext) {
		sc.readOnly = readOnly
	}
}

// WithCalendarOptions adds extra client options for every calendar client
// the context builds. Tests use this to point clients at a local backend.
func WithCalendarOptions(opts ...option.ClientOption) ContextOption {
	return func(sc *ServerContext) {
		sc.calOpts = opts
	}
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(metrics *instrumentation.Metrics) ContextOption {
	return func(sc *ServerContext) {
		sc.metrics = metrics
	}
}

// WithAuditLogger attaches an audit logger.
func WithAuditLogger(audit *instrumentation.AuditLogger) ContextOption {
	return func(sc *ServerContext) {
		sc.audit = audit
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ContextOption {
	return func(sc *ServerContext) {
		sc.logger = logger
	}
}

// NewServerContext assembles the server's dependency graph from the
// given configuration: store, manager, exchanger, and the gate in the
// configured authentication mode.
func NewServerContext(ctx context.Context, cfg *config.Config, opts ...ContextOption) (*ServerContext, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	shutdownCtx, cancel := context.WithCancel(ctx)

	sc := &ServerContext{
		ctx:        shutdownCtx,
		cancel:     cancel,
		cfg:        cfg,
		readOnly:   true,
		logger:     slog.Default(),
		calClients: make(map[string]cachedClient),
	}
	for _, opt := range opts {
		opt(sc)
	}
	if sc.audit == nil {
		sc.audit = instrumentation.NewAuditLogger(sc.logger)
	}
	if sc.metrics == nil {
		sc.metrics = &instrumentation.Metrics{}
	}

	// Caller-supplied mode can run without a store; Validate guarantees a
	// database path whenever server-held resolution needs one.
	if cfg.DatabasePath != "" {
		store, err := credential.OpenStore(cfg.DatabasePath)
		if err != nil {
			cancel()
			return nil, err
		}
		sc.manager = credential.NewManager(store, cfg.GoogleAuth.Scopes,
			credential.WithLogger(sc.logger))
	}

	// The exchanger needs client credentials; without them the exchange
	// tools reject at call time rather than at startup, so the server
	// can still serve caller-supplied traffic.
	sc.exchanger = googleauth.NewExchanger(cfg.GoogleAuth, cfg.HTTPTimeout,
		googleauth.WithLogger(sc.logger))

	gateOpts := []gate.Option{
		gate.WithLogger(sc.logger),
		gate.WithValidationRecorder(string(cfg.AuthMode), sc.metrics),
	}
	switch cfg.AuthMode {
	case config.AuthModeCallerSupplied:
		sc.gate = gate.New(gate.NewCallerSuppliedResolver(nil), gateOpts...)
	default:
		resolverOpts := []gate.ServerHeldOption{gate.WithResolverLogger(sc.logger)}
		if cfg.GoogleAuth.ClientID != "" {
			resolverOpts = append(resolverOpts, gate.WithRenewer(sc.exchanger))
		}
		sc.gate = gate.New(gate.NewServerHeldResolver(sc.manager, resolverOpts...), gateOpts...)
	}

	return sc, nil
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Config returns the process configuration.
func (sc *ServerContext) Config() *config.Config {
	return sc.cfg
}

// Manager returns the credential lifecycle manager.
func (sc *ServerContext) Manager() *credential.Manager {
	return sc.manager
}

// Exchanger returns the authorization exchange adapter.
func (sc *ServerContext) Exchanger() *googleauth.Exchanger {
	return sc.exchanger
}

// Gate returns the request authentication gate.
func (sc *ServerContext) Gate() *gate.Gate {
	return sc.gate
}

// ReadOnly reports whether mutating calendar tools are disabled.
func (sc *ServerContext) ReadOnly() bool {
	return sc.readOnly
}

// Metrics returns the metrics recorder. Never nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.metrics
}

// AuditLogger returns the audit logger. Never nil.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	return sc.audit
}

// Logger returns the server logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// CalendarClientFor returns a calendar client for the validated
// credential, reusing the cached client while the principal's access
// token is unchanged.
func (sc *ServerContext) CalendarClientFor(cred *gate.Credential) (*calendar.Client, error) {
	sc.mu.RLock()
	cached, ok := sc.calClients[cred.PrincipalID]
	sc.mu.RUnlock()
	if ok && cached.accessToken == cred.AccessToken {
		return cached.client, nil
	}

	client, err := calendar.NewClient(sc.ctx, cred.PrincipalID, &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		TokenType:    cred.TokenType,
		Expiry:       cred.ExpiresAt,
	}, sc.calOpts...)
	if err != nil {
		return nil, err
	}

	sc.mu.Lock()
	sc.calClients[cred.PrincipalID] = cachedClient{
		accessToken: cred.AccessToken,
		client:      client,
	}
	sc.mu.Unlock()

	sc.logger.Debug("built calendar client",
		logging.PrincipalHash(cred.PrincipalID))

	return client, nil
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown shuts down the server context
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}
