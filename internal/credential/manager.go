package credential

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/calmcp/calendar-mcp/internal/autherr"
	"github.com/calmcp/calendar-mcp/internal/logging"
)

// Manager is the only writer of the credential record store. It issues new
// grants, refreshes token material in place, and deactivates records.
//
// Issue is atomic per principal: the deactivate-old/insert-new sequence runs
// under a per-principal mutex and a store transaction, so two concurrent
// exchanges for the same principal can never leave two active records.
type Manager struct {
	store         Store
	defaultScopes []string
	logger        *slog.Logger

	// now is injectable for tests.
	now func() time.Time

	mu         sync.Mutex
	principals map[string]*sync.Mutex
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock overrides the manager's clock. Tests use this to pin issuance
// and expiry times.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// WithLogger sets a custom logger for the manager.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a lifecycle manager over the given store.
// defaultScopes is substituted whenever issuance receives no scopes.
func NewManager(store Store, defaultScopes []string, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:         store,
		defaultScopes: defaultScopes,
		logger:        slog.Default(),
		now:           time.Now,
		principals:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// principalLock returns the mutex serializing issuance for one principal.
func (m *Manager) principalLock(principalID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.principals[principalID]
	if !ok {
		lock = &sync.Mutex{}
		m.principals[principalID] = lock
	}
	return lock
}

// Issue records a new grant for the principal. Every currently-active
// record for the principal is deactivated and a new active record is
// inserted with ExpiresAt = now + expiresInSeconds, in one transaction.
func (m *Manager) Issue(ctx context.Context, principalID, accessToken, tokenType string, expiresInSeconds int64, refreshToken string, scopes []string) (*Record, error) {
	if principalID == "" {
		return nil, autherr.New(autherr.Unauthenticated, "principal id cannot be empty")
	}
	if accessToken == "" {
		return nil, autherr.New(autherr.Unauthenticated, "access token cannot be empty")
	}
	if tokenType == "" {
		tokenType = "Bearer"
	}
	if len(scopes) == 0 {
		scopes = m.defaultScopes
	}

	now := m.now()
	rec := &Record{
		PrincipalID:  principalID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    tokenType,
		ExpiresAt:    now.Add(time.Duration(expiresInSeconds) * time.Second),
		Active:       true,
	}
	if err := rec.SetScopes(scopes); err != nil {
		return nil, err
	}

	lock := m.principalLock(principalID)
	lock.Lock()
	defer lock.Unlock()

	err := m.store.Transact(ctx, func(tx Store) error {
		if err := tx.DeactivateAll(ctx, principalID); err != nil {
			return err
		}
		return tx.Insert(ctx, rec)
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("issued credential",
		logging.Operation("issue"),
		logging.PrincipalHash(principalID),
		slog.Time("expires_at", rec.ExpiresAt))
	return rec, nil
}

// Refresh rewrites the access token and expiry on the same record. The
// record keeps its identity and active state; no new issuance event is
// recorded. Used when the underlying token is renewed without a new
// authorization-code exchange.
func (m *Manager) Refresh(ctx context.Context, rec *Record, accessToken string, expiresInSeconds int64) (*Record, error) {
	if accessToken == "" {
		return nil, autherr.New(autherr.Unauthenticated, "access token cannot be empty")
	}

	rec.AccessToken = accessToken
	rec.ExpiresAt = m.now().Add(time.Duration(expiresInSeconds) * time.Second)

	if err := m.store.Persist(ctx, rec); err != nil {
		return nil, err
	}

	m.logger.Debug("refreshed credential",
		logging.Operation("refresh"),
		logging.PrincipalHash(rec.PrincipalID),
		slog.Time("expires_at", rec.ExpiresAt))
	return rec, nil
}

// Deactivate flips the record to inactive. Idempotent: deactivating an
// already-inactive record returns it unchanged. A deactivated record is
// never reactivated; a new record is issued instead.
func (m *Manager) Deactivate(ctx context.Context, rec *Record) (*Record, error) {
	if !rec.Active {
		return rec, nil
	}

	rec.Active = false
	if err := m.store.Persist(ctx, rec); err != nil {
		return nil, err
	}

	m.logger.Info("deactivated credential",
		logging.Operation("deactivate"),
		logging.PrincipalHash(rec.PrincipalID))
	return rec, nil
}

// GetActive returns the principal's active record, or ErrNotFound.
func (m *Manager) GetActive(ctx context.Context, principalID string) (*Record, error) {
	return m.store.FindActive(ctx, principalID)
}

// Ping reports whether the backing store is reachable. Used by readiness
// probes in server-held mode.
func (m *Manager) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}
