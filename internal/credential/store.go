package credential

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/calmcp/calendar-mcp/internal/autherr"
)

// ErrNotFound is returned by FindActive when no active record exists for
// the principal. Callers map this to an authentication failure; it is
// deliberately distinct from a store outage.
var ErrNotFound = errors.New("no active credential record")

// Store is the durable mapping from principal identity to credential
// records. All mutation goes through the Manager, never directly.
type Store interface {
	// FindActive returns the active record for the principal, picking the
	// most recently created when more than one exists. Returns ErrNotFound
	// when there is none; store outages surface as StoreUnavailable errors,
	// never as a silently stale record.
	FindActive(ctx context.Context, principalID string) (*Record, error)

	// Insert writes a new record.
	Insert(ctx context.Context, rec *Record) error

	// Persist writes through an update of an existing record.
	Persist(ctx context.Context, rec *Record) error

	// DeactivateAll flips every active record for the principal to inactive.
	DeactivateAll(ctx context.Context, principalID string) error

	// Transact runs fn against a transactional view of the store. Either
	// every write in fn commits or none do.
	Transact(ctx context.Context, fn func(Store) error) error

	// Ping verifies the underlying database is reachable.
	Ping(ctx context.Context) error
}

// gormStore is the sqlite-backed Store.
type gormStore struct {
	db *gorm.DB
}

// OpenStore opens (or creates) the sqlite database at path and migrates
// the credential record schema.
func OpenStore(path string) (Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store at %s: %w", path, err)
	}

	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("failed to migrate credential store: %w", err)
	}

	return &gormStore{db: db}, nil
}

// NewStore wraps an existing gorm handle. Used by tests with an in-memory
// database.
func NewStore(db *gorm.DB) (Store, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("failed to migrate credential store: %w", err)
	}
	return &gormStore{db: db}, nil
}

func (s *gormStore) FindActive(ctx context.Context, principalID string) (*Record, error) {
	var rec Record
	err := s.db.WithContext(ctx).
		Where("principal_id = ? AND active = ?", principalID, true).
		Order("created_at DESC, id DESC").
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, autherr.Wrap(autherr.StoreUnavailable, "failed to look up active credential", err)
	}
	return &rec, nil
}

func (s *gormStore) Insert(ctx context.Context, rec *Record) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return autherr.Wrap(autherr.StoreUnavailable, "failed to insert credential record", err)
	}
	return nil
}

func (s *gormStore) Persist(ctx context.Context, rec *Record) error {
	if err := s.db.WithContext(ctx).Save(rec).Error; err != nil {
		return autherr.Wrap(autherr.StoreUnavailable, "failed to persist credential record", err)
	}
	return nil
}

func (s *gormStore) DeactivateAll(ctx context.Context, principalID string) error {
	err := s.db.WithContext(ctx).
		Model(&Record{}).
		Where("principal_id = ? AND active = ?", principalID, true).
		Update("active", false).Error
	if err != nil {
		return autherr.Wrap(autherr.StoreUnavailable, "failed to deactivate credential records", err)
	}
	return nil
}

func (s *gormStore) Transact(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

func (s *gormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return autherr.Wrap(autherr.StoreUnavailable, "credential store handle unavailable", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return autherr.Wrap(autherr.StoreUnavailable, "credential store unreachable", err)
	}
	return nil
}
