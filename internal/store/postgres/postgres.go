// Package postgres provides a PostgreSQL-backed ACL binding store
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/broker-authz/go-core/internal/store"
	"github.com/broker-authz/go-core/pkg/types"
)

// Config configures the PostgreSQL binding store
type Config struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	// Migrate runs schema migrations on startup
	Migrate bool `yaml:"migrate"`
}

// DefaultConfig returns a default store configuration
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		Migrate:         true,
	}
}

// Store persists ACL bindings in PostgreSQL. The binding tuple is the
// primary key, so adds are idempotent at the schema level. A single-row
// acl_epoch counter is bumped inside every effective mutation transaction;
// the in-memory epoch mirror is refreshed from it, so collocated caches stay
// consistent with mutations made through this instance.
type Store struct {
	db     *sql.DB
	logger *zap.Logger

	epoch     atomic.Uint64
	mu        sync.Mutex
	listeners []store.ChangeListener
}

var _ store.Store = (*Store)(nil)

// New opens the database, optionally migrates the schema, and loads the
// current mutation epoch.
func New(cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres store requires a dsn")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, store.ErrQueryFailed(err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, store.ErrQueryFailed(err)
	}

	if cfg.Migrate {
		migrator, err := NewMigrator(db)
		if err != nil {
			db.Close()
			return nil, err
		}
		if err := migrator.Up(); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("acl schema migrations applied")
	}

	s := &Store{db: db, logger: logger}
	if err := s.loadEpoch(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) loadEpoch() error {
	var epoch uint64
	err := s.db.QueryRow("SELECT epoch FROM acl_epoch WHERE id = 1").Scan(&epoch)
	if err != nil {
		return store.ErrQueryFailed(err)
	}
	s.epoch.Store(epoch)
	return nil
}

// Epoch returns the last observed mutation epoch
func (s *Store) Epoch() uint64 {
	return s.epoch.Load()
}

// OnChange registers a listener invoked after each committed mutation
func (s *Store) OnChange(listener store.ChangeListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, listener)
}

func (s *Store) notify(epoch uint64) {
	s.mu.Lock()
	listeners := make([]store.ChangeListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, l := range listeners {
		l(epoch)
	}
}

// Close releases the database connection pool
func (s *Store) Close() error {
	return s.db.Close()
}

// FindBindings returns all stored bindings the filter selects
func (s *Store) FindBindings(ctx context.Context, filter types.AclBindingFilter) ([]types.AclBinding, error) {
	if err := filter.Validate(); err != nil {
		return nil, store.ErrInvalidFilter(err)
	}

	where, args := buildWhere(filter)
	query := fmt.Sprintf(
		"SELECT %s FROM acl_bindings WHERE %s ORDER BY %s",
		bindingColumns, where, bindingColumns)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.ErrQueryFailed(err)
	}
	defer rows.Close()

	var bindings []types.AclBinding
	for rows.Next() {
		b, err := scanBinding(rows)
		if err != nil {
			return nil, store.ErrQueryFailed(err)
		}
		bindings = append(bindings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, store.ErrQueryFailed(err)
	}
	return bindings, nil
}

// AddBindings stores the bindings inside one transaction and returns those
// actually inserted. The epoch is bumped only when at least one row landed,
// so no-op batches never invalidate caches.
func (s *Store) AddBindings(ctx context.Context, bindings []types.AclBinding) ([]types.AclBinding, error) {
	for _, b := range bindings {
		if err := b.Validate(); err != nil {
			return nil, store.ErrInvalidBinding(err)
		}
	}
	if len(bindings) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, store.ErrMutationFailed(err)
	}
	defer tx.Rollback()

	const insert = "INSERT INTO acl_bindings (" + bindingColumns + ") " +
		"VALUES ($1, $2, $3, $4, $5, $6, $7, $8) " +
		"ON CONFLICT DO NOTHING RETURNING " + bindingColumns

	var added []types.AclBinding
	for _, b := range bindings {
		row := tx.QueryRowContext(ctx, insert,
			string(b.Pattern.ResourceType), string(b.Pattern.PatternType), b.Pattern.Name,
			b.Entry.Principal.Type, b.Entry.Principal.Name, b.Entry.Host,
			string(b.Entry.Operation), string(b.Entry.Permission))

		inserted, err := scanBinding(row)
		if err == sql.ErrNoRows {
			continue // already present
		}
		if err != nil {
			return nil, store.ErrMutationFailed(err)
		}
		added = append(added, inserted)
	}

	if len(added) == 0 {
		return nil, tx.Commit()
	}

	epoch, err := s.bumpEpoch(ctx, tx)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, store.ErrMutationFailed(err)
	}

	s.epoch.Store(epoch)
	s.logger.Info("acl bindings added",
		zap.Int("count", len(added)),
		zap.Uint64("epoch", epoch))
	s.notify(epoch)
	return added, nil
}

// RemoveBindings deletes every binding the filter selects and returns them
func (s *Store) RemoveBindings(ctx context.Context, filter types.AclBindingFilter) ([]types.AclBinding, error) {
	if err := filter.Validate(); err != nil {
		return nil, store.ErrInvalidFilter(err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, store.ErrMutationFailed(err)
	}
	defer tx.Rollback()

	where, args := buildWhere(filter)
	query := fmt.Sprintf("DELETE FROM acl_bindings WHERE %s RETURNING %s", where, bindingColumns)

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.ErrMutationFailed(err)
	}

	var removed []types.AclBinding
	for rows.Next() {
		b, err := scanBinding(rows)
		if err != nil {
			rows.Close()
			return nil, store.ErrMutationFailed(err)
		}
		removed = append(removed, b)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, store.ErrMutationFailed(err)
	}
	rows.Close()

	if len(removed) == 0 {
		return nil, tx.Commit()
	}

	epoch, err := s.bumpEpoch(ctx, tx)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, store.ErrMutationFailed(err)
	}

	s.epoch.Store(epoch)
	s.logger.Info("acl bindings removed",
		zap.Int("count", len(removed)),
		zap.Uint64("epoch", epoch))
	s.notify(epoch)
	return removed, nil
}

func (s *Store) bumpEpoch(ctx context.Context, tx *sql.Tx) (uint64, error) {
	var epoch uint64
	err := tx.QueryRowContext(ctx,
		"UPDATE acl_epoch SET epoch = epoch + 1 WHERE id = 1 RETURNING epoch").Scan(&epoch)
	if err != nil {
		return 0, store.ErrMutationFailed(err)
	}
	return epoch, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBinding(row rowScanner) (types.AclBinding, error) {
	var b types.AclBinding
	var resourceType, patternType, operation, permission string
	err := row.Scan(
		&resourceType, &patternType, &b.Pattern.Name,
		&b.Entry.Principal.Type, &b.Entry.Principal.Name, &b.Entry.Host,
		&operation, &permission)
	if err != nil {
		return types.AclBinding{}, err
	}
	b.Pattern.ResourceType = types.ResourceType(resourceType)
	b.Pattern.PatternType = types.PatternType(patternType)
	b.Entry.Operation = types.Operation(operation)
	b.Entry.Permission = types.PermissionType(permission)
	return b, nil
}
