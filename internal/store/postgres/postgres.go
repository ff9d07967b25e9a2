// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/jharkins/wattson/internal/model"
	"github.com/jharkins/wattson/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) AppendEvent(ctx context.Context, e *model.Event) error {
	return queryAppendEvent(ctx, s.db, e)
}

func (s *PostgresStore) AttachMessage(ctx context.Context, id int64, messageID string) error {
	return queryAttachMessage(ctx, s.db, id, messageID)
}

func (s *PostgresStore) AbandonMessage(ctx context.Context, id int64) error {
	return queryAbandonMessage(ctx, s.db, id)
}

func (s *PostgresStore) GetEvent(ctx context.Context, id int64) (*model.Event, error) {
	return queryGetEvent(ctx, s.db, id)
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]*model.Event, error) {
	return queryListRecent(ctx, s.db, limit)
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]*model.Event, error) {
	return queryListAll(ctx, s.db)
}

func (s *PostgresStore) DeleteEvent(ctx context.Context, id int64) (int64, error) {
	return queryDeleteEvent(ctx, s.db, id)
}

func (s *PostgresStore) CountByType(ctx context.Context, types []model.EventType, field store.TimeField, from, to time.Time) (int, error) {
	return queryCountByType(ctx, s.db, types, field, from, to)
}

func (s *PostgresStore) TopActors(ctx context.Context, types []model.EventType, field store.TimeField, from, to time.Time, limit int) ([]model.ActorCount, error) {
	return queryTopActors(ctx, s.db, types, field, from, to, limit)
}
