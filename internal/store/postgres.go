// Package store provides storage backends for IntakePipe.
//
// This file implements a PostgreSQL-backed store keeping documents as JSONB.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/IntakePipe/internal/state"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	slog.Debug("Postgres ping successful")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Load(id string) (*state.Document, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT document FROM applications WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		slog.Debug("PostgresStore Load not found", "applicationID", id)
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		slog.Error("PostgresStore Load failed", "error", err, "applicationID", id)
		return nil, fmt.Errorf("failed to load application %s: %w", id, err)
	}
	doc, err := decodeDocument(data)
	if err != nil {
		slog.Error("PostgresStore Load decode failed", "error", err, "applicationID", id)
		return nil, fmt.Errorf("failed to decode application %s: %w", id, err)
	}
	slog.Debug("PostgresStore Load succeeded", "applicationID", id)
	return doc, nil
}

func (s *PostgresStore) Save(doc *state.Document) error {
	id, data, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO applications (id, document, created_at, updated_at)
		VALUES ($1, $2::jsonb, $3, $3)
		ON CONFLICT (id) DO UPDATE SET
			document = EXCLUDED.document,
			updated_at = EXCLUDED.updated_at`
	if _, err := s.db.Exec(query, id, string(data), time.Now().UTC()); err != nil {
		slog.Error("PostgresStore Save failed", "error", err, "applicationID", id)
		return fmt.Errorf("failed to save application %s: %w", id, err)
	}
	slog.Debug("PostgresStore Save succeeded", "applicationID", id)
	return nil
}

func (s *PostgresStore) List() ([]Summary, error) {
	rows, err := s.db.Query(`SELECT id, updated_at FROM applications ORDER BY updated_at DESC, id DESC`)
	if err != nil {
		slog.Error("PostgresStore List query failed", "error", err)
		return nil, fmt.Errorf("failed to query applications: %w", err)
	}
	defer rows.Close()
	var out []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.ID, &sum.UpdatedAt); err != nil {
			slog.Error("PostgresStore List scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan application row: %w", err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate application rows: %w", err)
	}
	slog.Debug("PostgresStore List succeeded", "count", len(out))
	return out, nil
}

func (s *PostgresStore) ActiveID() (string, error) {
	var id string
	err := s.db.QueryRow(`SELECT application_id FROM active_application WHERE slot = 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		slog.Error("PostgresStore ActiveID failed", "error", err)
		return "", fmt.Errorf("failed to read active application: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) SetActiveID(id string) error {
	query := `
		INSERT INTO active_application (slot, application_id, updated_at)
		VALUES (1, $1, $2)
		ON CONFLICT (slot) DO UPDATE SET
			application_id = EXCLUDED.application_id,
			updated_at = EXCLUDED.updated_at`
	if _, err := s.db.Exec(query, id, time.Now().UTC()); err != nil {
		slog.Error("PostgresStore SetActiveID failed", "error", err, "applicationID", id)
		return fmt.Errorf("failed to set active application: %w", err)
	}
	slog.Debug("PostgresStore SetActiveID succeeded", "applicationID", id)
	return nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
