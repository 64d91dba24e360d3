// Package store provides storage backends for IntakePipe.
//
// This file implements an SQLite-backed store for application documents.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/BTreeMap/IntakePipe/internal/state"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	slog.Debug("SQLite database directory verified/created", "dir", dir)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}
	slog.Debug("SQLite ping successful")

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(id string) (*state.Document, error) {
	var data string
	err := s.db.QueryRow(`SELECT document FROM applications WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		slog.Debug("SQLiteStore Load not found", "applicationID", id)
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		slog.Error("SQLiteStore Load failed", "error", err, "applicationID", id)
		return nil, fmt.Errorf("failed to load application %s: %w", id, err)
	}
	doc, err := decodeDocument([]byte(data))
	if err != nil {
		slog.Error("SQLiteStore Load decode failed", "error", err, "applicationID", id)
		return nil, fmt.Errorf("failed to decode application %s: %w", id, err)
	}
	slog.Debug("SQLiteStore Load succeeded", "applicationID", id)
	return doc, nil
}

func (s *SQLiteStore) Save(doc *state.Document) error {
	id, data, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = s.db.Exec(`
		INSERT INTO applications (id, document, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document = excluded.document,
			updated_at = excluded.updated_at`,
		id, string(data), now, now)
	if err != nil {
		slog.Error("SQLiteStore Save failed", "error", err, "applicationID", id)
		return fmt.Errorf("failed to save application %s: %w", id, err)
	}
	slog.Debug("SQLiteStore Save succeeded", "applicationID", id)
	return nil
}

func (s *SQLiteStore) List() ([]Summary, error) {
	rows, err := s.db.Query(`SELECT id, updated_at FROM applications ORDER BY updated_at DESC, id DESC`)
	if err != nil {
		slog.Error("SQLiteStore List query failed", "error", err)
		return nil, fmt.Errorf("failed to query applications: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.ID, &sum.UpdatedAt); err != nil {
			slog.Error("SQLiteStore List scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan application row: %w", err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate application rows: %w", err)
	}
	slog.Debug("SQLiteStore List succeeded", "count", len(out))
	return out, nil
}

func (s *SQLiteStore) ActiveID() (string, error) {
	var id string
	err := s.db.QueryRow(`SELECT application_id FROM active_application WHERE slot = 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		slog.Error("SQLiteStore ActiveID failed", "error", err)
		return "", fmt.Errorf("failed to read active application: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) SetActiveID(id string) error {
	_, err := s.db.Exec(`
		INSERT INTO active_application (slot, application_id, updated_at)
		VALUES (1, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			application_id = excluded.application_id,
			updated_at = excluded.updated_at`,
		id, time.Now().UTC())
	if err != nil {
		slog.Error("SQLiteStore SetActiveID failed", "error", err, "applicationID", id)
		return fmt.Errorf("failed to set active application: %w", err)
	}
	slog.Debug("SQLiteStore SetActiveID succeeded", "applicationID", id)
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
