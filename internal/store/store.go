// Package store provides storage backends for IntakePipe application documents.
//
// Every backend round-trips the full state document, workflow runtime included,
// and tracks which application is active so an interrupted interview resumes
// where it stopped.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/IntakePipe/internal/state"
)

var (
	// ErrNotFound is returned when no document exists for an application ID.
	ErrNotFound = errors.New("application not found")
	// ErrMissingID is returned when saving a document without an application ID.
	ErrMissingID = errors.New("document has no application_id")
	// ErrUnknownBackend is returned by Open for an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown store backend")
)

// Store persists application documents.
type Store interface {
	// Load returns the document for id or ErrNotFound.
	Load(id string) (*state.Document, error)
	// Save writes the whole document, replacing any previous version.
	Save(doc *state.Document) error
	// List returns every stored application, most recently updated first.
	List() ([]Summary, error)
	// ActiveID returns the active application ID, or "" when none is set.
	ActiveID() (string, error)
	// SetActiveID records id as the active application.
	SetActiveID(id string) error
	Close() error
}

// Summary describes a stored application.
type Summary struct {
	ID        string    `json:"id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Opts holds store configuration.
type Opts struct {
	DSN string // database connection string or SQLite file path
	Dir string // root directory for the file backend
}

// Option configures a store.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithDir sets the root directory of the file backend.
func WithDir(dir string) Option {
	return func(o *Opts) {
		o.Dir = dir
	}
}

// DetectDSNType reports "postgres" for PostgreSQL URLs and key/value DSNs,
// "sqlite" for everything else.
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return BackendPostgres
	}
	if strings.Contains(lower, "host=") || strings.Contains(lower, "dbname=") {
		return BackendPostgres
	}
	return BackendSQLite
}

// Open creates the named backend. An empty backend is inferred: a DSN selects
// SQLite or PostgreSQL via DetectDSNType, otherwise a directory selects the file
// backend, otherwise memory.
func Open(backend string, opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if backend == "" {
		switch {
		case cfg.DSN != "":
			backend = DetectDSNType(cfg.DSN)
		case cfg.Dir != "":
			backend = BackendFile
		default:
			backend = BackendMemory
		}
	}
	slog.Debug("store.Open: opening store", "backend", backend, "dsn_set", cfg.DSN != "", "dir", cfg.Dir)

	switch backend {
	case BackendMemory:
		return NewInMemoryStore(), nil
	case BackendFile:
		return NewFileStore(opts...)
	case BackendSQLite:
		return NewSQLiteStore(opts...)
	case BackendPostgres:
		return NewPostgresStore(opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

// InMemoryStore keeps documents in process memory. Documents are stored
// encoded so callers never share mutable state with the store.
type InMemoryStore struct {
	mu      sync.RWMutex
	docs    map[string][]byte
	updated map[string]time.Time
	active  string
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{docs: make(map[string][]byte), updated: make(map[string]time.Time)}
}

func (s *InMemoryStore) Load(id string) (*state.Document, error) {
	s.mu.RLock()
	data, ok := s.docs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return decodeDocument(data)
}

func (s *InMemoryStore) Save(doc *state.Document) error {
	id, data, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[id] = data
	s.updated[id] = time.Now()
	return nil
}

func (s *InMemoryStore) List() ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Summary, 0, len(s.updated))
	for id, ts := range s.updated {
		out = append(out, Summary{ID: id, UpdatedAt: ts})
	}
	sortSummaries(out)
	return out, nil
}

func (s *InMemoryStore) ActiveID() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active, nil
}

func (s *InMemoryStore) SetActiveID(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = id
	return nil
}

func (s *InMemoryStore) Close() error {
	return nil
}

func encodeDocument(doc *state.Document) (string, []byte, error) {
	if doc == nil {
		return "", nil, fmt.Errorf("%w: nil document", ErrMissingID)
	}
	id := doc.ID()
	if id == "" {
		return "", nil, ErrMissingID
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode application %s: %w", id, err)
	}
	return id, data, nil
}

func decodeDocument(data []byte) (*state.Document, error) {
	var doc state.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func sortSummaries(s []Summary) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].UpdatedAt.Equal(s[j].UpdatedAt) {
			return s[i].ID > s[j].ID
		}
		return s[i].UpdatedAt.After(s[j].UpdatedAt)
	})
}
