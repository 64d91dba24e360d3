package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BTreeMap/IntakePipe/internal/state"
)

const (
	applicationsDir = "applications"
	activeFileName  = "current_application.txt"
)

// FileStore keeps one JSON file per application under Dir/applications and
// the active pointer in Dir/current_application.txt. Writes go to a temporary
// file in the same directory and are renamed into place.
type FileStore struct {
	dir string
}

// NewFileStore creates a file store rooted at the configured directory.
func NewFileStore(opts ...Option) (*FileStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("file store directory not set")
	}
	if err := os.MkdirAll(filepath.Join(cfg.Dir, applicationsDir), DefaultDirPermissions); err != nil {
		slog.Error("FileStore.NewFileStore: failed to create directory", "dir", cfg.Dir, "error", err)
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	slog.Debug("FileStore.NewFileStore: store ready", "dir", cfg.Dir)
	return &FileStore{dir: cfg.Dir}, nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, applicationsDir, id+".json")
}

func (s *FileStore) Load(id string) (*state.Document, error) {
	if !validID(id) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		slog.Error("FileStore.Load: read failed", "applicationID", id, "error", err)
		return nil, fmt.Errorf("failed to read application %s: %w", id, err)
	}
	doc, err := decodeDocument(data)
	if err != nil {
		slog.Error("FileStore.Load: decode failed", "applicationID", id, "error", err)
		return nil, fmt.Errorf("failed to decode application %s: %w", id, err)
	}
	return doc, nil
}

func (s *FileStore) Save(doc *state.Document) error {
	id, data, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	if !validID(id) {
		return fmt.Errorf("invalid application id %q", id)
	}
	if err := writeFileAtomic(s.path(id), append(data, '\n')); err != nil {
		slog.Error("FileStore.Save: write failed", "applicationID", id, "error", err)
		return fmt.Errorf("failed to save application %s: %w", id, err)
	}
	slog.Debug("FileStore.Save: application saved", "applicationID", id)
	return nil
}

func (s *FileStore) List() ([]Summary, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, applicationsDir))
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	var out []Summary
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Summary{ID: strings.TrimSuffix(name, ".json"), UpdatedAt: info.ModTime()})
	}
	sortSummaries(out)
	return out, nil
}

func (s *FileStore) ActiveID() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, activeFileName))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read active application: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *FileStore) SetActiveID(id string) error {
	if err := writeFileAtomic(filepath.Join(s.dir, activeFileName), []byte(id+"\n")); err != nil {
		return fmt.Errorf("failed to set active application: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}

// writeFileAtomic never leaves a partially written file at path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// validID rejects IDs that would escape the applications directory.
func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\`) && id != "." && id != ".."
}
