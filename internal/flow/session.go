package flow

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/IntakePipe/internal/schema"
	"github.com/BTreeMap/IntakePipe/internal/state"
	"github.com/BTreeMap/IntakePipe/internal/store"
	"github.com/BTreeMap/IntakePipe/internal/util"
)

// Store is the persistence surface the session manager needs.
type Store interface {
	Saver
	Load(id string) (*state.Document, error)
	ActiveID() (string, error)
	SetActiveID(id string) error
}

// SessionManager decides which application a session works on.
type SessionManager struct {
	store    Store
	flow     *IntakeFlow
	template map[string]any
	newID    func() string
}

// SessionOption configures a SessionManager.
type SessionOption func(*SessionManager)

// WithIDGenerator replaces util.NewApplicationID.
func WithIDGenerator(gen func() string) SessionOption {
	return func(m *SessionManager) {
		if gen != nil {
			m.newID = gen
		}
	}
}

// NewSessionManager creates a manager whose new applications follow f's schema.
func NewSessionManager(st Store, f *IntakeFlow, opts ...SessionOption) (*SessionManager, error) {
	template, err := schema.Template(f.schema)
	if err != nil {
		return nil, fmt.Errorf("failed to build application template: %w", err)
	}
	m := &SessionManager{store: st, flow: f, template: template, newID: util.NewApplicationID}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// New creates, saves and activates a fresh application.
func (m *SessionManager) New() (*state.Document, error) {
	id := m.newID()
	doc := state.New(id, m.template)
	if err := m.store.Save(doc); err != nil {
		slog.Error("flow.SessionManager.New: save failed", "applicationID", id, "error", err)
		return nil, fmt.Errorf("failed to save new application %s: %w", id, err)
	}
	if err := m.store.SetActiveID(id); err != nil {
		slog.Error("flow.SessionManager.New: activate failed", "applicationID", id, "error", err)
		return nil, fmt.Errorf("failed to activate application %s: %w", id, err)
	}
	slog.Info("flow.SessionManager.New: application created", "applicationID", id)
	return doc, nil
}

// Resume returns the active application when it exists and is unfinished;
// otherwise it starts a new one. resumed reports which happened.
func (m *SessionManager) Resume() (doc *state.Document, resumed bool, err error) {
	id, err := m.store.ActiveID()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read active application: %w", err)
	}
	if id == "" {
		slog.Debug("flow.SessionManager.Resume: no active application")
		doc, err = m.New()
		return doc, false, err
	}

	doc, err = m.store.Load(id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		slog.Warn("flow.SessionManager.Resume: active application missing, starting new", "applicationID", id)
		doc, err = m.New()
		return doc, false, err
	case err != nil:
		return nil, false, fmt.Errorf("failed to load application %s: %w", id, err)
	}

	if m.flow.Complete(doc) {
		slog.Info("flow.SessionManager.Resume: active application already complete, starting new", "applicationID", id)
		doc, err = m.New()
		return doc, false, err
	}
	slog.Info("flow.SessionManager.Resume: resuming application", "applicationID", id, "activeIndex", doc.Runtime.ActiveIndex)
	return doc, true, nil
}

// Load returns the application stored under id.
func (m *SessionManager) Load(id string) (*state.Document, error) {
	return m.store.Load(id)
}
