// Package schema loads intake schemas and derives new-application templates from them.
//
// Schemas are YAML documents; JSON schema files load too since JSON is valid YAML.
package schema

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/BTreeMap/IntakePipe/internal/docpath"
	"github.com/BTreeMap/IntakePipe/internal/models"
)

//go:embed default_intake.yaml
var defaultSchema []byte

// ErrInvalidSchema wraps every load and validation failure.
var ErrInvalidSchema = errors.New("invalid schema")

// Default returns the built-in loan intake schema.
func Default() (*models.Schema, error) {
	return Parse(defaultSchema)
}

// Load reads and validates a schema file.
func Load(path string) (*models.Schema, error) {
	slog.Debug("schema.Load: reading schema", "path", path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		slog.Error("schema.Load: schema rejected", "path", path, "error", err)
		return nil, err
	}
	slog.Info("schema.Load: schema loaded", "path", path, "workflow", s.WorkflowName, "stages", len(s.Stages))
	return s, nil
}

// Parse decodes and validates schema bytes.
func Parse(data []byte) (*models.Schema, error) {
	var s models.Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchema, err)
	}
	for i := range s.Stages {
		for _, f := range s.Stages[i].Fields {
			if _, err := docpath.Parse(f.Path); err != nil {
				return nil, fmt.Errorf("%w: field %q: %w", ErrInvalidSchema, f.Path, err)
			}
		}
	}
	return &s, nil
}

// Template builds the initial application data: every field path present with
// a nil value, so a repeating section starts as a one-item list.
func Template(s *models.Schema) (map[string]any, error) {
	doc := make(map[string]any)
	for _, stage := range s.Stages {
		for _, f := range stage.Fields {
			if err := docpath.Set(doc, f.Path, nil); err != nil {
				return nil, fmt.Errorf("%w: template for %q: %w", ErrInvalidSchema, f.Path, err)
			}
		}
	}
	return doc, nil
}
