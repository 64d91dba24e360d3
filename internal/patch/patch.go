// Package patch applies batches of proposed mutations to a state document.
//
// Proposals come from deterministic capture or from the external extraction
// service and are untrusted either way. Every patch passes the safety gates
// before it may touch state; blocked and failed patches leave state unchanged.
package patch

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/BTreeMap/IntakePipe/internal/models"
	"github.com/BTreeMap/IntakePipe/internal/state"
)

var (
	// ErrNotAList is returned when appending to a non-list value.
	ErrNotAList = errors.New("append target is not a list")
	// ErrUnknownOperation is returned for operations outside the vocabulary.
	ErrUnknownOperation = errors.New("unknown patch operation")
	// ErrMissingPath is returned when a mutating patch carries no path.
	ErrMissingPath = errors.New("patch has no path")
)

// Gate guards a sensitive control flag: a patch writing Path must carry a
// justification mentioning Keyword. A gate with a Value only guards writes of
// that exact value.
type Gate struct {
	Path    string
	Keyword string
	Value   any
}

// PrimerGate keeps the expense primer flag from being set unless the
// justification references the primer itself.
var PrimerGate = Gate{Path: "workflow_flags.expense_primer_shown", Keyword: "primer", Value: true}

// GatesFromSchema converts schema-declared gates.
func GatesFromSchema(s *models.Schema) []Gate {
	if s == nil {
		return nil
	}
	gates := make([]Gate, 0, len(s.SafetyGates))
	for _, g := range s.SafetyGates {
		gates = append(gates, Gate{Path: NormalizePath(g.Path), Keyword: g.Keyword, Value: g.Value})
	}
	return gates
}

func (g Gate) applies(p models.Patch) bool {
	if p.Path != g.Path {
		return false
	}
	if g.Value == nil {
		return true
	}
	return valuesEqual(g.Value, p.Value)
}

func (g Gate) allows(p models.Patch) bool {
	return strings.Contains(strings.ToLower(p.Justification), strings.ToLower(g.Keyword))
}

// Engine applies patches under the configured gates.
type Engine struct {
	gates []Gate
}

// Option configures an Engine.
type Option func(*Engine)

// WithGates adds gates on top of PrimerGate.
func WithGates(gates ...Gate) Option {
	return func(e *Engine) {
		e.gates = append(e.gates, gates...)
	}
}

// NewEngine creates an Engine. PrimerGate is always active.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{gates: []Gate{PrimerGate}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply applies patches in order and reports one result per patch. Later
// patches at the same path overwrite earlier ones.
func (e *Engine) Apply(doc *state.Document, patches []models.Patch) []models.PatchResult {
	results := make([]models.PatchResult, 0, len(patches))
	for _, p := range patches {
		p.Path = NormalizePath(p.Path)
		results = append(results, e.applyOne(doc, p))
	}
	return results
}

func (e *Engine) applyOne(doc *state.Document, p models.Patch) models.PatchResult {
	switch p.Operation {
	case models.OpNone, models.OpUncertain, models.OpAddObject:
		// signals for the orchestrator; nothing to write
		slog.Debug("patch.Engine.Apply: patch ignored", "operation", p.Operation, "path", p.Path)
		return models.PatchResult{Status: models.PatchIgnored, Patch: p}
	case models.OpAdd, models.OpReplace, models.OpAppend:
	default:
		return failed(p, fmt.Errorf("%w: %q", ErrUnknownOperation, p.Operation))
	}

	if p.Path == "" {
		return failed(p, ErrMissingPath)
	}

	for _, g := range e.gates {
		if g.applies(p) && !g.allows(p) {
			slog.Warn("patch.Engine.Apply: blocked patch on gated path", "operation", p.Operation, "path", p.Path, "keyword", g.Keyword, "justification", p.Justification)
			return models.PatchResult{Status: models.PatchBlocked, Patch: p, Error: fmt.Sprintf("justification must reference %q", g.Keyword)}
		}
	}

	var err error
	switch p.Operation {
	case models.OpAdd, models.OpReplace:
		err = doc.Set(p.Path, p.Value)
	case models.OpAppend:
		err = appendAt(doc, p.Path, p.Value)
	}
	if err != nil {
		return failed(p, err)
	}

	slog.Info("patch.Engine.Apply: patch applied", "operation", p.Operation, "path", p.Path, "justification", p.Justification)
	return models.PatchResult{Status: models.PatchSuccess, Patch: p}
}

func appendAt(doc *state.Document, path string, value any) error {
	existing, ok := doc.Get(path)
	if !ok || existing == nil {
		return doc.Set(path, []any{value})
	}
	list, isList := existing.([]any)
	if !isList {
		return fmt.Errorf("%w: %s holds %T", ErrNotAList, path, existing)
	}
	grown := make([]any, len(list), len(list)+1)
	copy(grown, list)
	return doc.Set(path, append(grown, value))
}

func failed(p models.Patch, err error) models.PatchResult {
	slog.Error("patch.Engine.Apply: patch failed", "operation", p.Operation, "path", p.Path, "error", err)
	return models.PatchResult{Status: models.PatchFailed, Patch: p, Error: err.Error()}
}

// NormalizePath rewrites JSON-pointer style paths ("/a/items/0/b") into dotted
// form ("a.items[0].b"). Dotted paths pass through unchanged.
func NormalizePath(path string) string {
	path = strings.TrimSpace(path)
	if !strings.HasPrefix(path, "/") {
		return path
	}
	var b strings.Builder
	for _, part := range strings.Split(strings.Trim(path, "/"), "/") {
		if part == "" {
			continue
		}
		if isIndex(part) && b.Len() > 0 {
			b.WriteString("[" + part + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(part)
	}
	return b.String()
}

func isIndex(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func valuesEqual(a, b any) bool {
	if fa, ok := models.AsFloat64(a); ok {
		fb, ok := models.AsFloat64(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}
