// Package extraction is the model-backed fallback for answers the deterministic
// extractor cannot parse.
//
// The model is untrusted. Its output is parsed strictly and every proposal is
// filtered before it reaches the patch engine: value proposals must address the
// field being asked about, and structural proposals must name a declared
// repeating collection.
package extraction

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BTreeMap/IntakePipe/internal/genai"
	"github.com/BTreeMap/IntakePipe/internal/models"
	"github.com/BTreeMap/IntakePipe/internal/patch"
	"github.com/BTreeMap/IntakePipe/internal/state"
)

//go:embed default_instructions.md
var defaultInstructions string

// ErrMalformedOutput is returned when model output is not a proposal list.
var ErrMalformedOutput = errors.New("malformed extraction output")

// Request is everything the model sees for one turn.
type Request struct {
	Field      models.FieldDescriptor
	TargetPath string // Field.Path resolved for the current item
	UserText   string
	Document   *state.Document
	Sections   []string // declared repeating collections
}

// LLMExtractor asks a model for patch proposals.
type LLMExtractor struct {
	gen          genai.Generator
	instructions string
}

// Option configures an LLMExtractor.
type Option func(*LLMExtractor)

// WithInstructions replaces the built-in agent instructions.
func WithInstructions(text string) Option {
	return func(e *LLMExtractor) {
		if strings.TrimSpace(text) != "" {
			e.instructions = text
		}
	}
}

// NewLLMExtractor creates an extractor backed by gen.
func NewLLMExtractor(gen genai.Generator, opts ...Option) *LLMExtractor {
	e := &LLMExtractor{gen: gen, instructions: defaultInstructions}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// LoadInstructions reads agent instructions from path. An empty path yields the
// built-in instructions.
func LoadInstructions(path string) (string, error) {
	if path == "" {
		return defaultInstructions, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read agent instructions %s: %w", path, err)
	}
	return string(data), nil
}

// Extract returns the filtered proposals for req. Transport failures are
// returned as errors; malformed output yields no proposals and no error.
func (e *LLMExtractor) Extract(ctx context.Context, req Request) ([]models.Patch, error) {
	system, user, err := BuildPrompt(req, e.instructions)
	if err != nil {
		return nil, err
	}
	raw, err := e.gen.GenerateJSON(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("extraction call failed: %w", err)
	}
	proposals, err := Parse(raw)
	if err != nil {
		slog.Warn("extraction.LLMExtractor.Extract: discarding model output", "target", req.TargetPath, "error", err)
		return nil, nil
	}
	safe := Filter(proposals, req.TargetPath, req.Sections)
	slog.Debug("extraction.LLMExtractor.Extract: proposals", "target", req.TargetPath, "received", len(proposals), "kept", len(safe))
	return safe, nil
}

// Parse decodes model output. Accepted shapes are {"patches": [...]} and a bare
// array of proposals; anything else is ErrMalformedOutput.
func Parse(raw string) ([]models.Patch, error) {
	data := bytes.TrimSpace([]byte(raw))
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrMalformedOutput)
	}

	var list json.RawMessage
	switch data[0] {
	case '[':
		list = data
	case '{':
		var envelope struct {
			Patches json.RawMessage `json:"patches"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
		}
		if len(envelope.Patches) == 0 {
			return nil, fmt.Errorf("%w: object without patches", ErrMalformedOutput)
		}
		list = envelope.Patches
	default:
		return nil, fmt.Errorf("%w: not JSON", ErrMalformedOutput)
	}

	dec := json.NewDecoder(bytes.NewReader(list))
	dec.UseNumber()
	var patches []models.Patch
	if err := dec.Decode(&patches); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	for i := range patches {
		patches[i].Value = normalizeNumber(patches[i].Value)
	}
	return patches, nil
}

// Filter drops every proposal outside the extraction vocabulary, every value
// proposal addressing a path other than target, and every structural proposal
// naming a collection not in sections.
func Filter(proposals []models.Patch, target string, sections []string) []models.Patch {
	declared := make(map[string]bool, len(sections))
	for _, s := range sections {
		declared[s] = true
	}

	var safe []models.Patch
	for _, p := range proposals {
		p.Operation = models.Operation(strings.ToLower(strings.TrimSpace(string(p.Operation))))
		p.Path = patch.NormalizePath(p.Path)
		switch p.Operation {
		case models.OpAddObject:
			p.TargetArray = patch.NormalizePath(p.TargetArray)
			if declared[p.TargetArray] {
				safe = append(safe, p)
				continue
			}
		case models.OpReplace, models.OpUncertain, models.OpNone:
			if p.Path != "" && p.Path == target {
				safe = append(safe, p)
				continue
			}
		}
		slog.Warn("extraction.Filter: proposal discarded", "operation", p.Operation, "path", p.Path, "targetArray", p.TargetArray, "target", target)
	}
	return safe
}

func normalizeNumber(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}
