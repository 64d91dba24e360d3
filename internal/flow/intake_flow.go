// Package flow drives an intake interview one user turn at a time.
//
// IntakeFlow owns the per-turn precedence: a pending repeat question first, then
// deterministic capture, then the extraction collaborator. Every value that lands
// in the document passes the patch engine and the validator before the cursor
// moves, and every mutating turn is persisted.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/BTreeMap/IntakePipe/internal/cursor"
	"github.com/BTreeMap/IntakePipe/internal/extract"
	"github.com/BTreeMap/IntakePipe/internal/extraction"
	"github.com/BTreeMap/IntakePipe/internal/models"
	"github.com/BTreeMap/IntakePipe/internal/patch"
	"github.com/BTreeMap/IntakePipe/internal/state"
	"github.com/BTreeMap/IntakePipe/internal/validate"
)

const (
	// DefaultExtractTimeout bounds one extraction call.
	DefaultExtractTimeout = 30 * time.Second
	// DefaultClarifyRetries is how many digit-bearing misses are re-asked before
	// the wording escalates.
	DefaultClarifyRetries = 2
)

// Justifications recorded on engine-applied patches.
const (
	deterministicJustification = "deterministic capture"
	extractedJustification     = "extracted from user message"
)

// Extractor proposes patches for the targeted field.
type Extractor interface {
	Extract(ctx context.Context, req extraction.Request) ([]models.Patch, error)
}

// Saver persists a document after a mutating turn.
type Saver interface {
	Save(doc *state.Document) error
}

// Outcome classifies what a turn did.
type Outcome string

const (
	OutcomeCaptured        Outcome = "captured"
	OutcomeRejected        Outcome = "rejected"
	OutcomeUncertain       Outcome = "uncertain"
	OutcomeClarify         Outcome = "clarify"
	OutcomeNoMatch         Outcome = "no_match"
	OutcomeNewItem         Outcome = "new_item"
	OutcomeRepeatYes       Outcome = "repeat_yes"
	OutcomeRepeatNo        Outcome = "repeat_no"
	OutcomeRepeatUnclear   Outcome = "repeat_unrecognized"
	OutcomeAlreadyComplete Outcome = "already_complete"
)

// TurnResult is what the presentation layer shows after a turn.
type TurnResult struct {
	Outcome  Outcome
	Messages []string // agent lines, in order
	Complete bool
	Path     string // concrete path the turn targeted, if any
	Reason   validate.Reason
}

// IntakeFlow processes turns against a fixed schema.
type IntakeFlow struct {
	schema         *models.Schema
	machine        *cursor.Machine
	engine         *patch.Engine
	validator      *validate.Validator
	extractor      Extractor
	saver          Saver
	extractTimeout time.Duration
	clarifyRetries int
}

// Option configures an IntakeFlow.
type Option func(*IntakeFlow)

// WithExtractor sets the extraction collaborator. Without one, turns that
// deterministic capture cannot parse are re-asked.
func WithExtractor(e Extractor) Option {
	return func(f *IntakeFlow) {
		f.extractor = e
	}
}

// WithSaver persists the document after each mutating turn.
func WithSaver(s Saver) Option {
	return func(f *IntakeFlow) {
		f.saver = s
	}
}

// WithValidator replaces the default validator.
func WithValidator(v *validate.Validator) Option {
	return func(f *IntakeFlow) {
		if v != nil {
			f.validator = v
		}
	}
}

// WithPatchEngine replaces the engine built from the schema's safety gates.
func WithPatchEngine(e *patch.Engine) Option {
	return func(f *IntakeFlow) {
		if e != nil {
			f.engine = e
		}
	}
}

// WithExtractTimeout bounds each extraction call. Zero disables the bound.
func WithExtractTimeout(d time.Duration) Option {
	return func(f *IntakeFlow) {
		f.extractTimeout = d
	}
}

// WithClarifyRetries sets how many digit-bearing misses precede the escalated wording.
func WithClarifyRetries(n int) Option {
	return func(f *IntakeFlow) {
		if n >= 0 {
			f.clarifyRetries = n
		}
	}
}

// NewIntakeFlow creates a flow for s.
func NewIntakeFlow(s *models.Schema, opts ...Option) *IntakeFlow {
	f := &IntakeFlow{
		schema:         s,
		machine:        cursor.NewMachine(cursor.NewSequence(s)),
		engine:         patch.NewEngine(patch.WithGates(patch.GatesFromSchema(s)...)),
		validator:      validate.New(),
		extractTimeout: DefaultExtractTimeout,
		clarifyRetries: DefaultClarifyRetries,
	}
	for _, opt := range opts {
		opt(f)
	}
	slog.Debug("flow.NewIntakeFlow: created", "workflow", s.WorkflowName, "fields", f.machine.Sequence().Len(), "extractor", f.extractor != nil)
	return f
}

// Machine exposes the cursor machine.
func (f *IntakeFlow) Machine() *cursor.Machine {
	return f.machine
}

// Complete reports whether every field of doc has been answered.
func (f *IntakeFlow) Complete(doc *state.Document) bool {
	return f.machine.Complete(doc)
}

// ProcessTurn applies one user message to doc. The returned error is only ever a
// persistence failure; the result is valid either way.
func (f *IntakeFlow) ProcessTurn(ctx context.Context, doc *state.Document, text string) (TurnResult, error) {
	text = strings.TrimSpace(text)
	if f.machine.Complete(doc) && !doc.Runtime.Awaiting() {
		return TurnResult{Outcome: OutcomeAlreadyComplete, Messages: []string{CompletionMessage}, Complete: true}, nil
	}

	if doc.Runtime.Awaiting() {
		return f.answerRepeat(doc, text)
	}

	field, _, _ := f.machine.Current(doc)
	target := doc.Resolve(field.Path)
	slog.Debug("flow.IntakeFlow.ProcessTurn: turn", "applicationID", doc.ID(), "path", target)

	if v, ok := extract.Capture(field, text); ok {
		if f.applyValue(doc, target, v, deterministicJustification) {
			return f.captured(doc, field, target)
		}
	}

	if f.extractor != nil {
		if res, handled, err := f.delegate(ctx, doc, field, target, text); handled {
			return res, err
		}
	}

	return f.noProposal(doc, field, target, text)
}

// delegate consults the extraction collaborator. handled is false when no
// proposal was actionable.
func (f *IntakeFlow) delegate(ctx context.Context, doc *state.Document, field models.FieldDescriptor, target, text string) (TurnResult, bool, error) {
	sections := f.schema.RepeatingSections()
	req := extraction.Request{
		Field:      field,
		TargetPath: target,
		UserText:   text,
		Document:   doc,
		Sections:   sections,
	}

	callCtx := ctx
	if f.extractTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, f.extractTimeout)
		defer cancel()
	}
	proposals, err := f.extractor.Extract(callCtx, req)
	if err != nil {
		slog.Warn("flow.IntakeFlow.delegate: extraction failed, treating as no proposal", "applicationID", doc.ID(), "path", target, "error", err)
		return TurnResult{}, false, nil
	}
	proposals = extraction.Filter(proposals, target, sections)

	for _, p := range proposals {
		switch p.Operation {
		case models.OpUncertain:
			doc.Runtime.ClarifyRetries = 0
			slog.Info("flow.IntakeFlow.delegate: answer uncertain", "applicationID", doc.ID(), "path", target, "reason", p.Reason)
			res := TurnResult{Outcome: OutcomeUncertain, Path: target, Messages: []string{uncertainMessage(f.question(doc, field))}}
			return res, true, f.save(doc)

		case models.OpReplace:
			v, ok := coerce(field, p.Value)
			if !ok {
				slog.Warn("flow.IntakeFlow.delegate: proposed value does not fit field", "applicationID", doc.ID(), "path", target, "type", field.Type, "value", p.Value)
				continue
			}
			justification := p.Justification
			if strings.TrimSpace(justification) == "" {
				justification = extractedJustification
			}
			if f.applyValue(doc, target, v, justification) {
				res, err := f.captured(doc, field, target)
				return res, true, err
			}

		case models.OpAddObject:
			if err := f.machine.StartItem(doc, p.TargetArray); err != nil {
				slog.Warn("flow.IntakeFlow.delegate: could not start item", "applicationID", doc.ID(), "targetArray", p.TargetArray, "error", err)
				continue
			}
			doc.Runtime.ClarifyRetries = 0
			res := TurnResult{Outcome: OutcomeNewItem, Path: target, Messages: []string{NewItemMessage, f.Prompt(doc)}}
			return res, true, f.save(doc)
		}
	}
	return TurnResult{}, false, nil
}

// noProposal re-asks the field. Text carrying digits is a failed attempt at a
// number, so repeated misses escalate the wording.
func (f *IntakeFlow) noProposal(doc *state.Document, field models.FieldDescriptor, target, text string) (TurnResult, error) {
	rt := &doc.Runtime
	if !containsDigit(text) {
		changed := rt.ClarifyRetries != 0
		rt.ClarifyRetries = 0
		res := TurnResult{Outcome: OutcomeNoMatch, Path: target, Messages: []string{f.question(doc, field)}}
		if changed {
			return res, f.save(doc)
		}
		return res, nil
	}

	msg := uncertainMessage(f.question(doc, field))
	if rt.ClarifyRetries >= f.clarifyRetries {
		msg = ClarifyEscalationMessage
	}
	rt.ClarifyRetries++
	slog.Debug("flow.IntakeFlow.noProposal: clarification requested", "applicationID", doc.ID(), "path", target, "retries", rt.ClarifyRetries)
	return TurnResult{Outcome: OutcomeClarify, Path: target, Messages: []string{msg}}, f.save(doc)
}

// captured validates the freshly written value and advances the cursor.
func (f *IntakeFlow) captured(doc *state.Document, field models.FieldDescriptor, target string) (TurnResult, error) {
	rt := &doc.Runtime
	rt.ClarifyRetries = 0

	value, _ := doc.Get(target)
	if res := f.validator.Validate(field, value); !res.OK {
		if err := doc.Set(target, nil); err != nil {
			slog.Error("flow.IntakeFlow.captured: failed to clear rejected value", "applicationID", doc.ID(), "path", target, "error", err)
		}
		slog.Info("flow.IntakeFlow.captured: value rejected", "applicationID", doc.ID(), "path", target, "reason", res.Reason)
		out := TurnResult{
			Outcome:  OutcomeRejected,
			Path:     target,
			Reason:   res.Reason,
			Messages: []string{rejectionMessage(res.Reason, f.question(doc, field))},
		}
		return out, f.save(doc)
	}

	out := TurnResult{Outcome: OutcomeCaptured, Path: target}
	switch {
	case f.machine.Captured(doc):
		out.Messages = []string{rt.RepeatPrompt}
	case f.machine.Complete(doc):
		out.Complete = true
		out.Messages = []string{CompletionMessage}
	default:
		out.Messages = []string{f.Prompt(doc)}
	}
	slog.Info("flow.IntakeFlow.captured: field captured", "applicationID", doc.ID(), "path", target, "activeIndex", rt.ActiveIndex)
	return out, f.save(doc)
}

// answerRepeat handles a reply while a repeat question is pending.
func (f *IntakeFlow) answerRepeat(doc *state.Document, text string) (TurnResult, error) {
	arrayPath := doc.Runtime.AwaitingRepeatFor
	answer, err := f.machine.Answer(doc, text)
	if err != nil {
		slog.Error("flow.IntakeFlow.answerRepeat: collection cannot grow, closing section", "applicationID", doc.ID(), "arrayPath", arrayPath, "error", err)
		f.machine.CloseSection(doc)
		answer = cursor.AnswerNo
	}

	var res TurnResult
	switch answer {
	case cursor.AnswerYes:
		res = TurnResult{Outcome: OutcomeRepeatYes, Messages: []string{f.Prompt(doc)}}
	case cursor.AnswerNo:
		res = TurnResult{Outcome: OutcomeRepeatNo, Messages: []string{f.Prompt(doc)}, Complete: f.machine.Complete(doc)}
	default:
		return TurnResult{Outcome: OutcomeRepeatUnclear, Messages: []string{repeatRetryMessage(doc.Runtime.RepeatPrompt)}}, nil
	}
	return res, f.save(doc)
}

// applyValue writes v through the patch engine.
func (f *IntakeFlow) applyValue(doc *state.Document, target string, v models.Value, justification string) bool {
	results := f.engine.Apply(doc, []models.Patch{{
		Operation:     models.OpReplace,
		Path:          target,
		Value:         v.Any(),
		Justification: justification,
	}})
	if len(results) == 0 || results[0].Status != models.PatchSuccess {
		return false
	}
	return Filled(doc, target)
}

func (f *IntakeFlow) save(doc *state.Document) error {
	if f.saver == nil {
		return nil
	}
	if err := f.saver.Save(doc); err != nil {
		slog.Error("flow.IntakeFlow.save: failed to persist application", "applicationID", doc.ID(), "error", err)
		return fmt.Errorf("failed to persist application %s: %w", doc.ID(), err)
	}
	return nil
}

// coerce fits an extracted value to the field type. Strings that do not fit
// directly get a second chance through the deterministic parsers.
func coerce(field models.FieldDescriptor, raw any) (models.Value, bool) {
	if v, ok := models.ValueFromAny(field.Type, raw); ok {
		switch field.Type {
		case models.FieldTypeInteger, models.FieldTypeCurrency:
			if v.Int < 0 {
				return models.Value{}, false
			}
			return v, true
		default:
			return extract.Capture(field, v.Text)
		}
	}
	if s, ok := raw.(string); ok {
		return extract.Capture(field, s)
	}
	return models.Value{}, false
}

// Filled reports whether path holds an answer: non-null, and non-blank for strings.
func Filled(doc *state.Document, path string) bool {
	v, ok := doc.Get(path)
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString {
		return strings.TrimSpace(s) != ""
	}
	return true
}

func containsDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}
