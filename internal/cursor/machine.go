package cursor

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/IntakePipe/internal/models"
	"github.com/BTreeMap/IntakePipe/internal/state"
)

var (
	// ErrUnknownSection is returned when a new item is requested for a collection
	// that no repeating stage declares.
	ErrUnknownSection = errors.New("no repeating section for array path")
	// ErrNotACollection is returned when the array path holds a non-list value.
	ErrNotACollection = errors.New("array path does not hold a list")
)

// Answer is the interpretation of a reply to a repeat prompt.
type Answer int

const (
	// AnswerUnrecognized leaves the repeat prompt pending.
	AnswerUnrecognized Answer = iota
	// AnswerYes starts another item.
	AnswerYes
	// AnswerNo closes the section.
	AnswerNo
)

var (
	yesWords = map[string]bool{"yes": true, "y": true, "yeah": true, "yep": true, "sure": true}
	noWords  = map[string]bool{"no": true, "n": true, "nope": true, "nah": true}
)

// ParseAnswer classifies a yes/no reply. Case and trailing punctuation are ignored.
func ParseAnswer(text string) Answer {
	word := strings.TrimRight(strings.ToLower(strings.TrimSpace(text)), ".!?, ")
	switch {
	case yesWords[word]:
		return AnswerYes
	case noWords[word]:
		return AnswerNo
	default:
		return AnswerUnrecognized
	}
}

// Machine drives a document's cursor over a Sequence. It holds no per-application
// state; everything lives in the document's runtime.
type Machine struct {
	seq *Sequence
}

// NewMachine creates a Machine for seq.
func NewMachine(seq *Sequence) *Machine {
	return &Machine{seq: seq}
}

// Sequence returns the sequence the machine walks.
func (m *Machine) Sequence() *Sequence {
	return m.seq
}

// Current returns the active field and its index. ok is false once complete.
func (m *Machine) Current(doc *state.Document) (field models.FieldDescriptor, index int, ok bool) {
	m.clamp(doc)
	index = doc.Runtime.ActiveIndex
	field, ok = m.seq.Field(index)
	return field, index, ok
}

// Complete reports whether the cursor has passed the last field.
func (m *Machine) Complete(doc *state.Document) bool {
	m.clamp(doc)
	return doc.Runtime.ActiveIndex >= m.seq.Len()
}

// Captured records that the active field now holds a valid value. It returns true
// when the field closed an item of a repeating section, in which case the cursor
// stays put and the repeat prompt is pending.
func (m *Machine) Captured(doc *state.Document) bool {
	field, idx, ok := m.Current(doc)
	if !ok {
		return false
	}
	rt := &doc.Runtime
	rt.LastField = doc.Resolve(field.Path)

	if sec, inSection := m.seq.SectionAt(idx); inSection && sec.Last(idx) {
		rt.AwaitingRepeatFor = sec.ArrayPath
		rt.RepeatPrompt = sec.Prompt
		slog.Debug("cursor.Machine.Captured: awaiting repeat decision", "applicationID", doc.ID(), "arrayPath", sec.ArrayPath)
		return true
	}
	rt.ActiveIndex = idx + 1
	return false
}

// Answer applies a reply to the pending repeat prompt. With no prompt pending it
// returns AnswerUnrecognized and changes nothing.
func (m *Machine) Answer(doc *state.Document, text string) (Answer, error) {
	rt := &doc.Runtime
	if !rt.Awaiting() {
		return AnswerUnrecognized, nil
	}
	arrayPath := rt.AwaitingRepeatFor

	answer := ParseAnswer(text)
	switch answer {
	case AnswerYes:
		if err := m.StartItem(doc, arrayPath); err != nil {
			return answer, err
		}
	case AnswerNo:
		m.CloseSection(doc)
	}
	return answer, nil
}

// CloseSection ends the pending repeat prompt and moves the cursor past the
// section's stage.
func (m *Machine) CloseSection(doc *state.Document) {
	rt := &doc.Runtime
	arrayPath := rt.AwaitingRepeatFor
	rt.ClearRepeat()
	if sec, ok := m.seq.Section(arrayPath); ok {
		rt.ActiveIndex = sec.End
	} else {
		rt.ActiveIndex++
	}
	m.clamp(doc)
	slog.Debug("cursor.Machine.CloseSection: section closed", "applicationID", doc.ID(), "arrayPath", arrayPath, "activeIndex", rt.ActiveIndex)
}

// StartItem appends an empty item to the collection, makes it the current item,
// and rewinds the cursor to the first field of its stage. Any pending repeat
// prompt is cleared. On error the document is unchanged.
func (m *Machine) StartItem(doc *state.Document, arrayPath string) error {
	sec, ok := m.seq.Section(arrayPath)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSection, arrayPath)
	}
	concrete := doc.Resolve(arrayPath)

	var items []any
	existing, found := doc.Get(concrete)
	if found && existing != nil {
		list, isList := existing.([]any)
		if !isList {
			return fmt.Errorf("%w: %s holds %T", ErrNotACollection, concrete, existing)
		}
		items = make([]any, len(list), len(list)+1)
		copy(items, list)
	}
	items = append(items, map[string]any{})
	if err := doc.Set(concrete, items); err != nil {
		return fmt.Errorf("failed to start item in %s: %w", concrete, err)
	}

	rt := &doc.Runtime
	rt.SetArrayIndex(concrete, len(items)-1)
	rt.ActiveIndex = sec.Start
	rt.ClearRepeat()
	slog.Info("cursor.Machine.StartItem: new item started", "applicationID", doc.ID(), "arrayPath", concrete, "index", len(items)-1)
	return nil
}

// clamp restores the cursor invariant after loading a document written by an
// older schema.
func (m *Machine) clamp(doc *state.Document) {
	if doc.Runtime.ActiveIndex < 0 {
		doc.Runtime.ActiveIndex = 0
	}
	if doc.Runtime.ActiveIndex > m.seq.Len() {
		doc.Runtime.ActiveIndex = m.seq.Len()
	}
}
