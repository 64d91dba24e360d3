// Package cursor walks the flattened field sequence of an intake schema and runs
// the repeating-section sub-dialogue.
package cursor

import (
	"github.com/BTreeMap/IntakePipe/internal/models"
)

// Section describes the span of the field sequence covered by one repeating stage.
type Section struct {
	ArrayPath string
	Prompt    string
	Start     int // first field index
	End       int // one past the last field index
}

// Contains reports whether field index i belongs to the section.
func (s Section) Contains(i int) bool {
	return i >= s.Start && i < s.End
}

// Last reports whether field index i is the section's final field.
func (s Section) Last(i int) bool {
	return i == s.End-1
}

// Sequence is the canonical, flattened order in which fields are asked.
type Sequence struct {
	fields   []models.FieldDescriptor
	sections []Section
	byPath   map[string]int
}

// NewSequence flattens the schema's stages in order.
func NewSequence(s *models.Schema) *Sequence {
	seq := &Sequence{byPath: make(map[string]int)}
	if s == nil {
		return seq
	}
	for _, stage := range s.Stages {
		start := len(seq.fields)
		seq.fields = append(seq.fields, stage.Fields...)
		if stage.SectionRepeat != nil {
			seq.byPath[stage.SectionRepeat.ArrayPath] = len(seq.sections)
			seq.sections = append(seq.sections, Section{
				ArrayPath: stage.SectionRepeat.ArrayPath,
				Prompt:    stage.SectionRepeat.Prompt(),
				Start:     start,
				End:       len(seq.fields),
			})
		}
	}
	return seq
}

// Len returns the number of fields. A cursor equal to Len means the application is complete.
func (s *Sequence) Len() int {
	return len(s.fields)
}

// Field returns the descriptor at index i.
func (s *Sequence) Field(i int) (models.FieldDescriptor, bool) {
	if i < 0 || i >= len(s.fields) {
		return models.FieldDescriptor{}, false
	}
	return s.fields[i], true
}

// Fields returns a copy of the flattened sequence.
func (s *Sequence) Fields() []models.FieldDescriptor {
	out := make([]models.FieldDescriptor, len(s.fields))
	copy(out, s.fields)
	return out
}

// Section looks up a repeating section by its array path.
func (s *Sequence) Section(arrayPath string) (Section, bool) {
	i, ok := s.byPath[arrayPath]
	if !ok {
		return Section{}, false
	}
	return s.sections[i], true
}

// SectionAt returns the repeating section containing field index i, if any.
func (s *Sequence) SectionAt(i int) (Section, bool) {
	for _, sec := range s.sections {
		if sec.Contains(i) {
			return sec, true
		}
	}
	return Section{}, false
}

// Sections returns every repeating section in schema order.
func (s *Sequence) Sections() []Section {
	out := make([]Section, len(s.sections))
	copy(out, s.sections)
	return out
}
