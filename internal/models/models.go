// Package models defines the core data structures for IntakePipe.
//
// It includes the intake schema (stages and field descriptors), the patch vocabulary
// exchanged with the patch engine, and the typed field values produced by capture.
package models

import (
	"errors"
	"fmt"
	"strings"
)

// FieldType defines how a field's raw answer is parsed and validated.
type FieldType string

const (
	// FieldTypeInteger is a non-negative whole number.
	FieldTypeInteger FieldType = "integer"
	// FieldTypeCurrency is a single exact money amount stored as an integer.
	FieldTypeCurrency FieldType = "currency"
	// FieldTypeEnum is one of a fixed set of allowed values.
	FieldTypeEnum FieldType = "enum"
	// FieldTypeString is free text.
	FieldTypeString FieldType = "string"
	// FieldTypeDate is a DD/MM/YYYY calendar date.
	FieldTypeDate FieldType = "date"
)

// Error variables for schema validation
var (
	ErrEmptySchema         = errors.New("schema has no stages")
	ErrEmptyStage          = errors.New("stage has no fields")
	ErrEmptyFieldPath      = errors.New("field path cannot be empty")
	ErrInvalidFieldType    = errors.New("invalid field type")
	ErrMissingEnumValues   = errors.New("enum field requires allowed values")
	ErrDuplicateFieldPath  = errors.New("duplicate field path")
	ErrInvalidBounds       = errors.New("field min is greater than max")
	ErrMissingArrayPath    = errors.New("section_repeat requires array_path")
	ErrRepeatPathMismatch  = errors.New("repeating stage field is outside its array_path")
	ErrDuplicateRepeatPath = errors.New("array_path repeated by more than one stage")
)

// IsValidFieldType checks if the given field type is supported.
func IsValidFieldType(ft FieldType) bool {
	switch ft {
	case FieldTypeInteger, FieldTypeCurrency, FieldTypeEnum, FieldTypeString, FieldTypeDate:
		return true
	default:
		return false
	}
}

// FieldDescriptor names one datum to collect.
//
// Path is a template: a segment written as name[0] inside a repeating stage means
// "the current item of this collection" and is resolved per turn, never literally.
type FieldDescriptor struct {
	Path           string    `json:"path" yaml:"path"`
	Type           FieldType `json:"type" yaml:"type"`
	Question       string    `json:"question" yaml:"question"`
	RepeatQuestion string    `json:"repeat_question,omitempty" yaml:"repeat_question,omitempty"` // asked for items after the first
	Values         []string  `json:"values,omitempty" yaml:"values,omitempty"`
	Min            *float64  `json:"min,omitempty" yaml:"min,omitempty"`
	Max            *float64  `json:"max,omitempty" yaml:"max,omitempty"`
}

// SectionRepeat marks a stage as one item of a user-extensible collection.
type SectionRepeat struct {
	ArrayPath    string `json:"array_path" yaml:"array_path"`
	RepeatPrompt string `json:"repeat_prompt" yaml:"repeat_prompt"`
}

// Stage is an ordered group of fields.
type Stage struct {
	Name          string            `json:"name,omitempty" yaml:"name,omitempty"`
	Fields        []FieldDescriptor `json:"fields" yaml:"fields"`
	SectionRepeat *SectionRepeat    `json:"section_repeat,omitempty" yaml:"section_repeat,omitempty"`
}

// SafetyGate requires a keyword in a patch justification before Path may be written.
// When Value is set the gate only applies to patches writing that exact value.
type SafetyGate struct {
	Path    string `json:"path" yaml:"path"`
	Keyword string `json:"keyword" yaml:"keyword"`
	Value   any    `json:"value,omitempty" yaml:"value,omitempty"`
}

// Schema is the immutable intake definition, loaded once.
type Schema struct {
	WorkflowName string       `json:"workflow_name,omitempty" yaml:"workflow_name,omitempty"`
	Stages       []Stage      `json:"stages" yaml:"stages"`
	SafetyGates  []SafetyGate `json:"safety_gates,omitempty" yaml:"safety_gates,omitempty"`
}

// DefaultRepeatPrompt is asked when a repeating stage declares no prompt of its own.
const DefaultRepeatPrompt = "Do you have another item?"

// Prompt returns the repeat question for the section.
func (r *SectionRepeat) Prompt() string {
	if r == nil || strings.TrimSpace(r.RepeatPrompt) == "" {
		return DefaultRepeatPrompt
	}
	return r.RepeatPrompt
}

// Validate performs structural validation on a Schema.
func (s *Schema) Validate() error {
	if len(s.Stages) == 0 {
		return ErrEmptySchema
	}

	seenPaths := make(map[string]bool)
	seenArrays := make(map[string]bool)
	for i := range s.Stages {
		stage := &s.Stages[i]
		if len(stage.Fields) == 0 {
			return fmt.Errorf("stage %d (%s): %w", i, stage.Name, ErrEmptyStage)
		}
		if stage.SectionRepeat != nil {
			arrayPath := stage.SectionRepeat.ArrayPath
			if arrayPath == "" {
				return fmt.Errorf("stage %d (%s): %w", i, stage.Name, ErrMissingArrayPath)
			}
			if seenArrays[arrayPath] {
				return fmt.Errorf("stage %d (%s): %w: %s", i, stage.Name, ErrDuplicateRepeatPath, arrayPath)
			}
			seenArrays[arrayPath] = true
		}
		for j := range stage.Fields {
			field := &stage.Fields[j]
			if err := field.Validate(); err != nil {
				return fmt.Errorf("stage %d field %d: %w", i, j, err)
			}
			if seenPaths[field.Path] {
				return fmt.Errorf("stage %d field %d: %w: %s", i, j, ErrDuplicateFieldPath, field.Path)
			}
			seenPaths[field.Path] = true
			if stage.SectionRepeat != nil && !strings.HasPrefix(field.Path, stage.SectionRepeat.ArrayPath+"[") {
				return fmt.Errorf("stage %d field %d: %w: %s", i, j, ErrRepeatPathMismatch, field.Path)
			}
		}
	}
	return nil
}

// Validate checks a single field descriptor.
func (f *FieldDescriptor) Validate() error {
	if strings.TrimSpace(f.Path) == "" {
		return ErrEmptyFieldPath
	}
	if !IsValidFieldType(f.Type) {
		return fmt.Errorf("%w: %q", ErrInvalidFieldType, f.Type)
	}
	if f.Type == FieldTypeEnum && len(f.Values) == 0 {
		return fmt.Errorf("%s: %w", f.Path, ErrMissingEnumValues)
	}
	if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
		return fmt.Errorf("%s: %w", f.Path, ErrInvalidBounds)
	}
	return nil
}

// QuestionText returns the question, falling back to the path when none is declared.
func (f *FieldDescriptor) QuestionText() string {
	if strings.TrimSpace(f.Question) != "" {
		return f.Question
	}
	return f.Path
}

// RepeatingSections returns the array paths of every repeating stage, in schema order.
func (s *Schema) RepeatingSections() []string {
	var paths []string
	for _, stage := range s.Stages {
		if stage.SectionRepeat != nil {
			paths = append(paths, stage.SectionRepeat.ArrayPath)
		}
	}
	return paths
}
