package models

import (
	"encoding/json"
	"errors"
	"testing"
)

func ptr(f float64) *float64 { return &f }

func validSchema() *Schema {
	return &Schema{Stages: []Stage{
		{Name: "applicant", Fields: []FieldDescriptor{
			{Path: "applicant.dependents", Type: FieldTypeInteger, Question: "How many?"},
		}},
		{Name: "income", SectionRepeat: &SectionRepeat{ArrayPath: "income_sources"}, Fields: []FieldDescriptor{
			{Path: "income_sources[0].amount", Type: FieldTypeCurrency, Min: ptr(0), Max: ptr(10)},
		}},
	}}
}

func TestSchemaValidate(t *testing.T) {
	if err := validSchema().Validate(); err != nil {
		t.Fatalf("valid schema rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(s *Schema)
		want   error
	}{
		{"no stages", func(s *Schema) { s.Stages = nil }, ErrEmptySchema},
		{"empty stage", func(s *Schema) { s.Stages[0].Fields = nil }, ErrEmptyStage},
		{"blank path", func(s *Schema) { s.Stages[0].Fields[0].Path = " " }, ErrEmptyFieldPath},
		{"bad type", func(s *Schema) { s.Stages[0].Fields[0].Type = "boolean" }, ErrInvalidFieldType},
		{"enum without values", func(s *Schema) { s.Stages[0].Fields[0].Type = FieldTypeEnum }, ErrMissingEnumValues},
		{"inverted bounds", func(s *Schema) { s.Stages[1].Fields[0].Min = ptr(20) }, ErrInvalidBounds},
		{"duplicate path", func(s *Schema) {
			s.Stages[0].Fields = append(s.Stages[0].Fields, s.Stages[0].Fields[0])
		}, ErrDuplicateFieldPath},
		{"repeat without array path", func(s *Schema) { s.Stages[1].SectionRepeat.ArrayPath = "" }, ErrMissingArrayPath},
		{"field outside array path", func(s *Schema) { s.Stages[1].Fields[0].Path = "other[0].amount" }, ErrRepeatPathMismatch},
		{"array path repeated", func(s *Schema) {
			s.Stages = append(s.Stages, Stage{
				SectionRepeat: &SectionRepeat{ArrayPath: "income_sources"},
				Fields:        []FieldDescriptor{{Path: "income_sources[0].kind", Type: FieldTypeString}},
			})
		}, ErrDuplicateRepeatPath},
	}
	for _, tt := range tests {
		s := validSchema()
		tt.mutate(s)
		if err := s.Validate(); !errors.Is(err, tt.want) {
			t.Errorf("%s: got %v, want %v", tt.name, err, tt.want)
		}
	}
}

func TestRepeatingSections(t *testing.T) {
	got := validSchema().RepeatingSections()
	if len(got) != 1 || got[0] != "income_sources" {
		t.Errorf("RepeatingSections() = %v", got)
	}
}

func TestSectionRepeatPrompt(t *testing.T) {
	var nilRepeat *SectionRepeat
	if nilRepeat.Prompt() != DefaultRepeatPrompt {
		t.Error("nil section should use the default prompt")
	}
	if (&SectionRepeat{RepeatPrompt: "Another?"}).Prompt() != "Another?" {
		t.Error("declared prompt not used")
	}
}

func TestQuestionTextFallsBackToPath(t *testing.T) {
	f := FieldDescriptor{Path: "a.b"}
	if f.QuestionText() != "a.b" {
		t.Errorf("QuestionText() = %q", f.QuestionText())
	}
}

func TestValueFromAny(t *testing.T) {
	tests := []struct {
		ft    FieldType
		raw   any
		want  any
		valid bool
	}{
		{FieldTypeInteger, 3, int64(3), true},
		{FieldTypeCurrency, float64(1500), int64(1500), true},
		{FieldTypeCurrency, json.Number("2000"), int64(2000), true},
		{FieldTypeCurrency, 12.5, nil, false},
		{FieldTypeInteger, "3", nil, false},
		{FieldTypeEnum, "single", "single", true},
		{FieldTypeDate, 1990, nil, false},
		{"boolean", true, nil, false},
	}
	for _, tt := range tests {
		v, ok := ValueFromAny(tt.ft, tt.raw)
		if ok != tt.valid {
			t.Errorf("ValueFromAny(%s, %v) ok = %v, want %v", tt.ft, tt.raw, ok, tt.valid)
			continue
		}
		if ok && v.Any() != tt.want {
			t.Errorf("ValueFromAny(%s, %v) = %#v, want %#v", tt.ft, tt.raw, v.Any(), tt.want)
		}
	}
}

func TestIsValidOperation(t *testing.T) {
	for _, op := range []Operation{OpAdd, OpReplace, OpAppend, OpAddObject, OpUncertain, OpNone} {
		if !IsValidOperation(op) {
			t.Errorf("%s should be valid", op)
		}
	}
	if IsValidOperation("remove") {
		t.Error("remove is not part of the vocabulary")
	}
}
