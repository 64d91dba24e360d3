package cursor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/IntakePipe/internal/models"
	"github.com/BTreeMap/IntakePipe/internal/state"
)

func testSchema() *models.Schema {
	return &models.Schema{Stages: []models.Stage{
		{Name: "applicant", Fields: []models.FieldDescriptor{
			{Path: "applicant.dependents", Type: models.FieldTypeInteger},
		}},
		{
			Name:          "income",
			SectionRepeat: &models.SectionRepeat{ArrayPath: "income_sources", RepeatPrompt: "Another income source?"},
			Fields: []models.FieldDescriptor{
				{Path: "income_sources[0].kind", Type: models.FieldTypeString},
				{Path: "income_sources[0].amount", Type: models.FieldTypeCurrency},
			},
		},
		{Name: "expenses", Fields: []models.FieldDescriptor{
			{Path: "expenses.monthly", Type: models.FieldTypeCurrency},
		}},
	}}
}

func newDoc() *state.Document {
	return state.New("app", map[string]any{
		"applicant":      map[string]any{"dependents": nil},
		"income_sources": []any{map[string]any{"kind": nil, "amount": nil}},
	})
}

func TestSequence(t *testing.T) {
	seq := NewSequence(testSchema())
	assert.Equal(t, 4, seq.Len())

	f, ok := seq.Field(2)
	require.True(t, ok)
	assert.Equal(t, "income_sources[0].amount", f.Path)
	_, ok = seq.Field(4)
	assert.False(t, ok)

	sec, ok := seq.Section("income_sources")
	require.True(t, ok)
	assert.Equal(t, Section{ArrayPath: "income_sources", Prompt: "Another income source?", Start: 1, End: 3}, sec)
	assert.True(t, sec.Last(2))
	assert.False(t, sec.Last(1))

	_, ok = seq.SectionAt(0)
	assert.False(t, ok)
	got, ok := seq.SectionAt(1)
	require.True(t, ok)
	assert.Equal(t, "income_sources", got.ArrayPath)
	assert.Len(t, seq.Sections(), 1)
	assert.Equal(t, 0, NewSequence(nil).Len())
}

func TestParseAnswer(t *testing.T) {
	tests := map[string]Answer{
		"yes":   AnswerYes,
		" Y ":   AnswerYes,
		"Yeah!": AnswerYes,
		"sure.": AnswerYes,
		"no":    AnswerNo,
		"Nope":  AnswerNo,
		"nah,":  AnswerNo,
		"maybe": AnswerUnrecognized,
		"":      AnswerUnrecognized,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseAnswer(in), in)
	}
	assert.Equal(t, AnswerUnrecognized, ParseAnswer("yes I have another one"))
}

func TestCapturedAdvances(t *testing.T) {
	m := NewMachine(NewSequence(testSchema()))
	doc := newDoc()

	assert.False(t, m.Captured(doc))
	assert.Equal(t, 1, doc.Runtime.ActiveIndex)
	assert.Equal(t, "applicant.dependents", doc.Runtime.LastField)

	assert.False(t, m.Captured(doc))
	assert.Equal(t, 2, doc.Runtime.ActiveIndex)
}

func TestLastFieldOfSectionAwaitsRepeat(t *testing.T) {
	m := NewMachine(NewSequence(testSchema()))
	doc := newDoc()
	doc.Runtime.ActiveIndex = 2

	assert.True(t, m.Captured(doc))
	assert.Equal(t, 2, doc.Runtime.ActiveIndex, "cursor must not advance while awaiting")
	assert.Equal(t, "income_sources", doc.Runtime.AwaitingRepeatFor)
	assert.Equal(t, "Another income source?", doc.Runtime.RepeatPrompt)
}

func TestAnswerYesStartsItem(t *testing.T) {
	m := NewMachine(NewSequence(testSchema()))
	doc := newDoc()
	doc.Runtime.ActiveIndex = 2
	m.Captured(doc)

	before, _ := doc.Get("income_sources")
	answer, err := m.Answer(doc, "yes")
	require.NoError(t, err)
	assert.Equal(t, AnswerYes, answer)

	after, _ := doc.Get("income_sources")
	assert.Len(t, after, len(before.([]any))+1)
	assert.Equal(t, 1, doc.Runtime.ArrayIndex["income_sources"])
	assert.Equal(t, 1, doc.Runtime.ActiveIndex)
	assert.False(t, doc.Runtime.Awaiting())

	field, _, ok := m.Current(doc)
	require.True(t, ok)
	assert.Equal(t, "income_sources[1].kind", doc.Resolve(field.Path))
}

func TestAnswerNoClosesSection(t *testing.T) {
	m := NewMachine(NewSequence(testSchema()))
	doc := newDoc()
	doc.Runtime.ActiveIndex = 2
	m.Captured(doc)

	answer, err := m.Answer(doc, "No.")
	require.NoError(t, err)
	assert.Equal(t, AnswerNo, answer)
	assert.Equal(t, 3, doc.Runtime.ActiveIndex)
	assert.False(t, doc.Runtime.Awaiting())
}

func TestAnswerUnrecognizedKeepsState(t *testing.T) {
	m := NewMachine(NewSequence(testSchema()))
	doc := newDoc()
	doc.Runtime.ActiveIndex = 2
	m.Captured(doc)
	before := doc.Clone()

	answer, err := m.Answer(doc, "what do you mean")
	require.NoError(t, err)
	assert.Equal(t, AnswerUnrecognized, answer)
	assert.Equal(t, before.Runtime, doc.Runtime)
	assert.Equal(t, before.Data, doc.Data)
}

func TestAnswerWithoutPendingPrompt(t *testing.T) {
	m := NewMachine(NewSequence(testSchema()))
	doc := newDoc()
	answer, err := m.Answer(doc, "yes")
	require.NoError(t, err)
	assert.Equal(t, AnswerUnrecognized, answer)
	assert.Equal(t, 0, doc.Runtime.ActiveIndex)
}

func TestStartItemInterruptsSequence(t *testing.T) {
	m := NewMachine(NewSequence(testSchema()))
	doc := newDoc()
	doc.Runtime.ActiveIndex = 3

	require.NoError(t, m.StartItem(doc, "income_sources"))
	assert.Equal(t, 1, doc.Runtime.ActiveIndex)
	assert.Equal(t, 1, doc.Runtime.ArrayIndex["income_sources"])
	items, _ := doc.Get("income_sources")
	assert.Equal(t, []any{map[string]any{"kind": nil, "amount": nil}, map[string]any{}}, items)
}

func TestStartItemCreatesMissingCollection(t *testing.T) {
	m := NewMachine(NewSequence(testSchema()))
	doc := state.New("app", nil)
	require.NoError(t, m.StartItem(doc, "income_sources"))
	items, _ := doc.Get("income_sources")
	assert.Equal(t, []any{map[string]any{}}, items)
	assert.Equal(t, 0, doc.Runtime.ArrayIndex["income_sources"])
}

func TestStartItemErrors(t *testing.T) {
	m := NewMachine(NewSequence(testSchema()))
	doc := newDoc()
	assert.ErrorIs(t, m.StartItem(doc, "pets"), ErrUnknownSection)

	require.NoError(t, doc.Set("income_sources", "none"))
	before := doc.Clone()
	assert.ErrorIs(t, m.StartItem(doc, "income_sources"), ErrNotACollection)
	assert.Equal(t, before.Data, doc.Data)
	assert.Equal(t, before.Runtime, doc.Runtime)
}

func TestCompleteAndClamp(t *testing.T) {
	m := NewMachine(NewSequence(testSchema()))
	doc := newDoc()
	assert.False(t, m.Complete(doc))

	doc.Runtime.ActiveIndex = 99
	assert.True(t, m.Complete(doc))
	assert.Equal(t, 4, doc.Runtime.ActiveIndex)
	_, _, ok := m.Current(doc)
	assert.False(t, ok)
	assert.False(t, m.Captured(doc))

	doc.Runtime.ActiveIndex = -3
	_, idx, ok := m.Current(doc)
	assert.True(t, ok)
	assert.Equal(t, 0, idx)
}

func TestCloseSectionUnknownCollection(t *testing.T) {
	m := NewMachine(NewSequence(testSchema()))
	doc := newDoc()
	doc.Runtime.ActiveIndex = 2
	doc.Runtime.AwaitingRepeatFor = "pets"
	doc.Runtime.RepeatPrompt = "Another pet?"

	m.CloseSection(doc)
	assert.Equal(t, 3, doc.Runtime.ActiveIndex)
	assert.False(t, doc.Runtime.Awaiting())
}
