package patch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/IntakePipe/internal/models"
	"github.com/BTreeMap/IntakePipe/internal/state"
)

func newDoc() *state.Document {
	return state.New("app", map[string]any{
		"applicant": map[string]any{"dependents": nil},
		"label":     "scalar",
	})
}

func statuses(results []models.PatchResult) []models.PatchStatus {
	out := make([]models.PatchStatus, len(results))
	for i, r := range results {
		out[i] = r.Status
	}
	return out
}

func TestApplyAddReplace(t *testing.T) {
	e := NewEngine()
	doc := newDoc()
	results := e.Apply(doc, []models.Patch{
		{Operation: models.OpReplace, Path: "applicant.dependents", Value: int64(2)},
		{Operation: models.OpAdd, Path: "income_sources[1].amount", Value: int64(1500)},
	})
	assert.Equal(t, []models.PatchStatus{models.PatchSuccess, models.PatchSuccess}, statuses(results))

	v, _ := doc.Get("applicant.dependents")
	assert.Equal(t, int64(2), v)
	v, _ = doc.Get("income_sources[1].amount")
	assert.Equal(t, int64(1500), v)
}

func TestApplyReplaceIsIdempotent(t *testing.T) {
	e := NewEngine()
	p := models.Patch{Operation: models.OpReplace, Path: "applicant.dependents", Value: int64(3)}

	once := newDoc()
	e.Apply(once, []models.Patch{p})
	twice := newDoc()
	e.Apply(twice, []models.Patch{p})
	e.Apply(twice, []models.Patch{p})

	assert.Equal(t, once.Data, twice.Data)
}

func TestApplyLastWriteWins(t *testing.T) {
	e := NewEngine()
	doc := newDoc()
	e.Apply(doc, []models.Patch{
		{Operation: models.OpReplace, Path: "applicant.dependents", Value: int64(1)},
		{Operation: models.OpReplace, Path: "applicant.dependents", Value: int64(4)},
	})
	v, _ := doc.Get("applicant.dependents")
	assert.Equal(t, int64(4), v)
}

func TestApplyAppend(t *testing.T) {
	e := NewEngine()
	doc := newDoc()

	results := e.Apply(doc, []models.Patch{{Operation: models.OpAppend, Path: "notes", Value: "first"}})
	assert.Equal(t, models.PatchSuccess, results[0].Status)
	v, _ := doc.Get("notes")
	assert.Equal(t, []any{"first"}, v)

	e.Apply(doc, []models.Patch{{Operation: models.OpAppend, Path: "notes", Value: "second"}})
	v, _ = doc.Get("notes")
	assert.Equal(t, []any{"first", "second"}, v)

	require.NoError(t, doc.Set("empty", nil))
	e.Apply(doc, []models.Patch{{Operation: models.OpAppend, Path: "empty", Value: 1}})
	v, _ = doc.Get("empty")
	assert.Equal(t, []any{1}, v)
}

func TestApplyAppendToScalarFails(t *testing.T) {
	e := NewEngine()
	doc := newDoc()
	results := e.Apply(doc, []models.Patch{{Operation: models.OpAppend, Path: "label", Value: "x"}})
	require.Len(t, results, 1)
	assert.Equal(t, models.PatchFailed, results[0].Status)
	assert.Contains(t, results[0].Error, ErrNotAList.Error())
	v, _ := doc.Get("label")
	assert.Equal(t, "scalar", v)
}

func TestApplyNoneAndSignals(t *testing.T) {
	e := NewEngine()
	doc := newDoc()
	before := doc.Clone()
	results := e.Apply(doc, []models.Patch{
		{Operation: models.OpNone},
		{Operation: models.OpUncertain, Path: "applicant.dependents"},
		{Operation: models.OpAddObject, TargetArray: "income_sources"},
	})
	assert.Equal(t, []models.PatchStatus{models.PatchIgnored, models.PatchIgnored, models.PatchIgnored}, statuses(results))
	assert.Equal(t, before.Data, doc.Data)
}

func TestApplyFailures(t *testing.T) {
	e := NewEngine()
	doc := newDoc()
	before := doc.Clone()
	results := e.Apply(doc, []models.Patch{
		{Operation: "delete", Path: "label"},
		{Operation: models.OpReplace},
		{Operation: models.OpReplace, Path: "label.inner", Value: 1},
		{Operation: models.OpReplace, Path: "workflow_runtime.active_index", Value: 9},
		{Operation: models.OpReplace, Path: "bad[", Value: 1},
	})
	for _, r := range results {
		assert.Equal(t, models.PatchFailed, r.Status, r.Patch.Path)
		assert.NotEmpty(t, r.Error)
	}
	assert.Equal(t, before.Data, doc.Data)
	assert.Equal(t, before.Runtime, doc.Runtime)
}

func TestPrimerGate(t *testing.T) {
	e := NewEngine()
	doc := newDoc()
	before := doc.Clone()

	results := e.Apply(doc, []models.Patch{{
		Operation:     models.OpReplace,
		Path:          "workflow_flags.expense_primer_shown",
		Value:         true,
		Justification: "user answered the income question",
	}})
	assert.Equal(t, models.PatchBlocked, results[0].Status)
	assert.Equal(t, before.Data, doc.Data, "blocked patch must not vivify any container")

	results = e.Apply(doc, []models.Patch{{
		Operation:     models.OpReplace,
		Path:          "/workflow_flags/expense_primer_shown",
		Value:         true,
		Justification: "Expense PRIMER was shown to the user",
	}})
	assert.Equal(t, models.PatchSuccess, results[0].Status)
	v, _ := doc.Get("workflow_flags.expense_primer_shown")
	assert.Equal(t, true, v)

	// resetting the flag is not guarded
	results = e.Apply(doc, []models.Patch{{Operation: models.OpReplace, Path: "workflow_flags.expense_primer_shown", Value: false}})
	assert.Equal(t, models.PatchSuccess, results[0].Status)
}

func TestGateWithoutValueGuardsEveryWrite(t *testing.T) {
	e := NewEngine(WithGates(Gate{Path: "workflow_flags.disclosure_read", Keyword: "disclosure"}))
	doc := newDoc()
	results := e.Apply(doc, []models.Patch{
		{Operation: models.OpReplace, Path: "workflow_flags.disclosure_read", Value: "yes"},
		{Operation: models.OpAppend, Path: "workflow_flags.disclosure_read", Value: 1},
		{Operation: models.OpReplace, Path: "workflow_flags.disclosure_read", Value: "yes", Justification: "read the disclosure aloud"},
	})
	assert.Equal(t, []models.PatchStatus{models.PatchBlocked, models.PatchBlocked, models.PatchSuccess}, statuses(results))
}

func TestGatesFromSchema(t *testing.T) {
	s := &models.Schema{SafetyGates: []models.SafetyGate{{Path: "/flags/consent", Keyword: "consent", Value: true}}}
	gates := GatesFromSchema(s)
	require.Len(t, gates, 1)
	assert.Equal(t, "flags.consent", gates[0].Path)
	assert.Nil(t, GatesFromSchema(nil))

	e := NewEngine(WithGates(gates...))
	doc := newDoc()
	results := e.Apply(doc, []models.Patch{{Operation: models.OpReplace, Path: "flags.consent", Value: true}})
	assert.Equal(t, models.PatchBlocked, results[0].Status)
}

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"a.b":                            "a.b",
		"/a/b":                           "a.b",
		"/income_sources/0/amount":       "income_sources[0].amount",
		"/grid/1/2":                      "grid[1][2]",
		" /workflow_flags/primer_shown ": "workflow_flags.primer_shown",
		"":                               "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizePath(in), in)
	}
}
