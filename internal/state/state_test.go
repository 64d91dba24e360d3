package state

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCopiesTemplate(t *testing.T) {
	template := map[string]any{
		"dependents":     nil,
		"income_sources": []any{map[string]any{"amount": nil}},
	}
	doc := New("20261018-120000-ABCD", template)
	require.NoError(t, doc.Set("income_sources[0].amount", int64(3000)))

	assert.Equal(t, "20261018-120000-ABCD", doc.ID())
	assert.Nil(t, template["income_sources"].([]any)[0].(map[string]any)["amount"], "template must stay pristine")
	assert.Equal(t, 0, doc.Runtime.ActiveIndex)
}

func TestSetRejectsRuntimePaths(t *testing.T) {
	doc := New("id", nil)
	for _, p := range []string{"workflow_runtime", "workflow_runtime.active_index", "workflow_runtime[0]"} {
		assert.ErrorIs(t, doc.Set(p, 5), ErrReservedPath, p)
	}
	assert.NoError(t, doc.Set("workflow_runtime_notes", "fine"))
}

func TestJSONRoundTrip(t *testing.T) {
	doc := New("app-1", map[string]any{"applicant": map[string]any{"name": nil}})
	require.NoError(t, doc.Set("dependents", int64(2)))
	require.NoError(t, doc.Set("income_sources[1].amount", int64(1500)))
	require.NoError(t, doc.Set("ratio", 0.5))
	doc.Runtime.ActiveIndex = 3
	doc.Runtime.SetArrayIndex("income_sources", 1)
	doc.Runtime.AwaitingRepeatFor = "income_sources"
	doc.Runtime.RepeatPrompt = "Another?"
	doc.Runtime.LastField = "income_sources[0].amount"
	doc.Runtime.ClarifyRetries = 2

	encoded, err := json.Marshal(doc)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(encoded, &raw))
	assert.Contains(t, raw, RuntimeKey)
	assert.Equal(t, "app-1", raw[IDKey])

	var decoded Document
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, doc.Runtime, decoded.Runtime)
	assert.Equal(t, doc.Data, decoded.Data)
	assert.NotContains(t, decoded.Data, RuntimeKey)
}

func TestUnmarshalRejectsNonObject(t *testing.T) {
	var d Document
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &d))
	assert.Error(t, json.Unmarshal([]byte(`null`), &d))
}

func TestResolveUsesArrayIndex(t *testing.T) {
	doc := New("id", nil)
	assert.Equal(t, "items[0].amount", doc.Resolve("items[0].amount"))
	doc.Runtime.SetArrayIndex("items", 2)
	assert.Equal(t, "items[2].amount", doc.Resolve("items[0].amount"))
}

func TestCloneIsIndependent(t *testing.T) {
	doc := New("id", map[string]any{"items": []any{map[string]any{"amount": int64(1)}}})
	doc.Runtime.SetArrayIndex("items", 0)
	c := doc.Clone()
	require.NoError(t, c.Set("items[0].amount", int64(9)))
	c.Runtime.SetArrayIndex("items", 4)

	v, _ := doc.Get("items[0].amount")
	assert.Equal(t, int64(1), v)
	assert.Equal(t, 0, doc.Runtime.ArrayIndex["items"])
}

func TestRuntimeRepeatHelpers(t *testing.T) {
	var rt Runtime
	assert.False(t, rt.Awaiting())
	rt.AwaitingRepeatFor = "items"
	rt.RepeatPrompt = "Another?"
	assert.True(t, rt.Awaiting())
	rt.ClearRepeat()
	assert.False(t, rt.Awaiting())
	assert.Empty(t, rt.RepeatPrompt)
}
