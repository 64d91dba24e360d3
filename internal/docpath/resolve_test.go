package docpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	indices := map[string]int{
		"compliance.financial_inquiry.income_sources": 2,
		"assets":     1,
		"properties": 0,
	}
	tests := []struct {
		template string
		want     string
	}{
		{"compliance.financial_inquiry.income_sources[0].amount", "compliance.financial_inquiry.income_sources[2].amount"},
		{"assets[0].kind", "assets[1].kind"},
		{"properties[0].address", "properties[0].address"},
		{"liabilities[0].amount", "liabilities[0].amount"},
		{"other.assets[0].kind", "other.assets[0].kind"},
		{"dependents", "dependents"},
		{"assets[3].kind", "assets[3].kind"},
		{"bad[", "bad["},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Resolve(tt.template, indices), tt.template)
	}
}

func TestResolveNestedCollections(t *testing.T) {
	indices := map[string]int{"jobs": 1, "jobs[1].bonuses": 2}
	assert.Equal(t, "jobs[1].bonuses[2].amount", Resolve("jobs[0].bonuses[0].amount", indices))
}

func TestResolveDoesNotMutateTemplate(t *testing.T) {
	template := "items[0].amount"
	_ = Resolve(template, map[string]int{"items": 4})
	assert.Equal(t, "items[0].amount", template)
	assert.Equal(t, template, Resolve(template, nil))
}

func TestArrayParentAndIndices(t *testing.T) {
	assert.Equal(t, "a.items", ArrayParent("a.items[3].amount"))
	assert.Equal(t, "", ArrayParent("a.b"))
	assert.Equal(t, "", ArrayParent("bad["))

	assert.Equal(t, map[string]int{"a.items": 3}, Indices("a.items[3].amount"))
	assert.Nil(t, Indices("a.b"))
}
