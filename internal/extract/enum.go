package extract

import (
	"regexp"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// EnumSimilarityFloor is the minimum similarity ratio a fuzzy enum match needs.
// Loose enough to absorb a typo or two in short values.
const EnumSimilarityFloor = 0.6

var nonLetters = regexp.MustCompile(`[^a-z ]`)

// NormalizeEnum maps free text onto one of the allowed values. An exact match
// (allowed values compared with underscores read as spaces) wins; otherwise the
// most similar allowed value at or above EnumSimilarityFloor is returned. Equal
// scores go to the label that sorts last.
func NormalizeEnum(raw string, allowed []string) (string, bool) {
	value := normalizeEnumText(raw)
	if value == "" || len(allowed) == 0 {
		return "", false
	}

	for _, v := range allowed {
		if value == enumLabel(v) {
			return v, true
		}
	}

	best, bestLabel, bestScore := "", "", 0.0
	for _, v := range allowed {
		label := enumLabel(v)
		score := Similarity(value, label)
		if score < EnumSimilarityFloor {
			continue
		}
		if score > bestScore || (score == bestScore && label > bestLabel) {
			best, bestLabel, bestScore = v, label, score
		}
	}
	return best, best != ""
}

// Similarity is the SequenceMatcher ratio of two strings compared rune by rune,
// in [0, 1].
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	m := difflib.NewMatcher(strings.Split(b, ""), strings.Split(a, ""))
	return m.Ratio()
}

func normalizeEnumText(raw string) string {
	text := strings.ToLower(strings.TrimSpace(raw))
	text = nonLetters.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

func enumLabel(v string) string {
	return strings.ToLower(strings.ReplaceAll(v, "_", " "))
}
