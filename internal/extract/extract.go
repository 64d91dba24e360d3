// Package extract turns raw answer text into typed field values with
// deterministic, pattern-based parsers. A miss is not an error: the caller
// defers to the external extraction service.
package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/BTreeMap/IntakePipe/internal/models"
)

var (
	digitsPattern   = regexp.MustCompile(`^[0-9]+$`)
	rangePattern    = regexp.MustCompile(`\d+\s*(?:[-/–—]+|to)\s*\d+`)
	currencyPattern = regexp.MustCompile(`^(\d+)(?:\.(\d+))?\s*(k)?$`)
	datePattern     = regexp.MustCompile(`^(0?[1-9]|[12][0-9]|3[01])/(0?[1-9]|1[0-2])/\d{4}$`)
)

// hedgePattern marks an approximate amount. Whole words only, so "through"
// is not read as "rough".
var hedgePattern = regexp.MustCompile(`\b(?:about|around|rough(?:ly)?|approx\w*|maybe|depends)\b`)

// maxFractionDigits bounds the fraction digits considered for currency amounts.
const maxFractionDigits = 9

// Capture parses raw for the given field. The boolean is false on no-match.
func Capture(field models.FieldDescriptor, raw string) (models.Value, bool) {
	switch field.Type {
	case models.FieldTypeInteger:
		n, ok := CaptureInteger(raw)
		return models.IntValue(field.Type, n), ok
	case models.FieldTypeCurrency:
		n, ok := CaptureCurrency(raw)
		return models.IntValue(field.Type, n), ok
	case models.FieldTypeEnum:
		v, ok := NormalizeEnum(raw, field.Values)
		return models.TextValue(field.Type, v), ok
	case models.FieldTypeString:
		s, ok := CaptureString(raw)
		return models.TextValue(field.Type, s), ok
	case models.FieldTypeDate:
		s, ok := CaptureDate(raw)
		return models.TextValue(field.Type, s), ok
	default:
		return models.Value{}, false
	}
}

// CaptureInteger accepts a non-negative digit sequence. Thousands separators are stripped.
func CaptureInteger(raw string) (int64, bool) {
	text := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if !digitsPattern.MatchString(text) {
		return 0, false
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// CaptureCurrency accepts a single exact amount: optional "$", a number, an
// optional decimal part and an optional "k" multiplier. Ranges and hedged
// amounts never match so they reach the extraction service's uncertain path.
// Fractions of the unit are truncated.
func CaptureCurrency(raw string) (int64, bool) {
	text := normalizeAmount(raw)
	if text == "" {
		return 0, false
	}
	if IsRange(text) || IsHedged(text) {
		return 0, false
	}
	m := currencyPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}

	whole, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	if m[3] == "" {
		return whole, true
	}

	const multiplier = 1000
	if whole > (1<<63-1)/multiplier {
		return 0, false
	}
	amount := whole * multiplier
	if frac := m[2]; frac != "" {
		if len(frac) > maxFractionDigits {
			frac = frac[:maxFractionDigits]
		}
		f, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, false
		}
		scale := int64(1)
		for range len(frac) {
			scale *= 10
		}
		amount += f * multiplier / scale
	}
	return amount, true
}

// IsRange reports whether text contains two numbers joined by a dash, slash or "to".
func IsRange(text string) bool {
	return rangePattern.MatchString(strings.ToLower(text))
}

// IsHedged reports whether text qualifies an amount as approximate.
func IsHedged(text string) bool {
	return hedgePattern.MatchString(strings.ToLower(text))
}

// CaptureString accepts any non-blank text, trimmed.
func CaptureString(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	return s, s != ""
}

// CaptureDate accepts D/M/YYYY or DD/MM/YYYY only.
func CaptureDate(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if !datePattern.MatchString(s) {
		return "", false
	}
	return s, true
}

func normalizeAmount(raw string) string {
	text := strings.ToLower(strings.TrimSpace(raw))
	text = strings.ReplaceAll(text, ",", "")
	text = strings.ReplaceAll(text, "$", "")
	return strings.TrimSpace(text)
}
