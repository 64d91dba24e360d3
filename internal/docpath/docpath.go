// Package docpath reads and writes nested state documents through dotted paths.
//
// A path is a dot-separated list of segments. Each segment is a mapping key,
// optionally followed by one or more list indices: "a.b[2].c", "grid[0][1]".
// Documents are the shapes produced by encoding/json: map[string]any, []any and scalars.
package docpath

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrInvalidPath is returned for syntactically invalid paths.
	ErrInvalidPath = errors.New("invalid path")
	// ErrTypeMismatch is returned when an existing value blocks the path,
	// e.g. indexing into a string.
	ErrTypeMismatch = errors.New("path type mismatch")
	// ErrNilDocument is returned by Set when the root document is nil.
	ErrNilDocument = errors.New("nil document")
)

// MaxIndex is the largest list index a path may address. Set pads lists up to
// the addressed index, so the bound caps what a single write can allocate.
const MaxIndex = 9999

// Token is a single path step: a mapping key or a list index.
type Token struct {
	Key     string
	Index   int
	IsIndex bool
}

func (t Token) String() string {
	if t.IsIndex {
		return "[" + strconv.Itoa(t.Index) + "]"
	}
	return t.Key
}

// Parse splits a path into tokens.
func Parse(path string) ([]Token, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	var tokens []Token
	for _, segment := range strings.Split(path, ".") {
		segTokens, err := parseSegment(segment)
		if err != nil {
			return nil, fmt.Errorf("%w: %q in %q", err, segment, path)
		}
		tokens = append(tokens, segTokens...)
	}
	return tokens, nil
}

func parseSegment(segment string) ([]Token, error) {
	open := strings.IndexByte(segment, '[')
	if open == -1 {
		if segment == "" || strings.ContainsRune(segment, ']') {
			return nil, ErrInvalidPath
		}
		return []Token{{Key: segment}}, nil
	}
	if open == 0 {
		return nil, ErrInvalidPath
	}

	tokens := []Token{{Key: segment[:open]}}
	rest := segment[open:]
	for rest != "" {
		if rest[0] != '[' {
			return nil, ErrInvalidPath
		}
		closeIdx := strings.IndexByte(rest, ']')
		if closeIdx == -1 {
			return nil, ErrInvalidPath
		}
		idx, err := strconv.Atoi(rest[1:closeIdx])
		if err != nil || idx < 0 || idx > MaxIndex {
			return nil, ErrInvalidPath
		}
		tokens = append(tokens, Token{Index: idx, IsIndex: true})
		rest = rest[closeIdx+1:]
	}
	return tokens, nil
}

// Format renders tokens back into path syntax.
func Format(tokens []Token) string {
	var b strings.Builder
	for i, t := range tokens {
		if !t.IsIndex && i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(t.String())
	}
	return b.String()
}

// Get returns the value at path. The boolean is false when any segment is
// missing, out of range, or addresses the wrong container type.
func Get(doc any, path string) (any, bool) {
	tokens, err := Parse(path)
	if err != nil {
		return nil, false
	}
	return GetTokens(doc, tokens)
}

// GetTokens is Get over pre-parsed tokens.
func GetTokens(doc any, tokens []Token) (any, bool) {
	current := doc
	for _, t := range tokens {
		if t.IsIndex {
			list, ok := current.([]any)
			if !ok || t.Index >= len(list) {
				return nil, false
			}
			current = list[t.Index]
			continue
		}
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[t.Key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Set writes value at path, creating missing containers: a mapping where the
// next segment is a key, a list where it is an index. Lists shorter than the
// addressed index are padded with empty mappings on intermediate steps and with
// nil on the final step. On error the document is left unchanged.
func Set(doc map[string]any, path string, value any) error {
	if doc == nil {
		return ErrNilDocument
	}
	tokens, err := Parse(path)
	if err != nil {
		return err
	}
	if tokens[0].IsIndex {
		return fmt.Errorf("%w: %q starts with an index", ErrInvalidPath, path)
	}
	if _, err := setIn(doc, tokens, value); err != nil {
		return fmt.Errorf("set %q: %w", path, err)
	}
	return nil
}

// setIn returns the updated node. Existing maps are written only after the
// deeper write succeeded, so a failure never leaves partial containers behind.
func setIn(node any, tokens []Token, value any) (any, error) {
	if len(tokens) == 0 {
		return value, nil
	}
	t := tokens[0]
	last := len(tokens) == 1

	if t.IsIndex {
		var list []any
		switch n := node.(type) {
		case nil:
		case []any:
			list = n
		default:
			return nil, fmt.Errorf("%w: index %d on %T", ErrTypeMismatch, t.Index, node)
		}
		if t.Index < 0 || t.Index > MaxIndex {
			return nil, fmt.Errorf("%w: index %d out of range", ErrInvalidPath, t.Index)
		}
		if t.Index >= len(list) {
			grown := make([]any, len(list), t.Index+1)
			copy(grown, list)
			for len(grown) < t.Index {
				if last {
					grown = append(grown, nil)
				} else {
					grown = append(grown, map[string]any{})
				}
			}
			// the addressed slot itself is vivified by the recursive call
			grown = append(grown, nil)
			list = grown
		}
		child, err := setIn(list[t.Index], tokens[1:], value)
		if err != nil {
			return nil, err
		}
		list[t.Index] = child
		return list, nil
	}

	var m map[string]any
	switch n := node.(type) {
	case nil:
		m = map[string]any{}
	case map[string]any:
		m = n
	default:
		return nil, fmt.Errorf("%w: key %q on %T", ErrTypeMismatch, t.Key, node)
	}
	child, err := setIn(m[t.Key], tokens[1:], value)
	if err != nil {
		return nil, err
	}
	m[t.Key] = child
	return m, nil
}
