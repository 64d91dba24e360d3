package docpath

// Resolve rewrites a schema template path into the concrete path for the current
// repeating items. Every index-0 step whose collection (the path up to that step)
// has an entry in indices is replaced by the recorded index. Collections without
// an entry keep index 0. The template itself is never modified.
func Resolve(template string, indices map[string]int) string {
	if len(indices) == 0 {
		return template
	}
	tokens, err := Parse(template)
	if err != nil {
		return template
	}
	resolved := make([]Token, len(tokens))
	copy(resolved, tokens)
	changed := false
	for i, t := range resolved {
		if !t.IsIndex || t.Index != 0 {
			continue
		}
		idx, ok := indices[Format(resolved[:i])]
		if !ok || idx == 0 {
			continue
		}
		resolved[i].Index = idx
		changed = true
	}
	if !changed {
		return template
	}
	return Format(resolved)
}

// ArrayParent returns the collection path of the first indexed step in path,
// or "" when the path addresses no list.
func ArrayParent(path string) string {
	tokens, err := Parse(path)
	if err != nil {
		return ""
	}
	for i, t := range tokens {
		if t.IsIndex {
			return Format(tokens[:i])
		}
	}
	return ""
}

// Indices maps each collection addressed by path to the index used for it.
// "a.items[2].b" yields {"a.items": 2}.
func Indices(path string) map[string]int {
	tokens, err := Parse(path)
	if err != nil {
		return nil
	}
	var out map[string]int
	for i, t := range tokens {
		if !t.IsIndex {
			continue
		}
		if out == nil {
			out = make(map[string]int)
		}
		out[Format(tokens[:i])] = t.Index
	}
	return out
}
