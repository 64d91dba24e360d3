// Package state defines the application state document threaded through every
// intake component.
//
// A Document holds the nested application data plus the typed workflow runtime.
// On the wire both share one JSON object: the runtime lives under the reserved
// "workflow_runtime" key and the identifier under "application_id".
package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/BTreeMap/IntakePipe/internal/docpath"
)

const (
	// RuntimeKey is the reserved sub-tree holding cursor state.
	RuntimeKey = "workflow_runtime"
	// IDKey holds the application identifier.
	IDKey = "application_id"
)

// ErrReservedPath is returned when a data write targets the runtime sub-tree.
var ErrReservedPath = errors.New("path addresses the reserved workflow_runtime sub-tree")

// Runtime is the cursor and repeat-dialogue bookkeeping for one application.
type Runtime struct {
	ActiveIndex       int            `json:"active_index"`
	ArrayIndex        map[string]int `json:"array_index,omitempty"`
	AwaitingRepeatFor string         `json:"awaiting_repeat_for,omitempty"`
	RepeatPrompt      string         `json:"repeat_prompt,omitempty"`
	LastField         string         `json:"last_field,omitempty"`
	ClarifyRetries    int            `json:"clarify_retries,omitempty"`
}

// Awaiting reports whether a repeat yes/no question is pending.
func (r *Runtime) Awaiting() bool {
	return r.AwaitingRepeatFor != ""
}

// ClearRepeat leaves the repeat sub-dialogue.
func (r *Runtime) ClearRepeat() {
	r.AwaitingRepeatFor = ""
	r.RepeatPrompt = ""
}

// SetArrayIndex records the item currently being filled for a collection.
func (r *Runtime) SetArrayIndex(arrayPath string, idx int) {
	if r.ArrayIndex == nil {
		r.ArrayIndex = make(map[string]int)
	}
	r.ArrayIndex[arrayPath] = idx
}

// Document is one application's in-progress state.
type Document struct {
	Data    map[string]any
	Runtime Runtime
}

// New creates a document with a deep copy of template as its data, stamped with id.
func New(id string, template map[string]any) *Document {
	data, _ := deepCopy(template).(map[string]any)
	if data == nil {
		data = make(map[string]any)
	}
	delete(data, RuntimeKey)
	data[IDKey] = id
	return &Document{Data: data}
}

// ID returns the application identifier.
func (d *Document) ID() string {
	id, _ := d.Data[IDKey].(string)
	return id
}

// Get reads a concrete path from the application data.
func (d *Document) Get(path string) (any, bool) {
	return docpath.Get(d.Data, path)
}

// Set writes a concrete path in the application data.
func (d *Document) Set(path string, value any) error {
	if isReserved(path) {
		return fmt.Errorf("%w: %s", ErrReservedPath, path)
	}
	if d.Data == nil {
		d.Data = make(map[string]any)
	}
	return docpath.Set(d.Data, path, value)
}

// Resolve rewrites a schema template path using the current repeating-item indices.
func (d *Document) Resolve(template string) string {
	return docpath.Resolve(template, d.Runtime.ArrayIndex)
}

// Clone returns an independent deep copy.
func (d *Document) Clone() *Document {
	data, _ := deepCopy(d.Data).(map[string]any)
	rt := d.Runtime
	if d.Runtime.ArrayIndex != nil {
		rt.ArrayIndex = make(map[string]int, len(d.Runtime.ArrayIndex))
		for k, v := range d.Runtime.ArrayIndex {
			rt.ArrayIndex[k] = v
		}
	}
	return &Document{Data: data, Runtime: rt}
}

// MarshalJSON writes data and runtime as one object.
func (d *Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Data)+1)
	for k, v := range d.Data {
		out[k] = v
	}
	out[RuntimeKey] = d.Runtime
	return json.Marshal(out)
}

// UnmarshalJSON reads the combined object. Integral numbers decode as int64 so
// captured amounts round-trip unchanged.
func (d *Document) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("decode state document: %w", err)
	}
	if raw == nil {
		return errors.New("decode state document: not a JSON object")
	}

	var rt Runtime
	if rawRuntime, ok := raw[RuntimeKey]; ok && rawRuntime != nil {
		encoded, err := json.Marshal(rawRuntime)
		if err != nil {
			return fmt.Errorf("re-encode workflow runtime: %w", err)
		}
		if err := json.Unmarshal(encoded, &rt); err != nil {
			return fmt.Errorf("decode workflow runtime: %w", err)
		}
	}
	delete(raw, RuntimeKey)

	data, _ := normalizeNumbers(raw).(map[string]any)
	d.Data = data
	d.Runtime = rt
	return nil
}

func isReserved(path string) bool {
	return path == RuntimeKey || strings.HasPrefix(path, RuntimeKey+".") || strings.HasPrefix(path, RuntimeKey+"[")
}

func normalizeNumbers(v any) any {
	switch n := v.(type) {
	case map[string]any:
		for k, child := range n {
			n[k] = normalizeNumbers(child)
		}
		return n
	case []any:
		for i, child := range n {
			n[i] = normalizeNumbers(child)
		}
		return n
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	default:
		return v
	}
}

func deepCopy(v any) any {
	switch n := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(n))
		for k, child := range n {
			out[k] = deepCopy(child)
		}
		return out
	case []any:
		out := make([]any, len(n))
		for i, child := range n {
			out[i] = deepCopy(child)
		}
		return out
	default:
		return v
	}
}
