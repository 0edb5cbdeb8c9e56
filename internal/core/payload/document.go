// Package payload provides safe access into decoded event documents.
//
// Documents come from JSON columns, so every node is one of: map[string]any,
// []any, string, float64, bool or nil. Lookups never panic; a missing path
// yields an absent Value.
package payload

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Document is a decoded JSON object.
type Document map[string]any

// Value is a single node of a Document. The zero Value is absent.
type Value struct {
	raw     any
	present bool
}

// Of wraps an arbitrary decoded node as a present Value.
func Of(raw any) Value {
	return Value{raw: raw, present: true}
}

// Lookup resolves a dot-separated path. Numeric segments index into arrays,
// e.g. "items.0.product_id".
func (d Document) Lookup(path string) Value {
	if d == nil || path == "" {
		return Value{}
	}
	var node any = map[string]any(d)
	for _, seg := range strings.Split(path, ".") {
		next, ok := child(node, seg)
		if !ok {
			return Value{}
		}
		node = next
	}
	return Of(node)
}

// FirstString returns the first path that resolves to a non-empty scalar.
func (d Document) FirstString(paths ...string) string {
	for _, p := range paths {
		if s, ok := d.Lookup(p).String(); ok && s != "" {
			return s
		}
	}
	return ""
}

func child(node any, seg string) (any, bool) {
	switch n := node.(type) {
	case map[string]any:
		v, ok := n[seg]
		return v, ok
	case Document:
		v, ok := n[seg]
		return v, ok
	case []any:
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 || idx >= len(n) {
			return nil, false
		}
		return n[idx], true
	default:
		return nil, false
	}
}

// Present reports whether the path resolved to a node (a JSON null counts).
func (v Value) Present() bool { return v.present }

// Raw returns the underlying decoded node.
func (v Value) Raw() any { return v.raw }

// String renders scalars as text. Objects, arrays, null and absent values
// report false.
func (v Value) String() (string, bool) {
	if !v.present {
		return "", false
	}
	switch r := v.raw.(type) {
	case string:
		return r, true
	case float64:
		return strconv.FormatFloat(r, 'f', -1, 64), true
	case int:
		return strconv.Itoa(r), true
	case int64:
		return strconv.FormatInt(r, 10), true
	case json.Number:
		return r.String(), true
	case bool:
		return strconv.FormatBool(r), true
	default:
		return "", false
	}
}

// Float converts numeric nodes and numeric strings.
func (v Value) Float() (float64, bool) {
	if !v.present {
		return 0, false
	}
	switch r := v.raw.(type) {
	case float64:
		return r, true
	case int:
		return float64(r), true
	case int64:
		return float64(r), true
	case json.Number:
		f, err := r.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(r), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// List returns array nodes.
func (v Value) List() ([]any, bool) {
	if !v.present {
		return nil, false
	}
	l, ok := v.raw.([]any)
	return l, ok
}

// Object returns object nodes as a Document.
func (v Value) Object() (Document, bool) {
	if !v.present {
		return nil, false
	}
	switch r := v.raw.(type) {
	case map[string]any:
		return Document(r), true
	case Document:
		return r, true
	default:
		return nil, false
	}
}
