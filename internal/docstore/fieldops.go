package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

type fieldOpKind string

const (
	opServerTimestamp fieldOpKind = "serverTimestamp"
	opArrayUnion      fieldOpKind = "arrayUnion"
	opArrayRemove     fieldOpKind = "arrayRemove"
	opArrayAppend     fieldOpKind = "arrayAppend"
	opArrayRemoveBy   fieldOpKind = "arrayRemoveBy"
	opDelete          fieldOpKind = "delete"
)

// FieldOp is a write sentinel resolved by the backend at commit time.
// On the wire it is encoded as {"$op": kind, "key": k, "values": [...]}.
type FieldOp struct {
	Kind   fieldOpKind
	Key    string
	Values []any
}

func ServerTimestamp() FieldOp { return FieldOp{Kind: opServerTimestamp} }

func ArrayUnion(values ...any) FieldOp { return FieldOp{Kind: opArrayUnion, Values: values} }

func ArrayRemove(values ...any) FieldOp { return FieldOp{Kind: opArrayRemove, Values: values} }

// ArrayAppend adds values to the end of an array field, duplicates included.
func ArrayAppend(values ...any) FieldOp { return FieldOp{Kind: opArrayAppend, Values: values} }

// ArrayRemoveBy drops every object element of an array field whose key
// property equals one of values. Non-object elements are kept.
func ArrayRemoveBy(key string, values ...any) FieldOp {
	return FieldOp{Kind: opArrayRemoveBy, Key: key, Values: values}
}

func DeleteField() FieldOp { return FieldOp{Kind: opDelete} }

func (f FieldOp) MarshalJSON() ([]byte, error) {
	type wire struct {
		Op     fieldOpKind `json:"$op"`
		Key    string      `json:"key,omitempty"`
		Values []any       `json:"values,omitempty"`
	}
	return json.Marshal(wire{Op: f.Kind, Key: f.Key, Values: f.Values})
}

// ServerTimeLayout is fixed width so stored timestamps sort lexicographically.
const ServerTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DecodeFieldOps turns wire-encoded sentinels ({"$op": ...}) found at the top
// level of fields back into FieldOp values. Other values pass through.
func DecodeFieldOps(fields map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		m, ok := v.(map[string]any)
		if !ok {
			out[k] = v
			continue
		}
		kind, ok := m["$op"].(string)
		if !ok {
			out[k] = v
			continue
		}
		op := FieldOp{Kind: fieldOpKind(kind)}
		switch op.Kind {
		case opServerTimestamp, opArrayUnion, opArrayRemove, opArrayAppend, opDelete:
		case opArrayRemoveBy:
			op.Key, _ = m["key"].(string)
			if op.Key == "" {
				return nil, fmt.Errorf("field %q: %s needs a key", k, kind)
			}
		default:
			return nil, fmt.Errorf("field %q: unknown op %q", k, kind)
		}
		if vals, ok := m["values"].([]any); ok {
			op.Values = vals
		}
		out[k] = op
	}
	return out, nil
}

// normalizeValue converts an arbitrary Go value into its generic JSON form
// (map[string]any, []any, float64, string, bool, nil).
func normalizeValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func canonicalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(bytes.TrimSpace(b))
}

// applyFields resolves patch against base and returns the new field map.
// base is not modified.
func applyFields(base, patch map[string]any, now time.Time) (map[string]any, error) {
	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		if k == "" || k == "id" {
			continue
		}
		op, isOp := v.(FieldOp)
		if !isOp {
			if p, ok := v.(*FieldOp); ok && p != nil {
				op, isOp = *p, true
			}
		}
		if !isOp {
			nv, err := normalizeValue(v)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
			out[k] = nv
			continue
		}
		switch op.Kind {
		case opDelete:
			delete(out, k)
		case opServerTimestamp:
			out[k] = now.UTC().Format(ServerTimeLayout)
		case opArrayUnion, opArrayRemove, opArrayAppend, opArrayRemoveBy:
			cur, _ := out[k].([]any)
			vals := make([]any, 0, len(op.Values))
			for _, raw := range op.Values {
				nv, err := normalizeValue(raw)
				if err != nil {
					return nil, fmt.Errorf("field %q: %w", k, err)
				}
				vals = append(vals, nv)
			}
			switch op.Kind {
			case opArrayUnion:
				out[k] = arrayUnion(cur, vals)
			case opArrayRemove:
				out[k] = arrayRemove(cur, vals)
			case opArrayAppend:
				out[k] = append(append(make([]any, 0, len(cur)+len(vals)), cur...), vals...)
			default:
				out[k] = arrayRemoveBy(cur, op.Key, vals)
			}
		default:
			return nil, fmt.Errorf("field %q: unknown op %q", k, op.Kind)
		}
	}
	return out, nil
}

func arrayUnion(cur, vals []any) []any {
	seen := make(map[string]bool, len(cur)+len(vals))
	out := make([]any, 0, len(cur)+len(vals))
	for _, v := range cur {
		seen[canonicalJSON(v)] = true
		out = append(out, v)
	}
	for _, v := range vals {
		key := canonicalJSON(v)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}

func arrayRemove(cur, vals []any) []any {
	drop := make(map[string]bool, len(vals))
	for _, v := range vals {
		drop[canonicalJSON(v)] = true
	}
	out := make([]any, 0, len(cur))
	for _, v := range cur {
		if drop[canonicalJSON(v)] {
			continue
		}
		out = append(out, v)
	}
	return out
}

func arrayRemoveBy(cur []any, key string, vals []any) []any {
	drop := make(map[string]bool, len(vals))
	for _, v := range vals {
		drop[canonicalJSON(v)] = true
	}
	out := make([]any, 0, len(cur))
	for _, v := range cur {
		if m, ok := v.(map[string]any); ok {
			if kv, has := m[key]; has && drop[canonicalJSON(kv)] {
				continue
			}
		}
		out = append(out, v)
	}
	return out
}
