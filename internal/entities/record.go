package entities

import (
	"fmt"
	"sort"
)

// Record represents one row of a domain entity type
// Example: {"id": "S1", "name": "drought study", "material_ids": ["M1"]}
type Record map[string]any

// ID returns the identifying attribute of the record as a string
func (r Record) ID(idAttribute string) string {
	v, ok := r[idAttribute]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Clone returns a shallow copy of the record. Array values are copied too so that
// mutating the clone's foreign key arrays never touches the original.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		if arr, ok := v.([]any); ok {
			cp := make([]any, len(arr))
			copy(cp, arr)
			out[k] = cp
			continue
		}
		out[k] = v
	}
	return out
}

// Keys returns the attribute names present in the record in sorted order
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// StringSlice converts an array-valued attribute into a slice of ids.
// nil yields an empty slice.
func StringSlice(v any) []string {
	switch arr := v.(type) {
	case nil:
		return []string{}
	case []string:
		out := make([]string, len(arr))
		copy(out, arr)
		return out
	case []any:
		out := make([]string, 0, len(arr))
		for _, item := range arr {
			if item == nil {
				continue
			}
			if s, ok := item.(string); ok {
				out = append(out, s)
			} else {
				out = append(out, fmt.Sprint(item))
			}
		}
		return out
	default:
		return []string{fmt.Sprint(arr)}
	}
}

// AnySlice converts a slice of ids into the canonical array representation
func AnySlice(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
