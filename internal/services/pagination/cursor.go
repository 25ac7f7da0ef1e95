package pagination

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/asakaida/datagraph/internal/entities"
	"github.com/asakaida/datagraph/internal/search"
)

// EncodeCursor returns base64 of the JSON of the record's scalar attributes.
// Array-valued keys are left out; they never take part in an order.
func EncodeCursor(def *entities.EntityType, rec entities.Record) (string, error) {
	fields := make(map[string]any, len(def.Attributes))
	for _, a := range def.Attributes {
		if a.Type.IsArray() {
			continue
		}
		v, ok := rec[a.Name]
		if !ok {
			continue
		}
		if t, ok := v.(time.Time); ok {
			v = t.UTC().Format(time.RFC3339Nano)
		}
		fields[a.Name] = v
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to encode cursor: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeCursor rebuilds the record a cursor was made from. Every field of order
// (including the id) must be present in the cursor.
func DecodeCursor(def *entities.EntityType, cursor string, order []search.Order) (entities.Record, error) {
	data, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		data, err = base64.URLEncoding.DecodeString(cursor)
		if err != nil {
			return nil, invalidCursor("not valid base64")
		}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil || raw == nil {
		return nil, invalidCursor("not a JSON object")
	}

	rec := make(entities.Record, len(raw))
	for name, v := range raw {
		attr := def.GetAttribute(name)
		if attr == nil || attr.Type.IsArray() {
			continue
		}
		c, err := attr.Coerce(v)
		if err != nil {
			return nil, invalidCursor(err.Error())
		}
		rec[name] = c
	}

	if _, ok := rec[def.IDAttribute]; !ok || rec[def.IDAttribute] == nil {
		return nil, invalidCursor(fmt.Sprintf("missing %s", def.IDAttribute))
	}
	for _, o := range order {
		if _, ok := rec[o.Field]; !ok {
			return nil, invalidCursor(fmt.Sprintf("missing sort field %s", o.Field))
		}
	}
	return rec, nil
}

func invalidCursor(reason string) error {
	return entities.NewInvalidInputError("cursor", "invalid cursor: "+reason)
}
