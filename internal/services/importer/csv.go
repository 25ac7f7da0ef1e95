// Package importer loads records of one entity type from CSV in a single transaction.
package importer

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/asakaida/datagraph/internal/entities"
)

// NullLiteral is the cell text read as NULL
const NullLiteral = "NULL"

// ArraySeparator splits array cells that are not written as JSON
const ArraySeparator = ";"

// Template returns the CSV header of an entity type, one column per attribute
func Template(def *entities.EntityType) string {
	var b strings.Builder
	w := csv.NewWriter(&b)
	_ = w.Write(def.AttributeNames())
	w.Flush()
	return b.String()
}

// ReadRecords decodes CSV whose header row names attributes of def. Cells are coerced
// to the attribute types; NULL is nil and so is an empty cell of a non-String attribute.
func ReadRecords(def *entities.EntityType, r io.Reader) ([]entities.Record, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, entities.NewInvalidInputError("csv", "missing header row")
	}
	if err != nil {
		return nil, entities.NewInvalidInputError("csv", err.Error())
	}
	attrs := make([]*entities.Attribute, len(header))
	seen := make(map[string]bool, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		attrs[i] = def.GetAttribute(name)
		if attrs[i] == nil {
			return nil, entities.NewInvalidInputError("csv", fmt.Sprintf("column %q is not an attribute of %s", name, def.Name))
		}
		if seen[name] {
			return nil, entities.NewInvalidInputError("csv", fmt.Sprintf("duplicate column %q", name))
		}
		seen[name] = true
	}

	var records []entities.Record
	for row := 2; ; row++ {
		cells, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, entities.NewInvalidInputError("csv", err.Error())
		}
		rec := make(entities.Record, len(cells))
		for i, cell := range cells {
			v, err := cellValue(attrs[i], cell)
			if err != nil {
				return nil, entities.NewInvalidInputError("csv", fmt.Sprintf("row %d column %s: %v", row, attrs[i].Name, err))
			}
			rec[attrs[i].Name] = v
		}
		records = append(records, rec)
	}
	return records, nil
}

func cellValue(attr *entities.Attribute, cell string) (any, error) {
	if cell == NullLiteral {
		return nil, nil
	}
	if cell == "" && attr.Type != entities.TypeString {
		return nil, nil
	}
	if !attr.Type.IsArray() {
		return attr.Coerce(cell)
	}

	trimmed := strings.TrimSpace(cell)
	if strings.HasPrefix(trimmed, "[") {
		var items []any
		if err := json.Unmarshal([]byte(trimmed), &items); err != nil {
			return nil, fmt.Errorf("invalid JSON array: %w", err)
		}
		return attr.Coerce(items)
	}
	parts := strings.Split(cell, ArraySeparator)
	items := make([]any, len(parts))
	for i, p := range parts {
		items[i] = strings.TrimSpace(p)
	}
	return attr.Coerce(items)
}
