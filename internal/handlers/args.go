package handlers

import (
	"fmt"
	"strings"

	"github.com/asakaida/datagraph/internal/entities"
	"github.com/asakaida/datagraph/internal/search"
	"github.com/asakaida/datagraph/internal/services/association"
	"github.com/asakaida/datagraph/internal/services/pagination"
)

// Argument names shared by every entity type
const (
	argSearch     = "search"
	argOrder      = "order"
	argPagination = "pagination"
	argID         = "id"
	argSkipChecks = "skipAssociationsExistenceChecks"
	argCSV        = "csvFile"
	argEmail      = "email"
	argBulkInput  = "bulkAssociationInput"
)

// valueTypeArray marks a search value holding a comma separated list
const valueTypeArray = "Array"

func invalidArg(name, format string, args ...any) error {
	return entities.NewInvalidInputError(name, fmt.Sprintf(format, args...))
}

// parseSearch converts a search input object into a predicate tree. Values arrive as
// text and are coerced to the element type of the searched attribute.
func parseSearch(def *entities.EntityType, raw any) (*search.Search, error) {
	if raw == nil {
		return nil, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, invalidArg(argSearch, "expected an object, got %T", raw)
	}

	op, _ := m["operator"].(string)
	node := &search.Search{Operator: search.Operator(op)}
	if children, ok := m["search"].([]any); ok {
		for _, c := range children {
			child, err := parseSearch(def, c)
			if err != nil {
				return nil, err
			}
			if child != nil {
				node.Search = append(node.Search, child)
			}
		}
	}
	if node.Operator.IsLogical() {
		if err := node.Validate(); err != nil {
			return nil, invalidArg(argSearch, "%v", err)
		}
		return node, nil
	}

	field, _ := m["field"].(string)
	attr := def.GetAttribute(field)
	if attr == nil {
		return nil, invalidArg(argSearch, "%s has no attribute %q", def.Name, field)
	}
	node.Field = field

	if text, ok := m["value"].(string); ok {
		valueType, _ := m["valueType"].(string)
		value, err := searchValue(attr, node.Operator, text, valueType == valueTypeArray)
		if err != nil {
			return nil, invalidArg(argSearch, "%v", err)
		}
		node.Value = value
	}
	if err := node.Validate(); err != nil {
		return nil, invalidArg(argSearch, "%v", err)
	}
	return node, nil
}

func searchValue(attr *entities.Attribute, op search.Operator, text string, isArray bool) (any, error) {
	if op.IsPattern() {
		return text, nil
	}
	elem := &entities.Attribute{Name: attr.Name, Type: attr.Type.Elem()}
	if !isArray && !op.IsList() {
		return elem.Coerce(text)
	}
	var items []any
	for _, part := range strings.Split(text, ",") {
		v, err := elem.Coerce(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, nil
}

func parseOrder(raw any) ([]search.Order, error) {
	list, _ := raw.([]any)
	order := make([]search.Order, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		field, _ := m["field"].(string)
		dirText, _ := m["order"].(string)
		dir, err := search.ParseDirection(dirText)
		if err != nil {
			return nil, invalidArg(argOrder, "%v", err)
		}
		order = append(order, search.Order{Field: field, Direction: dir})
	}
	return order, nil
}

func parseOffsetWindow(raw any) pagination.Window {
	var w pagination.Window
	m, _ := raw.(map[string]any)
	if v, ok := m["offset"].(int); ok {
		w.Offset = &v
	}
	if v, ok := m["limit"].(int); ok {
		w.Limit = &v
	}
	return w
}

func parseCursorWindow(raw any) pagination.Window {
	var w pagination.Window
	m, _ := raw.(map[string]any)
	if v, ok := m["first"].(int); ok {
		w.First = &v
	}
	if v, ok := m["last"].(int); ok {
		w.Last = &v
	}
	w.After, _ = m["after"].(string)
	w.Before, _ = m["before"].(string)
	return w
}

// parseFields picks the attribute arguments of a mutation
func parseFields(def *entities.EntityType, args map[string]any) entities.Record {
	fields := entities.Record{}
	for _, a := range def.Attributes {
		if v, ok := args[a.Name]; ok {
			fields[a.Name] = v
		}
	}
	return fields
}

// parseAssociations maps the add<Rel> or remove<Rel> arguments to relation names
func parseAssociations(def *entities.EntityType, args map[string]any, argName func(*entities.Relation) string) map[string][]string {
	out := map[string][]string{}
	for _, rel := range def.Relations {
		switch v := args[argName(rel)].(type) {
		case string:
			out[rel.Name] = []string{v}
		case []any:
			ids := entities.StringSlice(v)
			if len(ids) > 0 {
				out[rel.Name] = ids
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func parsePairs(def *entities.EntityType, rel *entities.Relation, raw any) ([]association.Pair, error) {
	list, _ := raw.([]any)
	pairs := make([]association.Pair, 0, len(list))
	for i, item := range list {
		m, _ := item.(map[string]any)
		id, _ := m[def.IDAttribute].(string)
		key, _ := m[rel.ForeignKey].(string)
		if id == "" || key == "" {
			return nil, invalidArg(argBulkInput, "entry %d needs %s and %s", i, def.IDAttribute, rel.ForeignKey)
		}
		pairs = append(pairs, association.Pair{ID: id, Key: key})
	}
	return pairs, nil
}

func boolArg(args map[string]any, name string) bool {
	v, _ := args[name].(bool)
	return v
}
