package parser

import (
	"fmt"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/asakaida/datagraph/internal/entities"
)

// DefaultInternalID is the identifying attribute when a definition names none
const DefaultInternalID = "id"

// ToSchema converts definitions into a validated entities.Schema
func ToSchema(defs []*Definition) (*entities.Schema, error) {
	types := make([]*entities.EntityType, 0, len(defs))
	for _, def := range defs {
		t, err := ToEntityType(def)
		if err != nil {
			return nil, fmt.Errorf("failed to convert model %s: %w", def.Model, err)
		}
		types = append(types, t)
	}
	schema, err := entities.NewSchema(types...)
	if err != nil {
		return nil, fmt.Errorf("invalid model definitions: %w", err)
	}
	return schema, nil
}

// ToEntityType converts one definition. Cross-model references are checked by ToSchema.
func ToEntityType(def *Definition) (*entities.EntityType, error) {
	t := &entities.EntityType{
		Name:        def.Model,
		Table:       def.Table,
		IDAttribute: def.InternalID,
		Attributes:  make([]*entities.Attribute, 0, len(def.Attributes)),
		Relations:   make([]*entities.Relation, 0, len(def.Associations)),
	}
	if t.Table == "" {
		t.Table = inflection.Plural(def.Model)
	}
	if t.IDAttribute == "" {
		t.IDAttribute = DefaultInternalID
	}

	for _, a := range def.Attributes {
		typ, err := entities.ParseAttributeType(a.Type)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", a.Name, err)
		}
		attr := &entities.Attribute{Name: a.Name, Type: typ, Description: a.Description}
		if v, ok := def.Validations[a.Name]; ok {
			attr.Required = v.Required
			attr.MaxLength = v.MaxLength
			attr.Pattern = v.Pattern
		}
		t.Attributes = append(t.Attributes, attr)
	}

	for _, a := range def.Associations {
		rel, err := convertAssociation(def.Model, a)
		if err != nil {
			return nil, err
		}
		t.Relations = append(t.Relations, rel)
	}
	return t, nil
}

func convertAssociation(model string, a *AssociationDef) (*entities.Relation, error) {
	card, err := ParseCardinality(a.Type)
	if err != nil {
		return nil, fmt.Errorf("association %s: %w", a.Name, err)
	}
	rel := &entities.Relation{
		Name:        a.Name,
		Cardinality: card,
		TargetType:  a.Target,
		ForeignKey:  a.TargetKey,
		Inverse:     a.ReverseAssociation,
	}

	switch a.KeysIn {
	case model:
		rel.KeyLocation = entities.KeySelf
		// paired to-many ends name their own array in sourceKey
		if card == entities.ToMany && a.SourceKey != "" {
			rel.ForeignKey = a.SourceKey
		}
	case a.Target:
		rel.KeyLocation = entities.KeyTarget
	default:
		return nil, fmt.Errorf("association %s: keysIn must be %s or %s, got %q", a.Name, model, a.Target, a.KeysIn)
	}
	return rel, nil
}

// ParseCardinality maps an association type to a cardinality
func ParseCardinality(s string) (entities.Cardinality, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "to_one", "one_to_one", "many_to_one":
		return entities.ToOne, nil
	case "to_many", "one_to_many", "many_to_many":
		return entities.ToMany, nil
	}
	return 0, fmt.Errorf("unknown association type %q", s)
}
