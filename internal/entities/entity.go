package entities

import "fmt"

// EntityType represents a domain entity type definition
// Example: study { id: String, name: String; comments -> comment }
type EntityType struct {
	Name        string       // Entity name (e.g., "study", "ontology_annotation")
	Table       string       // Storage table name (e.g., "studies")
	IDAttribute string       // Identifying attribute (e.g., "id")
	Attributes  []*Attribute // Attribute definitions, including foreign keys
	Relations   []*Relation  // Relation definitions
}

// GetRelation returns the relation definition by name
func (e *EntityType) GetRelation(name string) *Relation {
	for _, r := range e.Relations {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// GetAttribute returns the attribute definition by name
func (e *EntityType) GetAttribute(name string) *Attribute {
	for _, a := range e.Attributes {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// AttributeNames returns the attribute names in definition order
func (e *EntityType) AttributeNames() []string {
	names := make([]string, len(e.Attributes))
	for i, a := range e.Attributes {
		names[i] = a.Name
	}
	return names
}

// IDAttr returns the identifying attribute definition
func (e *EntityType) IDAttr() *Attribute {
	return e.GetAttribute(e.IDAttribute)
}

// RelationForKey returns the relation that stores its key in the given attribute of
// this entity type, or nil.
func (e *EntityType) RelationForKey(attribute string) *Relation {
	for _, r := range e.Relations {
		if r.KeyLocation == KeySelf && r.ForeignKey == attribute {
			return r
		}
	}
	return nil
}

// CoerceRecord converts every known attribute of rec into its canonical value.
// Unknown attributes are rejected.
func (e *EntityType) CoerceRecord(rec Record) (Record, error) {
	out := make(Record, len(rec))
	for k, v := range rec {
		attr := e.GetAttribute(k)
		if attr == nil {
			return nil, NewInvalidInputError(k, fmt.Sprintf("unknown attribute %q for %s", k, e.Name))
		}
		c, err := attr.Coerce(v)
		if err != nil {
			return nil, NewInvalidInputError(k, err.Error())
		}
		out[k] = c
	}
	return out, nil
}

// Validate checks that the entity type is well formed on its own
func (e *EntityType) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("entity name is required")
	}
	if e.Table == "" {
		return fmt.Errorf("entity %s: table is required", e.Name)
	}
	if e.IDAttribute == "" {
		return fmt.Errorf("entity %s: id attribute is required", e.Name)
	}

	seen := make(map[string]bool, len(e.Attributes))
	for _, a := range e.Attributes {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("entity %s: %w", e.Name, err)
		}
		if seen[a.Name] {
			return fmt.Errorf("entity %s: duplicate attribute %s", e.Name, a.Name)
		}
		seen[a.Name] = true
	}

	id := e.IDAttr()
	if id == nil {
		return fmt.Errorf("entity %s: id attribute %s is not defined", e.Name, e.IDAttribute)
	}
	if id.Type.IsArray() {
		return fmt.Errorf("entity %s: id attribute must be scalar", e.Name)
	}

	rels := make(map[string]bool, len(e.Relations))
	for _, r := range e.Relations {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("entity %s: %w", e.Name, err)
		}
		if rels[r.Name] {
			return fmt.Errorf("entity %s: duplicate relation %s", e.Name, r.Name)
		}
		if seen[r.Name] {
			return fmt.Errorf("entity %s: relation %s shadows an attribute", e.Name, r.Name)
		}
		rels[r.Name] = true
	}
	return nil
}
