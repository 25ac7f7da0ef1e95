package entities

import (
	"fmt"
	"sort"
)

// Schema is the registry of entity type definitions known to the service.
// It is built once at startup and passed explicitly to the engines.
type Schema struct {
	entities map[string]*EntityType
	order    []string
}

// NewSchema builds a schema from entity types and validates it
func NewSchema(types ...*EntityType) (*Schema, error) {
	s := &Schema{entities: make(map[string]*EntityType, len(types))}
	for _, t := range types {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if _, dup := s.entities[t.Name]; dup {
			return nil, fmt.Errorf("duplicate entity type %s", t.Name)
		}
		s.entities[t.Name] = t
		s.order = append(s.order, t.Name)
	}
	sort.Strings(s.order)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// GetEntity returns the entity definition by name
func (s *Schema) GetEntity(name string) *EntityType {
	return s.entities[name]
}

// MustEntity returns the entity definition by name or an error naming it
func (s *Schema) MustEntity(name string) (*EntityType, error) {
	e := s.entities[name]
	if e == nil {
		return nil, fmt.Errorf("entity type %s is not defined", name)
	}
	return e, nil
}

// Entities returns all entity definitions sorted by name
func (s *Schema) Entities() []*EntityType {
	out := make([]*EntityType, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.entities[name])
	}
	return out
}

// Validate checks cross-entity consistency of every relation
func (s *Schema) Validate() error {
	for _, name := range s.order {
		e := s.entities[name]
		for _, r := range e.Relations {
			if err := s.validateRelation(e, r); err != nil {
				return fmt.Errorf("entity %s relation %s: %w", e.Name, r.Name, err)
			}
		}
	}
	return nil
}

func (s *Schema) validateRelation(e *EntityType, r *Relation) error {
	target := s.entities[r.TargetType]
	if target == nil {
		return fmt.Errorf("target type %s is not defined", r.TargetType)
	}

	holder := e
	if r.KeyLocation == KeyTarget {
		holder = target
	}
	fk := holder.GetAttribute(r.ForeignKey)
	if fk == nil {
		return fmt.Errorf("foreign key %s is not an attribute of %s", r.ForeignKey, holder.Name)
	}
	if r.HoldsArray() != fk.Type.IsArray() {
		if r.HoldsArray() {
			return fmt.Errorf("foreign key %s must be an array attribute", r.ForeignKey)
		}
		return fmt.Errorf("foreign key %s must be a scalar attribute", r.ForeignKey)
	}

	if r.Inverse == "" {
		return nil
	}
	inv := target.GetRelation(r.Inverse)
	if inv == nil {
		return fmt.Errorf("inverse relation %s is not defined on %s", r.Inverse, target.Name)
	}
	if inv.TargetType != e.Name {
		return fmt.Errorf("inverse relation %s.%s points at %s", target.Name, inv.Name, inv.TargetType)
	}
	if inv.Inverse != "" && inv.Inverse != r.Name {
		return fmt.Errorf("inverse relation %s.%s names %s as its inverse", target.Name, inv.Name, inv.Inverse)
	}

	switch {
	case r.KeyLocation == KeyTarget:
		if inv.Cardinality != ToOne || inv.KeyLocation != KeySelf || inv.ForeignKey != r.ForeignKey {
			return fmt.Errorf("inverse %s must be to_one with key %s stored on %s", inv.Name, r.ForeignKey, target.Name)
		}
	case r.Cardinality == ToOne:
		if inv.KeyLocation != KeyTarget || inv.ForeignKey != r.ForeignKey {
			return fmt.Errorf("inverse %s must read key %s from %s", inv.Name, r.ForeignKey, e.Name)
		}
	default:
		if !inv.HoldsArray() {
			return fmt.Errorf("inverse %s must be to_many with an array key on %s", inv.Name, target.Name)
		}
	}
	return nil
}
