// Package search defines the predicate tree used to filter entity records and the
// sort order applied to them. Storage implementations compile it to SQL or evaluate
// it in memory with Match.
package search

import (
	"fmt"
)

// Operator is a predicate node operator
type Operator string

const (
	OpEq         Operator = "eq"
	OpNe         Operator = "ne"
	OpLt         Operator = "lt"
	OpLte        Operator = "lte"
	OpGt         Operator = "gt"
	OpGte        Operator = "gte"
	OpLike       Operator = "like"
	OpNotLike    Operator = "notLike"
	OpILike      Operator = "iLike"
	OpNotILike   Operator = "notILike"
	OpIn         Operator = "in"
	OpNotIn      Operator = "notIn"
	OpBetween    Operator = "between"
	OpNotBetween Operator = "notBetween"
	OpAnd        Operator = "and"
	OpOr         Operator = "or"
	OpNot        Operator = "not"
)

// Operators lists every supported operator
var Operators = []Operator{
	OpEq, OpNe, OpLt, OpLte, OpGt, OpGte,
	OpLike, OpNotLike, OpILike, OpNotILike,
	OpIn, OpNotIn, OpBetween, OpNotBetween,
	OpAnd, OpOr, OpNot,
}

// IsLogical reports whether the operator combines child nodes
func (o Operator) IsLogical() bool {
	return o == OpAnd || o == OpOr || o == OpNot
}

// IsList reports whether the operator takes a list value
func (o Operator) IsList() bool {
	return o == OpIn || o == OpNotIn || o == OpBetween || o == OpNotBetween
}

// IsPattern reports whether the operator takes a LIKE pattern
func (o Operator) IsPattern() bool {
	return o == OpLike || o == OpNotLike || o == OpILike || o == OpNotILike
}

// Search is a predicate tree node.
// Leaf nodes compare Field with Value; logical nodes combine Search children.
// An eq/ne leaf with a nil Value tests for NULL / NOT NULL.
type Search struct {
	Field    string
	Operator Operator
	Value    any
	Search   []*Search
}

// String returns a compact representation of the predicate
func (s *Search) String() string {
	if s == nil {
		return "<all>"
	}
	if s.Operator.IsLogical() {
		return fmt.Sprintf("%s%v", s.Operator, s.Search)
	}
	return fmt.Sprintf("%s %s %v", s.Field, s.Operator, s.Value)
}

// Validate checks the tree is well formed. A nil search is valid and matches everything.
func (s *Search) Validate() error {
	if s == nil {
		return nil
	}
	switch {
	case s.Operator.IsLogical():
		if s.Operator == OpNot && len(s.Search) != 1 {
			return fmt.Errorf("operator not requires exactly one search node")
		}
		for _, child := range s.Search {
			if child == nil {
				return fmt.Errorf("operator %s has a nil search node", s.Operator)
			}
			if err := child.Validate(); err != nil {
				return err
			}
		}
		return nil
	case s.Operator == "":
		return fmt.Errorf("operator is required")
	}

	if s.Field == "" {
		return fmt.Errorf("operator %s requires a field", s.Operator)
	}
	switch {
	case s.Operator.IsList():
		list, ok := s.Value.([]any)
		if !ok {
			return fmt.Errorf("operator %s on %s requires a list value", s.Operator, s.Field)
		}
		if (s.Operator == OpBetween || s.Operator == OpNotBetween) && len(list) != 2 {
			return fmt.Errorf("operator %s on %s requires exactly two values", s.Operator, s.Field)
		}
	case s.Operator.IsPattern():
		if _, ok := s.Value.(string); !ok {
			return fmt.Errorf("operator %s on %s requires a string pattern", s.Operator, s.Field)
		}
	case s.Operator == OpEq || s.Operator == OpNe:
	case s.Operator == OpLt || s.Operator == OpLte || s.Operator == OpGt || s.Operator == OpGte:
		if s.Value == nil {
			return fmt.Errorf("operator %s on %s requires a value", s.Operator, s.Field)
		}
	default:
		return fmt.Errorf("unknown operator %q", s.Operator)
	}
	return nil
}

// Fields returns every field referenced by the tree
func (s *Search) Fields() []string {
	var out []string
	var walk func(*Search)
	walk = func(n *Search) {
		if n == nil {
			return
		}
		if n.Field != "" {
			out = append(out, n.Field)
		}
		for _, c := range n.Search {
			walk(c)
		}
	}
	walk(s)
	return out
}

// And combines nodes with AND, dropping nil nodes. It returns nil when nothing is left
// and the single node when only one remains.
func And(nodes ...*Search) *Search {
	return combine(OpAnd, nodes)
}

// Or combines nodes with OR, dropping nil nodes.
func Or(nodes ...*Search) *Search {
	return combine(OpOr, nodes)
}

func combine(op Operator, nodes []*Search) *Search {
	kept := make([]*Search, 0, len(nodes))
	for _, n := range nodes {
		if n != nil {
			kept = append(kept, n)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return &Search{Operator: op, Search: kept}
}

// Not negates a node
func Not(node *Search) *Search {
	return &Search{Operator: OpNot, Search: []*Search{node}}
}

// Eq builds field = value
func Eq(field string, value any) *Search {
	return &Search{Field: field, Operator: OpEq, Value: value}
}

// Ne builds field <> value
func Ne(field string, value any) *Search {
	return &Search{Field: field, Operator: OpNe, Value: value}
}

// IsNull builds field IS NULL
func IsNull(field string) *Search {
	return Eq(field, nil)
}

// NotNull builds field IS NOT NULL
func NotNull(field string) *Search {
	return Ne(field, nil)
}

// Gt builds field > value
func Gt(field string, value any) *Search {
	return &Search{Field: field, Operator: OpGt, Value: value}
}

// Lt builds field < value
func Lt(field string, value any) *Search {
	return &Search{Field: field, Operator: OpLt, Value: value}
}

// In builds field IN (ids...)
func In(field string, values ...string) *Search {
	list := make([]any, len(values))
	for i, v := range values {
		list[i] = v
	}
	return &Search{Field: field, Operator: OpIn, Value: list}
}
