package pagination

import (
	"fmt"

	"github.com/asakaida/datagraph/internal/entities"
	"github.com/asakaida/datagraph/internal/search"
)

// NormalizeOrder validates the sort keys against the entity type, drops repeated
// fields and appends the id (ascending) so that the order is total.
func NormalizeOrder(def *entities.EntityType, order []search.Order) ([]search.Order, error) {
	out := make([]search.Order, 0, len(order)+1)
	seen := make(map[string]bool, len(order)+1)
	for _, o := range order {
		attr := def.GetAttribute(o.Field)
		if attr == nil {
			return nil, entities.NewInvalidInputError("order", fmt.Sprintf("unknown attribute %q for %s", o.Field, def.Name))
		}
		if attr.Type.IsArray() {
			return nil, entities.NewInvalidInputError("order", fmt.Sprintf("cannot order by array attribute %s", o.Field))
		}
		if seen[o.Field] {
			continue
		}
		seen[o.Field] = true

		dir := o.Direction
		if dir == "" {
			dir = search.ASC
		}
		if dir != search.ASC && dir != search.DESC {
			return nil, entities.NewInvalidInputError("order", fmt.Sprintf("unknown direction %q", o.Direction))
		}
		out = append(out, search.Order{Field: o.Field, Direction: dir})
	}
	if !seen[def.IDAttribute] {
		out = append(out, search.Order{Field: def.IDAttribute, Direction: search.ASC})
	}
	return out, nil
}

// CursorCondition selects the records strictly after cursor in order (forward) or
// strictly before it (backward). With inclusive the cursor's own position matches too.
//
// For keys k1..kn the condition is the lexicographic expansion
//
//	(k1 ≻ c1) OR (k1 = c1 AND k2 ≻ c2) OR ... OR (k1 = c1 AND ... AND kn ≻ cn)
//
// where ≻ is "comes later" in the travel direction and NULL sorts before every value.
func CursorCondition(order []search.Order, cursor entities.Record, forward, inclusive bool) *search.Search {
	var disjuncts []*search.Search
	prefix := make([]*search.Search, 0, len(order))

	for _, o := range order {
		c := cursor[o.Field]
		greater := o.Direction == search.ASC
		if !forward {
			greater = !greater
		}

		var step *search.Search
		if greater {
			step = after(o.Field, c)
		} else {
			step = before(o.Field, c)
		}
		if step != nil {
			disjuncts = append(disjuncts, search.And(append(append([]*search.Search{}, prefix...), step)...))
		}
		prefix = append(prefix, equal(o.Field, c))
	}
	if inclusive {
		disjuncts = append(disjuncts, search.And(prefix...))
	}

	cond := search.Or(disjuncts...)
	if cond == nil {
		// nothing can follow the cursor
		return search.In(idField(order))
	}
	return cond
}

func idField(order []search.Order) string {
	return order[len(order)-1].Field
}

func equal(field string, c any) *search.Search {
	if c == nil {
		return search.IsNull(field)
	}
	return search.Eq(field, c)
}

// after is field > c with NULL smallest
func after(field string, c any) *search.Search {
	if c == nil {
		return search.NotNull(field)
	}
	return search.Gt(field, c)
}

// before is field < c with NULL smallest; nothing is before NULL
func before(field string, c any) *search.Search {
	if c == nil {
		return nil
	}
	return search.Or(search.Lt(field, c), search.IsNull(field))
}
