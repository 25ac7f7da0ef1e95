package sqlstore

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/asakaida/datagraph/internal/entities"
	"github.com/asakaida/datagraph/internal/repositories"
	"github.com/asakaida/datagraph/internal/search"
)

// builder compiles search trees into SQL for one entity type.
// Field names are resolved against the entity definition, never interpolated raw.
type builder struct {
	dialect Dialect
	def     *entities.EntityType
	args    []any
}

func newBuilder(d Dialect, def *entities.EntityType) *builder {
	return &builder{dialect: d, def: def}
}

// bind appends an argument and returns its placeholder
func (b *builder) bind(v any) string {
	b.args = append(b.args, v)
	return b.dialect.Placeholder(len(b.args))
}

func (b *builder) column(field string) (string, *entities.Attribute, error) {
	attr := b.def.GetAttribute(field)
	if attr == nil {
		return "", nil, entities.NewInvalidInputError(field, fmt.Sprintf("unknown attribute %q for %s", field, b.def.Name))
	}
	return b.dialect.Quote(field), attr, nil
}

// value coerces a search operand to the attribute type and marshals it for the driver
func (b *builder) value(attr *entities.Attribute, v any) (any, error) {
	c, err := attr.Coerce(v)
	if err != nil {
		return nil, entities.NewInvalidInputError(attr.Name, err.Error())
	}
	return attr.MarshalValue(c)
}

// where renders the predicate; an empty string means no restriction
func (b *builder) where(s *search.Search) (string, error) {
	if s == nil {
		return "", nil
	}
	if err := s.Validate(); err != nil {
		return "", entities.NewInvalidInputError("search", err.Error())
	}
	return b.node(s)
}

func (b *builder) node(s *search.Search) (string, error) {
	switch s.Operator {
	case search.OpAnd, search.OpOr:
		if len(s.Search) == 0 {
			if s.Operator == search.OpAnd {
				return "1=1", nil
			}
			return "1=0", nil
		}
		parts := make([]string, 0, len(s.Search))
		for _, child := range s.Search {
			sql, err := b.node(child)
			if err != nil {
				return "", err
			}
			parts = append(parts, sql)
		}
		return "(" + strings.Join(parts, " "+strings.ToUpper(string(s.Operator))+" ") + ")", nil
	case search.OpNot:
		sql, err := b.node(s.Search[0])
		if err != nil {
			return "", err
		}
		return "NOT (" + sql + ")", nil
	}

	col, attr, err := b.column(s.Field)
	if err != nil {
		return "", err
	}

	switch s.Operator {
	case search.OpEq, search.OpNe:
		if s.Value == nil {
			if s.Operator == search.OpEq {
				return col + " IS NULL", nil
			}
			return col + " IS NOT NULL", nil
		}
		v, err := b.value(attr, s.Value)
		if err != nil {
			return "", err
		}
		op := "="
		if s.Operator == search.OpNe {
			op = "<>"
		}
		return fmt.Sprintf("%s %s %s", col, op, b.bind(v)), nil
	case search.OpLt, search.OpLte, search.OpGt, search.OpGte:
		v, err := b.value(attr, s.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s", col, comparison[s.Operator], b.bind(v)), nil
	case search.OpLike, search.OpNotLike, search.OpILike, search.OpNotILike:
		insensitive := s.Operator == search.OpILike || s.Operator == search.OpNotILike
		negate := s.Operator == search.OpNotLike || s.Operator == search.OpNotILike
		return b.dialect.Like(col, b.bind(s.Value), insensitive, negate), nil
	case search.OpIn, search.OpNotIn:
		return b.in(col, attr, s.Value.([]any), s.Operator == search.OpNotIn)
	case search.OpBetween, search.OpNotBetween:
		list := s.Value.([]any)
		lo, err := b.value(attr, list[0])
		if err != nil {
			return "", err
		}
		hi, err := b.value(attr, list[1])
		if err != nil {
			return "", err
		}
		not := ""
		if s.Operator == search.OpNotBetween {
			not = "NOT "
		}
		return fmt.Sprintf("%s %sBETWEEN %s AND %s", col, not, b.bind(lo), b.bind(hi)), nil
	}
	return "", entities.NewInvalidInputError("search", fmt.Sprintf("unknown operator %q", s.Operator))
}

var comparison = map[search.Operator]string{
	search.OpLt:  "<",
	search.OpLte: "<=",
	search.OpGt:  ">",
	search.OpGte: ">=",
}

func (b *builder) in(col string, attr *entities.Attribute, list []any, negate bool) (string, error) {
	if len(list) == 0 {
		if negate {
			return "1=1", nil
		}
		return "1=0", nil
	}
	values := make([]any, len(list))
	for i, item := range list {
		v, err := b.value(attr, item)
		if err != nil {
			return "", err
		}
		values[i] = v
	}

	if b.dialect == Postgres {
		if arr := pqArray(values); arr != nil {
			if negate {
				return fmt.Sprintf("%s <> ALL(%s)", col, b.bind(arr)), nil
			}
			return fmt.Sprintf("%s = ANY(%s)", col, b.bind(arr)), nil
		}
	}

	holders := make([]string, len(values))
	for i, v := range values {
		holders[i] = b.bind(v)
	}
	op := "IN"
	if negate {
		op = "NOT IN"
	}
	return fmt.Sprintf("%s %s (%s)", col, op, strings.Join(holders, ", ")), nil
}

// pqArray converts homogeneous scalar lists to a PostgreSQL array parameter.
// Mixed or unsupported element types return nil and fall back to IN (...).
func pqArray(values []any) any {
	switch values[0].(type) {
	case string:
		out := make([]string, len(values))
		for i, v := range values {
			s, ok := v.(string)
			if !ok {
				return nil
			}
			out[i] = s
		}
		return pq.Array(out)
	case int64:
		out := make([]int64, len(values))
		for i, v := range values {
			n, ok := v.(int64)
			if !ok {
				return nil
			}
			out[i] = n
		}
		return pq.Array(out)
	case float64:
		out := make([]float64, len(values))
		for i, v := range values {
			f, ok := v.(float64)
			if !ok {
				return nil
			}
			out[i] = f
		}
		return pq.Array(out)
	}
	return nil
}

// orderBy renders ORDER BY; the id attribute is appended when absent so row order is total
func (b *builder) orderBy(order []search.Order) (string, error) {
	hasID := false
	terms := make([]string, 0, len(order)+1)
	for _, o := range order {
		col, _, err := b.column(o.Field)
		if err != nil {
			return "", err
		}
		if o.Field == b.def.IDAttribute {
			hasID = true
		}
		dir := o.Direction
		if dir == "" {
			dir = search.ASC
		}
		terms = append(terms, b.dialect.OrderTerm(col, dir))
	}
	if !hasID {
		terms = append(terms, b.dialect.OrderTerm(b.dialect.Quote(b.def.IDAttribute), search.ASC))
	}
	return " ORDER BY " + strings.Join(terms, ", "), nil
}

func (b *builder) columns() string {
	cols := make([]string, len(b.def.Attributes))
	for i, a := range b.def.Attributes {
		cols[i] = b.dialect.Quote(a.Name)
	}
	return strings.Join(cols, ", ")
}

func (b *builder) table() string {
	return b.dialect.Quote(b.def.Table)
}

// selectQuery renders SELECT <columns> FROM <table> [WHERE] ORDER BY [LIMIT/OFFSET]
func (b *builder) selectQuery(q *repositories.Query) (string, error) {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(b.columns())
	sb.WriteString(" FROM ")
	sb.WriteString(b.table())

	where, err := b.where(q.Search)
	if err != nil {
		return "", err
	}
	if where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}
	orderBy, err := b.orderBy(q.Order)
	if err != nil {
		return "", err
	}
	sb.WriteString(orderBy)
	sb.WriteString(b.dialect.LimitOffset(q.Limit, q.Offset))
	return sb.String(), nil
}

func (b *builder) countQuery(s *search.Search) (string, error) {
	where, err := b.where(s)
	if err != nil {
		return "", err
	}
	sql := "SELECT COUNT(*) FROM " + b.table()
	if where != "" {
		sql += " WHERE " + where
	}
	return sql, nil
}

// assignments renders SET a = ?, b = ? in attribute definition order, skipping the id
func (b *builder) assignments(fields entities.Record) (string, error) {
	parts := make([]string, 0, len(fields))
	for _, a := range b.def.Attributes {
		v, ok := fields[a.Name]
		if !ok || a.Name == b.def.IDAttribute {
			continue
		}
		mv, err := a.MarshalValue(v)
		if err != nil {
			return "", err
		}
		parts = append(parts, fmt.Sprintf("%s = %s", b.dialect.Quote(a.Name), b.bind(mv)))
	}
	return strings.Join(parts, ", "), nil
}

func (b *builder) updateQuery(fields entities.Record, s *search.Search) (string, error) {
	set, err := b.assignments(fields)
	if err != nil {
		return "", err
	}
	if set == "" {
		return "", nil
	}
	where, err := b.where(s)
	if err != nil {
		return "", err
	}
	sql := "UPDATE " + b.table() + " SET " + set
	if where != "" {
		sql += " WHERE " + where
	}
	return sql, nil
}

func (b *builder) insertQuery(rec entities.Record) (string, error) {
	cols := make([]string, 0, len(b.def.Attributes))
	holders := make([]string, 0, len(b.def.Attributes))
	for _, a := range b.def.Attributes {
		mv, err := a.MarshalValue(rec[a.Name])
		if err != nil {
			return "", err
		}
		cols = append(cols, b.dialect.Quote(a.Name))
		holders = append(holders, b.bind(mv))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", b.table(), strings.Join(cols, ", "), strings.Join(holders, ", ")), nil
}
