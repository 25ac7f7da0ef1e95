package search

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Compare orders two canonical attribute values. NULL sorts before everything,
// which is the NULL placement every storage dialect is configured to use.
func Compare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}

	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0
			case !av:
				return -1
			}
			return 1
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	case []any:
		if bv, ok := b.([]any); ok {
			for i := 0; i < len(av) && i < len(bv); i++ {
				if c := Compare(av[i], bv[i]); c != 0 {
					return c
				}
			}
			switch {
			case len(av) < len(bv):
				return -1
			case len(av) > len(bv):
				return 1
			}
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// Match evaluates the predicate against a record with SQL semantics: a comparison
// against a NULL field value is false. A nil search matches every record.
func Match(s *Search, rec map[string]any) (bool, error) {
	if s == nil {
		return true, nil
	}
	switch s.Operator {
	case OpAnd:
		for _, c := range s.Search {
			ok, err := Match(c, rec)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case OpOr:
		for _, c := range s.Search {
			ok, err := Match(c, rec)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case OpNot:
		if len(s.Search) != 1 {
			return false, fmt.Errorf("operator not requires exactly one search node")
		}
		ok, err := Match(s.Search[0], rec)
		return !ok, err
	}

	field := rec[s.Field]
	switch s.Operator {
	case OpEq:
		if s.Value == nil {
			return field == nil, nil
		}
		return field != nil && Compare(field, s.Value) == 0, nil
	case OpNe:
		if s.Value == nil {
			return field != nil, nil
		}
		return field != nil && Compare(field, s.Value) != 0, nil
	}

	if field == nil {
		return false, nil
	}
	switch s.Operator {
	case OpLt:
		return Compare(field, s.Value) < 0, nil
	case OpLte:
		return Compare(field, s.Value) <= 0, nil
	case OpGt:
		return Compare(field, s.Value) > 0, nil
	case OpGte:
		return Compare(field, s.Value) >= 0, nil
	case OpIn, OpNotIn:
		list, ok := s.Value.([]any)
		if !ok {
			return false, fmt.Errorf("operator %s on %s requires a list value", s.Operator, s.Field)
		}
		found := false
		for _, v := range list {
			if Compare(field, v) == 0 {
				found = true
				break
			}
		}
		return found == (s.Operator == OpIn), nil
	case OpBetween, OpNotBetween:
		list, ok := s.Value.([]any)
		if !ok || len(list) != 2 {
			return false, fmt.Errorf("operator %s on %s requires exactly two values", s.Operator, s.Field)
		}
		in := Compare(field, list[0]) >= 0 && Compare(field, list[1]) <= 0
		return in == (s.Operator == OpBetween), nil
	case OpLike, OpNotLike, OpILike, OpNotILike:
		pattern, ok := s.Value.(string)
		if !ok {
			return false, fmt.Errorf("operator %s on %s requires a string pattern", s.Operator, s.Field)
		}
		insensitive := s.Operator == OpILike || s.Operator == OpNotILike
		re, err := likeToRegexp(pattern, insensitive)
		if err != nil {
			return false, err
		}
		matched := re.MatchString(fmt.Sprint(field))
		return matched == (s.Operator == OpLike || s.Operator == OpILike), nil
	}
	return false, fmt.Errorf("unknown operator %q", s.Operator)
}

// likeToRegexp translates a SQL LIKE pattern (% and _ wildcards, backslash escape)
func likeToRegexp(pattern string, insensitive bool) (*regexp.Regexp, error) {
	var b strings.Builder
	if insensitive {
		b.WriteString("(?is)")
	} else {
		b.WriteString("(?s)")
	}
	b.WriteString("^")
	escaped := false
	for _, r := range pattern {
		switch {
		case escaped:
			b.WriteString(regexp.QuoteMeta(string(r)))
			escaped = false
		case r == '\\':
			escaped = true
		case r == '%':
			b.WriteString(".*")
		case r == '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}
