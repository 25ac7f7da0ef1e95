package search

import (
	"fmt"
	"strings"
)

// Direction is a sort direction
type Direction string

const (
	ASC  Direction = "ASC"
	DESC Direction = "DESC"
)

// ParseDirection parses a direction name; empty means ASC
func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "ASC":
		return ASC, nil
	case "DESC":
		return DESC, nil
	}
	return "", fmt.Errorf("unknown order direction %q", s)
}

// Reverse returns the opposite direction
func (d Direction) Reverse() Direction {
	if d == DESC {
		return ASC
	}
	return DESC
}

// Order is one sort key
type Order struct {
	Field     string
	Direction Direction
}

// String returns "field ASC" form
func (o Order) String() string {
	return fmt.Sprintf("%s %s", o.Field, o.Direction)
}

// ReverseOrder flips every key of the order
func ReverseOrder(order []Order) []Order {
	out := make([]Order, len(order))
	for i, o := range order {
		out[i] = Order{Field: o.Field, Direction: o.Direction.Reverse()}
	}
	return out
}
