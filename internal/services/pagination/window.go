// Package pagination reads ordered slices of an entity's records, either by cursor
// (first/after, last/before) or by offset/limit.
package pagination

import (
	"fmt"

	"github.com/asakaida/datagraph/internal/entities"
)

// Window is the requested slice. Cursor mode uses First/After or Last/Before;
// offset mode uses Offset/Limit. The two modes are mutually exclusive.
type Window struct {
	First  *int
	Last   *int
	After  string
	Before string
	Offset *int
	Limit  *int
}

// Forward returns a cursor window reading the first n records after the cursor
func Forward(n int, after string) Window {
	return Window{First: &n, After: after}
}

// Backward returns a cursor window reading the last n records before the cursor
func Backward(n int, before string) Window {
	return Window{Last: &n, Before: before}
}

// Page returns an offset window
func Page(offset, limit int) Window {
	return Window{Offset: &offset, Limit: &limit}
}

func (w Window) hasCursorFields() bool {
	return w.First != nil || w.Last != nil || w.After != "" || w.Before != ""
}

func (w Window) hasOffsetFields() bool {
	return w.Offset != nil || w.Limit != nil
}

func invalidWindow(format string, args ...any) error {
	return entities.NewInvalidInputError("pagination", fmt.Sprintf(format, args...))
}

// ValidateCursor checks a cursor-mode window
func (w Window) ValidateCursor() error {
	switch {
	case w.hasOffsetFields():
		return invalidWindow("offset/limit cannot be combined with cursor pagination")
	case w.First != nil && w.Last != nil:
		return invalidWindow("first and last cannot both be set")
	case w.After != "" && w.Before != "":
		return invalidWindow("after and before cannot both be set")
	case w.First != nil && *w.First < 0:
		return invalidWindow("first must be a non-negative integer, got %d", *w.First)
	case w.Last != nil && *w.Last < 0:
		return invalidWindow("last must be a non-negative integer, got %d", *w.Last)
	}
	return nil
}

// ValidateOffset checks an offset-mode window
func (w Window) ValidateOffset() error {
	switch {
	case w.hasCursorFields():
		return invalidWindow("first/last/after/before cannot be combined with offset pagination")
	case w.Offset != nil && *w.Offset < 0:
		return invalidWindow("offset must be a non-negative integer, got %d", *w.Offset)
	case w.Limit != nil && *w.Limit < 0:
		return invalidWindow("limit must be a non-negative integer, got %d", *w.Limit)
	}
	return nil
}

// backward reports whether the window travels against the requested order
func (w Window) backward() bool {
	return w.Last != nil
}

// size returns the page size in the travel direction, or -1 when unbounded
func (w Window) size() int {
	switch {
	case w.First != nil:
		return *w.First
	case w.Last != nil:
		return *w.Last
	}
	return -1
}
