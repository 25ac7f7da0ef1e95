package entities

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
)

func TestRecord(t *testing.T) {
	rec := Record{"id": "S1", "rank": int64(2), "ids": []any{"A", "B"}}

	if got := rec.ID("id"); got != "S1" {
		t.Errorf("ID() = %v, want S1", got)
	}
	if got := rec.ID("rank"); got != "2" {
		t.Errorf("ID(rank) = %v, want 2", got)
	}
	if got := rec.ID("missing"); got != "" {
		t.Errorf("ID(missing) = %v, want empty", got)
	}
	if got := rec.Keys(); !reflect.DeepEqual(got, []string{"id", "ids", "rank"}) {
		t.Errorf("Keys() = %v", got)
	}

	clone := rec.Clone()
	clone["ids"].([]any)[0] = "Z"
	clone["id"] = "S2"
	if rec["ids"].([]any)[0] != "A" || rec["id"] != "S1" {
		t.Errorf("Clone() shares state with the original: %v", rec)
	}
	if Record(nil).Clone() != nil {
		t.Error("nil Clone() != nil")
	}
}

func TestStringSlice(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want []string
	}{
		{name: "nil", in: nil, want: []string{}},
		{name: "strings", in: []string{"a"}, want: []string{"a"}},
		{name: "any skips nil", in: []any{"a", nil, int64(3)}, want: []string{"a", "3"}},
		{name: "scalar", in: "x", want: []string{"x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StringSlice(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("StringSlice() = %v, want %v", got, tt.want)
			}
		})
	}

	if got := AnySlice([]string{"a", "b"}); !reflect.DeepEqual(got, []any{"a", "b"}) {
		t.Errorf("AnySlice() = %v", got)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "invalid", err: NewInvalidInputError("pagination", "first and last"), want: "invalid"},
		{name: "wrapped not found", err: fmt.Errorf("read: %w", NewNotFoundError("study", "S1")), want: "not_found"},
		{name: "rejected", err: &DeletionRejectedError{EntityType: "study", ID: "S1", Count: 2}, want: "rejected"},
		{name: "limit", err: fmt.Errorf("%w: 10", ErrLimitExceeded), want: "limit"},
		{name: "unauthorized", err: ErrUnauthorized, want: "unauthorized"},
		{name: "other", err: errors.New("disk on fire"), want: "internal"},
		{name: "nil", err: nil, want: "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err).String(); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDeletionRejectedError_Message(t *testing.T) {
	err := &DeletionRejectedError{EntityType: "study", ID: "S1", Count: 2}
	want := "study with id S1 has 2 associated record(s) and is NOT valid for deletion. Please clean up before you delete."
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
}
