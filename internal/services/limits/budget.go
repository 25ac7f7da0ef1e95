// Package limits enforces the per-request record budget (LIMIT_RECORDS).
package limits

import (
	"context"
	"fmt"
	"sync"

	"github.com/asakaida/datagraph/internal/entities"
)

// Budget counts the records a single request may still read.
// A nil *Budget is unlimited.
type Budget struct {
	mu        sync.Mutex
	limit     int
	remaining int
}

// NewBudget creates a budget of limit records; limit <= 0 means unlimited
func NewBudget(limit int) *Budget {
	if limit <= 0 {
		return nil
	}
	return &Budget{limit: limit, remaining: limit}
}

// Check fails when reading n more records would exceed the budget
func (b *Budget) Check(n int, operation string) error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > b.remaining {
		return fmt.Errorf("%w: max record limit of %d exceeded in %s", entities.ErrLimitExceeded, b.limit, operation)
	}
	return nil
}

// Consume deducts n records from the budget
func (b *Budget) Consume(n int) {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.remaining -= n
	if b.remaining < 0 {
		b.remaining = 0
	}
	b.mu.Unlock()
}

// Remaining returns the records left, or -1 when unlimited
func (b *Budget) Remaining() int {
	if b == nil {
		return -1
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining
}

type budgetKey struct{}

// WithBudget attaches a budget to the request context
func WithBudget(ctx context.Context, b *Budget) context.Context {
	return context.WithValue(ctx, budgetKey{}, b)
}

// FromContext returns the request budget, or nil (unlimited)
func FromContext(ctx context.Context) *Budget {
	b, _ := ctx.Value(budgetKey{}).(*Budget)
	return b
}
