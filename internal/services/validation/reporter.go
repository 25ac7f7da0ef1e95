package validation

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// BenignError is a non-fatal problem found while serving a request. It is returned to
// the client next to the data instead of failing the whole operation.
type BenignError struct {
	EntityType string
	ID         string
	Message    string
}

// Error implements the error interface
func (e *BenignError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %s", e.EntityType, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.EntityType, e.ID, e.Message)
}

// Reporter collects benign errors for one request
type Reporter struct {
	mu   sync.Mutex
	errs []error
}

// NewReporter creates an empty reporter
func NewReporter() *Reporter {
	return &Reporter{}
}

// Report records a benign error
func (r *Reporter) Report(err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

// Errors returns a copy of the collected errors
func (r *Reporter) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]error, len(r.errs))
	copy(out, r.errs)
	return out
}

type reporterKey struct{}

// WithReporter attaches a reporter to the request context
func WithReporter(ctx context.Context, r *Reporter) context.Context {
	return context.WithValue(ctx, reporterKey{}, r)
}

// ReporterFrom returns the request reporter or nil
func ReporterFrom(ctx context.Context) *Reporter {
	r, _ := ctx.Value(reporterKey{}).(*Reporter)
	return r
}

// Report hands err to the request reporter. Without one the error is logged.
func Report(ctx context.Context, logger *zap.Logger, err error) {
	if err == nil {
		return
	}
	if r := ReporterFrom(ctx); r != nil {
		r.Report(err)
		return
	}
	if logger != nil {
		logger.Warn("benign error", zap.Error(err))
	}
}
