// Package loader batches and deduplicates point lookups by id within one request.
package loader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/asakaida/datagraph/internal/entities"
	"github.com/asakaida/datagraph/internal/repositories"
	"github.com/asakaida/datagraph/internal/search"
)

// Defaults for New
const (
	DefaultWait     = time.Millisecond
	DefaultMaxBatch = 100
)

// Loader collects the ids requested during a short window and reads them with one
// query per entity type. Results are cached for the lifetime of the Loader, which is
// meant to be one request.
type Loader struct {
	schema   *entities.Schema
	registry repositories.Registry
	wait     time.Duration
	maxBatch int

	mu      sync.Mutex
	results map[key]*result
	pending map[string]*batch
}

type key struct {
	entityType string
	id         string
}

type result struct {
	done chan struct{}
	rec  entities.Record
	err  error
}

type batch struct {
	ctx     context.Context
	ids     []string
	results []*result
	timer   *time.Timer
}

// Option configures a Loader
type Option func(*Loader)

// WithWait sets how long a batch collects ids before it is dispatched
func WithWait(d time.Duration) Option {
	return func(l *Loader) {
		l.wait = d
	}
}

// WithMaxBatch dispatches a batch as soon as it holds n ids
func WithMaxBatch(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.maxBatch = n
		}
	}
}

// New creates a new Loader
func New(schema *entities.Schema, registry repositories.Registry, opts ...Option) *Loader {
	l := &Loader{
		schema:   schema,
		registry: registry,
		wait:     DefaultWait,
		maxBatch: DefaultMaxBatch,
		results:  make(map[key]*result),
		pending:  make(map[string]*batch),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the record with the given id, or nil when it does not exist
func (l *Loader) Load(ctx context.Context, entityType, id string) (entities.Record, error) {
	recs, err := l.LoadMany(ctx, entityType, []string{id})
	if err != nil {
		return nil, err
	}
	return recs[0], nil
}

// LoadMany returns one entry per id in the same order; missing records are nil
func (l *Loader) LoadMany(ctx context.Context, entityType string, ids []string) ([]entities.Record, error) {
	if _, err := l.schema.MustEntity(entityType); err != nil {
		return nil, err
	}

	waits := make([]*result, len(ids))
	l.mu.Lock()
	for i, id := range ids {
		k := key{entityType, id}
		r, ok := l.results[k]
		if !ok {
			r = &result{done: make(chan struct{})}
			l.results[k] = r
			l.enqueue(ctx, entityType, id, r)
		}
		waits[i] = r
	}
	l.mu.Unlock()

	out := make([]entities.Record, len(ids))
	for i, r := range waits {
		select {
		case <-r.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if r.err != nil {
			return nil, r.err
		}
		out[i] = r.rec.Clone()
	}
	return out, nil
}

// Prime stores a known record, replacing any cached result for its id
func (l *Loader) Prime(entityType string, rec entities.Record) {
	def := l.schema.GetEntity(entityType)
	if def == nil || rec == nil {
		return
	}
	r := &result{done: make(chan struct{}), rec: rec.Clone()}
	close(r.done)

	l.mu.Lock()
	l.results[key{entityType, rec.ID(def.IDAttribute)}] = r
	l.mu.Unlock()
}

// Clear drops the cached result of an id
func (l *Loader) Clear(entityType, id string) {
	l.mu.Lock()
	delete(l.results, key{entityType, id})
	l.mu.Unlock()
}

// ClearType drops every cached result of an entity type
func (l *Loader) ClearType(entityType string) {
	l.mu.Lock()
	for k := range l.results {
		if k.entityType == entityType {
			delete(l.results, k)
		}
	}
	l.mu.Unlock()
}

// enqueue must be called with the lock held
func (l *Loader) enqueue(ctx context.Context, entityType, id string, r *result) {
	b, ok := l.pending[entityType]
	if !ok {
		b = &batch{ctx: context.WithoutCancel(ctx)}
		l.pending[entityType] = b
		b.timer = time.AfterFunc(l.wait, func() { l.dispatch(entityType, b) })
	}
	b.ids = append(b.ids, id)
	b.results = append(b.results, r)
	if len(b.ids) >= l.maxBatch {
		b.timer.Stop()
		delete(l.pending, entityType)
		go l.run(entityType, b)
	}
}

func (l *Loader) dispatch(entityType string, b *batch) {
	l.mu.Lock()
	if l.pending[entityType] != b {
		// already dispatched as a full batch
		l.mu.Unlock()
		return
	}
	delete(l.pending, entityType)
	l.mu.Unlock()
	l.run(entityType, b)
}

func (l *Loader) run(entityType string, b *batch) {
	recs, err := l.fetch(b.ctx, entityType, b.ids)

	l.mu.Lock()
	defer l.mu.Unlock()
	for i, r := range b.results {
		if err != nil {
			r.err = err
			// a failed read is retried by the next Load
			k := key{entityType, b.ids[i]}
			if l.results[k] == r {
				delete(l.results, k)
			}
		} else {
			r.rec = recs[i]
		}
		close(r.done)
	}
}

func (l *Loader) fetch(ctx context.Context, entityType string, ids []string) ([]entities.Record, error) {
	def, err := l.schema.MustEntity(entityType)
	if err != nil {
		return nil, err
	}
	store, err := l.registry.Storage(entityType)
	if err != nil {
		return nil, err
	}
	found, err := store.Find(ctx, &repositories.Query{Search: search.In(def.IDAttribute, ids...)})
	if err != nil {
		return nil, fmt.Errorf("failed to load %s batch: %w", entityType, err)
	}
	return OrderByKeys(ids, found, func(rec entities.Record) string { return rec.ID(def.IDAttribute) }), nil
}

// OrderByKeys reorders values to match keys; missing keys get the zero value
func OrderByKeys[K comparable, V any](keys []K, values []V, keyFn func(V) K) []V {
	lookup := make(map[K]V, len(values))
	for _, v := range values {
		lookup[keyFn(v)] = v
	}
	out := make([]V, len(keys))
	for i, k := range keys {
		out[i] = lookup[k]
	}
	return out
}

type ctxKey struct{}

// WithLoader attaches a loader to the request context
func WithLoader(ctx context.Context, l *Loader) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From returns the request loader, or nil
func From(ctx context.Context) *Loader {
	l, _ := ctx.Value(ctxKey{}).(*Loader)
	return l
}
