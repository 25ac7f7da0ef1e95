// Package association adds and removes relations between records, keeping the
// inverse side of bidirectional relations in step.
package association

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/asakaida/datagraph/internal/entities"
	"github.com/asakaida/datagraph/internal/repositories"
	"github.com/asakaida/datagraph/internal/search"
	"github.com/asakaida/datagraph/internal/services/loader"
)

// DefaultConcurrency bounds the updates one bulk operation runs at the same time
const DefaultConcurrency = 16

// Observer receives the outcome of every association operation
type Observer interface {
	ObserveAssociation(entityType, relation, operation string, err error)
}

// Engine mutates relations of any entity type of the schema
type Engine struct {
	schema      *entities.Schema
	registry    repositories.Registry
	logger      *zap.Logger
	concurrency int
	observer    Observer
}

// Option configures an Engine
type Option func(*Engine)

// WithConcurrency sets how many single-record updates a bulk operation runs at once
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithObserver sets the observer
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// NewEngine creates a new association engine
func NewEngine(schema *entities.Schema, registry repositories.Registry, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		schema:      schema,
		registry:    registry,
		logger:      logger,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// binding is a resolved relation with both entity types and their storages
type binding struct {
	self        *entities.EntityType
	rel         *entities.Relation
	target      *entities.EntityType
	selfStore   repositories.Storage
	targetStore repositories.Storage
}

func (e *Engine) bind(entityType, relation string) (*binding, error) {
	self, err := e.schema.MustEntity(entityType)
	if err != nil {
		return nil, err
	}
	rel := self.GetRelation(relation)
	if rel == nil {
		return nil, entities.NewInvalidInputError("relation", fmt.Sprintf("%s has no relation %s", entityType, relation))
	}
	target, err := e.schema.MustEntity(rel.TargetType)
	if err != nil {
		return nil, err
	}
	selfStore, err := e.registry.Storage(self.Name)
	if err != nil {
		return nil, err
	}
	targetStore, err := e.registry.Storage(target.Name)
	if err != nil {
		return nil, err
	}
	return &binding{self: self, rel: rel, target: target, selfStore: selfStore, targetStore: targetStore}, nil
}

func (e *Engine) observe(b *binding, op string, err error) {
	if e.observer != nil && b != nil {
		e.observer.ObserveAssociation(b.self.Name, b.rel.Name, op, err)
	}
}

func requireCardinality(b *binding, want entities.Cardinality) error {
	if b.rel.Cardinality != want {
		return entities.NewInvalidInputError("relation", fmt.Sprintf("%s.%s is %s, not %s", b.self.Name, b.rel.Name, b.rel.Cardinality, want))
	}
	return nil
}

// RelatedSearch returns the search selecting the target records rec is associated with
// through rel. The search matches nothing when rec holds no key.
func RelatedSearch(def *entities.EntityType, target *entities.EntityType, rel *entities.Relation, rec entities.Record) *search.Search {
	switch {
	case rel.KeyLocation == entities.KeyTarget:
		return search.Eq(rel.ForeignKey, rec.ID(def.IDAttribute))
	case rel.HoldsArray():
		return search.In(target.IDAttribute, entities.StringSlice(rec[rel.ForeignKey])...)
	default:
		if rec[rel.ForeignKey] == nil {
			return search.In(target.IDAttribute)
		}
		return search.Eq(target.IDAttribute, rec[rel.ForeignKey])
	}
}

// RelatedSearch resolves the relation by name and returns the search selecting the
// records associated with rec
func (e *Engine) RelatedSearch(entityType, relation string, rec entities.Record) (*search.Search, error) {
	b, err := e.bind(entityType, relation)
	if err != nil {
		return nil, err
	}
	return RelatedSearch(b.self, b.target, b.rel, rec), nil
}

// forget drops the request loader's copies of records a write touched. Without ids
// every cached record of the entity type goes.
func forget(ctx context.Context, entityType string, ids ...string) {
	l := loader.From(ctx)
	if l == nil {
		return
	}
	if len(ids) == 0 {
		l.ClearType(entityType)
		return
	}
	for _, id := range ids {
		l.Clear(entityType, id)
	}
}
