package association

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/asakaida/datagraph/internal/entities"
	"github.com/asakaida/datagraph/internal/repositories"
	"github.com/asakaida/datagraph/internal/search"
)

// CountAssociatedRecords sums the records rec is associated with over every relation of
// its type. Array keys are counted by length, keys on the other side by a count query.
func (e *Engine) CountAssociatedRecords(ctx context.Context, entityType string, rec entities.Record) (int64, error) {
	def, err := e.schema.MustEntity(entityType)
	if err != nil {
		return 0, err
	}
	selfID := rec.ID(def.IDAttribute)

	var total atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, rel := range def.Relations {
		switch {
		case rel.HoldsArray():
			total.Add(int64(len(entities.StringSlice(rec[rel.ForeignKey]))))
		case rel.KeyLocation == entities.KeySelf:
			if rec[rel.ForeignKey] != nil {
				total.Add(1)
			}
		default:
			g.Go(func() error {
				store, err := e.registry.Storage(rel.TargetType)
				if err != nil {
					return err
				}
				n, err := store.Count(gctx, search.Eq(rel.ForeignKey, selfID))
				if err != nil {
					return fmt.Errorf("failed to count %s of %s %s: %w", rel.Name, def.Name, selfID, err)
				}
				total.Add(n)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return total.Load(), nil
}

// ValidateDeletion rejects deleting the record while it has associated records.
// A missing record yields a NotFoundError.
func (e *Engine) ValidateDeletion(ctx context.Context, entityType, id string) error {
	def, err := e.schema.MustEntity(entityType)
	if err != nil {
		return err
	}
	store, err := e.registry.Storage(entityType)
	if err != nil {
		return err
	}
	rec, err := repositories.FindByID(ctx, store, def.IDAttribute, id)
	if err != nil {
		return fmt.Errorf("failed to load %s %s: %w", def.Name, id, err)
	}
	if rec == nil {
		return entities.NewNotFoundError(def.Name, id)
	}

	n, err := e.CountAssociatedRecords(ctx, entityType, rec)
	if err != nil {
		return err
	}
	if n > 0 {
		return &entities.DeletionRejectedError{EntityType: def.Name, ID: id, Count: n}
	}
	return nil
}
