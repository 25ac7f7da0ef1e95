package association

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/asakaida/datagraph/internal/entities"
	"github.com/asakaida/datagraph/internal/repositories"
	"github.com/asakaida/datagraph/internal/services/validation"
)

// AddToMany associates rec with every target id through a to-many relation.
//
// With an array key on rec the stored array becomes the order-preserving union with
// targetIDs and rec mirrors it. With the key on the targets every target is pointed at
// rec through BulkAssociate. When handleInverse is set and the inverse also holds an
// array, rec's id is added to each target's array without touching the inverse's inverse.
func (e *Engine) AddToMany(ctx context.Context, entityType string, rec entities.Record, relation string, targetIDs []string, handleInverse bool) (err error) {
	b, err := e.bind(entityType, relation)
	defer func() { e.observe(b, "add", err) }()
	if err != nil {
		return err
	}
	if err := requireCardinality(b, entities.ToMany); err != nil {
		return err
	}
	if len(targetIDs) == 0 {
		return nil
	}
	selfID := rec.ID(b.self.IDAttribute)

	switch b.rel.KeyLocation {
	case entities.KeyTarget:
		pairs := make([]Pair, len(targetIDs))
		for i, id := range targetIDs {
			pairs[i] = Pair{ID: id, Key: selfID}
		}
		return e.bulkUpdate(ctx, b.target, b.targetStore, b.rel.ForeignKey, pairs)

	case entities.KeySelf:
		if err := e.updateArray(ctx, b, rec, func(current []string) []string {
			return union(current, targetIDs)
		}); err != nil {
			return err
		}
		if handleInverse && b.rel.IsBidirectional() {
			return e.eachInverse(ctx, b, targetIDs, func(target entities.Record) error {
				return e.AddToMany(ctx, b.target.Name, target, b.rel.Inverse, []string{selfID}, false)
			})
		}
	}
	return nil
}

// RemoveFromMany is the inverse of AddToMany: the stored array becomes the difference,
// or each target stops pointing at rec. Ids rec is not associated with are ignored.
func (e *Engine) RemoveFromMany(ctx context.Context, entityType string, rec entities.Record, relation string, targetIDs []string, handleInverse bool) (err error) {
	b, err := e.bind(entityType, relation)
	defer func() { e.observe(b, "remove", err) }()
	if err != nil {
		return err
	}
	if err := requireCardinality(b, entities.ToMany); err != nil {
		return err
	}
	if len(targetIDs) == 0 {
		return nil
	}
	selfID := rec.ID(b.self.IDAttribute)

	switch b.rel.KeyLocation {
	case entities.KeyTarget:
		pairs := make([]Pair, len(targetIDs))
		for i, id := range targetIDs {
			pairs[i] = Pair{ID: id, Key: selfID}
		}
		return e.bulkClear(ctx, b.target, b.targetStore, b.rel.ForeignKey, pairs)

	case entities.KeySelf:
		if err := e.updateArray(ctx, b, rec, func(current []string) []string {
			return difference(current, targetIDs)
		}); err != nil {
			return err
		}
		if handleInverse && b.rel.IsBidirectional() {
			return e.eachInverse(ctx, b, targetIDs, func(target entities.Record) error {
				return e.RemoveFromMany(ctx, b.target.Name, target, b.rel.Inverse, []string{selfID}, false)
			})
		}
	}
	return nil
}

// updateArray reloads the key array of rec, applies fn and writes the result back
// when it changed. rec mirrors the stored array afterwards.
func (e *Engine) updateArray(ctx context.Context, b *binding, rec entities.Record, fn func([]string) []string) error {
	selfID := rec.ID(b.self.IDAttribute)
	stored, err := repositories.FindByID(ctx, b.selfStore, b.self.IDAttribute, selfID)
	if err != nil {
		return fmt.Errorf("failed to load %s %s: %w", b.self.Name, selfID, err)
	}
	if stored == nil {
		return entities.NewNotFoundError(b.self.Name, selfID)
	}

	current := entities.StringSlice(stored[b.rel.ForeignKey])
	next := fn(current)
	if equalIDs(current, next) {
		rec[b.rel.ForeignKey] = entities.AnySlice(current)
		return nil
	}

	updated, err := b.selfStore.UpdateByID(ctx, selfID, entities.Record{b.rel.ForeignKey: entities.AnySlice(next)})
	forget(ctx, b.self.Name, selfID)
	if err != nil {
		return fmt.Errorf("failed to update %s.%s: %w", b.self.Name, b.rel.ForeignKey, err)
	}
	if updated == nil {
		return entities.NewNotFoundError(b.self.Name, selfID)
	}
	rec[b.rel.ForeignKey] = entities.AnySlice(entities.StringSlice(updated[b.rel.ForeignKey]))
	return nil
}

// eachInverse loads every target and runs fn on it concurrently. Missing targets are
// skipped and reported as benign errors.
func (e *Engine) eachInverse(ctx context.Context, b *binding, targetIDs []string, fn func(entities.Record) error) error {
	inverse := b.target.GetRelation(b.rel.Inverse)
	if inverse == nil || !inverse.HoldsArray() {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, id := range unique(targetIDs) {
		g.Go(func() error {
			target, err := repositories.FindByID(gctx, b.targetStore, b.target.IDAttribute, id)
			if err != nil {
				return fmt.Errorf("failed to load %s %s: %w", b.target.Name, id, err)
			}
			if target == nil {
				e.logger.Warn("inverse target does not exist",
					zap.String("entity", b.target.Name),
					zap.String("id", id),
					zap.String("relation", inverse.Name))
				validation.Report(ctx, nil, &validation.BenignError{
					EntityType: b.target.Name,
					ID:         id,
					Message:    fmt.Sprintf("record does not exist; %s not updated", inverse.Name),
				})
				return nil
			}
			return fn(target)
		})
	}
	return g.Wait()
}

// union appends the ids of add missing from current, keeping first occurrences
func union(current, add []string) []string {
	out := make([]string, 0, len(current)+len(add))
	seen := make(map[string]bool, len(current)+len(add))
	for _, list := range [][]string{current, add} {
		for _, id := range list {
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// difference removes every id of remove from current
func difference(current, remove []string) []string {
	drop := make(map[string]bool, len(remove))
	for _, id := range remove {
		drop[id] = true
	}
	out := make([]string, 0, len(current))
	for _, id := range current {
		if !drop[id] {
			out = append(out, id)
		}
	}
	return out
}

func unique(ids []string) []string {
	return union(nil, ids)
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
