package association

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/asakaida/datagraph/internal/entities"
	"github.com/asakaida/datagraph/internal/repositories"
	"github.com/asakaida/datagraph/internal/search"
)

// Pair is one bulk association input: the record ID stores Key in its scalar foreign key
type Pair struct {
	ID  string
	Key string
}

// holder resolves which entity type stores the scalar key of a relation and which
// entity type the key points at
func (e *Engine) holder(b *binding) (holder, keyed *entities.EntityType, store repositories.Storage, err error) {
	switch {
	case b.rel.KeyLocation == entities.KeyTarget:
		return b.target, b.self, b.targetStore, nil
	case b.rel.Cardinality == entities.ToOne:
		return b.self, b.target, b.selfStore, nil
	}
	return nil, nil, nil, entities.NewInvalidInputError("relation",
		fmt.Sprintf("%s.%s keeps its keys in an array; use add/remove instead of bulk association", b.self.Name, b.rel.Name))
}

// BulkAssociate writes Key into the foreign key of every record ID of the relation's
// key-holding side. The updates run concurrently; the first failure is returned and the
// updates already done stay committed. Unless skipCheck is set, every ID and Key must exist.
func (e *Engine) BulkAssociate(ctx context.Context, entityType, relation string, pairs []Pair, skipCheck bool) (err error) {
	b, err := e.bind(entityType, relation)
	defer func() { e.observe(b, "bulk_associate", err) }()
	if err != nil {
		return err
	}
	holder, keyed, store, err := e.holder(b)
	if err != nil {
		return err
	}
	if !skipCheck {
		if err := e.checkPairs(ctx, holder, keyed, pairs); err != nil {
			return err
		}
	}
	return e.bulkUpdate(ctx, holder, store, b.rel.ForeignKey, pairs)
}

// BulkDisAssociate clears the foreign key of every record ID that still stores Key.
// Records pointing elsewhere are left alone.
func (e *Engine) BulkDisAssociate(ctx context.Context, entityType, relation string, pairs []Pair, skipCheck bool) (err error) {
	b, err := e.bind(entityType, relation)
	defer func() { e.observe(b, "bulk_disassociate", err) }()
	if err != nil {
		return err
	}
	holder, keyed, store, err := e.holder(b)
	if err != nil {
		return err
	}
	if !skipCheck {
		if err := e.checkPairs(ctx, holder, keyed, pairs); err != nil {
			return err
		}
	}
	return e.bulkClear(ctx, holder, store, b.rel.ForeignKey, pairs)
}

func (e *Engine) checkPairs(ctx context.Context, holder, keyed *entities.EntityType, pairs []Pair) error {
	ids := make([]string, len(pairs))
	keys := make([]string, len(pairs))
	for i, p := range pairs {
		ids[i] = p.ID
		keys[i] = p.Key
	}
	if err := e.ValidateExistence(ctx, holder.Name, ids); err != nil {
		return err
	}
	return e.ValidateExistence(ctx, keyed.Name, keys)
}

// bulkUpdate issues one single-record update per pair, concurrently
func (e *Engine) bulkUpdate(ctx context.Context, def *entities.EntityType, store repositories.Storage, fk string, pairs []Pair) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, p := range pairs {
		g.Go(func() error {
			updated, err := store.UpdateByID(gctx, p.ID, entities.Record{fk: p.Key})
			forget(ctx, def.Name, p.ID)
			if err != nil {
				return fmt.Errorf("failed to set %s.%s of %s: %w", def.Name, fk, p.ID, err)
			}
			if updated == nil {
				return entities.NewNotFoundError(def.Name, p.ID)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	e.logger.Debug("bulk associated", zap.String("entity", def.Name), zap.String("key", fk), zap.Int("records", len(pairs)))
	return nil
}

// bulkClear issues one guarded update per pair, concurrently
func (e *Engine) bulkClear(ctx context.Context, def *entities.EntityType, store repositories.Storage, fk string, pairs []Pair) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, p := range pairs {
		g.Go(func() error {
			guard := search.And(search.Eq(def.IDAttribute, p.ID), search.Eq(fk, p.Key))
			_, err := store.UpdateWhere(gctx, guard, entities.Record{fk: nil})
			forget(ctx, def.Name, p.ID)
			if err != nil {
				return fmt.Errorf("failed to clear %s.%s of %s: %w", def.Name, fk, p.ID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	e.logger.Debug("bulk disassociated", zap.String("entity", def.Name), zap.String("key", fk), zap.Int("records", len(pairs)))
	return nil
}

// ValidateExistence fails with a NotFoundError naming every id of ids that has no record
func (e *Engine) ValidateExistence(ctx context.Context, entityType string, ids []string) error {
	ids = unique(ids)
	if len(ids) == 0 {
		return nil
	}
	def, err := e.schema.MustEntity(entityType)
	if err != nil {
		return err
	}
	store, err := e.registry.Storage(entityType)
	if err != nil {
		return err
	}

	found, err := store.Find(ctx, &repositories.Query{Search: search.In(def.IDAttribute, ids...)})
	if err != nil {
		return fmt.Errorf("failed to check %s existence: %w", def.Name, err)
	}
	if len(found) == len(ids) {
		return nil
	}
	exists := make(map[string]bool, len(found))
	for _, rec := range found {
		exists[rec.ID(def.IDAttribute)] = true
	}
	var missing []string
	for _, id := range ids {
		if !exists[id] {
			missing = append(missing, id)
		}
	}
	return entities.NewNotFoundError(def.Name, strings.Join(missing, ", "))
}
