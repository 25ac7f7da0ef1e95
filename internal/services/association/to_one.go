package association

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/asakaida/datagraph/internal/entities"
	"github.com/asakaida/datagraph/internal/search"
)

// AddToOne points the to-one relation of rec at targetID.
//
// With the key on rec the key is written and mirrored onto rec. With the key on the
// target, the target stores rec's id and any other target still holding it is cleared.
// Existence of targetID is the caller's concern.
func (e *Engine) AddToOne(ctx context.Context, entityType string, rec entities.Record, relation, targetID string) (err error) {
	b, err := e.bind(entityType, relation)
	defer func() { e.observe(b, "add", err) }()
	if err != nil {
		return err
	}
	if err := requireCardinality(b, entities.ToOne); err != nil {
		return err
	}
	selfID := rec.ID(b.self.IDAttribute)

	switch b.rel.KeyLocation {
	case entities.KeySelf:
		updated, err := b.selfStore.UpdateByID(ctx, selfID, entities.Record{b.rel.ForeignKey: targetID})
		forget(ctx, b.self.Name, selfID)
		if err != nil {
			return fmt.Errorf("failed to set %s.%s: %w", b.self.Name, b.rel.ForeignKey, err)
		}
		if updated == nil {
			return entities.NewNotFoundError(b.self.Name, selfID)
		}
		rec[b.rel.ForeignKey] = updated[b.rel.ForeignKey]

	case entities.KeyTarget:
		stale := search.And(search.Eq(b.rel.ForeignKey, selfID), search.Ne(b.target.IDAttribute, targetID))
		// the previous holder is unknown, so no cached target can be trusted
		defer forget(ctx, b.target.Name)
		if _, err := b.targetStore.UpdateWhere(ctx, stale, entities.Record{b.rel.ForeignKey: nil}); err != nil {
			return fmt.Errorf("failed to clear %s.%s: %w", b.target.Name, b.rel.ForeignKey, err)
		}
		updated, err := b.targetStore.UpdateByID(ctx, targetID, entities.Record{b.rel.ForeignKey: selfID})
		if err != nil {
			return fmt.Errorf("failed to set %s.%s: %w", b.target.Name, b.rel.ForeignKey, err)
		}
		if updated == nil {
			return entities.NewNotFoundError(b.target.Name, targetID)
		}
	}

	e.logger.Debug("associated",
		zap.String("entity", b.self.Name),
		zap.String("id", selfID),
		zap.String("relation", b.rel.Name),
		zap.String("target", targetID))
	return nil
}

// RemoveFromOne clears the to-one relation of rec, but only while it still points at
// targetID. A relation that was reassigned in the meantime is left alone.
func (e *Engine) RemoveFromOne(ctx context.Context, entityType string, rec entities.Record, relation, targetID string) (err error) {
	b, err := e.bind(entityType, relation)
	defer func() { e.observe(b, "remove", err) }()
	if err != nil {
		return err
	}
	if err := requireCardinality(b, entities.ToOne); err != nil {
		return err
	}
	selfID := rec.ID(b.self.IDAttribute)

	switch b.rel.KeyLocation {
	case entities.KeySelf:
		guard := search.And(search.Eq(b.self.IDAttribute, selfID), search.Eq(b.rel.ForeignKey, targetID))
		n, err := b.selfStore.UpdateWhere(ctx, guard, entities.Record{b.rel.ForeignKey: nil})
		forget(ctx, b.self.Name, selfID)
		if err != nil {
			return fmt.Errorf("failed to clear %s.%s: %w", b.self.Name, b.rel.ForeignKey, err)
		}
		if n > 0 {
			rec[b.rel.ForeignKey] = nil
		} else {
			e.logger.Debug("relation already points elsewhere",
				zap.String("entity", b.self.Name),
				zap.String("id", selfID),
				zap.String("relation", b.rel.Name))
		}

	case entities.KeyTarget:
		guard := search.And(search.Eq(b.target.IDAttribute, targetID), search.Eq(b.rel.ForeignKey, selfID))
		_, err := b.targetStore.UpdateWhere(ctx, guard, entities.Record{b.rel.ForeignKey: nil})
		forget(ctx, b.target.Name, targetID)
		if err != nil {
			return fmt.Errorf("failed to clear %s.%s: %w", b.target.Name, b.rel.ForeignKey, err)
		}
	}
	return nil
}
