package repositories

import (
	"context"
	"fmt"

	"github.com/asakaida/datagraph/internal/entities"
	"github.com/asakaida/datagraph/internal/search"
)

// Query describes one read against a storage
type Query struct {
	Search *search.Search // Filter (nil = all records)
	Order  []search.Order // Sort keys, applied in order
	Limit  int            // Maximum number of records (0 = unbounded)
	Offset int            // Records to skip
}

// Storage defines the data access contract for one entity type
type Storage interface {
	// Find retrieves records matching the query
	Find(ctx context.Context, q *Query) ([]entities.Record, error)

	// Count returns the number of records matching the search
	Count(ctx context.Context, s *search.Search) (int64, error)

	// CreateInTransaction inserts one record atomically and returns it as stored
	CreateInTransaction(ctx context.Context, fields entities.Record) (entities.Record, error)

	// CreateManyInTransaction inserts all records in a single transaction
	CreateManyInTransaction(ctx context.Context, records []entities.Record) (int, error)

	// UpdateByID updates one record atomically; returns nil when the id does not exist
	UpdateByID(ctx context.Context, id string, fields entities.Record) (entities.Record, error)

	// UpdateWhere updates every record matching the search and returns the affected count
	UpdateWhere(ctx context.Context, s *search.Search, fields entities.Record) (int64, error)

	// DeleteByID removes one record; returns true iff a row was removed
	DeleteByID(ctx context.Context, id string) (bool, error)
}

// Registry resolves the storage of an entity type
type Registry interface {
	Storage(entityType string) (Storage, error)
}

// StaticRegistry is a Registry backed by a fixed map
type StaticRegistry map[string]Storage

// Storage returns the storage registered for the entity type
func (r StaticRegistry) Storage(entityType string) (Storage, error) {
	s, ok := r[entityType]
	if !ok {
		return nil, fmt.Errorf("no storage registered for entity type %s", entityType)
	}
	return s, nil
}

// FindByID is a convenience wrapper returning one record or nil
func FindByID(ctx context.Context, s Storage, idAttribute, id string) (entities.Record, error) {
	records, err := s.Find(ctx, &Query{Search: search.Eq(idAttribute, id), Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}
