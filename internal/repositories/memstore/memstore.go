// Package memstore provides an in-memory Storage for one entity type. It backs the
// "memory" database dialect used for local development and the engine tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/asakaida/datagraph/internal/entities"
	"github.com/asakaida/datagraph/internal/repositories"
	"github.com/asakaida/datagraph/internal/search"
)

// Store implements repositories.Storage in memory
type Store struct {
	mu   sync.RWMutex
	def  *entities.EntityType
	rows map[string]entities.Record

	finds atomic.Int64
}

// New creates an empty store for the entity type
func New(def *entities.EntityType) *Store {
	return &Store{
		def:  def,
		rows: make(map[string]entities.Record),
	}
}

// NewRegistry creates one empty store per entity type of the schema
func NewRegistry(schema *entities.Schema) repositories.StaticRegistry {
	reg := make(repositories.StaticRegistry)
	for _, def := range schema.Entities() {
		reg[def.Name] = New(def)
	}
	return reg
}

// Find retrieves records matching the query
func (s *Store) Find(ctx context.Context, q *repositories.Query) ([]entities.Record, error) {
	s.finds.Add(1)
	if q == nil {
		q = &repositories.Query{}
	}
	if err := q.Search.Validate(); err != nil {
		return nil, fmt.Errorf("invalid search: %w", err)
	}

	s.mu.RLock()
	matched := make([]entities.Record, 0, len(s.rows))
	for _, rec := range s.rows {
		ok, err := search.Match(q.Search, rec)
		if err != nil {
			s.mu.RUnlock()
			return nil, fmt.Errorf("failed to evaluate search: %w", err)
		}
		if ok {
			matched = append(matched, rec.Clone())
		}
	}
	s.mu.RUnlock()

	order := q.Order
	if len(order) == 0 {
		order = []search.Order{{Field: s.def.IDAttribute, Direction: search.ASC}}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		for _, o := range order {
			c := search.Compare(matched[i][o.Field], matched[j][o.Field])
			if c == 0 {
				continue
			}
			if o.Direction == search.DESC {
				return c > 0
			}
			return c < 0
		}
		return false
	})

	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			return []entities.Record{}, nil
		}
		matched = matched[q.Offset:]
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

// Count returns the number of records matching the search
func (s *Store) Count(ctx context.Context, sr *search.Search) (int64, error) {
	if err := sr.Validate(); err != nil {
		return 0, fmt.Errorf("invalid search: %w", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, rec := range s.rows {
		ok, err := search.Match(sr, rec)
		if err != nil {
			return 0, fmt.Errorf("failed to evaluate search: %w", err)
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// CreateInTransaction inserts one record
func (s *Store) CreateInTransaction(ctx context.Context, fields entities.Record) (entities.Record, error) {
	rec, err := s.prepare(fields)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := rec.ID(s.def.IDAttribute)
	if _, exists := s.rows[id]; exists {
		return nil, fmt.Errorf("%s with id %s already exists", s.def.Name, id)
	}
	s.rows[id] = rec
	return rec.Clone(), nil
}

// CreateManyInTransaction inserts all records or none
func (s *Store) CreateManyInTransaction(ctx context.Context, records []entities.Record) (int, error) {
	prepared := make([]entities.Record, 0, len(records))
	for _, fields := range records {
		rec, err := s.prepare(fields)
		if err != nil {
			return 0, err
		}
		prepared = append(prepared, rec)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool, len(prepared))
	for _, rec := range prepared {
		id := rec.ID(s.def.IDAttribute)
		if _, exists := s.rows[id]; exists || seen[id] {
			return 0, fmt.Errorf("%s with id %s already exists", s.def.Name, id)
		}
		seen[id] = true
	}
	for _, rec := range prepared {
		s.rows[rec.ID(s.def.IDAttribute)] = rec
	}
	return len(prepared), nil
}

// UpdateByID merges fields into the record with the given id
func (s *Store) UpdateByID(ctx context.Context, id string, fields entities.Record) (entities.Record, error) {
	coerced, err := s.def.CoerceRecord(fields)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rows[id]
	if !ok {
		return nil, nil
	}
	updated := rec.Clone()
	for k, v := range coerced {
		if k == s.def.IDAttribute {
			continue
		}
		updated[k] = v
	}
	s.rows[id] = updated
	return updated.Clone(), nil
}

// UpdateWhere merges fields into every record matching the search
func (s *Store) UpdateWhere(ctx context.Context, sr *search.Search, fields entities.Record) (int64, error) {
	if err := sr.Validate(); err != nil {
		return 0, fmt.Errorf("invalid search: %w", err)
	}
	coerced, err := s.def.CoerceRecord(fields)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, rec := range s.rows {
		ok, err := search.Match(sr, rec)
		if err != nil {
			return n, fmt.Errorf("failed to evaluate search: %w", err)
		}
		if !ok {
			continue
		}
		updated := rec.Clone()
		for k, v := range coerced {
			if k != s.def.IDAttribute {
				updated[k] = v
			}
		}
		s.rows[id] = updated
		n++
	}
	return n, nil
}

// DeleteByID removes the record with the given id
func (s *Store) DeleteByID(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return false, nil
	}
	delete(s.rows, id)
	return true, nil
}

// FindCalls returns how many Find queries the store has served
func (s *Store) FindCalls() int64 {
	return s.finds.Load()
}

// Len returns the number of stored records
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// prepare coerces a new record and fills every declared attribute so that
// absent attributes read back as NULL, like a table row would.
func (s *Store) prepare(fields entities.Record) (entities.Record, error) {
	coerced, err := s.def.CoerceRecord(fields)
	if err != nil {
		return nil, err
	}
	if coerced.ID(s.def.IDAttribute) == "" {
		return nil, entities.NewInvalidInputError(s.def.IDAttribute, "id is required")
	}
	rec := make(entities.Record, len(s.def.Attributes))
	for _, a := range s.def.Attributes {
		rec[a.Name] = coerced[a.Name]
	}
	return rec, nil
}
