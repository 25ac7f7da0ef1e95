package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/asakaida/datagraph/internal/entities"
	"github.com/asakaida/datagraph/internal/repositories"
	"github.com/asakaida/datagraph/internal/search"
)

// QueryObserver receives the outcome of every statement a Store runs
type QueryObserver interface {
	ObserveQuery(entityType, operation string, seconds float64, err error)
}

// Store implements repositories.Storage for one entity type
type Store struct {
	db       *sql.DB
	dialect  Dialect
	def      *entities.EntityType
	logger   *zap.Logger
	observer QueryObserver
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger statements are traced to at debug level
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver sets the query observer
func WithObserver(o QueryObserver) Option {
	return func(s *Store) {
		s.observer = o
	}
}

// New creates a store for the entity type
func New(db *sql.DB, dialect Dialect, def *entities.EntityType, opts ...Option) *Store {
	s := &Store{
		db:      db,
		dialect: dialect,
		def:     def,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewRegistry creates one store per entity type of the schema
func NewRegistry(db *sql.DB, dialect Dialect, schema *entities.Schema, opts ...Option) repositories.StaticRegistry {
	reg := make(repositories.StaticRegistry)
	for _, def := range schema.Entities() {
		reg[def.Name] = New(db, dialect, def, opts...)
	}
	return reg
}

func (s *Store) observe(op string, start time.Time, err error) {
	if s.observer != nil {
		s.observer.ObserveQuery(s.def.Name, op, time.Since(start).Seconds(), err)
	}
}

// Find retrieves records matching the query
func (s *Store) Find(ctx context.Context, q *repositories.Query) (records []entities.Record, err error) {
	start := time.Now()
	defer func() { s.observe("find", start, err) }()

	if q == nil {
		q = &repositories.Query{}
	}
	b := newBuilder(s.dialect, s.def)
	query, err := b.selectQuery(q)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("find", zap.String("entity", s.def.Name), zap.String("sql", query), zap.Int("args", len(b.args)))

	rows, err := s.db.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", s.def.Table, err)
	}
	defer rows.Close()

	records = make([]entities.Record, 0)
	for rows.Next() {
		rec, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", s.def.Table, err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scan reads one row of the attribute columns and coerces every value
func (s *Store) scan(row scanner) (entities.Record, error) {
	values := make([]any, len(s.def.Attributes))
	ptrs := make([]any, len(values))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := row.Scan(ptrs...); err != nil {
		return nil, err
	}

	rec := make(entities.Record, len(values))
	for i, a := range s.def.Attributes {
		v, err := a.Coerce(values[i])
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s.%s: %w", s.def.Table, a.Name, err)
		}
		rec[a.Name] = v
	}
	return rec, nil
}

// Count returns the number of records matching the search
func (s *Store) Count(ctx context.Context, sr *search.Search) (n int64, err error) {
	start := time.Now()
	defer func() { s.observe("count", start, err) }()

	b := newBuilder(s.dialect, s.def)
	query, err := b.countQuery(sr)
	if err != nil {
		return 0, err
	}
	if err := s.db.QueryRowContext(ctx, query, b.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", s.def.Table, err)
	}
	return n, nil
}

// prepare coerces a new record and fills every declared attribute
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

// CreateInTransaction inserts one record in its own transaction
func (s *Store) CreateInTransaction(ctx context.Context, fields entities.Record) (rec entities.Record, err error) {
	start := time.Now()
	defer func() { s.observe("create", start, err) }()

	rec, err = s.prepare(fields)
	if err != nil {
		return nil, err
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		return s.insert(ctx, tx, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// CreateManyInTransaction inserts all records in one transaction
func (s *Store) CreateManyInTransaction(ctx context.Context, records []entities.Record) (n int, err error) {
	start := time.Now()
	defer func() { s.observe("create_many", start, err) }()

	prepared := make([]entities.Record, 0, len(records))
	for _, fields := range records {
		rec, err := s.prepare(fields)
		if err != nil {
			return 0, err
		}
		prepared = append(prepared, rec)
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		for _, rec := range prepared {
			if err := s.insert(ctx, tx, rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(prepared), nil
}

func (s *Store) insert(ctx context.Context, tx *sql.Tx, rec entities.Record) error {
	b := newBuilder(s.dialect, s.def)
	query, err := b.insertQuery(rec)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, b.args...); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", s.def.Table, err)
	}
	return nil
}

// UpdateByID updates one record and reads it back in the same transaction.
// It returns nil when no record has the id.
func (s *Store) UpdateByID(ctx context.Context, id string, fields entities.Record) (rec entities.Record, err error) {
	start := time.Now()
	defer func() { s.observe("update", start, err) }()

	coerced, err := s.def.CoerceRecord(fields)
	if err != nil {
		return nil, err
	}
	byID := search.Eq(s.def.IDAttribute, id)

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		b := newBuilder(s.dialect, s.def)
		query, err := b.updateQuery(coerced, byID)
		if err != nil {
			return err
		}
		if query != "" {
			if _, err := tx.ExecContext(ctx, query, b.args...); err != nil {
				return fmt.Errorf("failed to update %s: %w", s.def.Table, err)
			}
		}

		sb := newBuilder(s.dialect, s.def)
		sel, err := sb.selectQuery(&repositories.Query{Search: byID, Limit: 1})
		if err != nil {
			return err
		}
		rec, err = s.scan(tx.QueryRowContext(ctx, sel, sb.args...))
		if errors.Is(err, sql.ErrNoRows) {
			rec = nil
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// UpdateWhere updates every record matching the search
func (s *Store) UpdateWhere(ctx context.Context, sr *search.Search, fields entities.Record) (n int64, err error) {
	start := time.Now()
	defer func() { s.observe("update_where", start, err) }()

	coerced, err := s.def.CoerceRecord(fields)
	if err != nil {
		return 0, err
	}
	b := newBuilder(s.dialect, s.def)
	query, err := b.updateQuery(coerced, sr)
	if err != nil || query == "" {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, query, b.args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update %s: %w", s.def.Table, err)
	}
	return res.RowsAffected()
}

// DeleteByID removes one record
func (s *Store) DeleteByID(ctx context.Context, id string) (ok bool, err error) {
	start := time.Now()
	defer func() { s.observe("delete", start, err) }()

	query := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", s.dialect.Quote(s.def.Table), s.dialect.Quote(s.def.IDAttribute), s.dialect.Placeholder(1))
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete from %s: %w", s.def.Table, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
