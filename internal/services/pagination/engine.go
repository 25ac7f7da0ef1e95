package pagination

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/asakaida/datagraph/internal/entities"
	"github.com/asakaida/datagraph/internal/repositories"
	"github.com/asakaida/datagraph/internal/search"
	"github.com/asakaida/datagraph/internal/services/limits"
	"github.com/asakaida/datagraph/internal/services/validation"
)

// Edge is one record of a connection with its cursor
type Edge struct {
	Node   entities.Record
	Cursor string
}

// PageInfo describes the position of a page in the full result set
type PageInfo struct {
	StartCursor     string
	EndCursor       string
	HasPreviousPage bool
	HasNextPage     bool
}

// Connection is a page of records in cursor form
type Connection struct {
	Edges    []Edge
	PageInfo PageInfo
}

// Nodes returns the records of the connection in order
func (c *Connection) Nodes() []entities.Record {
	out := make([]entities.Record, len(c.Edges))
	for i, e := range c.Edges {
		out[i] = e.Node
	}
	return out
}

// Engine reads pages of any entity type of the schema
type Engine struct {
	schema    *entities.Schema
	registry  repositories.Registry
	validator validation.Validator
	logger    *zap.Logger
}

// NewEngine creates a new pagination engine. validator may be nil.
func NewEngine(schema *entities.Schema, registry repositories.Registry, validator validation.Validator, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		schema:    schema,
		registry:  registry,
		validator: validator,
		logger:    logger,
	}
}

func (e *Engine) resolve(entityType string) (*entities.EntityType, repositories.Storage, error) {
	def, err := e.schema.MustEntity(entityType)
	if err != nil {
		return nil, nil, err
	}
	store, err := e.registry.Storage(entityType)
	if err != nil {
		return nil, nil, err
	}
	return def, store, nil
}

// FetchPage reads one cursor page of the records matching s in the given order.
//
// The page is read with one extra record in the travel direction, which decides the
// flag for that direction. The flag for the opposite direction comes from a
// one-record probe on the other side of the cursor, which is skipped when the window
// has no cursor.
func (e *Engine) FetchPage(ctx context.Context, entityType string, s *search.Search, order []search.Order, w Window) (*Connection, error) {
	if err := w.ValidateCursor(); err != nil {
		return nil, err
	}
	def, store, err := e.resolve(entityType)
	if err != nil {
		return nil, err
	}
	order, err = NormalizeOrder(def, order)
	if err != nil {
		return nil, err
	}

	var afterRec, beforeRec entities.Record
	if w.After != "" {
		if afterRec, err = DecodeCursor(def, w.After, order); err != nil {
			return nil, err
		}
	}
	if w.Before != "" {
		if beforeRec, err = DecodeCursor(def, w.Before, order); err != nil {
			return nil, err
		}
	}

	restricted := s
	if afterRec != nil {
		restricted = search.And(restricted, CursorCondition(order, afterRec, true, false))
	}
	if beforeRec != nil {
		restricted = search.And(restricted, CursorCondition(order, beforeRec, false, false))
	}

	budget := limits.FromContext(ctx)
	size := w.size()
	if size < 0 {
		n, err := store.Count(ctx, restricted)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", def.Name, err)
		}
		size = int(n)
	}
	if err := budget.Check(size, def.Name+" connection"); err != nil {
		return nil, err
	}

	queryOrder := order
	if w.backward() {
		queryOrder = search.ReverseOrder(order)
	}
	records, err := store.Find(ctx, &repositories.Query{Search: restricted, Order: queryOrder, Limit: size + 1})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s page: %w", def.Name, err)
	}

	extra := len(records) > size
	if extra {
		records = records[:size]
	}
	if w.backward() {
		reverse(records)
	}
	budget.Consume(len(records))

	info := PageInfo{}
	if w.backward() {
		info.HasPreviousPage = extra
	} else {
		info.HasNextPage = extra
	}
	if afterRec != nil && !info.HasPreviousPage {
		if info.HasPreviousPage, err = e.probe(ctx, store, s, order, afterRec, false); err != nil {
			return nil, err
		}
	}
	if beforeRec != nil && !info.HasNextPage {
		if info.HasNextPage, err = e.probe(ctx, store, s, order, beforeRec, true); err != nil {
			return nil, err
		}
	}

	if e.validator != nil {
		records = e.validator.ValidateAfterRead(ctx, def, records)
	}

	conn := &Connection{Edges: make([]Edge, 0, len(records))}
	for _, rec := range records {
		cursor, err := EncodeCursor(def, rec)
		if err != nil {
			return nil, err
		}
		conn.Edges = append(conn.Edges, Edge{Node: rec, Cursor: cursor})
	}
	if len(conn.Edges) > 0 {
		info.StartCursor = conn.Edges[0].Cursor
		info.EndCursor = conn.Edges[len(conn.Edges)-1].Cursor
	}
	conn.PageInfo = info

	e.logger.Debug("fetched page",
		zap.String("entity", def.Name),
		zap.Int("edges", len(conn.Edges)),
		zap.Bool("has_previous", info.HasPreviousPage),
		zap.Bool("has_next", info.HasNextPage))
	return conn, nil
}

// probe reports whether any record matching s lies at the cursor or beyond it,
// looking forward or backward in order.
func (e *Engine) probe(ctx context.Context, store repositories.Storage, s *search.Search, order []search.Order, cursor entities.Record, forward bool) (bool, error) {
	probeOrder := order
	if !forward {
		probeOrder = search.ReverseOrder(order)
	}
	records, err := store.Find(ctx, &repositories.Query{
		Search: search.And(s, CursorCondition(order, cursor, forward, true)),
		Order:  probeOrder,
		Limit:  1,
	})
	if err != nil {
		return false, fmt.Errorf("failed to probe page boundary: %w", err)
	}
	return len(records) > 0, nil
}

// ReadAll reads records in offset mode. Without a limit every matching record is read,
// subject to the request's record budget.
func (e *Engine) ReadAll(ctx context.Context, entityType string, s *search.Search, order []search.Order, w Window) ([]entities.Record, error) {
	if err := w.ValidateOffset(); err != nil {
		return nil, err
	}
	def, store, err := e.resolve(entityType)
	if err != nil {
		return nil, err
	}
	order, err = NormalizeOrder(def, order)
	if err != nil {
		return nil, err
	}

	q := &repositories.Query{Search: s, Order: order}
	if w.Offset != nil {
		q.Offset = *w.Offset
	}

	budget := limits.FromContext(ctx)
	size := 0
	if w.Limit != nil {
		size = *w.Limit
	} else {
		n, err := store.Count(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", def.Name, err)
		}
		size = int(n) - q.Offset
		if size < 0 {
			size = 0
		}
	}
	if err := budget.Check(size, def.Name+" readAll"); err != nil {
		return nil, err
	}
	if w.Limit != nil && size == 0 {
		return []entities.Record{}, nil
	}
	q.Limit = size

	records, err := store.Find(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", def.Name, err)
	}
	budget.Consume(len(records))

	if e.validator != nil {
		records = e.validator.ValidateAfterRead(ctx, def, records)
	}
	return records, nil
}

// CountRecords returns the number of records matching s
func (e *Engine) CountRecords(ctx context.Context, entityType string, s *search.Search) (int64, error) {
	def, store, err := e.resolve(entityType)
	if err != nil {
		return 0, err
	}
	n, err := store.Count(ctx, s)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", def.Name, err)
	}
	return n, nil
}

func reverse(records []entities.Record) {
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
}
