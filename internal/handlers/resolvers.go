package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/graphql-go/graphql"

	"github.com/asakaida/datagraph/internal/entities"
	"github.com/asakaida/datagraph/internal/services"
	"github.com/asakaida/datagraph/internal/services/association"
)

// ResolverError carries the class of a service error into the GraphQL error extensions
type ResolverError struct {
	err error
}

// Error implements the error interface
func (e *ResolverError) Error() string {
	return e.err.Error()
}

// Unwrap returns the service error
func (e *ResolverError) Unwrap() error {
	return e.err
}

// Extensions implements gqlerrors.ExtendedError
func (e *ResolverError) Extensions() map[string]any {
	return map[string]any{"code": entities.Classify(e.err).String()}
}

func wrapError(err error) error {
	if err == nil {
		return nil
	}
	var re *ResolverError
	if errors.As(err, &re) {
		return err
	}
	return &ResolverError{err: err}
}

// record returns rec as a resolver result; a nil record must be an untyped nil
func record(rec entities.Record, err error) (any, error) {
	if err != nil {
		return nil, wrapError(err)
	}
	if rec == nil {
		return nil, nil
	}
	return rec, nil
}

func source(p graphql.ResolveParams) (entities.Record, error) {
	rec, ok := p.Source.(entities.Record)
	if !ok {
		return nil, fmt.Errorf("unexpected source %T for field %s", p.Source, p.Info.FieldName)
	}
	return rec, nil
}

func resolveAttribute(name string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		rec, err := source(p)
		if err != nil {
			return nil, err
		}
		return rec[name], nil
	}
}

func resolveNodes(p graphql.ResolveParams) (any, error) {
	conn, ok := p.Source.(interface{ Nodes() []entities.Record })
	if !ok {
		return nil, fmt.Errorf("unexpected source %T for field %s", p.Source, p.Info.FieldName)
	}
	return conn.Nodes(), nil
}

func (b *SchemaBuilder) resolveReadAll(def *entities.EntityType) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		sr, err := parseSearch(def, p.Args[argSearch])
		if err != nil {
			return nil, wrapError(err)
		}
		order, err := parseOrder(p.Args[argOrder])
		if err != nil {
			return nil, wrapError(err)
		}
		recs, err := b.svc.ReadAll(p.Context, def.Name, sr, order, parseOffsetWindow(p.Args[argPagination]))
		return recs, wrapError(err)
	}
}

func (b *SchemaBuilder) resolveReadAllCursor(def *entities.EntityType) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		sr, err := parseSearch(def, p.Args[argSearch])
		if err != nil {
			return nil, wrapError(err)
		}
		order, err := parseOrder(p.Args[argOrder])
		if err != nil {
			return nil, wrapError(err)
		}
		conn, err := b.svc.ReadAllCursor(p.Context, def.Name, sr, order, parseCursorWindow(p.Args[argPagination]))
		if err != nil {
			return nil, wrapError(err)
		}
		return conn, nil
	}
}

func (b *SchemaBuilder) resolveReadOne(def *entities.EntityType) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		id, _ := p.Args[argID].(string)
		return record(b.svc.ReadOne(p.Context, def.Name, id))
	}
}

func (b *SchemaBuilder) resolveCount(def *entities.EntityType) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		sr, err := parseSearch(def, p.Args[argSearch])
		if err != nil {
			return nil, wrapError(err)
		}
		n, err := b.svc.Count(p.Context, def.Name, sr)
		return n, wrapError(err)
	}
}

func (b *SchemaBuilder) resolveCSVTemplate(def *entities.EntityType) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		header, err := b.svc.CSVTemplate(p.Context, def.Name)
		if err != nil {
			return nil, wrapError(err)
		}
		return []string{strings.TrimRight(header, "\r\n")}, nil
	}
}

func (b *SchemaBuilder) resolveAdd(def *entities.EntityType) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		return record(b.svc.AddOne(p.Context, def.Name, services.AddInput{
			Fields:             parseFields(def, p.Args),
			Add:                parseAssociations(def, p.Args, addArg),
			SkipExistenceCheck: boolArg(p.Args, argSkipChecks),
		}))
	}
}

func (b *SchemaBuilder) resolveUpdate(def *entities.EntityType) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		fields := parseFields(def, p.Args)
		id := fields.ID(def.IDAttribute)
		delete(fields, def.IDAttribute)
		return record(b.svc.UpdateOne(p.Context, def.Name, id, services.UpdateInput{
			Fields:             fields,
			Add:                parseAssociations(def, p.Args, addArg),
			Remove:             parseAssociations(def, p.Args, removeArg),
			SkipExistenceCheck: boolArg(p.Args, argSkipChecks),
		}))
	}
}

func (b *SchemaBuilder) resolveDelete(def *entities.EntityType) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		id, _ := p.Args[argID].(string)
		msg, err := b.svc.DeleteOne(p.Context, def.Name, id)
		if err != nil {
			return nil, wrapError(err)
		}
		return msg, nil
	}
}

func (b *SchemaBuilder) resolveBulkAddCSV(def *entities.EntityType) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		data, _ := p.Args[argCSV].(string)
		email, _ := p.Args[argEmail].(string)
		jobID, err := b.svc.BulkAddCSV(p.Context, def.Name, []byte(data), email)
		if err != nil {
			return nil, wrapError(err)
		}
		return fmt.Sprintf("CSV import of %s started as job %s", def.Name, jobID), nil
	}
}

type bulkFn func(ctx context.Context, entityType, relation string, pairs []association.Pair, skipCheck bool) (string, error)

func (b *SchemaBuilder) resolveBulk(def *entities.EntityType, rel *entities.Relation, fn bulkFn) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		pairs, err := parsePairs(def, rel, p.Args[argBulkInput])
		if err != nil {
			return nil, wrapError(err)
		}
		msg, err := fn(p.Context, def.Name, rel.Name, pairs, boolArg(p.Args, argSkipChecks))
		if err != nil {
			return nil, wrapError(err)
		}
		return msg, nil
	}
}

func (b *SchemaBuilder) resolveRelatedOne(def *entities.EntityType, rel *entities.Relation) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		rec, err := source(p)
		if err != nil {
			return nil, err
		}
		return record(b.svc.ReadRelatedOne(p.Context, def.Name, rec, rel.Name))
	}
}

func (b *SchemaBuilder) resolveRelatedFiltered(def *entities.EntityType, rel *entities.Relation) graphql.FieldResolveFn {
	target := b.schema.GetEntity(rel.TargetType)
	return func(p graphql.ResolveParams) (any, error) {
		rec, err := source(p)
		if err != nil {
			return nil, err
		}
		sr, err := parseSearch(target, p.Args[argSearch])
		if err != nil {
			return nil, wrapError(err)
		}
		order, err := parseOrder(p.Args[argOrder])
		if err != nil {
			return nil, wrapError(err)
		}
		recs, err := b.svc.ReadRelatedFiltered(p.Context, def.Name, rec, rel.Name, sr, order, parseOffsetWindow(p.Args[argPagination]))
		return recs, wrapError(err)
	}
}

func (b *SchemaBuilder) resolveCountRelated(def *entities.EntityType, rel *entities.Relation) graphql.FieldResolveFn {
	target := b.schema.GetEntity(rel.TargetType)
	return func(p graphql.ResolveParams) (any, error) {
		rec, err := source(p)
		if err != nil {
			return nil, err
		}
		sr, err := parseSearch(target, p.Args[argSearch])
		if err != nil {
			return nil, wrapError(err)
		}
		n, err := b.svc.CountRelated(p.Context, def.Name, rec, rel.Name, sr)
		return n, wrapError(err)
	}
}

func (b *SchemaBuilder) resolveRelatedConnection(def *entities.EntityType, rel *entities.Relation) graphql.FieldResolveFn {
	target := b.schema.GetEntity(rel.TargetType)
	return func(p graphql.ResolveParams) (any, error) {
		rec, err := source(p)
		if err != nil {
			return nil, err
		}
		sr, err := parseSearch(target, p.Args[argSearch])
		if err != nil {
			return nil, wrapError(err)
		}
		order, err := parseOrder(p.Args[argOrder])
		if err != nil {
			return nil, wrapError(err)
		}
		conn, err := b.svc.ReadRelatedConnection(p.Context, def.Name, rec, rel.Name, sr, order, parseCursorWindow(p.Args[argPagination]))
		if err != nil {
			return nil, wrapError(err)
		}
		return conn, nil
	}
}
