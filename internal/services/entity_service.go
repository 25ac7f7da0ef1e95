package services

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/asakaida/datagraph/internal/entities"
	"github.com/asakaida/datagraph/internal/repositories"
	"github.com/asakaida/datagraph/internal/search"
	"github.com/asakaida/datagraph/internal/services/association"
	"github.com/asakaida/datagraph/internal/services/authorization"
	"github.com/asakaida/datagraph/internal/services/importer"
	"github.com/asakaida/datagraph/internal/services/limits"
	"github.com/asakaida/datagraph/internal/services/loader"
	"github.com/asakaida/datagraph/internal/services/pagination"
	"github.com/asakaida/datagraph/internal/services/validation"
)

// Messages returned by mutations without a record result
const (
	MessageDeleted = "Item successfully deleted"
	MessageUpdated = "Records successfully updated!"
)

// AddInput is a new record with the associations to create along with it
type AddInput struct {
	Fields entities.Record
	// Add maps relation name to target ids; to-one relations take exactly one id
	Add map[string][]string
	// SkipExistenceCheck skips checking that the target ids exist
	SkipExistenceCheck bool
}

// UpdateInput changes fields of a record and adds or removes associations
type UpdateInput struct {
	Fields             entities.Record
	Add                map[string][]string
	Remove             map[string][]string
	SkipExistenceCheck bool
}

// EntityServiceInterface defines the operations the resolvers call
type EntityServiceInterface interface {
	ReadOne(ctx context.Context, entityType, id string) (entities.Record, error)
	ReadAll(ctx context.Context, entityType string, s *search.Search, order []search.Order, w pagination.Window) ([]entities.Record, error)
	ReadAllCursor(ctx context.Context, entityType string, s *search.Search, order []search.Order, w pagination.Window) (*pagination.Connection, error)
	Count(ctx context.Context, entityType string, s *search.Search) (int64, error)
	AddOne(ctx context.Context, entityType string, in AddInput) (entities.Record, error)
	UpdateOne(ctx context.Context, entityType, id string, in UpdateInput) (entities.Record, error)
	DeleteOne(ctx context.Context, entityType, id string) (string, error)
	BulkAssociate(ctx context.Context, entityType, relation string, pairs []association.Pair, skipCheck bool) (string, error)
	BulkDisAssociate(ctx context.Context, entityType, relation string, pairs []association.Pair, skipCheck bool) (string, error)
	ReadRelatedOne(ctx context.Context, entityType string, rec entities.Record, relation string) (entities.Record, error)
	ReadRelatedFiltered(ctx context.Context, entityType string, rec entities.Record, relation string, s *search.Search, order []search.Order, w pagination.Window) ([]entities.Record, error)
	ReadRelatedConnection(ctx context.Context, entityType string, rec entities.Record, relation string, s *search.Search, order []search.Order, w pagination.Window) (*pagination.Connection, error)
	CountRelated(ctx context.Context, entityType string, rec entities.Record, relation string, s *search.Search) (int64, error)
	CSVTemplate(ctx context.Context, entityType string) (string, error)
	BulkAddCSV(ctx context.Context, entityType string, data []byte, recipient string) (string, error)
}

// EntityService serves reads and writes of every entity type of the schema
type EntityService struct {
	schema      *entities.Schema
	registry    repositories.Registry
	pages       *pagination.Engine
	assoc       *association.Engine
	validator   validation.Validator
	auth        authorization.Authorizer
	importer    *importer.Importer
	logger      *zap.Logger
	concurrency int
}

// NewEntityService creates a new EntityService. A nil authorizer allows everything.
func NewEntityService(
	schema *entities.Schema,
	registry repositories.Registry,
	pages *pagination.Engine,
	assoc *association.Engine,
	validator validation.Validator,
	auth authorization.Authorizer,
	imp *importer.Importer,
	logger *zap.Logger,
) *EntityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if auth == nil {
		auth = authorization.AllowAll{}
	}
	if validator == nil {
		validator = validation.NewSchemaValidator(logger)
	}
	return &EntityService{
		schema:      schema,
		registry:    registry,
		pages:       pages,
		assoc:       assoc,
		validator:   validator,
		auth:        auth,
		importer:    imp,
		logger:      logger,
		concurrency: association.DefaultConcurrency,
	}
}

// SetConcurrency bounds the association updates one operation runs at once
func (s *EntityService) SetConcurrency(n int) {
	if n > 0 {
		s.concurrency = n
	}
}

// Schema returns the schema the service was built for
func (s *EntityService) Schema() *entities.Schema {
	return s.schema
}

func (s *EntityService) resolve(entityType string) (*entities.EntityType, repositories.Storage, error) {
	def, err := s.schema.MustEntity(entityType)
	if err != nil {
		return nil, nil, err
	}
	store, err := s.registry.Storage(entityType)
	if err != nil {
		return nil, nil, err
	}
	return def, store, nil
}

// ReadOne returns the record with the given id. Lookups go through the request loader
// when there is one.
func (s *EntityService) ReadOne(ctx context.Context, entityType, id string) (entities.Record, error) {
	if err := s.auth.Check(ctx, entityType, authorization.PermissionRead); err != nil {
		return nil, err
	}
	def, err := s.schema.MustEntity(entityType)
	if err != nil {
		return nil, err
	}
	budget := limits.FromContext(ctx)
	if err := budget.Check(1, def.Name+" readOne"); err != nil {
		return nil, err
	}

	rec, err := s.load(ctx, def, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, entities.NewNotFoundError(def.Name, id)
	}
	budget.Consume(1)

	out := s.validator.ValidateAfterRead(ctx, def, []entities.Record{rec})
	if len(out) == 0 {
		return nil, entities.NewNotFoundError(def.Name, id)
	}
	return out[0], nil
}

func (s *EntityService) load(ctx context.Context, def *entities.EntityType, id string) (entities.Record, error) {
	if l := loader.From(ctx); l != nil {
		return l.Load(ctx, def.Name, id)
	}
	store, err := s.registry.Storage(def.Name)
	if err != nil {
		return nil, err
	}
	rec, err := repositories.FindByID(ctx, store, def.IDAttribute, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s %s: %w", def.Name, id, err)
	}
	return rec, nil
}

// ReadAll reads records in offset mode
func (s *EntityService) ReadAll(ctx context.Context, entityType string, sr *search.Search, order []search.Order, w pagination.Window) ([]entities.Record, error) {
	if err := s.auth.Check(ctx, entityType, authorization.PermissionRead); err != nil {
		return nil, err
	}
	return s.pages.ReadAll(ctx, entityType, sr, order, w)
}

// ReadAllCursor reads one cursor page
func (s *EntityService) ReadAllCursor(ctx context.Context, entityType string, sr *search.Search, order []search.Order, w pagination.Window) (*pagination.Connection, error) {
	if err := s.auth.Check(ctx, entityType, authorization.PermissionRead); err != nil {
		return nil, err
	}
	return s.pages.FetchPage(ctx, entityType, sr, order, w)
}

// Count returns the number of records matching sr
func (s *EntityService) Count(ctx context.Context, entityType string, sr *search.Search) (int64, error) {
	if err := s.auth.Check(ctx, entityType, authorization.PermissionRead); err != nil {
		return 0, err
	}
	return s.pages.CountRecords(ctx, entityType, sr)
}

// AddOne validates and stores a new record, then creates its associations
func (s *EntityService) AddOne(ctx context.Context, entityType string, in AddInput) (entities.Record, error) {
	if err := s.auth.Check(ctx, entityType, authorization.PermissionCreate); err != nil {
		return nil, err
	}
	def, store, err := s.resolve(entityType)
	if err != nil {
		return nil, err
	}
	if err := s.checkAssociationInput(def, in.Add, nil); err != nil {
		return nil, err
	}
	fields := in.Fields
	if fields == nil {
		fields = entities.Record{}
	}
	if err := s.validator.ValidateForCreate(ctx, def, fields); err != nil {
		return nil, err
	}
	if !in.SkipExistenceCheck {
		if err := s.checkExistence(ctx, def, in.Add); err != nil {
			return nil, err
		}
	}

	rec, err := store.CreateInTransaction(ctx, fields)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", def.Name, err)
	}
	id := rec.ID(def.IDAttribute)
	s.logger.Debug("created record", zap.String("entity", def.Name), zap.String("id", id))

	if len(in.Add) == 0 {
		return rec, nil
	}
	if err := s.applyAssociations(ctx, def, rec, in.Add, true); err != nil {
		return nil, err
	}
	return s.reload(ctx, def, store, id)
}

// UpdateOne changes the fields of a record, then removes and adds associations
func (s *EntityService) UpdateOne(ctx context.Context, entityType, id string, in UpdateInput) (entities.Record, error) {
	if err := s.auth.Check(ctx, entityType, authorization.PermissionUpdate); err != nil {
		return nil, err
	}
	def, store, err := s.resolve(entityType)
	if err != nil {
		return nil, err
	}
	if err := s.checkAssociationInput(def, in.Add, in.Remove); err != nil {
		return nil, err
	}
	if _, ok := in.Fields[def.IDAttribute]; ok && in.Fields.ID(def.IDAttribute) != id {
		return nil, entities.NewInvalidInputError(def.IDAttribute, "the id of a record cannot be changed")
	}
	fields := make(entities.Record, len(in.Fields))
	for k, v := range in.Fields {
		if k != def.IDAttribute {
			fields[k] = v
		}
	}
	if err := s.validator.ValidateForUpdate(ctx, def, fields); err != nil {
		return nil, err
	}

	rec, err := repositories.FindByID(ctx, store, def.IDAttribute, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s %s: %w", def.Name, id, err)
	}
	if rec == nil {
		return nil, entities.NewNotFoundError(def.Name, id)
	}
	if !in.SkipExistenceCheck {
		if err := s.checkExistence(ctx, def, in.Add); err != nil {
			return nil, err
		}
	}

	if len(fields) > 0 {
		updated, err := store.UpdateByID(ctx, id, fields)
		if err != nil {
			return nil, fmt.Errorf("failed to update %s %s: %w", def.Name, id, err)
		}
		if updated == nil {
			return nil, entities.NewNotFoundError(def.Name, id)
		}
		rec = updated
	}
	if l := loader.From(ctx); l != nil {
		l.Clear(def.Name, id)
	}

	if len(in.Add) == 0 && len(in.Remove) == 0 {
		return rec, nil
	}
	if err := s.applyAssociations(ctx, def, rec, in.Remove, false); err != nil {
		return nil, err
	}
	if err := s.applyAssociations(ctx, def, rec, in.Add, true); err != nil {
		return nil, err
	}
	return s.reload(ctx, def, store, id)
}

// DeleteOne removes a record that has no associations left
func (s *EntityService) DeleteOne(ctx context.Context, entityType, id string) (string, error) {
	if err := s.auth.Check(ctx, entityType, authorization.PermissionDelete); err != nil {
		return "", err
	}
	def, store, err := s.resolve(entityType)
	if err != nil {
		return "", err
	}
	if err := s.assoc.ValidateDeletion(ctx, def.Name, id); err != nil {
		return "", err
	}
	deleted, err := store.DeleteByID(ctx, id)
	if err != nil {
		return "", fmt.Errorf("failed to delete %s %s: %w", def.Name, id, err)
	}
	if !deleted {
		return "", entities.NewNotFoundError(def.Name, id)
	}
	if l := loader.From(ctx); l != nil {
		l.Clear(def.Name, id)
	}
	s.logger.Debug("deleted record", zap.String("entity", def.Name), zap.String("id", id))
	return MessageDeleted, nil
}

// BulkAssociate sets the scalar key of many records at once
func (s *EntityService) BulkAssociate(ctx context.Context, entityType, relation string, pairs []association.Pair, skipCheck bool) (string, error) {
	if err := s.auth.Check(ctx, entityType, authorization.PermissionUpdate); err != nil {
		return "", err
	}
	if err := s.assoc.BulkAssociate(ctx, entityType, relation, pairs, skipCheck); err != nil {
		return "", err
	}
	return MessageUpdated, nil
}

// BulkDisAssociate clears the scalar key of many records at once
func (s *EntityService) BulkDisAssociate(ctx context.Context, entityType, relation string, pairs []association.Pair, skipCheck bool) (string, error) {
	if err := s.auth.Check(ctx, entityType, authorization.PermissionUpdate); err != nil {
		return "", err
	}
	if err := s.assoc.BulkDisAssociate(ctx, entityType, relation, pairs, skipCheck); err != nil {
		return "", err
	}
	return MessageUpdated, nil
}

// ReadRelatedOne returns the target of a to-one relation of rec, or nil.
// A dangling key or a to-one relation matched by several records is reported as a
// benign error.
func (s *EntityService) ReadRelatedOne(ctx context.Context, entityType string, rec entities.Record, relation string) (entities.Record, error) {
	def, rel, target, err := s.relation(entityType, relation)
	if err != nil {
		return nil, err
	}
	if rel.Cardinality != entities.ToOne {
		return nil, entities.NewInvalidInputError("relation", fmt.Sprintf("%s.%s is not a to-one relation", def.Name, rel.Name))
	}
	if err := s.auth.Check(ctx, target.Name, authorization.PermissionRead); err != nil {
		return nil, err
	}

	if rel.KeyLocation == entities.KeySelf {
		key := rec.ID(rel.ForeignKey)
		if key == "" {
			return nil, nil
		}
		found, err := s.load(ctx, target, key)
		if err != nil {
			return nil, err
		}
		if found == nil {
			validation.Report(ctx, s.logger, &validation.BenignError{
				EntityType: def.Name,
				ID:         rec.ID(def.IDAttribute),
				Message:    fmt.Sprintf("%s points at missing %s %s", rel.Name, target.Name, key),
			})
			return nil, nil
		}
		return s.afterRead(ctx, target, found), nil
	}

	store, err := s.registry.Storage(target.Name)
	if err != nil {
		return nil, err
	}
	found, err := store.Find(ctx, &repositories.Query{
		Search: association.RelatedSearch(def, target, rel, rec),
		Order:  []search.Order{{Field: target.IDAttribute, Direction: search.ASC}},
		Limit:  2,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s of %s: %w", rel.Name, def.Name, err)
	}
	switch len(found) {
	case 0:
		return nil, nil
	case 1:
	default:
		validation.Report(ctx, s.logger, &validation.BenignError{
			EntityType: def.Name,
			ID:         rec.ID(def.IDAttribute),
			Message:    fmt.Sprintf("not unique to_one association %s: more than one %s points at this record", rel.Name, target.Name),
		})
	}
	return s.afterRead(ctx, target, found[0]), nil
}

// ReadRelatedFiltered reads the records associated with rec in offset mode
func (s *EntityService) ReadRelatedFiltered(ctx context.Context, entityType string, rec entities.Record, relation string, sr *search.Search, order []search.Order, w pagination.Window) ([]entities.Record, error) {
	related, target, err := s.relatedSearch(entityType, rec, relation)
	if err != nil {
		return nil, err
	}
	return s.ReadAll(ctx, target.Name, search.And(related, sr), order, w)
}

// ReadRelatedConnection reads one cursor page of the records associated with rec
func (s *EntityService) ReadRelatedConnection(ctx context.Context, entityType string, rec entities.Record, relation string, sr *search.Search, order []search.Order, w pagination.Window) (*pagination.Connection, error) {
	related, target, err := s.relatedSearch(entityType, rec, relation)
	if err != nil {
		return nil, err
	}
	return s.ReadAllCursor(ctx, target.Name, search.And(related, sr), order, w)
}

// CountRelated counts the records associated with rec that match sr
func (s *EntityService) CountRelated(ctx context.Context, entityType string, rec entities.Record, relation string, sr *search.Search) (int64, error) {
	related, target, err := s.relatedSearch(entityType, rec, relation)
	if err != nil {
		return 0, err
	}
	return s.Count(ctx, target.Name, search.And(related, sr))
}

// CSVTemplate returns the CSV header expected by BulkAddCSV
func (s *EntityService) CSVTemplate(ctx context.Context, entityType string) (string, error) {
	if err := s.auth.Check(ctx, entityType, authorization.PermissionRead); err != nil {
		return "", err
	}
	def, err := s.schema.MustEntity(entityType)
	if err != nil {
		return "", err
	}
	return importer.Template(def), nil
}

// BulkAddCSV starts a background import and returns its job id
func (s *EntityService) BulkAddCSV(ctx context.Context, entityType string, data []byte, recipient string) (string, error) {
	if err := s.auth.Check(ctx, entityType, authorization.PermissionCreate); err != nil {
		return "", err
	}
	if s.importer == nil {
		return "", fmt.Errorf("csv import is not configured")
	}
	return s.importer.Start(ctx, entityType, data, recipient)
}

func (s *EntityService) relation(entityType, relation string) (*entities.EntityType, *entities.Relation, *entities.EntityType, error) {
	def, err := s.schema.MustEntity(entityType)
	if err != nil {
		return nil, nil, nil, err
	}
	rel := def.GetRelation(relation)
	if rel == nil {
		return nil, nil, nil, entities.NewInvalidInputError("relation", fmt.Sprintf("%s has no relation %s", def.Name, relation))
	}
	target, err := s.schema.MustEntity(rel.TargetType)
	if err != nil {
		return nil, nil, nil, err
	}
	return def, rel, target, nil
}

func (s *EntityService) relatedSearch(entityType string, rec entities.Record, relation string) (*search.Search, *entities.EntityType, error) {
	def, rel, target, err := s.relation(entityType, relation)
	if err != nil {
		return nil, nil, err
	}
	return association.RelatedSearch(def, target, rel, rec), target, nil
}

func (s *EntityService) afterRead(ctx context.Context, def *entities.EntityType, rec entities.Record) entities.Record {
	out := s.validator.ValidateAfterRead(ctx, def, []entities.Record{rec})
	if len(out) == 0 {
		return nil
	}
	return out[0]
}

func (s *EntityService) reload(ctx context.Context, def *entities.EntityType, store repositories.Storage, id string) (entities.Record, error) {
	rec, err := repositories.FindByID(ctx, store, def.IDAttribute, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s %s: %w", def.Name, id, err)
	}
	if rec == nil {
		return nil, entities.NewNotFoundError(def.Name, id)
	}
	return rec, nil
}

// checkAssociationInput rejects unknown relations and to-one inputs with other than one id
func (s *EntityService) checkAssociationInput(def *entities.EntityType, add, remove map[string][]string) error {
	for _, m := range []map[string][]string{add, remove} {
		for name, ids := range m {
			rel := def.GetRelation(name)
			if rel == nil {
				return entities.NewInvalidInputError("relation", fmt.Sprintf("%s has no relation %s", def.Name, name))
			}
			if rel.Cardinality == entities.ToOne && len(ids) > 1 {
				return entities.NewInvalidInputError(name, "a to-one relation takes a single id")
			}
		}
	}
	return nil
}

func (s *EntityService) checkExistence(ctx context.Context, def *entities.EntityType, add map[string][]string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, name := range sortedKeys(add) {
		rel := def.GetRelation(name)
		ids := add[name]
		g.Go(func() error {
			return s.assoc.ValidateExistence(gctx, rel.TargetType, ids)
		})
	}
	return g.Wait()
}

// applyAssociations runs one association update per relation concurrently. Each update
// works on its own copy of rec.
func (s *EntityService) applyAssociations(ctx context.Context, def *entities.EntityType, rec entities.Record, changes map[string][]string, add bool) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, name := range sortedKeys(changes) {
		rel := def.GetRelation(name)
		ids := changes[name]
		if len(ids) == 0 {
			continue
		}
		own := rec.Clone()
		g.Go(func() error {
			switch {
			case rel.Cardinality == entities.ToOne && add:
				return s.assoc.AddToOne(gctx, def.Name, own, rel.Name, ids[0])
			case rel.Cardinality == entities.ToOne:
				return s.assoc.RemoveFromOne(gctx, def.Name, own, rel.Name, ids[0])
			case add:
				return s.assoc.AddToMany(gctx, def.Name, own, rel.Name, ids, true)
			default:
				return s.assoc.RemoveFromMany(gctx, def.Name, own, rel.Name, ids, true)
			}
		})
	}
	return g.Wait()
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
