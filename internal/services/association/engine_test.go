package association

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asakaida/datagraph/internal/entities"
	"github.com/asakaida/datagraph/internal/repositories"
	"github.com/asakaida/datagraph/internal/repositories/memstore"
	"github.com/asakaida/datagraph/internal/search"
	"github.com/asakaida/datagraph/internal/services/loader"
	"github.com/asakaida/datagraph/internal/services/validation"
	"github.com/asakaida/datagraph/internal/testutil"
)

type fixture struct {
	engine *Engine
	reg    repositories.StaticRegistry
}

func setup(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	schema := testutil.Schema(t)
	reg := memstore.NewRegistry(schema)
	ctx := context.Background()

	seed := map[string][]entities.Record{
		"study":               {{"id": "S1", "name": "drought"}, {"id": "S2", "name": "flood"}},
		"comment":             {{"id": "C1"}, {"id": "C2"}, {"id": "C3"}},
		"material":            {{"id": "M1"}, {"id": "M2"}},
		"ontology_annotation": {{"id": "A1"}, {"id": "A2"}},
	}
	for entityType, records := range seed {
		for _, rec := range records {
			_, err := reg[entityType].CreateInTransaction(ctx, rec)
			require.NoError(t, err)
		}
	}
	return &fixture{engine: NewEngine(schema, reg, nil, opts...), reg: reg}
}

func (f *fixture) load(t *testing.T, entityType, id string) entities.Record {
	t.Helper()
	rec, err := repositories.FindByID(context.Background(), f.reg[entityType], "id", id)
	require.NoError(t, err)
	require.NotNil(t, rec, "%s %s", entityType, id)
	return rec
}

func TestAddToOne_KeyOnSelf(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c1 := f.load(t, "comment", "C1")

	require.NoError(t, f.engine.AddToOne(ctx, "comment", c1, "study", "S1"))
	assert.Equal(t, "S1", c1["study_comments_fk"], "mirrored in memory")
	assert.Equal(t, "S1", f.load(t, "comment", "C1")["study_comments_fk"])

	t.Run("remove with stale target is ignored", func(t *testing.T) {
		require.NoError(t, f.engine.RemoveFromOne(ctx, "comment", c1, "study", "S2"))
		assert.Equal(t, "S1", c1["study_comments_fk"])
		assert.Equal(t, "S1", f.load(t, "comment", "C1")["study_comments_fk"])
	})

	t.Run("remove current target", func(t *testing.T) {
		require.NoError(t, f.engine.RemoveFromOne(ctx, "comment", c1, "study", "S1"))
		assert.Nil(t, c1["study_comments_fk"])
		assert.Nil(t, f.load(t, "comment", "C1")["study_comments_fk"])
	})

	t.Run("missing record", func(t *testing.T) {
		err := f.engine.AddToOne(ctx, "comment", entities.Record{"id": "C9"}, "study", "S1")
		assert.ErrorIs(t, err, entities.ErrNotFound)
	})
}

func TestAddToOne_KeyOnTarget(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a1 := f.load(t, "ontology_annotation", "A1")

	require.NoError(t, f.engine.AddToOne(ctx, "ontology_annotation", a1, "main_material", "M1"))
	assert.Equal(t, "A1", f.load(t, "material", "M1")["main_annotation_fk"])

	require.NoError(t, f.engine.AddToOne(ctx, "ontology_annotation", a1, "main_material", "M2"))
	assert.Equal(t, "A1", f.load(t, "material", "M2")["main_annotation_fk"])
	assert.Nil(t, f.load(t, "material", "M1")["main_annotation_fk"], "previous target released")

	require.NoError(t, f.engine.RemoveFromOne(ctx, "ontology_annotation", a1, "main_material", "M1"))
	assert.Equal(t, "A1", f.load(t, "material", "M2")["main_annotation_fk"], "guard keeps other target")

	require.NoError(t, f.engine.RemoveFromOne(ctx, "ontology_annotation", a1, "main_material", "M2"))
	assert.Nil(t, f.load(t, "material", "M2")["main_annotation_fk"])
}

func TestAddToMany_UnionIdempotence(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	m1 := f.load(t, "material", "M1")

	require.NoError(t, f.engine.AddToMany(ctx, "material", m1, "annotations", []string{"A1"}, true))
	require.NoError(t, f.engine.AddToMany(ctx, "material", m1, "annotations", []string{"A1"}, true))
	require.NoError(t, f.engine.AddToMany(ctx, "material", m1, "annotations", []string{"A2", "A1", "A2"}, true))

	assert.Equal(t, []any{"A1", "A2"}, m1["ontology_annotation_ids"])
	assert.Equal(t, []any{"A1", "A2"}, f.load(t, "material", "M1")["ontology_annotation_ids"])
	assert.Equal(t, []any{"M1"}, f.load(t, "ontology_annotation", "A1")["material_ids"])
}

func TestRemoveFromMany_DifferenceSafety(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	m1 := f.load(t, "material", "M1")

	require.NoError(t, f.engine.AddToMany(ctx, "material", m1, "annotations", []string{"A1"}, false))
	require.NoError(t, f.engine.RemoveFromMany(ctx, "material", m1, "annotations", []string{"A2"}, false))

	assert.Equal(t, []any{"A1"}, m1["ontology_annotation_ids"])
	assert.Equal(t, []any{"A1"}, f.load(t, "material", "M1")["ontology_annotation_ids"])
}

func TestToMany_InverseConsistency(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	m1 := f.load(t, "material", "M1")
	m2 := f.load(t, "material", "M2")

	require.NoError(t, f.engine.AddToMany(ctx, "material", m1, "annotations", []string{"A1", "A2"}, true))
	require.NoError(t, f.engine.AddToMany(ctx, "material", m2, "annotations", []string{"A1"}, true))

	assert.Equal(t, []any{"M1", "M2"}, f.load(t, "ontology_annotation", "A1")["material_ids"])
	assert.Equal(t, []any{"M1"}, f.load(t, "ontology_annotation", "A2")["material_ids"])

	// the relation works from the other side too
	a2 := f.load(t, "ontology_annotation", "A2")
	require.NoError(t, f.engine.AddToMany(ctx, "ontology_annotation", a2, "materials", []string{"M2"}, true))
	assert.Equal(t, []any{"A1", "A2"}, f.load(t, "material", "M2")["ontology_annotation_ids"])

	require.NoError(t, f.engine.RemoveFromMany(ctx, "material", m1, "annotations", []string{"A1"}, true))
	assert.Equal(t, []any{"A2"}, m1["ontology_annotation_ids"])
	assert.Equal(t, []any{"M2"}, f.load(t, "ontology_annotation", "A1")["material_ids"])

	t.Run("without inverse handling only one side changes", func(t *testing.T) {
		require.NoError(t, f.engine.RemoveFromMany(ctx, "material", m2, "annotations", []string{"A1"}, false))
		assert.Equal(t, []any{"M2"}, f.load(t, "ontology_annotation", "A1")["material_ids"])
	})
}

func TestAddToMany_MissingInverseTargetIsBenign(t *testing.T) {
	f := setup(t)
	reporter := validation.NewReporter()
	ctx := validation.WithReporter(context.Background(), reporter)
	m1 := f.load(t, "material", "M1")

	require.NoError(t, f.engine.AddToMany(ctx, "material", m1, "annotations", []string{"A1", "A9"}, true))
	assert.Equal(t, []any{"A1", "A9"}, m1["ontology_annotation_ids"])
	require.Len(t, reporter.Errors(), 1)
	assert.Contains(t, reporter.Errors()[0].Error(), "A9")
}

func TestAddToMany_KeyOnTarget(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	s1 := f.load(t, "study", "S1")

	require.NoError(t, f.engine.AddToMany(ctx, "study", s1, "comments", []string{"C1", "C2"}, true))
	assert.Equal(t, "S1", f.load(t, "comment", "C1")["study_comments_fk"])
	assert.Equal(t, "S1", f.load(t, "comment", "C2")["study_comments_fk"])

	require.NoError(t, f.engine.RemoveFromMany(ctx, "study", s1, "comments", []string{"C1"}, true))
	assert.Nil(t, f.load(t, "comment", "C1")["study_comments_fk"])
	assert.Equal(t, "S1", f.load(t, "comment", "C2")["study_comments_fk"])
}

func TestCardinalityMismatch(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	rec := f.load(t, "study", "S1")

	assert.ErrorIs(t, f.engine.AddToOne(ctx, "study", rec, "comments", "C1"), entities.ErrInvalidInput)
	assert.ErrorIs(t, f.engine.AddToMany(ctx, "comment", f.load(t, "comment", "C1"), "study", []string{"S1"}, true), entities.ErrInvalidInput)
	assert.ErrorIs(t, f.engine.AddToOne(ctx, "study", rec, "nope", "C1"), entities.ErrInvalidInput)
}

func TestStudyCommentScenario(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	err := f.engine.BulkAssociate(ctx, "study", "comments", []Pair{
		{ID: "C1", Key: "S1"},
		{ID: "C2", Key: "S1"},
	}, false)
	require.NoError(t, err)
	assert.Equal(t, "S1", f.load(t, "comment", "C1")["study_comments_fk"])
	assert.Equal(t, "S1", f.load(t, "comment", "C2")["study_comments_fk"])

	s1 := f.load(t, "study", "S1")
	related, err := f.engine.RelatedSearch("study", "comments", s1)
	require.NoError(t, err)
	n, err := f.reg["comment"].Count(ctx, related)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	err = f.engine.ValidateDeletion(ctx, "study", "S1")
	var rejected *entities.DeletionRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, int64(2), rejected.Count)
	assert.Contains(t, err.Error(), "NOT valid for deletion")

	require.NoError(t, f.engine.BulkDisAssociate(ctx, "study", "comments", []Pair{{ID: "C1", Key: "S1"}}, false))
	assert.ErrorIs(t, f.engine.ValidateDeletion(ctx, "study", "S1"), entities.ErrDeletionRejected)

	require.NoError(t, f.engine.BulkDisAssociate(ctx, "comment", "study", []Pair{{ID: "C2", Key: "S1"}}, false))
	assert.NoError(t, f.engine.ValidateDeletion(ctx, "study", "S1"))
}

func TestValidateDeletion_EveryRelationShape(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	assert.NoError(t, f.engine.ValidateDeletion(ctx, "material", "M1"))

	m1 := f.load(t, "material", "M1")
	require.NoError(t, f.engine.AddToOne(ctx, "material", m1, "study", "S2"))
	assert.ErrorIs(t, f.engine.ValidateDeletion(ctx, "material", "M1"), entities.ErrDeletionRejected, "to-one key on self")
	assert.ErrorIs(t, f.engine.ValidateDeletion(ctx, "study", "S2"), entities.ErrDeletionRejected, "to-many key on target")
	require.NoError(t, f.engine.RemoveFromOne(ctx, "material", m1, "study", "S2"))

	require.NoError(t, f.engine.AddToMany(ctx, "material", m1, "annotations", []string{"A1"}, true))
	assert.ErrorIs(t, f.engine.ValidateDeletion(ctx, "material", "M1"), entities.ErrDeletionRejected, "array key")
	assert.ErrorIs(t, f.engine.ValidateDeletion(ctx, "ontology_annotation", "A1"), entities.ErrDeletionRejected, "inverse array key")
	require.NoError(t, f.engine.RemoveFromMany(ctx, "material", m1, "annotations", []string{"A1"}, true))

	a2 := f.load(t, "ontology_annotation", "A2")
	require.NoError(t, f.engine.AddToOne(ctx, "ontology_annotation", a2, "main_material", "M1"))
	assert.ErrorIs(t, f.engine.ValidateDeletion(ctx, "ontology_annotation", "A2"), entities.ErrDeletionRejected, "to-one key on target")
	require.NoError(t, f.engine.RemoveFromOne(ctx, "ontology_annotation", a2, "main_material", "M1"))

	assert.NoError(t, f.engine.ValidateDeletion(ctx, "material", "M1"))
	assert.NoError(t, f.engine.ValidateDeletion(ctx, "ontology_annotation", "A1"))
	assert.ErrorIs(t, f.engine.ValidateDeletion(ctx, "material", "M9"), entities.ErrNotFound)
}

func TestBulkAssociate_Existence(t *testing.T) {
	f := setup(t, WithConcurrency(1))
	ctx := context.Background()

	err := f.engine.BulkAssociate(ctx, "comment", "study", []Pair{{ID: "C1", Key: "S1"}, {ID: "C9", Key: "S1"}}, false)
	var notFound *entities.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "C9", notFound.ID)
	assert.Nil(t, f.load(t, "comment", "C1")["study_comments_fk"], "nothing written when the check fails")

	err = f.engine.BulkAssociate(ctx, "comment", "study", []Pair{{ID: "C1", Key: "S9"}}, false)
	assert.ErrorIs(t, err, entities.ErrNotFound, "key must exist too")

	err = f.engine.BulkAssociate(ctx, "comment", "study", []Pair{{ID: "C1", Key: "S1"}, {ID: "C9", Key: "S1"}}, true)
	assert.ErrorIs(t, err, entities.ErrNotFound)
	assert.Equal(t, "S1", f.load(t, "comment", "C1")["study_comments_fk"], "completed updates stay committed")
}

func TestBulkDisAssociate_KeepsReassigned(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.engine.BulkAssociate(ctx, "comment", "study", []Pair{{ID: "C1", Key: "S1"}, {ID: "C2", Key: "S2"}}, false))
	require.NoError(t, f.engine.BulkDisAssociate(ctx, "comment", "study", []Pair{{ID: "C1", Key: "S1"}, {ID: "C2", Key: "S1"}}, false))

	assert.Nil(t, f.load(t, "comment", "C1")["study_comments_fk"])
	assert.Equal(t, "S2", f.load(t, "comment", "C2")["study_comments_fk"])
}

func TestWritesClearRequestLoader(t *testing.T) {
	f := setup(t)
	l := loader.New(testutil.Schema(t), f.reg)
	ctx := loader.WithLoader(context.Background(), l)

	cached := func(entityType, id string) entities.Record {
		t.Helper()
		rec, err := l.Load(ctx, entityType, id)
		require.NoError(t, err)
		require.NotNil(t, rec)
		return rec
	}

	t.Run("bulk associate and disassociate", func(t *testing.T) {
		assert.Nil(t, cached("comment", "C1")["study_comments_fk"])
		require.NoError(t, f.engine.BulkAssociate(ctx, "comment", "study", []Pair{{ID: "C1", Key: "S1"}}, false))
		assert.Equal(t, "S1", cached("comment", "C1")["study_comments_fk"])

		require.NoError(t, f.engine.BulkDisAssociate(ctx, "comment", "study", []Pair{{ID: "C1", Key: "S1"}}, false))
		assert.Nil(t, cached("comment", "C1")["study_comments_fk"])
	})

	t.Run("inverse array", func(t *testing.T) {
		assert.Nil(t, cached("ontology_annotation", "A1")["material_ids"])
		m1 := f.load(t, "material", "M1")
		require.NoError(t, f.engine.AddToMany(ctx, "material", m1, "annotations", []string{"A1"}, true))
		assert.Equal(t, []any{"M1"}, cached("ontology_annotation", "A1")["material_ids"])

		require.NoError(t, f.engine.RemoveFromMany(ctx, "material", m1, "annotations", []string{"A1"}, true))
		assert.Empty(t, cached("ontology_annotation", "A1")["material_ids"])
	})

	t.Run("key on target", func(t *testing.T) {
		assert.Nil(t, cached("material", "M2")["main_annotation_fk"])
		a2 := f.load(t, "ontology_annotation", "A2")
		require.NoError(t, f.engine.AddToOne(ctx, "ontology_annotation", a2, "main_material", "M2"))
		assert.Equal(t, "A2", cached("material", "M2")["main_annotation_fk"])

		require.NoError(t, f.engine.RemoveFromOne(ctx, "ontology_annotation", a2, "main_material", "M2"))
		assert.Nil(t, cached("material", "M2")["main_annotation_fk"])
	})
}

func TestBulkAssociate_ArrayRelationRejected(t *testing.T) {
	f := setup(t)
	err := f.engine.BulkAssociate(context.Background(), "material", "annotations", []Pair{{ID: "M1", Key: "A1"}}, true)
	assert.ErrorIs(t, err, entities.ErrInvalidInput)
}

func TestRelatedSearch(t *testing.T) {
	f := setup(t)

	tests := []struct {
		name       string
		entityType string
		relation   string
		rec        entities.Record
		want       *search.Search
	}{
		{"key on target", "study", "comments", entities.Record{"id": "S1"}, search.Eq("study_comments_fk", "S1")},
		{"scalar key on self", "comment", "study", entities.Record{"id": "C1", "study_comments_fk": "S1"}, search.Eq("id", "S1")},
		{"null key on self", "comment", "study", entities.Record{"id": "C1", "study_comments_fk": nil}, search.In("id")},
		{"array key", "material", "annotations", entities.Record{"id": "M1", "ontology_annotation_ids": []any{"A1", "A2"}}, search.In("id", "A1", "A2")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.engine.RelatedSearch(tt.entityType, tt.relation, tt.rec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type countingObserver struct {
	mu   sync.Mutex
	ops  map[string]int
	errs int
}

func (o *countingObserver) ObserveAssociation(entityType, relation, operation string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ops[entityType+"."+relation+"."+operation]++
	if err != nil {
		o.errs++
	}
}

func TestObserver(t *testing.T) {
	obs := &countingObserver{ops: map[string]int{}}
	f := setup(t, WithObserver(obs))
	ctx := context.Background()

	m1 := f.load(t, "material", "M1")
	require.NoError(t, f.engine.AddToMany(ctx, "material", m1, "annotations", []string{"A1"}, true))
	_ = f.engine.BulkAssociate(ctx, "comment", "study", []Pair{{ID: "C9", Key: "S1"}}, false)

	assert.Equal(t, 1, obs.ops["material.annotations.add"])
	assert.Equal(t, 1, obs.ops["ontology_annotation.materials.add"], "inverse update is observed")
	assert.Equal(t, 1, obs.ops["comment.study.bulk_associate"])
	assert.Equal(t, 1, obs.errs)
}
