package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asakaida/datagraph/internal/entities"
	"github.com/asakaida/datagraph/internal/search"
	"github.com/asakaida/datagraph/internal/services/association"
	"github.com/asakaida/datagraph/internal/testutil"
)

func TestNaming(t *testing.T) {
	schema := testutil.Schema(t)
	annotation := schema.GetEntity("ontology_annotation")
	material := schema.GetEntity("material")
	comment := schema.GetEntity("comment")

	assert.Equal(t, "OntologyAnnotation", typeName(annotation))
	assert.Equal(t, "OntologyAnnotations", pluralTypeName(annotation))
	assert.Equal(t, "ontologyAnnotations", listField(annotation))
	assert.Equal(t, "studies", listField(schema.GetEntity("study")))

	main := material.GetRelation("main_annotation")
	assert.Equal(t, "mainAnnotation", relationField(main))
	assert.Equal(t, "addMainAnnotation", addArg(main))
	assert.Equal(t, "removeMainAnnotation", removeArg(main))
	assert.Equal(t, "countFilteredAnnotations", countField(material.GetRelation("annotations")))

	study := comment.GetRelation("study")
	assert.Equal(t, "bulkAssociateCommentWithStudyCommentsFk", bulkAssociateField(comment, study))
	assert.Equal(t, "bulkDisAssociateCommentWithStudyCommentsFk", bulkDisAssociateField(comment, study))
	assert.Equal(t, "bulkAssociationCommentWithStudyCommentsFkInput", bulkAssociationInputName(comment, study))

	assert.True(t, bulkAssociable(study))
	assert.False(t, bulkAssociable(material.GetRelation("annotations")))
	assert.False(t, bulkAssociable(annotation.GetRelation("main_material")))

	assert.True(t, isForeignKey(material, material.GetAttribute("ontology_annotation_ids")))
	assert.False(t, isForeignKey(material, material.GetAttribute("name")))
}

func TestParseSearch(t *testing.T) {
	def := testutil.Schema(t).GetEntity("material")

	tests := []struct {
		name    string
		input   any
		want    *search.Search
		wantErr string
	}{
		{"nil", nil, nil, ""},
		{
			"scalar is coerced",
			map[string]any{"field": "weight", "value": "2.5", "operator": "gte"},
			&search.Search{Field: "weight", Operator: search.OpGte, Value: 2.5},
			"",
		},
		{
			"list operator splits",
			map[string]any{"field": "id", "value": "M1, M2", "operator": "in"},
			&search.Search{Field: "id", Operator: search.OpIn, Value: []any{"M1", "M2"}},
			"",
		},
		{
			"array value type",
			map[string]any{"field": "weight", "value": "1,2", "valueType": "Array", "operator": "between"},
			&search.Search{Field: "weight", Operator: search.OpBetween, Value: []any{1.0, 2.0}},
			"",
		},
		{
			"pattern stays text",
			map[string]any{"field": "name", "value": "sa%", "operator": "like"},
			&search.Search{Field: "name", Operator: search.OpLike, Value: "sa%"},
			"",
		},
		{
			"null test",
			map[string]any{"field": "study_material_fk", "operator": "eq"},
			&search.Search{Field: "study_material_fk", Operator: search.OpEq},
			"",
		},
		{
			"nested",
			map[string]any{"operator": "and", "search": []any{
				map[string]any{"field": "name", "value": "salt", "operator": "eq"},
				map[string]any{"operator": "not", "search": []any{
					map[string]any{"field": "weight", "value": "0", "operator": "lt"},
				}},
			}},
			search.And(
				search.Eq("name", "salt"),
				search.Not(&search.Search{Field: "weight", Operator: search.OpLt, Value: 0.0}),
			),
			"",
		},
		{"unknown field", map[string]any{"field": "colour", "value": "x", "operator": "eq"}, nil, "no attribute"},
		{"uncoercible", map[string]any{"field": "weight", "value": "heavy", "operator": "eq"}, nil, "weight"},
		{"between needs two", map[string]any{"field": "weight", "value": "1", "valueType": "Array", "operator": "between"}, nil, "exactly two"},
		{"not needs one", map[string]any{"operator": "not"}, nil, "exactly one"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSearch(def, tt.input)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.ErrorIs(t, err, entities.ErrInvalidInput)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseArgs(t *testing.T) {
	schema := testutil.Schema(t)
	material := schema.GetEntity("material")

	t.Run("order", func(t *testing.T) {
		got, err := parseOrder([]any{
			map[string]any{"field": "name", "order": "DESC"},
			map[string]any{"field": "id"},
		})
		require.NoError(t, err)
		assert.Equal(t, []search.Order{{Field: "name", Direction: search.DESC}, {Field: "id", Direction: search.ASC}}, got)
	})

	t.Run("windows", func(t *testing.T) {
		w := parseOffsetWindow(map[string]any{"offset": 5, "limit": 10})
		require.NotNil(t, w.Offset)
		assert.Equal(t, 5, *w.Offset)
		assert.Equal(t, 10, *w.Limit)
		assert.Nil(t, parseOffsetWindow(nil).Limit)

		w = parseCursorWindow(map[string]any{"last": 3, "before": "abc"})
		assert.Equal(t, 3, *w.Last)
		assert.Equal(t, "abc", w.Before)
		assert.Nil(t, w.First)
	})

	t.Run("fields and associations", func(t *testing.T) {
		args := map[string]any{
			"id":                 "M1",
			"name":               "salt",
			"addStudy":           "S1",
			"addAnnotations":     []any{"A1", "A2"},
			"removeAnnotations":  []any{},
			argSkipChecks:        true,
			"unknown_input_name": 1,
		}
		assert.Equal(t, entities.Record{"id": "M1", "name": "salt"}, parseFields(material, args))
		assert.Equal(t, map[string][]string{"study": {"S1"}, "annotations": {"A1", "A2"}}, parseAssociations(material, args, addArg))
		assert.Nil(t, parseAssociations(material, args, removeArg))
		assert.True(t, boolArg(args, argSkipChecks))
	})

	t.Run("pairs", func(t *testing.T) {
		comment := schema.GetEntity("comment")
		rel := comment.GetRelation("study")
		got, err := parsePairs(comment, rel, []any{map[string]any{"id": "C1", "study_comments_fk": "S1"}})
		require.NoError(t, err)
		assert.Equal(t, []association.Pair{{ID: "C1", Key: "S1"}}, got)

		_, err = parsePairs(comment, rel, []any{map[string]any{"id": "C1"}})
		assert.ErrorIs(t, err, entities.ErrInvalidInput)
	})
}
