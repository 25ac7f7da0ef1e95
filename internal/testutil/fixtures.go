// Package testutil holds the shared schema fixture used by package tests.
package testutil

import (
	"testing"

	"github.com/asakaida/datagraph/internal/entities"
)

// Schema returns the study / comment / material / ontology_annotation schema.
//
//	study.comments           to_many, key study_comments_fk on comment, inverse comment.study
//	study.materials          to_many, key study_material_fk on material, inverse material.study
//	material.annotations     to_many, array key ontology_annotation_ids, inverse ontology_annotation.materials
//	material.main_annotation to_one, key main_annotation_fk on material, inverse ontology_annotation.main_material
func Schema(t testing.TB) *entities.Schema {
	t.Helper()
	schema, err := NewSchema()
	if err != nil {
		t.Fatalf("failed to build fixture schema: %v", err)
	}
	return schema
}

// NewSchema builds the fixture schema without a test handle
func NewSchema() (*entities.Schema, error) {
	study := &entities.EntityType{
		Name:        "study",
		Table:       "studies",
		IDAttribute: "id",
		Attributes: []*entities.Attribute{
			{Name: "id", Type: entities.TypeString},
			{Name: "name", Type: entities.TypeString, Required: true, MaxLength: 100},
			{Name: "description", Type: entities.TypeString},
			{Name: "start_date", Type: entities.TypeDateTime},
		},
		Relations: []*entities.Relation{
			{Name: "comments", Cardinality: entities.ToMany, TargetType: "comment", ForeignKey: "study_comments_fk", KeyLocation: entities.KeyTarget, Inverse: "study"},
			{Name: "materials", Cardinality: entities.ToMany, TargetType: "material", ForeignKey: "study_material_fk", KeyLocation: entities.KeyTarget, Inverse: "study"},
		},
	}
	comment := &entities.EntityType{
		Name:        "comment",
		Table:       "comments",
		IDAttribute: "id",
		Attributes: []*entities.Attribute{
			{Name: "id", Type: entities.TypeString},
			{Name: "text", Type: entities.TypeString},
			{Name: "rank", Type: entities.TypeInt},
			{Name: "study_comments_fk", Type: entities.TypeString},
		},
		Relations: []*entities.Relation{
			{Name: "study", Cardinality: entities.ToOne, TargetType: "study", ForeignKey: "study_comments_fk", KeyLocation: entities.KeySelf, Inverse: "comments"},
		},
	}
	material := &entities.EntityType{
		Name:        "material",
		Table:       "materials",
		IDAttribute: "id",
		Attributes: []*entities.Attribute{
			{Name: "id", Type: entities.TypeString},
			{Name: "name", Type: entities.TypeString},
			{Name: "weight", Type: entities.TypeFloat},
			{Name: "study_material_fk", Type: entities.TypeString},
			{Name: "main_annotation_fk", Type: entities.TypeString},
			{Name: "ontology_annotation_ids", Type: entities.TypeStringArray},
		},
		Relations: []*entities.Relation{
			{Name: "study", Cardinality: entities.ToOne, TargetType: "study", ForeignKey: "study_material_fk", KeyLocation: entities.KeySelf, Inverse: "materials"},
			{Name: "main_annotation", Cardinality: entities.ToOne, TargetType: "ontology_annotation", ForeignKey: "main_annotation_fk", KeyLocation: entities.KeySelf, Inverse: "main_material"},
			{Name: "annotations", Cardinality: entities.ToMany, TargetType: "ontology_annotation", ForeignKey: "ontology_annotation_ids", KeyLocation: entities.KeySelf, Inverse: "materials"},
		},
	}
	annotation := &entities.EntityType{
		Name:        "ontology_annotation",
		Table:       "ontology_annotations",
		IDAttribute: "id",
		Attributes: []*entities.Attribute{
			{Name: "id", Type: entities.TypeString},
			{Name: "ontology", Type: entities.TypeString},
			{Name: "term", Type: entities.TypeString},
			{Name: "material_ids", Type: entities.TypeStringArray},
		},
		Relations: []*entities.Relation{
			{Name: "materials", Cardinality: entities.ToMany, TargetType: "material", ForeignKey: "material_ids", KeyLocation: entities.KeySelf, Inverse: "annotations"},
			{Name: "main_material", Cardinality: entities.ToOne, TargetType: "material", ForeignKey: "main_annotation_fk", KeyLocation: entities.KeyTarget, Inverse: "main_annotation"},
		},
	}
	return entities.NewSchema(study, comment, material, annotation)
}
