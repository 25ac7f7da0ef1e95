package handlers

import (
	"github.com/iancoleman/strcase"
	"github.com/jinzhu/inflection"

	"github.com/asakaida/datagraph/internal/entities"
)

// GraphQL names derived from model and relation names.
//
//	ontology_annotation -> OntologyAnnotation, ontologyAnnotations, readOneOntologyAnnotation
//	main_annotation     -> mainAnnotation, addMainAnnotation, removeMainAnnotation

func typeName(def *entities.EntityType) string {
	return strcase.ToCamel(def.Name)
}

func pluralTypeName(def *entities.EntityType) string {
	return inflection.Plural(typeName(def))
}

func listField(def *entities.EntityType) string {
	return inflection.Plural(strcase.ToLowerCamel(def.Name))
}

func relationField(rel *entities.Relation) string {
	return strcase.ToLowerCamel(rel.Name)
}

func countField(rel *entities.Relation) string {
	return "countFiltered" + strcase.ToCamel(rel.Name)
}

func addArg(rel *entities.Relation) string {
	return "add" + strcase.ToCamel(rel.Name)
}

func removeArg(rel *entities.Relation) string {
	return "remove" + strcase.ToCamel(rel.Name)
}

func bulkAssociateField(def *entities.EntityType, rel *entities.Relation) string {
	return "bulkAssociate" + typeName(def) + "With" + strcase.ToCamel(rel.ForeignKey)
}

func bulkDisAssociateField(def *entities.EntityType, rel *entities.Relation) string {
	return "bulkDisAssociate" + typeName(def) + "With" + strcase.ToCamel(rel.ForeignKey)
}

func bulkAssociationInputName(def *entities.EntityType, rel *entities.Relation) string {
	return "bulkAssociation" + typeName(def) + "With" + strcase.ToCamel(rel.ForeignKey) + "Input"
}

// bulkAssociable reports whether rel is updated with one scalar key per record
func bulkAssociable(rel *entities.Relation) bool {
	return rel.Cardinality == entities.ToOne && rel.KeyLocation == entities.KeySelf
}

// isForeignKey reports whether attr is written through an association argument
func isForeignKey(def *entities.EntityType, attr *entities.Attribute) bool {
	return def.RelationForKey(attr.Name) != nil
}
