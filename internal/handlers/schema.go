package handlers

import (
	"fmt"

	"github.com/graphql-go/graphql"
	"go.uber.org/zap"

	"github.com/asakaida/datagraph/internal/entities"
	"github.com/asakaida/datagraph/internal/search"
	"github.com/asakaida/datagraph/internal/services"
)

var orderEnum = graphql.NewEnum(graphql.EnumConfig{
	Name: "Order",
	Values: graphql.EnumValueConfigMap{
		string(search.ASC):  &graphql.EnumValueConfig{Value: string(search.ASC)},
		string(search.DESC): &graphql.EnumValueConfig{Value: string(search.DESC)},
	},
})

var operatorEnum = func() *graphql.Enum {
	values := graphql.EnumValueConfigMap{}
	for _, op := range search.Operators {
		values[string(op)] = &graphql.EnumValueConfig{Value: string(op)}
	}
	return graphql.NewEnum(graphql.EnumConfig{Name: "Operator", Values: values})
}()

var inputTypeEnum = graphql.NewEnum(graphql.EnumConfig{
	Name: "InputType",
	Values: graphql.EnumValueConfigMap{
		valueTypeArray: &graphql.EnumValueConfig{Value: valueTypeArray},
	},
})

var paginationInput = graphql.NewInputObject(graphql.InputObjectConfig{
	Name: "paginationInput",
	Fields: graphql.InputObjectConfigFieldMap{
		"offset": &graphql.InputObjectFieldConfig{Type: graphql.Int},
		"limit":  &graphql.InputObjectFieldConfig{Type: graphql.Int},
	},
})

var paginationCursorInput = graphql.NewInputObject(graphql.InputObjectConfig{
	Name: "paginationCursorInput",
	Fields: graphql.InputObjectConfigFieldMap{
		"first":  &graphql.InputObjectFieldConfig{Type: graphql.Int},
		"last":   &graphql.InputObjectFieldConfig{Type: graphql.Int},
		"after":  &graphql.InputObjectFieldConfig{Type: graphql.String},
		"before": &graphql.InputObjectFieldConfig{Type: graphql.String},
	},
})

var pageInfoType = graphql.NewObject(graphql.ObjectConfig{
	Name: "pageInfo",
	Fields: graphql.Fields{
		"startCursor":     &graphql.Field{Type: graphql.String},
		"endCursor":       &graphql.Field{Type: graphql.String},
		"hasPreviousPage": &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
		"hasNextPage":     &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
	},
})

// entityTypes holds the GraphQL types generated for one entity type
type entityTypes struct {
	object     *graphql.Object
	edge       *graphql.Object
	connection *graphql.Object
	field      *graphql.Enum
	search     *graphql.InputObject
	order      *graphql.InputObject
}

// SchemaBuilder generates the GraphQL schema of an entity schema. Every resolver calls
// the entity service, which checks authorization before touching storage.
type SchemaBuilder struct {
	schema *entities.Schema
	svc    services.EntityServiceInterface
	logger *zap.Logger
	types  map[string]*entityTypes
}

// NewSchemaBuilder creates a new SchemaBuilder
func NewSchemaBuilder(schema *entities.Schema, svc services.EntityServiceInterface, logger *zap.Logger) *SchemaBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchemaBuilder{
		schema: schema,
		svc:    svc,
		logger: logger,
		types:  make(map[string]*entityTypes),
	}
}

// Build returns the executable schema
func (b *SchemaBuilder) Build() (graphql.Schema, error) {
	for _, def := range b.schema.Entities() {
		b.buildTypes(def)
	}

	queries := graphql.Fields{}
	mutations := graphql.Fields{}
	for _, def := range b.schema.Entities() {
		b.addQueries(queries, def)
		b.addMutations(mutations, def)
	}

	schema, err := graphql.NewSchema(graphql.SchemaConfig{
		Query:    graphql.NewObject(graphql.ObjectConfig{Name: "Query", Fields: queries}),
		Mutation: graphql.NewObject(graphql.ObjectConfig{Name: "Mutation", Fields: mutations}),
	})
	if err != nil {
		return graphql.Schema{}, fmt.Errorf("failed to build GraphQL schema: %w", err)
	}
	return schema, nil
}

func (b *SchemaBuilder) buildTypes(def *entities.EntityType) {
	name := typeName(def)
	t := &entityTypes{}
	b.types[def.Name] = t

	fieldValues := graphql.EnumValueConfigMap{}
	for _, a := range def.Attributes {
		fieldValues[a.Name] = &graphql.EnumValueConfig{Value: a.Name}
	}
	t.field = graphql.NewEnum(graphql.EnumConfig{Name: name + "Field", Values: fieldValues})

	var searchInput *graphql.InputObject
	searchInput = graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "search" + name + "Input",
		Fields: graphql.InputObjectConfigFieldMapThunk(func() graphql.InputObjectConfigFieldMap {
			return graphql.InputObjectConfigFieldMap{
				"field":     &graphql.InputObjectFieldConfig{Type: t.field},
				"value":     &graphql.InputObjectFieldConfig{Type: graphql.String},
				"valueType": &graphql.InputObjectFieldConfig{Type: inputTypeEnum},
				"operator":  &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(operatorEnum)},
				"search":    &graphql.InputObjectFieldConfig{Type: graphql.NewList(searchInput)},
			}
		}),
	})
	t.search = searchInput

	t.order = graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "order" + name + "Input",
		Fields: graphql.InputObjectConfigFieldMap{
			"field": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(t.field)},
			"order": &graphql.InputObjectFieldConfig{Type: orderEnum},
		},
	})

	t.object = graphql.NewObject(graphql.ObjectConfig{
		Name:        name,
		Description: fmt.Sprintf("%s records stored in %s", def.Name, def.Table),
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			return b.objectFields(def)
		}),
	})

	t.edge = graphql.NewObject(graphql.ObjectConfig{
		Name: name + "Edge",
		Fields: graphql.Fields{
			"cursor": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"node":   &graphql.Field{Type: graphql.NewNonNull(t.object)},
		},
	})

	t.connection = graphql.NewObject(graphql.ObjectConfig{
		Name: pluralTypeName(def) + "Connection",
		Fields: graphql.Fields{
			"edges":        &graphql.Field{Type: graphql.NewList(t.edge)},
			listField(def): &graphql.Field{Type: graphql.NewList(t.object), Resolve: resolveNodes},
			"pageInfo":     &graphql.Field{Type: graphql.NewNonNull(pageInfoType)},
		},
	})
}

// objectFields lists the attributes and relation fields of an entity object
func (b *SchemaBuilder) objectFields(def *entities.EntityType) graphql.Fields {
	fields := graphql.Fields{}
	for _, a := range def.Attributes {
		typ := attributeOutput(a.Type)
		if a.Name == def.IDAttribute {
			typ = graphql.NewNonNull(graphql.ID)
		}
		fields[a.Name] = &graphql.Field{
			Type:        typ,
			Description: a.Description,
			Resolve:     resolveAttribute(a.Name),
		}
	}

	for _, rel := range def.Relations {
		target := b.types[rel.TargetType]
		name := relationField(rel)
		if rel.Cardinality == entities.ToOne {
			fields[name] = &graphql.Field{
				Type:    target.object,
				Resolve: b.resolveRelatedOne(def, rel),
			}
			continue
		}
		fields[name+"Filter"] = &graphql.Field{
			Type: graphql.NewList(target.object),
			Args: graphql.FieldConfigArgument{
				argSearch:     &graphql.ArgumentConfig{Type: target.search},
				argOrder:      &graphql.ArgumentConfig{Type: graphql.NewList(target.order)},
				argPagination: &graphql.ArgumentConfig{Type: paginationInput},
			},
			Resolve: b.resolveRelatedFiltered(def, rel),
		}
		fields[countField(rel)] = &graphql.Field{
			Type: graphql.Int,
			Args: graphql.FieldConfigArgument{
				argSearch: &graphql.ArgumentConfig{Type: target.search},
			},
			Resolve: b.resolveCountRelated(def, rel),
		}
		fields[name+"Connection"] = &graphql.Field{
			Type: target.connection,
			Args: graphql.FieldConfigArgument{
				argSearch:     &graphql.ArgumentConfig{Type: target.search},
				argOrder:      &graphql.ArgumentConfig{Type: graphql.NewList(target.order)},
				argPagination: &graphql.ArgumentConfig{Type: paginationCursorInput},
			},
			Resolve: b.resolveRelatedConnection(def, rel),
		}
	}
	return fields
}

func (b *SchemaBuilder) addQueries(fields graphql.Fields, def *entities.EntityType) {
	t := b.types[def.Name]
	name := typeName(def)
	list := listField(def)

	fields[list] = &graphql.Field{
		Type: graphql.NewList(t.object),
		Args: graphql.FieldConfigArgument{
			argSearch:     &graphql.ArgumentConfig{Type: t.search},
			argOrder:      &graphql.ArgumentConfig{Type: graphql.NewList(t.order)},
			argPagination: &graphql.ArgumentConfig{Type: paginationInput},
		},
		Resolve: b.resolveReadAll(def),
	}
	fields[list+"Connection"] = &graphql.Field{
		Type: t.connection,
		Args: graphql.FieldConfigArgument{
			argSearch:     &graphql.ArgumentConfig{Type: t.search},
			argOrder:      &graphql.ArgumentConfig{Type: graphql.NewList(t.order)},
			argPagination: &graphql.ArgumentConfig{Type: paginationCursorInput},
		},
		Resolve: b.resolveReadAllCursor(def),
	}
	fields["readOne"+name] = &graphql.Field{
		Type: t.object,
		Args: graphql.FieldConfigArgument{
			argID: &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
		},
		Resolve: b.resolveReadOne(def),
	}
	fields["count"+pluralTypeName(def)] = &graphql.Field{
		Type: graphql.Int,
		Args: graphql.FieldConfigArgument{
			argSearch: &graphql.ArgumentConfig{Type: t.search},
		},
		Resolve: b.resolveCount(def),
	}
	fields["csvTableTemplate"+name] = &graphql.Field{
		Type:    graphql.NewList(graphql.String),
		Resolve: b.resolveCSVTemplate(def),
	}
}

func (b *SchemaBuilder) addMutations(fields graphql.Fields, def *entities.EntityType) {
	t := b.types[def.Name]
	name := typeName(def)

	addArgs := graphql.FieldConfigArgument{}
	updateArgs := graphql.FieldConfigArgument{}
	for _, a := range def.Attributes {
		if isForeignKey(def, a) {
			continue
		}
		typ := attributeInput(a.Type)
		if a.Name == def.IDAttribute {
			addArgs[a.Name] = &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)}
			updateArgs[a.Name] = &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)}
			continue
		}
		addArgs[a.Name] = &graphql.ArgumentConfig{Type: typ, Description: a.Description}
		updateArgs[a.Name] = &graphql.ArgumentConfig{Type: typ, Description: a.Description}
	}
	for _, rel := range def.Relations {
		var typ graphql.Input = graphql.NewList(graphql.NewNonNull(graphql.ID))
		if rel.Cardinality == entities.ToOne {
			typ = graphql.ID
		}
		addArgs[addArg(rel)] = &graphql.ArgumentConfig{Type: typ}
		updateArgs[addArg(rel)] = &graphql.ArgumentConfig{Type: typ}
		updateArgs[removeArg(rel)] = &graphql.ArgumentConfig{Type: typ}
	}
	addArgs[argSkipChecks] = &graphql.ArgumentConfig{Type: graphql.Boolean, DefaultValue: false}
	updateArgs[argSkipChecks] = &graphql.ArgumentConfig{Type: graphql.Boolean, DefaultValue: false}

	fields["add"+name] = &graphql.Field{Type: t.object, Args: addArgs, Resolve: b.resolveAdd(def)}
	fields["update"+name] = &graphql.Field{Type: t.object, Args: updateArgs, Resolve: b.resolveUpdate(def)}
	fields["delete"+name] = &graphql.Field{
		Type: graphql.String,
		Args: graphql.FieldConfigArgument{
			argID: &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
		},
		Resolve: b.resolveDelete(def),
	}
	fields["bulkAdd"+name+"Csv"] = &graphql.Field{
		Type: graphql.String,
		Args: graphql.FieldConfigArgument{
			argCSV:   &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
			argEmail: &graphql.ArgumentConfig{Type: graphql.String},
		},
		Resolve: b.resolveBulkAddCSV(def),
	}

	for _, rel := range def.Relations {
		if !bulkAssociable(rel) {
			continue
		}
		input := graphql.NewInputObject(graphql.InputObjectConfig{
			Name: bulkAssociationInputName(def, rel),
			Fields: graphql.InputObjectConfigFieldMap{
				def.IDAttribute: &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.ID)},
				rel.ForeignKey:  &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.ID)},
			},
		})
		args := graphql.FieldConfigArgument{
			argBulkInput:  &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(input)))},
			argSkipChecks: &graphql.ArgumentConfig{Type: graphql.Boolean, DefaultValue: false},
		}
		fields[bulkAssociateField(def, rel)] = &graphql.Field{
			Type:    graphql.String,
			Args:    args,
			Resolve: b.resolveBulk(def, rel, b.svc.BulkAssociate),
		}
		fields[bulkDisAssociateField(def, rel)] = &graphql.Field{
			Type:    graphql.String,
			Args:    args,
			Resolve: b.resolveBulk(def, rel, b.svc.BulkDisAssociate),
		}
	}
}

func scalarType(t entities.AttributeType) *graphql.Scalar {
	switch t.Elem() {
	case entities.TypeInt:
		return graphql.Int
	case entities.TypeFloat:
		return graphql.Float
	case entities.TypeBoolean:
		return graphql.Boolean
	case entities.TypeDateTime:
		return graphql.DateTime
	default:
		return graphql.String
	}
}

func attributeOutput(t entities.AttributeType) graphql.Output {
	if t.IsArray() {
		return graphql.NewList(scalarType(t))
	}
	return scalarType(t)
}

func attributeInput(t entities.AttributeType) graphql.Input {
	if t.IsArray() {
		return graphql.NewList(scalarType(t))
	}
	return scalarType(t)
}
