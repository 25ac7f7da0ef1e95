package parser

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asakaida/datagraph/internal/entities"
	"github.com/asakaida/datagraph/internal/testutil"
	"github.com/asakaida/datagraph/models"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		input   string
		wantErr string
		check   func(t *testing.T, def *Definition)
	}{
		{
			name:   "yaml keeps attribute order",
			source: "book.yaml",
			input: `
model: book
attributes:
  id: String
  title:
    type: String
    description: Book title
  pages: Int
  author_ids: "[String]"
associations:
  authors:
    type: many_to_many
    target: author
    keysIn: book
    sourceKey: author_ids
    targetKey: book_ids
`,
			check: func(t *testing.T, def *Definition) {
				require.Len(t, def.Attributes, 4)
				assert.Equal(t, "id", def.Attributes[0].Name)
				assert.Equal(t, "title", def.Attributes[1].Name)
				assert.Equal(t, "Book title", def.Attributes[1].Description)
				assert.Equal(t, "[String]", def.Attributes[3].Type)
				require.Len(t, def.Associations, 1)
				assert.Equal(t, "authors", def.Associations[0].Name)
				assert.Equal(t, "author_ids", def.Associations[0].SourceKey)
				assert.Equal(t, "book.yaml", def.Source)
			},
		},
		{
			name:   "json",
			source: "book.json",
			input:  `{"model": "book", "attributes": {"id": "String", "title": "String"}, "validations": {"title": {"required": true, "maxLength": 20}}}`,
			check: func(t *testing.T, def *Definition) {
				assert.Equal(t, "book", def.Model)
				assert.Equal(t, []string{"id", "title"}, []string{def.Attributes[0].Name, def.Attributes[1].Name})
				assert.Equal(t, ValidationDef{Required: true, MaxLength: 20}, def.Validations["title"])
			},
		},
		{
			name:    "invalid json",
			source:  "book.json",
			input:   `{"model": "book",}`,
			wantErr: "invalid JSON",
		},
		{
			name:    "unknown field",
			source:  "book.yaml",
			input:   "model: book\ncolour: blue\n",
			wantErr: "colour",
		},
		{
			name:    "attributes must be a mapping",
			source:  "book.yaml",
			input:   "model: book\nattributes: [id, title]\n",
			wantErr: "attributes must be a mapping",
		},
		{
			name:    "attribute value must be scalar or object",
			source:  "book.yaml",
			input:   "model: book\nattributes:\n  tags: [String]\n",
			wantErr: "attribute tags",
		},
		{
			name:    "empty",
			source:  "book.yaml",
			input:   "",
			wantErr: "empty model definition",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, err := Parse([]byte(tt.input), tt.source)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, def)
		})
	}
}

func TestLoadFS(t *testing.T) {
	fsys := fstest.MapFS{
		"defs/b.yaml":     {Data: []byte("model: b\nattributes:\n  id: String\n")},
		"defs/a.json":     {Data: []byte(`{"model": "a", "attributes": {"id": "Int"}}`)},
		"defs/README.md":  {Data: []byte("# not a model")},
		"defs/nested/c.y": {Data: []byte("ignored")},
	}

	defs, err := LoadFS(fsys, "defs")
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "a", defs[0].Model)
	assert.Equal(t, "b", defs[1].Model)

	_, err = LoadFS(fstest.MapFS{"empty/README.md": {Data: []byte("x")}}, "empty")
	assert.ErrorContains(t, err, "no model definitions")
}

func TestLoadSchema_EmbeddedModels(t *testing.T) {
	schema, defs, err := LoadSchema(models.FS, ".")
	require.NoError(t, err)
	assert.Len(t, defs, 4)

	want := testutil.Schema(t)
	for _, wantType := range want.Entities() {
		t.Run(wantType.Name, func(t *testing.T) {
			got := schema.GetEntity(wantType.Name)
			require.NotNil(t, got)
			assert.Equal(t, wantType.Table, got.Table)
			assert.Equal(t, wantType.IDAttribute, got.IDAttribute)
			assert.Equal(t, wantType.AttributeNames(), got.AttributeNames())
			for _, a := range wantType.Attributes {
				g := got.GetAttribute(a.Name)
				assert.Equal(t, a.Type, g.Type, a.Name)
				assert.Equal(t, a.Required, g.Required, a.Name)
				assert.Equal(t, a.MaxLength, g.MaxLength, a.Name)
			}
			require.Len(t, got.Relations, len(wantType.Relations))
			for _, r := range wantType.Relations {
				assert.Equal(t, r, got.GetRelation(r.Name))
			}
		})
	}
}

func TestToEntityType(t *testing.T) {
	def := &Definition{
		Model: "person",
		Attributes: AttributeList{
			{Name: "id", Type: "String"},
			{Name: "email", Type: "String"},
			{Name: "team_id", Type: "String"},
		},
		Associations: AssociationList{
			{Name: "team", Type: "many_to_one", Target: "team", KeysIn: "person", TargetKey: "team_id"},
			{Name: "badges", Type: "one_to_many", Target: "badge", KeysIn: "badge", TargetKey: "person_id"},
		},
		Validations: map[string]ValidationDef{"email": {Required: true, Pattern: `^\S+@\S+$`}},
	}

	got, err := ToEntityType(def)
	require.NoError(t, err)
	assert.Equal(t, "people", got.Table, "table defaults to the plural")
	assert.Equal(t, "id", got.IDAttribute)
	assert.True(t, got.GetAttribute("email").Required)
	assert.Equal(t, `^\S+@\S+$`, got.GetAttribute("email").Pattern)
	assert.Equal(t, &entities.Relation{Name: "team", Cardinality: entities.ToOne, TargetType: "team", ForeignKey: "team_id", KeyLocation: entities.KeySelf}, got.GetRelation("team"))
	assert.Equal(t, &entities.Relation{Name: "badges", Cardinality: entities.ToMany, TargetType: "badge", ForeignKey: "person_id", KeyLocation: entities.KeyTarget}, got.GetRelation("badges"))

	def.Associations[0].KeysIn = "nobody"
	_, err = ToEntityType(def)
	assert.ErrorContains(t, err, "keysIn")
}

func TestValidator(t *testing.T) {
	base := func() []*Definition {
		return []*Definition{
			{
				Model:      "team",
				Attributes: AttributeList{{Name: "id", Type: "String"}},
				Associations: AssociationList{
					{Name: "members", Type: "one_to_many", Target: "person", KeysIn: "person", TargetKey: "team_id", ReverseAssociation: "team"},
				},
			},
			{
				Model:      "person",
				Attributes: AttributeList{{Name: "id", Type: "String"}, {Name: "team_id", Type: "String"}},
				Associations: AssociationList{
					{Name: "team", Type: "many_to_one", Target: "team", KeysIn: "person", TargetKey: "team_id", ReverseAssociation: "members"},
				},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(defs []*Definition) []*Definition
		wantErr []string
	}{
		{
			name:   "valid",
			mutate: func(defs []*Definition) []*Definition { return defs },
		},
		{
			name:    "duplicate model",
			mutate:  func(defs []*Definition) []*Definition { return append(defs, defs[0]) },
			wantErr: []string{"duplicate model name: team"},
		},
		{
			name: "unknown attribute type",
			mutate: func(defs []*Definition) []*Definition {
				defs[1].Attributes = append(defs[1].Attributes, &AttributeDef{Name: "age", Type: "Integer"})
				return defs
			},
			wantErr: []string{`attribute age: unknown attribute type "Integer"`},
		},
		{
			name: "missing internal id",
			mutate: func(defs []*Definition) []*Definition {
				defs[0].InternalID = "code"
				return defs
			},
			wantErr: []string{"internalId code is not a declared attribute"},
		},
		{
			name: "unknown storage type",
			mutate: func(defs []*Definition) []*Definition {
				defs[0].StorageType = "mongodb"
				return defs
			},
			wantErr: []string{`unknown storageType "mongodb"`},
		},
		{
			name: "broken association",
			mutate: func(defs []*Definition) []*Definition {
				defs[0].Associations[0].TargetKey = "squad_id"
				defs[0].Associations[0].ReverseAssociation = "squad"
				defs[1].Associations[0].Target = "squad"
				return defs
			},
			wantErr: []string{
				"key squad_id is not an attribute of person",
				"reverse association squad is not defined on person",
				"undefined target model squad",
			},
		},
		{
			name: "bad validations",
			mutate: func(defs []*Definition) []*Definition {
				defs[1].Validations = map[string]ValidationDef{
					"nickname": {Required: true},
					"team_id":  {Pattern: "("},
				}
				return defs
			},
			wantErr: []string{"validation for undeclared attribute nickname", "attribute team_id: invalid pattern"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewValidator(tt.mutate(base())).Validate()
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}
