package parser

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Definition is one model-definition document
// Example (YAML):
//
//	model: study
//	storageType: sql
//	table: studies
//	internalId: id
//	attributes:
//	  id: String
//	  name: String
//	associations:
//	  comments:
//	    type: to_many
//	    target: comment
//	    keysIn: comment
//	    targetKey: study_comments_fk
//	    reverseAssociation: study
//	validations:
//	  name:
//	    required: true
//	    maxLength: 100
type Definition struct {
	Model        string                   `yaml:"model"`
	StorageType  string                   `yaml:"storageType"`
	Table        string                   `yaml:"table"`
	InternalID   string                   `yaml:"internalId"`
	Attributes   AttributeList            `yaml:"attributes"`
	Associations AssociationList          `yaml:"associations"`
	Validations  map[string]ValidationDef `yaml:"validations"`

	// Source is the file the definition was read from
	Source string `yaml:"-"`
}

// AttributeDef is one declared attribute
type AttributeDef struct {
	Name        string `yaml:"-"`
	Type        string `yaml:"type"`
	Description string `yaml:"description"`
}

// AssociationDef is one declared association
type AssociationDef struct {
	Name               string `yaml:"-"`
	Type               string `yaml:"type"`
	Target             string `yaml:"target"`
	KeysIn             string `yaml:"keysIn"`
	TargetKey          string `yaml:"targetKey"`
	SourceKey          string `yaml:"sourceKey"`
	ReverseAssociation string `yaml:"reverseAssociation"`
	Label              string `yaml:"label"`
}

// ValidationDef holds the constraints of one attribute
type ValidationDef struct {
	Required  bool   `yaml:"required"`
	MaxLength int    `yaml:"maxLength"`
	Pattern   string `yaml:"pattern"`
}

// AttributeList keeps attributes in document order
type AttributeList []*AttributeDef

// UnmarshalYAML accepts a mapping of name to either a type name or an object
// with type and description
func (l *AttributeList) UnmarshalYAML(node *yaml.Node) error {
	return eachPair(node, "attributes", func(name string, value *yaml.Node) error {
		attr := &AttributeDef{Name: name}
		switch value.Kind {
		case yaml.ScalarNode:
			attr.Type = value.Value
		case yaml.MappingNode:
			if err := value.Decode(attr); err != nil {
				return fmt.Errorf("attribute %s: %w", name, err)
			}
		default:
			return fmt.Errorf("line %d: attribute %s must be a type name or an object", value.Line, name)
		}
		*l = append(*l, attr)
		return nil
	})
}

// AssociationList keeps associations in document order
type AssociationList []*AssociationDef

// UnmarshalYAML accepts a mapping of association name to its definition
func (l *AssociationList) UnmarshalYAML(node *yaml.Node) error {
	return eachPair(node, "associations", func(name string, value *yaml.Node) error {
		assoc := &AssociationDef{Name: name}
		if err := value.Decode(assoc); err != nil {
			return fmt.Errorf("association %s: %w", name, err)
		}
		*l = append(*l, assoc)
		return nil
	})
}

func eachPair(node *yaml.Node, field string, fn func(string, *yaml.Node) error) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: %s must be a mapping", node.Line, field)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if err := fn(node.Content[i].Value, node.Content[i+1]); err != nil {
			return err
		}
	}
	return nil
}
