package parser

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/asakaida/datagraph/internal/entities"
)

// StorageTypes lists the accepted storageType values. Empty means sql.
var StorageTypes = []string{"sql", "memory"}

// Validator checks a set of model definitions before conversion and reports every
// problem it finds at once
type Validator struct {
	defs   []*Definition
	errors []string
	models map[string]*Definition
}

// NewValidator creates a new Validator
func NewValidator(defs []*Definition) *Validator {
	models := make(map[string]*Definition, len(defs))
	for _, def := range defs {
		if _, ok := models[def.Model]; !ok {
			models[def.Model] = def
		}
	}
	return &Validator{
		defs:   defs,
		errors: []string{},
		models: models,
	}
}

// Validate validates the definitions and returns error if invalid
func (v *Validator) Validate() error {
	v.validateUniqueModelNames()
	for _, def := range v.defs {
		v.validateDefinition(def)
		v.validateAttributes(def)
		v.validateAssociations(def)
		v.validateValidations(def)
	}

	if len(v.errors) > 0 {
		return fmt.Errorf("validation errors:\n%s", strings.Join(v.errors, "\n"))
	}
	return nil
}

func (v *Validator) addf(def *Definition, format string, args ...any) {
	prefix := def.Model
	if def.Source != "" {
		prefix = fmt.Sprintf("%s (%s)", def.Model, def.Source)
	}
	v.errors = append(v.errors, fmt.Sprintf("model %s: %s", prefix, fmt.Sprintf(format, args...)))
}

func (v *Validator) validateUniqueModelNames() {
	seen := make(map[string]bool)
	for _, def := range v.defs {
		if def.Model == "" {
			continue
		}
		if seen[def.Model] {
			v.errors = append(v.errors, fmt.Sprintf("duplicate model name: %s", def.Model))
		}
		seen[def.Model] = true
	}
}

func (v *Validator) validateDefinition(def *Definition) {
	if def.Model == "" {
		v.errors = append(v.errors, fmt.Sprintf("%s: model name is required", def.Source))
	}
	if def.StorageType != "" && !contains(StorageTypes, def.StorageType) {
		v.addf(def, "unknown storageType %q (want one of %s)", def.StorageType, strings.Join(StorageTypes, ", "))
	}
	if len(def.Attributes) == 0 {
		v.addf(def, "at least one attribute is required")
		return
	}
	id := def.InternalID
	if id == "" {
		id = DefaultInternalID
	}
	attr := def.attribute(id)
	if attr == nil {
		v.addf(def, "internalId %s is not a declared attribute", id)
	} else if strings.HasPrefix(attr.Type, "[") {
		v.addf(def, "internalId %s must be a scalar attribute", id)
	}
}

func (v *Validator) validateAttributes(def *Definition) {
	seen := make(map[string]bool)
	for _, a := range def.Attributes {
		if seen[a.Name] {
			v.addf(def, "duplicate attribute name: %s", a.Name)
		}
		seen[a.Name] = true
		if _, err := entities.ParseAttributeType(a.Type); err != nil {
			v.addf(def, "attribute %s: %v", a.Name, err)
		}
	}
}

func (v *Validator) validateAssociations(def *Definition) {
	seen := make(map[string]bool)
	for _, a := range def.Associations {
		if seen[a.Name] {
			v.addf(def, "duplicate association name: %s", a.Name)
		}
		seen[a.Name] = true
		if def.attribute(a.Name) != nil {
			v.addf(def, "association %s shadows an attribute", a.Name)
		}
		if _, err := ParseCardinality(a.Type); err != nil {
			v.addf(def, "association %s: %v", a.Name, err)
		}

		target, ok := v.models[a.Target]
		if !ok {
			v.addf(def, "association %s: undefined target model %s", a.Name, a.Target)
			continue
		}

		var holder *Definition
		key := a.TargetKey
		switch a.KeysIn {
		case def.Model:
			holder = def
			if a.SourceKey != "" {
				key = a.SourceKey
			}
		case a.Target:
			holder = target
		default:
			v.addf(def, "association %s: keysIn must be %s or %s", a.Name, def.Model, a.Target)
			continue
		}
		if key == "" {
			v.addf(def, "association %s: foreign key is required", a.Name)
		} else if holder.attribute(key) == nil {
			v.addf(def, "association %s: key %s is not an attribute of %s", a.Name, key, holder.Model)
		}

		if a.ReverseAssociation != "" && target.association(a.ReverseAssociation) == nil {
			v.addf(def, "association %s: reverse association %s is not defined on %s", a.Name, a.ReverseAssociation, target.Model)
		}
	}
}

func (v *Validator) validateValidations(def *Definition) {
	names := make([]string, 0, len(def.Validations))
	for name := range def.Validations {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rule := def.Validations[name]
		if def.attribute(name) == nil {
			v.addf(def, "validation for undeclared attribute %s", name)
			continue
		}
		if rule.MaxLength < 0 {
			v.addf(def, "attribute %s: maxLength must not be negative", name)
		}
		if rule.Pattern != "" {
			if _, err := regexp.Compile(rule.Pattern); err != nil {
				v.addf(def, "attribute %s: invalid pattern: %v", name, err)
			}
		}
	}
}

func (d *Definition) attribute(name string) *AttributeDef {
	for _, a := range d.Attributes {
		if a.Name == name {
			return a
		}
	}
	return nil
}

func (d *Definition) association(name string) *AssociationDef {
	for _, a := range d.Associations {
		if a.Name == name {
			return a
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
