// Package validation checks records against the attribute rules of their entity type.
package validation

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/asakaida/datagraph/internal/entities"
)

// Validator is the hook every write and read passes through
type Validator interface {
	// ValidateForCreate checks a complete new record
	ValidateForCreate(ctx context.Context, def *entities.EntityType, rec entities.Record) error

	// ValidateForUpdate checks the changed fields of a record
	ValidateForUpdate(ctx context.Context, def *entities.EntityType, fields entities.Record) error

	// ValidateAfterRead checks records on their way out. Problems are reported as
	// benign errors; the returned slice is what the caller hands on.
	ValidateAfterRead(ctx context.Context, def *entities.EntityType, records []entities.Record) []entities.Record
}

// SchemaValidator enforces attribute types, required, maxLength and pattern
type SchemaValidator struct {
	logger *zap.Logger
}

// NewSchemaValidator creates a new SchemaValidator
func NewSchemaValidator(logger *zap.Logger) *SchemaValidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchemaValidator{logger: logger}
}

// ValidateForCreate checks every attribute, including required ones that are absent
func (v *SchemaValidator) ValidateForCreate(ctx context.Context, def *entities.EntityType, rec entities.Record) error {
	if rec.ID(def.IDAttribute) == "" {
		return entities.NewInvalidInputError(def.IDAttribute, fmt.Sprintf("%s requires a value for %s", def.Name, def.IDAttribute))
	}
	for _, a := range def.Attributes {
		if err := checkAttribute(a, rec[a.Name]); err != nil {
			return err
		}
	}
	return checkUnknown(def, rec)
}

// ValidateForUpdate checks only the attributes present in fields
func (v *SchemaValidator) ValidateForUpdate(ctx context.Context, def *entities.EntityType, fields entities.Record) error {
	if err := checkUnknown(def, fields); err != nil {
		return err
	}
	for name, value := range fields {
		if err := checkAttribute(def.GetAttribute(name), value); err != nil {
			return err
		}
	}
	return nil
}

// ValidateAfterRead reports every invalid record and returns all of them
func (v *SchemaValidator) ValidateAfterRead(ctx context.Context, def *entities.EntityType, records []entities.Record) []entities.Record {
	for _, rec := range records {
		for _, a := range def.Attributes {
			// stored rows may predate a required rule; only present values are checked
			if rec[a.Name] == nil {
				continue
			}
			if err := checkAttribute(a, rec[a.Name]); err != nil {
				Report(ctx, v.logger, &BenignError{
					EntityType: def.Name,
					ID:         rec.ID(def.IDAttribute),
					Message:    err.Error(),
				})
				break
			}
		}
	}
	return records
}

func checkUnknown(def *entities.EntityType, rec entities.Record) error {
	for name := range rec {
		if def.GetAttribute(name) == nil {
			return entities.NewInvalidInputError(name, fmt.Sprintf("unknown attribute %q for %s", name, def.Name))
		}
	}
	return nil
}

func checkAttribute(a *entities.Attribute, value any) error {
	if value == nil {
		if a.Required {
			return entities.NewInvalidInputError(a.Name, "value is required")
		}
		return nil
	}
	c, err := a.Coerce(value)
	if err != nil {
		return entities.NewInvalidInputError(a.Name, err.Error())
	}

	strs := []string{}
	switch s := c.(type) {
	case string:
		strs = append(strs, s)
	case []any:
		for _, item := range s {
			if str, ok := item.(string); ok {
				strs = append(strs, str)
			}
		}
	}
	for _, s := range strs {
		if a.MaxLength > 0 && utf8.RuneCountInString(s) > a.MaxLength {
			return entities.NewInvalidInputError(a.Name, fmt.Sprintf("must be at most %d characters", a.MaxLength))
		}
		if !a.MatchPattern(s) {
			return entities.NewInvalidInputError(a.Name, fmt.Sprintf("%q does not match pattern %s", truncate(s, 40), a.Pattern))
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n])) + "..."
}
