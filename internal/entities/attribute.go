package entities

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// AttributeType is the declared type of an entity attribute
type AttributeType string

const (
	TypeString       AttributeType = "String"
	TypeInt          AttributeType = "Int"
	TypeFloat        AttributeType = "Float"
	TypeBoolean      AttributeType = "Boolean"
	TypeDateTime     AttributeType = "DateTime"
	TypeStringArray  AttributeType = "[String]"
	TypeIntArray     AttributeType = "[Int]"
	TypeFloatArray   AttributeType = "[Float]"
	TypeBooleanArray AttributeType = "[Boolean]"
)

// dateTimeLayouts are tried in order when parsing DateTime values from text.
// The last two cover what SQLite and MySQL hand back for timestamp columns.
var dateTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseAttributeType parses a declared type name
func ParseAttributeType(s string) (AttributeType, error) {
	t := AttributeType(strings.TrimSpace(s))
	switch t {
	case TypeString, TypeInt, TypeFloat, TypeBoolean, TypeDateTime,
		TypeStringArray, TypeIntArray, TypeFloatArray, TypeBooleanArray:
		return t, nil
	}
	return "", fmt.Errorf("unknown attribute type %q", s)
}

// IsArray reports whether values of this type are arrays
func (t AttributeType) IsArray() bool {
	return strings.HasPrefix(string(t), "[")
}

// Elem returns the element type of an array type, or the type itself
func (t AttributeType) Elem() AttributeType {
	if !t.IsArray() {
		return t
	}
	return AttributeType(strings.TrimSuffix(strings.TrimPrefix(string(t), "["), "]"))
}

// Attribute represents an attribute definition of an entity type
// Example: "name": "String" with validation {"required": true, "maxLength": 255}
type Attribute struct {
	Name        string        // Attribute name (e.g., "name", "study_comments_fk")
	Type        AttributeType // Declared type
	Description string
	Required    bool   // Value must be present on create
	MaxLength   int    // Maximum string length (0 = unlimited)
	Pattern     string // Regular expression string values must match (optional)

	pattern *regexp.Regexp
}

// Validate checks if the attribute definition is valid
func (a *Attribute) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("attribute name is required")
	}
	if _, err := ParseAttributeType(string(a.Type)); err != nil {
		return fmt.Errorf("attribute %s: %w", a.Name, err)
	}
	if a.Pattern != "" {
		re, err := regexp.Compile(a.Pattern)
		if err != nil {
			return fmt.Errorf("attribute %s: invalid pattern: %w", a.Name, err)
		}
		a.pattern = re
	}
	return nil
}

// MatchPattern reports whether s satisfies the attribute pattern (true when none is set)
func (a *Attribute) MatchPattern(s string) bool {
	if a.Pattern == "" {
		return true
	}
	if a.pattern == nil {
		re, err := regexp.Compile(a.Pattern)
		if err != nil {
			return false
		}
		a.pattern = re
	}
	return a.pattern.MatchString(s)
}

// Coerce converts v into the canonical Go value for the attribute type:
// string, int64, float64, bool, time.Time (UTC) or []any of those.
// nil passes through unchanged.
func (a *Attribute) Coerce(v any) (any, error) {
	out, err := coerce(a.Type, v)
	if err != nil {
		return nil, fmt.Errorf("attribute %s: %w", a.Name, err)
	}
	return out, nil
}

// MarshalValue serializes an array value to JSON text for storage
func (a *Attribute) MarshalValue(v any) (any, error) {
	if v == nil || !a.Type.IsArray() {
		return v, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal attribute %s: %w", a.Name, err)
	}
	return string(data), nil
}

func coerce(t AttributeType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if t.IsArray() {
		return coerceArray(t.Elem(), v)
	}
	switch t {
	case TypeString:
		switch s := v.(type) {
		case string:
			return s, nil
		case []byte:
			return string(s), nil
		case fmt.Stringer:
			return s.String(), nil
		case int, int32, int64, float64:
			return fmt.Sprint(s), nil
		}
	case TypeInt:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int64:
			return n, nil
		case float64:
			if n != math.Trunc(n) {
				return nil, fmt.Errorf("%v is not an integer", n)
			}
			return int64(n), nil
		case json.Number:
			return n.Int64()
		case string:
			return strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		case []byte:
			return strconv.ParseInt(strings.TrimSpace(string(n)), 10, 64)
		}
	case TypeFloat:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case json.Number:
			return n.Float64()
		case string:
			return strconv.ParseFloat(strings.TrimSpace(n), 64)
		case []byte:
			return strconv.ParseFloat(strings.TrimSpace(string(n)), 64)
		}
	case TypeBoolean:
		switch b := v.(type) {
		case bool:
			return b, nil
		case int64:
			return b != 0, nil
		case int:
			return b != 0, nil
		case string:
			return strconv.ParseBool(strings.TrimSpace(b))
		case []byte:
			return strconv.ParseBool(strings.TrimSpace(string(b)))
		}
	case TypeDateTime:
		switch d := v.(type) {
		case time.Time:
			return d.UTC(), nil
		case string:
			return parseDateTime(d)
		case []byte:
			return parseDateTime(string(d))
		}
	default:
		return nil, fmt.Errorf("unknown attribute type %q", t)
	}
	return nil, fmt.Errorf("cannot convert %T to %s", v, t)
}

func coerceArray(elem AttributeType, v any) (any, error) {
	var items []any
	switch arr := v.(type) {
	case []any:
		items = arr
	case []string:
		items = AnySlice(arr)
	case string:
		if err := json.Unmarshal([]byte(arr), &items); err != nil {
			return nil, fmt.Errorf("invalid JSON array: %w", err)
		}
	case []byte:
		if err := json.Unmarshal(arr, &items); err != nil {
			return nil, fmt.Errorf("invalid JSON array: %w", err)
		}
	default:
		return nil, fmt.Errorf("cannot convert %T to [%s]", v, elem)
	}
	out := make([]any, 0, len(items))
	for _, item := range items {
		c, err := coerce(elem, item)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func parseDateTime(s string) (any, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return nil, fmt.Errorf("invalid DateTime %q", s)
}
