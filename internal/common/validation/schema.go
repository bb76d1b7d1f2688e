package validation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Property describes the constraints on a single string value.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Pattern     string   `json:"pattern,omitempty"`
	Format      string   `json:"format,omitempty"`
	MinLength   *int     `json:"minLength,omitempty"`
	MaxLength   *int     `json:"maxLength,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

type JSONSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Messages joins every error message, prefixed with its field.
func (r *ValidationResult) Messages() string {
	parts := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return strings.Join(parts, "; ")
}

// ValueValidator checks one free-text value against a compiled schema.
type ValueValidator struct {
	field  string
	schema *gojsonschema.Schema
}

const valueKey = "value"

// NewValueValidator compiles prop into a reusable validator. field is only
// used to label errors.
func NewValueValidator(field string, prop Property) (*ValueValidator, error) {
	if prop.Type == "" {
		prop.Type = "string"
	}
	doc := JSONSchema{
		Type:       "object",
		Properties: map[string]Property{valueKey: prop},
		Required:   []string{valueKey},
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", field, err)
	}
	return &ValueValidator{field: field, schema: schema}, nil
}

func (v *ValueValidator) Validate(value string) *ValidationResult {
	result, err := v.schema.Validate(gojsonschema.NewGoLoader(map[string]interface{}{valueKey: value}))
	if err != nil {
		return &ValidationResult{Errors: []ValidationError{{
			Field:   v.field,
			Message: err.Error(),
			Code:    "SCHEMA_ERROR",
		}}}
	}
	return convert(result, func(string) string { return v.field })
}

// ValidateDocument validates an already-decoded document (JSON or YAML)
// against a JSON schema given as text.
func ValidateDocument(schemaJSON string, doc interface{}) (*ValidationResult, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schemaJSON),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return nil, fmt.Errorf("validate document: %w", err)
	}
	return convert(result, func(f string) string { return f }), nil
}

func convert(result *gojsonschema.Result, field func(string) string) *ValidationResult {
	out := &ValidationResult{Valid: result.Valid()}
	for _, e := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   field(e.Field()),
			Message: e.Description(),
			Code:    errorCode(e.Type()),
		})
	}
	return out
}

func errorCode(kind string) string {
	switch kind {
	case "required":
		return "REQUIRED_FIELD_MISSING"
	case "pattern":
		return "PATTERN_MISMATCH"
	case "string_gte":
		return "MIN_LENGTH_VIOLATION"
	case "string_lte":
		return "MAX_LENGTH_VIOLATION"
	case "enum":
		return "INVALID_ENUM_VALUE"
	case "invalid_type":
		return "INVALID_TYPE"
	case "format":
		return "FORMAT_MISMATCH"
	case "additional_property_not_allowed":
		return "EXTRA_FIELD"
	default:
		return strings.ToUpper(kind)
	}
}
