// Package jsonschema compiles JSON Schemas once and validates documents
// against them, reporting the first few violations in one error.
package jsonschema

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// MaxReportedViolations bounds how many violations an error message lists.
const MaxReportedViolations = 5

// Schema is a compiled JSON Schema.
type Schema struct {
	name   string
	schema *gojsonschema.Schema
}

// ValidationError lists schema violations for a document.
type ValidationError struct {
	Schema     string
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Schema, strings.Join(e.Violations, "; "))
}

// Compile parses a schema document.
func Compile(name string, schemaJSON []byte) (*Schema, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return &Schema{name: name, schema: compiled}, nil
}

// MustCompile is Compile for package-level schemas.
func MustCompile(name string, schemaJSON []byte) *Schema {
	s, err := Compile(name, schemaJSON)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks doc; it returns *ValidationError when doc does not conform.
func (s *Schema) Validate(doc []byte) error {
	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("validate %s: %w", s.name, err)
	}
	if result.Valid() {
		return nil
	}
	violations := make([]string, 0, MaxReportedViolations)
	for i, violation := range result.Errors() {
		if i >= MaxReportedViolations {
			break
		}
		violations = append(violations, violation.String())
	}
	return &ValidationError{Schema: s.name, Violations: violations}
}
