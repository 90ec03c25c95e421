// Package schemas provides JSON Schema validation for stage documents and
// exported run artifacts.
package schemas

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ValidationError lists every schema violation of a document.
type ValidationError struct {
	Errors []FieldError
}

// FieldError is one violation at a dotted field path ("(root)" for the document
// itself).
type FieldError struct {
	Field   string
	Message string
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("validation failed:\n")
	for i, fe := range ve.Errors {
		fmt.Fprintf(&sb, "  %d. %s: %s\n", i+1, fe.Field, fe.Message)
	}
	return sb.String()
}

// SchemaLoadError means the schema itself could not be read or compiled.
type SchemaLoadError struct {
	Path    string
	Message string
	Cause   error
}

func (e *SchemaLoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load schema %s: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load schema %s: %s", e.Path, e.Message)
}

func (e *SchemaLoadError) Unwrap() error {
	return e.Cause
}

// ValidateJSON validates the JSON file at jsonPath against the schema file at
// schemaPath. Relative $refs in the schema resolve against its directory.
func ValidateJSON(schemaPath, jsonPath string) error {
	schemaAbs, err := filepath.Abs(schemaPath)
	if err != nil {
		return fmt.Errorf("failed to resolve schema path: %w", err)
	}
	if _, err := os.Stat(schemaAbs); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("schema file not found: %s", schemaAbs)
	}

	doc, err := os.ReadFile(jsonPath)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("JSON file not found: %s", jsonPath)
	}
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if !json.Valid(doc) {
		return fmt.Errorf("JSON file %s is not valid JSON", jsonPath)
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewReferenceLoader("file://" + filepath.ToSlash(schemaAbs)))
	if err != nil {
		return &SchemaLoadError{Path: schemaAbs, Message: "invalid schema", Cause: err}
	}
	return validateWith(schema, gojsonschema.NewBytesLoader(doc))
}

// ValidateJSONString validates jsonContent against schemaContent.
func ValidateJSONString(schemaContent, jsonContent string) error {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaContent))
	if err != nil {
		return &SchemaLoadError{Path: "(string schema)", Message: "invalid schema", Cause: err}
	}
	return validateWith(schema, gojsonschema.NewStringLoader(jsonContent))
}

func validateWith(schema *gojsonschema.Schema, doc gojsonschema.JSONLoader) error {
	result, err := schema.Validate(doc)
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}
	if result.Valid() {
		return nil
	}

	ve := &ValidationError{Errors: make([]FieldError, 0, len(result.Errors()))}
	for _, desc := range result.Errors() {
		field := contextPath(desc)
		if field == "" {
			field = rootKey
		}
		ve.Errors = append(ve.Errors, FieldError{Field: field, Message: desc.Description()})
	}
	return ve
}
