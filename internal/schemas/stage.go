package schemas

import (
	"embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/jonathan/gtm-copilot/internal/types"
)

//go:embed stages/*.schema.json
var stageFS embed.FS

// ValidationResult is the outcome of checking a document against its stage
// contract. MissingKeys holds sorted, de-duplicated dotted paths.
type ValidationResult struct {
	Valid       bool     `json:"valid"`
	MissingKeys []string `json:"missing_keys,omitempty"`
}

// SchemaError means a document failed its stage contract.
type SchemaError struct {
	Stage       types.Stage
	MissingKeys []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s document failed schema: missing or invalid %s", e.Stage, strings.Join(e.MissingKeys, ", "))
}

// Err returns nil for a valid result, otherwise a *SchemaError for stage.
func (r ValidationResult) Err(stage types.Stage) error {
	if r.Valid {
		return nil
	}
	return &SchemaError{Stage: stage, MissingKeys: r.MissingKeys}
}

const rootKey = "(root)"

var (
	stageSchemasOnce sync.Once
	stageSchemas     map[types.Stage]*gojsonschema.Schema
	stageSchemasErr  error
)

func loadStageSchemas() (map[types.Stage]*gojsonschema.Schema, error) {
	stageSchemasOnce.Do(func() {
		stageSchemas = make(map[types.Stage]*gojsonschema.Schema)
		for _, stage := range []types.Stage{types.StageIntel, types.StageStrategy, types.StageBattlecards, types.StageMessaging} {
			content, err := StageSchema(stage)
			if err != nil {
				stageSchemasErr = err
				return
			}
			schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(content))
			if err != nil {
				stageSchemasErr = &SchemaLoadError{Path: schemaFile(stage), Message: "invalid stage schema", Cause: err}
				return
			}
			stageSchemas[stage] = schema
		}
	})
	return stageSchemas, stageSchemasErr
}

func schemaFile(stage types.Stage) string {
	return "stages/" + string(stage) + ".schema.json"
}

// StageSchema returns the raw JSON Schema for a stage. The repair stage shares
// the strategy contract.
func StageSchema(stage types.Stage) (string, error) {
	data, err := stageFS.ReadFile(schemaFile(stage.SchemaStage()))
	if err != nil {
		return "", &SchemaLoadError{Path: schemaFile(stage), Message: "no schema for stage", Cause: err}
	}
	return string(data), nil
}

// ValidateStage checks doc against the stage contract. It is pure: the same
// input always yields the same result and doc is never modified. A stage
// without a contract is reported invalid at the root.
func ValidateStage(doc map[string]any, stage types.Stage) ValidationResult {
	if doc == nil {
		return ValidationResult{Valid: false, MissingKeys: []string{rootKey}}
	}

	all, err := loadStageSchemas()
	if err != nil {
		return ValidationResult{Valid: false, MissingKeys: []string{rootKey}}
	}
	schema, ok := all[stage.SchemaStage()]
	if !ok {
		return ValidationResult{Valid: false, MissingKeys: []string{rootKey}}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return ValidationResult{Valid: false, MissingKeys: []string{rootKey}}
	}
	if result.Valid() {
		return ValidationResult{Valid: true}
	}
	return ValidationResult{Valid: false, MissingKeys: missingKeys(result.Errors())}
}

// missingKeys turns schema errors into dotted key paths. A "required" error is
// reported at the missing property, everything else at the offending field.
func missingKeys(errs []gojsonschema.ResultError) []string {
	seen := make(map[string]bool, len(errs))
	out := make([]string, 0, len(errs))
	for _, desc := range errs {
		path := contextPath(desc)
		if desc.Type() == "required" {
			if prop, ok := desc.Details()["property"].(string); ok && prop != "" {
				path = joinPath(path, prop)
			}
		}
		if path == "" {
			path = rootKey
		}
		if !seen[path] {
			seen[path] = true
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}

// contextPath returns the error location without the root marker, "" at root.
func contextPath(desc gojsonschema.ResultError) string {
	if desc.Context() == nil {
		return ""
	}
	path := strings.TrimPrefix(desc.Context().String(), rootKey)
	return strings.TrimPrefix(path, ".")
}

func joinPath(parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + "." + child
}
