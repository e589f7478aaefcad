package services

import (
	"fmt"
	"strings"

	"github.com/dukex/flowline/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// stepConfigSchemas holds the JSON schema each step type's config must satisfy.
var stepConfigSchemas = map[models.StepType]map[string]any{
	models.StepTypeEmail: {
		"type":     "object",
		"required": []any{"to"},
		"properties": map[string]any{
			"to":       map[string]any{"type": "string", "minLength": 1},
			"subject":  map[string]any{"type": "string"},
			"body":     map[string]any{"type": "string"},
			"template": map[string]any{"type": "string"},
		},
	},
	models.StepTypeAction: {
		"type":     "object",
		"required": []any{"action"},
		"properties": map[string]any{
			"action": map[string]any{"type": "string", "minLength": 1},
		},
	},
	models.StepTypeDelay: {
		"type": "object",
		"properties": map[string]any{
			"duration_minutes": map[string]any{"type": "integer", "minimum": 0},
		},
	},
	models.StepTypeCondition: {
		"type": "object",
	},
	models.StepTypeAPICall: {
		"type":     "object",
		"required": []any{"url"},
		"properties": map[string]any{
			"url":     map[string]any{"type": "string", "minLength": 1},
			"method":  map[string]any{"type": "string", "pattern": "(?i)^(GET|POST|PUT|PATCH|DELETE)$"},
			"headers": map[string]any{"type": "object"},
		},
	},
}

// validateStepConfig checks config against the schema of stepType.
func validateStepConfig(stepType models.StepType, config map[string]any) error {
	schema, ok := stepConfigSchemas[stepType]
	if !ok {
		return fmt.Errorf("no config schema for step type %q", stepType)
	}

	if config == nil {
		config = map[string]any{}
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		var errors []string
		for _, desc := range result.Errors() {
			errors = append(errors, desc.String())
		}

		return fmt.Errorf("validation errors: %s", strings.Join(errors, "; "))
	}

	return nil
}
