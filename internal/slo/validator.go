package slo

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// Validator handles definition validation
type Validator struct {
	schema *jsonschema.Schema
}

const schemaURL = "burnwatch://schemas/slo_v1.json"

// NewValidator creates a validator with the embedded definition schema
func NewValidator() (*Validator, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(definitionSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}

	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &Validator{schema: schema}, nil
}

// ValidateDirectory loads and validates all definition files in a directory
func (v *Validator) ValidateDirectory(dirPath string) []ValidationError {
	defsWithFiles, loadErrors := LoadFromDirectory(dirPath)

	var allErrors []ValidationError
	allErrors = append(allErrors, loadErrors...)

	if len(defsWithFiles) == 0 {
		return allErrors
	}

	for _, dwf := range defsWithFiles {
		allErrors = append(allErrors, v.ValidateDefinition(dwf.File, dwf.Definition)...)
	}

	allErrors = append(allErrors, checkDuplicateIDs(defsWithFiles)...)

	return allErrors
}

// ValidateDefinition validates a single definition against the JSON schema
// and the cross-field invariants. Defaults are applied before the invariant
// checks so a sparse definition is judged on its effective values.
func (v *Validator) ValidateDefinition(file string, def *Definition) []ValidationError {
	var errors []ValidationError

	errors = append(errors, v.validateSchema(file, def)...)
	if len(errors) > 0 {
		return errors
	}

	effective := *def
	effective.ApplyDefaults()
	if err := effective.Validate(); err != nil {
		errors = append(errors, ValidationError{
			File:    file,
			Message: err.Error(),
		})
	}

	return errors
}

// validateSchema validates a single definition against the JSON schema
func (v *Validator) validateSchema(file string, def *Definition) []ValidationError {
	var errors []ValidationError

	// Round-trip through YAML so schema validation sees plain maps
	yamlBytes, err := yaml.Marshal(def)
	if err != nil {
		errors = append(errors, ValidationError{
			File:    file,
			Message: fmt.Sprintf("failed to marshal definition: %v", err),
		})
		return errors
	}

	var jsonData interface{}
	if err := yaml.Unmarshal(yamlBytes, &jsonData); err != nil {
		errors = append(errors, ValidationError{
			File:    file,
			Message: fmt.Sprintf("failed to convert to JSON: %v", err),
		})
		return errors
	}

	if err := v.schema.Validate(jsonData); err != nil {
		if validationErr, ok := err.(*jsonschema.ValidationError); ok {
			errors = append(errors, extractSchemaErrors(file, validationErr)...)
		} else {
			errors = append(errors, ValidationError{
				File:    file,
				Message: err.Error(),
			})
		}
	}

	return errors
}

// extractSchemaErrors converts JSON schema validation errors to ValidationErrors
func extractSchemaErrors(file string, err *jsonschema.ValidationError) []ValidationError {
	var errors []ValidationError

	path := strings.Join(err.InstanceLocation, ".")
	if path == "" {
		path = "(root)"
	}

	errors = append(errors, ValidationError{
		File:    file,
		Path:    path,
		Message: err.Error(),
	})

	for _, cause := range err.Causes {
		errors = append(errors, extractSchemaErrors(file, cause)...)
	}

	return errors
}

// checkDuplicateIDs reports definitions sharing an ID across files
func checkDuplicateIDs(defsWithFiles []DefinitionWithFile) []ValidationError {
	var errors []ValidationError

	idSeen := make(map[string]string)
	for _, dwf := range defsWithFiles {
		id := dwf.Definition.ID
		if prevFile, exists := idSeen[id]; exists {
			errors = append(errors, ValidationError{
				File:    dwf.File,
				Path:    "id",
				Message: fmt.Sprintf("duplicate ID %q (also in %s)", id, filepath.Base(prevFile)),
			})
		} else {
			idSeen[id] = dwf.File
		}
	}

	return errors
}
