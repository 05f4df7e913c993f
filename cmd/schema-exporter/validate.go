package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/simstation/message"
)

// validateSchema validates an exported document against the meta-schema
func validateSchema(schema *message.JSONSchema, metaSchemaPath string) error {
	if metaSchemaPath == "" {
		return nil
	}

	abs, err := filepath.Abs(metaSchemaPath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}
	metaSchemaLoader := gojsonschema.NewReferenceLoader("file://" + filepath.ToSlash(abs))

	schemaBytes, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("failed to marshal schema for validation: %w", err)
	}

	result, err := gojsonschema.Validate(metaSchemaLoader, gojsonschema.NewBytesLoader(schemaBytes))
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	if !result.Valid() {
		errMsg := fmt.Sprintf("Schema validation failed for %s:\n", schema.Title)
		for _, desc := range result.Errors() {
			errMsg += fmt.Sprintf("  - %s: %s\n", desc.Field(), desc.Description())
		}
		return fmt.Errorf("%s", errMsg)
	}
	return nil
}

// loadMetaSchemaPath determines the path to the meta-schema file
func loadMetaSchemaPath() (string, error) {
	possiblePaths := []string{
		"./specs/message-schema-meta.json",
		"../specs/message-schema-meta.json",
		"../../specs/message-schema-meta.json",
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err != nil {
				return "", fmt.Errorf("failed to get absolute path: %w", err)
			}
			return absPath, nil
		}
	}

	return "", fmt.Errorf("meta-schema not found in any of: %v", possiblePaths)
}
