package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/c360/simstation/message"
	"github.com/c360/simstation/simulation"
	"github.com/c360/simstation/station"
)

// Exported describes one written schema document.
type Exported struct {
	Type        string   `yaml:"type"`
	Description string   `yaml:"description,omitempty"`
	File        string   `yaml:"file"`
	ID          string   `yaml:"id"`
	Topics      []string `yaml:"topics,omitempty"`
	Required    []string `yaml:"required"`
}

// Index is the YAML catalog of the exported documents.
type Index struct {
	Draft   string     `yaml:"draft"`
	Strict  bool       `yaml:"strict"`
	Schemas []Exported `yaml:"schemas"`
}

var defaultTopics = map[string][]string{
	simulation.TypeSimState:      {simulation.TopicSimState},
	simulation.TypeEpoch:         {simulation.TopicEpoch},
	simulation.TypeStatus:        {simulation.TopicStatusReady, simulation.TopicStatusError},
	station.TypeStationState:     {station.DefaultStationStateTopic},
	station.TypePowerRequirement: {station.DefaultPowerRequirementTopic},
	station.TypePowerOutput:      {station.DefaultPowerOutputTopic},
}

func schemaFileName(messageType string) string {
	return fmt.Sprintf("%s.v1.json", messageType)
}

// exportSchemas writes <Type>.v1.json for every registered kind into dir, checking each
// document against the meta-schema when metaSchemaPath is set.
func exportSchemas(registry *message.Registry, dir, metaSchemaPath string) ([]Exported, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	var exported []Exported
	for _, messageType := range registry.Types() {
		doc, err := registry.JSONSchema(messageType)
		if err != nil {
			return nil, err
		}
		if err := validateSchema(doc, metaSchemaPath); err != nil {
			return nil, err
		}

		file := filepath.Join(dir, schemaFileName(messageType))
		if err := writeJSONSchema(file, doc); err != nil {
			return nil, fmt.Errorf("failed to write schema for %s: %w", messageType, err)
		}
		exported = append(exported, Exported{
			Type:        messageType,
			Description: doc.Description,
			File:        file,
			ID:          doc.ID,
			Topics:      defaultTopics[messageType],
			Required:    doc.Required,
		})
	}
	return exported, nil
}

// writeJSONSchema writes a schema document to a JSON file
func writeJSONSchema(filename string, schema *message.JSONSchema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}
	if err := os.WriteFile(filename, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

func writeIndex(dir, name string, strict bool, exported []Exported) (string, error) {
	index := Index{Draft: message.JSONSchemaDraft, Strict: strict, Schemas: make([]Exported, 0, len(exported))}
	for _, e := range exported {
		e.File = filepath.Base(e.File)
		index.Schemas = append(index.Schemas, e)
	}

	data, err := yaml.Marshal(&index)
	if err != nil {
		return "", fmt.Errorf("failed to marshal index: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return path, nil
}
