// Command schema-exporter writes a JSON Schema document for every message kind the
// station understands, plus a YAML index of the exported documents.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/c360/simstation/message"
	"github.com/c360/simstation/simulation"
	"github.com/c360/simstation/station"
)

func main() {
	if err := run(os.Args[1:], os.Stderr); err != nil {
		log.Fatalf("Schema export failed: %v", err)
	}
}

func run(args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("schema-exporter", flag.ContinueOnError)
	fs.SetOutput(stderr)
	outDir := fs.String("out", "./schemas", "Output directory for schemas")
	indexName := fs.String("index", "index.yaml", "Index file name inside the output directory, empty to skip")
	metaSchema := fs.String("meta", "", "Optional meta-schema every exported document must satisfy")
	lenient := fs.Bool("lenient", false, "Export lenient schemas that allow undeclared attributes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger := log.New(stderr, "", log.LstdFlags)
	logger.Printf("Schema Exporter")
	logger.Printf("  Output dir: %s", *outDir)

	registry, err := newRegistry(!*lenient)
	if err != nil {
		return fmt.Errorf("register messages: %w", err)
	}
	logger.Printf("Found %d message kinds", len(registry.Types()))

	metaPath := *metaSchema
	if metaPath == "" {
		if found, err := loadMetaSchemaPath(); err == nil {
			metaPath = found
			logger.Printf("Using meta-schema: %s", metaPath)
		}
	}

	exported, err := exportSchemas(registry, *outDir, metaPath)
	if err != nil {
		return err
	}
	for _, e := range exported {
		logger.Printf("  Generated: %s", e.File)
	}

	if *indexName != "" {
		path, err := writeIndex(*outDir, *indexName, registry.Strict(), exported)
		if err != nil {
			return fmt.Errorf("write index: %w", err)
		}
		logger.Printf("  Generated index: %s", path)
	}

	logger.Printf("Schema generation complete")
	return nil
}

// newRegistry registers the core simulation kinds and the station kinds.
func newRegistry(strict bool) (*message.Registry, error) {
	registry := message.NewRegistry(message.WithStrict(strict))
	if err := simulation.RegisterCore(registry); err != nil {
		return nil, err
	}
	if err := station.RegisterMessages(registry); err != nil {
		return nil, err
	}
	return registry, nil
}
