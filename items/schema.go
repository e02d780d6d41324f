package items

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

func bytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}

// SchemaRegistry holds an optional JSON Schema per content_type. Nothing
// requires a schema to be registered; a content_type with no schema
// always validates. This is the supplemented content-validation feature
// described alongside the model store's mapping pass: a non-fatal check
// run after a successful decrypt, not a hard gate.
type SchemaRegistry struct {
	mu      sync.RWMutex
	schemas map[string]*jsonschema.Schema
}

// NewSchemaRegistry returns an empty registry.
func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{schemas: map[string]*jsonschema.Schema{}}
}

// Register compiles schemaJSON and binds it to contentType.
func (r *SchemaRegistry) Register(contentType string, schemaJSON []byte) error {
	compiler := jsonschema.NewCompiler()
	resourceName := contentType + ".json"
	if err := compiler.AddResource(resourceName, bytesReader(schemaJSON)); err != nil {
		return fmt.Errorf("add schema resource %s: %w", contentType, err)
	}
	schema, err := compiler.Compile(resourceName)
	if err != nil {
		return fmt.Errorf("compile schema %s: %w", contentType, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[contentType] = schema
	return nil
}

// Validate checks it.Content against the schema registered for
// it.ContentType, if any. Returns nil when no schema is registered.
func (r *SchemaRegistry) Validate(it *Item) error {
	r.mu.RLock()
	schema, ok := r.schemas[it.ContentType]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	raw, err := json.Marshal(map[string]any(it.Content))
	if err != nil {
		return fmt.Errorf("marshal content for validation: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("unmarshal content for validation: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("content_type %s: %w", it.ContentType, err)
	}
	return nil
}
