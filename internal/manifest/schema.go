package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// SchemaValidator validates a decoded payload against a named schema.
// spec.md §1 treats schema validation as an external collaborator — the
// engine core (agent runtime, node executor, tool runtime) only ever talks
// to this narrow interface, never to a concrete JSON-schema library.
type SchemaValidator interface {
	// Validate checks payload against the schema identified by schemaID,
	// returning the (possibly normalized) payload on success.
	Validate(schemaID string, payload any) (any, error)
}

// JSONSchemaRegistry is the concrete SchemaValidator backed by
// santhosh-tekuri/jsonschema/v6, loading `schemas/<schemaID>.json` by
// filename stem per spec.md §6. Grounded on goa-ai's
// validatePayloadJSONAgainstSchema (compile-then-validate via a fresh
// in-memory resource per schema), adapted to cache compiled schemas keyed
// by id since a registry validates many payloads against the same few
// schemas over a run's lifetime.
type JSONSchemaRegistry struct {
	dir string

	mu      sync.Mutex
	schemas map[string]*jsonschema.Schema
}

// NewJSONSchemaRegistry builds a registry rooted at dir (the manifest's
// schemas/ directory).
func NewJSONSchemaRegistry(dir string) *JSONSchemaRegistry {
	return &JSONSchemaRegistry{dir: dir, schemas: map[string]*jsonschema.Schema{}}
}

// Validate implements SchemaValidator. An empty schemaID is treated as "no
// schema declared" and always succeeds, matching spec.md's optional
// `outputs_schema_id`/`inputs_schema_id` fields.
func (r *JSONSchemaRegistry) Validate(schemaID string, payload any) (any, error) {
	if schemaID == "" {
		return payload, nil
	}
	schema, err := r.compiled(schemaID)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("manifest: marshal payload for schema %q: %w", schemaID, err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("manifest: unmarshal payload for schema %q: %w", schemaID, err)
	}

	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("manifest: payload failed schema %q: %w", schemaID, err)
	}
	return payload, nil
}

func (r *JSONSchemaRegistry) compiled(schemaID string) (*jsonschema.Schema, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.schemas[schemaID]; ok {
		return s, nil
	}

	path := filepath.Join(r.dir, schemaID+".json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: read schema %q: %w", schemaID, err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("manifest: parse schema %q: %w", schemaID, err)
	}

	c := jsonschema.NewCompiler()
	resourceName := schemaID + ".json"
	if err := c.AddResource(resourceName, doc); err != nil {
		return nil, fmt.Errorf("manifest: add schema resource %q: %w", schemaID, err)
	}
	schema, err := c.Compile(resourceName)
	if err != nil {
		return nil, fmt.Errorf("manifest: compile schema %q: %w", schemaID, err)
	}

	r.schemas[schemaID] = schema
	return schema, nil
}

// NoopValidator is a SchemaValidator that always succeeds, used by tests
// and by engine configurations that don't declare a schemas directory.
type NoopValidator struct{}

func (NoopValidator) Validate(_ string, payload any) (any, error) { return payload, nil }
