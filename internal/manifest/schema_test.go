package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSchema(t *testing.T, dir, id, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, id+".json"), []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write test schema: %v", err)
	}
}

func TestJSONSchemaRegistry_ValidatesConformingPayload(t *testing.T) {
	dir := t.TempDir()
	writeSchema(t, dir, "greeting", `{
		"type": "object",
		"required": ["name"],
		"properties": {"name": {"type": "string"}}
	}`)
	r := NewJSONSchemaRegistry(dir)

	out, err := r.Validate("greeting", map[string]any{"name": "ada"})
	if err != nil {
		t.Fatalf("expected valid payload to pass, got %v", err)
	}
	if out == nil {
		t.Fatal("expected validated payload to be returned")
	}
}

func TestJSONSchemaRegistry_RejectsNonConformingPayload(t *testing.T) {
	dir := t.TempDir()
	writeSchema(t, dir, "greeting", `{
		"type": "object",
		"required": ["name"],
		"properties": {"name": {"type": "string"}}
	}`)
	r := NewJSONSchemaRegistry(dir)

	if _, err := r.Validate("greeting", map[string]any{"age": 5}); err == nil {
		t.Fatal("expected a missing required field to fail validation")
	}
}

func TestJSONSchemaRegistry_EmptySchemaIDAlwaysSucceeds(t *testing.T) {
	r := NewJSONSchemaRegistry(t.TempDir())
	out, err := r.Validate("", "anything")
	if err != nil || out != "anything" {
		t.Fatalf("expected no-op pass-through, got %v %v", out, err)
	}
}

func TestJSONSchemaRegistry_CachesCompiledSchema(t *testing.T) {
	dir := t.TempDir()
	writeSchema(t, dir, "once", `{"type": "string"}`)
	r := NewJSONSchemaRegistry(dir)

	if _, err := r.Validate("once", "a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Remove the backing file; a cache hit should not need to re-read it.
	if err := os.Remove(filepath.Join(dir, "once.json")); err != nil {
		t.Fatalf("failed to remove schema file: %v", err)
	}
	if _, err := r.Validate("once", "b"); err != nil {
		t.Fatalf("expected cached schema to validate without the file present, got %v", err)
	}
}

func TestNoopValidator_AlwaysSucceeds(t *testing.T) {
	var v NoopValidator
	out, err := v.Validate("whatever", 42)
	if err != nil || out != 42 {
		t.Fatalf("expected pass-through, got %v %v", out, err)
	}
}
