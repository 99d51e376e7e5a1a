package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestBuildCredentialProviderFromEnv(t *testing.T) {
	t.Setenv("TEST_ANTHROPIC_KEY", "sk-secret-value")

	p := BuildCredentialProvider(CredentialsManifest{
		ProviderCredentials: []ProviderCredential{
			{ID: "anthropic", Provider: "anthropic", Auth: CredentialAuth{Type: "api_key", Source: "env", EnvVar: "TEST_ANTHROPIC_KEY"}},
		},
	})

	v, ok := p.Get("anthropic")
	if !ok || v != "sk-secret-value" {
		t.Fatalf("got (%q, %v), want (sk-secret-value, true)", v, ok)
	}
}

func TestBuildCredentialProviderFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keys.json")
	doc, _ := json.Marshal(map[string]string{"api_key": "file-secret-value"})
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		t.Fatalf("write key file: %v", err)
	}

	p := BuildCredentialProvider(CredentialsManifest{
		ProviderCredentials: []ProviderCredential{
			{ID: "openai", Provider: "openai", Auth: CredentialAuth{Type: "api_key", Source: "file", FilePath: path, FileKey: "api_key"}},
		},
	})

	v, ok := p.Get("openai")
	if !ok || v != "file-secret-value" {
		t.Fatalf("got (%q, %v), want (file-secret-value, true)", v, ok)
	}
}

func TestBuildCredentialProviderPlainFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "key.txt")
	if err := os.WriteFile(path, []byte("  plain-secret  \n"), 0o644); err != nil {
		t.Fatalf("write key file: %v", err)
	}

	p := BuildCredentialProvider(CredentialsManifest{
		ProviderCredentials: []ProviderCredential{
			{ID: "local", Provider: "local", Auth: CredentialAuth{Type: "api_key", Source: "file", FilePath: path}},
		},
	})

	v, ok := p.Get("local")
	if !ok || v != "plain-secret" {
		t.Fatalf("got (%q, %v), want (plain-secret, true)", v, ok)
	}
}

func TestBuildCredentialProviderUnresolvedIsAbsentNotFatal(t *testing.T) {
	p := BuildCredentialProvider(CredentialsManifest{
		ProviderCredentials: []ProviderCredential{
			{ID: "missing", Provider: "anthropic", Auth: CredentialAuth{Type: "api_key", Source: "env", EnvVar: "TEST_DEFINITELY_UNSET_VAR"}},
		},
	})

	if _, ok := p.Get("missing"); ok {
		t.Fatal("expected unresolved credential to be absent, not present")
	}
}

func TestScrubPayloadRedactsKnownSecrets(t *testing.T) {
	t.Setenv("TEST_SCRUB_KEY", "top-secret")
	p := BuildCredentialProvider(CredentialsManifest{
		ProviderCredentials: []ProviderCredential{
			{ID: "svc", Provider: "svc", Auth: CredentialAuth{Type: "api_key", Source: "env", EnvVar: "TEST_SCRUB_KEY"}},
		},
	})

	payload := map[string]any{
		"authorization": "top-secret",
		"stage_id":      "plan",
		"count":         3,
	}
	scrubbed := p.ScrubPayload(payload)
	if scrubbed["authorization"] != "[redacted]" {
		t.Fatalf("got %v, want redacted secret", scrubbed["authorization"])
	}
	if scrubbed["stage_id"] != "plan" {
		t.Fatalf("non-secret field should pass through unchanged, got %v", scrubbed["stage_id"])
	}
	if scrubbed["count"] != 3 {
		t.Fatalf("non-string field should pass through unchanged, got %v", scrubbed["count"])
	}
}

func TestScrubPayloadNilProviderIsNoop(t *testing.T) {
	var p *EnvCredentialProvider
	payload := map[string]any{"a": "b"}
	if got := p.ScrubPayload(payload); got["a"] != "b" {
		t.Fatalf("nil provider should pass payload through unchanged")
	}
}
