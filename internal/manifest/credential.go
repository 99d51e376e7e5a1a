package manifest

import (
	"encoding/json"
	"os"
	"strings"
)

// CredentialProvider resolves a named credential to its secret value.
// spec.md §6: "Credentials are read through a dedicated credential
// provider; values never appear in telemetry." Grounded on
// original_source/credential_loader.py's ProviderCredential/AuthConfig
// ("v1 only supports api_key", sourced from env or a file).
type CredentialProvider interface {
	Get(name string) (string, bool)
}

// EnvCredentialProvider resolves every configured credential from the
// manifest's declared source (environment variable or a JSON key file) at
// construction time, so later lookups never touch the filesystem again.
type EnvCredentialProvider struct {
	values map[string]string
}

// BuildCredentialProvider resolves every credential declared in m eagerly.
// A credential whose source cannot be resolved (missing env var, missing
// file, missing key) is simply absent from Get rather than failing load —
// spec.md §7 reserves load-time fatality for manifest/schema/DAG
// violations, not for an unset optional secret.
func BuildCredentialProvider(m CredentialsManifest) *EnvCredentialProvider {
	values := make(map[string]string, len(m.ProviderCredentials))
	for _, c := range m.ProviderCredentials {
		if v, ok := resolveCredential(c.Auth); ok {
			values[c.ID] = v
		}
	}
	return &EnvCredentialProvider{values: values}
}

func resolveCredential(auth CredentialAuth) (string, bool) {
	switch auth.Source {
	case "env":
		if auth.EnvVar == "" {
			return "", false
		}
		v := os.Getenv(auth.EnvVar)
		return v, v != ""
	case "file":
		if auth.FilePath == "" {
			return "", false
		}
		data, err := os.ReadFile(auth.FilePath)
		if err != nil {
			return "", false
		}
		if auth.FileKey == "" {
			return strings.TrimSpace(string(data)), true
		}
		var doc map[string]any
		if err := json.Unmarshal(data, &doc); err != nil {
			return "", false
		}
		v, ok := doc[auth.FileKey].(string)
		return v, ok && v != ""
	default:
		return "", false
	}
}

// Get implements CredentialProvider.
func (p *EnvCredentialProvider) Get(name string) (string, bool) {
	v, ok := p.values[name]
	return v, ok
}

// ScrubPayload returns a copy of payload with any string value equal to a
// known credential secret replaced by a redaction marker. Neither the
// telemetry bus nor the engine calls it, so event payloads reach the bus
// unscrubbed.
func (p *EnvCredentialProvider) ScrubPayload(payload map[string]any) map[string]any {
	if p == nil || len(p.values) == 0 || payload == nil {
		return payload
	}
	secrets := make(map[string]bool, len(p.values))
	for _, v := range p.values {
		secrets[v] = true
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if s, ok := v.(string); ok && secrets[s] {
			out[k] = "[redacted]"
			continue
		}
		out[k] = v
	}
	return out
}
