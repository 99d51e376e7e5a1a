package manifest

import (
	"errors"
	"testing"

	"github.com/antigravity-dev/agentengine/internal/telemetry"
)

type recordingPlugin struct {
	config map[string]any
}

func (p *recordingPlugin) Handle(telemetry.Event) {}

func TestPluginRegistryBuildsEnabledPlugins(t *testing.T) {
	r := NewPluginRegistry()
	r.Register("recorder", func(config map[string]any) (telemetry.Plugin, error) {
		return &recordingPlugin{config: config}, nil
	})

	plugins, err := r.Build(PluginsManifest{
		Plugins: []PluginConfig{
			{ID: "recorder", Enabled: true, Config: map[string]any{"path": "/tmp/log"}},
		},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(plugins) != 1 {
		t.Fatalf("got %d plugins, want 1", len(plugins))
	}
	rp, ok := plugins[0].(*recordingPlugin)
	if !ok {
		t.Fatalf("unexpected plugin type %T", plugins[0])
	}
	if rp.config["path"] != "/tmp/log" {
		t.Fatalf("config not threaded through, got %+v", rp.config)
	}
}

func TestPluginRegistrySkipsDisabled(t *testing.T) {
	r := NewPluginRegistry()
	called := false
	r.Register("recorder", func(config map[string]any) (telemetry.Plugin, error) {
		called = true
		return &recordingPlugin{}, nil
	})

	plugins, err := r.Build(PluginsManifest{
		Plugins: []PluginConfig{{ID: "recorder", Enabled: false}},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(plugins) != 0 {
		t.Fatalf("got %d plugins, want 0 for disabled entry", len(plugins))
	}
	if called {
		t.Fatal("factory should not be called for a disabled plugin")
	}
}

func TestPluginRegistryUnknownIDFails(t *testing.T) {
	r := NewPluginRegistry()
	_, err := r.Build(PluginsManifest{
		Plugins: []PluginConfig{{ID: "nonexistent", Enabled: true}},
	})
	if err == nil {
		t.Fatal("expected error for unregistered plugin id")
	}
}

func TestPluginRegistryFactoryErrorWrapped(t *testing.T) {
	r := NewPluginRegistry()
	wantErr := errors.New("boom")
	r.Register("broken", func(config map[string]any) (telemetry.Plugin, error) {
		return nil, wantErr
	})

	_, err := r.Build(PluginsManifest{
		Plugins: []PluginConfig{{ID: "broken", Enabled: true}},
	})
	if err == nil {
		t.Fatal("expected error from failing factory")
	}
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped error to unwrap to factory error, got %v", err)
	}
}
