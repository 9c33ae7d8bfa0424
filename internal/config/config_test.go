package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Paintersrp/lifelog/internal/config"
)

func writeConfig(t *testing.T, home string, data map[string]any) {
	t.Helper()

	configPath := config.GetConfigPath(home)
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("failed to create config directory: %v", err)
	}

	raw, err := yaml.Marshal(data)
	if err != nil {
		t.Fatalf("failed to marshal config data: %v", err)
	}

	if err := os.WriteFile(configPath, raw, 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
}

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestEnsureConfigExistsCreatesDefaultWorkspace(t *testing.T) {
	home := t.TempDir()

	if err := config.EnsureConfigExists(home); err != nil {
		t.Fatalf("EnsureConfigExists returned error: %v", err)
	}

	cfg, err := config.Load(home)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.CurrentWorkspace != "default" {
		t.Fatalf("expected default workspace, got %q", cfg.CurrentWorkspace)
	}

	ws, err := cfg.ActiveWorkspace()
	if err != nil {
		t.Fatalf("ActiveWorkspace returned error: %v", err)
	}
	if ws.Collection != "lifelogs" || ws.Ordering != "order-key" || ws.BatchPolicy != "drop" {
		t.Fatalf("unexpected defaults: %+v", ws)
	}
}

func TestLoadRejectsUnknownOrdering(t *testing.T) {
	home := t.TempDir()
	writeConfig(t, home, map[string]any{
		"current_workspace": "main",
		"workspaces": map[string]any{
			"main": map[string]any{"ordering": "skip-list"},
		},
	})

	_, err := config.Load(home)
	if err == nil {
		t.Fatalf("expected load to fail for an unknown ordering")
	}
	if !strings.Contains(err.Error(), "skip-list") {
		t.Fatalf("expected error to name the ordering, got %v", err)
	}
}

func TestLoadRejectsUnknownPolicy(t *testing.T) {
	home := t.TempDir()
	writeConfig(t, home, map[string]any{
		"workspaces": map[string]any{
			"main": map[string]any{"batch_policy": "retry"},
		},
	})

	if _, err := config.Load(home); err == nil {
		t.Fatalf("expected load to fail for an unknown batch policy")
	}
}

func TestSettingsResolveDefaults(t *testing.T) {
	resetViper(t)
	home := t.TempDir()
	writeConfig(t, home, map[string]any{
		"current_workspace": "main",
		"workspaces": map[string]any{
			"main": map[string]any{
				"collection": "journal",
				"orderings":  map[string]string{"journal": "linked-list"},
			},
		},
	})

	cfg, err := config.Load(home)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	s, err := cfg.Settings()
	if err != nil {
		t.Fatalf("Settings returned error: %v", err)
	}

	if s.Collection != "journal" || s.Ordering != "linked-list" {
		t.Fatalf("unexpected collection settings: %+v", s)
	}
	if s.Driver != config.DriverSQLite {
		t.Fatalf("expected sqlite driver, got %q", s.Driver)
	}
	want := filepath.Join(home, ".lifelog", "main.db")
	if s.Database != want {
		t.Fatalf("expected database %q, got %q", want, s.Database)
	}
	if s.Broadcast.Channel != "lifelog:commits" {
		t.Fatalf("expected default channel, got %q", s.Broadcast.Channel)
	}
}

func TestSettingsApplyViperOverrides(t *testing.T) {
	resetViper(t)
	home := t.TempDir()
	writeConfig(t, home, map[string]any{
		"workspaces": map[string]any{
			"main": map[string]any{"database": filepath.Join(home, "local.db")},
		},
	})

	t.Setenv("LIFELOG_DATABASE", "postgres://user@localhost/lifelog")
	t.Setenv("LIFELOG_COLLECTION", "inbox")
	viper.SetEnvPrefix("LIFELOG")
	for _, key := range []string{"database", "remote_url", "redis_url", "collection"} {
		if err := viper.BindEnv(key); err != nil {
			t.Fatalf("BindEnv(%q): %v", key, err)
		}
	}

	cfg, err := config.Load(home)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	s, err := cfg.Settings()
	if err != nil {
		t.Fatalf("Settings returned error: %v", err)
	}

	if s.Driver != config.DriverPostgres {
		t.Fatalf("expected postgres driver, got %q", s.Driver)
	}
	if s.Collection != "inbox" || s.Ordering != "order-key" {
		t.Fatalf("unexpected overrides: %+v", s)
	}

	if err := cfg.Save(); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	reloaded, err := config.Load(home)
	if err != nil {
		t.Fatalf("reload returned error: %v", err)
	}
	ws, _ := reloaded.ActiveWorkspace()
	if ws.Database != filepath.Join(home, "local.db") || ws.Collection != "lifelogs" {
		t.Fatalf("overrides leaked into the saved file: %+v", ws)
	}
}

func TestDriverFor(t *testing.T) {
	tests := map[string]string{
		"memory":                      config.DriverMemory,
		"postgres://localhost/db":     config.DriverPostgres,
		"postgresql://localhost/db":   config.DriverPostgres,
		"/var/lib/lifelog/lifelog.db": config.DriverSQLite,
		"relative.db":                 config.DriverSQLite,
	}
	for target, want := range tests {
		if got := config.DriverFor(target); got != want {
			t.Fatalf("DriverFor(%q) = %q, want %q", target, got, want)
		}
	}
}

func TestWorkspaceLifecycle(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	if err := config.EnsureConfigExists(home); err != nil {
		t.Fatalf("EnsureConfigExists returned error: %v", err)
	}

	cfg, err := config.Load(home)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if err := cfg.AddWorkspace("work", nil, true); err != nil {
		t.Fatalf("AddWorkspace returned error: %v", err)
	}
	if err := cfg.AddWorkspace("work", nil, false); err == nil {
		t.Fatalf("expected duplicate workspace to fail")
	}
	if err := cfg.ChangeOrdering("", "linked-list"); err != nil {
		t.Fatalf("ChangeOrdering returned error: %v", err)
	}
	if err := cfg.ChangeOrdering("", "nope"); err == nil {
		t.Fatalf("expected invalid ordering to fail")
	}

	reloaded, err := config.Load(home)
	if err != nil {
		t.Fatalf("reload returned error: %v", err)
	}
	if reloaded.CurrentWorkspace != "work" {
		t.Fatalf("expected current workspace work, got %q", reloaded.CurrentWorkspace)
	}
	ws, _ := reloaded.ActiveWorkspace()
	if ws.Ordering != "linked-list" {
		t.Fatalf("expected persisted ordering, got %q", ws.Ordering)
	}
	if got := strings.Join(reloaded.WorkspaceNames(), ","); got != "default,work" {
		t.Fatalf("unexpected workspace names %q", got)
	}

	if err := reloaded.RemoveWorkspace("work"); err != nil {
		t.Fatalf("RemoveWorkspace returned error: %v", err)
	}
	if reloaded.CurrentWorkspace != "default" {
		t.Fatalf("expected fallback to default, got %q", reloaded.CurrentWorkspace)
	}
	if err := reloaded.RemoveWorkspace("default"); err == nil {
		t.Fatalf("expected removing the last workspace to fail")
	}
}
