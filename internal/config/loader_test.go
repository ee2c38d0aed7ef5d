package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestExpandEnvVars(t *testing.T) {
	os.Setenv("TEST_VAR", "hello")
	defer os.Unsetenv("TEST_VAR")

	tests := []struct {
		input    string
		expected string
	}{
		{"${TEST_VAR}", "hello"},
		{"${TEST_VAR:default}", "hello"},
		{"${UNSET_VAR:fallback}", "fallback"},
		{"${UNSET_VAR}", ""},
		{"no vars here", "no vars here"},
		{"prefix-${TEST_VAR}-suffix", "prefix-hello-suffix"},
	}

	for _, tt := range tests {
		got := expandEnvVars(tt.input)
		if got != tt.expected {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestLoadFile(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "test-config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpFile.Name())

	content := `
server:
  host: "0.0.0.0"
  port: 9999
`
	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatal(err)
	}
	tmpFile.Close()

	var cfg Config
	if err := LoadFile(tmpFile.Name(), &cfg); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected host 0.0.0.0, got %s", cfg.Server.Host)
	}
}

func TestLoadFile_WithEnvVars(t *testing.T) {
	os.Setenv("TEST_PORT", "7777")
	defer os.Unsetenv("TEST_PORT")

	tmpFile, err := os.CreateTemp("", "test-config-env-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpFile.Name())

	content := `
server:
  host: "${TEST_HOST:127.0.0.1}"
  port: ${TEST_PORT}
`
	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatal(err)
	}
	tmpFile.Close()

	var cfg Config
	if err := LoadFile(tmpFile.Name(), &cfg); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("expected host 127.0.0.1 (default), got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("expected port 7777, got %d", cfg.Server.Port)
	}
}

func writeConfigDir(t *testing.T, actionsYAML string) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"village.yaml": `
server:
  port: 8088
`,
		"providers.yaml": `
providers:
  local:
    type: ollama
    base_url: http://localhost:11434
    max_concurrent: 2
    timeout: 30s
`,
		"models.yaml": `
default: villager
models:
  villager:
    primary:
      provider: local
      model: qwen3:8b
`,
		"actions.yaml": actionsYAML,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestLoad_FullDirectory(t *testing.T) {
	dir := writeConfigDir(t, `
actions:
  - name: gather
    description: Collect nearby resources
  - name: rest
    description: Recover energy
synonyms:
  collect: gather
`)

	loader := NewLoader(dir, slog.Default())
	if err := loader.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loader.Config().Server.Port != 8088 {
		t.Errorf("port = %d, want 8088", loader.Config().Server.Port)
	}
	if loader.Models().ModelFor("anyone") != "villager" {
		t.Errorf("default model = %q, want villager", loader.Models().ModelFor("anyone"))
	}
	if _, ok := loader.Providers().Providers["local"]; !ok {
		t.Error("missing local provider")
	}
	v, err := loader.Actions().Vocabulary()
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := v.Canonicalize("collect"); got != "gather" {
		t.Errorf("synonym not loaded: %q", got)
	}
}

func TestLoad_RejectsInvalidVocabulary(t *testing.T) {
	dir := writeConfigDir(t, `
actions:
  - name: gather
    description: Collect nearby resources
synonyms:
  fly: soar
`)

	loader := NewLoader(dir, slog.Default())
	if err := loader.Load(); err == nil {
		t.Fatal("expected error for synonym mapping to unknown action")
	}
}

func TestModelsConfig_CostUSD(t *testing.T) {
	m := &ModelsConfig{
		Pricing: map[string]map[string]PriceEntry{
			"openai": {"gpt-4o-mini": {Input: 0.15, Output: 0.60}},
		},
	}

	cost := m.CostUSD("openai", "gpt-4o-mini", 1_000_000, 500_000)
	if cost < 0.449 || cost > 0.451 {
		t.Errorf("cost = %v, want 0.45", cost)
	}
	if m.CostUSD("openai", "unknown", 1000, 1000) != 0 {
		t.Error("unknown model should cost zero")
	}
}
