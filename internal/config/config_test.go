package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		EnvConfigFile, EnvHTTPAddr, EnvDBDriver, EnvDBDSN, EnvProvider,
		EnvModel, EnvOllamaBaseURL, EnvOpenAIAPIKey, EnvWhisperBaseURL,
		EnvPiperBaseURL, EnvPiperVoice, EnvAgentTimeout, EnvChainAgents,
		EnvIncludeHistory, EnvHistoryTurnLimit, EnvWebhookURLs,
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != DefaultHTTPAddr {
		t.Fatalf("expected default http addr, got %q", cfg.HTTPAddr)
	}
	if cfg.Provider != "ollama" || cfg.Model != DefaultModel {
		t.Fatalf("unexpected provider defaults: %q/%q", cfg.Provider, cfg.Model)
	}
	if !cfg.ChainAgents || !cfg.IncludeHistory {
		t.Fatalf("expected chaining and history on by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadYAMLFileThenEnvOverride(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlBody := `
http_addr: ":9999"
db_driver: postgres
db_dsn: "host=localhost dbname=voicegate"
provider: openai
openai_api_key: file-key
model: gpt-4o-mini
agent_timeout: 30s
chain_agents: false
webhook_urls:
  - https://hooks.example.com/a
`
	if err := os.WriteFile(path, []byte(yamlBody), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(EnvConfigFile, path)
	// Env wins over the file.
	t.Setenv(EnvModel, "gpt-4o")
	t.Setenv(EnvIncludeHistory, "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":9999" || cfg.DBDriver != "postgres" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Model != "gpt-4o" {
		t.Fatalf("env should override file model, got %q", cfg.Model)
	}
	if cfg.ChainAgents {
		t.Fatalf("expected chaining disabled from file")
	}
	if cfg.IncludeHistory {
		t.Fatalf("expected history disabled from env")
	}
	if cfg.AgentTimeout != 30*time.Second {
		t.Fatalf("unexpected agent timeout %s", cfg.AgentTimeout)
	}
	if len(cfg.WebhookURLs) != 1 || cfg.WebhookURLs[0] != "https://hooks.example.com/a" {
		t.Fatalf("unexpected webhook urls %v", cfg.WebhookURLs)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	bad := cfg
	bad.DBDriver = "oracle"
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}

	bad = cfg
	bad.Provider = "openai"
	bad.OpenAIAPIKey = ""
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for openai without api key")
	}

	bad = cfg
	bad.AgentTimeout = 0
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for zero timeout")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvAgentTimeout, "soon")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for invalid duration")
	}
}

func TestLoadWebhookURLsFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvWebhookURLs, "https://a.example.com, https://b.example.com ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.WebhookURLs) != 2 {
		t.Fatalf("unexpected webhook urls %v", cfg.WebhookURLs)
	}
}
