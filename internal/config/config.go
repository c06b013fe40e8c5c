// Package config resolves the gateway configuration from defaults, an
// optional YAML file and VOICEGATE_* environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigFile       = "VOICEGATE_CONFIG_FILE"
	EnvHTTPAddr         = "VOICEGATE_HTTP_ADDR"
	EnvDBDriver         = "VOICEGATE_DB_DRIVER"
	EnvDBDSN            = "VOICEGATE_DB_DSN"
	EnvProvider         = "VOICEGATE_PROVIDER"
	EnvModel            = "VOICEGATE_MODEL"
	EnvOllamaBaseURL    = "VOICEGATE_OLLAMA_BASE_URL"
	EnvOpenAIAPIKey     = "OPENAI_API_KEY"
	EnvWhisperBaseURL   = "VOICEGATE_WHISPER_BASE_URL"
	EnvPiperBaseURL     = "VOICEGATE_PIPER_BASE_URL"
	EnvPiperVoice       = "VOICEGATE_PIPER_VOICE"
	EnvAgentTimeout     = "VOICEGATE_AGENT_TIMEOUT"
	EnvChainAgents      = "VOICEGATE_CHAIN_AGENTS"
	EnvIncludeHistory   = "VOICEGATE_INCLUDE_HISTORY"
	EnvHistoryTurnLimit = "VOICEGATE_HISTORY_TURN_LIMIT"
	EnvWebhookURLs      = "VOICEGATE_WEBHOOK_URLS"
)

const (
	DefaultHTTPAddr         = ":8090"
	DefaultDBDriver         = "sqlite"
	DefaultDBDSN            = "voicegate.db"
	DefaultProvider         = "ollama"
	DefaultModel            = "llama3"
	DefaultOllamaBaseURL    = "http://localhost:11434"
	DefaultAgentTimeout     = 60 * time.Second
	DefaultHistoryTurnLimit = 20
)

type Config struct {
	HTTPAddr string
	DBDriver string
	DBDSN    string

	Provider      string
	Model         string
	OllamaBaseURL string
	OpenAIAPIKey  string

	WhisperBaseURL string
	PiperBaseURL   string
	PiperVoice     string

	AgentTimeout     time.Duration
	ChainAgents      bool
	IncludeHistory   bool
	HistoryTurnLimit int

	WebhookURLs []string
}

type fileConfig struct {
	HTTPAddr         string   `yaml:"http_addr"`
	DBDriver         string   `yaml:"db_driver"`
	DBDSN            string   `yaml:"db_dsn"`
	Provider         string   `yaml:"provider"`
	Model            string   `yaml:"model"`
	OllamaBaseURL    string   `yaml:"ollama_base_url"`
	OpenAIAPIKey     string   `yaml:"openai_api_key"`
	WhisperBaseURL   string   `yaml:"whisper_base_url"`
	PiperBaseURL     string   `yaml:"piper_base_url"`
	PiperVoice       string   `yaml:"piper_voice"`
	AgentTimeout     string   `yaml:"agent_timeout"`
	ChainAgents      *bool    `yaml:"chain_agents"`
	IncludeHistory   *bool    `yaml:"include_history"`
	HistoryTurnLimit *int     `yaml:"history_turn_limit"`
	WebhookURLs      []string `yaml:"webhook_urls"`
}

// Load resolves the configuration. A config file is only read when
// VOICEGATE_CONFIG_FILE points at one.
func Load() (Config, error) {
	cfg := defaults()

	if path := envString(EnvConfigFile); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
		var file fileConfig
		if err := yaml.Unmarshal(data, &file); err != nil {
			return Config{}, fmt.Errorf("decode config file %s: %w", path, err)
		}
		if err := applyFile(&cfg, file); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		HTTPAddr:         DefaultHTTPAddr,
		DBDriver:         DefaultDBDriver,
		DBDSN:            DefaultDBDSN,
		Provider:         DefaultProvider,
		Model:            DefaultModel,
		OllamaBaseURL:    DefaultOllamaBaseURL,
		AgentTimeout:     DefaultAgentTimeout,
		ChainAgents:      true,
		IncludeHistory:   true,
		HistoryTurnLimit: DefaultHistoryTurnLimit,
	}
}

func applyFile(cfg *Config, file fileConfig) error {
	if value := strings.TrimSpace(file.HTTPAddr); value != "" {
		cfg.HTTPAddr = value
	}
	if value := strings.TrimSpace(file.DBDriver); value != "" {
		cfg.DBDriver = strings.ToLower(value)
	}
	if value := strings.TrimSpace(file.DBDSN); value != "" {
		cfg.DBDSN = value
	}
	if value := strings.TrimSpace(file.Provider); value != "" {
		cfg.Provider = strings.ToLower(value)
	}
	if value := strings.TrimSpace(file.Model); value != "" {
		cfg.Model = value
	}
	if value := strings.TrimSpace(file.OllamaBaseURL); value != "" {
		cfg.OllamaBaseURL = value
	}
	if value := strings.TrimSpace(file.OpenAIAPIKey); value != "" {
		cfg.OpenAIAPIKey = value
	}
	if value := strings.TrimSpace(file.WhisperBaseURL); value != "" {
		cfg.WhisperBaseURL = value
	}
	if value := strings.TrimSpace(file.PiperBaseURL); value != "" {
		cfg.PiperBaseURL = value
	}
	if value := strings.TrimSpace(file.PiperVoice); value != "" {
		cfg.PiperVoice = value
	}

	timeout, err := parseOptionalDuration(file.AgentTimeout, cfg.AgentTimeout, "agent_timeout")
	if err != nil {
		return err
	}
	cfg.AgentTimeout = timeout

	if file.ChainAgents != nil {
		cfg.ChainAgents = *file.ChainAgents
	}
	if file.IncludeHistory != nil {
		cfg.IncludeHistory = *file.IncludeHistory
	}
	if file.HistoryTurnLimit != nil && *file.HistoryTurnLimit > 0 {
		cfg.HistoryTurnLimit = *file.HistoryTurnLimit
	}
	if len(file.WebhookURLs) > 0 {
		cfg.WebhookURLs = trimAll(file.WebhookURLs)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.HTTPAddr = envOrDefault(EnvHTTPAddr, cfg.HTTPAddr)
	cfg.DBDriver = strings.ToLower(envOrDefault(EnvDBDriver, cfg.DBDriver))
	cfg.DBDSN = envOrDefault(EnvDBDSN, cfg.DBDSN)
	cfg.Provider = strings.ToLower(envOrDefault(EnvProvider, cfg.Provider))
	cfg.Model = envOrDefault(EnvModel, cfg.Model)
	cfg.OllamaBaseURL = envOrDefault(EnvOllamaBaseURL, cfg.OllamaBaseURL)
	cfg.OpenAIAPIKey = envOrDefault(EnvOpenAIAPIKey, cfg.OpenAIAPIKey)
	cfg.WhisperBaseURL = envOrDefault(EnvWhisperBaseURL, cfg.WhisperBaseURL)
	cfg.PiperBaseURL = envOrDefault(EnvPiperBaseURL, cfg.PiperBaseURL)
	cfg.PiperVoice = envOrDefault(EnvPiperVoice, cfg.PiperVoice)

	timeout, err := parseOptionalDuration(envString(EnvAgentTimeout), cfg.AgentTimeout, EnvAgentTimeout)
	if err != nil {
		return err
	}
	cfg.AgentTimeout = timeout

	cfg.ChainAgents = parseBoolEnv(EnvChainAgents, cfg.ChainAgents)
	cfg.IncludeHistory = parseBoolEnv(EnvIncludeHistory, cfg.IncludeHistory)

	if raw := envString(EnvHistoryTurnLimit); raw != "" {
		var limit int
		if _, err := fmt.Sscanf(raw, "%d", &limit); err != nil || limit <= 0 {
			return fmt.Errorf("%s must be a positive integer, got %q", EnvHistoryTurnLimit, raw)
		}
		cfg.HistoryTurnLimit = limit
	}

	if raw := envString(EnvWebhookURLs); raw != "" {
		cfg.WebhookURLs = trimAll(strings.Split(raw, ","))
	}
	return nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return fmt.Errorf("%s must not be empty", EnvHTTPAddr)
	}
	switch strings.ToLower(strings.TrimSpace(c.DBDriver)) {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("%s must be sqlite or postgres", EnvDBDriver)
	}
	if strings.TrimSpace(c.DBDSN) == "" {
		return fmt.Errorf("%s must not be empty", EnvDBDSN)
	}
	switch strings.ToLower(strings.TrimSpace(c.Provider)) {
	case "ollama":
	case "openai":
		if strings.TrimSpace(c.OpenAIAPIKey) == "" {
			return fmt.Errorf("%s is required when the provider is openai", EnvOpenAIAPIKey)
		}
	default:
		return fmt.Errorf("%s must be ollama or openai", EnvProvider)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%s must not be empty", EnvModel)
	}
	if c.AgentTimeout <= 0 {
		return fmt.Errorf("%s must be > 0", EnvAgentTimeout)
	}
	if c.HistoryTurnLimit <= 0 {
		return fmt.Errorf("%s must be > 0", EnvHistoryTurnLimit)
	}
	return nil
}

func envString(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envOrDefault(key, fallback string) string {
	value := envString(key)
	if value == "" {
		return fallback
	}
	return value
}

func parseBoolEnv(key string, fallback bool) bool {
	switch strings.ToLower(envString(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseOptionalDuration(raw string, fallback time.Duration, field string) (time.Duration, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration %q: %w", field, value, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be > 0", field)
	}
	return parsed, nil
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
