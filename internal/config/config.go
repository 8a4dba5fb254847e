// Package config loads the Controller's YAML configuration (server
// addresses, prompts) and applies environment-variable overrides,
// grounded on the teacher's internal/config/config.go LoadConfig +
// applyEnvOverrides + getEnv* pattern.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"
)

// Config is the Controller's top-level configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Executor ExecutorConfig `yaml:"executor"`
	LLM      LLMConfig      `yaml:"llm"`
	Audit    AuditConfig    `yaml:"audit"`
	Dedup    DedupConfig    `yaml:"dedup"`
	Prompts  PromptsConfig  `yaml:"prompts"`
}

// ServerConfig controls the HTTP admin server.
type ServerConfig struct {
	AdminAddr string `yaml:"admin_addr"`
}

// BridgeConfig controls the Bridge Link WebSocket client.
type BridgeConfig struct {
	URL string `yaml:"url"`
}

// ExecutorConfig controls the Framed Transport listener.
type ExecutorConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// LLMConfig controls the LLM Adapter.
type LLMConfig struct {
	BackendURL     string `yaml:"backend_url"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// AuditConfig controls the Audit Sink.
type AuditConfig struct {
	DatabaseURL string `yaml:"database_url"`
}

// DedupConfig controls the Reply Dedup Cache.
type DedupConfig struct {
	RedisAddr string `yaml:"redis_addr"`
}

// PromptsConfig is either an inline prompt set or a path to load one from;
// Path takes precedence when both are set.
type PromptsConfig struct {
	Path   string            `yaml:"path"`
	Inline map[string]string `yaml:"inline"`
}

// Load reads path as YAML into a Config, then applies environment
// overrides on top, matching the teacher's LoadConfig + applyEnvOverrides
// two-step contract.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return &cfg, nil
}

// applyEnvOverrides lets every setting be overridden at deploy time
// without touching the YAML file, exactly as the teacher's config does.
func (c *Config) applyEnvOverrides() {
	c.Server.AdminAddr = getEnv("ADMIN_ADDR", c.Server.AdminAddr)
	c.Bridge.URL = getEnv("BRIDGE_URL", c.Bridge.URL)
	c.Executor.ListenAddr = getEnv("EXECUTOR_LISTEN_ADDR", c.Executor.ListenAddr)

	c.LLM.BackendURL = getEnv("LLM_BACKEND_URL", c.LLM.BackendURL)
	c.LLM.Model = getEnv("LLM_MODEL", c.LLM.Model)
	if v := getEnvInt("LLM_TIMEOUT_SECONDS", 0); v > 0 {
		c.LLM.TimeoutSeconds = v
	}

	c.Audit.DatabaseURL = getEnv("AUDIT_DATABASE_URL", c.Audit.DatabaseURL)
	c.Dedup.RedisAddr = getEnv("DEDUP_REDIS_ADDR", c.Dedup.RedisAddr)
	c.Prompts.Path = getEnv("PROMPTS_PATH", c.Prompts.Path)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
