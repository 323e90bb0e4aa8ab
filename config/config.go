// Package config loads the agentduet configuration file.
//
// The file is YAML. Every field is optional: a missing file or field falls back
// to Default. API keys may also be supplied through the environment, which
// takes precedence over the file.
//
//	ollama:
//	  base_url: http://localhost:11434
//	openai:
//	  api_key: sk-...
//	engine:
//	  event_buffer_size: 256
//	  poll_interval: 100ms
//	paths:
//	  history_dir: history
//	log:
//	  level: info
//	  format: text
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentduet/logging"
)

// DefaultPath is the configuration file used when none is given.
const DefaultPath = "agentduet.yaml"

// Environment variables read by ApplyEnv.
const (
	EnvOllamaHost   = "OLLAMA_HOST"
	EnvGeminiKey    = "GEMINI_API_KEY"
	EnvOpenAIKey    = "OPENAI_API_KEY"
	EnvAnthropicKey = "ANTHROPIC_API_KEY"
	EnvLogLevel     = "AGENTDUET_LOG_LEVEL"
)

// Config is the root of the configuration file.
type Config struct {
	Ollama    OllamaConfig `yaml:"ollama"`
	Gemini    CloudConfig  `yaml:"gemini"`
	OpenAI    CloudConfig  `yaml:"openai"`
	Anthropic CloudConfig  `yaml:"anthropic"`
	Engine    EngineConfig `yaml:"engine"`
	Paths     PathsConfig  `yaml:"paths"`
	Log       LogConfig    `yaml:"log"`
}

// OllamaConfig locates the local Ollama server.
type OllamaConfig struct {
	BaseURL string `yaml:"base_url"`
}

// CloudConfig carries the credential of a cloud backend.
type CloudConfig struct {
	APIKey  string `yaml:"api_key,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`
}

// EngineConfig tunes the execution host.
type EngineConfig struct {
	EventBufferSize int           `yaml:"event_buffer_size"`
	PollInterval    time.Duration `yaml:"poll_interval"`
}

// PathsConfig locates the files agentduet reads and writes.
type PathsConfig struct {
	HistoryDir      string `yaml:"history_dir"`
	PersonaDefaults string `yaml:"persona_defaults,omitempty"`
	UserPersonas    string `yaml:"user_personas"`
	UserStyles      string `yaml:"user_styles"`
}

// LogConfig selects the log level and handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Ollama: OllamaConfig{BaseURL: "http://localhost:11434"},
		Engine: EngineConfig{EventBufferSize: 256, PollInterval: 100 * time.Millisecond},
		Paths: PathsConfig{
			HistoryDir:   "history",
			UserPersonas: "user_personas.json",
			UserStyles:   "user_styles.json",
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path on top of Default. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config parse: %w", err)
	}
	cfg.cleanPaths()
	return cfg, nil
}

// Save writes cfg to path as YAML.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config save mkdir: %w", err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config save marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config save write: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from the environment. Empty variables are ignored.
func (c *Config) ApplyEnv() {
	c.applyEnv(os.Getenv)
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Ollama.BaseURL, EnvOllamaHost)
	set(&c.Gemini.APIKey, EnvGeminiKey)
	set(&c.OpenAI.APIKey, EnvOpenAIKey)
	set(&c.Anthropic.APIKey, EnvAnthropicKey)
	set(&c.Log.Level, EnvLogLevel)

	if c.Ollama.BaseURL != "" && !strings.Contains(c.Ollama.BaseURL, "://") {
		c.Ollama.BaseURL = "http://" + c.Ollama.BaseURL
	}
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if c.Engine.EventBufferSize < 1 {
		return fmt.Errorf("engine.event_buffer_size must be positive, got %d", c.Engine.EventBufferSize)
	}
	if c.Engine.PollInterval <= 0 {
		return fmt.Errorf("engine.poll_interval must be positive, got %s", c.Engine.PollInterval)
	}
	if c.Paths.HistoryDir == "" {
		return errors.New("paths.history_dir must not be empty")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// Logger builds the process logger described by the log section, writing to out.
func (c *Config) Logger(out io.Writer) *logging.DuetLogger {
	level, _ := logging.ParseLevel(c.Log.Level)
	return logging.NewLogger(&logging.LoggerConfig{Level: level, Format: c.Log.Format, Output: out})
}

func (c *Config) cleanPaths() {
	clean := func(p *string) {
		if *p != "" {
			*p = filepath.Clean(*p)
		}
	}
	clean(&c.Paths.HistoryDir)
	clean(&c.Paths.PersonaDefaults)
	clean(&c.Paths.UserPersonas)
	clean(&c.Paths.UserStyles)
}
