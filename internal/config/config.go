// Package config loads the chatagent configuration from YAML or JSON5 files,
// .env files and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the root configuration.
type Config struct {
	Version       int                 `yaml:"version"`
	Server        ServerConfig        `yaml:"server"`
	LLM           LLMConfig           `yaml:"llm"`
	Email         EmailConfig         `yaml:"email"`
	Storage       StorageConfig       `yaml:"storage"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	MCP           MCPConfig           `yaml:"mcp"`
	Tools         ToolsConfig         `yaml:"tools"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// PublicURL is the externally reachable base URL, used for OAuth redirects.
	PublicURL       string        `yaml:"public_url"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type LLMConfig struct {
	Provider     string        `yaml:"provider"` // openai | anthropic
	Model        string        `yaml:"model"`
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"`
	MaxSteps     int           `yaml:"max_steps"`
	MaxTokens    int           `yaml:"max_tokens"`
	SystemPrompt string        `yaml:"system_prompt"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
}

type EmailConfig struct {
	Enabled       *bool   `yaml:"enabled"`
	APIKey        string  `yaml:"api_key"`
	From          string  `yaml:"from"`
	BaseURL       string  `yaml:"base_url"`
	RatePerSecond float64 `yaml:"rate_per_second"`
}

// IsEnabled reports whether the email tool needs a credential. Default: true.
func (e EmailConfig) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

type StorageConfig struct {
	Driver string `yaml:"driver"` // memory | sqlite | postgres | redis
	DSN    string `yaml:"dsn"`
}

type SchedulerConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"`
	Concurrency  int           `yaml:"concurrency"`
}

type MCPConfig struct {
	ClientName    string        `yaml:"client_name"`
	ClientVersion string        `yaml:"client_version"`
	CallbackPath  string        `yaml:"callback_path"`
	StateSecret   string        `yaml:"state_secret"`
	StateTTL      time.Duration `yaml:"state_ttl"`
}

type ToolsConfig struct {
	NumberFact NumberFactConfig `yaml:"numberfact"`
	// Concurrency bounds how many adjacent independent auto-tool calls run at
	// once. Other calls always run one at a time in history order.
	Concurrency int `yaml:"concurrency"`
}

type NumberFactConfig struct {
	BaseURL  string        `yaml:"base_url"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
	Timeout  time.Duration `yaml:"timeout"`
}

type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

type ObservabilityConfig struct {
	Metrics bool          `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
	Insecure    bool    `yaml:"insecure"`
}

// EnvFiles are loaded, when present, before the configuration is read. Values
// already set in the environment win.
var EnvFiles = []string{".env", ".dev.vars"}

// LoadEnvFiles loads EnvFiles from dir.
func LoadEnvFiles(dir string) error {
	for _, name := range EnvFiles {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// Load reads path, applies environment overrides and defaults, and validates
// the result. An empty path yields the defaults plus the environment.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if strings.TrimSpace(path) != "" {
		var err error
		cfg, err = readConfigFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides fills credentials from the variables the deployment
// conventionally sets. File values take precedence.
func applyEnvOverrides(cfg *Config) {
	if cfg.LLM.APIKey == "" {
		switch strings.ToLower(cfg.LLM.Provider) {
		case "anthropic":
			cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		default:
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if cfg.Email.APIKey == "" {
		cfg.Email.APIKey = os.Getenv("RESEND_API_KEY")
	}
	if cfg.Server.PublicURL == "" {
		cfg.Server.PublicURL = os.Getenv("HOST")
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.PublicURL == "" {
		cfg.Server.PublicURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	cfg.LLM.Provider = strings.ToLower(cfg.LLM.Provider)
	if cfg.LLM.Model == "" {
		switch cfg.LLM.Provider {
		case "anthropic":
			cfg.LLM.Model = "claude-sonnet-4-20250514"
		default:
			cfg.LLM.Model = "gpt-4o"
		}
	}
	if cfg.LLM.MaxSteps == 0 {
		cfg.LLM.MaxSteps = 10
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 4096
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 3
	}
	if cfg.LLM.RetryDelay == 0 {
		cfg.LLM.RetryDelay = time.Second
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "memory"
	}
	cfg.Storage.Driver = strings.ToLower(cfg.Storage.Driver)

	if cfg.Scheduler.TickInterval == 0 {
		cfg.Scheduler.TickInterval = time.Second
	}
	if cfg.Scheduler.Concurrency == 0 {
		cfg.Scheduler.Concurrency = 4
	}

	if cfg.MCP.ClientName == "" {
		cfg.MCP.ClientName = "chat"
	}
	if cfg.MCP.ClientVersion == "" {
		cfg.MCP.ClientVersion = "1.0.0"
	}
	if cfg.MCP.CallbackPath == "" {
		cfg.MCP.CallbackPath = "/callback"
	}
	if cfg.MCP.StateTTL == 0 {
		cfg.MCP.StateTTL = 10 * time.Minute
	}

	if cfg.Tools.NumberFact.BaseURL == "" {
		cfg.Tools.NumberFact.BaseURL = "https://numbersapi.com"
	}
	if cfg.Tools.NumberFact.CacheTTL == 0 {
		cfg.Tools.NumberFact.CacheTTL = time.Hour
	}
	if cfg.Tools.NumberFact.Timeout == 0 {
		cfg.Tools.NumberFact.Timeout = 10 * time.Second
	}
	if cfg.Tools.Concurrency == 0 {
		cfg.Tools.Concurrency = 1
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Observability.Tracing.ServiceName == "" {
		cfg.Observability.Tracing.ServiceName = "chatagent"
	}
	if cfg.Observability.Tracing.SampleRate == 0 {
		cfg.Observability.Tracing.SampleRate = 1
	}
}
