package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrMissingCredential is reported by ValidateCredentials.
var ErrMissingCredential = errors.New("missing credential")

// ConfigValidationError collects every problem found in a configuration.
type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	return "invalid config: " + strings.Join(e.Issues, "; ")
}

// Validate checks a defaulted configuration. Credentials are checked separately
// so that commands which never call a provider can run without them.
func Validate(cfg *Config) error {
	var issues []string
	add := func(format string, args ...any) {
		issues = append(issues, fmt.Sprintf(format, args...))
	}

	if err := ValidateVersion(cfg.Version); err != nil {
		add("version: %v", err)
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		add("server.port %d out of range", cfg.Server.Port)
	}
	if u, err := url.Parse(cfg.Server.PublicURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add("server.public_url %q must be an absolute http(s) URL", cfg.Server.PublicURL)
	}

	switch cfg.LLM.Provider {
	case "openai", "anthropic":
	default:
		add("llm.provider %q must be openai or anthropic", cfg.LLM.Provider)
	}
	if cfg.LLM.MaxSteps < 1 {
		add("llm.max_steps must be positive")
	}

	switch cfg.Storage.Driver {
	case "memory":
	case "sqlite", "postgres", "redis":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			add("storage.dsn is required for driver %s", cfg.Storage.Driver)
		}
	default:
		add("storage.driver %q must be memory, sqlite, postgres or redis", cfg.Storage.Driver)
	}

	if cfg.Scheduler.TickInterval < 0 {
		add("scheduler.tick_interval must not be negative")
	}
	if !strings.HasPrefix(cfg.MCP.CallbackPath, "/") {
		add("mcp.callback_path %q must start with /", cfg.MCP.CallbackPath)
	}
	if cfg.Email.RatePerSecond < 0 {
		add("email.rate_per_second must not be negative")
	}

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("logging.level %q is not a level", cfg.Logging.Level)
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text":
	default:
		add("logging.format %q must be json or text", cfg.Logging.Format)
	}
	if r := cfg.Observability.Tracing.SampleRate; r < 0 || r > 1 {
		add("observability.tracing.sample_rate %v must be within [0, 1]", r)
	}

	if len(issues) > 0 {
		return &ConfigValidationError{Issues: issues}
	}
	return nil
}

// ValidateCredentials reports the first missing credential a turn needs. The
// message matches what the HTTP front door returns to clients.
func (c *Config) ValidateCredentials() error {
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		return fmt.Errorf("%w: %s is not set", ErrMissingCredential, c.LLMKeyEnv())
	}
	if c.Email.IsEnabled() && strings.TrimSpace(c.Email.APIKey) == "" {
		return fmt.Errorf("%w: RESEND_API_KEY is not set", ErrMissingCredential)
	}
	return nil
}

// LLMKeyEnv names the environment variable holding the provider key.
func (c *Config) LLMKeyEnv() string {
	if c.LLM.Provider == "anthropic" {
		return "ANTHROPIC_API_KEY"
	}
	return "OPENAI_API_KEY"
}
