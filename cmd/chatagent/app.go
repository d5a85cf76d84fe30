package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/haasonsaas/chatagent/internal/agent"
	"github.com/haasonsaas/chatagent/internal/agent/providers"
	"github.com/haasonsaas/chatagent/internal/config"
	croncore "github.com/haasonsaas/chatagent/internal/cron"
	"github.com/haasonsaas/chatagent/internal/gateway"
	"github.com/haasonsaas/chatagent/internal/mcp"
	"github.com/haasonsaas/chatagent/internal/memory"
	"github.com/haasonsaas/chatagent/internal/observability"
	"github.com/haasonsaas/chatagent/internal/storage"
	"github.com/haasonsaas/chatagent/internal/tools"
	"github.com/haasonsaas/chatagent/internal/tools/email"
	"github.com/haasonsaas/chatagent/internal/tools/numberfact"
	"github.com/haasonsaas/chatagent/pkg/models"
)

// defaultConfigFile is used when no --config flag or CHATAGENT_CONFIG is given
// and the file exists.
const defaultConfigFile = "chatagent.yaml"

// resolveConfigPath picks the flag, then CHATAGENT_CONFIG, then
// chatagent.yaml when it exists. An empty result means defaults plus the
// environment.
func resolveConfigPath(flag string) string {
	if strings.TrimSpace(flag) != "" {
		return flag
	}
	if env := strings.TrimSpace(os.Getenv("CHATAGENT_CONFIG")); env != "" {
		return env
	}
	if _, err := os.Stat(defaultConfigFile); err == nil {
		return defaultConfigFile
	}
	return ""
}

// loadConfig loads .env files from the working directory and the config.
func loadConfig(path string) (*config.Config, error) {
	if err := config.LoadEnvFiles("."); err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// app is the wired process: storage, memory, scheduler, MCP hub, tools,
// provider and runtime.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	stores    storage.StoreSet
	memory    *memory.Manager
	scheduler *croncore.Scheduler
	hub       *mcp.Hub
	registry  *agent.Registry
	runtime   *agent.Runtime
	metrics   *observability.Metrics
	tracer    *observability.Tracer

	shutdownTracer func(context.Context) error
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	stores, err := storage.Open(ctx, cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, stores: stores}

	if cfg.Observability.Metrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.metrics = observability.NewMetrics(reg)
	}
	a.tracer, a.shutdownTracer = observability.NewTracer(observability.TraceConfig{
		ServiceName:    cfg.Observability.Tracing.ServiceName,
		ServiceVersion: version,
		Endpoint:       cfg.Observability.Tracing.Endpoint,
		SamplingRate:   cfg.Observability.Tracing.SampleRate,
		Insecure:       cfg.Observability.Tracing.Insecure,
	})

	a.memory = memory.NewManager(stores.Memory, memory.WithLogger(logger))
	a.scheduler = croncore.NewScheduler(stores.Schedules,
		croncore.WithLogger(logger),
		croncore.WithTickInterval(cfg.Scheduler.TickInterval),
		croncore.WithConcurrency(cfg.Scheduler.Concurrency),
		croncore.WithObservability(a.metrics, a.tracer),
	)
	a.hub = mcp.NewHub(mcp.Config{
		ClientName:    cfg.MCP.ClientName,
		ClientVersion: cfg.MCP.ClientVersion,
		PublicURL:     cfg.Server.PublicURL,
		CallbackPath:  cfg.MCP.CallbackPath,
		StateSecret:   []byte(cfg.MCP.StateSecret),
		StateTTL:      cfg.MCP.StateTTL,
		Logger:        logger,
	}, a.memory)

	a.registry, err = tools.BuildRegistry(tools.Deps{
		Memory:    a.memory,
		Scheduler: a.scheduler,
		MCP:       a.hub,
		Email: email.Config{
			APIKey:        cfg.Email.APIKey,
			From:          cfg.Email.From,
			BaseURL:       cfg.Email.BaseURL,
			RatePerSecond: cfg.Email.RatePerSecond,
		},
		NumberFact: numberfact.Config{
			BaseURL:  cfg.Tools.NumberFact.BaseURL,
			CacheTTL: cfg.Tools.NumberFact.CacheTTL,
			Timeout:  cfg.Tools.NumberFact.Timeout,
		},
		Logger: logger,
	})
	if err != nil {
		_ = stores.Close() //nolint:errcheck
		return nil, fmt.Errorf("build tool registry: %w", err)
	}

	provider, err := newProvider(cfg.LLM)
	if err != nil {
		_ = stores.Close() //nolint:errcheck
		return nil, err
	}

	opts := agent.Options{
		Model:     cfg.LLM.Model,
		MaxSteps:  cfg.LLM.MaxSteps,
		MaxTokens: cfg.LLM.MaxTokens,
		ToolExec: agent.ToolExecConfig{
			Concurrency: cfg.Tools.Concurrency,
		},
		Preflight: cfg.ValidateCredentials,
		Logger:    logger,
		Metrics:   a.metrics,
		Tracer:    a.tracer,
	}
	if prompt := strings.TrimSpace(cfg.LLM.SystemPrompt); prompt != "" {
		opts.SystemPrompt = func(now time.Time) string {
			return prompt + "\n\n" + agent.DefaultSystemPrompt(now)
		}
	}
	a.runtime = agent.NewRuntime(provider, a.registry, stores.History, opts)

	a.scheduler.RegisterCallback(croncore.CallbackExecuteTask, func(ctx context.Context, task models.ScheduledTask) error {
		return a.runtime.ExecuteTask(ctx, task.SessionID, task.Description)
	})
	return a, nil
}

// newProvider builds the completion provider. A missing Anthropic key yields a
// nil provider; turns then fail the credential preflight.
func newProvider(cfg config.LLMConfig) (agent.LLMProvider, error) {
	switch cfg.Provider {
	case "anthropic":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, nil
		}
		p, err := providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			MaxRetries:   cfg.MaxRetries,
			RetryDelay:   cfg.RetryDelay,
			DefaultModel: cfg.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("anthropic provider: %w", err)
		}
		return p, nil
	case "openai":
		return providers.NewOpenAIProvider(providers.OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			MaxRetries: cfg.MaxRetries,
			RetryDelay: cfg.RetryDelay,
		}), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

func (a *app) gateway() *gateway.Server {
	return gateway.NewServer(a.runtime, a.hub, gateway.Options{
		Addr:             a.cfg.Server.Addr(),
		CallbackPath:     a.cfg.MCP.CallbackPath,
		CheckCredentials: a.cfg.ValidateCredentials,
		LLMKeyConfigured: func() bool { return strings.TrimSpace(a.cfg.LLM.APIKey) != "" },
		Logger:           a.logger,
		Metrics:          a.metrics,
		Tracer:           a.tracer,
	})
}

// Close flushes traces and closes storage.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.shutdownTracer != nil {
		if err := a.shutdownTracer(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer: %w", err))
		}
	}
	if err := a.stores.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close storage: %w", err))
	}
	return errors.Join(errs...)
}
