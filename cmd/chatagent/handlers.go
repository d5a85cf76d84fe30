package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/haasonsaas/chatagent/internal/agent"
	"github.com/haasonsaas/chatagent/internal/config"
	croncore "github.com/haasonsaas/chatagent/internal/cron"
	"github.com/haasonsaas/chatagent/internal/mcp"
	"github.com/haasonsaas/chatagent/internal/memory"
	"github.com/haasonsaas/chatagent/internal/observability"
	"github.com/haasonsaas/chatagent/internal/storage"
	"github.com/haasonsaas/chatagent/internal/tools"
	"github.com/haasonsaas/chatagent/pkg/models"
)

// =============================================================================
// Serve Command Handler
// =============================================================================

// runServe loads configuration, wires the app and runs the gateway and the
// scheduler until a shutdown signal arrives.
func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if debug {
		cfg.Logging.Level = "debug"
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    os.Stderr,
		AddSource: cfg.Logging.AddSource,
	})
	slog.SetDefault(logger)

	logger.Info("starting chatagent",
		"version", version,
		"commit", commit,
		"config", configPath,
		"provider", cfg.LLM.Provider,
		"model", cfg.LLM.Model,
		"storage", cfg.Storage.Driver,
	)
	if err := cfg.ValidateCredentials(); err != nil {
		logger.Warn("credentials incomplete; chat turns will be refused", "error", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	server := a.gateway()

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return err
	}
	logger.Info("chatagent started", "addr", server.Addr(), "public_url", cfg.Server.PublicURL)

	<-ctx.Done()
	logger.Info("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	g, gctx := errgroup.WithContext(shutdownCtx)
	g.Go(func() error { return server.Shutdown(gctx) })
	g.Go(func() error { return a.scheduler.Stop(gctx) })
	shutdownErr := g.Wait()
	if err := a.Close(shutdownCtx); err != nil {
		shutdownErr = errors.Join(shutdownErr, err)
	}
	if shutdownErr != nil {
		return fmt.Errorf("shutdown failed: %w", shutdownErr)
	}
	logger.Info("chatagent stopped")
	return nil
}

// =============================================================================
// Tools Command Handler
// =============================================================================

type toolRow struct {
	Name        string          `json:"name"`
	Mode        agent.ToolMode  `json:"mode"`
	Title       string          `json:"title"`
	Emoji       string          `json:"emoji"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema,omitempty"`
}

// runTools prints the catalogue. The registry is built over in-memory
// collaborators so no credentials or storage are needed.
func runTools(cmd *cobra.Command, asJSON bool) error {
	mem := memory.NewManager(storage.NewMemoryMemoryStore())
	reg, err := tools.BuildRegistry(tools.Deps{
		Memory:    mem,
		Scheduler: croncore.NewScheduler(nil),
		MCP:       mcp.NewHub(mcp.Config{}, mem),
	})
	if err != nil {
		return err
	}

	var rows []toolRow
	for _, d := range reg.Describe() {
		display := tools.ResolveToolDisplay(d.Name, nil)
		rows = append(rows, toolRow{
			Name:        d.Name,
			Mode:        d.Mode,
			Title:       display.Title,
			Emoji:       display.Emoji,
			Description: d.Description,
			Schema:      d.Schema,
		})
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TOOL\tMODE\tTITLE\tDESCRIPTION")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s %s\t%s\n", r.Name, r.Mode, r.Emoji, r.Title, r.Description)
	}
	return w.Flush()
}

// =============================================================================
// Memory Command Handlers
// =============================================================================

// withMemoryStore opens the configured storage and runs fn against one
// session's memory.
func withMemoryStore(cmd *cobra.Command, configPath, sessionID string, fn func(context.Context, *memory.Store) error) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return errors.New("--session is required")
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	stores, err := storage.Open(ctx, cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer stores.Close()

	return fn(ctx, memory.NewStore(sessionID, stores.Memory))
}

func runMemoryList(cmd *cobra.Command, configPath, sessionID string) error {
	return withMemoryStore(cmd, configPath, sessionID, func(ctx context.Context, store *memory.Store) error {
		entries, err := store.List(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(entries) == 0 {
			fmt.Fprintln(out, "No memories stored.")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tVALUE\tUPDATED")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\n", e.Key, displayValue(e), e.UpdatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	})
}

func runMemoryGet(cmd *cobra.Command, configPath, sessionID, key string) error {
	return withMemoryStore(cmd, configPath, sessionID, func(ctx context.Context, store *memory.Store) error {
		entry, ok, err := store.Retrieve(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no memory stored for %q", key)
		}
		fmt.Fprintln(cmd.OutOrStdout(), displayValue(entry))
		return nil
	})
}

func runMemorySet(cmd *cobra.Command, configPath, sessionID, key, value string) error {
	return withMemoryStore(cmd, configPath, sessionID, func(ctx context.Context, store *memory.Store) error {
		entry, err := store.Store(ctx, key, value)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Stored %s (updated %s)\n", entry.Key, entry.UpdatedAt.Format(time.RFC3339))
		return nil
	})
}

func runMemoryForget(cmd *cobra.Command, configPath, sessionID, key string) error {
	return withMemoryStore(cmd, configPath, sessionID, func(ctx context.Context, store *memory.Store) error {
		existed, err := store.Forget(ctx, key)
		if err != nil {
			return err
		}
		if !existed {
			fmt.Fprintf(cmd.OutOrStdout(), "No memory stored for %s\n", key)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Forgot %s\n", key)
		return nil
	})
}

func runMemoryClear(cmd *cobra.Command, configPath, sessionID string) error {
	return withMemoryStore(cmd, configPath, sessionID, func(ctx context.Context, store *memory.Store) error {
		if err := store.Clear(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Memory cleared")
		return nil
	})
}

// displayValue redacts MCP bearer tokens.
func displayValue(e models.MemoryEntry) string {
	if strings.HasPrefix(e.Key, models.MCPTokenKeyPrefix) {
		return "[REDACTED]"
	}
	return e.Value
}

// =============================================================================
// Config Command Handlers
// =============================================================================

func runConfigSchema(cmd *cobra.Command) error {
	data, err := config.JSONSchema()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

func runConfigValidate(cmd *cobra.Command, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "config ok: provider=%s model=%s storage=%s\n", cfg.LLM.Provider, cfg.LLM.Model, cfg.Storage.Driver)
	if err := cfg.ValidateCredentials(); err != nil {
		return err
	}
	names := []string{cfg.LLMKeyEnv()}
	if cfg.Email.IsEnabled() {
		names = append(names, "RESEND_API_KEY")
	}
	sort.Strings(names)
	fmt.Fprintf(out, "credentials ok: %s\n", strings.Join(names, ", "))
	return nil
}
