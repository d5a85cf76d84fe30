// Package main provides the CLI entry point for chatagent, a conversational
// agent whose tools either run immediately or wait for a human decision.
//
// # Basic Usage
//
// Start the gateway and the task scheduler:
//
//	chatagent serve --config chatagent.yaml
//
// Inspect the tool catalogue:
//
//	chatagent tools
//
// Read or edit a session's durable memory:
//
//	chatagent memory list --session my-session
//	chatagent memory set --session my-session name Ada
//
// # Environment Variables
//
// .env and .dev.vars in the working directory are loaded first. Variables
// already set in the environment win.
//
//   - CHATAGENT_CONFIG: Path to configuration file (default: chatagent.yaml when present)
//   - OPENAI_API_KEY: OpenAI API key
//   - ANTHROPIC_API_KEY: Anthropic API key when llm.provider is anthropic
//   - RESEND_API_KEY: Resend API key for the sendEmail tool
//   - HOST: Public base URL used for OAuth redirects
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "chatagent",
		Short: "chatagent - conversational agent with human-approved tools",
		Long: `chatagent runs chat turns against OpenAI or Anthropic models.

Tools such as memory, scheduling and number facts run automatically. Tools with
side effects (weather lookups, email, MCP tool calls) wait for a human approval
that arrives with the next turn.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildToolsCmd(),
		buildMemoryCmd(),
		buildConfigCmd(),
		buildVersionCmd(),
	)
	return rootCmd
}
