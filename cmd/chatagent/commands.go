package main

import (
	"github.com/spf13/cobra"
)

// =============================================================================
// Serve Command
// =============================================================================

// buildServeCmd creates the "serve" command that starts the gateway and the
// scheduler.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat gateway and task scheduler",
		Long: `Start the HTTP gateway and the scheduler that fires scheduled tasks.

The server will:
1. Load .env files and the configuration
2. Open the configured storage backend
3. Build the tool registry and the model provider
4. Serve chat, websocket, OAuth callback and MCP proxy routes

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with defaults and environment credentials
  chatagent serve

  # Start with a config file and debug logging
  chatagent serve --config /etc/chatagent/production.yaml --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), resolveConfigPath(configPath), debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML or JSON5 configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

// =============================================================================
// Tools Command
// =============================================================================

func buildToolsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools offered to the model",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTools(cmd, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print descriptors with their parameter schemas as JSON")
	return cmd
}

// =============================================================================
// Memory Commands
// =============================================================================

// buildMemoryCmd creates the "memory" command group for a session's durable
// key/value memory.
func buildMemoryCmd() *cobra.Command {
	var (
		configPath string
		sessionID  string
	)
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect and edit a session's memory",
		Long: `Inspect and edit the durable key/value memory the agent keeps per session.

MCP bearer tokens are stored as mcp_token_<serverId> entries and are printed
redacted.`,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML or JSON5 configuration file")
	cmd.PersistentFlags().StringVarP(&sessionID, "session", "s", "", "Session ID (required)")
	_ = cmd.MarkPersistentFlagRequired("session") //nolint:errcheck

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List memory entries",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMemoryList(cmd, resolveConfigPath(configPath), sessionID)
			},
		},
		&cobra.Command{
			Use:   "get [key]",
			Short: "Print one memory entry",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMemoryGet(cmd, resolveConfigPath(configPath), sessionID, args[0])
			},
		},
		&cobra.Command{
			Use:   "set [key] [value]",
			Short: "Store a memory entry",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMemorySet(cmd, resolveConfigPath(configPath), sessionID, args[0], args[1])
			},
		},
		&cobra.Command{
			Use:   "forget [key]",
			Short: "Remove a memory entry",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMemoryForget(cmd, resolveConfigPath(configPath), sessionID, args[0])
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove every memory entry of the session",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMemoryClear(cmd, resolveConfigPath(configPath), sessionID)
			},
		},
	)
	return cmd
}

// =============================================================================
// Config Commands
// =============================================================================

func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	var configPath string
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration, including credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigValidate(cmd, resolveConfigPath(configPath))
		},
	}
	validate.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML or JSON5 configuration file")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "schema",
			Short: "Print the configuration JSON Schema",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runConfigSchema(cmd)
			},
		},
		validate,
	)
	return cmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("chatagent %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
