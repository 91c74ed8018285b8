package commands

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	// envFile is the dotenv file loaded before anything else.
	envFile string

	// dbPath is the path to the SQLite conversation store.
	dbPath string

	// workspaceDir is the assistant's scratch directory.
	workspaceDir string

	// logDir is where the daemon log file goes, empty for stderr only.
	logDir string

	// logLevel follows btclog conventions (trace, debug, info, ...).
	logLevel string

	// model is the principal's Claude model.
	model string

	// analyzerModel is the lightweight model behind the hippocampus and
	// the amygdala.
	analyzerModel string

	// heartbeatInterval paces amygdala rounds when no cron is given.
	heartbeatInterval time.Duration

	// heartbeatCron optionally overrides the interval with a cron
	// expression.
	heartbeatCron string

	// mcpServers are external tool servers to launch, each given as
	// "name=command arg...".
	mcpServers []string

	// serveMemory switches the daemon into MCP stdio mode, exposing the
	// memory store to an external client instead of running the chat
	// loop.
	serveMemory bool
)

// rootCmd runs the daemon; there are no subcommands.
var rootCmd = &cobra.Command{
	Use:   "lethed",
	Short: "Lethe personal assistant daemon",
	Long: `Lethe runs a principal assistant actor with persistent memory, a
workspace, an emotional-salience heartbeat, and a memory-recall sidecar.
Messages are read line by line from stdin; responses go to stdout.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runDaemon(cmd.Context())
	},
}

// Execute runs the daemon under SIGINT/SIGTERM cancellation.
func Execute() error {
	ctx, stop := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.Flags().StringVar(
		&envFile, "env", ".env",
		"Dotenv file to load (missing file is not an error)",
	)
	rootCmd.Flags().StringVar(
		&dbPath, "db", "",
		"Path to SQLite database (default: ~/.lethe/lethe.db)",
	)
	rootCmd.Flags().StringVar(
		&workspaceDir, "workspace", "",
		"Workspace directory (default: ~/.lethe/workspace)",
	)
	rootCmd.Flags().StringVar(
		&logDir, "log-dir", "",
		"Directory for lethed.log (empty: stderr only)",
	)
	rootCmd.Flags().StringVar(
		&logLevel, "log-level", "info",
		"Log level: trace, debug, info, warn, error",
	)
	rootCmd.Flags().StringVar(
		&model, "model", "claude-sonnet-4-5",
		"Claude model for the principal and subagents",
	)
	rootCmd.Flags().StringVar(
		&analyzerModel, "analyzer-model", "claude-3-5-haiku-latest",
		"Claude model for the hippocampus and amygdala",
	)
	rootCmd.Flags().DurationVar(
		&heartbeatInterval, "heartbeat-interval", 15*time.Minute,
		"Amygdala round interval",
	)
	rootCmd.Flags().StringVar(
		&heartbeatCron, "heartbeat-cron", "",
		"Cron expression overriding the heartbeat interval",
	)
	rootCmd.Flags().StringArrayVar(
		&mcpServers, "mcp", nil,
		"MCP tool server as \"name=command arg...\" (repeatable)",
	)
	rootCmd.Flags().BoolVar(
		&serveMemory, "serve-memory", false,
		"Serve the memory store over MCP stdio instead of chatting",
	)
}
