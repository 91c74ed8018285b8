package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/roasbeef/lethe/internal/actor"
	"github.com/roasbeef/lethe/internal/amygdala"
	"github.com/roasbeef/lethe/internal/build"
	"github.com/roasbeef/lethe/internal/conversation"
	"github.com/roasbeef/lethe/internal/cortex"
	"github.com/roasbeef/lethe/internal/hippocampus"
	"github.com/roasbeef/lethe/internal/llm"
	"github.com/roasbeef/lethe/internal/memory"
	"github.com/roasbeef/lethe/internal/mcp"
	"github.com/roasbeef/lethe/internal/tools"
	"github.com/roasbeef/lethe/internal/workspace"
)

const (
	// stdioChatID is the chat id the stdin transport submits under.
	stdioChatID = "stdio"

	// stdioUserID identifies the local user.
	stdioUserID = "local"
)

var log = build.NewSubLogger("LTHD")

// runDaemon wires the whole runtime and blocks until the context is
// cancelled or stdin closes.
func runDaemon(ctx context.Context) error {
	// Missing dotenv files are fine; the environment may already be set.
	if err := godotenv.Load(envFile); err != nil &&
		!errors.Is(err, os.ErrNotExist) {

		return fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	if err := build.InitLogging(logDir, logLevel); err != nil {
		return fmt.Errorf("failed to init logging: %w", err)
	}

	// Conversation store.
	storePath := dbPath
	if storePath == "" {
		var err error
		storePath, err = memory.DefaultDBPath()
		if err != nil {
			return err
		}
	}
	store, err := memory.NewStore(storePath)
	if err != nil {
		return fmt.Errorf("failed to open memory store: %w", err)
	}
	defer store.Close()

	// MCP stdio mode: expose the store to an external client and do
	// nothing else.
	if serveMemory {
		log.InfoS(ctx, "Serving memory store over MCP stdio",
			"db", storePath)
		return mcp.NewServer(store).Run(ctx, &sdkmcp.StdioTransport{})
	}

	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return errors.New("ANTHROPIC_API_KEY is not set")
	}

	// Workspace.
	wsDir := workspaceDir
	if wsDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		wsDir = filepath.Join(home, ".lethe", "workspace")
	}
	ws, err := workspace.New(wsDir)
	if err != nil {
		return fmt.Errorf("failed to open workspace: %w", err)
	}

	// Tool pool: workspace files, conversation memory, and any external
	// MCP servers.
	pool := tools.WorkspaceTools(ws).Merge(tools.MemoryTools(store))
	for _, entry := range mcpServers {
		source, reg, err := connectMCP(ctx, entry)
		if err != nil {
			return err
		}
		defer source.Close()
		pool = pool.Merge(reg)
	}

	registry := actor.NewRegistry()
	factory := anthropicFactory(apiKey, model)
	runner := &actor.Runner{
		Registry: registry,
		Factory:  factory,
		Pool:     pool,
	}

	// Hippocampus sidecar on the lightweight model.
	analyzerClient, err := llm.NewAnthropicClientFromAPIKey(
		apiKey, llm.AnthropicConfig{Model: analyzerModel},
	)
	if err != nil {
		return fmt.Errorf("failed to build analyzer client: %w", err)
	}
	analyzer := hippocampus.NewAnalyzer(
		analyzerClient, hippocampus.StoreSearch(store),
	)

	service, err := cortex.New(ctx, cortex.Config{
		Registry: registry,
		Runner:   runner,
		Store:    store,
		Analyzer: analyzer,
		Factory:  factory,
		Pool:     pool,
		SendToUser: func(_ context.Context, _, text string) error {
			_, err := fmt.Fprintf(os.Stdout, "\n%s\n> ", text)
			return err
		},
	})
	if err != nil {
		return err
	}

	manager := conversation.NewManager(service.ProcessMessage)
	defer manager.Stop()

	// Amygdala heartbeat on the lightweight model.
	heart := amygdala.New(amygdala.Config{
		Registry:         registry,
		Factory:          anthropicFactory(apiKey, analyzerModel),
		Pool:             pool,
		Workspace:        ws,
		PrincipalID:      service.Principal().ID,
		RecentSignals:    service.RecentUserSignals,
		PrincipalContext: service.PrincipalContext,
	})
	scheduler := &amygdala.Scheduler{
		Amygdala: heart,
		Interval: heartbeatInterval,
		Expr:     heartbeatCron,
	}
	if err := scheduler.Validate(); err != nil {
		return err
	}
	go scheduler.Run(ctx)

	log.InfoS(ctx, "Daemon ready",
		"db", storePath,
		"workspace", ws.Root(),
		"model", model,
		"analyzer_model", analyzerModel,
		"tools", len(pool))

	// Stdin transport: one submitted message per line.
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	fmt.Fprint(os.Stdout, "> ")
	for {
		select {
		case <-ctx.Done():
			log.InfoS(ctx, "Shutting down")
			return nil

		case line, ok := <-lines:
			if !ok {
				log.InfoS(ctx, "Stdin closed, shutting down")
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			manager.Submit(stdioChatID, stdioUserID, line, nil)
		}
	}
}

// anthropicFactory builds per-actor clients, honoring per-actor model
// overrides.
func anthropicFactory(apiKey, defaultModel string) actor.LLMFactory {
	return func(_ context.Context, a *actor.Actor) (llm.Client, error) {
		m := a.Config.Model
		if m == "" {
			m = defaultModel
		}

		return llm.NewAnthropicClientFromAPIKey(
			apiKey, llm.AnthropicConfig{Model: m},
		)
	}
}

// connectMCP parses one "name=command arg..." flag value, launches the
// server, and lists its tools.
func connectMCP(ctx context.Context, entry string) (*mcp.ToolSource,
	llm.Registry, error) {

	name, cmdline, ok := strings.Cut(entry, "=")
	if !ok || strings.TrimSpace(cmdline) == "" {
		return nil, nil, fmt.Errorf("invalid --mcp value %q, want "+
			"\"name=command arg...\"", entry)
	}

	fields := strings.Fields(cmdline)
	source, err := mcp.Connect(ctx, name, fields[0], fields[1:]...)
	if err != nil {
		return nil, nil, err
	}

	reg, err := source.Tools(ctx)
	if err != nil {
		source.Close()
		return nil, nil, err
	}

	return source, reg, nil
}
