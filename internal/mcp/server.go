package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/roasbeef/lethe/internal/memory"
)

const (
	// defaultServeSearchLimit bounds search_memory when the caller leaves
	// limit unset.
	defaultServeSearchLimit = 10

	// defaultServeRecentLimit bounds recent_messages when the caller
	// leaves limit unset.
	defaultServeRecentLimit = 20
)

// Server exposes the conversation memory store to external MCP clients, so
// other agents can search and annotate the assistant's long-term memory.
type Server struct {
	server *mcp.Server
	store  *memory.Store
}

// NewServer creates an MCP server with the memory tools registered.
func NewServer(store *memory.Store) *Server {
	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "lethe",
			Version: "0.1.0",
		}, nil),
		store: store,
	}
	s.registerTools()

	return s
}

// Run serves on the given transport until the context is cancelled.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.server.Run(ctx, transport)
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_memory",
		Description: "Full-text search over stored conversation messages",
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "recent_messages",
		Description: "Fetch the most recent messages of a chat",
	}, s.handleRecent)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "save_note",
		Description: "Store a note in conversation memory",
	}, s.handleSaveNote)
}

type searchMemoryArgs struct {
	Query string `json:"query" jsonschema:"full-text search query"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum results (default 10)"`
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest,
	args searchMemoryArgs) (*mcp.CallToolResult, any, error) {

	limit := args.Limit
	if limit <= 0 {
		limit = defaultServeSearchLimit
	}

	hits, err := s.store.Search(ctx, args.Query, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("search failed: %w", err)
	}
	if len(hits) == 0 {
		return textResult("No matches."), nil, nil
	}

	lines := make([]string, 0, len(hits))
	for _, hit := range hits {
		lines = append(lines, fmt.Sprintf("[%d] (%s, %s) %s",
			hit.ID, hit.Role,
			hit.CreatedAt.UTC().Format("2006-01-02 15:04"),
			hit.Content))
	}

	return textResult(strings.Join(lines, "\n")), nil, nil
}

type recentMessagesArgs struct {
	ChatID string `json:"chat_id" jsonschema:"chat identifier"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum messages (default 20)"`
}

func (s *Server) handleRecent(ctx context.Context, _ *mcp.CallToolRequest,
	args recentMessagesArgs) (*mcp.CallToolResult, any, error) {

	limit := args.Limit
	if limit <= 0 {
		limit = defaultServeRecentLimit
	}

	msgs, err := s.store.RecentMessages(ctx, args.ChatID, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch failed: %w", err)
	}
	if len(msgs) == 0 {
		return textResult("No messages."), nil, nil
	}

	lines := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		lines = append(lines, fmt.Sprintf("%s %s: %s",
			msg.CreatedAt.UTC().Format(time.RFC3339),
			msg.Role, msg.Content))
	}

	return textResult(strings.Join(lines, "\n")), nil, nil
}

type saveNoteArgs struct {
	ChatID  string `json:"chat_id" jsonschema:"chat identifier"`
	Content string `json:"content" jsonschema:"note text to store"`
}

func (s *Server) handleSaveNote(ctx context.Context, _ *mcp.CallToolRequest,
	args saveNoteArgs) (*mcp.CallToolResult, any, error) {

	if strings.TrimSpace(args.Content) == "" {
		return nil, nil, fmt.Errorf("content is required")
	}

	id, err := s.store.SaveMessage(
		ctx, args.ChatID, "note", args.Content, nil,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("save failed: %w", err)
	}

	return textResult(fmt.Sprintf("Saved note (id=%d)", id)), nil, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}
