// Package mcp adapts external Model Context Protocol servers into the tool
// registry contract: each server tool is projected as an llm.Tool whose Run
// performs the CallTool round trip.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/roasbeef/lethe/internal/llm"
)

// ToolSource is a live session against one MCP server.
type ToolSource struct {
	name    string
	session *mcp.ClientSession
}

// Connect launches the server command and performs the MCP handshake over
// its stdio.
func Connect(ctx context.Context, name, command string,
	args ...string) (*ToolSource, error) {

	transport := &mcp.CommandTransport{
		Command: exec.Command(command, args...),
	}

	return ConnectTransport(ctx, name, transport)
}

// ConnectTransport performs the MCP handshake over an existing transport.
func ConnectTransport(ctx context.Context, name string,
	transport mcp.Transport) (*ToolSource, error) {

	client := mcp.NewClient(&mcp.Implementation{
		Name:    "lethe",
		Version: "0.1.0",
	}, nil)

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MCP server "+
			"%q: %w", name, err)
	}

	log.InfoS(ctx, "Connected to MCP server", "server", name)

	return &ToolSource{name: name, session: session}, nil
}

// Tools lists the server's tools as a registry. Each tool's Run round-trips
// through the session.
func (s *ToolSource) Tools(ctx context.Context) (llm.Registry, error) {
	res, err := s.session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools on %q: %w",
			s.name, err)
	}

	reg := make(llm.Registry, len(res.Tools))
	for _, tool := range res.Tools {
		schema, err := schemaToMap(tool.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("tool %q schema: %w",
				tool.Name, err)
		}

		name := tool.Name
		reg[name] = llm.Tool{
			Name:        name,
			Description: tool.Description,
			InputSchema: schema,
			Run: func(ctx context.Context,
				args map[string]any) (string, error) {

				return s.call(ctx, name, args)
			},
		}
	}

	log.DebugS(ctx, "Listed MCP tools",
		"server", s.name,
		"count", len(reg))

	return reg, nil
}

// call invokes one server tool and flattens the text content blocks.
func (s *ToolSource) call(ctx context.Context, name string,
	args map[string]any) (string, error) {

	res, err := s.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return "", fmt.Errorf("MCP tool %q: %w", name, err)
	}

	var parts []string
	for _, content := range res.Content {
		if text, ok := content.(*mcp.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	text := strings.Join(parts, "\n")

	if res.IsError {
		return "", fmt.Errorf("MCP tool %q failed: %s", name, text)
	}

	return text, nil
}

// Close tears the session down.
func (s *ToolSource) Close() error {
	return s.session.Close()
}

// schemaToMap converts the SDK's schema type into the opaque map the tool
// registry contract carries.
func schemaToMap(schema any) (map[string]any, error) {
	if schema == nil {
		return map[string]any{"type": "object"}, nil
	}

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}

	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}

	return out, nil
}
