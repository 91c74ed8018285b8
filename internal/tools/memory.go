package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/roasbeef/lethe/internal/llm"
	"github.com/roasbeef/lethe/internal/memory"
)

const (
	// defaultSearchLimit bounds conversation_search results when no limit
	// is given.
	defaultSearchLimit = 10

	// searchSnippetChars truncates each search result's content.
	searchSnippetChars = 200
)

// MemoryTools returns the recall tool set over the message store.
func MemoryTools(store *memory.Store) llm.Registry {
	return llm.NewRegistry(
		conversationSearchTool(store),
		memoryReadTool(store),
	)
}

func conversationSearchTool(store *memory.Store) llm.Tool {
	return llm.Tool{
		Name: "conversation_search",
		Description: "Full-text search over past conversation " +
			"messages, best matches first",
		InputSchema: llm.ObjectSchema(map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Search terms",
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Max results (default 10)",
			},
		}, "query"),
		Run: func(ctx context.Context,
			args map[string]any) (string, error) {

			query, err := llm.StringArg(args, "query")
			if err != nil {
				return "", err
			}
			limit, err := llm.OptionalNumberArg(
				args, "limit", defaultSearchLimit,
			)
			if err != nil {
				return "", err
			}

			hits, err := store.Search(ctx, query, int(limit))
			if err != nil {
				return "", err
			}
			if len(hits) == 0 {
				return "No matches.", nil
			}

			lines := make([]string, len(hits))
			for i, hit := range hits {
				content := hit.Content
				if len(content) > searchSnippetChars {
					content = content[:searchSnippetChars] +
						"..."
				}
				lines[i] = fmt.Sprintf("[%d] (%s, %s) %s",
					hit.ID, hit.Role,
					hit.CreatedAt.UTC().Format(
						"2006-01-02 15:04",
					), content)
			}

			return strings.Join(lines, "\n"), nil
		},
	}
}

func memoryReadTool(store *memory.Store) llm.Tool {
	return llm.Tool{
		Name: "memory_read",
		Description: "Read one stored message in full by its id " +
			"(from conversation_search results)",
		InputSchema: llm.ObjectSchema(map[string]any{
			"message_id": map[string]any{
				"type":        "integer",
				"description": "Message id",
			},
		}, "message_id"),
		Run: func(ctx context.Context,
			args map[string]any) (string, error) {

			id, err := llm.OptionalNumberArg(args, "message_id", 0)
			if err != nil {
				return "", err
			}
			if id == 0 {
				return "", fmt.Errorf("missing argument " +
					"\"message_id\"")
			}

			msg, err := store.GetMessage(ctx, int64(id))
			if err != nil {
				return "", err
			}

			return fmt.Sprintf("id=%d chat=%s role=%s time=%s\n%s",
				msg.ID, msg.ChatID, msg.Role,
				msg.CreatedAt.UTC().Format(
					"2006-01-02 15:04:05",
				), msg.Content), nil
		},
	}
}
