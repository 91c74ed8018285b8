// Package llm defines the chat-client contract the actor runtime drives and
// an Anthropic-backed implementation of it. A client owns its own
// conversation history and tool set; callers interact with it one user
// message at a time.
package llm

import "context"

// Role identifies which side of the conversation a turn belongs to.
type Role string

const (
	// RoleUser marks a turn sent to the model.
	RoleUser Role = "user"

	// RoleAssistant marks a turn produced by the model.
	RoleAssistant Role = "assistant"
)

// ChatTurn is one entry of pre-seeded conversation context.
type ChatTurn struct {
	Role    Role
	Content string
}

// Client is the minimal chat surface the actor runner and the background
// analyzers drive. Implementations are expected to run any tool-use loop
// internally and return only the final text.
type Client interface {
	// Chat sends a user message, resolves any tool calls the model makes,
	// and returns the model's final text output.
	Chat(ctx context.Context, userMessage string,
		opts ...ChatOption) (string, error)

	// AddTool registers a tool the model may call during Chat.
	AddTool(tool Tool)

	// SetSystemPrompt replaces the system prompt used on every request.
	SetSystemPrompt(prompt string)
}

// chatOptions collects per-call overrides.
type chatOptions struct {
	maxToolIterations int
	seedContext       []ChatTurn
}

// ChatOption tweaks a single Chat call.
type ChatOption func(*chatOptions)

// WithMaxToolIterations caps how many tool-use rounds a single Chat call may
// perform before the client stops resolving tools and returns whatever text
// it has.
func WithMaxToolIterations(n int) ChatOption {
	return func(o *chatOptions) {
		o.maxToolIterations = n
	}
}

// WithSeedContext prepends prior conversation turns before the user message.
// Only honored when the client's history is empty.
func WithSeedContext(turns []ChatTurn) ChatOption {
	return func(o *chatOptions) {
		o.seedContext = turns
	}
}
