package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	// DefaultMaxTokens caps the completion size when the config leaves it
	// unset.
	DefaultMaxTokens = 2048

	// DefaultMaxContextChars bounds how much conversation history is sent
	// per request. Older turns are dropped from the front once the budget
	// is exceeded.
	DefaultMaxContextChars = 32000

	// DefaultMaxToolIterations bounds the tool-use rounds a single Chat
	// call may perform.
	DefaultMaxToolIterations = 8

	// stopReasonToolUse is the Messages API stop reason indicating the
	// model wants tool results before continuing.
	stopReasonToolUse = "tool_use"
)

// MessagesClient captures the subset of the Anthropic SDK used by the client,
// satisfied by *sdk.MessageService so tests can substitute a fake.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams,
		opts ...option.RequestOption) (*sdk.Message, error)
}

// AnthropicConfig configures an AnthropicClient.
type AnthropicConfig struct {
	// Model is the Claude model identifier. Required.
	Model string

	// MaxTokens caps completion size per request.
	MaxTokens int64

	// MaxContextChars bounds the serialized conversation history sent per
	// request.
	MaxContextChars int

	// MaxToolIterations is the default tool-round cap per Chat call.
	MaxToolIterations int

	// RetryAttempts is how many times a transient API failure is retried.
	RetryAttempts int

	// RetryBase is the initial retry backoff, doubled per attempt.
	RetryBase time.Duration
}

func (c *AnthropicConfig) normalize() {
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.MaxContextChars <= 0 {
		c.MaxContextChars = DefaultMaxContextChars
	}
	if c.MaxToolIterations <= 0 {
		c.MaxToolIterations = DefaultMaxToolIterations
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
}

// AnthropicClient implements Client over the Anthropic Messages API. It owns
// a growing conversation history and resolves tool_use stop reasons by
// running registered tools and feeding results back until the model produces
// plain text or the iteration cap is hit.
type AnthropicClient struct {
	cfg AnthropicConfig
	msg MessagesClient

	mu      sync.Mutex
	system  string
	tools   []Tool
	byName  map[string]Tool
	history []sdk.MessageParam
}

// NewAnthropicClient builds a client over an existing Messages service.
func NewAnthropicClient(msg MessagesClient,
	cfg AnthropicConfig) (*AnthropicClient, error) {

	if msg == nil {
		return nil, errors.New("messages client is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("model identifier is required")
	}
	cfg.normalize()

	return &AnthropicClient{
		cfg:    cfg,
		msg:    msg,
		byName: make(map[string]Tool),
	}, nil
}

// NewAnthropicClientFromAPIKey constructs a client using the default SDK
// HTTP transport.
func NewAnthropicClientFromAPIKey(apiKey string,
	cfg AnthropicConfig) (*AnthropicClient, error) {

	if apiKey == "" {
		return nil, errors.New("api key is required")
	}

	ac := sdk.NewClient(option.WithAPIKey(apiKey))

	return NewAnthropicClient(&ac.Messages, cfg)
}

// AddTool registers a tool the model may call. Re-registering a name
// replaces the previous tool.
func (c *AnthropicClient) AddTool(tool Tool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.byName[tool.Name]; !ok {
		c.tools = append(c.tools, tool)
	} else {
		for i := range c.tools {
			if c.tools[i].Name == tool.Name {
				c.tools[i] = tool
				break
			}
		}
	}
	c.byName[tool.Name] = tool
}

// SetSystemPrompt replaces the system prompt sent with every request.
func (c *AnthropicClient) SetSystemPrompt(prompt string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.system = prompt
}

// Chat appends the user message to the history, then drives the request/tool
// loop until the model stops asking for tools or the iteration cap is hit.
// Tool failures are surfaced to the model as error results, never to the
// caller.
func (c *AnthropicClient) Chat(ctx context.Context, userMessage string,
	opts ...ChatOption) (string, error) {

	options := chatOptions{maxToolIterations: c.cfg.MaxToolIterations}
	for _, opt := range opts {
		opt(&options)
	}
	if options.maxToolIterations <= 0 {
		options.maxToolIterations = c.cfg.MaxToolIterations
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.history) == 0 && len(options.seedContext) > 0 {
		for _, turn := range options.seedContext {
			block := sdk.NewTextBlock(turn.Content)
			switch turn.Role {
			case RoleAssistant:
				c.history = append(
					c.history, sdk.NewAssistantMessage(block),
				)
			default:
				c.history = append(
					c.history, sdk.NewUserMessage(block),
				)
			}
		}
	}

	c.history = append(c.history, sdk.NewUserMessage(
		sdk.NewTextBlock(userMessage),
	))
	c.trimHistory()

	var lastText string
	for iter := 0; iter < options.maxToolIterations; iter++ {
		params := sdk.MessageNewParams{
			MaxTokens: c.cfg.MaxTokens,
			Messages:  c.history,
			Model:     sdk.Model(c.cfg.Model),
		}
		if c.system != "" {
			params.System = []sdk.TextBlockParam{{Text: c.system}}
		}
		if tools := c.encodeTools(); len(tools) > 0 {
			params.Tools = tools
		}

		msg, err := c.callWithRetry(ctx, params)
		if err != nil {
			return "", fmt.Errorf("messages.new: %w", err)
		}

		text, toolUses := splitResponse(msg)
		if text != "" {
			lastText = text
		}

		c.history = append(c.history, assistantParam(msg))

		if string(msg.StopReason) != stopReasonToolUse ||
			len(toolUses) == 0 {

			return lastText, nil
		}

		results := make([]sdk.ContentBlockParamUnion, 0, len(toolUses))
		for _, tu := range toolUses {
			out, isErr := c.runTool(ctx, tu)
			results = append(results, sdk.NewToolResultBlock(
				tu.ID, out, isErr,
			))
		}
		c.history = append(c.history, sdk.NewUserMessage(results...))
	}

	log.WarnS(ctx, "Tool iteration cap reached", nil,
		"model", c.cfg.Model,
		"max_iterations", options.maxToolIterations)

	return lastText, nil
}

// toolUse is a tool call extracted from a response.
type toolUse struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// splitResponse pulls the concatenated text and the tool calls out of a
// response message.
func splitResponse(msg *sdk.Message) (string, []toolUse) {
	var (
		text strings.Builder
		uses []toolUse
	)
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)

		case "tool_use":
			uses = append(uses, toolUse{
				ID:    block.ID,
				Name:  block.Name,
				Input: block.Input,
			})
		}
	}

	return text.String(), uses
}

// assistantParam re-encodes a response message so it can be appended to the
// request history verbatim.
func assistantParam(msg *sdk.Message) sdk.MessageParam {
	blocks := make([]sdk.ContentBlockParamUnion, 0, len(msg.Content))
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				blocks = append(
					blocks, sdk.NewTextBlock(block.Text),
				)
			}

		case "tool_use":
			input := any(block.Input)
			if len(block.Input) == 0 {
				// The API rejects null tool_use input.
				input = map[string]any{}
			}
			blocks = append(blocks, sdk.NewToolUseBlock(
				block.ID, input, block.Name,
			))
		}
	}

	return sdk.NewAssistantMessage(blocks...)
}

// runTool executes one requested tool call. The second return reports
// whether the result is an error result.
func (c *AnthropicClient) runTool(ctx context.Context,
	tu toolUse) (string, bool) {

	tool, ok := c.byName[tu.Name]
	if !ok {
		log.WarnS(ctx, "Model called unknown tool", nil,
			"tool", tu.Name)

		return fmt.Sprintf("Error: unknown tool %q", tu.Name), true
	}

	args := make(map[string]any)
	if len(tu.Input) > 0 {
		if err := json.Unmarshal(tu.Input, &args); err != nil {
			return fmt.Sprintf(
				"Error: invalid tool input: %v", err,
			), true
		}
	}

	log.DebugS(ctx, "Running tool", "tool", tu.Name)

	out, err := tool.Run(ctx, args)
	if err != nil {
		log.DebugS(ctx, "Tool returned error",
			"tool", tu.Name, "err", err)

		return fmt.Sprintf("Error: %v", err), true
	}

	return out, false
}

// encodeTools converts the registered tools into API params, preserving
// registration order.
func (c *AnthropicClient) encodeTools() []sdk.ToolUnionParam {
	if len(c.tools) == 0 {
		return nil
	}

	encoded := make([]sdk.ToolUnionParam, 0, len(c.tools))
	for _, tool := range c.tools {
		schema := sdk.ToolInputSchemaParam{}
		if tool.InputSchema != nil {
			schema.ExtraFields = tool.InputSchema
		}

		u := sdk.ToolUnionParamOfTool(schema, tool.Name)
		if u.OfTool != nil && tool.Description != "" {
			u.OfTool.Description = sdk.String(tool.Description)
		}
		encoded = append(encoded, u)
	}

	return encoded
}

// trimHistory drops whole turns from the front of the history until its
// serialized size fits the context budget. Trimming only happens at user
// text boundaries so an assistant tool_use is never separated from the tool
// results that answer it.
func (c *AnthropicClient) trimHistory() {
	total := 0
	sizes := make([]int, len(c.history))
	for i := range c.history {
		data, err := json.Marshal(c.history[i])
		if err != nil {
			continue
		}
		sizes[i] = len(data)
		total += sizes[i]
	}

	start := 0
	for total > c.cfg.MaxContextChars && start < len(c.history)-1 {
		total -= sizes[start]
		start++

		// Advance to the next plain user turn so tool_use pairs stay
		// intact.
		for start < len(c.history)-1 && !isPlainUserTurn(c.history[start]) {
			total -= sizes[start]
			start++
		}
	}

	if start > 0 {
		c.history = append(
			[]sdk.MessageParam(nil), c.history[start:]...,
		)
	}
}

// isPlainUserTurn reports whether the param is a user message that carries
// text rather than tool results.
func isPlainUserTurn(m sdk.MessageParam) bool {
	if m.Role != sdk.MessageParamRoleUser {
		return false
	}
	for _, block := range m.Content {
		if block.OfToolResult != nil {
			return false
		}
	}

	return true
}

// Ensure AnthropicClient implements Client at compile time.
var _ Client = (*AnthropicClient)(nil)
