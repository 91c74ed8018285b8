package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockClient is a scripted Client for tests. ChatFunc, when set, decides the
// response per message; otherwise Chat returns Response verbatim.
type MockClient struct {
	mu sync.Mutex

	// ChatFunc, when non-nil, handles each Chat call.
	ChatFunc func(ctx context.Context, userMessage string) (string, error)

	// Response is returned by Chat when ChatFunc is nil.
	Response string

	prompt   string
	tools    Registry
	messages []string
}

// NewMockClient returns an empty mock.
func NewMockClient() *MockClient {
	return &MockClient{tools: make(Registry)}
}

// Chat records the message and returns the scripted response.
func (m *MockClient) Chat(ctx context.Context, userMessage string,
	_ ...ChatOption) (string, error) {

	m.mu.Lock()
	m.messages = append(m.messages, userMessage)
	fn := m.ChatFunc
	resp := m.Response
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, userMessage)
	}

	return resp, nil
}

// AddTool registers a tool so tests can invoke it via CallTool.
func (m *MockClient) AddTool(tool Tool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tools[tool.Name] = tool
}

// SetSystemPrompt records the system prompt.
func (m *MockClient) SetSystemPrompt(prompt string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prompt = prompt
}

// SystemPrompt returns the recorded system prompt.
func (m *MockClient) SystemPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.prompt
}

// Messages returns a copy of every user message Chat has seen.
func (m *MockClient) Messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, len(m.messages))
	copy(out, m.messages)

	return out
}

// Tool returns a registered tool by name.
func (m *MockClient) Tool(name string) (Tool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tool, ok := m.tools[name]

	return tool, ok
}

// CallTool runs a registered tool directly, the way the real client would
// when the model requests it.
func (m *MockClient) CallTool(ctx context.Context, name string,
	args map[string]any) (string, error) {

	tool, ok := m.Tool(name)
	if !ok {
		return "", fmt.Errorf("unknown tool %q", name)
	}

	return tool.Run(ctx, args)
}

// Ensure MockClient implements Client at compile time.
var _ Client = (*MockClient)(nil)
