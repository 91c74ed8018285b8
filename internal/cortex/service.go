// Package cortex is the principal pipeline: it owns the principal actor and
// its LLM client, and turns each coalesced conversation batch into persisted
// memory, hippocampus-augmented prompts, a judged response loop, and outbound
// transport deliveries.
package cortex

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/roasbeef/lethe/internal/actor"
	"github.com/roasbeef/lethe/internal/hippocampus"
	"github.com/roasbeef/lethe/internal/llm"
	"github.com/roasbeef/lethe/internal/memory"
)

const (
	// DefaultPrincipalName labels the principal actor.
	DefaultPrincipalName = "butler"

	// DefaultPrincipalGroup is the principal's discovery group.
	DefaultPrincipalGroup = "main"

	// DefaultMaxIterations bounds the judged response loop for one
	// coalesced batch.
	DefaultMaxIterations = 5

	// defaultPrincipalGoals is used when no goals are configured.
	defaultPrincipalGoals = "Assist the user: answer questions, run " +
		"tasks, and delegate substantial work to subagents."

	// continuationPrompt is the turn input when the judge asked the
	// principal to keep working on the same request.
	continuationPrompt = "[System: Continue working on the user's " +
		"request. Reply with your next result.]"

	// recentContextWindow is how many stored messages seed the recall
	// analysis and the principal's first turn.
	recentContextWindow = 20

	// signalWindow bounds the recent-signals snapshot handed to the
	// heartbeat.
	signalWindow = 10
)

// SendFunc delivers one outbound principal response over the transport.
type SendFunc func(ctx context.Context, chatID, text string) error

// Config wires the service's collaborators.
type Config struct {
	// Registry owns actor spawn and discovery.
	Registry *actor.Registry

	// Runner drives subagents the principal spawns.
	Runner *actor.Runner

	// Store persists conversation messages.
	Store *memory.Store

	// Analyzer is the hippocampus sidecar. Nil disables recall and makes
	// every response deliver-and-stop.
	Analyzer *hippocampus.Analyzer

	// Factory builds the principal's LLM client.
	Factory actor.LLMFactory

	// Pool is the external tool pool the principal binds from.
	Pool llm.Registry

	// SendToUser delivers responses over the transport.
	SendToUser SendFunc

	// Principal overrides the principal actor's spawn config. Zero-value
	// fields get daemon defaults.
	Principal actor.Config

	// MaxIterations bounds the judged response loop. Zero means
	// DefaultMaxIterations.
	MaxIterations int
}

// Service is the conversation-facing principal pipeline. Construct with New.
type Service struct {
	cfg       Config
	principal *actor.Actor
	client    llm.Client

	mu         sync.Mutex
	lastChatID string
}

// New spawns the principal actor, builds its LLM client, and binds its tools.
func New(ctx context.Context, cfg Config) (*Service, error) {
	if cfg.Principal.Name == "" {
		cfg.Principal.Name = DefaultPrincipalName
	}
	if cfg.Principal.Group == "" {
		cfg.Principal.Group = DefaultPrincipalGroup
	}
	if cfg.Principal.Goals == "" {
		cfg.Principal.Goals = defaultPrincipalGoals
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}

	principal, err := cfg.Registry.Spawn(cfg.Principal, "", true)
	if err != nil {
		return nil, fmt.Errorf("failed to spawn principal: %w", err)
	}

	client, err := cfg.Factory(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("failed to build principal LLM "+
			"client: %w", err)
	}

	s := &Service{
		cfg:       cfg,
		principal: principal,
		client:    client,
	}
	s.bindTools(ctx)
	client.SetSystemPrompt(principal.BuildSystemPrompt())

	log.InfoS(ctx, "Principal online",
		"actor_id", principal.ID,
		"actor", principal.Config.Name,
		"group", principal.Config.Group)

	return s, nil
}

// Principal returns the principal actor.
func (s *Service) Principal() *actor.Actor {
	return s.principal
}

// ProcessMessage is the conversation manager callback for one coalesced
// batch: persist, augment, drive the judged response loop, deliver, persist
// the replies. Only cancellation escapes as an error; everything else is
// logged and absorbed so pending work is never discarded.
func (s *Service) ProcessMessage(ctx context.Context, chatID, userID,
	content string, metadata map[string]any, interrupted func() bool) error {

	s.mu.Lock()
	s.lastChatID = chatID
	s.mu.Unlock()

	// Snapshot the stored tail before persisting, so the context window
	// does not double the message being processed.
	recent := s.recentTurns(ctx, chatID)

	_, err := s.cfg.Store.SaveMessage(ctx, chatID, "user", content, metadata)
	if err != nil {
		// Persistence failure must not silence the user.
		log.ErrorS(ctx, "Failed to persist user message", err,
			"chat_id", chatID)
	}
	input := s.cfg.Analyzer.AugmentMessage(ctx, content, recent)

	// Peer notifications (amygdala alerts, subagent results) waiting in
	// the principal's inbox ride along with this turn.
	if batch := s.principal.DrainInbox(); len(batch) > 0 {
		input = s.formatInbox(batch) + "\n\n" + input
	}

	log.InfoS(ctx, "Processing conversation batch",
		"chat_id", chatID,
		"user_id", userID,
		"chars", len(input))

	for iteration := 0; iteration < s.cfg.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Newer input is pending; wind down and let the manager
		// re-enter with the coalesced batch.
		if iteration > 0 && interrupted != nil && interrupted() {
			log.InfoS(ctx, "Interrupted by newer input",
				"chat_id", chatID,
				"iteration", iteration)
			return nil
		}

		response, err := s.client.Chat(
			ctx, input, llm.WithSeedContext(recent),
		)
		if err != nil {
			if errors.Is(err, context.Canceled) ||
				errors.Is(err, context.DeadlineExceeded) {

				return err
			}

			log.ErrorS(ctx, "Principal turn failed", err,
				"chat_id", chatID,
				"iteration", iteration)
			return nil
		}

		judgment := s.cfg.Analyzer.JudgeResponse(
			ctx, content, response, iteration, iteration > 0,
			false,
		)

		if judgment.SendToUser && strings.TrimSpace(response) != "" {
			s.deliver(ctx, chatID, response)
		}

		if !judgment.ContinueTask {
			return nil
		}
		input = continuationPrompt
	}

	log.WarnS(ctx, "Response loop hit iteration cap", nil,
		"chat_id", chatID,
		"max_iterations", s.cfg.MaxIterations)

	return nil
}

// deliver sends one response over the transport and persists it. Transport
// failures are logged; the reply is persisted either way so memory reflects
// what the principal produced.
func (s *Service) deliver(ctx context.Context, chatID, response string) {
	if s.cfg.SendToUser != nil {
		if err := s.cfg.SendToUser(ctx, chatID, response); err != nil {
			log.ErrorS(ctx, "Transport delivery failed", err,
				"chat_id", chatID)
		}
	}

	_, err := s.cfg.Store.SaveMessage(ctx, chatID, "assistant", response,
		nil)
	if err != nil {
		log.ErrorS(ctx, "Failed to persist assistant reply", err,
			"chat_id", chatID)
	}
}

// recentTurns loads the chat's stored tail as chat turns.
func (s *Service) recentTurns(ctx context.Context,
	chatID string) []llm.ChatTurn {

	msgs, err := s.cfg.Store.RecentMessages(ctx, chatID,
		recentContextWindow)
	if err != nil {
		log.WarnS(ctx, "Failed to load recent messages", err,
			"chat_id", chatID)
		return nil
	}

	turns := make([]llm.ChatTurn, 0, len(msgs))
	for _, msg := range msgs {
		role := llm.RoleUser
		if msg.Role == "assistant" {
			role = llm.RoleAssistant
		}
		turns = append(turns, llm.ChatTurn{
			Role:    role,
			Content: msg.Content,
		})
	}

	return turns
}

// formatInbox renders drained peer messages the way the runner formats a
// turn batch.
func (s *Service) formatInbox(batch []actor.Message) string {
	lines := make([]string, 0, len(batch))
	for _, msg := range batch {
		name := msg.Sender
		if sender, ok := s.cfg.Registry.Get(msg.Sender); ok {
			name = sender.Config.Name
		}
		lines = append(lines, fmt.Sprintf(
			"[Message from %s]: %s", name, msg.Content,
		))
	}

	return strings.Join(lines, "\n")
}

// bindTools attaches the messaging tools plus the full pool. The principal
// is not gated by a config tool list; it may reach everything the daemon
// loaded.
func (s *Service) bindTools(ctx context.Context) {
	spawn := func(cfg actor.Config, parent *actor.Actor) (*actor.Actor,
		error) {

		if s.cfg.Runner == nil {
			return nil, errors.New("subagent runner not configured")
		}

		return s.cfg.Runner.Spawn(ctx, cfg, parent)
	}

	for _, tool := range actor.BindTools(s.principal, s.cfg.Registry,
		spawn) {

		s.client.AddTool(tool)
	}
	for _, tool := range s.cfg.Pool {
		s.client.AddTool(tool)
	}
}

// RecentUserSignals is the heartbeat's recent-signals provider: the latest
// user-authored messages of the most recent chat, one per line.
func (s *Service) RecentUserSignals(ctx context.Context) (string, error) {
	s.mu.Lock()
	chatID := s.lastChatID
	s.mu.Unlock()

	if chatID == "" {
		return "", nil
	}

	msgs, err := s.cfg.Store.RecentMessages(ctx, chatID,
		recentContextWindow)
	if err != nil {
		return "", err
	}

	var lines []string
	for _, msg := range msgs {
		if msg.Role != "user" {
			continue
		}
		lines = append(lines, msg.Content)
	}
	if len(lines) > signalWindow {
		lines = lines[len(lines)-signalWindow:]
	}

	return strings.Join(lines, "\n"), nil
}

// PrincipalContext is the heartbeat's principal-context provider: the
// principal's recent history window as "role: content" lines.
func (s *Service) PrincipalContext(ctx context.Context) (string, error) {
	turns := s.principal.ContextMessages()

	lines := make([]string, 0, len(turns))
	for _, turn := range turns {
		lines = append(lines, fmt.Sprintf("%s: %s", turn.Role,
			turn.Content))
	}

	return strings.Join(lines, "\n"), nil
}
