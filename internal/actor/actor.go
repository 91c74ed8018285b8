// Package actor implements the runtime's cooperating-agent core: uniquely
// identified actors with bounded FIFO inboxes, a registry that owns spawn
// and discovery, a runner that drives each actor's LLM turn loop, and the
// tool bindings actors use to talk to each other.
package actor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/lethe/internal/llm"
)

const (
	// DefaultInboxSize bounds each actor's inbox. Sends to a full inbox
	// drop the message with a warning rather than blocking the sender.
	DefaultInboxSize = 1024

	// DefaultReplyTimeout is the wait_for_reply timeout when the caller
	// passes zero.
	DefaultReplyTimeout = 120 * time.Second

	// inboxPromptWindow is how many recent peer messages the system
	// prompt includes.
	inboxPromptWindow = 10
)

// Actor is a uniquely identified autonomous unit with its own inbox,
// history, and LLM-driven behavior. All mutable fields are guarded by mu;
// identity fields are immutable after construction.
type Actor struct {
	// ID is the actor's short unique identifier.
	ID string

	// Config is the spawn configuration, normalized.
	Config Config

	// SpawnedBy is the parent actor's id, empty for roots.
	SpawnedBy string

	// IsPrincipal marks the single actor allowed to speak to the user.
	IsPrincipal bool

	// CreatedAt is the spawn time.
	CreatedAt time.Time

	registry *Registry
	inbox    chan Message

	mu      sync.Mutex
	state   State
	history []Message
	result  string
	turns   int

	termOnce sync.Once
}

func newActor(cfg Config, spawnedBy string, isPrincipal bool,
	registry *Registry) *Actor {

	return &Actor{
		ID:          shortID(),
		Config:      cfg,
		SpawnedBy:   spawnedBy,
		IsPrincipal: isPrincipal,
		CreatedAt:   time.Now(),
		registry:    registry,
		inbox:       make(chan Message, DefaultInboxSize),
		state:       StateInitializing,
	}
}

// State returns the actor's current lifecycle phase.
func (a *Actor) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.state
}

// setState advances the lifecycle phase. Backward transitions and
// transitions out of Terminated are ignored, keeping the observed sequence
// monotonic.
func (a *Actor) setState(s State) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if s < a.state || a.state == StateTerminated {
		return
	}
	a.state = s
}

// Terminated reports whether the actor has reached its final state.
func (a *Actor) Terminated() bool {
	return a.State() == StateTerminated
}

// Info returns the actor's public discovery projection.
func (a *Actor) Info() Info {
	return Info{
		ID:        a.ID,
		Name:      a.Config.Name,
		Group:     a.Config.Group,
		Goals:     a.Config.Goals,
		State:     a.State(),
		SpawnedBy: a.SpawnedBy,
	}
}

// Send appends the message to this actor's history and enqueues it into the
// inbox. A full inbox drops the message with a warning instead of blocking
// the sender.
func (a *Actor) Send(msg Message) {
	a.mu.Lock()
	a.history = append(a.history, msg)
	a.mu.Unlock()

	select {
	case a.inbox <- msg:
	default:
		log.WarnS(context.Background(), "Inbox full, dropping message",
			nil,
			"actor_id", a.ID,
			"actor", a.Config.Name,
			"msg_id", msg.ID,
			"sender", msg.Sender)
	}
}

// SendTo resolves the recipient via the registry, constructs a message, and
// delivers it. The message lands in the sender's history once and in the
// recipient's history and inbox once.
func (a *Actor) SendTo(recipientID, content,
	replyTo string) (Message, error) {

	recipient, ok := a.registry.Get(recipientID)
	if !ok {
		return Message{}, fmt.Errorf("%w: %s", ErrUnknownActor,
			recipientID)
	}
	if recipient.Terminated() {
		return Message{}, fmt.Errorf("%w: %s", ErrActorTerminated,
			recipientID)
	}

	msg := NewMessage(a.ID, recipientID, content, replyTo)

	a.mu.Lock()
	a.history = append(a.history, msg)
	a.mu.Unlock()

	recipient.Send(msg)

	log.TraceS(context.Background(), "Message delivered",
		"msg_id", msg.ID,
		"from", a.ID,
		"to", recipientID)

	return msg, nil
}

// WaitForReply blocks until a message arrives, the timeout elapses, or the
// context is cancelled. Timeout and cancellation both yield None.
func (a *Actor) WaitForReply(ctx context.Context,
	timeout time.Duration) fn.Option[Message] {

	if timeout <= 0 {
		timeout = DefaultReplyTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-a.inbox:
		return fn.Some(msg)
	case <-timer.C:
		return fn.None[Message]()
	case <-ctx.Done():
		return fn.None[Message]()
	}
}

// DrainInbox removes and returns every message currently queued, without
// blocking.
func (a *Actor) DrainInbox() []Message {
	var batch []Message
	for {
		select {
		case msg := <-a.inbox:
			batch = append(batch, msg)
		default:
			return batch
		}
	}
}

// Terminate moves the actor to Terminated exactly once, records the result,
// and notifies the parent through the registry. Later calls are no-ops.
func (a *Actor) Terminate(result string) {
	a.termOnce.Do(func() {
		if result == "" {
			result = fmt.Sprintf(
				"Actor %s terminated", a.Config.Name,
			)
		}

		a.mu.Lock()
		a.result = result
		a.state = StateTerminated
		a.mu.Unlock()

		log.DebugS(context.Background(), "Actor terminated",
			"actor_id", a.ID,
			"actor", a.Config.Name,
			"result", result)

		a.registry.onActorTerminated(a)
	})
}

// Result returns the terminate result, or None while the actor is live.
func (a *Actor) Result() fn.Option[string] {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateTerminated {
		return fn.None[string]()
	}

	return fn.Some(a.result)
}

// Turns returns how many runner turns the actor has consumed.
func (a *Actor) Turns() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.turns
}

// SetTurns records the actor's consumed turn count. Called by whichever
// loop is driving the actor.
func (a *Actor) SetTurns(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.turns = n
}

// History returns a copy of the actor's message history.
func (a *Actor) History() []Message {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Message, len(a.history))
	copy(out, a.history)

	return out
}

// BuildSystemPrompt assembles the LLM system prompt from the actor's role,
// goals, a snapshot of its group peers, recent peer messages, and the rules
// for the tools it is offered.
func (a *Actor) BuildSystemPrompt() string {
	var b strings.Builder

	if a.IsPrincipal {
		fmt.Fprintf(&b, "You are %s, the principal assistant. You "+
			"are the only actor that speaks to the user. "+
			"Delegate substantial work to subagents and "+
			"coordinate their results.\n\n", a.Config.Name)
	} else {
		fmt.Fprintf(&b, "You are %s, a subagent. Work toward your "+
			"delegated goals and report back to the actor that "+
			"spawned you.\n\n", a.Config.Name)
	}

	fmt.Fprintf(&b, "<goals>\n%s\n</goals>\n\n", a.Config.Goals)

	b.WriteString("<group_actors>\n")
	peers := a.registry.Discover(a.Config.Group)
	wrote := false
	for _, info := range peers {
		if info.ID == a.ID {
			continue
		}
		fmt.Fprintf(&b, "- %s (id=%s, state=%s): %s\n",
			info.Name, info.ID, info.State, info.Goals)
		wrote = true
	}
	if !wrote {
		b.WriteString("(no other actors in your group)\n")
	}
	b.WriteString("</group_actors>\n\n")

	b.WriteString("<inbox>\n")
	recent := a.recentPeerMessages(inboxPromptWindow)
	if len(recent) == 0 {
		b.WriteString("(empty)\n")
	}
	for _, msg := range recent {
		sender := a.registry.displayName(msg.Sender)
		if msg.ReplyTo != "" {
			fmt.Fprintf(&b, "[%s] %s (reply to %s): %s\n",
				msg.CreatedAt.Format("15:04:05"), sender,
				msg.ReplyTo, msg.Content)
		} else {
			fmt.Fprintf(&b, "[%s] %s: %s\n",
				msg.CreatedAt.Format("15:04:05"), sender,
				msg.Content)
		}
	}
	b.WriteString("</inbox>\n\n")

	b.WriteString("<rules>\n")
	b.WriteString("- Use send_message(actor_id, content) to talk to " +
		"other actors.\n")
	b.WriteString("- Use wait_for_response(timeout_seconds) after " +
		"sending when you need an answer.\n")
	b.WriteString("- Use discover_actors(group) to see who is " +
		"available.\n")
	b.WriteString("- Call terminate(result) with a summary when your " +
		"goals are complete.\n")
	if a.IsPrincipal {
		b.WriteString("- Use spawn_subagent(name, goals) to " +
			"delegate substantial work.\n")
	}
	b.WriteString("</rules>")

	return b.String()
}

// recentPeerMessages returns the last limit history entries authored by
// other actors.
func (a *Actor) recentPeerMessages(limit int) []Message {
	a.mu.Lock()
	defer a.mu.Unlock()

	var peers []Message
	for _, msg := range a.history {
		if msg.Sender != a.ID {
			peers = append(peers, msg)
		}
	}
	if len(peers) > limit {
		peers = peers[len(peers)-limit:]
	}

	return peers
}

// ContextMessages projects the last max_messages history entries into chat
// turns: self-authored messages become assistant turns, peer messages become
// user turns prefixed with the sender's name.
func (a *Actor) ContextMessages() []llm.ChatTurn {
	a.mu.Lock()
	history := a.history
	if len(history) > a.Config.MaxMessages {
		history = history[len(history)-a.Config.MaxMessages:]
	}
	window := make([]Message, len(history))
	copy(window, history)
	a.mu.Unlock()

	turns := make([]llm.ChatTurn, 0, len(window))
	for _, msg := range window {
		if msg.Sender == a.ID {
			turns = append(turns, llm.ChatTurn{
				Role:    llm.RoleAssistant,
				Content: msg.Content,
			})
			continue
		}

		sender := a.registry.displayName(msg.Sender)
		turns = append(turns, llm.ChatTurn{
			Role: llm.RoleUser,
			Content: fmt.Sprintf(
				"[From %s]: %s", sender, msg.Content,
			),
		})
	}

	return turns
}
