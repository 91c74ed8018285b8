package actor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/roasbeef/lethe/internal/llm"
)

const (
	// DefaultIdleWait is how long a turn lingers on the inbox after a
	// substantive LLM response, so a quick peer reply lands in the next
	// batch instead of a nudge turn.
	DefaultIdleWait = 2 * time.Second

	// nudgeMessage is the turn input when there is nothing new to react
	// to.
	nudgeMessage = "[System: Continue working on your goals. Call " +
		"terminate(result) when done.]"

	// lastResponseTrunc bounds the response excerpt embedded in the
	// forced-termination result.
	lastResponseTrunc = 200
)

// ackTokens are responses treated as bare acknowledgments. A turn that
// produces one skips the idle wait.
var ackTokens = map[string]struct{}{
	"ok":         {},
	"done":       {},
	"understood": {},
}

// LLMFactory builds an LLM client for one actor. The factory decides model
// selection (honoring Config.Model overrides) and credentials.
type LLMFactory func(ctx context.Context, a *Actor) (llm.Client, error)

// Runner drives actors' LLM turn loops. One Runner is shared by all actors;
// Run is called once per actor, usually on its own goroutine.
type Runner struct {
	// Registry resolves peers and spawns children.
	Registry *Registry

	// Factory builds each actor's LLM client.
	Factory LLMFactory

	// Pool is the external tool pool actors may bind from, gated by
	// their config tool lists.
	Pool llm.Registry

	// IdleWait overrides the post-turn inbox linger. Zero means
	// DefaultIdleWait; negative disables the wait.
	IdleWait time.Duration
}

// Run drives the actor until it terminates or exhausts its turn budget, and
// returns the final result string. Errors never escape: every failure path
// terminates the actor with the reason recorded in its result.
func (r *Runner) Run(ctx context.Context, a *Actor) string {
	client, err := r.Factory(ctx, a)
	if err != nil {
		log.WarnS(ctx, "LLM client creation failed", err,
			"actor_id", a.ID, "actor", a.Config.Name)
		a.Terminate(fmt.Sprintf("Error: %v", err))

		return a.Result().UnwrapOr("")
	}

	r.bindTools(ctx, a, client)
	client.SetSystemPrompt(a.BuildSystemPrompt())

	kickoff := fmt.Sprintf("You are actor '%s'. Your goals:\n\n%s\n\n"+
		"Begin working on your task. Use tools as needed. When done, "+
		"call terminate(result) with a summary.",
		a.Config.Name, a.Config.Goals)

	idleWait := r.IdleWait
	if idleWait == 0 {
		idleWait = DefaultIdleWait
	}

	var (
		lastResponse string
		carried      []Message
	)

	for turn := 0; turn < a.Config.MaxTurns; turn++ {
		if a.Terminated() {
			break
		}
		a.SetTurns(turn + 1)

		batch := append(carried, a.DrainInbox()...)
		carried = nil

		var input string
		switch {
		case turn == 0:
			input = kickoff
		case len(batch) > 0:
			input = r.formatBatch(batch)
		default:
			input = nudgeMessage
		}

		log.TraceS(ctx, "Actor turn",
			"actor_id", a.ID,
			"turn", turn+1,
			"inbox_batch", len(batch))

		response, err := client.Chat(ctx, input)
		if err != nil {
			log.WarnS(ctx, "LLM call failed, terminating actor",
				err, "actor_id", a.ID,
				"actor", a.Config.Name)
			a.Terminate(fmt.Sprintf("Error: %v", err))

			break
		}
		lastResponse = response

		// Tools may have terminated the actor mid-call.
		if a.Terminated() {
			break
		}

		if isAck(response) {
			continue
		}

		if idleWait > 0 {
			// Linger briefly so a quick reply feeds the next turn
			// instead of being answered by a nudge. A message
			// popped here is carried into the next batch, never
			// dropped.
			a.WaitForReply(ctx, idleWait).WhenSome(
				func(msg Message) {
					carried = append(carried, msg)
				},
			)
		}
	}

	if !a.Terminated() {
		excerpt := strings.TrimSpace(lastResponse)
		if excerpt == "" {
			excerpt = "none"
		} else if len(excerpt) > lastResponseTrunc {
			excerpt = excerpt[:lastResponseTrunc]
		}
		a.Terminate(fmt.Sprintf(
			"Max turns reached. Last response: %s", excerpt,
		))
	}

	return a.Result().UnwrapOr("")
}

// Spawn creates a child actor and starts its runner on a new goroutine.
func (r *Runner) Spawn(ctx context.Context, cfg Config,
	parent *Actor) (*Actor, error) {

	child, err := r.Registry.Spawn(cfg, parent.ID, false)
	if err != nil {
		return nil, err
	}

	go r.Run(ctx, child)

	return child, nil
}

// bindTools attaches the actor messaging tools plus every config-permitted
// pool tool. Unknown tool names are logged and skipped, never fatal.
func (r *Runner) bindTools(ctx context.Context, a *Actor, client llm.Client) {
	spawn := func(cfg Config, parent *Actor) (*Actor, error) {
		return r.Spawn(ctx, cfg, parent)
	}
	for _, tool := range BindTools(a, r.Registry, spawn) {
		client.AddTool(tool)
	}

	for _, name := range a.Config.Tools {
		if name == "spawn" {
			// Permission token, not a pool tool.
			continue
		}
		tool, ok := r.Pool[name]
		if !ok {
			log.WarnS(ctx, "Requested tool not available, skipping",
				nil, "actor_id", a.ID, "tool", name)
			continue
		}
		client.AddTool(tool)
	}
}

// formatBatch renders drained inbox messages into one turn input.
func (r *Runner) formatBatch(batch []Message) string {
	lines := make([]string, 0, len(batch))
	for _, msg := range batch {
		sender := r.Registry.displayName(msg.Sender)
		lines = append(lines, fmt.Sprintf(
			"[Message from %s]: %s", sender, msg.Content,
		))
	}

	return strings.Join(lines, "\n")
}

// isAck reports whether the response is a bare acknowledgment token.
func isAck(response string) bool {
	_, ok := ackTokens[strings.ToLower(strings.TrimSpace(response))]

	return ok
}
