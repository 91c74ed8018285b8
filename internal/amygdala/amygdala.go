// Package amygdala is the heartbeat reflex layer: a periodic single-shot
// actor round that tags recent user signals for emotional salience, tracks
// repeated high-arousal patterns, persists its state to workspace files, and
// escalates to the principal's inbox only when warranted.
package amygdala

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/roasbeef/lethe/internal/actor"
	"github.com/roasbeef/lethe/internal/llm"
	"github.com/roasbeef/lethe/internal/workspace"
)

const (
	// HighArousalThreshold marks a seed tag as high arousal.
	HighArousalThreshold = 0.75

	// FlashbackLookback bounds the active-patterns ring.
	FlashbackLookback = 12

	// TagLogMaxChars is the tag log size that triggers compaction.
	TagLogMaxChars = 24000

	// TagLogKeepLines is how many tail lines a compaction retains.
	TagLogKeepLines = 140

	// StateFile is the compact baseline document the round actor owns.
	StateFile = "amygdala_state.md"

	// TagsFile is the append-only emotional tag log.
	TagsFile = "emotional_tags.md"

	// tagLogLabel heads the compaction header in TagsFile.
	tagLogLabel = "Emotional tags"

	// roundMaxTurns bounds one round's actor loop.
	roundMaxTurns = 6

	// roundToolIterations bounds tool use within a single LLM turn.
	roundToolIterations = 4

	// roundHistorySize bounds the round-history ring.
	roundHistorySize = 40

	// principalContextTruncChars truncates the principal context snapshot
	// embedded in the system prompt.
	principalContextTruncChars = 4000

	// statusTruncChars truncates results and alerts kept in status.
	statusTruncChars = 240
)

// roundGoals is the fixed goal text of the internal round actor.
const roundGoals = "Tag emotional salience, track arousal patterns, " +
	"detect flashbacks, and notify cortex only when escalation is " +
	"warranted."

// roundTools is the restricted tool set offered to the round actor: file
// access inside the workspace plus memory recall, no external effects.
var roundTools = []string{
	"read_file", "write_file", "edit_file", "list_directory",
	"grep_search", "conversation_search", "memory_read",
}

// Provider yields a text snapshot for the round. Failures are caught and a
// surrogate substituted, never propagated.
type Provider func(ctx context.Context) (string, error)

// Config wires an Amygdala.
type Config struct {
	// Registry spawns and tracks the round actors.
	Registry *actor.Registry

	// Factory creates the LLM client for each round actor.
	Factory actor.LLMFactory

	// Pool is the tool pool the restricted round tool set is drawn from.
	Pool llm.Registry

	// Workspace hosts the state and tag-log files.
	Workspace *workspace.Dir

	// PrincipalID is the cortex actor notifications are addressed to.
	PrincipalID string

	// RecentSignals snapshots recent user activity. Optional.
	RecentSignals Provider

	// PrincipalContext snapshots the principal's context. Optional.
	PrincipalContext Provider
}

// Amygdala runs heartbeat rounds. Safe for one round at a time; the
// scheduler serializes invocations.
type Amygdala struct {
	cfg Config

	mu       sync.Mutex
	status   Status
	rounds   ring[RoundRecord]
	patterns ring[string]
}

// New returns an idle amygdala.
func New(cfg Config) *Amygdala {
	return &Amygdala{
		cfg:      cfg,
		status:   Status{State: "idle"},
		rounds:   newRing[RoundRecord](roundHistorySize),
		patterns: newRing[string](FlashbackLookback),
	}
}

// RunRound executes one heartbeat round end to end. All failures are
// recorded in status; the round never panics the caller.
func (am *Amygdala) RunRound(ctx context.Context) {
	roundStart := time.Now().UTC()
	timestamp := roundStart.Format("2006-01-02 15:04 UTC")

	am.mu.Lock()
	am.status.State = "running"
	am.status.LastStartedAt = roundStart
	am.status.LastError = ""
	am.mu.Unlock()

	am.compactTagLog(ctx)

	previousState := strings.TrimSpace(
		am.cfg.Workspace.ReadOr(StateFile, ""),
	)
	if previousState == "" {
		previousState = "(none)"
	}
	recentSignals := am.recentSignals(ctx)
	seeds, seedTags := HeuristicSeedTags(recentSignals)

	userMessage, turns, result, roundErr := am.driveRound(
		ctx, timestamp, roundStart, recentSignals, seedTags,
		previousState,
	)

	completed := time.Now().UTC()
	if result == "" {
		result = "No result"
	}

	am.mu.Lock()
	am.status.RoundsTotal++
	am.status.LastCompletedAt = completed
	am.status.LastTurns = turns
	am.status.LastResult = truncate(result, statusTruncChars)
	if roundErr != "" {
		am.status.LastError = roundErr
	}
	if userMessage != "" {
		am.status.LastAlert = truncate(userMessage, statusTruncChars)
	}
	am.status.State = "idle"

	for _, seed := range seeds {
		if seed.HighArousal && len(seed.Tags) > 0 {
			am.patterns.push(seed.Tags[0])
		}
	}
	am.rounds.push(RoundRecord{
		StartedAt:       roundStart,
		CompletedAt:     completed,
		Turns:           turns,
		DurationSeconds: completed.Sub(roundStart).Seconds(),
		Alert:           userMessage != "",
		Error:           roundErr,
		Result:          truncate(result, statusTruncChars),
	})
	am.mu.Unlock()

	am.compactTagLog(ctx)

	log.InfoS(ctx, "Amygdala round complete",
		"turns", turns,
		"alert", userMessage != "",
		"duration", completed.Sub(roundStart))
}

// driveRound spawns the round actor and loops its LLM turns. It returns the
// extracted user notification (if any), the turns consumed, the actor's
// result, and an error string for status.
func (am *Amygdala) driveRound(ctx context.Context, timestamp string,
	roundStart time.Time, recentSignals, seedTags,
	previousState string) (string, int, string, string) {

	cfg := actor.Config{
		Name:     "amygdala",
		Group:    "main",
		Goals:    roundGoals,
		Tools:    roundTools,
		MaxTurns: roundMaxTurns,
	}

	a, err := am.cfg.Registry.Spawn(cfg, am.cfg.PrincipalID, false)
	if err != nil {
		log.ErrorS(ctx, "Amygdala spawn failed", err)
		return "", 0, "", err.Error()
	}
	client, err := am.cfg.Factory(ctx, a)
	if err != nil {
		log.ErrorS(ctx, "Amygdala LLM factory failed", err)
		a.Terminate(fmt.Sprintf("Error: %v", err))
		return "", 0, a.Result().UnwrapOr(""), err.Error()
	}
	client.SetSystemPrompt(am.systemPrompt(ctx))
	am.bindTools(ctx, a, client)

	am.cfg.Registry.CleanupTerminated()
	log.DebugS(ctx, "Amygdala round starting", "actor_id", a.ID)

	initial := fmt.Sprintf(
		roundMessageTemplate, timestamp, recentSignals, seedTags,
		previousState,
	)

	var (
		userMessage string
		roundErr    string
	)
	for turn := 0; turn < roundMaxTurns; turn++ {
		if a.Terminated() {
			break
		}
		a.SetTurns(turn + 1)

		incoming := a.DrainInbox()

		var turnMessage string
		switch {
		case turn == 0:
			turnMessage = initial

		case len(incoming) > 0:
			lines := make([]string, len(incoming))
			for i, m := range incoming {
				lines[i] = fmt.Sprintf("[From %s]: %s",
					m.Sender, m.Content)
			}
			turnMessage = strings.Join(lines, "\n")

		default:
			turnMessage = roundNudge
		}

		_, err := client.Chat(
			ctx, turnMessage,
			llm.WithMaxToolIterations(roundToolIterations),
		)
		if err != nil {
			log.ErrorS(ctx, "Amygdala LLM error", err)
			roundErr = err.Error()
			break
		}

		if notice := am.extractUserNotification(
			a, roundStart,
		); notice != "" {

			userMessage = notice
		}

		if a.Terminated() {
			break
		}
	}

	if !a.Terminated() {
		a.Terminate(fmt.Sprintf("Amygdala round complete (turn %d)",
			a.Turns()))
	}

	return userMessage, a.Turns(), a.Result().UnwrapOr(""), roundErr
}

// bindTools attaches the actor tools plus the permitted pool tools. Missing
// pool tools are skipped, never fatal.
func (am *Amygdala) bindTools(ctx context.Context, a *actor.Actor,
	client llm.Client) {

	for _, tool := range actor.BindTools(a, am.cfg.Registry, nil) {
		client.AddTool(tool)
	}
	for _, name := range a.Config.Tools {
		tool, ok := am.cfg.Pool[name]
		if !ok {
			log.WarnS(ctx, "Amygdala tool unavailable, skipping",
				nil, "tool", name)
			continue
		}
		client.AddTool(tool)
	}
}

// systemPrompt renders the round system prompt with the workspace path and
// the (truncated) principal context snapshot.
func (am *Amygdala) systemPrompt(ctx context.Context) string {
	principalContext := ""
	if am.cfg.PrincipalContext != nil {
		pc, err := am.cfg.PrincipalContext(ctx)
		if err != nil {
			log.WarnS(ctx, "Failed to get principal context", err)
		} else {
			principalContext = pc
		}
	}
	principalContext = truncate(
		principalContext, principalContextTruncChars,
	)
	if principalContext == "" {
		principalContext = "(none)"
	}

	return fmt.Sprintf(
		systemPromptTemplate, am.cfg.Workspace.Root(),
		principalContext,
	)
}

// recentSignals snapshots recent user activity, substituting surrogates for
// a missing or failing provider.
func (am *Amygdala) recentSignals(ctx context.Context) string {
	if am.cfg.RecentSignals == nil {
		return "(no signal provider)"
	}

	text, err := am.cfg.RecentSignals(ctx)
	if err != nil {
		return fmt.Sprintf("(failed to get recent signals: %v)", err)
	}
	if strings.TrimSpace(text) == "" {
		return "(no recent user signals)"
	}

	return strings.TrimSpace(text)
}

// extractUserNotification scans messages the round actor sent to the
// principal during this round for [USER_NOTIFY] or [AMYGDALA_ALERT]
// payloads. The latest candidate wins. [USER_NOTIFY] payloads are returned
// stripped of the prefix; alerts keep it.
func (am *Amygdala) extractUserNotification(a *actor.Actor,
	roundStart time.Time) string {

	var candidate string
	for _, m := range a.History() {
		if m.Recipient != am.cfg.PrincipalID ||
			m.Sender == am.cfg.PrincipalID {

			continue
		}
		if m.CreatedAt.Before(roundStart) {
			continue
		}

		text := strings.TrimSpace(m.Content)
		switch {
		case strings.HasPrefix(text, "[USER_NOTIFY]"):
			candidate = strings.TrimSpace(
				strings.TrimPrefix(text, "[USER_NOTIFY]"),
			)

		case strings.HasPrefix(text, "[AMYGDALA_ALERT]"):
			candidate = text
		}
	}

	return candidate
}

// compactTagLog bounds the tag log, accounting pruned lines in status.
func (am *Amygdala) compactTagLog(ctx context.Context) {
	pruned, err := am.cfg.Workspace.CompactLog(
		TagsFile, tagLogLabel, TagLogMaxChars, TagLogKeepLines,
	)
	if err != nil {
		log.WarnS(ctx, "Failed to compact tag log", err)
		return
	}
	if pruned > 0 {
		am.mu.Lock()
		am.status.TagsPrunedTotal += pruned
		am.mu.Unlock()
	}
}

// Status returns a snapshot of the amygdala's observable state.
func (am *Amygdala) Status() Status {
	am.mu.Lock()
	defer am.mu.Unlock()

	status := am.status
	status.RoundHistory = am.rounds.snapshot()
	status.ActivePatterns = am.patterns.snapshot()

	return status
}

// ContextView renders a bounded plain-text view of the amygdala's state for
// embedding in other prompts.
func (am *Amygdala) ContextView(maxChars int) string {
	status := am.Status()

	stateText := strings.TrimSpace(am.cfg.Workspace.ReadOr(
		StateFile, "(amygdala_state.md not found)",
	))
	tagsText := strings.TrimSpace(am.cfg.Workspace.ReadOr(
		TagsFile, "(emotional_tags.md not found)",
	))

	patterns := strings.Join(status.ActivePatterns, ", ")
	if patterns == "" {
		patterns = "(none)"
	}

	lines := []string{
		"# Amygdala Context",
		"",
		fmt.Sprintf("- state: %s", status.State),
		fmt.Sprintf("- rounds_total: %d", status.RoundsTotal),
		fmt.Sprintf("- last_turns: %d", status.LastTurns),
		fmt.Sprintf("- last_started_at: %s",
			formatTime(status.LastStartedAt)),
		fmt.Sprintf("- last_completed_at: %s",
			formatTime(status.LastCompletedAt)),
		fmt.Sprintf("- last_error: %s", orDash(status.LastError)),
		fmt.Sprintf("- tags_pruned_total: %d",
			status.TagsPrunedTotal),
		"",
		"## Active patterns",
		patterns,
		"",
		"## amygdala_state.md",
		truncate(stateText, maxChars/2),
		"",
		"## emotional_tags.md",
		truncate(tagsText, maxChars/2),
	}

	return strings.Join(lines, "\n")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	return t.Format(time.RFC3339)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}

	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n]
}
