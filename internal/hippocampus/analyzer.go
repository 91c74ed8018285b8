// Package hippocampus is the memory analyzer: a lightweight-model sidecar
// that decides before a principal turn whether recalled memories would help,
// and after each response whether it should be shown to the user and whether
// the principal should keep working.
package hippocampus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/lethe/internal/llm"
)

const (
	// recallContextMessages is how many recent messages the recall
	// prompt shows for awareness.
	recallContextMessages = 5

	// recallContextTruncChars truncates each context message.
	recallContextTruncChars = 200

	// compressThresholdChars is the combined recall size above which the
	// results are summarized before augmentation.
	compressThresholdChars = 3000

	// defaultSearchResults bounds one memory search.
	defaultSearchResults = 5
)

// RecallDecision is the recall-call output contract.
type RecallDecision struct {
	ShouldRecall bool   `json:"should_recall"`
	SearchQuery  string `json:"search_query"`
	Reason       string `json:"reason"`
}

// Judgment is the judge-call output contract.
type Judgment struct {
	SendToUser   bool   `json:"send_to_user"`
	ContinueTask bool   `json:"continue_task"`
	Reason       string `json:"reason"`
}

// defaultJudgment is the neutral fallback: deliver the response, stop
// iterating.
func defaultJudgment() Judgment {
	return Judgment{SendToUser: true, ContinueTask: false,
		Reason: "default"}
}

// SearchFunc queries the memory backends and returns a formatted block of
// results, empty when nothing matched.
type SearchFunc func(ctx context.Context, query string,
	limit int) (string, error)

// Analyzer wraps the lightweight model behind both decisions. A nil Analyzer
// is valid and behaves as disabled.
type Analyzer struct {
	client llm.Client
	search SearchFunc
}

// NewAnalyzer builds an analyzer over the given client and memory search.
// The client's system prompt is replaced with the hippocampus persona.
func NewAnalyzer(client llm.Client, search SearchFunc) *Analyzer {
	client.SetSystemPrompt(Persona)

	return &Analyzer{client: client, search: search}
}

// AnalyzeForRecall decides whether a memory lookup would benefit the
// response to newMessage. recent is shown (truncated) for awareness. Any
// failure yields None and the caller proceeds unaugmented.
func (a *Analyzer) AnalyzeForRecall(ctx context.Context, newMessage string,
	recent []llm.ChatTurn) fn.Option[RecallDecision] {

	if a == nil {
		return fn.None[RecallDecision]()
	}

	prompt := fmt.Sprintf(
		recallPromptTemplate, formatRecentContext(recent), newMessage,
	)

	resp, err := a.client.Chat(ctx, prompt)
	if err != nil {
		log.WarnS(ctx, "Recall analysis failed", err)
		return fn.None[RecallDecision]()
	}

	var decision RecallDecision
	if !decodeJSON(resp, &decision) {
		log.WarnS(ctx, "Recall analysis returned invalid JSON", nil,
			"response", truncate(resp, 200))
		return fn.None[RecallDecision]()
	}

	log.InfoS(ctx, "Recall analysis",
		"should_recall", decision.ShouldRecall,
		"query", decision.SearchQuery,
		"reason", decision.Reason)

	return fn.Some(decision)
}

// SearchMemories runs the memory search for query and, when the combined
// results exceed the compression threshold, summarizes them through the same
// model. Failures degrade to whatever text is already in hand.
func (a *Analyzer) SearchMemories(ctx context.Context, query string) string {
	if a == nil || a.search == nil {
		return ""
	}

	memories, err := a.search(ctx, query, defaultSearchResults)
	if err != nil {
		log.WarnS(ctx, "Memory search failed", err, "query", query)
		return ""
	}
	if len(memories) <= compressThresholdChars {
		return memories
	}

	prompt := fmt.Sprintf(compressPromptTemplate, query, memories)
	summary, err := a.client.Chat(ctx, prompt)
	if err != nil || strings.TrimSpace(summary) == "" {
		log.WarnS(ctx, "Memory compression failed, using original",
			err)
		return memories
	}

	return "[Compressed summary] " + summary
}

// AugmentMessage is the pre-turn entry point: analyze, search, and append
// any recalled block after the user message. On a negative decision or
// empty results the message passes through unchanged.
func (a *Analyzer) AugmentMessage(ctx context.Context, newMessage string,
	recent []llm.ChatTurn) string {

	analysis := a.AnalyzeForRecall(ctx, newMessage, recent)
	if analysis.IsNone() {
		return newMessage
	}

	decision := analysis.UnwrapOr(RecallDecision{})
	if !decision.ShouldRecall || decision.SearchQuery == "" {
		return newMessage
	}

	memories := a.SearchMemories(ctx, decision.SearchQuery)
	if memories == "" {
		return newMessage
	}

	reason := decision.Reason
	if reason == "" {
		reason = "potentially relevant context"
	}

	log.InfoS(ctx, "Augmented message with memory recall",
		"chars", len(memories),
		"reason", reason)

	return fmt.Sprintf("%s\n\n---\n[Memory recall: %s]\n%s\n[End of recall]",
		newMessage, reason, memories)
}

// JudgeResponse decides whether agentResponse should be sent to the user and
// whether the principal should continue. iteration is 0-based. toolsActive
// tells the judge the principal is mid tool execution, which is the one case
// where suppressing the response may still continue the task. The stated
// rules bind regardless of what the model answers.
func (a *Analyzer) JudgeResponse(ctx context.Context, originalRequest,
	agentResponse string, iteration int, isContinuation,
	toolsActive bool) Judgment {

	if a == nil {
		return defaultJudgment()
	}

	// An empty response needs no model: early iterations keep going,
	// late ones stop.
	if strings.TrimSpace(agentResponse) == "" {
		if iteration <= 2 {
			return Judgment{
				SendToUser:   false,
				ContinueTask: true,
				Reason:       "no response early iteration",
			}
		}

		return Judgment{
			SendToUser:   false,
			ContinueTask: false,
			Reason:       "no response late iteration",
		}
	}

	prompt := fmt.Sprintf(
		judgePromptTemplate, originalRequest, agentResponse,
		iteration, isContinuation,
	)

	resp, err := a.client.Chat(ctx, prompt)
	if err != nil {
		log.WarnS(ctx, "Response judgment failed", err)
		return defaultJudgment()
	}

	judgment := defaultJudgment()
	if !decodeJSON(resp, &judgment) {
		log.WarnS(ctx, "Response judgment returned invalid JSON", nil,
			"response", truncate(resp, 200))
		return defaultJudgment()
	}

	// Suppressed responses do not continue unless tools are mid-flight.
	if !judgment.SendToUser && !toolsActive {
		judgment.ContinueTask = false
	}

	log.InfoS(ctx, "Response judgment",
		"send_to_user", judgment.SendToUser,
		"continue_task", judgment.ContinueTask,
		"reason", judgment.Reason)

	return judgment
}

// formatRecentContext renders the last few turns as "role: content" lines.
func formatRecentContext(recent []llm.ChatTurn) string {
	if len(recent) > recallContextMessages {
		recent = recent[len(recent)-recallContextMessages:]
	}

	var lines []string
	for _, turn := range recent {
		lines = append(lines, fmt.Sprintf("%s: %s", turn.Role,
			truncate(turn.Content, recallContextTruncChars)))
	}
	if len(lines) == 0 {
		return "(new conversation)"
	}

	return strings.Join(lines, "\n")
}

// decodeJSON parses model output into out: direct parse first, then the
// first balanced brace substring. Reports whether either attempt succeeded.
func decodeJSON(text string, out any) bool {
	trimmed := strings.TrimSpace(text)
	if json.Unmarshal([]byte(trimmed), out) == nil {
		return true
	}

	candidate, ok := extractJSON(trimmed)
	if !ok {
		return false
	}

	return json.Unmarshal([]byte(candidate), out) == nil
}

// extractJSON returns the first balanced {...} substring, tracking strings
// so braces inside quoted values do not skew the depth count.
func extractJSON(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false

		case c == '\\' && inString:
			escaped = true

		case c == '"':
			inString = !inString

		case inString:

		case c == '{':
			depth++

		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}

	return "", false
}

// truncate shortens s to at most n bytes with an ellipsis marker.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n] + "..."
}
