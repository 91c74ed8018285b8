package amygdala

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/roasbeef/lethe/internal/actor"
	"github.com/roasbeef/lethe/internal/llm"
	"github.com/roasbeef/lethe/internal/tools"
	"github.com/roasbeef/lethe/internal/workspace"
	"github.com/stretchr/testify/require"
)

// testHarness bundles the registry, principal, workspace, and a factory
// whose mock behavior the test chooses per round.
type testHarness struct {
	registry  *actor.Registry
	principal *actor.Actor
	ws        *workspace.Dir
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	registry := actor.NewRegistry()
	principal, err := registry.Spawn(actor.Config{
		Name:  "butler",
		Group: "main",
		Goals: "serve the user",
	}, "", true)
	require.NoError(t, err)

	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)

	return &testHarness{
		registry:  registry,
		principal: principal,
		ws:        ws,
	}
}

func (h *testHarness) config(factory actor.LLMFactory) Config {
	return Config{
		Registry:    h.registry,
		Factory:     factory,
		Pool:        tools.WorkspaceTools(h.ws),
		Workspace:   h.ws,
		PrincipalID: h.principal.ID,
	}
}

// staticMockFactory returns the same scripted mock for every round actor.
func staticMockFactory(mock *llm.MockClient) actor.LLMFactory {
	return func(context.Context, *actor.Actor) (llm.Client, error) {
		return mock, nil
	}
}

// TestRunRoundEscalation drives a full round where the actor tags an angry
// signal, appends to the tag log, notifies the principal, and terminates.
func TestRunRoundEscalation(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)

	var mock *llm.MockClient
	mock = llm.NewMockClient()
	mock.ChatFunc = func(ctx context.Context, msg string) (string, error) {
		if !strings.HasPrefix(msg, "[Amygdala Round -") {
			return "ok", nil
		}

		_, err := mock.CallTool(ctx, "write_file", map[string]any{
			"file_path": TagsFile,
			"content": "- furious about recurring deploy " +
				"failure (arousal 0.85)\n",
		})
		if err != nil {
			return "", err
		}

		_, err = mock.CallTool(ctx, "send_message", map[string]any{
			"actor_id": h.principal.ID,
			"content":  "[USER_NOTIFY] deploy failure recurring",
		})
		if err != nil {
			return "", err
		}

		_, err = mock.CallTool(ctx, "terminate", map[string]any{
			"result": "tagged and escalated",
		})
		return "escalated", err
	}

	am := New(h.config(staticMockFactory(mock)))
	am.cfg.RecentSignals = func(context.Context) (string, error) {
		return "the deploy failed again and I am furious", nil
	}

	am.RunRound(context.Background())

	// The alert landed in the principal's inbox, followed by the child
	// termination notice.
	inbox := h.principal.DrainInbox()
	require.Len(t, inbox, 2)
	require.Equal(t, "[USER_NOTIFY] deploy failure recurring",
		inbox[0].Content)
	require.Contains(t, inbox[1].Content,
		"[TERMINATED] amygdala finished: tagged and escalated")

	// Status captured the round.
	status := am.Status()
	require.Equal(t, "idle", status.State)
	require.Equal(t, 1, status.RoundsTotal)
	require.Equal(t, "deploy failure recurring", status.LastAlert)
	require.Equal(t, "tagged and escalated", status.LastResult)
	require.Empty(t, status.LastError)
	require.Len(t, status.RoundHistory, 1)
	require.True(t, status.RoundHistory[0].Alert)

	// The high-arousal seed fed the pattern ring.
	require.Equal(t, []string{"urgency"}, status.ActivePatterns)

	// The tag log entry is on disk.
	tags, err := h.ws.Read(TagsFile)
	require.NoError(t, err)
	require.Contains(t, tags, "furious about recurring deploy failure")
}

// TestRunRoundInitialMessage checks the bespoke round message assembly:
// timestamp, signals, seed tags, and previous state.
func TestRunRoundInitialMessage(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	require.NoError(t, h.ws.Write(StateFile, "baseline: calm\n"))

	mock := llm.NewMockClient()
	mock.ChatFunc = func(ctx context.Context, _ string) (string, error) {
		_, err := mock.CallTool(ctx, "terminate",
			map[string]any{"result": "done"})
		return "done", err
	}

	am := New(h.config(staticMockFactory(mock)))
	am.cfg.RecentSignals = func(context.Context) (string, error) {
		return "everything is broken", nil
	}
	am.RunRound(context.Background())

	msgs := mock.Messages()
	require.Len(t, msgs, 1)
	require.Contains(t, msgs[0], "[Amygdala Round -")
	require.Contains(t, msgs[0], "UTC]")
	require.Contains(t, msgs[0], "everything is broken")
	require.Contains(t, msgs[0], `"urgency"`)
	require.Contains(t, msgs[0], "baseline: calm")

	// The system prompt carries the workspace path.
	require.Contains(t, mock.SystemPrompt(), h.ws.Root())
	require.Contains(t, mock.SystemPrompt(), "(none)")
}

func TestRunRoundNudgeAndMaxTurns(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)

	mock := llm.NewMockClient()
	mock.Response = "still observing"

	am := New(h.config(staticMockFactory(mock)))
	am.RunRound(context.Background())

	msgs := mock.Messages()
	require.Len(t, msgs, roundMaxTurns)
	for _, msg := range msgs[1:] {
		require.Equal(t, roundNudge, msg)
	}

	status := am.Status()
	require.Equal(t, roundMaxTurns, status.LastTurns)
	require.Equal(t,
		fmt.Sprintf("Amygdala round complete (turn %d)",
			roundMaxTurns),
		status.LastResult)
}

func TestRunRoundSurrogateSignals(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		provider Provider
		want     string
	}{
		{
			name:     "missing provider",
			provider: nil,
			want:     "(no signal provider)",
		},
		{
			name: "failing provider",
			provider: func(context.Context) (string, error) {
				return "", errors.New("bus down")
			},
			want: "(failed to get recent signals: bus down)",
		},
		{
			name: "empty snapshot",
			provider: func(context.Context) (string, error) {
				return "   ", nil
			},
			want: "(no recent user signals)",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := newTestHarness(t)
			mock := llm.NewMockClient()
			mock.ChatFunc = func(ctx context.Context,
				_ string) (string, error) {

				_, err := mock.CallTool(ctx, "terminate",
					map[string]any{"result": "done"})
				return "done", err
			}

			am := New(h.config(staticMockFactory(mock)))
			am.cfg.RecentSignals = tc.provider
			am.RunRound(context.Background())

			msgs := mock.Messages()
			require.Len(t, msgs, 1)
			require.Contains(t, msgs[0], tc.want)
		})
	}
}

func TestRunRoundLLMError(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)

	mock := llm.NewMockClient()
	mock.ChatFunc = func(context.Context, string) (string, error) {
		return "", errors.New("model unavailable")
	}

	am := New(h.config(staticMockFactory(mock)))
	am.RunRound(context.Background())

	status := am.Status()
	require.Equal(t, "model unavailable", status.LastError)
	require.Equal(t, 1, status.RoundsTotal)
	require.Equal(t, "idle", status.State)

	// The round actor was force-terminated.
	require.Equal(t, 1, h.registry.ActiveCount())
}

func TestRunRoundFactoryError(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	factory := func(context.Context, *actor.Actor) (llm.Client, error) {
		return nil, errors.New("no api key")
	}

	am := New(h.config(factory))
	am.RunRound(context.Background())

	status := am.Status()
	require.Equal(t, "no api key", status.LastError)
	require.Equal(t, 1, status.RoundsTotal)
	require.Len(t, status.RoundHistory, 1)
	require.Equal(t, "no api key", status.RoundHistory[0].Error)
	require.Equal(t, 1, h.registry.ActiveCount())
}

func TestRoundHistoryRingBounded(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)

	mock := llm.NewMockClient()
	mock.ChatFunc = func(ctx context.Context, _ string) (string, error) {
		_, err := mock.CallTool(ctx, "terminate",
			map[string]any{"result": "done"})
		return "done", err
	}

	am := New(h.config(staticMockFactory(mock)))
	am.cfg.RecentSignals = func(context.Context) (string, error) {
		// High arousal every round to exercise the pattern ring.
		return "urgent: everything is broken immediately", nil
	}

	for i := 0; i < roundHistorySize+5; i++ {
		am.RunRound(context.Background())
	}

	status := am.Status()
	require.Equal(t, roundHistorySize+5, status.RoundsTotal)
	require.Len(t, status.RoundHistory, roundHistorySize)
	require.Len(t, status.ActivePatterns, FlashbackLookback)
}

func TestRunRoundCompactsOversizedTagLog(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)

	var b strings.Builder
	for i := 0; b.Len() <= TagLogMaxChars; i++ {
		fmt.Fprintf(&b, "- tag entry %06d with some padding text\n", i)
	}
	require.NoError(t, h.ws.Write(TagsFile, b.String()))

	mock := llm.NewMockClient()
	mock.ChatFunc = func(ctx context.Context, _ string) (string, error) {
		_, err := mock.CallTool(ctx, "terminate",
			map[string]any{"result": "done"})
		return "done", err
	}

	am := New(h.config(staticMockFactory(mock)))
	am.RunRound(context.Background())

	status := am.Status()
	require.Positive(t, status.TagsPrunedTotal)

	tags, err := h.ws.Read(TagsFile)
	require.NoError(t, err)
	require.Contains(t, tags, "# Emotional tags (compacted at ")
	require.Contains(t, tags, "- pruned_lines: ")
}

func TestContextView(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	require.NoError(t, h.ws.Write(StateFile, "calm baseline"))
	require.NoError(t, h.ws.Write(TagsFile, "- one tag"))

	am := New(h.config(nil))
	view := am.ContextView(5000)

	require.Contains(t, view, "# Amygdala Context")
	require.Contains(t, view, "- state: idle")
	require.Contains(t, view, "- rounds_total: 0")
	require.Contains(t, view, "calm baseline")
	require.Contains(t, view, "- one tag")
	require.Contains(t, view, "(none)")
}

func TestSchedulerValidate(t *testing.T) {
	t.Parallel()

	s := &Scheduler{Expr: "not a cron"}
	require.Error(t, s.Validate())

	s = &Scheduler{Expr: "*/15 * * * *"}
	require.NoError(t, s.Validate())

	s = &Scheduler{}
	require.NoError(t, s.Validate())
}

// TestSchedulerRunsAndStops ticks a fast interval and cancels: at least one
// round must have run, and Run returns the context error.
func TestSchedulerRunsAndStops(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	mock := llm.NewMockClient()
	mock.ChatFunc = func(ctx context.Context, _ string) (string, error) {
		_, err := mock.CallTool(ctx, "terminate",
			map[string]any{"result": "done"})
		return "done", err
	}

	am := New(h.config(staticMockFactory(mock)))
	s := &Scheduler{Amygdala: am, Interval: 5 * time.Millisecond}

	ctx, cancel := context.WithTimeout(
		context.Background(), 100*time.Millisecond,
	)
	defer cancel()

	err := s.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Positive(t, am.Status().RoundsTotal)
}
