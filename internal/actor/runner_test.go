package actor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/roasbeef/lethe/internal/llm"
	"github.com/stretchr/testify/require"
)

// staticFactory returns the same scripted client for every actor.
func staticFactory(client llm.Client) LLMFactory {
	return func(context.Context, *Actor) (llm.Client, error) {
		return client, nil
	}
}

func TestRunnerMaxTurnsForceTerminate(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	a, err := reg.Spawn(Config{
		Name:     "stuck",
		Goals:    "never finishes",
		MaxTurns: 3,
	}, "", false)
	require.NoError(t, err)

	mock := llm.NewMockClient()
	mock.Response = "Still working..."

	runner := &Runner{
		Registry: reg,
		Factory:  staticFactory(mock),
		IdleWait: -1,
	}

	result := runner.Run(context.Background(), a)
	require.True(t, strings.HasPrefix(result, "Max turns reached."))
	require.Contains(t, result, "Still working...")
	require.Equal(t, StateTerminated, a.State())
	require.Equal(t, 3, a.Turns())
}

func TestRunnerTurnsNeverExceedBudget(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	a, err := reg.Spawn(Config{Name: "n", MaxTurns: 5}, "", false)
	require.NoError(t, err)

	mock := llm.NewMockClient()
	mock.Response = "working"

	runner := &Runner{Registry: reg, Factory: staticFactory(mock), IdleWait: -1}
	runner.Run(context.Background(), a)

	require.LessOrEqual(t, a.Turns(), a.Config.MaxTurns)
}

// TestRunnerDelegateAndAwait is the delegation round trip: the principal
// spawns a researcher, the researcher reports back and terminates, and the
// principal's inbox ends up with both the report and the termination notice.
func TestRunnerDelegateAndAwait(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()

	butler, err := reg.Spawn(Config{
		Name:  "butler",
		Group: "main",
		Goals: "coordinate",
	}, "", true)
	require.NoError(t, err)

	var runner *Runner
	factory := func(_ context.Context, a *Actor) (llm.Client, error) {
		mock := llm.NewMockClient()
		mock.ChatFunc = func(ctx context.Context,
			_ string) (string, error) {

			if a.Config.Name != "researcher" {
				return "ok", nil
			}

			out, err := mock.CallTool(ctx, "send_message",
				map[string]any{
					"actor_id": butler.ID,
					"content":  "Found 3: A,B,C",
				})
			require.NoError(t, err)
			require.Contains(t, out, "Message sent")

			_, err = mock.CallTool(ctx, "terminate",
				map[string]any{"result": "done"})
			require.NoError(t, err)

			return "reported and finished", nil
		}
		return mock, nil
	}

	runner = &Runner{Registry: reg, Factory: factory, IdleWait: -1}

	_, err = runner.Spawn(context.Background(), Config{
		Name:     "researcher",
		Group:    "main",
		Goals:    "Find 3 papers",
		MaxTurns: 3,
	}, butler)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return reg.ActiveCount() == 1
	}, 200*time.Millisecond, 5*time.Millisecond)

	batch := butler.DrainInbox()
	require.Len(t, batch, 2)
	require.Equal(t, "Found 3: A,B,C", batch[0].Content)
	require.Equal(t, "[TERMINATED] researcher finished: done",
		batch[1].Content)
}

func TestRunnerLLMErrorTerminates(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	a, err := reg.Spawn(Config{Name: "doomed", MaxTurns: 5}, "", false)
	require.NoError(t, err)

	mock := llm.NewMockClient()
	mock.ChatFunc = func(context.Context, string) (string, error) {
		return "", errors.New("model unavailable")
	}

	runner := &Runner{Registry: reg, Factory: staticFactory(mock), IdleWait: -1}
	result := runner.Run(context.Background(), a)

	require.Equal(t, "Error: model unavailable", result)
	require.Equal(t, StateTerminated, a.State())
	require.Equal(t, 1, a.Turns())
}

func TestRunnerFactoryErrorTerminates(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	a, err := reg.Spawn(Config{Name: "n"}, "", false)
	require.NoError(t, err)

	runner := &Runner{
		Registry: reg,
		Factory: func(context.Context, *Actor) (llm.Client, error) {
			return nil, errors.New("no api key")
		},
	}

	result := runner.Run(context.Background(), a)
	require.Equal(t, "Error: no api key", result)
	require.True(t, a.Terminated())
}

func TestRunnerAckSkipsIdleWait(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	a, err := reg.Spawn(Config{Name: "acker", MaxTurns: 4}, "", false)
	require.NoError(t, err)

	mock := llm.NewMockClient()
	mock.Response = "  OK  "

	// A long idle wait would make this test take 12s if acks did not
	// skip it.
	runner := &Runner{
		Registry: reg,
		Factory:  staticFactory(mock),
		IdleWait: 3 * time.Second,
	}

	start := time.Now()
	runner.Run(context.Background(), a)
	require.Less(t, time.Since(start), time.Second)
}

// TestRunnerTurnInputs verifies the kickoff/batch/nudge turn-input selection
// and that a message received during the idle wait is carried into the next
// batch rather than dropped.
func TestRunnerTurnInputs(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()

	helper, err := reg.Spawn(Config{Name: "helper", Group: "g"}, "", false)
	require.NoError(t, err)
	a, err := reg.Spawn(Config{
		Name:     "listener",
		Group:    "g",
		Goals:    "listen",
		MaxTurns: 3,
	}, "", false)
	require.NoError(t, err)

	var (
		mu     sync.Mutex
		inputs []string
	)
	mock := llm.NewMockClient()
	mock.ChatFunc = func(_ context.Context, msg string) (string, error) {
		mu.Lock()
		inputs = append(inputs, msg)
		first := len(inputs) == 1
		mu.Unlock()

		if first {
			// Arrives while the runner lingers on the inbox after
			// this turn.
			go func() {
				time.Sleep(20 * time.Millisecond)
				_, err := helper.SendTo(a.ID, "ping", "")
				require.NoError(t, err)
			}()
		}
		return "working", nil
	}

	runner := &Runner{
		Registry: reg,
		Factory:  staticFactory(mock),
		IdleWait: 200 * time.Millisecond,
	}
	runner.Run(context.Background(), a)

	mu.Lock()
	defer mu.Unlock()

	require.Len(t, inputs, 3)
	require.Contains(t, inputs[0], "You are actor 'listener'")
	require.Contains(t, inputs[0], "listen")
	require.Equal(t, "[Message from helper]: ping", inputs[1])
	require.Equal(t, nudgeMessage, inputs[2])
}

func TestRunnerSkipsUnknownPoolTools(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	a, err := reg.Spawn(Config{
		Name:     "tooluser",
		Tools:    []string{"read_file", "no_such_tool", "spawn"},
		MaxTurns: 1,
	}, "", false)
	require.NoError(t, err)

	mock := llm.NewMockClient()
	mock.ChatFunc = func(ctx context.Context, _ string) (string, error) {
		_, err := mock.CallTool(ctx, "terminate", map[string]any{
			"result": "checked",
		})
		require.NoError(t, err)
		return "done", nil
	}

	pool := llm.NewRegistry(llm.Tool{
		Name: "read_file",
		Run: func(context.Context, map[string]any) (string, error) {
			return "", nil
		},
	})

	runner := &Runner{
		Registry: reg,
		Factory:  staticFactory(mock),
		Pool:     pool,
		IdleWait: -1,
	}
	runner.Run(context.Background(), a)

	// Known pool tool and the spawn grant are bound, the unknown name is
	// skipped without failing the run.
	_, ok := mock.Tool("read_file")
	require.True(t, ok)
	_, ok = mock.Tool("no_such_tool")
	require.False(t, ok)
	_, ok = mock.Tool("spawn_subagent")
	require.True(t, ok)
	require.Equal(t, "checked", a.Result().UnwrapOr(""))
}

func TestIsAck(t *testing.T) {
	t.Parallel()

	require.True(t, isAck("ok"))
	require.True(t, isAck(" Done \n"))
	require.True(t, isAck("UNDERSTOOD"))
	require.False(t, isAck("ok, proceeding with the plan"))
	require.False(t, isAck(""))
}
