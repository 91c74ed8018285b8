package actor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/roasbeef/lethe/internal/llm"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestSendToDeliversExactlyOnce(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()

	alice, err := reg.Spawn(Config{Name: "alice", Group: "g"}, "", false)
	require.NoError(t, err)
	bob, err := reg.Spawn(Config{Name: "bob", Group: "g"}, "", false)
	require.NoError(t, err)

	msg, err := alice.SendTo(bob.ID, "hello", "")
	require.NoError(t, err)

	countByID := func(msgs []Message) int {
		n := 0
		for _, m := range msgs {
			if m.ID == msg.ID {
				n++
			}
		}
		return n
	}

	require.Equal(t, 1, countByID(alice.History()))
	require.Equal(t, 1, countByID(bob.History()))
	require.Equal(t, 1, countByID(bob.DrainInbox()))
	require.Equal(t, 0, countByID(bob.DrainInbox()))
}

func TestSendToUnknownActor(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	a, err := reg.Spawn(Config{Name: "a"}, "", false)
	require.NoError(t, err)

	_, err = a.SendTo("doesnotexist", "hi", "")
	require.ErrorIs(t, err, ErrUnknownActor)
	require.Empty(t, a.History())
}

func TestSendToTerminatedActor(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	a, err := reg.Spawn(Config{Name: "a", Group: "g"}, "", false)
	require.NoError(t, err)
	dead, err := reg.Spawn(Config{Name: "dead", Group: "g"}, "", false)
	require.NoError(t, err)
	dead.Terminate("")

	_, err = a.SendTo(dead.ID, "hello?", "")
	require.ErrorIs(t, err, ErrActorTerminated)
	require.Empty(t, a.History())
}

func TestWaitForReply(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	a, err := reg.Spawn(Config{Name: "a", Group: "g"}, "", false)
	require.NoError(t, err)
	b, err := reg.Spawn(Config{Name: "b", Group: "g"}, "", false)
	require.NoError(t, err)

	// Timeout path.
	start := time.Now()
	reply := b.WaitForReply(context.Background(), 20*time.Millisecond)
	require.True(t, reply.IsNone())
	require.Less(t, time.Since(start), time.Second)

	// Delivery path, FIFO.
	_, err = a.SendTo(b.ID, "first", "")
	require.NoError(t, err)
	_, err = a.SendTo(b.ID, "second", "")
	require.NoError(t, err)

	got := b.WaitForReply(context.Background(), time.Second)
	require.Equal(t, "first", got.UnwrapOr(Message{}).Content)
	got = b.WaitForReply(context.Background(), time.Second)
	require.Equal(t, "second", got.UnwrapOr(Message{}).Content)
}

func TestWaitForReplyContextCancel(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	a, err := reg.Spawn(Config{Name: "a"}, "", false)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	reply := a.WaitForReply(ctx, time.Minute)
	require.True(t, reply.IsNone())
}

func TestTerminateIdempotent(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()

	parent, err := reg.Spawn(Config{Name: "p"}, "", true)
	require.NoError(t, err)
	child, err := reg.Spawn(Config{Name: "c"}, parent.ID, false)
	require.NoError(t, err)

	child.Terminate("first result")
	child.Terminate("second result")

	require.Equal(t, StateTerminated, child.State())
	require.Equal(t, "first result", child.Result().UnwrapOr(""))

	// Exactly one termination notice reaches the parent.
	require.Len(t, parent.DrainInbox(), 1)
}

func TestTerminateDefaultResult(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	a, err := reg.Spawn(Config{Name: "worker"}, "", false)
	require.NoError(t, err)

	a.Terminate("")
	require.Equal(t, "Actor worker terminated", a.Result().UnwrapOr(""))
}

func TestResultNoneWhileLive(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	a, err := reg.Spawn(Config{Name: "a"}, "", false)
	require.NoError(t, err)

	require.True(t, a.Result().IsNone())
}

func TestContextMessages(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()

	self, err := reg.Spawn(
		Config{Name: "self", Group: "g", MaxMessages: 3}, "", false,
	)
	require.NoError(t, err)
	peer, err := reg.Spawn(Config{Name: "peer", Group: "g"}, "", false)
	require.NoError(t, err)

	_, err = peer.SendTo(self.ID, "oldest", "")
	require.NoError(t, err)
	_, err = self.SendTo(peer.ID, "mine", "")
	require.NoError(t, err)
	_, err = peer.SendTo(self.ID, "from peer", "")
	require.NoError(t, err)
	_, err = peer.SendTo(self.ID, "latest", "")
	require.NoError(t, err)

	turns := self.ContextMessages()

	// Window keeps only the last three entries.
	require.Len(t, turns, 3)
	require.Equal(t, llm.RoleAssistant, turns[0].Role)
	require.Equal(t, "mine", turns[0].Content)
	require.Equal(t, llm.RoleUser, turns[1].Role)
	require.Equal(t, "[From peer]: from peer", turns[1].Content)
	require.Equal(t, "[From peer]: latest", turns[2].Content)
}

func TestBuildSystemPrompt(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()

	butler, err := reg.Spawn(Config{
		Name:  "butler",
		Group: "main",
		Goals: "serve the user",
	}, "", true)
	require.NoError(t, err)
	helper, err := reg.Spawn(Config{
		Name:  "helper",
		Group: "main",
		Goals: "assist",
	}, butler.ID, false)
	require.NoError(t, err)

	_, err = helper.SendTo(butler.ID, "status update", "")
	require.NoError(t, err)

	prompt := butler.BuildSystemPrompt()
	require.Contains(t, prompt, "principal")
	require.Contains(t, prompt, "<goals>\nserve the user\n</goals>")
	require.Contains(t, prompt, "helper (id="+helper.ID)
	require.Contains(t, prompt, "helper: status update")
	require.Contains(t, prompt, "spawn_subagent")

	sub := helper.BuildSystemPrompt()
	require.Contains(t, sub, "subagent")
	require.NotContains(t, sub, "spawn_subagent")
}

// TestDeliveryExactlyOnceRandomized sends random message sequences between
// random pairs and verifies each message lands once in the recipient inbox
// and once in each party's history.
func TestDeliveryExactlyOnceRandomized(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		reg := NewRegistry()

		n := rapid.IntRange(2, 5).Draw(t, "actors")
		actors := make([]*Actor, n)
		for i := range actors {
			a, err := reg.Spawn(Config{
				Name:  fmt.Sprintf("actor%d", i),
				Group: "g",
			}, "", false)
			require.NoError(t, err)
			actors[i] = a
		}

		type sent struct {
			msg  Message
			from *Actor
			to   *Actor
		}
		var deliveries []sent

		count := rapid.IntRange(1, 30).Draw(t, "messages")
		for i := 0; i < count; i++ {
			from := actors[rapid.IntRange(0, n-1).Draw(t, "from")]
			to := actors[rapid.IntRange(0, n-1).Draw(t, "to")]
			if from == to {
				continue
			}
			msg, err := from.SendTo(to.ID, "payload", "")
			require.NoError(t, err)
			deliveries = append(deliveries, sent{msg, from, to})
		}

		inboxes := make(map[string]map[string]int)
		for _, a := range actors {
			counts := make(map[string]int)
			for _, m := range a.DrainInbox() {
				counts[m.ID]++
			}
			inboxes[a.ID] = counts
		}

		histCount := func(a *Actor, id string) int {
			c := 0
			for _, m := range a.History() {
				if m.ID == id {
					c++
				}
			}
			return c
		}

		for _, d := range deliveries {
			require.Equal(t, 1, inboxes[d.to.ID][d.msg.ID])
			require.Equal(t, 1, histCount(d.from, d.msg.ID))
			require.Equal(t, 1, histCount(d.to, d.msg.ID))
		}
	})
}
