// Package conversation implements per-chat interruptible-coalescing message
// processing: new inbound messages preempt the in-flight processing turn at
// its next checkpoint and are merged into one combined message, so no user
// input is ever lost or answered out of order.
package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// CoalesceSeparator joins pending message contents when more than one has
// accumulated. Downstream prompts depend on the literal text.
const CoalesceSeparator = "\n\n---\n[Additional message while processing:]\n"

// ProcessFunc handles one combined message for a chat. interrupted is a
// cheap side-effect-free predicate the callback should poll at its safe
// checkpoints (typically LLM iteration boundaries); when it reports true,
// newer input is pending and the callback may wind down early. Cancellation
// must be propagated as the context error.
type ProcessFunc func(ctx context.Context, chatID, userID, content string,
	metadata map[string]any, interrupted func() bool) error

// PendingMessage is one queued user message awaiting processing.
type PendingMessage struct {
	Content   string
	Metadata  map[string]any
	CreatedAt time.Time
}

// chatState is the per-chat record. All fields are guarded by the manager
// mutex; the interrupt signal has its own internal lock so the callback can
// poll it without touching the manager.
type chatState struct {
	chatID    string
	userID    string
	pending   []PendingMessage
	active    bool
	interrupt *Signal
	cancel    context.CancelFunc
}

// Manager owns the per-chat states and processing goroutines. The zero
// value is unusable; use NewManager.
type Manager struct {
	process ProcessFunc

	ctx  context.Context
	stop context.CancelFunc

	mu    sync.Mutex
	chats map[string]*chatState
	wg    sync.WaitGroup
}

// NewManager returns a manager that invokes process for every coalesced
// message batch.
func NewManager(process ProcessFunc) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		process: process,
		ctx:     ctx,
		stop:    cancel,
		chats:   make(map[string]*chatState),
	}
}

// Submit queues a message for the chat. If the chat is idle a processing
// goroutine is started; if it is mid-processing the interrupt signal is
// raised and the running processor picks the message up at its next drain.
func (m *Manager) Submit(chatID, userID, content string,
	metadata map[string]any) {

	m.mu.Lock()

	cs, ok := m.chats[chatID]
	if !ok {
		cs = &chatState{
			chatID:    chatID,
			userID:    userID,
			interrupt: NewSignal(),
		}
		m.chats[chatID] = cs
	}
	cs.userID = userID
	cs.pending = append(cs.pending, PendingMessage{
		Content:   content,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	})

	if cs.active {
		cs.interrupt.Set()
		m.mu.Unlock()

		log.DebugS(m.ctx, "Interrupting in-flight processing",
			"chat_id", chatID,
			"pending", len(cs.pending))

		return
	}

	cs.active = true
	ctx, cancel := context.WithCancel(m.ctx)
	cs.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go m.processLoop(ctx, cs)
}

// processLoop drains and handles pending batches until none remain or the
// chat is cancelled.
func (m *Manager) processLoop(ctx context.Context, cs *chatState) {
	defer m.wg.Done()

	for {
		m.mu.Lock()
		if len(cs.pending) == 0 || ctx.Err() != nil {
			// The idle transition must happen in the same critical
			// section as the empty check: a Submit that already
			// saw active==true relies on this loop draining its
			// message, so active may only drop once pending is
			// observed empty under the lock.
			cs.active = false
			cs.cancel = nil
			m.mu.Unlock()
			return
		}

		cs.interrupt.Clear()
		content, metadata := coalesce(cs.pending)
		cs.pending = nil
		userID := cs.userID
		m.mu.Unlock()

		err := m.process(
			ctx, cs.chatID, userID, content, metadata,
			cs.interrupt.IsSet,
		)
		switch {
		case err == nil:

		case errors.Is(err, context.Canceled) ||
			errors.Is(err, context.DeadlineExceeded):

			// Cancellation is fatal to this processing task.
			m.mu.Lock()
			cs.active = false
			cs.cancel = nil
			m.mu.Unlock()
			return

		default:
			// Partial progress must not discard pending work.
			log.ErrorS(ctx, "Processing callback failed", err,
				"chat_id", cs.chatID)
		}

		// Consume the edge so it is never observed still set after a
		// normal callback return. The loop condition re-reads pending.
		cs.interrupt.Clear()
	}
}

// coalesce merges pending messages into one combined content string and a
// FIFO-merged metadata map (later keys win).
func coalesce(pending []PendingMessage) (string, map[string]any) {
	contents := make([]string, len(pending))
	metadata := make(map[string]any)
	for i, p := range pending {
		contents[i] = p.Content
		for k, v := range p.Metadata {
			metadata[k] = v
		}
	}

	if len(contents) == 1 {
		return contents[0], metadata
	}

	return strings.Join(contents, CoalesceSeparator), metadata
}

// IsProcessing reports whether the chat has a live processing task.
func (m *Manager) IsProcessing(chatID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	cs, ok := m.chats[chatID]

	return ok && cs.active
}

// PendingCount returns how many messages are queued for the chat.
func (m *Manager) PendingCount(chatID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cs, ok := m.chats[chatID]
	if !ok {
		return 0
	}

	return len(cs.pending)
}

// Cancel aborts the chat's processing task and clears its pending queue. It
// returns whether anything was actually cancelled.
func (m *Manager) Cancel(chatID string) bool {
	m.mu.Lock()
	cs, ok := m.chats[chatID]
	if !ok {
		m.mu.Unlock()
		return false
	}

	cancelled := cs.active || len(cs.pending) > 0
	cs.pending = nil
	cancel := cs.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if cancelled {
		log.InfoS(m.ctx, "Cancelled chat processing",
			"chat_id", chatID)
	}

	return cancelled
}

// Stop cancels every chat's processing and waits for the goroutines to
// drain.
func (m *Manager) Stop() {
	m.stop()
	m.wg.Wait()
}
