package actor

import (
	"time"

	"github.com/google/uuid"
)

// Message is an immutable envelope exchanged between actors.
type Message struct {
	// ID is a short unique identifier for the message.
	ID string

	// Sender is the id of the authoring actor.
	Sender string

	// Recipient is the id of the target actor.
	Recipient string

	// Content is the message body.
	Content string

	// ReplyTo optionally references the message this one answers.
	ReplyTo string

	// CreatedAt is the construction time.
	CreatedAt time.Time
}

// NewMessage constructs a message with a fresh id and timestamp.
func NewMessage(sender, recipient, content, replyTo string) Message {
	return Message{
		ID:        shortID(),
		Sender:    sender,
		Recipient: recipient,
		Content:   content,
		ReplyTo:   replyTo,
		CreatedAt: time.Now(),
	}
}

// shortID returns an 8-hex-char identifier, unique within a process.
func shortID() string {
	return uuid.NewString()[:8]
}
