package engine

import (
	"time"

	"github.com/lmoretti/taskdeck/internal/protocol"
)

// MessageStatus tracks the lifecycle of a buffered message.
type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusStreaming MessageStatus = "streaming"
	StatusComplete  MessageStatus = "complete"
	StatusError     MessageStatus = "error"
)

// Task is one conversation thread tracked by the registry.
type Task struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Title      string    `json:"title"`
	LastUpdate time.Time `json:"last_update"`
	Unread     bool      `json:"unread"`
}

// Message is one entry in a task's conversation buffer. Its ID may start as
// a client-minted provisional value and be replaced exactly once by the
// identity resolver.
type Message struct {
	ID        string          `json:"id"`
	Role      protocol.Role   `json:"role"`
	Parts     []protocol.Part `json:"parts"`
	Status    MessageStatus   `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
}

// ChangeKind classifies controller change notifications for observers.
type ChangeKind string

const (
	ChangeRegistry ChangeKind = "registry"
	ChangeBuffer   ChangeKind = "buffer"
	ChangeActive   ChangeKind = "active"
)

// Change is a lightweight notification pushed to presentation-layer
// subscribers whenever observable state moves.
type Change struct {
	Kind   ChangeKind `json:"kind"`
	TaskID string     `json:"task_id,omitempty"`
	At     time.Time  `json:"at"`
}

func cloneMessage(m Message) Message {
	out := m
	if m.Parts != nil {
		out.Parts = make([]protocol.Part, len(m.Parts))
		copy(out.Parts, m.Parts)
	}
	return out
}
