package engine

import (
	"log"

	"github.com/lmoretti/taskdeck/internal/protocol"
)

// Buffers holds one ordered message sequence per task, created lazily on
// first reference. Not safe for concurrent use; the controller serializes
// all access.
type Buffers struct {
	byTask map[string][]Message
}

func NewBuffers() *Buffers {
	return &Buffers{byTask: make(map[string][]Message)}
}

// Ensure creates an empty buffer for the task if none exists yet.
func (b *Buffers) Ensure(taskID string) {
	if _, ok := b.byTask[taskID]; !ok {
		b.byTask[taskID] = []Message{}
	}
}

// Append adds a message at the tail of the task's buffer. Appends to a
// task without a buffer are dropped with a log line; registering a task
// and seeding its buffer is a combined reconciler operation, not a buffer
// concern.
func (b *Buffers) Append(taskID string, msg Message) bool {
	if _, ok := b.byTask[taskID]; !ok {
		log.Printf("buffer: dropping append for unknown task %s", taskID)
		return false
	}
	b.byTask[taskID] = append(b.byTask[taskID], cloneMessage(msg))
	return true
}

// MessagePatch describes a partial message update applied by ReplaceByID.
type MessagePatch struct {
	ID     string // new identity; empty keeps the old id
	Parts  []protocol.Part
	Status MessageStatus
}

// ReplaceByID locates a message by identity and merges the patch into it:
// parts are replaced wholesale only when the patch carries non-empty parts,
// and the status is updated when set. A missing id is a no-op, which
// absorbs duplicate and late events. Insertion order is preserved.
func (b *Buffers) ReplaceByID(taskID, oldID string, patch MessagePatch) bool {
	msgs, ok := b.byTask[taskID]
	if !ok {
		return false
	}
	for i := range msgs {
		if msgs[i].ID != oldID {
			continue
		}
		if patch.ID != "" {
			msgs[i].ID = patch.ID
		}
		if len(patch.Parts) > 0 {
			parts := make([]protocol.Part, len(patch.Parts))
			copy(parts, patch.Parts)
			msgs[i].Parts = parts
		}
		if patch.Status != "" {
			msgs[i].Status = patch.Status
		}
		return true
	}
	return false
}

// Contains reports whether the task's buffer holds a message with the id.
func (b *Buffers) Contains(taskID, msgID string) bool {
	for _, m := range b.byTask[taskID] {
		if m.ID == msgID {
			return true
		}
	}
	return false
}

// LoadHistory replaces the task's buffer wholesale with fetched history.
func (b *Buffers) LoadHistory(taskID string, msgs []Message) {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, cloneMessage(m))
	}
	b.byTask[taskID] = out
}

// Messages returns a copy of the task's buffer in insertion order.
func (b *Buffers) Messages(taskID string) []Message {
	msgs := b.byTask[taskID]
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, cloneMessage(m))
	}
	return out
}

// Len returns the number of messages buffered for the task.
func (b *Buffers) Len(taskID string) int {
	return len(b.byTask[taskID])
}
