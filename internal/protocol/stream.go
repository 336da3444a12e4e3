package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// TopicStateUpdates is the pub/sub subject carrying out-of-band task updates.
const TopicStateUpdates = "state.updates"

var ErrInvalidStateUpdate = errors.New("invalid state update frame")

// StateUpdate is one decoded frame from the state.updates subscription.
// A frame carries either complete messages, loose parts forming a single
// agent turn, or neither (status-only frames signalling completion).
type StateUpdate struct {
	TaskID    string    `json:"taskId"`
	SessionID string    `json:"sessionId,omitempty"`
	TaskName  string    `json:"taskName,omitempty"`
	Messages  []Message `json:"messages,omitempty"`
	Parts     []Part    `json:"parts,omitempty"`
	Complete  bool      `json:"complete,omitempty"`
}

// ParseStateUpdate decodes and validates a raw subscription frame.
func ParseStateUpdate(raw []byte) (StateUpdate, error) {
	var upd StateUpdate
	if err := json.Unmarshal(raw, &upd); err != nil {
		return StateUpdate{}, fmt.Errorf("%w: %v", ErrInvalidStateUpdate, err)
	}
	if upd.TaskID == "" {
		return StateUpdate{}, fmt.Errorf("%w: missing taskId", ErrInvalidStateUpdate)
	}
	for i, m := range upd.Messages {
		if m.Role == "" {
			return StateUpdate{}, fmt.Errorf("%w: message %d missing role", ErrInvalidStateUpdate, i)
		}
	}
	return upd, nil
}
