package engine

import (
	"testing"
	"time"

	"github.com/lmoretti/taskdeck/internal/protocol"
)

func textMessage(id string, role protocol.Role, text string) Message {
	return Message{
		ID:        id,
		Role:      role,
		Parts:     []protocol.Part{protocol.TextPart(text)},
		Status:    StatusComplete,
		Timestamp: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestBuffersAppendDropsUnknownTask(t *testing.T) {
	b := NewBuffers()
	if b.Append("ghost", textMessage("m1", protocol.RoleUser, "hi")) {
		t.Fatalf("Append() to unknown task = true, want false")
	}
	if b.Len("ghost") != 0 {
		t.Fatalf("Len(ghost) = %d, want 0", b.Len("ghost"))
	}
}

func TestBuffersAppendKeepsOrder(t *testing.T) {
	b := NewBuffers()
	b.Ensure("t1")
	b.Append("t1", textMessage("m1", protocol.RoleUser, "one"))
	b.Append("t1", textMessage("m2", protocol.RoleAgent, "two"))

	msgs := b.Messages("t1")
	if len(msgs) != 2 || msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Fatalf("unexpected order: %+v", msgs)
	}
}

func TestBuffersReplaceByIDMergesPatch(t *testing.T) {
	b := NewBuffers()
	b.Ensure("t1")
	b.Append("t1", textMessage("m1", protocol.RoleUser, "draft"))

	ok := b.ReplaceByID("t1", "m1", MessagePatch{
		ID:     "final-1",
		Parts:  []protocol.Part{protocol.TextPart("final text")},
		Status: StatusComplete,
	})
	if !ok {
		t.Fatalf("ReplaceByID() = false, want true")
	}
	msgs := b.Messages("t1")
	if msgs[0].ID != "final-1" {
		t.Fatalf("ID = %q, want %q", msgs[0].ID, "final-1")
	}
	if got := protocol.JoinText(msgs[0].Parts); got != "final text" {
		t.Fatalf("text = %q, want %q", got, "final text")
	}
}

func TestBuffersReplaceByIDRetainsPartsOnEmptyPatch(t *testing.T) {
	b := NewBuffers()
	b.Ensure("t1")
	b.Append("t1", textMessage("m1", protocol.RoleUser, "keep"))

	b.ReplaceByID("t1", "m1", MessagePatch{Status: StatusError})
	msgs := b.Messages("t1")
	if got := protocol.JoinText(msgs[0].Parts); got != "keep" {
		t.Fatalf("text = %q, want %q", got, "keep")
	}
	if msgs[0].Status != StatusError {
		t.Fatalf("Status = %q, want %q", msgs[0].Status, StatusError)
	}
}

func TestBuffersReplaceByIDMissingIsNoOp(t *testing.T) {
	b := NewBuffers()
	b.Ensure("t1")
	b.Append("t1", textMessage("m1", protocol.RoleUser, "hi"))

	if b.ReplaceByID("t1", "nope", MessagePatch{Status: StatusComplete}) {
		t.Fatalf("ReplaceByID(missing) = true, want false")
	}
	if b.Len("t1") != 1 {
		t.Fatalf("Len = %d, want 1", b.Len("t1"))
	}
}

func TestBuffersLoadHistoryReplacesWholesale(t *testing.T) {
	b := NewBuffers()
	b.Ensure("t1")
	b.Append("t1", textMessage("stray", protocol.RoleUser, "optimistic"))

	b.LoadHistory("t1", []Message{
		textMessage("h1", protocol.RoleUser, "one"),
		textMessage("h2", protocol.RoleAgent, "two"),
		textMessage("h3", protocol.RoleUser, "three"),
	})

	msgs := b.Messages("t1")
	if len(msgs) != 3 {
		t.Fatalf("Len = %d, want 3", len(msgs))
	}
	for _, m := range msgs {
		if m.ID == "stray" {
			t.Fatalf("stray optimistic message survived LoadHistory")
		}
	}
}

func TestBuffersMessagesReturnsCopies(t *testing.T) {
	b := NewBuffers()
	b.Ensure("t1")
	b.Append("t1", textMessage("m1", protocol.RoleUser, "orig"))

	snapshot := b.Messages("t1")
	snapshot[0].Parts[0].Text = "mutated"

	if got := protocol.JoinText(b.Messages("t1")[0].Parts); got != "orig" {
		t.Fatalf("buffer mutated through snapshot: %q", got)
	}
}
