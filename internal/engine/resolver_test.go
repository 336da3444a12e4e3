package engine

import (
	"testing"

	"github.com/lmoretti/taskdeck/internal/protocol"
)

func TestProvisionalID(t *testing.T) {
	id := ProvisionalID("t1")
	if id != "temp-t1" {
		t.Fatalf("ProvisionalID() = %q, want %q", id, "temp-t1")
	}
	if !IsProvisional(id) {
		t.Fatalf("IsProvisional(%q) = false, want true", id)
	}
	if IsProvisional("abc-123") {
		t.Fatalf("IsProvisional(final id) = true, want false")
	}
}

func TestResolvePromotesExactlyOnce(t *testing.T) {
	b := NewBuffers()
	b.Ensure("t1")
	b.Append("t1", Message{
		ID:     ProvisionalID("t1"),
		Role:   protocol.RoleUser,
		Parts:  []protocol.Part{protocol.TextPart("hello")},
		Status: StatusPending,
	})

	r := NewResolver()
	r.Begin("t1")

	final, promoted := r.Resolve(b, "t1")
	if !promoted {
		t.Fatalf("Resolve() promoted = false, want true")
	}
	if IsProvisional(final) || final == "" {
		t.Fatalf("final id = %q, want minted stable id", final)
	}
	msgs := b.Messages("t1")
	if msgs[0].ID != final || msgs[0].Status != StatusComplete {
		t.Fatalf("message after resolve = %+v", msgs[0])
	}

	// Second completion for the same exchange is a no-op.
	if _, promoted := r.Resolve(b, "t1"); promoted {
		t.Fatalf("second Resolve() promoted = true, want false")
	}
	if b.Len("t1") != 1 {
		t.Fatalf("buffer len = %d, want 1", b.Len("t1"))
	}
}

func TestResolveWithoutPendingMessageIsNoOp(t *testing.T) {
	b := NewBuffers()
	b.Ensure("t1")

	r := NewResolver()
	if _, promoted := r.Resolve(b, "t1"); promoted {
		t.Fatalf("Resolve() with no pending message promoted = true")
	}
}

func TestBeginOpensFreshExchange(t *testing.T) {
	b := NewBuffers()
	b.Ensure("t1")
	r := NewResolver()

	b.Append("t1", Message{ID: ProvisionalID("t1"), Role: protocol.RoleUser, Status: StatusPending})
	r.Begin("t1")
	if _, promoted := r.Resolve(b, "t1"); !promoted {
		t.Fatalf("first exchange did not promote")
	}

	// A new submission on the same task mints the same provisional id and
	// must be resolvable again.
	b.Append("t1", Message{ID: ProvisionalID("t1"), Role: protocol.RoleUser, Status: StatusPending})
	r.Begin("t1")
	if _, promoted := r.Resolve(b, "t1"); !promoted {
		t.Fatalf("second exchange did not promote after Begin")
	}
}
