package protocol

import (
	"errors"
	"testing"
)

func TestParseStateUpdateParts(t *testing.T) {
	raw := []byte(`{"taskId":"t1","sessionId":"s1","parts":[{"type":"text","text":"hello"}],"complete":true}`)
	upd, err := ParseStateUpdate(raw)
	if err != nil {
		t.Fatalf("ParseStateUpdate() error = %v", err)
	}
	if upd.TaskID != "t1" || upd.SessionID != "s1" {
		t.Fatalf("unexpected update: %+v", upd)
	}
	if !upd.Complete {
		t.Fatalf("Complete = false, want true")
	}
	if len(upd.Parts) != 1 || upd.Parts[0].Text != "hello" {
		t.Fatalf("unexpected parts: %+v", upd.Parts)
	}
}

func TestParseStateUpdateMessages(t *testing.T) {
	raw := []byte(`{"taskId":"t1","taskName":"Trip plan","messages":[{"role":"user","parts":[{"type":"text","text":"hi"}]},{"role":"agent","parts":[{"type":"text","text":"hello"}]}]}`)
	upd, err := ParseStateUpdate(raw)
	if err != nil {
		t.Fatalf("ParseStateUpdate() error = %v", err)
	}
	if upd.TaskName != "Trip plan" {
		t.Fatalf("TaskName = %q, want %q", upd.TaskName, "Trip plan")
	}
	if len(upd.Messages) != 2 || upd.Messages[1].Role != RoleAgent {
		t.Fatalf("unexpected messages: %+v", upd.Messages)
	}
}

func TestParseStateUpdateStatusOnly(t *testing.T) {
	upd, err := ParseStateUpdate([]byte(`{"taskId":"t9","complete":true}`))
	if err != nil {
		t.Fatalf("ParseStateUpdate() error = %v", err)
	}
	if len(upd.Messages) != 0 || len(upd.Parts) != 0 {
		t.Fatalf("status-only frame carried content: %+v", upd)
	}
}

func TestParseStateUpdateRejectsMissingTaskID(t *testing.T) {
	_, err := ParseStateUpdate([]byte(`{"parts":[{"type":"text","text":"x"}]}`))
	if !errors.Is(err, ErrInvalidStateUpdate) {
		t.Fatalf("error = %v, want ErrInvalidStateUpdate", err)
	}
}

func TestParseStateUpdateRejectsRolelessMessage(t *testing.T) {
	_, err := ParseStateUpdate([]byte(`{"taskId":"t1","messages":[{"parts":[{"type":"text","text":"x"}]}]}`))
	if !errors.Is(err, ErrInvalidStateUpdate) {
		t.Fatalf("error = %v, want ErrInvalidStateUpdate", err)
	}
}

func TestTaskNameFromMetadata(t *testing.T) {
	task := Task{ID: "t1", Metadata: map[string]any{"taskName": "Groceries"}}
	if got := task.Name(); got != "Groceries" {
		t.Fatalf("Name() = %q, want %q", got, "Groceries")
	}
	if got := (Task{ID: "t2"}).Name(); got != "" {
		t.Fatalf("Name() = %q, want empty", got)
	}
}

func TestJoinTextSkipsNonText(t *testing.T) {
	parts := []Part{
		TextPart("a"),
		FilePart("doc.pdf", "application/pdf", "AQID"),
		TextPart("b"),
	}
	if got := JoinText(parts); got != "ab" {
		t.Fatalf("JoinText() = %q, want %q", got, "ab")
	}
}
