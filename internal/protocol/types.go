package protocol

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system"
)

// PartType identifies message part variants.
type PartType string

const (
	PartTypeText PartType = "text"
	PartTypeFile PartType = "file"
	PartTypeData PartType = "data"
)

// FileContent carries an attachment either inline (base64 bytes) or by URI.
type FileContent struct {
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Bytes    string `json:"bytes,omitempty"`
	URI      string `json:"uri,omitempty"`
}

// Part is one element of a message body.
type Part struct {
	Type PartType       `json:"type"`
	Text string         `json:"text,omitempty"`
	File *FileContent   `json:"file,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

// Message is a single conversational turn on the wire.
type Message struct {
	Role     Role           `json:"role"`
	Parts    []Part         `json:"parts"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// TaskState mirrors the backend task lifecycle.
type TaskState string

const (
	TaskStateSubmitted TaskState = "submitted"
	TaskStateWorking   TaskState = "working"
	TaskStateCompleted TaskState = "completed"
	TaskStateFailed    TaskState = "failed"
	TaskStateCanceled  TaskState = "canceled"
)

type TaskStatus struct {
	State     TaskState `json:"state"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Artifact is an agent output attached to a task.
type Artifact struct {
	Name      string `json:"name,omitempty"`
	Parts     []Part `json:"parts"`
	Index     int    `json:"index,omitempty"`
	Append    bool   `json:"append,omitempty"`
	LastChunk bool   `json:"lastChunk,omitempty"`
}

// Task is the backend's task record as returned by send/get/list.
type Task struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionId,omitempty"`
	Status    TaskStatus     `json:"status"`
	Artifacts []Artifact     `json:"artifacts,omitempty"`
	History   []Message      `json:"history,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Name returns the display name carried in task metadata, if any.
func (t Task) Name() string {
	if t.Metadata == nil {
		return ""
	}
	if v, ok := t.Metadata["taskName"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// TextPart builds a plain text part.
func TextPart(text string) Part {
	return Part{Type: PartTypeText, Text: text}
}

// FilePart builds a file part with inline base64 content.
func FilePart(name, mimeType, b64 string) Part {
	return Part{Type: PartTypeFile, File: &FileContent{Name: name, MimeType: mimeType, Bytes: b64}}
}

// JoinText concatenates the text content of parts, skipping non-text parts.
func JoinText(parts []Part) string {
	var out string
	for _, p := range parts {
		if p.Type == PartTypeText {
			out += p.Text
		}
	}
	return out
}
