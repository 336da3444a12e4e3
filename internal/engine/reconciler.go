package engine

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/lmoretti/taskdeck/internal/observability"
	"github.com/lmoretti/taskdeck/internal/protocol"
)

// ErrUnsupportedReply means a tasks/send result carried neither artifacts
// nor history, so no agent reply could be derived from it.
var ErrUnsupportedReply = errors.New("task result carries neither artifacts nor history")

const untitledTask = "New task"

// streamingID is the identity of the in-flight agent reply accumulated
// from non-final stream frames, replaced on completion.
func streamingID(taskID string) string {
	return "stream-" + taskID
}

// disposition classifies an incoming event against the registry and the
// currently active task. The three cases are mutually exclusive and
// evaluated in priority order: active beats unknown beats inactive.
type disposition int

const (
	dispositionActive disposition = iota
	dispositionUnknown
	dispositionInactive
)

func (d disposition) String() string {
	switch d {
	case dispositionActive:
		return "active"
	case dispositionUnknown:
		return "unknown"
	default:
		return "inactive"
	}
}

// Reconciler merges events from the send/get calls and the subscription
// stream into the registry and conversation buffers. It carries no
// ambient state of its own: the active task and own session id are passed
// in per call, so it can be exercised in isolation. Not safe for
// concurrent use; the controller serializes all access.
type Reconciler struct {
	registry *Registry
	buffers  *Buffers
	resolver *Resolver
	metrics  *observability.Metrics
	now      func() time.Time
	newID    func() string
}

func NewReconciler(registry *Registry, buffers *Buffers, resolver *Resolver, metrics *observability.Metrics) *Reconciler {
	return &Reconciler{
		registry: registry,
		buffers:  buffers,
		resolver: resolver,
		metrics:  metrics,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

func (r *Reconciler) classify(activeTaskID, taskID string) disposition {
	if !r.registry.Has(taskID) {
		return dispositionUnknown
	}
	if taskID == activeTaskID {
		return dispositionActive
	}
	return dispositionInactive
}

// ApplyStream reconciles one subscription frame. It returns the
// disposition the frame resolved to so the caller can decide which change
// notifications to emit.
func (r *Reconciler) ApplyStream(activeTaskID, ownSessionID string, upd protocol.StateUpdate) disposition {
	now := r.now()
	d := r.classify(activeTaskID, upd.TaskID)

	switch d {
	case dispositionActive:
		r.applyContent(upd.TaskID, upd)
		r.registry.Touch(upd.TaskID, now)

	case dispositionUnknown:
		title := upd.TaskName
		if title == "" {
			title = titleFromUpdate(upd)
		}
		fromElsewhere := upd.SessionID != "" && ownSessionID != "" && upd.SessionID != ownSessionID
		r.registry.Upsert(Task{
			ID:         upd.TaskID,
			SessionID:  upd.SessionID,
			Title:      title,
			LastUpdate: now,
			Unread:     fromElsewhere,
		})
		r.buffers.Ensure(upd.TaskID)
		r.applyContent(upd.TaskID, upd)

	case dispositionInactive:
		// Content still lands in the buffer so the task is ready when
		// selected; only the registry's visible state changes.
		r.applyContent(upd.TaskID, upd)
		r.registry.MarkUnread(upd.TaskID)
		r.registry.Touch(upd.TaskID, now)
	}

	r.metrics.ObserveReconcile("stream", d.String())
	return d
}

// ApplySubmit reconciles the synchronous result of tasks/send for the task
// that initiated it. The submitter is by definition viewing the task, so
// this is always the active-equivalent path: the provisional user message
// is promoted and the agent reply appended. Both reply shapes the backend
// produces are supported, artifacts winning when both are present.
func (r *Reconciler) ApplySubmit(taskID string, result *protocol.Task) error {
	parts, err := replyParts(result)
	if err != nil {
		r.metrics.ObserveReconcile("submit", "unsupported")
		return err
	}
	now := r.now()

	r.resolver.Resolve(r.buffers, taskID)
	if len(parts) > 0 {
		r.appendIfNew(taskID, Message{
			ID:        r.newID(),
			Role:      protocol.RoleAgent,
			Parts:     parts,
			Status:    StatusComplete,
			Timestamp: now,
		})
	}
	if result.SessionID != "" {
		r.registry.Upsert(Task{ID: taskID, SessionID: result.SessionID, LastUpdate: now})
	}
	r.registry.Touch(taskID, now)
	r.metrics.ObserveReconcile("submit", "active")
	return nil
}

// ApplySubmitFailure marks the pending user message as failed, replacing
// its text with a fixed notice. The row stays addressable.
func (r *Reconciler) ApplySubmitFailure(taskID string) {
	// The failed row gets a final id so the provisional slot is free for
	// the retry; a late completion event must not promote this row.
	r.buffers.ReplaceByID(taskID, ProvisionalID(taskID), MessagePatch{
		ID:     r.newID(),
		Parts:  []protocol.Part{protocol.TextPart("Message failed to send.")},
		Status: StatusError,
	})
	r.metrics.ObserveReconcile("submit", "error")
}

// ApplyHistory loads a fetched transcript wholesale, discarding any local
// state for the task including stray optimistic messages. Fetched messages
// are already final and bypass the identity resolver.
func (r *Reconciler) ApplyHistory(taskID string, history []protocol.Message) {
	now := r.now()
	msgs := make([]Message, 0, len(history))
	for _, m := range history {
		msgs = append(msgs, Message{
			ID:        r.newID(),
			Role:      m.Role,
			Parts:     m.Parts,
			Status:    StatusComplete,
			Timestamp: now,
		})
	}
	r.buffers.LoadHistory(taskID, msgs)
	r.metrics.ObserveReconcile("history", "loaded")
}

// ApplyList seeds the registry from a bulk task listing. Entries are
// applied oldest first so the recency order ends newest at the head.
func (r *Reconciler) ApplyList(listing []protocol.Task) {
	sorted := make([]protocol.Task, len(listing))
	copy(sorted, listing)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Status.Timestamp.Before(sorted[j].Status.Timestamp)
	})
	for _, t := range sorted {
		if t.ID == "" {
			continue
		}
		r.registry.Upsert(Task{
			ID:         t.ID,
			SessionID:  t.SessionID,
			Title:      t.Name(),
			LastUpdate: t.Status.Timestamp,
		})
		r.buffers.Ensure(t.ID)
	}
	r.metrics.ObserveReconcile("list", "loaded")
}

// applyContent merges a frame's payload into the task's buffer. Message
// order is arrival order at the reconciler, never server timestamps, so
// optimistic local messages keep their position.
func (r *Reconciler) applyContent(taskID string, upd protocol.StateUpdate) {
	now := r.now()

	if len(upd.Messages) > 0 {
		for _, m := range upd.Messages {
			r.appendIfNew(taskID, Message{
				ID:        messageID(m, r.newID),
				Role:      m.Role,
				Parts:     m.Parts,
				Status:    StatusComplete,
				Timestamp: now,
			})
		}
		if upd.Complete {
			r.resolver.Resolve(r.buffers, taskID)
		}
		return
	}

	if len(upd.Parts) > 0 {
		if upd.Complete {
			r.completeExchange(taskID, upd.Parts, now)
		} else {
			r.upsertStreaming(taskID, upd.Parts, now)
		}
		return
	}

	// Status-only frame: nothing to append, but a completion flag still
	// drives the provisional id promotion.
	if upd.Complete {
		r.resolver.Resolve(r.buffers, taskID)
	}
}

// completeExchange finalizes one request/reply round: the pending user
// message (if any) is promoted and the agent reply lands exactly once. A
// duplicate of the same completion frame leaves the buffer untouched.
func (r *Reconciler) completeExchange(taskID string, parts []protocol.Part, now time.Time) {
	r.resolver.Resolve(r.buffers, taskID)

	if r.buffers.Contains(taskID, streamingID(taskID)) {
		r.buffers.ReplaceByID(taskID, streamingID(taskID), MessagePatch{
			ID:     r.newID(),
			Parts:  parts,
			Status: StatusComplete,
		})
		return
	}

	r.appendIfNew(taskID, Message{
		ID:        r.newID(),
		Role:      protocol.RoleAgent,
		Parts:     parts,
		Status:    StatusComplete,
		Timestamp: now,
	})
}

// upsertStreaming replaces the in-flight agent reply with the latest
// partial content, creating it on the first chunk.
func (r *Reconciler) upsertStreaming(taskID string, parts []protocol.Part, now time.Time) {
	id := streamingID(taskID)
	if r.buffers.Contains(taskID, id) {
		r.buffers.ReplaceByID(taskID, id, MessagePatch{Parts: parts, Status: StatusStreaming})
		return
	}
	r.buffers.Append(taskID, Message{
		ID:        id,
		Role:      protocol.RoleAgent,
		Parts:     parts,
		Status:    StatusStreaming,
		Timestamp: now,
	})
}

// appendIfNew appends unless an equal message (same role and parts) is
// already buffered. Delivery is at-least-once, so a redelivered frame must
// not grow the buffer.
func (r *Reconciler) appendIfNew(taskID string, msg Message) bool {
	for _, existing := range r.buffers.Messages(taskID) {
		if existing.Role == msg.Role && partsEqual(existing.Parts, msg.Parts) {
			return false
		}
	}
	return r.buffers.Append(taskID, msg)
}

func replyParts(result *protocol.Task) ([]protocol.Part, error) {
	if result == nil {
		return nil, ErrUnsupportedReply
	}
	if len(result.Artifacts) > 0 && len(result.Artifacts[0].Parts) > 0 {
		return result.Artifacts[0].Parts, nil
	}
	if len(result.History) > 0 {
		for i := len(result.History) - 1; i >= 0; i-- {
			if result.History[i].Role == protocol.RoleAgent {
				return result.History[i].Parts, nil
			}
		}
		// A history-shaped reply with no agent turn yet: nothing to
		// append, but not malformed either.
		return nil, nil
	}
	return nil, ErrUnsupportedReply
}

func messageID(m protocol.Message, newID func() string) string {
	if m.Metadata != nil {
		if v, ok := m.Metadata["messageId"]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return newID()
}

func titleFromUpdate(upd protocol.StateUpdate) string {
	for _, m := range upd.Messages {
		if m.Role == protocol.RoleUser {
			if t := TitleFromText(protocol.JoinText(m.Parts)); t != untitledTask {
				return t
			}
		}
	}
	return untitledTask
}

func partsEqual(a, b []protocol.Part) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Type != b[i].Type || a[i].Text != b[i].Text {
			return false
		}
		af, bf := a[i].File, b[i].File
		if (af == nil) != (bf == nil) {
			return false
		}
		if af != nil && (af.Name != bf.Name || af.MimeType != bf.MimeType || af.Bytes != bf.Bytes || af.URI != bf.URI) {
			return false
		}
	}
	return true
}
