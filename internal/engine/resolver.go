package engine

import (
	"strings"

	"github.com/google/uuid"
)

const provisionalPrefix = "temp-"

// ProvisionalID returns the client-minted placeholder identity for the
// task's in-flight user message. The id is task-scoped rather than random
// so a later event that only names the task can still be matched.
func ProvisionalID(taskID string) string {
	return provisionalPrefix + taskID
}

// IsProvisional reports whether an id is a client-minted placeholder.
func IsProvisional(id string) bool {
	return strings.HasPrefix(id, provisionalPrefix)
}

// Resolver promotes provisional message ids to server-confirmed ones. Each
// mapping lives for a single pending exchange: Begin opens the exchange on
// submission and Resolve closes it exactly once. Not safe for concurrent
// use; the controller serializes all access.
type Resolver struct {
	resolved map[string]string // provisional id -> final id
	newID    func() string
}

func NewResolver() *Resolver {
	return &Resolver{
		resolved: make(map[string]string),
		newID:    uuid.NewString,
	}
}

// Begin opens a new exchange for the task, discarding any mapping left
// over from a previous one.
func (r *Resolver) Begin(taskID string) {
	delete(r.resolved, ProvisionalID(taskID))
}

// Resolve replaces the task's provisional message id with a freshly minted
// stable id and marks the message complete. Duplicate completion events
// for the same exchange are absorbed as no-ops. The returned bool reports
// whether a promotion happened.
func (r *Resolver) Resolve(buf *Buffers, taskID string) (string, bool) {
	prov := ProvisionalID(taskID)
	if _, done := r.resolved[prov]; done {
		return "", false
	}
	if !buf.Contains(taskID, prov) {
		return "", false
	}
	final := r.newID()
	buf.ReplaceByID(taskID, prov, MessagePatch{ID: final, Status: StatusComplete})
	r.resolved[prov] = final
	return final, true
}
