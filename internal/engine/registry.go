package engine

import "time"

// Registry holds the set of known tasks in recency order. It is not safe
// for concurrent use; the controller serializes all access.
type Registry struct {
	tasks map[string]*Task
	order []string // most recent first
}

func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*Task)}
}

// ListAll returns a most-recent-first snapshot of all tasks.
func (r *Registry) ListAll() []Task {
	out := make([]Task, 0, len(r.order))
	for _, id := range r.order {
		if t, ok := r.tasks[id]; ok {
			out = append(out, *t)
		}
	}
	return out
}

// Get returns a copy of the task with the given id.
func (r *Registry) Get(id string) (Task, bool) {
	t, ok := r.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// Has reports whether the task id is known.
func (r *Registry) Has(id string) bool {
	_, ok := r.tasks[id]
	return ok
}

// Upsert inserts the task at the head of the recency order, or merges it
// into the existing entry: the title is only set when previously unset and
// the last-update time never regresses. Updated tasks move to the head.
func (r *Registry) Upsert(task Task) {
	existing, ok := r.tasks[task.ID]
	if !ok {
		t := task
		r.tasks[task.ID] = &t
		r.order = append([]string{task.ID}, r.order...)
		return
	}
	if existing.Title == "" && task.Title != "" {
		existing.Title = task.Title
	}
	if existing.SessionID == "" && task.SessionID != "" {
		existing.SessionID = task.SessionID
	}
	if task.LastUpdate.After(existing.LastUpdate) {
		existing.LastUpdate = task.LastUpdate
		r.moveToFront(task.ID)
	}
}

// Touch advances a task's last-update time, never regressing it.
func (r *Registry) Touch(id string, at time.Time) {
	t, ok := r.tasks[id]
	if !ok {
		return
	}
	if at.After(t.LastUpdate) {
		t.LastUpdate = at
		r.moveToFront(id)
	}
}

// MarkUnread flags a task as having updates the user has not seen.
// No-op for unknown ids.
func (r *Registry) MarkUnread(id string) {
	if t, ok := r.tasks[id]; ok {
		t.Unread = true
	}
}

// ClearUnread removes the unread flag. No-op for unknown ids.
func (r *Registry) ClearUnread(id string) {
	if t, ok := r.tasks[id]; ok {
		t.Unread = false
	}
}

// UnreadCount returns the number of tasks currently flagged unread.
func (r *Registry) UnreadCount() int {
	n := 0
	for _, t := range r.tasks {
		if t.Unread {
			n++
		}
	}
	return n
}

func (r *Registry) Len() int {
	return len(r.tasks)
}

func (r *Registry) moveToFront(id string) {
	for i, existing := range r.order {
		if existing == id {
			if i == 0 {
				return
			}
			copy(r.order[1:i+1], r.order[:i])
			r.order[0] = id
			return
		}
	}
}
