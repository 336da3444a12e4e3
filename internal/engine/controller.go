package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lmoretti/taskdeck/internal/observability"
	"github.com/lmoretti/taskdeck/internal/protocol"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrSendInFlight = errors.New("a send is already in flight for this task")
)

const titleMaxRunes = 48

// Backend is the slice of the A2A client the controller depends on.
type Backend interface {
	SendTask(ctx context.Context, params protocol.SendTaskParams) (*protocol.Task, error)
	GetTask(ctx context.Context, id string, historyLength int) (*protocol.Task, error)
	CancelTask(ctx context.Context, id string) (*protocol.Task, error)
	ListTasks(ctx context.Context) ([]protocol.Task, error)
}

// Controller owns the engine state and orchestrates the user-visible
// lifecycle: starting and selecting tasks, submitting messages, and
// consuming the subscription stream. Every mutation runs to completion
// under one mutex; the lock is released across transport calls so the two
// event sources may interleave, and each result is re-validated against
// the state it finds on return.
type Controller struct {
	mu       sync.Mutex
	backend  Backend
	metrics  *observability.Metrics
	registry *Registry
	buffers  *Buffers
	resolver *Resolver
	rec      *Reconciler

	activeTaskID  string
	sessionID     string
	historyLength int

	subscribers map[int]chan Change
	nextSubID   int
}

func NewController(backend Backend, metrics *observability.Metrics, historyLength int) *Controller {
	registry := NewRegistry()
	buffers := NewBuffers()
	resolver := NewResolver()
	return &Controller{
		backend:       backend,
		metrics:       metrics,
		registry:      registry,
		buffers:       buffers,
		resolver:      resolver,
		rec:           NewReconciler(registry, buffers, resolver, metrics),
		historyLength: historyLength,
		subscribers:   make(map[int]chan Change),
	}
}

// Tasks returns a most-recent-first snapshot of the registry.
func (c *Controller) Tasks() []Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.ListAll()
}

// ActiveTaskID returns the currently selected task id, empty when none.
func (c *Controller) ActiveTaskID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeTaskID
}

// Messages returns the conversation buffer of the given task.
func (c *Controller) Messages(taskID string) ([]Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.registry.Has(taskID) {
		return nil, ErrTaskNotFound
	}
	return c.buffers.Messages(taskID), nil
}

// StartNewTask clears the active selection. The next submission mints
// fresh task and session ids.
func (c *Controller) StartNewTask() {
	c.mu.Lock()
	c.activeTaskID = ""
	c.sessionID = ""
	c.publishLocked(Change{Kind: ChangeActive, At: time.Now().UTC()})
	c.mu.Unlock()
}

// SelectTask makes the task active, clears its unread flag, and fetches
// its history. A result arriving after the user has moved on to another
// task is discarded: each fetch is tagged with the task id it targeted and
// only applied while that task is still the active one.
func (c *Controller) SelectTask(ctx context.Context, taskID string) error {
	c.mu.Lock()
	task, ok := c.registry.Get(taskID)
	if !ok {
		c.mu.Unlock()
		return ErrTaskNotFound
	}
	c.activeTaskID = taskID
	c.registry.ClearUnread(taskID)
	if task.SessionID != "" {
		c.sessionID = task.SessionID
	}
	c.metrics.SetTaskGauges(c.registry.Len(), c.registry.UnreadCount())
	c.publishLocked(Change{Kind: ChangeActive, TaskID: taskID, At: time.Now().UTC()})
	c.mu.Unlock()

	result, err := c.backend.GetTask(ctx, taskID, c.historyLength)
	if err != nil {
		return fmt.Errorf("fetch history: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.activeTaskID != taskID {
		// Stale fetch: the user switched away while the request was in
		// flight. The newer selection wins.
		c.metrics.ObserveReconcile("history", "stale")
		return nil
	}
	c.rec.ApplyHistory(taskID, result.History)
	if result.SessionID != "" {
		c.sessionID = result.SessionID
		c.registry.Upsert(Task{ID: taskID, SessionID: result.SessionID})
	}
	c.publishLocked(Change{Kind: ChangeBuffer, TaskID: taskID, At: time.Now().UTC()})
	return nil
}

// Submit sends user content to the backend. With no active task it first
// registers a fresh task optimistically, without waiting for the round
// trip. The pending user message keeps its provisional identity until the
// result (or a stream completion) promotes it.
func (c *Controller) Submit(ctx context.Context, parts []protocol.Part) (string, error) {
	if len(parts) == 0 {
		return "", errors.New("nothing to submit")
	}
	now := time.Now().UTC()

	c.mu.Lock()
	taskID := c.activeTaskID
	if taskID != "" && c.buffers.Contains(taskID, ProvisionalID(taskID)) {
		// The provisional slot is task-scoped, so at most one exchange may
		// be open per task. A second submission would shadow the pending
		// row and could leave it unresolved.
		c.mu.Unlock()
		return taskID, ErrSendInFlight
	}
	if taskID == "" {
		taskID = uuid.NewString()
		c.sessionID = uuid.NewString()
		c.activeTaskID = taskID
		c.registry.Upsert(Task{
			ID:         taskID,
			SessionID:  c.sessionID,
			Title:      TitleFromText(protocol.JoinText(parts)),
			LastUpdate: now,
		})
		c.buffers.Ensure(taskID)
		c.publishLocked(Change{Kind: ChangeActive, TaskID: taskID, At: now})
	}
	sessionID := c.sessionID
	title := untitledTask
	if task, ok := c.registry.Get(taskID); ok && task.Title != "" {
		title = task.Title
	}
	c.resolver.Begin(taskID)
	c.buffers.Append(taskID, Message{
		ID:        ProvisionalID(taskID),
		Role:      protocol.RoleUser,
		Parts:     parts,
		Status:    StatusPending,
		Timestamp: now,
	})
	c.registry.Touch(taskID, now)
	c.metrics.SetTaskGauges(c.registry.Len(), c.registry.UnreadCount())
	c.publishLocked(Change{Kind: ChangeRegistry, At: now})
	c.publishLocked(Change{Kind: ChangeBuffer, TaskID: taskID, At: now})
	c.mu.Unlock()

	start := time.Now()
	result, err := c.backend.SendTask(ctx, protocol.SendTaskParams{
		ID:        taskID,
		SessionID: sessionID,
		Message:   protocol.Message{Role: protocol.RoleUser, Parts: parts},
		Metadata:  map[string]any{"taskName": title},
	})
	c.metrics.ObserveSendLatency(time.Since(start))

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.rec.ApplySubmitFailure(taskID)
		c.publishLocked(Change{Kind: ChangeBuffer, TaskID: taskID, At: time.Now().UTC()})
		return taskID, fmt.Errorf("send task: %w", err)
	}
	applyErr := c.rec.ApplySubmit(taskID, result)
	c.metrics.SetTaskGauges(c.registry.Len(), c.registry.UnreadCount())
	c.publishLocked(Change{Kind: ChangeRegistry, At: time.Now().UTC()})
	c.publishLocked(Change{Kind: ChangeBuffer, TaskID: taskID, At: time.Now().UTC()})
	return taskID, applyErr
}

// Cancel forwards a cancellation to the backend. The resulting state
// change comes back through the subscription stream like any other.
func (c *Controller) Cancel(ctx context.Context, taskID string) error {
	c.mu.Lock()
	known := c.registry.Has(taskID)
	c.mu.Unlock()
	if !known {
		return ErrTaskNotFound
	}
	if _, err := c.backend.CancelTask(ctx, taskID); err != nil {
		return fmt.Errorf("cancel task: %w", err)
	}
	return nil
}

// LoadTasks seeds the registry from the backend's bulk listing.
func (c *Controller) LoadTasks(ctx context.Context) error {
	listing, err := c.backend.ListTasks(ctx)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rec.ApplyList(listing)
	c.metrics.SetTaskGauges(c.registry.Len(), c.registry.UnreadCount())
	c.publishLocked(Change{Kind: ChangeRegistry, At: time.Now().UTC()})
	return nil
}

// HandleUpdate reconciles one subscription frame to completion.
func (c *Controller) HandleUpdate(upd protocol.StateUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.rec.ApplyStream(c.activeTaskID, c.sessionID, upd)
	c.metrics.SetTaskGauges(c.registry.Len(), c.registry.UnreadCount())
	now := time.Now().UTC()
	c.publishLocked(Change{Kind: ChangeRegistry, At: now})
	if d == dispositionActive {
		// Only the visible conversation gets a buffer notification; a
		// background task's content waits quietly until selected.
		c.publishLocked(Change{Kind: ChangeBuffer, TaskID: upd.TaskID, At: now})
	}
}

// RunStream consumes decoded subscription frames until the context ends
// or the channel closes. Safe to call again after the transport
// re-establishes the stream.
func (c *Controller) RunStream(ctx context.Context, updates <-chan protocol.StateUpdate) {
	for {
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			c.HandleUpdate(upd)
		}
	}
}

// Subscribe registers a change observer. The returned cancel func is
// idempotent. Slow observers lose notifications rather than blocking the
// engine.
func (c *Controller) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, 64)
	c.mu.Lock()
	c.nextSubID++
	id := c.nextSubID
	c.subscribers[id] = ch
	c.mu.Unlock()

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if existing, ok := c.subscribers[id]; ok {
			delete(c.subscribers, id)
			close(existing)
		}
	}
}

func (c *Controller) publishLocked(change Change) {
	for _, ch := range c.subscribers {
		select {
		case ch <- change:
		default:
		}
	}
}

// TitleFromText derives a task title from the first user message,
// truncated on a rune boundary.
func TitleFromText(text string) string {
	title := strings.Join(strings.Fields(text), " ")
	if title == "" {
		return untitledTask
	}
	runes := []rune(title)
	if len(runes) > titleMaxRunes {
		title = string(runes[:titleMaxRunes]) + "…"
	}
	return title
}
