package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lmoretti/taskdeck/internal/protocol"
	"github.com/lmoretti/taskdeck/internal/reliability"
)

const (
	maxReadAttempts = 3
	retryBaseDelay  = 250 * time.Millisecond
	retryMaxDelay   = 2 * time.Second
)

// ErrMalformedResponse means the backend answered without the expected
// result field. The caller's state is left untouched.
var ErrMalformedResponse = errors.New("backend response carries no result")

// Client speaks the agent backend's JSON-RPC task methods plus its bulk
// listing endpoint.
type Client struct {
	rpcURL   string
	tasksURL string
	client   *http.Client
}

func NewClient(rpcURL string, timeout time.Duration) (*Client, error) {
	rpcURL = strings.TrimSpace(rpcURL)
	if rpcURL == "" {
		return nil, errors.New("backend rpc url is required")
	}
	u, err := url.Parse(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	// The listing endpoint lives beside the rpc endpoint on the same host.
	listing := *u
	listing.Path = "/tasks"
	listing.RawQuery = ""

	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		rpcURL:   rpcURL,
		tasksURL: listing.String(),
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// SendTask submits a user message via tasks/send and returns the backend's
// task result.
func (c *Client) SendTask(ctx context.Context, params protocol.SendTaskParams) (*protocol.Task, error) {
	return c.callTask(ctx, protocol.MethodSendTask, params)
}

// GetTask fetches a task with its transcript via tasks/get. Reads are
// idempotent, so transient backend errors are retried with backoff.
func (c *Client) GetTask(ctx context.Context, id string, historyLength int) (*protocol.Task, error) {
	var task *protocol.Task
	err := c.withRetry(ctx, func() error {
		var err error
		task, err = c.callTask(ctx, protocol.MethodGetTask, protocol.GetTaskParams{ID: id, HistoryLength: historyLength})
		return err
	})
	return task, err
}

// CancelTask requests cancellation via tasks/cancel.
func (c *Client) CancelTask(ctx context.Context, id string) (*protocol.Task, error) {
	return c.callTask(ctx, protocol.MethodCancelTask, protocol.CancelTaskParams{ID: id})
}

// ListTasks fetches the backend's bulk task listing, retrying transient
// backend errors.
func (c *Client) ListTasks(ctx context.Context) ([]protocol.Task, error) {
	var listing []protocol.Task
	err := c.withRetry(ctx, func() error {
		var err error
		listing, err = c.listTasksOnce(ctx)
		return err
	})
	return listing, err
}

func (c *Client) listTasksOnce(ctx context.Context) ([]protocol.Task, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.tasksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return nil, &statusError{method: "list tasks", code: res.StatusCode, body: string(body)}
	}
	var listing []protocol.Task
	if err := json.NewDecoder(res.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}
	return listing, nil
}

type statusError struct {
	method string
	code   int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s status %d: %s", e.method, e.code, e.body)
}

// withRetry runs fn up to maxReadAttempts times, backing off between
// attempts while the failure is a retryable HTTP status. Only idempotent
// reads go through here; tasks/send always gets a single attempt so a slow
// backend cannot be handed the same message twice.
func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	bo := reliability.Backoff{Base: retryBaseDelay, Cap: retryMaxDelay}
	var lastErr error
	for attempt := 0; attempt < maxReadAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		var se *statusError
		if !errors.As(err, &se) || !reliability.IsRetryableHTTPStatus(se.code) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(bo.Next()):
		}
	}
	return lastErr
}

func (c *Client) callTask(ctx context.Context, method string, params any) (*protocol.Task, error) {
	result, err := c.call(ctx, method, params)
	if err != nil {
		return nil, err
	}
	var task protocol.Task
	if err := json.Unmarshal(result, &task); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &task, nil
}

func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	payload, err := json.Marshal(protocol.Request{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return nil, &statusError{method: method, code: res.StatusCode, body: string(body)}
	}

	var rpcRes protocol.Response
	if err := json.NewDecoder(res.Body).Decode(&rpcRes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if rpcRes.Error != nil {
		return nil, fmt.Errorf("%s: %w", method, rpcRes.Error)
	}
	if len(rpcRes.Result) == 0 || string(rpcRes.Result) == "null" {
		return nil, ErrMalformedResponse
	}
	return rpcRes.Result, nil
}
