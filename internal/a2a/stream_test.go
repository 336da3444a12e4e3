package a2a

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lmoretti/taskdeck/internal/protocol"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSubscriberDeliversFrames(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var gotTopic atomic.Value

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub subscribeRequest
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		gotTopic.Store(sub.Topic)

		frames := []string{
			`{"taskId":"t1","parts":[{"type":"text","text":"one"}]}`,
			`not json at all`,
			`{"taskId":"t2","taskName":"Other","complete":true}`,
		}
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		// Keep the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	s := NewSubscriber(wsURL(srv), "", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan protocol.StateUpdate, 8)
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = s.Run(ctx, out)
	}()

	var got []protocol.StateUpdate
	deadline := time.After(3 * time.Second)
	for len(got) < 2 {
		select {
		case upd := <-out:
			got = append(got, upd)
		case <-deadline:
			t.Fatalf("frames delivered = %d, want 2", len(got))
		}
	}
	cancel()
	<-runDone

	if topic, _ := gotTopic.Load().(string); topic != protocol.TopicStateUpdates {
		t.Fatalf("subscribed topic = %q, want %q", topic, protocol.TopicStateUpdates)
	}
	if got[0].TaskID != "t1" || got[1].TaskID != "t2" {
		t.Fatalf("frames = %+v, invalid frame not skipped cleanly", got)
	}
	if !got[1].Complete {
		t.Fatalf("second frame Complete = false, want true")
	}
}

func TestSubscriberReconnects(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var connects atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := connects.Add(1)
		var sub subscribeRequest
		if err := conn.ReadJSON(&sub); err != nil {
			conn.Close()
			return
		}
		frame, _ := json.Marshal(protocol.StateUpdate{TaskID: "t1"})
		_ = conn.WriteMessage(websocket.TextMessage, frame)
		if n == 1 {
			// Drop the first connection to force a reconnect.
			conn.Close()
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	s := NewSubscriber(wsURL(srv), protocol.TopicStateUpdates, nil)
	s.initialBackoff = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan protocol.StateUpdate, 8)
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = s.Run(ctx, out)
	}()

	received := 0
	deadline := time.After(3 * time.Second)
	for received < 2 {
		select {
		case <-out:
			received++
		case <-deadline:
			t.Fatalf("frames across reconnect = %d, want 2", received)
		}
	}
	cancel()
	<-runDone

	if connects.Load() < 2 {
		t.Fatalf("connects = %d, want at least 2", connects.Load())
	}
}

func TestSubscriberRunStopsOnContextCancel(t *testing.T) {
	s := NewSubscriber("ws://127.0.0.1:1/ws", protocol.TopicStateUpdates, nil)
	s.initialBackoff = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan protocol.StateUpdate)
	runDone := make(chan error, 1)
	go func() {
		runDone <- s.Run(ctx, out)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-runDone:
		if err == nil {
			t.Fatalf("Run() error = nil, want context error")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run() did not stop after cancel")
	}
}
