package a2a

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lmoretti/taskdeck/internal/observability"
	"github.com/lmoretti/taskdeck/internal/protocol"
	"github.com/lmoretti/taskdeck/internal/reliability"
)

const (
	subscribeWriteTimeout = 3 * time.Second
	maxReconnectBackoff   = 30 * time.Second
)

type subscribeRequest struct {
	Op    string `json:"op"`
	Topic string `json:"topic"`
}

// Subscriber consumes the backend's pub/sub bridge over a websocket: one
// subscribe frame, then an unbounded sequence of text frames, each one a
// state update. Delivery is at-least-once and unordered across tasks; the
// engine downstream tolerates duplicates and gaps.
type Subscriber struct {
	wsURL   string
	topic   string
	metrics *observability.Metrics
	dialer  websocket.Dialer

	initialBackoff time.Duration
}

func NewSubscriber(wsURL, topic string, metrics *observability.Metrics) *Subscriber {
	if topic == "" {
		topic = protocol.TopicStateUpdates
	}
	return &Subscriber{
		wsURL:   wsURL,
		topic:   topic,
		metrics: metrics,
		dialer: websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		initialBackoff: time.Second,
	}
}

// Run dials and consumes the stream until ctx is done, reconnecting with
// capped exponential backoff whenever the connection drops. Decoded frames
// are delivered on out in connection order.
func (s *Subscriber) Run(ctx context.Context, out chan<- protocol.StateUpdate) error {
	bo := reliability.Backoff{Base: s.initialBackoff, Cap: maxReconnectBackoff}
	for {
		delivered, err := s.consume(ctx, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			log.Printf("stream: connection lost: %v", err)
		}
		if delivered > 0 {
			bo.Reset()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(bo.Next()):
		}
		s.metrics.ObserveStreamReconnect()
	}
}

func (s *Subscriber) consume(ctx context.Context, out chan<- protocol.StateUpdate) (int, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	// Unblock the read loop when the caller tears the stream down.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-watchDone:
		}
	}()

	_ = conn.SetWriteDeadline(time.Now().Add(subscribeWriteTimeout))
	if err := conn.WriteJSON(subscribeRequest{Op: "subscribe", Topic: s.topic}); err != nil {
		return 0, err
	}

	delivered := 0
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return delivered, err
		}
		if msgType != websocket.TextMessage {
			continue
		}
		upd, err := protocol.ParseStateUpdate(data)
		if err != nil {
			if errors.Is(err, protocol.ErrInvalidStateUpdate) {
				log.Printf("stream: skipping frame: %v", err)
				s.metrics.ObserveStreamFrame("invalid")
				continue
			}
			return delivered, err
		}
		s.metrics.ObserveStreamFrame("ok")

		select {
		case <-ctx.Done():
			return delivered, ctx.Err()
		case out <- upd:
			delivered++
		}
	}
}
