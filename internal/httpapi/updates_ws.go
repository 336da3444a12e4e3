package httpapi

import (
	"net/http"
	"time"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadTimeout  = 120 * time.Second
)

// handleUpdatesWS pushes change notifications to a connected UI. Frames are
// cheap hints (kind plus task id); the client re-reads the affected state
// over the REST surface.
func (s *Server) handleUpdatesWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.ObserveUIMessage("ws", "connected")
	changes, cancel := s.engine.Subscribe()
	defer cancel()

	done := make(chan struct{})

	// Drain the read side so close frames and pings are processed. The
	// updates socket carries no client commands.
	go func() {
		defer close(done)
		conn.SetReadLimit(1 << 10)
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		conn.SetPongHandler(func(string) error {
			_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(change); err != nil {
				s.metrics.ObserveUIMessage("ws", "write_error")
				return
			}
			s.metrics.ObserveUIMessage("ws", "delivered")
		}
	}
}
