package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/lmoretti/taskdeck/internal/engine"
	"github.com/lmoretti/taskdeck/internal/protocol"
)

type submitMessageRequest struct {
	Text  string          `json:"text"`
	Parts []protocol.Part `json:"parts"`
}

type submitMessageResponse struct {
	TaskID   string `json:"task_id"`
	Accepted bool   `json:"accepted"`
	Detail   string `json:"detail,omitempty"`
}

func (s *Server) handleSubmitMessage(w http.ResponseWriter, r *http.Request) {
	var req submitMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		s.metrics.ObserveUIMessage("submit", "invalid")
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	parts := req.Parts
	if len(parts) == 0 {
		text := strings.TrimSpace(req.Text)
		if text == "" {
			s.metrics.ObserveUIMessage("submit", "empty")
			respondError(w, http.StatusBadRequest, "invalid_request", "text or parts is required")
			return
		}
		parts = []protocol.Part{protocol.TextPart(text)}
	}

	taskID, err := s.engine.Submit(r.Context(), parts)
	if errors.Is(err, engine.ErrSendInFlight) {
		s.metrics.ObserveUIMessage("submit", "in_flight")
		respondError(w, http.StatusConflict, "send_in_flight", err.Error())
		return
	}
	if err != nil {
		// The optimistic message and the failure notice are already in the
		// buffer; the client re-renders from there. Accepted=false only
		// tells it the round trip did not land.
		s.metrics.ObserveUIMessage("submit", "backend_error")
		respondJSON(w, http.StatusOK, submitMessageResponse{
			TaskID:   taskID,
			Accepted: false,
			Detail:   err.Error(),
		})
		return
	}

	s.metrics.ObserveUIMessage("submit", "ok")
	respondJSON(w, http.StatusOK, submitMessageResponse{
		TaskID:   taskID,
		Accepted: true,
	})
}
