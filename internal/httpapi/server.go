package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/lmoretti/taskdeck/internal/config"
	"github.com/lmoretti/taskdeck/internal/engine"
	"github.com/lmoretti/taskdeck/internal/observability"
)

type Server struct {
	cfg      config.Config
	engine   *engine.Controller
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, ctrl *engine.Controller, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:     cfg,
		engine:  ctrl,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Default: only allow browser websocket connections from the
				// same origin, so other websites cannot drive the console if
				// it is ever exposed beyond localhost.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/v1/tasks", s.handleListTasks)
	r.Get("/v1/tasks/{id}/messages", s.handleTaskMessages)
	r.Post("/v1/tasks/new", s.handleNewTask)
	r.Post("/v1/tasks/{id}/select", s.handleSelectTask)
	r.Post("/v1/tasks/{id}/cancel", s.handleCancelTask)
	r.Post("/v1/messages", s.handleSubmitMessage)
	r.Get("/v1/updates/ws", s.handleUpdatesWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"backend": s.cfg.BackendRPCURL,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (s *Server) handleListTasks(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"tasks":          s.engine.Tasks(),
		"active_task_id": s.engine.ActiveTaskID(),
	})
}

func (s *Server) handleTaskMessages(w http.ResponseWriter, r *http.Request) {
	taskID := strings.TrimSpace(chi.URLParam(r, "id"))
	if taskID == "" {
		respondError(w, http.StatusBadRequest, "invalid_task_id", "missing task id")
		return
	}
	messages, err := s.engine.Messages(taskID)
	if err != nil {
		if errors.Is(err, engine.ErrTaskNotFound) {
			respondError(w, http.StatusNotFound, "task_not_found", err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, "task_messages_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"task_id":  taskID,
		"messages": messages,
	})
}

func (s *Server) handleNewTask(w http.ResponseWriter, _ *http.Request) {
	s.engine.StartNewTask()
	respondJSON(w, http.StatusOK, map[string]any{
		"active_task_id": "",
	})
}

func (s *Server) handleSelectTask(w http.ResponseWriter, r *http.Request) {
	taskID := strings.TrimSpace(chi.URLParam(r, "id"))
	if taskID == "" {
		respondError(w, http.StatusBadRequest, "invalid_task_id", "missing task id")
		return
	}
	if err := s.engine.SelectTask(r.Context(), taskID); err != nil {
		if errors.Is(err, engine.ErrTaskNotFound) {
			respondError(w, http.StatusNotFound, "task_not_found", err.Error())
			return
		}
		// Selection already took effect locally; only the history fetch
		// failed. Report it without undoing the selection.
		respondError(w, http.StatusBadGateway, "history_fetch_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"active_task_id": taskID,
	})
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	taskID := strings.TrimSpace(chi.URLParam(r, "id"))
	if taskID == "" {
		respondError(w, http.StatusBadRequest, "invalid_task_id", "missing task id")
		return
	}
	if err := s.engine.Cancel(r.Context(), taskID); err != nil {
		if errors.Is(err, engine.ErrTaskNotFound) {
			respondError(w, http.StatusNotFound, "task_not_found", err.Error())
			return
		}
		respondError(w, http.StatusBadGateway, "task_cancel_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"task_id": taskID,
		"status":  "cancel_requested",
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
