// Package api provides HTTP handlers for the Mentora engine API.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/mentora-labs/mentora/internal/domain"
	"github.com/mentora-labs/mentora/internal/engine"
	"github.com/mentora-labs/mentora/internal/identity"
	"github.com/mentora-labs/mentora/internal/session"
)

// maxRequestBodySize bounds dispatch request bodies (1MB).
const maxRequestBodySize = 1 << 20

// Handler serves the engine's REST surface.
type Handler struct {
	eng    *engine.Engine
	logger *slog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(eng *engine.Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{eng: eng, logger: logger}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// RegisterRoutes registers engine routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/agents", h.handleListAgents)
	r.Post("/api/agents/{agentID}/activate", h.handleActivate)
	r.Post("/api/agents/{agentID}/deactivate", h.handleDeactivate)
	r.Post("/api/agents/{agentID}/dispatch", h.handleDispatch)
	r.Post("/api/tasks/{taskID}/cancel", h.handleCancel)
	r.Post("/api/reset", h.handleReset)
	r.Get("/api/transcript", h.handleTranscript)
	r.Get("/api/simulation/periods", h.handlePeriods)
	r.Get("/api/simulation/periods/{period}", h.handlePeriodProjection)
}

func (h *Handler) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents := h.eng.Registry().Agents()
	active, _ := h.eng.Registry().CurrentActive()
	JSON(w, http.StatusOK, map[string]any{
		"agents": agents,
		"active": active,
	})
}

func (h *Handler) handleActivate(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	if err := h.eng.Registry().Activate(agentID); err != nil {
		if errors.Is(err, session.ErrUnknownAgent) {
			Error(w, http.StatusNotFound, "unknown agent")
			return
		}
		Error(w, http.StatusInternalServerError, "failed to activate agent")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"agent_id": agentID, "status": string(domain.SessionActive)})
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	if err := h.eng.Registry().Deactivate(agentID); err != nil {
		if errors.Is(err, session.ErrUnknownAgent) {
			Error(w, http.StatusNotFound, "unknown agent")
			return
		}
		Error(w, http.StatusInternalServerError, "failed to deactivate agent")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"agent_id": agentID, "status": string(domain.SessionIdle)})
}

// dispatchRequest is the dispatch request body.
type dispatchRequest struct {
	Kind    string         `json:"kind"`
	Prompt  string         `json:"prompt,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
	RTL     bool           `json:"rtl,omitempty"`
}

func (h *Handler) handleDispatch(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	var req dispatchRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())

	task, err := h.eng.Dispatch(r.Context(), agentID, engine.Request{
		SessionID: identity.TranscriptKey(userID, sessionID),
		Kind:      domain.TaskKind(req.Kind),
		Prompt:    req.Prompt,
		Payload:   req.Payload,
		RTL:       req.RTL,
	})
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrInvalidKind):
			Error(w, http.StatusBadRequest, "invalid task kind")
		case errors.Is(err, session.ErrUnknownAgent):
			Error(w, http.StatusNotFound, "unknown agent")
		case errors.Is(err, session.ErrAgentNotActive):
			Error(w, http.StatusConflict, "agent is not active")
		case errors.Is(err, session.ErrTaskInFlight):
			Error(w, http.StatusConflict, "agent already has a task in flight")
		default:
			h.logger.Error("dispatch failed", "agent_id", agentID, "error", err)
			Error(w, http.StatusInternalServerError, "failed to dispatch task")
		}
		return
	}

	JSON(w, http.StatusAccepted, task)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if err := h.eng.Cancel(taskID); err != nil {
		if errors.Is(err, engine.ErrTaskNotFound) {
			Error(w, http.StatusNotFound, "task not found")
			return
		}
		Error(w, http.StatusInternalServerError, "failed to cancel task")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"task_id": taskID, "status": string(domain.StatusCanceled)})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	h.eng.Reset()
	JSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())

	msgs, err := h.eng.Transcripts().ListOrdered(r.Context(), identity.TranscriptKey(userID, sessionID))
	if err != nil {
		h.logger.Error("failed to list transcript", "error", err)
		Error(w, http.StatusInternalServerError, "failed to load transcript")
		return
	}
	JSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (h *Handler) handlePeriods(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]any{
		"periods":  h.eng.Periods().AvailablePeriods(),
		"complete": h.eng.Periods().Complete(),
	})
}

func (h *Handler) handlePeriodProjection(w http.ResponseWriter, r *http.Request) {
	period, err := strconv.Atoi(chi.URLParam(r, "period"))
	if err != nil || period < 1 {
		Error(w, http.StatusBadRequest, "invalid period")
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"period": period,
		"facets": h.eng.Periods().Projection(period),
	})
}
