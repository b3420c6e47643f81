package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/havenkids/haven/backend/internal/service/engine"
	"github.com/havenkids/haven/backend/pkg/utils"
)

// Handler serves the text conversation endpoints.
type Handler struct {
	engine *engine.Service
}

func New(engineSvc *engine.Service) *Handler {
	return &Handler{engine: engineSvc}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
	r.Get("/sessions/{childID}", h.handleListSessions)
	r.Post("/sessions/{childID}/complete", h.handleCompleteSession)
}

// handleChat runs one full text turn.
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ChildID string `json:"childId"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.engine.ProcessTurn(r.Context(), payload.ChildID, payload.Message)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, result)
}

// handleListSessions returns one page of the child's session history.
func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	childID := chi.URLParam(r, "childID")

	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			utils.RespondError(w, http.StatusBadRequest, "page must be a positive integer")
			return
		}
		page = parsed
	}

	sessions, total, err := h.engine.ListSessions(r.Context(), childID, page)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"total":    total,
		"page":     page,
	})
}

// handleCompleteSession closes the active session, if any.
func (h *Handler) handleCompleteSession(w http.ResponseWriter, r *http.Request) {
	childID := chi.URLParam(r, "childID")

	session, completed, err := h.engine.CompleteSession(r.Context(), childID)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	if !completed {
		utils.RespondJSON(w, http.StatusOK, map[string]any{"completed": false})
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"completed": true,
		"session":   session,
	})
}

func respondEngineError(w http.ResponseWriter, err error) {
	var engErr *engine.Error
	if errors.As(err, &engErr) {
		utils.RespondJSON(w, engErr.Status, engErr)
		return
	}
	utils.RespondError(w, http.StatusInternalServerError, "internal error")
}
