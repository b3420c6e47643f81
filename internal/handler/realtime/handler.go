package realtime

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/havenkids/haven/backend/internal/service/realtime"
	"github.com/havenkids/haven/backend/internal/service/session"
	"github.com/havenkids/haven/backend/pkg/utils"
)

// Handler exposes the realtime event router over HTTP and WebSocket.
type Handler struct {
	router   *realtime.Router
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func New(router *realtime.Router, logger *zap.Logger) *Handler {
	return &Handler{
		router: router,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/realtime/event", h.handleEvent)
	r.Get("/realtime/ws/{childID}", h.handleWebSocket)
}

type eventEnvelope struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

// handleEvent dispatches one named event over plain HTTP.
func (h *Handler) handleEvent(w http.ResponseWriter, r *http.Request) {
	var envelope eventEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	event, err := realtime.ParseEvent(envelope.Name, envelope.Payload)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.router.Dispatch(r.Context(), event)
	if err != nil {
		h.respondDispatchError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"event":  envelope.Name,
		"result": result,
	})
}

type wsFrame struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

type wsReply struct {
	Event  string `json:"event"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// handleWebSocket runs the same event dispatch over a persistent
// connection. One malformed frame answers with an error frame; the
// connection stays open.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	childID := chi.URLParam(r, "childID")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.logger.Info("realtime websocket opened", zap.String("childId", childID))

	for {
		var frame wsFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", zap.String("childId", childID), zap.Error(err))
			}
			return
		}

		event, err := realtime.ParseEvent(frame.Name, frame.Payload)
		if err != nil {
			h.writeFrame(conn, wsReply{Event: frame.Name, Error: err.Error()})
			continue
		}

		result, err := h.router.Dispatch(r.Context(), event)
		if err != nil {
			h.writeFrame(conn, wsReply{Event: frame.Name, Error: dispatchErrorMessage(err)})
			continue
		}

		h.writeFrame(conn, wsReply{Event: frame.Name, Result: result})
	}
}

func (h *Handler) writeFrame(conn *websocket.Conn, reply wsReply) {
	if err := conn.WriteJSON(reply); err != nil {
		h.logger.Warn("websocket write failed", zap.Error(err))
	}
}

func (h *Handler) respondDispatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, realtime.ErrUnknownSession):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrSessionNotActive):
		utils.RespondError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("realtime dispatch failed", zap.Error(err))
		utils.RespondError(w, http.StatusBadGateway, "event dispatch failed")
	}
}

func dispatchErrorMessage(err error) string {
	if errors.Is(err, realtime.ErrUnknownSession) || errors.Is(err, session.ErrSessionNotActive) {
		return err.Error()
	}
	return "event dispatch failed"
}
