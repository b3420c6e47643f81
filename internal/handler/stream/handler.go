package stream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/havenkids/haven/backend/internal/service/engine"
	"github.com/havenkids/haven/backend/pkg/utils"
)

// Handler streams assistant replies over Server-Sent Events.
type Handler struct {
	engine *engine.Service
	logger *zap.Logger
}

func New(engineSvc *engine.Service, logger *zap.Logger) *Handler {
	return &Handler{engine: engineSvc, logger: logger}
}

// StreamResponse is one SSE frame.
type StreamResponse struct {
	Event      string `json:"event"`
	Content    string `json:"content,omitempty"`
	SessionID  string `json:"sessionId,omitempty"`
	CrisisFlag bool   `json:"crisisFlag,omitempty"`
	Finished   bool   `json:"finished,omitempty"`
	Error      string `json:"error,omitempty"`
}

// HandleStreamRequest runs one turn, emitting reply chunks as they
// arrive and a final frame once the turn is persisted.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, childID, message string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return errors.New("streaming unsupported")
	}

	utils.SetupSSEHeaders(w)

	tc, err := h.engine.PrepareTurn(ctx, childID, message)
	if err != nil {
		h.sendError(w, flusher, err)
		return err
	}

	// A crisis turn is already resolved and persisted; emit the safe
	// reply as a single chunk.
	if tc.Crisis {
		h.send(w, flusher, StreamResponse{Event: "chunk", Content: tc.Reply})
		h.sendEnd(w, flusher, StreamResponse{
			Event:      "end",
			SessionID:  tc.SessionID,
			CrisisFlag: true,
			Finished:   true,
		})
		return nil
	}

	stream, err := h.engine.StreamTurn(ctx, tc)
	if err != nil {
		h.sendError(w, flusher, err)
		return err
	}
	defer stream.Close()

	var reply strings.Builder
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			h.sendError(w, flusher, err)
			return err
		}
		if chunk.Content == "" {
			continue
		}
		reply.WriteString(chunk.Content)
		h.send(w, flusher, StreamResponse{Event: "chunk", Content: chunk.Content})
	}

	if strings.TrimSpace(reply.String()) == "" {
		err := engine.NewEmptyReplyError(nil)
		h.sendError(w, flusher, err)
		return err
	}

	tc.Reply = reply.String()
	h.engine.CommitTurn(ctx, tc)

	h.sendEnd(w, flusher, StreamResponse{
		Event:     "end",
		SessionID: tc.SessionID,
		Finished:  true,
	})
	return nil
}

// Reply chunks go out as data-only frames; terminal frames carry a
// named event so clients can listen for them directly.
func (h *Handler) send(w http.ResponseWriter, flusher http.Flusher, resp StreamResponse) {
	utils.SendSSEChunk(w, flusher, resp)
}

func (h *Handler) sendEnd(w http.ResponseWriter, flusher http.Flusher, resp StreamResponse) {
	utils.SendSSEEvent(w, flusher, "end", resp)
}

func (h *Handler) sendError(w http.ResponseWriter, flusher http.Flusher, err error) {
	message := "streaming failed"
	var engErr *engine.Error
	if errors.As(err, &engErr) {
		message = engErr.Message
	}
	h.logger.Warn("stream turn failed", zap.Error(err))
	utils.SendSSEEvent(w, flusher, "error", StreamResponse{Event: "error", Error: message})
}
