package voice

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/havenkids/haven/backend/internal/service/engine"
	"github.com/havenkids/haven/backend/pkg/utils"
)

// maxUploadBytes caps voice clip uploads at 10MB.
const maxUploadBytes = 10 << 20

// Handler serves the one-shot voice turn endpoint.
type Handler struct {
	engine *engine.Service
}

func New(engineSvc *engine.Service) *Handler {
	return &Handler{engine: engineSvc}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/voice", h.handleVoiceTurn)
}

// handleVoiceTurn accepts a multipart audio clip, runs the voice
// pipeline, and returns transcript, reply, and base64 audio when
// synthesis succeeded.
func (h *Handler) handleVoiceTurn(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid multipart upload")
		return
	}

	childID := r.FormValue("childId")
	if childID == "" {
		utils.RespondError(w, http.StatusBadRequest, "childId is required")
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read audio upload")
		return
	}

	format := r.FormValue("format")
	if format == "" {
		format = formatFromFilename(header.Filename)
	}

	result, err := h.engine.ProcessVoiceTurn(r.Context(), childID, audio, format)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	response := map[string]any{
		"transcript":   result.Transcript,
		"reply":        result.Reply,
		"moodAnalysis": result.Mood,
		"crisisFlag":   result.CrisisFlag,
		"sessionId":    result.SessionID,
	}
	if len(result.AudioReply) > 0 {
		response["audioReply"] = base64.StdEncoding.EncodeToString(result.AudioReply)
		response["audioFormat"] = result.AudioFormat
	}

	utils.RespondJSON(w, http.StatusOK, response)
}

func formatFromFilename(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[i+1:]
		}
	}
	return "webm"
}

func respondEngineError(w http.ResponseWriter, err error) {
	var engErr *engine.Error
	if errors.As(err, &engErr) {
		utils.RespondJSON(w, engErr.Status, engErr)
		return
	}
	utils.RespondError(w, http.StatusInternalServerError, "internal error")
}
