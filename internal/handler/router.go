package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	chatHandler "github.com/havenkids/haven/backend/internal/handler/chat"
	realtimeHandler "github.com/havenkids/haven/backend/internal/handler/realtime"
	streamHandler "github.com/havenkids/haven/backend/internal/handler/stream"
	voiceHandler "github.com/havenkids/haven/backend/internal/handler/voice"
	middlewarePkg "github.com/havenkids/haven/backend/internal/middleware"
	"github.com/havenkids/haven/backend/pkg/utils"
)

// Pinger reports whether an external dependency is reachable.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// Deps carries the wired handlers the router mounts. Nil optional
// handlers disable their routes.
type Deps struct {
	Chat     *chatHandler.Handler
	Voice    *voiceHandler.Handler
	Realtime *realtimeHandler.Handler
	Stream   *streamHandler.Handler

	// Embedder, when set, is pinged by the health endpoint.
	Embedder Pinger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", handleHealth(deps.Embedder))

		deps.Chat.RegisterRoutes(api)

		if deps.Voice != nil {
			deps.Voice.RegisterRoutes(api)
		}
		if deps.Realtime != nil {
			deps.Realtime.RegisterRoutes(api)
		}
		if deps.Stream != nil {
			api.Get("/stream/{childID}", func(w http.ResponseWriter, r *http.Request) {
				childID := chi.URLParam(r, "childID")
				message := r.URL.Query().Get("message")
				if message == "" {
					utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
					return
				}
				// The stream handler reports failures in-band once
				// headers are out; nothing useful to do with the error
				// here.
				_ = deps.Stream.HandleStreamRequest(r.Context(), w, childID, message)
			})
		}
	})

	return r
}

func handleHealth(embedder Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]string{"status": "ok"}
		if embedder != nil {
			if err := embedder.HealthCheck(r.Context()); err != nil {
				body["embedding"] = "unreachable"
			} else {
				body["embedding"] = "ok"
			}
		}
		utils.RespondJSON(w, http.StatusOK, body)
	}
}
