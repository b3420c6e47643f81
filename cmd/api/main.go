package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/havenkids/haven/backend/internal/config"
	"github.com/havenkids/haven/backend/internal/embedding"
	"github.com/havenkids/haven/backend/internal/handler"
	chatHandler "github.com/havenkids/haven/backend/internal/handler/chat"
	realtimeHandler "github.com/havenkids/haven/backend/internal/handler/realtime"
	streamHandler "github.com/havenkids/haven/backend/internal/handler/stream"
	voiceHandler "github.com/havenkids/haven/backend/internal/handler/voice"
	"github.com/havenkids/haven/backend/internal/model/chat"
	"github.com/havenkids/haven/backend/internal/service/ai"
	"github.com/havenkids/haven/backend/internal/service/engine"
	"github.com/havenkids/haven/backend/internal/service/mood"
	"github.com/havenkids/haven/backend/internal/service/prompt"
	realtimeService "github.com/havenkids/haven/backend/internal/service/realtime"
	sessionService "github.com/havenkids/haven/backend/internal/service/session"
	"github.com/havenkids/haven/backend/internal/service/speech"
	"github.com/havenkids/haven/backend/internal/service/subscription"
	"github.com/havenkids/haven/backend/internal/store"
	"github.com/havenkids/haven/backend/internal/vector"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		logger.Fatal("failed to open datastore", zap.Error(err))
	}
	defer db.Close()

	children := store.NewChildStore(db)
	sessions := store.NewSessionStore(db)
	index := vector.NewSQLiteIndex(db)
	embedder := embedding.NewClient(cfg.Embedding.BaseURL, cfg.Embedding.Model)

	analyzer, completer := buildAIServices(ctx, cfg, logger)

	sessionSvc := sessionService.NewService(sessions, analyzer, logger)
	composer := prompt.NewComposer(children, index, embedder, logger)

	var gate subscription.Gate = subscription.AllowAll{}
	if cfg.Billing.Enabled() {
		gate = subscription.NewStripeGate(cfg.Billing.StripeKey, children, logger)
		logger.Info("stripe subscription gate enabled")
	} else {
		logger.Info("billing not configured, allowing all children")
	}

	var transcriber speech.Transcriber
	var synthesizer speech.Synthesizer
	if cfg.Speech.Enabled {
		speechClient := speech.NewClient(cfg.Speech, logger)
		transcriber = speechClient
		synthesizer = speechClient
		logger.Info("speech provider configured")
	} else {
		logger.Info("speech provider not configured, voice turns disabled")
	}

	engineSvc := engine.NewService(
		gate,
		children,
		composer,
		analyzer,
		completer,
		sessionSvc,
		index,
		embedder,
		transcriber,
		synthesizer,
		logger,
	)

	deps := handler.Deps{
		Chat:     chatHandler.New(engineSvc),
		Embedder: embedder,
	}
	if transcriber != nil {
		deps.Voice = voiceHandler.New(engineSvc)
	}
	if cfg.Realtime.Enabled() {
		provider := realtimeService.NewHTTPProvider(cfg.Realtime)
		router := realtimeService.NewRouter(provider, composer, sessionSvc, logger)
		deps.Realtime = realtimeHandler.New(router, logger)
		logger.Info("realtime voice provider configured")
	}
	if completer.StreamingEnabled() {
		deps.Stream = streamHandler.New(engineSvc, logger)
	}

	startServer(ctx, cfg.Server, handler.NewRouter(deps), logger)
}

// buildAIServices constructs the analyzer and completion gateway. When
// provider credentials are missing the analyzer falls back to neutral
// scores and the gateway is replaced by a hard-failing stub, keeping
// the rest of the service usable for storage and realtime relay.
func buildAIServices(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*mood.Service, engine.Completer) {
	cache := mood.NewCache(cfg.AI.MoodCacheSize, time.Duration(cfg.AI.MoodCacheTTLSec)*time.Second)

	if !cfg.AI.Enabled() {
		logger.Warn("completion provider not configured, replies unavailable")
		analyzer, err := mood.NewService(ctx, nil, cache, logger)
		if err != nil {
			logger.Fatal("failed to build fallback analyzer", zap.Error(err))
		}
		return analyzer, unavailableCompleter{}
	}

	moodModel, err := cfg.AI.NewChatModel(ctx, cfg.AI.MoodMaxTokens)
	if err != nil {
		logger.Fatal("failed to build mood model", zap.Error(err))
	}
	analyzer, err := mood.NewService(ctx, moodModel, cache, logger)
	if err != nil {
		logger.Fatal("failed to build mood analyzer", zap.Error(err))
	}

	chatModel, err := cfg.AI.NewChatModel(ctx, cfg.AI.ChatMaxTokens)
	if err != nil {
		logger.Fatal("failed to build chat model", zap.Error(err))
	}
	voiceModel, err := cfg.AI.NewChatModel(ctx, cfg.AI.VoiceMaxTokens)
	if err != nil {
		logger.Fatal("failed to build voice model", zap.Error(err))
	}
	completer, err := ai.NewGateway(ctx, chatModel, voiceModel, cfg.AI.StreamResponse, logger)
	if err != nil {
		logger.Fatal("failed to build completion gateway", zap.Error(err))
	}

	return analyzer, completer
}

// unavailableCompleter stands in when provider credentials are absent;
// every turn fails fast with a clear message.
type unavailableCompleter struct{}

func (unavailableCompleter) Reply(context.Context, ai.Mode, string, []chat.Message, string) (string, error) {
	return "", errors.New("completion provider is not configured")
}

func (unavailableCompleter) Stream(context.Context, string, []chat.Message, string) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("completion provider is not configured")
}

func (unavailableCompleter) StreamingEnabled() bool { return false }

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *zap.Logger) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("haven backend listening", zap.String("addr", serverCfg.Addr))
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
