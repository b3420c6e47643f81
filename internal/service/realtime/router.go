package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/havenkids/haven/backend/internal/analysis/crisis"
	"github.com/havenkids/haven/backend/internal/model/chat"
	"github.com/havenkids/haven/backend/internal/model/realtime"
)

// ErrUnknownSession is returned for events referencing a handshake the
// router never created or has already dropped.
var ErrUnknownSession = errors.New("unknown realtime session")

// Composer provides the prompt renderings the router needs.
type Composer interface {
	Compose(ctx context.Context, childID, message string) string
	ProfileContext(ctx context.Context, childID string) string
}

// SessionWriter is the slice of the session service the router uses.
type SessionWriter interface {
	AppendUserMessage(ctx context.Context, childID, content string) (chat.Session, error)
	AppendAssistantMessage(ctx context.Context, sessionID, content string) error
	AppendCrisisTurn(ctx context.Context, childID, userText, safeReply string, mood chat.MoodScore) (chat.Session, error)
}

// Router drives the voice handshake as a sequence of named events. It
// keeps an in-memory registry of handshakes; nothing here is persisted.
type Router struct {
	provider Provider
	composer Composer
	sessions SessionWriter
	logger   *zap.Logger

	mu       sync.Mutex
	registry map[string]*realtime.Session
}

func NewRouter(provider Provider, composer Composer, sessions SessionWriter, logger *zap.Logger) *Router {
	return &Router{
		provider: provider,
		composer: composer,
		sessions: sessions,
		logger:   logger,
		registry: make(map[string]*realtime.Session),
	}
}

type CreateSessionResult struct {
	SessionID    string `json:"sessionId"`
	ClientSecret string `json:"clientSecret"`
}

type SDPAnswerResult struct {
	Answer string `json:"answer"`
}

type StoreUserMessageResult struct {
	ChatSessionID  string `json:"chatSessionId"`
	CrisisDetected bool   `json:"crisisDetected"`
	SafeReply      string `json:"safeReply,omitempty"`
}

type StoredResult struct {
	Stored bool `json:"stored"`
}

type ChildContextResult struct {
	Context string `json:"context"`
}

// Dispatch runs one parsed event and returns its variant-specific
// result.
func (r *Router) Dispatch(ctx context.Context, ev Event) (any, error) {
	switch ev := ev.(type) {
	case CreateSession:
		return r.createSession(ctx, ev)
	case SendSDPOffer:
		return r.sendSDPOffer(ctx, ev)
	case StoreUserMessage:
		return r.storeUserMessage(ctx, ev)
	case StoreAIResponse:
		return r.storeAIResponse(ctx, ev)
	case GetChildContext:
		return r.getChildContext(ctx, ev)
	default:
		return nil, fmt.Errorf("unhandled event type %T", ev)
	}
}

func (r *Router) createSession(ctx context.Context, ev CreateSession) (CreateSessionResult, error) {
	instructions := r.composer.Compose(ctx, ev.ChildID, "")

	provSession, err := r.provider.CreateSession(ctx, instructions)
	if err != nil {
		return CreateSessionResult{}, fmt.Errorf("open provider channel: %w", err)
	}

	r.mu.Lock()
	r.registry[provSession.ID] = &realtime.Session{
		ID:        provSession.ID,
		ChildID:   ev.ChildID,
		Stage:     realtime.StageCreated,
		CreatedAt: time.Now(),
	}
	r.mu.Unlock()

	r.logger.Info("realtime session created",
		zap.String("sessionId", provSession.ID),
		zap.String("childId", ev.ChildID))

	return CreateSessionResult{
		SessionID:    provSession.ID,
		ClientSecret: provSession.ClientSecret,
	}, nil
}

func (r *Router) sendSDPOffer(ctx context.Context, ev SendSDPOffer) (SDPAnswerResult, error) {
	r.mu.Lock()
	handshake, ok := r.registry[ev.SessionID]
	r.mu.Unlock()
	if !ok {
		return SDPAnswerResult{}, ErrUnknownSession
	}

	answer, err := r.provider.ForwardOffer(ctx, ev.ClientSecret, ev.SDP)
	if err != nil {
		return SDPAnswerResult{}, fmt.Errorf("forward sdp offer: %w", err)
	}

	r.mu.Lock()
	handshake.Stage = realtime.StageNegotiated
	r.mu.Unlock()

	return SDPAnswerResult{Answer: answer}, nil
}

func (r *Router) storeUserMessage(ctx context.Context, ev StoreUserMessage) (StoreUserMessageResult, error) {
	if crisis.Detect(ev.Content) {
		session, err := r.sessions.AppendCrisisTurn(ctx, ev.ChildID, ev.Content, crisis.SafeReply, crisis.Mood())
		if err != nil {
			return StoreUserMessageResult{}, fmt.Errorf("store crisis turn: %w", err)
		}
		r.attachChatSession(ev.SessionID, session.ID)
		return StoreUserMessageResult{
			ChatSessionID:  session.ID,
			CrisisDetected: true,
			SafeReply:      crisis.SafeReply,
		}, nil
	}

	session, err := r.sessions.AppendUserMessage(ctx, ev.ChildID, ev.Content)
	if err != nil {
		return StoreUserMessageResult{}, fmt.Errorf("store user message: %w", err)
	}
	r.attachChatSession(ev.SessionID, session.ID)

	return StoreUserMessageResult{ChatSessionID: session.ID}, nil
}

func (r *Router) storeAIResponse(ctx context.Context, ev StoreAIResponse) (StoredResult, error) {
	if err := r.sessions.AppendAssistantMessage(ctx, ev.ChatSessionID, ev.Content); err != nil {
		return StoredResult{}, err
	}
	return StoredResult{Stored: true}, nil
}

func (r *Router) getChildContext(ctx context.Context, ev GetChildContext) (ChildContextResult, error) {
	return ChildContextResult{Context: r.composer.ProfileContext(ctx, ev.ChildID)}, nil
}

// attachChatSession links the chat session to the handshake once
// messages start flowing. Events arriving without a handshake id still
// work; the link is only bookkeeping for the negotiation stage.
func (r *Router) attachChatSession(handshakeID, chatSessionID string) {
	if handshakeID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if handshake, ok := r.registry[handshakeID]; ok {
		handshake.ChatSessionID = chatSessionID
		handshake.Stage = realtime.StageStreaming
	}
}
