package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/havenkids/haven/backend/internal/analysis/crisis"
	"github.com/havenkids/haven/backend/internal/embedding"
	"github.com/havenkids/haven/backend/internal/model/chat"
	"github.com/havenkids/haven/backend/internal/model/child"
	"github.com/havenkids/haven/backend/internal/model/memory"
	speechmodel "github.com/havenkids/haven/backend/internal/model/speech"
	"github.com/havenkids/haven/backend/internal/service/ai"
	"github.com/havenkids/haven/backend/internal/service/speech"
	"github.com/havenkids/haven/backend/internal/service/subscription"
	"github.com/havenkids/haven/backend/internal/vector"
)

const defaultSessionsPerPage = 20

// Composer builds the instruction block for one inbound message.
type Composer interface {
	Compose(ctx context.Context, childID, message string) string
}

// Analyzer scores mood and extracts topics from conversation text.
type Analyzer interface {
	AnalyzeMood(ctx context.Context, text string, age int) chat.MoodScore
	ExtractTopics(ctx context.Context, text string) []string
}

// Completer produces assistant replies.
type Completer interface {
	Reply(ctx context.Context, mode ai.Mode, system string, history []chat.Message, userMessage string) (string, error)
	Stream(ctx context.Context, system string, history []chat.Message, userMessage string) (*schema.StreamReader[*schema.Message], error)
	StreamingEnabled() bool
}

// Sessions is the slice of the session service the engine drives.
type Sessions interface {
	AppendTurn(ctx context.Context, childID, userText, assistantText string, age int) (chat.Session, error)
	AppendCrisisTurn(ctx context.Context, childID, userText, safeReply string, mood chat.MoodScore) (chat.Session, error)
	CompleteActive(ctx context.Context, childID string) (chat.Session, bool, error)
	ActiveSession(ctx context.Context, childID string) (chat.Session, bool, error)
	Transcript(ctx context.Context, sessionID string) ([]chat.Message, error)
	List(ctx context.Context, childID string, page, perPage int) ([]chat.Session, int, error)
}

// Service orchestrates one conversation turn end to end.
type Service struct {
	gate        subscription.Gate
	profiles    child.Store
	composer    Composer
	analyzer    Analyzer
	completer   Completer
	sessions    Sessions
	index       vector.Index
	embedder    embedding.Embedder
	transcriber speech.Transcriber
	synthesizer speech.Synthesizer
	logger      *zap.Logger
}

func NewService(
	gate subscription.Gate,
	profiles child.Store,
	composer Composer,
	analyzer Analyzer,
	completer Completer,
	sessions Sessions,
	index vector.Index,
	embedder embedding.Embedder,
	transcriber speech.Transcriber,
	synthesizer speech.Synthesizer,
	logger *zap.Logger,
) *Service {
	return &Service{
		gate:        gate,
		profiles:    profiles,
		composer:    composer,
		analyzer:    analyzer,
		completer:   completer,
		sessions:    sessions,
		index:       index,
		embedder:    embedder,
		transcriber: transcriber,
		synthesizer: synthesizer,
		logger:      logger,
	}
}

// TurnResult is what one completed text turn returns to the client.
type TurnResult struct {
	SessionID  string         `json:"sessionId"`
	Reply      string         `json:"reply"`
	Mood       chat.MoodScore `json:"moodAnalysis"`
	Topics     []string       `json:"topics"`
	CrisisFlag bool           `json:"crisisFlag"`
}

// VoiceTurnResult adds the transcript and optional audio reply.
type VoiceTurnResult struct {
	TurnResult
	Transcript  string `json:"transcript"`
	AudioReply  []byte `json:"-"`
	AudioFormat string `json:"audioFormat,omitempty"`
}

// TurnContext carries the prepared state between the gate/analysis
// phase and the completion phase, so the streaming path can reuse it.
type TurnContext struct {
	ChildID string
	Message string
	Age     int
	System  string
	History []chat.Message
	Mood    chat.MoodScore
	Topics  []string

	// Crisis turns are fully resolved during preparation; Reply holds
	// the safe response and SessionID the session it was stored into.
	Crisis    bool
	Reply     string
	SessionID string
}

// PrepareTurn runs everything that precedes the model call: the crisis
// scan, the subscription gate, and the concurrent context composition
// and inbound analysis. Crisis turns come back resolved. The crisis scan
// runs before the gate: the safe reply involves no paid path and must
// reach the child regardless of subscription state.
func (s *Service) PrepareTurn(ctx context.Context, childID, message string) (*TurnContext, error) {
	message = strings.TrimSpace(message)
	if childID == "" || message == "" {
		return nil, NewInvalidRequestError("childId and message are required")
	}

	if crisis.Detect(message) {
		return s.resolveCrisisTurn(ctx, childID, message, s.childAge(ctx, childID)), nil
	}

	allowed, err := s.gate.Allow(ctx, childID)
	if err != nil {
		return nil, NewProviderError("subscription check failed", err)
	}
	if !allowed {
		return nil, NewUpgradeRequiredError("an active subscription is required for conversations")
	}

	tc := &TurnContext{ChildID: childID, Message: message, Age: s.childAge(ctx, childID)}

	// Composition and inbound analysis have no data dependency on each
	// other; the analyzer degrades internally instead of erroring.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tc.System = s.composer.Compose(gctx, childID, message)
		return nil
	})
	g.Go(func() error {
		tc.Mood = s.analyzer.AnalyzeMood(gctx, message, tc.Age)
		return nil
	})
	g.Go(func() error {
		tc.Topics = s.analyzer.ExtractTopics(gctx, message)
		return nil
	})
	g.Wait()

	tc.History = s.loadHistory(ctx, childID)
	return tc, nil
}

// ProcessTurn runs one complete text turn and returns the reply with
// its inbound analysis.
func (s *Service) ProcessTurn(ctx context.Context, childID, message string) (*TurnResult, error) {
	return s.processTurn(ctx, childID, message, ai.ModeChat)
}

func (s *Service) processTurn(ctx context.Context, childID, message string, mode ai.Mode) (*TurnResult, error) {
	tc, err := s.PrepareTurn(ctx, childID, message)
	if err != nil {
		return nil, err
	}
	if tc.Crisis {
		return tc.result(), nil
	}

	reply, err := s.completer.Reply(ctx, mode, tc.System, tc.History, tc.Message)
	if err != nil {
		if errors.Is(err, ai.ErrEmptyReply) {
			return nil, NewEmptyReplyError(err)
		}
		return nil, NewProviderError("completion failed", err)
	}
	tc.Reply = reply

	s.CommitTurn(ctx, tc)
	return tc.result(), nil
}

// CommitTurn persists a finished turn: the message pair, the session
// recompute, and the memory record. It runs detached from the caller's
// cancellation and never fails the already-produced reply.
func (s *Service) CommitTurn(ctx context.Context, tc *TurnContext) {
	persistCtx := context.WithoutCancel(ctx)

	session, err := s.sessions.AppendTurn(persistCtx, tc.ChildID, tc.Message, tc.Reply, tc.Age)
	if err != nil {
		s.logger.Error("turn persistence failed after successful reply",
			zap.String("childId", tc.ChildID), zap.Error(err))
		return
	}
	tc.SessionID = session.ID

	s.writeMemoryRecord(persistCtx, tc)
}

func (tc *TurnContext) result() *TurnResult {
	return &TurnResult{
		SessionID:  tc.SessionID,
		Reply:      tc.Reply,
		Mood:       tc.Mood,
		Topics:     tc.Topics,
		CrisisFlag: tc.Crisis,
	}
}

// resolveCrisisTurn stores the safe reply best effort. The reply is
// decided before any analysis or persistence and is never altered by
// their failures. The stored mood comes from the triggering text; the
// analyzer's internal fallback keeps this from erroring.
func (s *Service) resolveCrisisTurn(ctx context.Context, childID, message string, age int) *TurnContext {
	mood := s.analyzer.AnalyzeMood(ctx, message, age)
	mood.CrisisDetected = true
	tc := &TurnContext{
		ChildID: childID,
		Message: message,
		Age:     age,
		Crisis:  true,
		Reply:   crisis.SafeReply,
		Mood:    mood,
	}

	session, err := s.sessions.AppendCrisisTurn(context.WithoutCancel(ctx), childID, message, crisis.SafeReply, mood)
	if err != nil {
		s.logger.Error("failed to persist crisis turn",
			zap.String("childId", childID), zap.Error(err))
		return tc
	}
	tc.SessionID = session.ID
	return tc
}

// ProcessVoiceTurn transcribes the clip, runs the text pipeline in
// voice mode, and synthesizes the reply. Synthesis failure degrades to
// a text-only result.
func (s *Service) ProcessVoiceTurn(ctx context.Context, childID string, audio []byte, format string) (*VoiceTurnResult, error) {
	if s.transcriber == nil {
		return nil, NewUnavailableError("voice features are not configured")
	}

	transcription, err := s.transcriber.Transcribe(ctx, &speechmodel.TranscribeRequest{
		ChildID:   childID,
		AudioData: audio,
		Format:    format,
	})
	if err != nil {
		return nil, NewProviderError("transcription failed", err)
	}

	// Silence or inaudible input ends the turn without touching the
	// session.
	if strings.TrimSpace(transcription.Text) == "" {
		return &VoiceTurnResult{}, nil
	}

	turn, err := s.processTurn(ctx, childID, transcription.Text, ai.ModeVoice)
	if err != nil {
		return nil, err
	}

	result := &VoiceTurnResult{TurnResult: *turn, Transcript: transcription.Text}

	if s.synthesizer != nil {
		synthesis, err := s.synthesizer.Synthesize(ctx, &speechmodel.SynthesizeRequest{
			ChildID: childID,
			Text:    turn.Reply,
		})
		if err != nil {
			s.logger.Warn("speech synthesis failed, returning text only",
				zap.String("childId", childID), zap.Error(err))
		} else {
			result.AudioReply = synthesis.AudioData
			result.AudioFormat = synthesis.Format
		}
	}

	return result, nil
}

// StreamTurn exposes the completion stream for the SSE path. The caller
// collects the chunks and hands the final text back to CommitTurn.
func (s *Service) StreamTurn(ctx context.Context, tc *TurnContext) (*schema.StreamReader[*schema.Message], error) {
	if !s.completer.StreamingEnabled() {
		return nil, NewUnavailableError("streaming is not enabled")
	}
	stream, err := s.completer.Stream(ctx, tc.System, tc.History, tc.Message)
	if err != nil {
		return nil, NewProviderError("completion stream failed", err)
	}
	return stream, nil
}

// CompleteSession closes the child's active session if one exists.
func (s *Service) CompleteSession(ctx context.Context, childID string) (chat.Session, bool, error) {
	if childID == "" {
		return chat.Session{}, false, NewInvalidRequestError("childId is required")
	}
	session, completed, err := s.sessions.CompleteActive(ctx, childID)
	if err != nil {
		return chat.Session{}, false, NewInternalError("session completion failed", err)
	}
	return session, completed, nil
}

// ListSessions returns one page of the child's session history.
func (s *Service) ListSessions(ctx context.Context, childID string, page int) ([]chat.Session, int, error) {
	if childID == "" {
		return nil, 0, NewInvalidRequestError("childId is required")
	}
	if page < 1 {
		page = 1
	}
	sessions, total, err := s.sessions.List(ctx, childID, page, defaultSessionsPerPage)
	if err != nil {
		return nil, 0, NewInternalError("session listing failed", err)
	}
	return sessions, total, nil
}

func (s *Service) childAge(ctx context.Context, childID string) int {
	profile, found, err := s.profiles.FindByID(ctx, childID)
	if err != nil || !found {
		return child.DefaultProfile(childID).Age
	}
	return profile.Age
}

func (s *Service) loadHistory(ctx context.Context, childID string) []chat.Message {
	session, found, err := s.sessions.ActiveSession(ctx, childID)
	if err != nil || !found {
		return nil
	}
	history, err := s.sessions.Transcript(ctx, session.ID)
	if err != nil {
		s.logger.Warn("history load failed, continuing without it",
			zap.String("childId", childID), zap.Error(err))
		return nil
	}
	return history
}

// writeMemoryRecord vectorizes the child's utterance with its analysis
// snapshot. The engine is the only writer of memory records.
func (s *Service) writeMemoryRecord(ctx context.Context, tc *TurnContext) {
	if s.index == nil || s.embedder == nil {
		return
	}

	vec, err := s.embedder.Embed(ctx, tc.Message)
	if err != nil {
		s.logger.Warn("memory embedding failed",
			zap.String("childId", tc.ChildID), zap.Error(err))
		return
	}

	record := memory.Record{
		ID:      uuid.NewString(),
		ChildID: tc.ChildID,
		Kind:    memory.KindMemory,
		Excerpt: tc.Message,
		Mood: &memory.MoodMeta{
			Happiness:  tc.Mood.Happiness,
			Anxiety:    tc.Mood.Anxiety,
			Sadness:    tc.Mood.Sadness,
			Stress:     tc.Mood.Stress,
			Confidence: tc.Mood.Confidence,
		},
		Topics:    tc.Topics,
		Embedding: vec,
		CreatedAt: time.Now(),
	}

	if err := s.index.Upsert(ctx, record); err != nil {
		s.logger.Warn("memory record write failed",
			zap.String("childId", tc.ChildID), zap.Error(err))
	}
}
