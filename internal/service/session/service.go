package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/havenkids/haven/backend/internal/model/chat"
	"github.com/havenkids/haven/backend/internal/store"
)

// ErrSessionNotActive is returned when a turn references a session that has
// already completed.
var ErrSessionNotActive = errors.New("session not active")

// Analyzer recomputes mood and topics over accumulated transcript text.
type Analyzer interface {
	AnalyzeMood(ctx context.Context, text string, age int) chat.MoodScore
	ExtractTopics(ctx context.Context, text string) []string
}

// Service owns session state: the single-active-session-per-child invariant
// and message append semantics. All mutations for one child are serialized
// through a per-child lock; the lock is held only across store mutations,
// never across a model call.
type Service struct {
	store    *store.SessionStore
	analyzer Analyzer
	logger   *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService builds the session service over its persistence primitives.
func NewService(sessions *store.SessionStore, analyzer Analyzer, logger *zap.Logger) *Service {
	return &Service{
		store:    sessions,
		analyzer: analyzer,
		logger:   logger,
		locks:    make(map[string]*sync.Mutex),
	}
}

// childLock returns the mutex serializing mutations for one child. Locks
// accumulate per child; the child population is small enough that the arena
// is never swept.
func (s *Service) childLock(childID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[childID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[childID] = lock
	}
	return lock
}

// AppendTurn appends a child/assistant message pair to the child's active
// session, creating one when none is active, then recomputes mood and topics
// over the full accumulated transcript. A turn arriving while the previous
// session completes silently opens a new active session; rejecting would
// drop a child's message.
func (s *Service) AppendTurn(ctx context.Context, childID, userText, assistantText string, age int) (chat.Session, error) {
	session, err := s.appendPair(ctx, childID, userText, assistantText)
	if err != nil {
		return chat.Session{}, err
	}

	transcript, err := s.store.Transcript(ctx, session.ID)
	if err != nil {
		s.logger.Warn("transcript reload failed, keeping previous analysis",
			zap.String("session_id", session.ID), zap.Error(err))
		return session, nil
	}
	session.Messages = transcript

	// Analysis happens outside the child lock: these are model calls.
	text := fullTranscriptText(transcript)
	mood := s.analyzer.AnalyzeMood(ctx, text, age)
	topics := s.analyzer.ExtractTopics(ctx, text)

	if err := s.store.SetAnalysis(ctx, session.ID, &mood, topics); err != nil {
		s.logger.Warn("storing recomputed analysis failed",
			zap.String("session_id", session.ID), zap.Error(err))
	}
	session.Mood = &mood
	session.Topics = topics
	return session, nil
}

// AppendCrisisTurn appends the message pair of a crisis turn together with
// the mood snapshot computed from the triggering text. No recomputation
// happens; the crisis-flagged mood is stored as-is.
func (s *Service) AppendCrisisTurn(ctx context.Context, childID, userText, safeReply string, mood chat.MoodScore) (chat.Session, error) {
	session, err := s.appendPair(ctx, childID, userText, safeReply)
	if err != nil {
		return chat.Session{}, err
	}

	if err := s.store.SetAnalysis(ctx, session.ID, &mood, session.Topics); err != nil {
		s.logger.Warn("storing crisis mood failed",
			zap.String("session_id", session.ID), zap.Error(err))
	}
	session.Mood = &mood
	return session, nil
}

func (s *Service) appendPair(ctx context.Context, childID, userText, assistantText string) (chat.Session, error) {
	lock := s.childLock(childID)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now().UTC()
	session, err := s.getOrCreateLocked(ctx, childID, now)
	if err != nil {
		return chat.Session{}, err
	}

	pair := []chat.Message{
		{ID: uuid.NewString(), SessionID: session.ID, Sender: chat.SenderChild, Content: userText, CreatedAt: now},
		{ID: uuid.NewString(), SessionID: session.ID, Sender: chat.SenderAssistant, Content: assistantText, CreatedAt: now},
	}
	for _, msg := range pair {
		if err := s.store.InsertMessage(ctx, msg); err != nil {
			return chat.Session{}, err
		}
	}

	if err := s.store.TouchSession(ctx, session.ID, now); err != nil {
		return chat.Session{}, err
	}
	if err := s.store.RecordActivity(ctx, childID, now, false); err != nil {
		s.logger.Warn("recording activity failed", zap.String("child_id", childID), zap.Error(err))
	}

	session.LastActivityAt = now
	return session, nil
}

// AppendUserMessage appends a single child message through get-or-create and
// returns the session it landed in. Used by the realtime path, where the
// assistant reply arrives as a separate event.
func (s *Service) AppendUserMessage(ctx context.Context, childID, content string) (chat.Session, error) {
	lock := s.childLock(childID)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now().UTC()
	session, err := s.getOrCreateLocked(ctx, childID, now)
	if err != nil {
		return chat.Session{}, err
	}

	msg := chat.Message{
		ID: uuid.NewString(), SessionID: session.ID,
		Sender: chat.SenderChild, Content: content, CreatedAt: now,
	}
	if err := s.store.InsertMessage(ctx, msg); err != nil {
		return chat.Session{}, err
	}
	if err := s.store.TouchSession(ctx, session.ID, now); err != nil {
		return chat.Session{}, err
	}
	if err := s.store.RecordActivity(ctx, childID, now, false); err != nil {
		s.logger.Warn("recording activity failed", zap.String("child_id", childID), zap.Error(err))
	}
	return session, nil
}

// AppendAssistantMessage appends an assistant message to an existing session
// and fails with ErrSessionNotActive when the session has completed since
// the matching user message was stored.
func (s *Service) AppendAssistantMessage(ctx context.Context, sessionID, content string) error {
	session, err := s.store.SessionByID(ctx, sessionID)
	if err != nil {
		return err
	}

	lock := s.childLock(session.ChildID)
	lock.Lock()
	defer lock.Unlock()

	// Re-check under the lock: completion may have raced the lookup.
	session, err = s.store.SessionByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if !session.Active() {
		return ErrSessionNotActive
	}

	now := time.Now().UTC()
	msg := chat.Message{
		ID: uuid.NewString(), SessionID: sessionID,
		Sender: chat.SenderAssistant, Content: content, CreatedAt: now,
	}
	if err := s.store.InsertMessage(ctx, msg); err != nil {
		return err
	}
	return s.store.TouchSession(ctx, sessionID, now)
}

func (s *Service) getOrCreateLocked(ctx context.Context, childID string, now time.Time) (chat.Session, error) {
	session, found, err := s.store.ActiveSession(ctx, childID)
	if err != nil {
		return chat.Session{}, err
	}
	if found {
		return session, nil
	}

	session = chat.Session{
		ID:             uuid.NewString(),
		ChildID:        childID,
		Status:         chat.StatusActive,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return chat.Session{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// CompleteActive marks the child's active session completed with a stamped
// duration. With no active session it is a no-op that still records
// last-activity, flagged so idle completion is distinguishable from
// conversational completion.
func (s *Service) CompleteActive(ctx context.Context, childID string) (chat.Session, bool, error) {
	lock := s.childLock(childID)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now().UTC()
	session, found, err := s.store.ActiveSession(ctx, childID)
	if err != nil {
		return chat.Session{}, false, err
	}
	if !found {
		if err := s.store.RecordActivity(ctx, childID, now, true); err != nil {
			return chat.Session{}, false, err
		}
		return chat.Session{}, false, nil
	}

	duration := now.Sub(session.CreatedAt)
	if err := s.store.CompleteSession(ctx, session.ID, now, duration); err != nil {
		return chat.Session{}, false, err
	}
	if err := s.store.RecordActivity(ctx, childID, now, false); err != nil {
		s.logger.Warn("recording activity failed", zap.String("child_id", childID), zap.Error(err))
	}

	session.Status = chat.StatusCompleted
	session.CompletedAt = &now
	session.DurationSeconds = int64(duration.Seconds())
	return session, true, nil
}

// Transcript exposes a session's ordered messages.
func (s *Service) Transcript(ctx context.Context, sessionID string) ([]chat.Message, error) {
	return s.store.Transcript(ctx, sessionID)
}

// ActiveSession exposes the child's current active session, if any.
func (s *Service) ActiveSession(ctx context.Context, childID string) (chat.Session, bool, error) {
	return s.store.ActiveSession(ctx, childID)
}

// List returns one page of the child's sessions, newest first.
func (s *Service) List(ctx context.Context, childID string, page, perPage int) ([]chat.Session, int, error) {
	return s.store.ListSessions(ctx, childID, page, perPage)
}

func fullTranscriptText(messages []chat.Message) string {
	var parts []string
	for _, msg := range messages {
		parts = append(parts, fmt.Sprintf("%s: %s", msg.Sender, msg.Content))
	}
	return strings.Join(parts, "\n")
}
