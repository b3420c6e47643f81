package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/havenkids/haven/backend/internal/model/chat"
)

// ErrSessionNotFound is returned when a session id resolves to nothing.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore holds the persistence primitives for sessions and messages.
// It performs no locking; the per-child serialization lives in the session
// service that owns the single-active-session invariant.
type SessionStore struct {
	db *DB
}

// NewSessionStore returns a SessionStore over db.
func NewSessionStore(db *DB) *SessionStore {
	return &SessionStore{db: db}
}

// ActiveSession returns the active session for a child, if one exists. The
// schema does not prevent duplicates; when a race ever produced more than
// one, the oldest wins so the duplicate drains naturally.
func (s *SessionStore) ActiveSession(ctx context.Context, childID string) (chat.Session, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, child_id, status, mood, topics, created_at, last_activity_at, completed_at, duration_seconds
		FROM sessions WHERE child_id = ? AND status = ? ORDER BY created_at ASC LIMIT 1`,
		childID, chat.StatusActive)

	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Session{}, false, nil
	}
	if err != nil {
		return chat.Session{}, false, err
	}
	return session, true, nil
}

// SessionByID loads one session without its transcript.
func (s *SessionStore) SessionByID(ctx context.Context, id string) (chat.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, child_id, status, mood, topics, created_at, last_activity_at, completed_at, duration_seconds
		FROM sessions WHERE id = ?`, id)

	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Session{}, ErrSessionNotFound
	}
	return session, err
}

// CreateSession inserts a new session row.
func (s *SessionStore) CreateSession(ctx context.Context, session chat.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, child_id, status, mood, topics, created_at, last_activity_at, duration_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)`,
		session.ID, session.ChildID, session.Status,
		encodeMood(session.Mood), encodeStringList(session.Topics),
		session.CreatedAt.Unix(), session.LastActivityAt.Unix())
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// InsertMessage appends one message. Append order is the rowid order.
func (s *SessionStore) InsertMessage(ctx context.Context, msg chat.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, sender, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, msg.Sender, msg.Content, msg.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// Transcript returns the full ordered message list of a session.
func (s *SessionStore) Transcript(ctx context.Context, sessionID string) ([]chat.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, sender, content, created_at
		FROM messages WHERE session_id = ? ORDER BY rowid ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	defer rows.Close()

	var messages []chat.Message
	for rows.Next() {
		var msg chat.Message
		var created int64
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Sender, &msg.Content, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.CreatedAt = time.Unix(created, 0).UTC()
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// MessageCount returns the number of messages in a session.
func (s *SessionStore) MessageCount(ctx context.Context, sessionID string) (int, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

// SetAnalysis stamps recomputed mood and topics onto a session.
func (s *SessionStore) SetAnalysis(ctx context.Context, sessionID string, mood *chat.MoodScore, topics []string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET mood = ?, topics = ? WHERE id = ?`,
		encodeMood(mood), encodeStringList(topics), sessionID)
	if err != nil {
		return fmt.Errorf("set analysis: %w", err)
	}
	return nil
}

// TouchSession updates a session's last-activity stamp.
func (s *SessionStore) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET last_activity_at = ? WHERE id = ?`, at.Unix(), sessionID)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// CompleteSession transitions a session to completed with stamped duration.
func (s *SessionStore) CompleteSession(ctx context.Context, sessionID string, at time.Time, duration time.Duration) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET status = ?, completed_at = ?, duration_seconds = ?
		WHERE id = ? AND status = ?`,
		chat.StatusCompleted, at.Unix(), int64(duration.Seconds()), sessionID, chat.StatusActive)
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	if affected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// ListSessions returns one page of a child's sessions, newest first, plus
// the total count.
func (s *SessionStore) ListSessions(ctx context.Context, childID string, page, perPage int) ([]chat.Session, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE child_id = ?`, childID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, child_id, status, mood, topics, created_at, last_activity_at, completed_at, duration_seconds
		FROM sessions WHERE child_id = ?
		ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		childID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []chat.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, 0, err
		}
		sessions = append(sessions, session)
	}
	return sessions, total, rows.Err()
}

// RecordActivity stamps per-child last activity. The noConversation flag
// distinguishes an idle completion from a conversational one.
func (s *SessionStore) RecordActivity(ctx context.Context, childID string, at time.Time, noConversation bool) error {
	flag := 0
	if noConversation {
		flag = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity (child_id, last_activity_at, no_conversation) VALUES (?, ?, ?)
		ON CONFLICT(child_id) DO UPDATE SET last_activity_at = excluded.last_activity_at,
			no_conversation = excluded.no_conversation`,
		childID, at.Unix(), flag)
	if err != nil {
		return fmt.Errorf("record activity: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (chat.Session, error) {
	var session chat.Session
	var mood, topics sql.NullString
	var created, lastActivity int64
	var completed sql.NullInt64

	err := row.Scan(&session.ID, &session.ChildID, &session.Status, &mood, &topics,
		&created, &lastActivity, &completed, &session.DurationSeconds)
	if err != nil {
		return chat.Session{}, err
	}

	session.CreatedAt = time.Unix(created, 0).UTC()
	session.LastActivityAt = time.Unix(lastActivity, 0).UTC()
	if completed.Valid {
		t := time.Unix(completed.Int64, 0).UTC()
		session.CompletedAt = &t
	}
	if mood.Valid && mood.String != "" {
		var m chat.MoodScore
		if err := json.Unmarshal([]byte(mood.String), &m); err == nil {
			session.Mood = &m
		}
	}
	session.Topics = decodeStringList(topics)
	return session, nil
}

func encodeMood(mood *chat.MoodScore) string {
	if mood == nil {
		return ""
	}
	data, err := json.Marshal(mood)
	if err != nil {
		return ""
	}
	return string(data)
}
