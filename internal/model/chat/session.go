package chat

import "time"

// Status marks where a session is in its lifecycle.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Session captures one continuous conversational encounter for a child.
// At most one session per child may be active at any time.
type Session struct {
	ID              string     `json:"id"`
	ChildID         string     `json:"childId"`
	Status          Status     `json:"status"`
	Mood            *MoodScore `json:"mood,omitempty"`
	Topics          []string   `json:"topics,omitempty"`
	Messages        []Message  `json:"messages,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	LastActivityAt  time.Time  `json:"lastActivityAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	DurationSeconds int64      `json:"durationSeconds,omitempty"`
}

// Active reports whether the session still accepts turns.
func (s Session) Active() bool {
	return s.Status == StatusActive
}
