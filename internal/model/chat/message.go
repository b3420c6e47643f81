package chat

import "time"

// Sender identifies which side of the conversation produced a message.
type Sender string

const (
	SenderChild     Sender = "child"
	SenderAssistant Sender = "assistant"
)

// Message persists one side of a turn. Messages are immutable once appended
// and keep their append order.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Sender    Sender    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// MoodScore is the structured sentiment snapshot derived for a text. Every
// dimension is bounded to [1,10] before it is trusted anywhere.
type MoodScore struct {
	Happiness      int    `json:"happiness"`
	Anxiety        int    `json:"anxiety"`
	Sadness        int    `json:"sadness"`
	Stress         int    `json:"stress"`
	Confidence     int    `json:"confidence"`
	Insight        string `json:"insight,omitempty"`
	CrisisDetected bool   `json:"crisisDetected,omitempty"`
}

// Clamp forces every dimension into the [1,10] range in place.
func (m *MoodScore) Clamp() {
	m.Happiness = clampScore(m.Happiness)
	m.Anxiety = clampScore(m.Anxiety)
	m.Sadness = clampScore(m.Sadness)
	m.Stress = clampScore(m.Stress)
	m.Confidence = clampScore(m.Confidence)
}

func clampScore(v int) int {
	if v < 1 {
		return 1
	}
	if v > 10 {
		return 10
	}
	return v
}

// NeutralMood is the fixed fallback when mood analysis is unavailable.
func NeutralMood(insight string) MoodScore {
	return MoodScore{
		Happiness:  5,
		Anxiety:    5,
		Sadness:    5,
		Stress:     5,
		Confidence: 5,
		Insight:    insight,
	}
}
