package realtime

import "time"

// Stage tracks how far a realtime handshake has progressed.
type Stage string

const (
	// StageCreated means the provider channel exists but no SDP exchange
	// has happened yet.
	StageCreated Stage = "created"
	// StageNegotiated means the SDP answer has been returned to the client.
	StageNegotiated Stage = "negotiated"
	// StageStreaming means at least one user message has flowed through the
	// channel and a chat session is attached.
	StageStreaming Stage = "streaming"
)

// Session is the ephemeral handshake state for one voice connection. It is
// not persisted; it lives only for the duration of the negotiation.
type Session struct {
	ID            string    `json:"id"`
	ChildID       string    `json:"childId"`
	ChatSessionID string    `json:"chatSessionId,omitempty"`
	Stage         Stage     `json:"stage"`
	CreatedAt     time.Time `json:"createdAt"`
}
