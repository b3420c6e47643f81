package realtime

import (
	"encoding/json"
	"fmt"
)

// Event is the closed set of realtime actions a client may request.
// Unknown names are rejected in ParseEvent, never dispatched.
type Event interface {
	eventName() string
}

// CreateSession opens a provider-side voice channel for a child.
type CreateSession struct {
	ChildID string `json:"childId"`
}

// SendSDPOffer forwards a session description to the provider and
// returns the answer untouched.
type SendSDPOffer struct {
	SessionID    string `json:"sessionId"`
	ClientSecret string `json:"clientSecret"`
	SDP          string `json:"sdp"`
}

// StoreUserMessage persists one child utterance into the chat session,
// creating the session if none is active.
type StoreUserMessage struct {
	SessionID string `json:"sessionId"`
	ChildID   string `json:"childId"`
	Content   string `json:"content"`
}

// StoreAIResponse persists the assistant half of a turn against the
// chat session returned by the matching StoreUserMessage.
type StoreAIResponse struct {
	SessionID     string `json:"sessionId"`
	ChatSessionID string `json:"chatSessionId"`
	Content       string `json:"content"`
}

// GetChildContext returns the profile rendering for client display.
type GetChildContext struct {
	ChildID string `json:"childId"`
}

func (CreateSession) eventName() string    { return "create_session" }
func (SendSDPOffer) eventName() string     { return "send_sdp_offer" }
func (StoreUserMessage) eventName() string { return "store_user_message" }
func (StoreAIResponse) eventName() string  { return "store_ai_response" }
func (GetChildContext) eventName() string  { return "get_child_context" }

// ParseEvent decodes a named event payload into its variant, validating
// the fields each variant requires.
func ParseEvent(name string, payload json.RawMessage) (Event, error) {
	switch name {
	case "create_session":
		var ev CreateSession
		if err := decode(payload, &ev); err != nil {
			return nil, err
		}
		if ev.ChildID == "" {
			return nil, fmt.Errorf("create_session requires childId")
		}
		return ev, nil

	case "send_sdp_offer":
		var ev SendSDPOffer
		if err := decode(payload, &ev); err != nil {
			return nil, err
		}
		if ev.SessionID == "" || ev.SDP == "" {
			return nil, fmt.Errorf("send_sdp_offer requires sessionId and sdp")
		}
		return ev, nil

	case "store_user_message":
		var ev StoreUserMessage
		if err := decode(payload, &ev); err != nil {
			return nil, err
		}
		if ev.ChildID == "" || ev.Content == "" {
			return nil, fmt.Errorf("store_user_message requires childId and content")
		}
		return ev, nil

	case "store_ai_response":
		var ev StoreAIResponse
		if err := decode(payload, &ev); err != nil {
			return nil, err
		}
		if ev.ChatSessionID == "" || ev.Content == "" {
			return nil, fmt.Errorf("store_ai_response requires chatSessionId and content")
		}
		return ev, nil

	case "get_child_context":
		var ev GetChildContext
		if err := decode(payload, &ev); err != nil {
			return nil, err
		}
		if ev.ChildID == "" {
			return nil, fmt.Errorf("get_child_context requires childId")
		}
		return ev, nil

	default:
		return nil, fmt.Errorf("unknown realtime event %q", name)
	}
}

func decode(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return fmt.Errorf("missing event payload")
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("malformed event payload: %w", err)
	}
	return nil
}
