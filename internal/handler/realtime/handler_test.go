package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/havenkids/haven/backend/internal/model/chat"
	"github.com/havenkids/haven/backend/internal/service/realtime"
)

type fakeProvider struct{}

func (fakeProvider) CreateSession(context.Context, string) (realtime.ProviderSession, error) {
	return realtime.ProviderSession{ID: "rt-1", ClientSecret: "secret"}, nil
}

func (fakeProvider) ForwardOffer(context.Context, string, string) (string, error) {
	return "v=0 answer", nil
}

type fakeComposer struct{}

func (fakeComposer) Compose(context.Context, string, string) string { return "context" }
func (fakeComposer) ProfileContext(context.Context, string) string  { return "profile" }

type fakeSessions struct{}

func (fakeSessions) AppendUserMessage(_ context.Context, childID, _ string) (chat.Session, error) {
	return chat.Session{ID: "chat-1", ChildID: childID, Status: chat.StatusActive}, nil
}

func (fakeSessions) AppendAssistantMessage(context.Context, string, string) error { return nil }

func (fakeSessions) AppendCrisisTurn(_ context.Context, childID, _, _ string, _ chat.MoodScore) (chat.Session, error) {
	return chat.Session{ID: "chat-1", ChildID: childID, Status: chat.StatusActive}, nil
}

func setupRouter() *chi.Mux {
	router := realtime.NewRouter(fakeProvider{}, fakeComposer{}, fakeSessions{}, zap.NewNop())
	handler := New(router, zap.NewNop())

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r
}

func postEvent(t *testing.T, r http.Handler, name string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	raw, _ := json.Marshal(payload)
	body, _ := json.Marshal(map[string]any{"name": name, "payload": json.RawMessage(raw)})

	req := httptest.NewRequest(http.MethodPost, "/realtime/event", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestHandleEventCreateSession(t *testing.T) {
	r := setupRouter()

	resp := postEvent(t, r, "create_session", map[string]string{"childId": "child-1"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var body struct {
		Result struct {
			SessionID    string `json:"sessionId"`
			ClientSecret string `json:"clientSecret"`
		} `json:"result"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Result.SessionID != "rt-1" || body.Result.ClientSecret != "secret" {
		t.Fatalf("unexpected result %+v", body.Result)
	}
}

func TestHandleEventUnknownName(t *testing.T) {
	r := setupRouter()

	resp := postEvent(t, r, "drop_tables", map[string]string{})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown event, got %d", resp.Code)
	}
}

func TestHandleEventUnknownSession(t *testing.T) {
	r := setupRouter()

	resp := postEvent(t, r, "send_sdp_offer", map[string]string{"sessionId": "missing", "sdp": "v=0"})
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", resp.Code)
	}
}

func TestHandleEventStoreUserMessage(t *testing.T) {
	r := setupRouter()

	resp := postEvent(t, r, "store_user_message", map[string]string{"childId": "child-1", "content": "hello"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body struct {
		Result struct {
			ChatSessionID  string `json:"chatSessionId"`
			CrisisDetected bool   `json:"crisisDetected"`
		} `json:"result"`
	}
	json.Unmarshal(resp.Body.Bytes(), &body)
	if body.Result.ChatSessionID != "chat-1" || body.Result.CrisisDetected {
		t.Fatalf("unexpected result %+v", body.Result)
	}
}

func TestHandleEventMalformedBody(t *testing.T) {
	r := setupRouter()

	req := httptest.NewRequest(http.MethodPost, "/realtime/event", bytes.NewReader([]byte("{nope")))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
