package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	chatmodel "github.com/havenkids/haven/backend/internal/model/chat"
	"github.com/havenkids/haven/backend/internal/model/child"
	"github.com/havenkids/haven/backend/internal/service/ai"
	"github.com/havenkids/haven/backend/internal/service/engine"
)

type fakeGate struct{ allow bool }

func (g fakeGate) Allow(context.Context, string) (bool, error) { return g.allow, nil }

type fakeProfiles struct{}

func (fakeProfiles) FindByID(_ context.Context, id string) (child.Profile, bool, error) {
	return child.Profile{}, false, nil
}

type fakeComposer struct{}

func (fakeComposer) Compose(context.Context, string, string) string { return "be warm" }

type fakeAnalyzer struct{}

func (fakeAnalyzer) AnalyzeMood(context.Context, string, int) chatmodel.MoodScore {
	return chatmodel.NeutralMood("steady")
}

func (fakeAnalyzer) ExtractTopics(context.Context, string) []string {
	return []string{"General conversation"}
}

type fakeCompleter struct{ reply string }

func (c fakeCompleter) Reply(context.Context, ai.Mode, string, []chatmodel.Message, string) (string, error) {
	return c.reply, nil
}

func (c fakeCompleter) Stream(context.Context, string, []chatmodel.Message, string) (*schema.StreamReader[*schema.Message], error) {
	return schema.StreamReaderFromArray([]*schema.Message{schema.AssistantMessage(c.reply, nil)}), nil
}

func (fakeCompleter) StreamingEnabled() bool { return false }

type fakeSessions struct{}

func (fakeSessions) AppendTurn(_ context.Context, childID, _, _ string, _ int) (chatmodel.Session, error) {
	return chatmodel.Session{ID: "sess-1", ChildID: childID, Status: chatmodel.StatusActive}, nil
}

func (fakeSessions) AppendCrisisTurn(_ context.Context, childID, _, _ string, _ chatmodel.MoodScore) (chatmodel.Session, error) {
	return chatmodel.Session{ID: "sess-1", ChildID: childID, Status: chatmodel.StatusActive}, nil
}

func (fakeSessions) CompleteActive(context.Context, string) (chatmodel.Session, bool, error) {
	return chatmodel.Session{ID: "sess-1", Status: chatmodel.StatusCompleted}, true, nil
}

func (fakeSessions) ActiveSession(context.Context, string) (chatmodel.Session, bool, error) {
	return chatmodel.Session{}, false, nil
}

func (fakeSessions) Transcript(context.Context, string) ([]chatmodel.Message, error) {
	return nil, nil
}

func (fakeSessions) List(context.Context, string, int, int) ([]chatmodel.Session, int, error) {
	return []chatmodel.Session{{ID: "sess-1", Status: chatmodel.StatusCompleted}}, 1, nil
}

func setupRouter(allow bool) *chi.Mux {
	engineSvc := engine.NewService(
		fakeGate{allow: allow},
		fakeProfiles{},
		fakeComposer{},
		fakeAnalyzer{},
		fakeCompleter{reply: "hello there"},
		fakeSessions{},
		nil,
		nil,
		nil,
		nil,
		zap.NewNop(),
	)
	handler := New(engineSvc)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r
}

func TestHandleChat(t *testing.T) {
	r := setupRouter(true)
	payload, _ := json.Marshal(map[string]string{"childId": "child-1", "message": "hi"})

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var result struct {
		Reply      string `json:"reply"`
		CrisisFlag bool   `json:"crisisFlag"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.Reply != "hello there" {
		t.Fatalf("unexpected reply %q", result.Reply)
	}
	if result.CrisisFlag {
		t.Fatal("unexpected crisis flag")
	}
}

func TestHandleChatCrisis(t *testing.T) {
	r := setupRouter(true)
	payload, _ := json.Marshal(map[string]string{"childId": "child-1", "message": "I want to hurt myself"})

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(payload))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var result struct {
		Reply      string `json:"reply"`
		CrisisFlag bool   `json:"crisisFlag"`
	}
	json.Unmarshal(resp.Body.Bytes(), &result)
	if !result.CrisisFlag {
		t.Fatal("expected crisis flag")
	}
	if result.Reply == "hello there" {
		t.Fatal("crisis turn must not reach the model")
	}
}

func TestHandleChatUpgradeRequired(t *testing.T) {
	r := setupRouter(false)
	payload, _ := json.Marshal(map[string]string{"childId": "child-1", "message": "hi"})

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(payload))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", resp.Code)
	}
	var result struct {
		UpgradeRequired bool `json:"upgradeRequired"`
	}
	json.Unmarshal(resp.Body.Bytes(), &result)
	if !result.UpgradeRequired {
		t.Fatal("expected upgrade marker in body")
	}
}

func TestHandleChatInvalidBody(t *testing.T) {
	r := setupRouter(true)

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader([]byte("{broken")))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestHandleListSessions(t *testing.T) {
	r := setupRouter(true)

	req := httptest.NewRequest(http.MethodGet, "/sessions/child-1?page=1", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var result struct {
		Total int `json:"total"`
		Page  int `json:"page"`
	}
	json.Unmarshal(resp.Body.Bytes(), &result)
	if result.Total != 1 || result.Page != 1 {
		t.Fatalf("unexpected page data %+v", result)
	}
}

func TestHandleListSessionsBadPage(t *testing.T) {
	r := setupRouter(true)

	req := httptest.NewRequest(http.MethodGet, "/sessions/child-1?page=zero", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestHandleCompleteSession(t *testing.T) {
	r := setupRouter(true)

	req := httptest.NewRequest(http.MethodPost, "/sessions/child-1/complete", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var result struct {
		Completed bool `json:"completed"`
	}
	json.Unmarshal(resp.Body.Bytes(), &result)
	if !result.Completed {
		t.Fatal("expected completed ack")
	}
}
