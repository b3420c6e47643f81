package stream

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	chatmodel "github.com/havenkids/haven/backend/internal/model/chat"
	"github.com/havenkids/haven/backend/internal/model/child"
	"github.com/havenkids/haven/backend/internal/service/ai"
	"github.com/havenkids/haven/backend/internal/service/engine"
)

type fakeGate struct{}

func (fakeGate) Allow(context.Context, string) (bool, error) { return true, nil }

type fakeProfiles struct{}

func (fakeProfiles) FindByID(context.Context, string) (child.Profile, bool, error) {
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

type fakeCompleter struct{ chunks []string }

func (c fakeCompleter) Reply(context.Context, ai.Mode, string, []chatmodel.Message, string) (string, error) {
	return strings.Join(c.chunks, ""), nil
}

func (c fakeCompleter) Stream(context.Context, string, []chatmodel.Message, string) (*schema.StreamReader[*schema.Message], error) {
	msgs := make([]*schema.Message, 0, len(c.chunks))
	for _, chunk := range c.chunks {
		msgs = append(msgs, schema.AssistantMessage(chunk, nil))
	}
	return schema.StreamReaderFromArray(msgs), nil
}

func (fakeCompleter) StreamingEnabled() bool { return true }

type fakeSessions struct{}

func (fakeSessions) AppendTurn(_ context.Context, childID, _, _ string, _ int) (chatmodel.Session, error) {
	return chatmodel.Session{ID: "sess-1", ChildID: childID, Status: chatmodel.StatusActive}, nil
}

func (fakeSessions) AppendCrisisTurn(_ context.Context, childID, _, _ string, _ chatmodel.MoodScore) (chatmodel.Session, error) {
	return chatmodel.Session{ID: "sess-1", ChildID: childID, Status: chatmodel.StatusActive}, nil
}

func (fakeSessions) CompleteActive(context.Context, string) (chatmodel.Session, bool, error) {
	return chatmodel.Session{}, false, nil
}

func (fakeSessions) ActiveSession(context.Context, string) (chatmodel.Session, bool, error) {
	return chatmodel.Session{}, false, nil
}

func (fakeSessions) Transcript(context.Context, string) ([]chatmodel.Message, error) {
	return nil, nil
}

func (fakeSessions) List(context.Context, string, int, int) ([]chatmodel.Session, int, error) {
	return nil, 0, nil
}

func newTestHandler(chunks []string) *Handler {
	engineSvc := engine.NewService(
		fakeGate{},
		fakeProfiles{},
		fakeComposer{},
		fakeAnalyzer{},
		fakeCompleter{chunks: chunks},
		fakeSessions{},
		nil,
		nil,
		nil,
		nil,
		zap.NewNop(),
	)
	return New(engineSvc, zap.NewNop())
}

func TestStreamEmitsChunksAndNamedEndEvent(t *testing.T) {
	h := newTestHandler([]string{"hello ", "there"})
	resp := httptest.NewRecorder()

	if err := h.HandleStreamRequest(context.Background(), resp, "child-1", "hi"); err != nil {
		t.Fatalf("HandleStreamRequest err: %v", err)
	}

	body := resp.Body.String()
	if !strings.Contains(body, `"content":"hello "`) || !strings.Contains(body, `"content":"there"`) {
		t.Fatalf("expected reply chunks in stream, got %q", body)
	}
	if !strings.Contains(body, "event: end\n") {
		t.Fatalf("expected a named end event, got %q", body)
	}
	if resp.Header().Get("Content-Type") != "text/event-stream" {
		t.Fatalf("unexpected content type %q", resp.Header().Get("Content-Type"))
	}
}

func TestStreamCrisisSendsSafeReplyAsSingleChunk(t *testing.T) {
	h := newTestHandler([]string{"should never be used"})
	resp := httptest.NewRecorder()

	if err := h.HandleStreamRequest(context.Background(), resp, "child-1", "I want to hurt myself"); err != nil {
		t.Fatalf("HandleStreamRequest err: %v", err)
	}

	body := resp.Body.String()
	if strings.Contains(body, "should never be used") {
		t.Fatalf("model output must not appear on a crisis turn: %q", body)
	}
	if !strings.Contains(body, `"crisisFlag":true`) {
		t.Fatalf("expected crisis flag on the end frame, got %q", body)
	}
}

func TestStreamEmptyReplyEmitsErrorEvent(t *testing.T) {
	h := newTestHandler(nil)
	resp := httptest.NewRecorder()

	if err := h.HandleStreamRequest(context.Background(), resp, "child-1", "hi"); err == nil {
		t.Fatal("expected an error for an empty streamed reply")
	}

	if !strings.Contains(resp.Body.String(), "event: error\n") {
		t.Fatalf("expected a named error event, got %q", resp.Body.String())
	}
}
