package mood

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/havenkids/haven/backend/internal/model/chat"
)

// scriptedModel returns a fixed completion and counts invocations.
type scriptedModel struct {
	content string
	calls   atomic.Int64
}

func (m *scriptedModel) Generate(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.calls.Add(1)
	return schema.AssistantMessage(m.content, nil), nil
}

func (m *scriptedModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	m.calls.Add(1)
	return schema.StreamReaderFromArray([]*schema.Message{schema.AssistantMessage(m.content, nil)}), nil
}

func (m *scriptedModel) BindTools(_ []*schema.ToolInfo) error { return nil }

func newTestService(t *testing.T, content string) (*Service, *scriptedModel) {
	t.Helper()
	fake := &scriptedModel{content: content}
	svc, err := NewService(context.Background(), fake, NewCache(100, 5*time.Minute), zap.NewNop())
	if err != nil {
		t.Fatalf("NewService err: %v", err)
	}
	return svc, fake
}

func TestAnalyzeMoodParsesAndClamps(t *testing.T) {
	svc, _ := newTestService(t, `{"happiness":14,"anxiety":0,"sadness":3,"stress":7,"confidence":5,"insight":"feeling mixed"}`)

	score := svc.AnalyzeMood(context.Background(), "today was weird", 9)
	if score.Happiness != 10 {
		t.Fatalf("expected happiness clamped to 10, got %d", score.Happiness)
	}
	if score.Anxiety != 1 {
		t.Fatalf("expected anxiety clamped to 1, got %d", score.Anxiety)
	}
	if score.Insight != "feeling mixed" {
		t.Fatalf("unexpected insight: %q", score.Insight)
	}
}

func TestAnalyzeMoodMemoized(t *testing.T) {
	svc, fake := newTestService(t, `{"happiness":8,"anxiety":2,"sadness":2,"stress":3,"confidence":7,"insight":"cheerful"}`)
	ctx := context.Background()

	first := svc.AnalyzeMood(ctx, "I made a new friend at school today", 8)
	second := svc.AnalyzeMood(ctx, "I made a new friend at school today", 8)

	if first != second {
		t.Fatalf("expected identical scores within cache window: %+v vs %+v", first, second)
	}
	if got := fake.calls.Load(); got != 1 {
		t.Fatalf("expected exactly one model call, got %d", got)
	}

	// Different age discriminator must miss the cache.
	svc.AnalyzeMood(ctx, "I made a new friend at school today", 13)
	if got := fake.calls.Load(); got != 2 {
		t.Fatalf("expected second model call for different age, got %d", got)
	}
}

func TestAnalyzeMoodFallsBackOnGarbage(t *testing.T) {
	svc, _ := newTestService(t, "sorry, I cannot help with that")

	score := svc.AnalyzeMood(context.Background(), "hello", 10)
	want := chat.NeutralMood(FallbackInsight)
	if score != want {
		t.Fatalf("expected neutral fallback, got %+v", score)
	}
}

func TestAnalyzeMoodDisabledService(t *testing.T) {
	svc, err := NewService(context.Background(), nil, NewCache(10, time.Minute), zap.NewNop())
	if err != nil {
		t.Fatalf("NewService err: %v", err)
	}
	score := svc.AnalyzeMood(context.Background(), "anything", 7)
	if score.Happiness != 5 || score.Confidence != 5 {
		t.Fatalf("expected neutral scores, got %+v", score)
	}
}

func TestExtractTopics(t *testing.T) {
	svc, _ := newTestService(t, `{"topics":["school","friendship"]}`)
	topics := svc.ExtractTopics(context.Background(), "my friend at school")
	if len(topics) != 2 || topics[0] != "school" || topics[1] != "friendship" {
		t.Fatalf("unexpected topics: %v", topics)
	}
}

func TestExtractTopicsFallback(t *testing.T) {
	svc, _ := newTestService(t, `{"topics":[]}`)
	topics := svc.ExtractTopics(context.Background(), "hmm")
	if len(topics) != 1 || topics[0] != FallbackTopic {
		t.Fatalf("expected fallback topic, got %v", topics)
	}
}

func TestCacheEviction(t *testing.T) {
	cache := NewCache(3, time.Minute)
	base := time.Now()
	step := 0
	cache.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	}

	for _, key := range []string{"a", "b", "c", "d"} {
		cache.Put(key, chat.NeutralMood(""))
	}
	if cache.Len() != 3 {
		t.Fatalf("expected cache bounded to 3 entries, got %d", cache.Len())
	}
	if _, ok := cache.Get("a"); ok {
		t.Fatal("expected oldest entry evicted")
	}
	if _, ok := cache.Get("d"); !ok {
		t.Fatal("expected newest entry retained")
	}
}

func TestCacheExpiry(t *testing.T) {
	cache := NewCache(10, time.Minute)
	current := time.Now()
	cache.now = func() time.Time { return current }

	cache.Put("k", chat.NeutralMood("x"))
	if _, ok := cache.Get("k"); !ok {
		t.Fatal("expected fresh entry present")
	}

	current = current.Add(2 * time.Minute)
	if _, ok := cache.Get("k"); ok {
		t.Fatal("expected entry expired after ttl")
	}
}

func TestKeyUsesFirst100Characters(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	a := Key(string(long), 9)
	b := Key(string(long[:100]), 9)
	if a != b {
		t.Fatal("expected key to depend only on the first 100 characters")
	}
	if Key("same", 8) == Key("same", 9) {
		t.Fatal("expected age to split the key space")
	}
}
