package mood

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/havenkids/haven/backend/internal/model/chat"
)

// FallbackInsight is the fixed insight text used when analysis is
// unavailable.
const FallbackInsight = "Mood analysis unavailable for this message."

// FallbackTopic is the fixed topic used when extraction is unavailable.
const FallbackTopic = "General conversation"

// Service derives structured mood scores and topic tags from raw text with
// one completion call each. Every failure degrades to a fixed neutral result;
// callers never see an error.
type Service struct {
	enabled    bool
	moodChain  compose.Runnable[map[string]any, *schema.Message]
	topicChain compose.Runnable[map[string]any, *schema.Message]
	cache      *Cache
	logger     *zap.Logger
}

// NewService compiles the mood and topic classifier chains. A nil chatModel
// yields a service that always answers with the neutral fallback.
func NewService(ctx context.Context, chatModel model.ChatModel, cache *Cache, logger *zap.Logger) (*Service, error) {
	svc := &Service{
		enabled: chatModel != nil,
		cache:   cache,
		logger:  logger,
	}

	if !svc.enabled {
		return svc, nil
	}

	moodTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(moodSystemPrompt),
		schema.UserMessage(moodUserPrompt),
	)
	moodChain := compose.NewChain[map[string]any, *schema.Message]()
	moodChain.AppendChatTemplate(moodTemplate)
	moodChain.AppendChatModel(chatModel)
	moodRunnable, err := moodChain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile mood chain: %w", err)
	}
	svc.moodChain = moodRunnable

	topicTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(topicSystemPrompt),
		schema.UserMessage(topicUserPrompt),
	)
	topicChain := compose.NewChain[map[string]any, *schema.Message]()
	topicChain.AppendChatTemplate(topicTemplate)
	topicChain.AppendChatModel(chatModel)
	topicRunnable, err := topicChain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile topic chain: %w", err)
	}
	svc.topicChain = topicRunnable

	return svc, nil
}

// AnalyzeMood scores text across five bounded dimensions. Identical
// (text, age) pairs within the cache window return the cached score without
// a second model call.
func (s *Service) AnalyzeMood(ctx context.Context, text string, age int) chat.MoodScore {
	key := Key(text, age)
	if s.cache != nil {
		if score, ok := s.cache.Get(key); ok {
			return score
		}
	}

	score := s.analyzeMoodUncached(ctx, text, age)
	if s.cache != nil {
		s.cache.Put(key, score)
	}
	return score
}

func (s *Service) analyzeMoodUncached(ctx context.Context, text string, age int) chat.MoodScore {
	if !s.enabled {
		return chat.NeutralMood(FallbackInsight)
	}

	msg, err := s.moodChain.Invoke(ctx, map[string]any{
		"text": strings.TrimSpace(text),
		"age":  age,
	})
	if err != nil {
		s.logger.Warn("mood classifier call failed, using neutral fallback", zap.Error(err))
		return chat.NeutralMood(FallbackInsight)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return chat.NeutralMood(FallbackInsight)
	}

	payload, err := extractJSON(msg.Content)
	if err != nil {
		s.logger.Warn("mood classifier output unparseable, using neutral fallback", zap.Error(err))
		return chat.NeutralMood(FallbackInsight)
	}

	var parsed moodPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		s.logger.Warn("mood classifier output invalid json, using neutral fallback", zap.Error(err))
		return chat.NeutralMood(FallbackInsight)
	}

	score := chat.MoodScore{
		Happiness:  parsed.Happiness,
		Anxiety:    parsed.Anxiety,
		Sadness:    parsed.Sadness,
		Stress:     parsed.Stress,
		Confidence: parsed.Confidence,
		Insight:    strings.TrimSpace(parsed.Insight),
	}
	score.Clamp()
	if score.Insight == "" {
		score.Insight = FallbackInsight
	}
	return score
}

// ExtractTopics tags text with conversation topics. Falls back to the fixed
// general topic on any failure.
func (s *Service) ExtractTopics(ctx context.Context, text string) []string {
	if !s.enabled {
		return []string{FallbackTopic}
	}

	msg, err := s.topicChain.Invoke(ctx, map[string]any{
		"text": strings.TrimSpace(text),
	})
	if err != nil {
		s.logger.Warn("topic extractor call failed, using fallback", zap.Error(err))
		return []string{FallbackTopic}
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return []string{FallbackTopic}
	}

	payload, err := extractJSON(msg.Content)
	if err != nil {
		s.logger.Warn("topic extractor output unparseable, using fallback", zap.Error(err))
		return []string{FallbackTopic}
	}

	var parsed topicPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		s.logger.Warn("topic extractor output invalid json, using fallback", zap.Error(err))
		return []string{FallbackTopic}
	}

	var topics []string
	for _, topic := range parsed.Topics {
		if trimmed := strings.TrimSpace(topic); trimmed != "" {
			topics = append(topics, trimmed)
		}
	}
	if len(topics) == 0 {
		return []string{FallbackTopic}
	}
	return topics
}

// extractJSON pulls the first JSON object out of model output that may be
// wrapped in prose or code fences.
func extractJSON(content string) ([]byte, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("missing json object")
	}
	return []byte(trimmed[start : end+1]), nil
}

type moodPayload struct {
	Happiness  int    `json:"happiness"`
	Anxiety    int    `json:"anxiety"`
	Sadness    int    `json:"sadness"`
	Stress     int    `json:"stress"`
	Confidence int    `json:"confidence"`
	Insight    string `json:"insight"`
}

type topicPayload struct {
	Topics []string `json:"topics"`
}

const moodSystemPrompt = "You are a child-wellbeing analyst. Read the child's message and score " +
	"their current emotional state. Return exactly one JSON object with integer fields " +
	"happiness, anxiety, sadness, stress, confidence (each between 1 and 10) and a short " +
	"string field insight summarizing the emotional state in plain language a parent could read. " +
	"Return nothing but the JSON object."

const moodUserPrompt = "Child's age: {age}\n\nChild's message:\n{text}\n\nReturn the JSON object."

const topicSystemPrompt = "You extract conversation topics from a child's message. Return exactly " +
	"one JSON object of the form {{\"topics\": [\"...\"]}} with between one and five short topic " +
	"labels. Return nothing but the JSON object."

const topicUserPrompt = "Child's message:\n{text}\n\nReturn the JSON object."
