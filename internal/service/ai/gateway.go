package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/havenkids/haven/backend/internal/model/chat"
)

// Mode selects the response budget for a completion request. Voice
// replies are kept short because they are read aloud.
type Mode string

const (
	ModeChat  Mode = "chat"
	ModeVoice Mode = "voice"
)

// historyLimit caps the conversation history sent to the model at the
// most recent eight turns.
const historyLimit = 16

const voiceDirective = "This reply will be spoken aloud by a voice assistant. " +
	"Keep it to two or three short sentences, use simple spoken language, " +
	"and avoid lists, markdown, or anything that reads poorly out loud."

// ErrEmptyReply is returned when the model produces no usable text.
var ErrEmptyReply = errors.New("model returned an empty reply")

// Gateway wraps the completion provider behind mode-specific chains so
// the rest of the backend never touches provider types directly.
type Gateway struct {
	chatChain  compose.Runnable[map[string]any, *schema.Message]
	voiceChain compose.Runnable[map[string]any, *schema.Message]
	streaming  bool
	logger     *zap.Logger
}

// NewGateway compiles one chain per mode. The two chains share the
// prompt layout and differ only in the underlying model's token budget.
func NewGateway(ctx context.Context, chatModel, voiceModel model.ChatModel, streaming bool, logger *zap.Logger) (*Gateway, error) {
	chatChain, err := compileChain(ctx, chatModel)
	if err != nil {
		return nil, fmt.Errorf("compile chat chain: %w", err)
	}
	voiceChain, err := compileChain(ctx, voiceModel)
	if err != nil {
		return nil, fmt.Errorf("compile voice chain: %w", err)
	}

	return &Gateway{
		chatChain:  chatChain,
		voiceChain: voiceChain,
		streaming:  streaming,
		logger:     logger,
	}, nil
}

func compileChain(ctx context.Context, chatModel model.ChatModel) (compose.Runnable[map[string]any, *schema.Message], error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	return chain.Compile(ctx)
}

// StreamingEnabled reports whether streamed replies are configured.
func (g *Gateway) StreamingEnabled() bool {
	return g.streaming
}

// Reply generates a complete response for one conversation turn.
func (g *Gateway) Reply(ctx context.Context, mode Mode, system string, history []chat.Message, userMessage string) (string, error) {
	input := buildChainInput(mode, system, history, userMessage)

	response, err := g.chain(mode).Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("run completion chain: %w", err)
	}

	text := strings.TrimSpace(response.Content)
	if text == "" {
		return "", ErrEmptyReply
	}

	g.logger.Debug("generated reply",
		zap.String("mode", string(mode)),
		zap.Int("length", len(text)))
	return text, nil
}

// Stream returns the model's response as a chunk stream. Only the chat
// mode streams; voice replies are synthesized from complete text.
func (g *Gateway) Stream(ctx context.Context, system string, history []chat.Message, userMessage string) (*schema.StreamReader[*schema.Message], error) {
	if !g.streaming {
		return nil, fmt.Errorf("streaming disabled in configuration")
	}

	input := buildChainInput(ModeChat, system, history, userMessage)

	stream, err := g.chatChain.Stream(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("stream completion chain: %w", err)
	}
	return stream, nil
}

func (g *Gateway) chain(mode Mode) compose.Runnable[map[string]any, *schema.Message] {
	if mode == ModeVoice {
		return g.voiceChain
	}
	return g.chatChain
}

func buildChainInput(mode Mode, system string, history []chat.Message, userMessage string) map[string]any {
	if mode == ModeVoice {
		system = system + "\n\n" + voiceDirective
	}
	return map[string]any{
		"system":  system,
		"history": buildHistoryMessages(history),
		"query":   userMessage,
	}
}

func buildHistoryMessages(messages []chat.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	startIdx := 0
	if len(messages) > historyLimit {
		startIdx = len(messages) - historyLimit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		switch msg.Sender {
		case chat.SenderChild:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.SenderAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}

	return history
}
