package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config aggregates every configurable section of the service.
type Config struct {
	Server    ServerConfig
	AI        AIConfig
	Store     StoreConfig
	Embedding EmbeddingConfig
	Speech    SpeechConfig
	Realtime  RealtimeConfig
	Billing   BillingConfig
}

// Load reads the full configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	store := StoreConfig{
		Path: getEnvOrDefault("STORE_PATH", "data/haven.db"),
	}

	embedding := EmbeddingConfig{
		BaseURL: getEnvOrDefault("EMBEDDING_BASE_URL", "http://localhost:11434"),
		Model:   getEnvOrDefault("EMBEDDING_MODEL", "nomic-embed-text"),
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	realtime := RealtimeConfig{
		BaseURL: strings.TrimSpace(os.Getenv("REALTIME_BASE_URL")),
		APIKey:  strings.TrimSpace(os.Getenv("REALTIME_API_KEY")),
		Model:   getEnvOrDefault("REALTIME_MODEL", "realtime-voice-1"),
		Voice:   getEnvOrDefault("REALTIME_VOICE", "warm"),
	}

	billing := BillingConfig{
		StripeKey: strings.TrimSpace(os.Getenv("STRIPE_SECRET_KEY")),
	}

	return &Config{
		Server:    server,
		AI:        ai,
		Store:     store,
		Embedding: embedding,
		Speech:    speech,
		Realtime:  realtime,
		Billing:   billing,
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" as-is.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig describes the completion-model provider. Chat and voice replies
// run against the same model with different token budgets.
type AIConfig struct {
	APIKey          string
	AccessKey       string
	SecretKey       string
	Model           string
	BaseURL         string
	Region          string
	Temperature     *float64
	ChatMaxTokens   int
	VoiceMaxTokens  int
	StreamResponse  bool
	MoodMaxTokens   int
	MoodCacheSize   int
	MoodCacheTTLSec int
}

// StoreConfig describes the sqlite datastore location.
type StoreConfig struct {
	Path string
}

// EmbeddingConfig describes the embedding provider endpoint.
type EmbeddingConfig struct {
	BaseURL string
	Model   string
}

// SpeechConfig describes the speech-to-text / text-to-speech provider.
type SpeechConfig struct {
	BaseURL  string
	APIKey   string
	Voice    string
	Speed    float32
	Language string
	Timeout  int
	Enabled  bool
}

// RealtimeConfig describes the realtime voice provider used for SDP-based
// sessions.
type RealtimeConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Voice   string
}

// Enabled reports whether realtime credentials were supplied.
func (c RealtimeConfig) Enabled() bool {
	return c.BaseURL != "" && c.APIKey != ""
}

// BillingConfig carries the subscription-gate credentials.
type BillingConfig struct {
	StripeKey string
}

// Enabled reports whether the Stripe-backed gate can be constructed.
func (c BillingConfig) Enabled() bool {
	return c.StripeKey != ""
}

// Enabled reports whether the completion provider credentials are present.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel builds a model instance with the given token budget. A zero
// budget leaves the provider default in place.
func (c AIConfig) NewChatModel(ctx context.Context, maxTokens int) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("completion credentials missing: provide ARK_API_KEY + AI_MODEL or AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		Temperature: temperature,
	}
	if maxTokens > 0 {
		cfg.MaxTokens = &maxTokens
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("AI_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	chatTokens, err := parseIntEnv("AI_CHAT_MAX_TOKENS", 600)
	if err != nil {
		return AIConfig{}, err
	}

	voiceTokens, err := parseIntEnv("AI_VOICE_MAX_TOKENS", 220)
	if err != nil {
		return AIConfig{}, err
	}

	moodTokens, err := parseIntEnv("AI_MOOD_MAX_TOKENS", 300)
	if err != nil {
		return AIConfig{}, err
	}

	stream, err := parseBoolEnv("AI_STREAM", true)
	if err != nil {
		return AIConfig{}, err
	}

	cacheSize, err := parseIntEnv("MOOD_CACHE_SIZE", 100)
	if err != nil {
		return AIConfig{}, err
	}

	cacheTTL, err := parseIntEnv("MOOD_CACHE_TTL_SECONDS", 300)
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:          strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:       strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:       strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:           strings.TrimSpace(os.Getenv("AI_MODEL")),
		BaseURL:         getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:          getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:     temperature,
		ChatMaxTokens:   chatTokens,
		VoiceMaxTokens:  voiceTokens,
		MoodMaxTokens:   moodTokens,
		StreamResponse:  stream,
		MoodCacheSize:   cacheSize,
		MoodCacheTTLSec: cacheTTL,
	}, nil
}

func loadSpeechConfig() (SpeechConfig, error) {
	timeout, err := parseIntEnv("SPEECH_TIMEOUT", 30)
	if err != nil {
		return SpeechConfig{}, err
	}

	speed, err := parseOptionalFloat32Env("SPEECH_TTS_SPEED")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsSpeed := float32(1.0)
	if speed != nil {
		ttsSpeed = *speed
	}

	baseURL := strings.TrimSpace(os.Getenv("SPEECH_BASE_URL"))
	apiKey := strings.TrimSpace(os.Getenv("SPEECH_API_KEY"))

	return SpeechConfig{
		BaseURL:  baseURL,
		APIKey:   apiKey,
		Voice:    getEnvOrDefault("SPEECH_TTS_VOICE", "gentle"),
		Speed:    ttsSpeed,
		Language: getEnvOrDefault("SPEECH_LANGUAGE", "en-US"),
		Timeout:  timeout,
		Enabled:  baseURL != "" && apiKey != "",
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalFloat32Env(key string) (*float32, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	result := float32(val)
	return &result, nil
}
