package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/havenkids/haven/backend/internal/config"
	"github.com/havenkids/haven/backend/internal/model/speech"
)

// minAudioBytes is the smallest clip worth sending to the provider.
// Anything shorter is treated as silence.
const minAudioBytes = 2048

// Transcriber converts an audio clip into text.
type Transcriber interface {
	Transcribe(ctx context.Context, req *speech.TranscribeRequest) (*speech.TranscribeResponse, error)
}

// Synthesizer converts reply text into audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req *speech.SynthesizeRequest) (*speech.SynthesizeResponse, error)
}

// Client talks to the speech provider's HTTP API for both directions.
type Client struct {
	baseURL    string
	apiKey     string
	voice      string
	speed      float32
	language   string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(cfg config.SpeechConfig, logger *zap.Logger) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		voice:      cfg.Voice,
		speed:      cfg.Speed,
		language:   cfg.Language,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type transcriptionResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	DurationMs int64   `json:"duration_ms"`
}

// Transcribe uploads the clip and returns the recognized text. Clips
// below minAudioBytes come back empty with no error so callers can
// skip the turn instead of surfacing a failure for silence.
func (c *Client) Transcribe(ctx context.Context, req *speech.TranscribeRequest) (*speech.TranscribeResponse, error) {
	if len(req.AudioData) < minAudioBytes {
		c.logger.Debug("audio below silence threshold",
			zap.String("childId", req.ChildID),
			zap.Int("bytes", len(req.AudioData)))
		return &speech.TranscribeResponse{CreatedAt: time.Now()}, nil
	}

	format := req.Format
	if format == "" {
		format = "webm"
	}
	language := req.Language
	if language == "" {
		language = c.language
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "audio."+format)
	if err != nil {
		return nil, fmt.Errorf("build transcription form: %w", err)
	}
	if _, err := part.Write(req.AudioData); err != nil {
		return nil, fmt.Errorf("write audio payload: %w", err)
	}
	if err := writer.WriteField("language", language); err != nil {
		return nil, fmt.Errorf("write language field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalize transcription form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/audio/transcriptions", &body)
	if err != nil {
		return nil, fmt.Errorf("create transcription request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("transcription provider returned %d: %s", resp.StatusCode, string(errBody))
	}

	var parsed transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode transcription response: %w", err)
	}

	return &speech.TranscribeResponse{
		Text:       parsed.Text,
		Confidence: parsed.Confidence,
		DurationMs: parsed.DurationMs,
		CreatedAt:  time.Now(),
	}, nil
}

type synthesisRequest struct {
	Input    string  `json:"input"`
	Voice    string  `json:"voice"`
	Speed    float32 `json:"speed"`
	Format   string  `json:"response_format"`
	Language string  `json:"language"`
}

// Synthesize renders the reply text as audio bytes.
func (c *Client) Synthesize(ctx context.Context, req *speech.SynthesizeRequest) (*speech.SynthesizeResponse, error) {
	if req.Text == "" {
		return nil, fmt.Errorf("synthesis text is empty")
	}

	payload := synthesisRequest{
		Input:    req.Text,
		Voice:    req.Voice,
		Speed:    req.Speed,
		Format:   req.Format,
		Language: req.Language,
	}
	if payload.Voice == "" {
		payload.Voice = c.voice
	}
	if payload.Speed == 0 {
		payload.Speed = c.speed
	}
	if payload.Format == "" {
		payload.Format = "mp3"
	}
	if payload.Language == "" {
		payload.Language = c.language
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal synthesis request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create synthesis request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("synthesis request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("synthesis provider returned %d: %s", resp.StatusCode, string(errBody))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read synthesis audio: %w", err)
	}

	return &speech.SynthesizeResponse{
		AudioData: audio,
		Format:    payload.Format,
		CreatedAt: time.Now(),
	}, nil
}
