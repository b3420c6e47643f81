package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/havenkids/haven/backend/internal/config"
)

// ProviderSession is what the voice provider hands back when a channel
// is opened.
type ProviderSession struct {
	ID           string
	ClientSecret string
}

// Provider opens voice channels and relays SDP negotiation.
type Provider interface {
	CreateSession(ctx context.Context, instructions string) (ProviderSession, error)
	ForwardOffer(ctx context.Context, clientSecret, sdp string) (string, error)
}

// HTTPProvider implements Provider against the provider's REST surface.
type HTTPProvider struct {
	baseURL    string
	apiKey     string
	model      string
	voice      string
	httpClient *http.Client
}

func NewHTTPProvider(cfg config.RealtimeConfig) *HTTPProvider {
	return &HTTPProvider{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		voice:      cfg.Voice,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type createSessionRequest struct {
	Model        string `json:"model"`
	Voice        string `json:"voice,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

type createSessionResponse struct {
	ID           string `json:"id"`
	ClientSecret struct {
		Value string `json:"value"`
	} `json:"client_secret"`
}

func (p *HTTPProvider) CreateSession(ctx context.Context, instructions string) (ProviderSession, error) {
	body, err := json.Marshal(createSessionRequest{
		Model:        p.model,
		Voice:        p.voice,
		Instructions: instructions,
	})
	if err != nil {
		return ProviderSession{}, fmt.Errorf("marshal session request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/realtime/sessions", bytes.NewReader(body))
	if err != nil {
		return ProviderSession{}, fmt.Errorf("create session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return ProviderSession{}, fmt.Errorf("session request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return ProviderSession{}, fmt.Errorf("realtime provider returned %d: %s", resp.StatusCode, string(errBody))
	}

	var parsed createSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return ProviderSession{}, fmt.Errorf("decode session response: %w", err)
	}
	if parsed.ID == "" || parsed.ClientSecret.Value == "" {
		return ProviderSession{}, fmt.Errorf("realtime provider returned incomplete session")
	}

	return ProviderSession{ID: parsed.ID, ClientSecret: parsed.ClientSecret.Value}, nil
}

// ForwardOffer relays the SDP offer with the ephemeral credential the
// client was handed at session creation and returns the answer verbatim.
func (p *HTTPProvider) ForwardOffer(ctx context.Context, clientSecret, sdp string) (string, error) {
	url := p.baseURL + "/v1/realtime?model=" + p.model
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(sdp))
	if err != nil {
		return "", fmt.Errorf("create offer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/sdp")
	req.Header.Set("Authorization", "Bearer "+clientSecret)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("offer request failed: %w", err)
	}
	defer resp.Body.Close()

	answer, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read sdp answer: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("realtime provider returned %d: %s", resp.StatusCode, string(answer))
	}

	return string(answer), nil
}
