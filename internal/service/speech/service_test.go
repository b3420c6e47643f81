package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/havenkids/haven/backend/internal/config"
	"github.com/havenkids/haven/backend/internal/model/speech"
)

func newTestClient(baseURL string) *Client {
	return NewClient(config.SpeechConfig{
		BaseURL:  baseURL,
		APIKey:   "test-key",
		Voice:    "gentle",
		Speed:    1.0,
		Language: "en-US",
		Timeout:  5,
	}, zap.NewNop())
}

func TestTranscribeSilenceSkipsProvider(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("provider must not be called for silence")
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	resp, err := client.Transcribe(context.Background(), &speech.TranscribeRequest{
		ChildID:   "child-1",
		AudioData: make([]byte, 100),
	})
	if err != nil {
		t.Fatalf("Transcribe err: %v", err)
	}
	if resp.Text != "" {
		t.Fatalf("expected empty transcript for silence, got %q", resp.Text)
	}
}

func TestTranscribeParsesProviderResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("language"); got != "en-US" {
			t.Errorf("unexpected language %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"I had a good day","confidence":0.93,"duration_ms":2100}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	resp, err := client.Transcribe(context.Background(), &speech.TranscribeRequest{
		ChildID:   "child-1",
		AudioData: make([]byte, 4096),
		Format:    "webm",
	})
	if err != nil {
		t.Fatalf("Transcribe err: %v", err)
	}
	if resp.Text != "I had a good day" {
		t.Fatalf("unexpected transcript %q", resp.Text)
	}
	if resp.Confidence != 0.93 {
		t.Fatalf("unexpected confidence %v", resp.Confidence)
	}
}

func TestTranscribeProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream busy", http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Transcribe(context.Background(), &speech.TranscribeRequest{
		AudioData: make([]byte, 4096),
	})
	if err == nil {
		t.Fatal("expected error from failing provider")
	}
}

func TestSynthesizeAppliesDefaults(t *testing.T) {
	audio := []byte("fake-mp3-bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body struct {
			Input  string  `json:"input"`
			Voice  string  `json:"voice"`
			Speed  float32 `json:"speed"`
			Format string  `json:"response_format"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.Voice != "gentle" || body.Speed != 1.0 || body.Format != "mp3" {
			t.Errorf("defaults not applied: %+v", body)
		}
		w.Write(audio)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	resp, err := client.Synthesize(context.Background(), &speech.SynthesizeRequest{
		ChildID: "child-1",
		Text:    "Good night, sleep well.",
	})
	if err != nil {
		t.Fatalf("Synthesize err: %v", err)
	}
	if !bytes.Equal(resp.AudioData, audio) {
		t.Fatal("audio bytes not passed through")
	}
	if resp.Format != "mp3" {
		t.Fatalf("unexpected format %q", resp.Format)
	}
}

func TestSynthesizeRejectsEmptyText(t *testing.T) {
	client := newTestClient("http://localhost:0")
	if _, err := client.Synthesize(context.Background(), &speech.SynthesizeRequest{}); err == nil {
		t.Fatal("expected error for empty text")
	}
}
