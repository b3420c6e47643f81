package speech

import "time"

// TranscribeResponse is the speech-to-text result. Silence (input below the
// provider's minimum size) yields an empty Text with no error.
type TranscribeResponse struct {
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	DurationMs int64     `json:"durationMs"`
	CreatedAt  time.Time `json:"createdAt"`
}

// SynthesizeResponse is the text-to-speech result.
type SynthesizeResponse struct {
	AudioData []byte    `json:"-"`
	Format    string    `json:"format"`
	CreatedAt time.Time `json:"createdAt"`
}
