package speech

// TranscribeRequest carries one complete audio clip for speech-to-text.
type TranscribeRequest struct {
	ChildID   string `json:"childId"`
	AudioData []byte `json:"-"`
	Format    string `json:"format"`   // mp3, wav, webm, m4a
	Language  string `json:"language"` // en-US by default
}

// SynthesizeRequest carries reply text for text-to-speech.
type SynthesizeRequest struct {
	ChildID  string  `json:"childId"`
	Text     string  `json:"text"`
	Voice    string  `json:"voice"`
	Speed    float32 `json:"speed"`
	Format   string  `json:"format"`
	Language string  `json:"language"`
}
