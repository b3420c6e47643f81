package memory

import "time"

// Kind distinguishes record types stored in the shared vector index.
type Kind string

const (
	// KindMemory is a vectorized summary of a past session turn.
	KindMemory Kind = "memory"
	// KindDocument is child-scoped uploaded reference text.
	KindDocument Kind = "document"
)

// Record is one entry in the vector index. Records of kind memory are
// written once by the engine and only ever read afterwards; documents are
// ingested elsewhere and read-only here.
type Record struct {
	ID        string    `json:"id"`
	ChildID   string    `json:"childId"`
	Kind      Kind      `json:"kind"`
	Excerpt   string    `json:"excerpt"`
	Mood      *MoodMeta `json:"mood,omitempty"`
	Topics    []string  `json:"topics,omitempty"`
	Embedding []float32 `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// MoodMeta is the mood snapshot carried in memory record metadata.
type MoodMeta struct {
	Happiness  int `json:"happiness"`
	Anxiety    int `json:"anxiety"`
	Sadness    int `json:"sadness"`
	Stress     int `json:"stress"`
	Confidence int `json:"confidence"`
}

// Match pairs a retrieved record with its cosine similarity to the query.
type Match struct {
	Record     Record  `json:"record"`
	Similarity float64 `json:"similarity"`
}
