package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/havenkids/haven/backend/internal/model/memory"
	"github.com/havenkids/haven/backend/internal/store"
)

// Filter narrows a query to one child's records of one kind. Both fields are
// always required; the index is never queried across children.
type Filter struct {
	ChildID string
	Kind    memory.Kind
}

// Index is the similarity-search contract shared by memory and document
// retrieval.
type Index interface {
	Upsert(ctx context.Context, rec memory.Record) error
	Query(ctx context.Context, embedding []float32, filter Filter, k int) ([]memory.Match, error)
}

// SQLiteIndex stores embeddings as little-endian float32 BLOBs and answers
// queries with a brute-force cosine scan over one child's records. Record
// counts per child stay small enough that a scan beats maintaining an ANN
// structure.
type SQLiteIndex struct {
	db *store.DB
}

// NewSQLiteIndex returns an Index over db.
func NewSQLiteIndex(db *store.DB) *SQLiteIndex {
	return &SQLiteIndex{db: db}
}

type recordMeta struct {
	Mood   *memory.MoodMeta `json:"mood,omitempty"`
	Topics []string         `json:"topics,omitempty"`
}

// Upsert writes one record. Records are write-once in practice; replacing by
// id keeps re-ingestion of documents idempotent.
func (x *SQLiteIndex) Upsert(ctx context.Context, rec memory.Record) error {
	if len(rec.Embedding) == 0 {
		return fmt.Errorf("upsert %s record %s: empty embedding", rec.Kind, rec.ID)
	}

	meta, err := json.Marshal(recordMeta{Mood: rec.Mood, Topics: rec.Topics})
	if err != nil {
		return fmt.Errorf("encode record metadata: %w", err)
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = x.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO vectors (id, child_id, kind, excerpt, metadata, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ChildID, rec.Kind, rec.Excerpt, string(meta),
		Float32ToBytes(rec.Embedding), createdAt.Unix())
	if err != nil {
		return fmt.Errorf("upsert vector: %w", err)
	}
	return nil
}

// Query returns the k nearest records by cosine similarity. There is no
// similarity floor: with few records, a weak match still beats no context.
func (x *SQLiteIndex) Query(ctx context.Context, embedding []float32, filter Filter, k int) ([]memory.Match, error) {
	if filter.ChildID == "" || filter.Kind == "" {
		return nil, fmt.Errorf("vector query requires child id and kind")
	}
	if k <= 0 {
		k = 3
	}

	rows, err := x.db.QueryContext(ctx, `
		SELECT id, child_id, kind, excerpt, metadata, embedding, created_at
		FROM vectors WHERE child_id = ? AND kind = ?`,
		filter.ChildID, filter.Kind)
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}
	defer rows.Close()

	var matches []memory.Match
	for rows.Next() {
		var rec memory.Record
		var metaJSON string
		var blob []byte
		var created int64
		if err := rows.Scan(&rec.ID, &rec.ChildID, &rec.Kind, &rec.Excerpt, &metaJSON, &blob, &created); err != nil {
			return nil, fmt.Errorf("scan vector: %w", err)
		}
		rec.CreatedAt = time.Unix(created, 0).UTC()
		if metaJSON != "" {
			var meta recordMeta
			if err := json.Unmarshal([]byte(metaJSON), &meta); err == nil {
				rec.Mood = meta.Mood
				rec.Topics = meta.Topics
			}
		}
		rec.Embedding = BytesToFloat32(blob)

		matches = append(matches, memory.Match{
			Record:     rec,
			Similarity: CosineSimilarity(embedding, rec.Embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}
