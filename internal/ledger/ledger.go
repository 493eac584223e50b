// Package ledger persists captured memories as git notes, the source of
// truth the search index is rebuilt from.
package ledger

import (
	"context"
	"errors"
)

// ErrLedgerWriteFailed wraps every failure to persist a record.
var ErrLedgerWriteFailed = errors.New("ledger write failed")

// Record is the ledger form of a memory.
type Record struct {
	ID             string   `json:"id"`
	Namespace      string   `json:"namespace"`
	Summary        string   `json:"summary"`
	Content        string   `json:"content"`
	Tags           []string `json:"tags"`
	FilePath       string   `json:"file_path"`
	CreatedAt      string   `json:"created_at"`
	UpdatedAt      string   `json:"updated_at"`
	GitNoteRef     string   `json:"git_note_ref"`
	EmbeddingModel string   `json:"embedding_model"`
}

// Ledger is append-only storage for records.
type Ledger interface {
	// Save persists rec under id.
	Save(ctx context.Context, id string, rec Record) error

	// LoadAll returns every readable record ordered by creation time.
	LoadAll(ctx context.Context) ([]Record, error)
}
