package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for index operations.
var (
	// ErrConflict is returned when inserting an id that is already indexed.
	ErrConflict = errors.New("memory id already indexed")

	// ErrDimensionMismatch is returned when a vector length differs from the
	// dimension the index is bound to.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrIndexUnavailable marks a backend whose vector search is not usable.
	ErrIndexUnavailable = errors.New("vector search unavailable")

	// ErrUnsupportedBackend is returned by New for an unknown backend name.
	ErrUnsupportedBackend = errors.New("unsupported index backend")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConnectionFailed indicates gRPC connection issues.
	ErrConnectionFailed = errors.New("failed to connect to Qdrant")
)

// Memory is one captured memory as stored by the index.
type Memory struct {
	ID        string   `json:"id"`
	Namespace string   `json:"namespace"`
	Summary   string   `json:"summary"`
	Content   string   `json:"content"`
	Tags      []string `json:"tags"`
	FilePath  string   `json:"file_path,omitempty"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
	LedgerRef string   `json:"git_note_ref,omitempty"`
}

// Query restricts and bounds a similarity search.
type Query struct {
	// Namespace limits candidates before ranking. Empty searches all.
	Namespace string

	// K is the maximum number of hits.
	K int

	// MinSimilarity excludes hits scoring below it.
	MinSimilarity float64
}

// Hit is one search result, before hydration.
type Hit struct {
	ID         string
	Similarity float64
}

// Index is the derived nearest-neighbour store for memories.
type Index interface {
	// Insert stores the record and its vector as one unit. A duplicate id
	// returns ErrConflict and writes nothing.
	Insert(ctx context.Context, m *Memory, vector []float32) error

	// Get returns the record for id, or nil when it is not indexed.
	Get(ctx context.Context, id string) (*Memory, error)

	// Search returns up to q.K hits in descending similarity.
	Search(ctx context.Context, vector []float32, q Query) ([]Hit, error)

	// Count returns the number of indexed records.
	Count(ctx context.Context) (int, error)

	// Dimension returns the vector length the index is bound to.
	Dimension() int

	// Backend names the implementation.
	Backend() string

	// Close releases the underlying handles.
	Close() error
}

// clampSimilarity maps a backend score into [0, 1].
func clampSimilarity(s float64) float64 {
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}

// checkQuery validates q and the vector against dim.
func checkQuery(vector []float32, q Query, dim int) error {
	if len(vector) != dim {
		return dimensionError(len(vector), dim)
	}
	if q.K <= 0 {
		return errors.New("k must be positive")
	}
	return nil
}
