package vectorstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Backend names accepted by New.
const (
	BackendSQLite = "sqlite"
	BackendQdrant = "qdrant"
)

// Config selects and configures an index backend.
type Config struct {
	// Backend is "sqlite" (default) or "qdrant".
	Backend string

	// Dimension binds the index to the embedding provider's vector length.
	Dimension int

	SQLite SQLiteConfig
	Qdrant QdrantConfig
}

// New opens the configured backend.
//
//	idx, err := vectorstore.New(ctx, vectorstore.Config{
//	    Backend:   "sqlite",
//	    Dimension: provider.Dimension(),
//	    SQLite:    vectorstore.SQLiteConfig{Path: ".memory/index.db", VectorPath: ".memory/vectors", VectorSearch: true},
//	}, logger)
func New(ctx context.Context, cfg Config, logger *zap.Logger) (Index, error) {
	switch cfg.Backend {
	case BackendSQLite, "":
		return NewSQLiteIndex(ctx, cfg.SQLite, cfg.Dimension, logger)
	case BackendQdrant:
		return NewQdrantIndex(ctx, cfg.Qdrant, cfg.Dimension, logger)
	default:
		return nil, fmt.Errorf("%w: %q (supported: sqlite, qdrant)", ErrUnsupportedBackend, cfg.Backend)
	}
}

// IsSupportedBackend reports whether New accepts name.
func IsSupportedBackend(name string) bool {
	switch name {
	case BackendSQLite, BackendQdrant, "":
		return true
	}
	return false
}
