package vectorstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNew(t *testing.T) {
	ctx := context.Background()

	idx, err := New(ctx, Config{
		Dimension: testDim,
		SQLite:    SQLiteConfig{Path: filepath.Join(t.TempDir(), "index.db"), VectorSearch: true},
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer idx.Close()
	assert.Equal(t, BackendSQLite, idx.Backend())

	_, err = New(ctx, Config{Backend: "pgvector", Dimension: testDim}, nil)
	assert.ErrorIs(t, err, ErrUnsupportedBackend)
}

func TestIsSupportedBackend(t *testing.T) {
	assert.True(t, IsSupportedBackend("sqlite"))
	assert.True(t, IsSupportedBackend("qdrant"))
	assert.True(t, IsSupportedBackend(""))
	assert.False(t, IsSupportedBackend("chroma"))
}
