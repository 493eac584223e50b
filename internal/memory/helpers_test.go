package memory

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/fyrsmithlabs/gitmem/internal/embeddings"
	"github.com/fyrsmithlabs/gitmem/internal/ledger"
	"github.com/fyrsmithlabs/gitmem/internal/vectorstore"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// Wide enough that unrelated test phrases do not share hash buckets.
const testDim = 1024

// fakeLedger keeps records in memory.
type fakeLedger struct {
	mu      sync.Mutex
	records []ledger.Record
	saveErr error
	loadErr error
	saves   int
}

func (l *fakeLedger) Save(_ context.Context, _ string, rec ledger.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.saves++
	if l.saveErr != nil {
		return l.saveErr
	}
	l.records = append(l.records, rec)
	return nil
}

func (l *fakeLedger) LoadAll(context.Context) ([]ledger.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loadErr != nil {
		return nil, l.loadErr
	}
	return append([]ledger.Record(nil), l.records...), nil
}

func newTestProvider(t *testing.T) embeddings.Provider {
	t.Helper()
	p, err := embeddings.NewHashProvider(testDim)
	require.NoError(t, err)
	return p
}

func newTestIndex(t *testing.T) vectorstore.Index {
	t.Helper()
	dir := t.TempDir()
	idx, err := vectorstore.NewSQLiteIndex(context.Background(), vectorstore.SQLiteConfig{
		Path:         filepath.Join(dir, "index.db"),
		VectorPath:   filepath.Join(dir, "vectors"),
		VectorSearch: true,
	}, testDim, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

type fixture struct {
	svc    *Service
	index  vectorstore.Index
	ledger *fakeLedger
}

func newFixture(t *testing.T, logger *zap.Logger, namespaces ...string) *fixture {
	t.Helper()
	if len(namespaces) == 0 {
		namespaces = []string{"decisions", "facts"}
	}
	if logger == nil {
		logger = zaptest.NewLogger(t)
	}
	f := &fixture{index: newTestIndex(t), ledger: &fakeLedger{}}
	svc, err := NewService(Config{Namespaces: namespaces}, Deps{
		Provider: newTestProvider(t),
		Index:    f.index,
		Ledger:   f.ledger,
	}, logger)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) count(t *testing.T) int {
	t.Helper()
	n, err := f.index.Count(context.Background())
	require.NoError(t, err)
	return n
}

func floor(v float64) *float64 { return &v }

// stubIndex returns fixed hits and serves Get from a map.
type stubIndex struct {
	hits    []vectorstore.Hit
	records map[string]*vectorstore.Memory
	dim     int
}

func (s *stubIndex) Insert(context.Context, *vectorstore.Memory, []float32) error {
	return errors.New("read only")
}

func (s *stubIndex) Get(_ context.Context, id string) (*vectorstore.Memory, error) {
	return s.records[id], nil
}

func (s *stubIndex) Search(context.Context, []float32, vectorstore.Query) ([]vectorstore.Hit, error) {
	return s.hits, nil
}

func (s *stubIndex) Count(context.Context) (int, error) { return len(s.records), nil }
func (s *stubIndex) Dimension() int                     { return s.dim }
func (s *stubIndex) Backend() string                    { return "stub" }
func (s *stubIndex) Close() error                       { return nil }
