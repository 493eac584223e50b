package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/fyrsmithlabs/gitmem/internal/vectorstore")

// SQLiteConfig configures the sqlite backend.
type SQLiteConfig struct {
	// Path is the SQLite database file. ":memory:" keeps it in memory.
	Path string

	// VectorPath is the chromem directory. Empty keeps vectors in memory;
	// they are rebuilt from the database on open.
	VectorPath string

	// VectorSearch turns similarity search on. When false the index runs
	// degraded.
	VectorSearch bool

	// Compress gzips chromem documents on disk.
	Compress bool
}

// Validate validates the configuration.
func (c SQLiteConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: sqlite path required", ErrInvalidConfig)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id         TEXT PRIMARY KEY,
	namespace  TEXT NOT NULL,
	summary    TEXT NOT NULL,
	content    TEXT NOT NULL DEFAULT '',
	tags       TEXT NOT NULL DEFAULT '[]',
	file_path  TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	ledger_ref TEXT,
	embedding  BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_namespace ON memories(namespace);
CREATE INDEX IF NOT EXISTS idx_created ON memories(created_at);

CREATE TABLE IF NOT EXISTS index_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// SQLiteIndex stores records in SQLite and their vectors in chromem.
type SQLiteIndex struct {
	// mu keeps a record and its vector from being observed apart.
	mu sync.RWMutex

	db      *sql.DB
	vectors *chromemVectors // nil when degraded
	dim     int
	logger  *zap.Logger
}

// NewSQLiteIndex opens or creates the index bound to dimension.
func NewSQLiteIndex(ctx context.Context, cfg SQLiteConfig, dimension int, logger *zap.Logger) (*SQLiteIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidConfig, dimension)
	}

	dsn := cfg.Path
	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
			return nil, fmt.Errorf("creating index directory: %w", err)
		}
		dsn = cfg.Path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening index database: %w", err)
	}
	// One connection keeps ":memory:" a single database and writes serialized.
	db.SetMaxOpenConns(1)

	idx := &SQLiteIndex{db: db, dim: dimension, logger: logger}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	if err := idx.bindDimension(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if !cfg.VectorSearch {
		logger.Warn("index running without vector search", zap.Error(ErrIndexUnavailable))
		return idx, nil
	}

	vdb, err := openVectorDB(cfg.VectorPath, cfg.Compress, logger)
	if err == nil {
		idx.vectors, err = newChromemVectors(vdb)
	}
	if err != nil {
		logger.Warn("index running without vector search",
			zap.String("vector_path", cfg.VectorPath),
			zap.Error(fmt.Errorf("%w: %v", ErrIndexUnavailable, err)))
		return idx, nil
	}

	n, err := idx.backfill(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	if n > 0 {
		logger.Info("restored vectors from index database", zap.Int("count", n))
	}

	return idx, nil
}

// bindDimension records the dimension on first open and rejects a different
// one afterwards.
func (s *SQLiteIndex) bindDimension(ctx context.Context) error {
	var stored string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM index_meta WHERE key = 'dimension'`).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		_, err = s.db.ExecContext(ctx, `INSERT INTO index_meta (key, value) VALUES ('dimension', ?)`, strconv.Itoa(s.dim))
		if err != nil {
			return fmt.Errorf("recording index dimension: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading index dimension: %w", err)
	}

	got, err := strconv.Atoi(stored)
	if err != nil {
		return fmt.Errorf("corrupt index dimension %q: %w", stored, err)
	}
	if got != s.dim {
		return fmt.Errorf("%w: index holds %d-dimensional vectors, provider produces %d", ErrDimensionMismatch, got, s.dim)
	}
	return nil
}

// backfill adds every stored vector missing from the chromem collection.
func (s *SQLiteIndex) backfill(ctx context.Context) (int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&total); err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}
	if total == s.vectors.count() {
		return 0, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, namespace, embedding FROM memories`)
	if err != nil {
		return 0, fmt.Errorf("reading stored vectors: %w", err)
	}
	defer rows.Close()

	added := 0
	for rows.Next() {
		var (
			id, ns string
			blob   []byte
		)
		if err := rows.Scan(&id, &ns, &blob); err != nil {
			return added, fmt.Errorf("scanning stored vector: %w", err)
		}
		if s.vectors.has(ctx, id) {
			continue
		}
		if err := s.vectors.add(ctx, id, ns, decodeVector(blob)); err != nil {
			return added, fmt.Errorf("restoring vector %s: %w", id, err)
		}
		added++
	}
	return added, rows.Err()
}

// Insert implements Index.
func (s *SQLiteIndex) Insert(ctx context.Context, m *Memory, vector []float32) (err error) {
	ctx, span := tracer.Start(ctx, "SQLiteIndex.Insert")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	span.SetAttributes(
		attribute.String("memory.id", m.ID),
		attribute.String("memory.namespace", m.Namespace),
	)

	if len(vector) != s.dim {
		return dimensionError(len(vector), s.dim)
	}

	tags := m.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("encoding tags: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM memories WHERE id = ?`, m.ID).Scan(&one)
	if err == nil {
		return fmt.Errorf("%w: %s", ErrConflict, m.ID)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("checking for %s: %w", m.ID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO memories (id, namespace, summary, content, tags, file_path, created_at, updated_at, ledger_ref, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Namespace, m.Summary, m.Content, string(tagsJSON),
		nullable(m.FilePath), m.CreatedAt, m.UpdatedAt, nullable(m.LedgerRef),
		encodeVector(vector),
	)
	if err != nil {
		return fmt.Errorf("inserting %s: %w", m.ID, err)
	}

	if s.vectors != nil {
		if err = s.vectors.add(ctx, m.ID, m.Namespace, vector); err != nil {
			return fmt.Errorf("adding vector for %s: %w", m.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		if s.vectors != nil {
			if rmErr := s.vectors.remove(ctx, m.ID); rmErr != nil {
				s.logger.Error("failed to remove vector after aborted insert", zap.String("id", m.ID), zap.Error(rmErr))
			}
		}
		return fmt.Errorf("committing %s: %w", m.ID, err)
	}
	return nil
}

// Get implements Index.
func (s *SQLiteIndex) Get(ctx context.Context, id string) (*Memory, error) {
	ctx, span := tracer.Start(ctx, "SQLiteIndex.Get")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		m        Memory
		tagsJSON string
		filePath sql.NullString
		ref      sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, namespace, summary, content, tags, file_path, created_at, updated_at, ledger_ref
		FROM memories WHERE id = ?`, id).
		Scan(&m.ID, &m.Namespace, &m.Summary, &m.Content, &tagsJSON, &filePath, &m.CreatedAt, &m.UpdatedAt, &ref)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("reading %s: %w", id, err)
	}

	if err := json.Unmarshal([]byte(tagsJSON), &m.Tags); err != nil {
		return nil, fmt.Errorf("decoding tags of %s: %w", id, err)
	}
	if m.Tags == nil {
		m.Tags = []string{}
	}
	m.FilePath = filePath.String
	m.LedgerRef = ref.String
	return &m, nil
}

// Search implements Index.
func (s *SQLiteIndex) Search(ctx context.Context, vector []float32, q Query) ([]Hit, error) {
	ctx, span := tracer.Start(ctx, "SQLiteIndex.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("query.namespace", q.Namespace),
		attribute.Int("query.k", q.K),
		attribute.Float64("query.min_similarity", q.MinSimilarity),
	)

	if err := checkQuery(vector, q, s.dim); err != nil {
		return nil, err
	}
	if s.vectors == nil {
		s.logger.Debug("search skipped", zap.Error(ErrIndexUnavailable))
		return []Hit{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	hits, err := s.vectors.query(ctx, vector, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("results_count", len(hits)))
	return hits, nil
}

// Count implements Index.
func (s *SQLiteIndex) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}
	return n, nil
}

// Degraded reports whether vector search is off.
func (s *SQLiteIndex) Degraded() bool {
	return s.vectors == nil
}

// Dimension implements Index.
func (s *SQLiteIndex) Dimension() int { return s.dim }

// Backend implements Index.
func (s *SQLiteIndex) Backend() string { return BackendSQLite }

// Close implements Index.
func (s *SQLiteIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}

func dimensionError(got, want int) error {
	return fmt.Errorf("%w: got %d, index is bound to %d", ErrDimensionMismatch, got, want)
}

var _ Index = (*SQLiteIndex)(nil)
