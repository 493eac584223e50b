package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/gitmem/internal/embeddings"
	"github.com/fyrsmithlabs/gitmem/internal/ledger"
	"github.com/fyrsmithlabs/gitmem/internal/secrets"
	"github.com/fyrsmithlabs/gitmem/internal/vectorstore"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer(instrumentationName)

// Config holds engine settings.
type Config struct {
	// Namespaces is the closed set memories may be captured into.
	Namespaces []string
}

// Deps are the collaborators of a Service.
type Deps struct {
	// Redactor scrubs text before it is embedded or stored. Nil uses the
	// default rule table.
	Redactor secrets.Redactor

	// Provider embeds text. Required.
	Provider embeddings.Provider

	// Index stores and searches memories. Required.
	Index vectorstore.Index

	// Ledger records captures. Nil disables the ledger.
	Ledger ledger.Ledger

	// Metrics records operation counts. Nil uses the global meter.
	Metrics *Metrics
}

// Service is the memory engine.
type Service struct {
	namespaces []string
	allowed    map[string]struct{}

	redactor secrets.Redactor
	provider embeddings.Provider
	index    vectorstore.Index
	ledger   ledger.Ledger
	metrics  *Metrics
	logger   *zap.Logger

	now   func() time.Time
	newID func() string
}

// NewService validates the configuration and wires the engine.
func NewService(cfg Config, deps Deps, logger *zap.Logger) (*Service, error) {
	if deps.Provider == nil {
		return nil, errors.New("embedding provider cannot be nil")
	}
	if deps.Index == nil {
		return nil, errors.New("index cannot be nil")
	}
	if len(cfg.Namespaces) == 0 {
		return nil, errors.New("at least one namespace is required")
	}
	if deps.Provider.Dimension() != deps.Index.Dimension() {
		return nil, fmt.Errorf("%w: provider produces %d, index is bound to %d",
			vectorstore.ErrDimensionMismatch, deps.Provider.Dimension(), deps.Index.Dimension())
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	allowed := make(map[string]struct{}, len(cfg.Namespaces))
	for _, ns := range cfg.Namespaces {
		if ns == "" {
			return nil, errors.New("namespace names cannot be empty")
		}
		if _, dup := allowed[ns]; dup {
			return nil, fmt.Errorf("duplicate namespace %q", ns)
		}
		allowed[ns] = struct{}{}
	}

	redactor := deps.Redactor
	if redactor == nil {
		redactor = secrets.MustNew(nil)
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NewMetrics(logger)
	}

	return &Service{
		namespaces: append([]string(nil), cfg.Namespaces...),
		allowed:    allowed,
		redactor:   redactor,
		provider:   deps.Provider,
		index:      deps.Index,
		ledger:     deps.Ledger,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
		newID:      newID,
	}, nil
}

// newID returns "mem_" followed by 12 hex characters of a random UUID.
func newID() string {
	return "mem_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Namespaces returns the configured namespaces.
func (s *Service) Namespaces() []string {
	return append([]string(nil), s.namespaces...)
}

// Redactor returns the redactor applied to captured text.
func (s *Service) Redactor() secrets.Redactor {
	return s.redactor
}

func (s *Service) checkNamespace(ns string) error {
	if _, ok := s.allowed[ns]; !ok {
		return &NamespaceError{Namespace: ns, Allowed: s.Namespaces()}
	}
	return nil
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// embedText is the text a memory is embedded from.
func embedText(summary, content string) string {
	return summary + " " + content
}

func (s *Service) embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.provider.Encode(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}
	return vecs[0], nil
}

// Capture redacts, embeds and indexes a new memory, then records it in the
// ledger. A ledger failure is logged and does not fail the capture.
func (s *Service) Capture(ctx context.Context, req CaptureRequest) (id string, err error) {
	ctx, span := tracer.Start(ctx, "memory.Capture")
	defer span.End()
	span.SetAttributes(attribute.String("memory.namespace", req.Namespace))
	defer func() { s.metrics.recordCapture(ctx, req.Namespace, err) }()

	if err := s.checkNamespace(req.Namespace); err != nil {
		return "", fail(span, err)
	}

	summary := s.redactor.Redact(req.Summary)
	content := s.redactor.Redact(req.Content)
	if n := summary.TotalFindings() + content.TotalFindings(); n > 0 {
		rules := append(summary.RuleIDs(), content.RuleIDs()...)
		s.logger.Info("redacted secrets from memory",
			zap.Int("findings", n),
			zap.Strings("rules", rules))
		s.metrics.recordRedactions(ctx, n)
	}

	tags := append([]string{}, req.Tags...)

	ts := s.now().UTC().Format(time.RFC3339Nano)
	m := &Memory{
		ID:        s.newID(),
		Namespace: req.Namespace,
		Summary:   summary.Redacted,
		Content:   content.Redacted,
		Tags:      tags,
		FilePath:  req.FilePath,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	span.SetAttributes(attribute.String("memory.id", m.ID))

	vec, err := s.embed(ctx, embedText(m.Summary, m.Content))
	if err != nil {
		return "", fail(span, err)
	}
	if err := s.index.Insert(ctx, m, vec); err != nil {
		return "", fail(span, fmt.Errorf("indexing %s: %w", m.ID, err))
	}

	s.saveToLedger(ctx, m)

	s.logger.Debug("memory captured",
		zap.String("id", m.ID),
		zap.String("namespace", m.Namespace),
		zap.Int("tags", len(m.Tags)))
	return m.ID, nil
}

func (s *Service) saveToLedger(ctx context.Context, m *Memory) {
	if s.ledger == nil {
		return
	}
	rec := ledger.Record{
		ID:             m.ID,
		Namespace:      m.Namespace,
		Summary:        m.Summary,
		Content:        m.Content,
		Tags:           m.Tags,
		FilePath:       m.FilePath,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
		GitNoteRef:     m.LedgerRef,
		EmbeddingModel: s.provider.Model(),
	}
	if err := s.ledger.Save(ctx, m.ID, rec); err != nil {
		if !errors.Is(err, ledger.ErrLedgerWriteFailed) {
			err = fmt.Errorf("%w: %v", ledger.ErrLedgerWriteFailed, err)
		}
		s.metrics.recordLedgerError(ctx)
		s.logger.Warn("memory indexed but not written to ledger",
			zap.String("id", m.ID),
			zap.Error(err))
	}
}

// Search returns the memories most similar to the query.
func (s *Service) Search(ctx context.Context, req SearchRequest) (results []Result, err error) {
	ctx, span := tracer.Start(ctx, "memory.Search")
	defer span.End()
	defer func() { s.metrics.recordSearch(ctx, len(results), err) }()

	if req.Namespace != "" {
		if err := s.checkNamespace(req.Namespace); err != nil {
			return nil, fail(span, err)
		}
	}
	if err := req.validate(); err != nil {
		return nil, fail(span, err)
	}

	q := vectorstore.Query{Namespace: req.Namespace, K: req.K, MinSimilarity: DefaultMinSimilarity}
	if q.K == 0 {
		q.K = DefaultK
	}
	if req.MinSimilarity != nil {
		q.MinSimilarity = *req.MinSimilarity
	}
	span.SetAttributes(
		attribute.String("query.namespace", q.Namespace),
		attribute.Int("query.k", q.K),
		attribute.Float64("query.min_similarity", q.MinSimilarity),
	)

	vec, err := s.embed(ctx, req.Query)
	if err != nil {
		return nil, fail(span, err)
	}
	hits, err := s.index.Search(ctx, vec, q)
	if err != nil {
		return nil, fail(span, fmt.Errorf("searching index: %w", err))
	}

	results = make([]Result, 0, len(hits))
	for _, h := range hits {
		m, err := s.index.Get(ctx, h.ID)
		if err != nil {
			return nil, fail(span, fmt.Errorf("reading %s: %w", h.ID, err))
		}
		if m == nil {
			s.logger.Debug("search hit has no record", zap.String("id", h.ID))
			continue
		}
		results = append(results, Result{Memory: *m, Similarity: h.Similarity})
	}

	s.logger.Debug("search completed",
		zap.String("namespace", q.Namespace),
		zap.Int("k", q.K),
		zap.Int("results", len(results)))
	return results, nil
}

// Get returns the memory with id, or nil when there is none.
func (s *Service) Get(ctx context.Context, id string) (*Memory, error) {
	ctx, span := tracer.Start(ctx, "memory.Get")
	defer span.End()
	return s.index.Get(ctx, id)
}

// Reconcile replays every ledger record into the index and returns how many
// records the ledger held. Records already indexed are skipped.
func (s *Service) Reconcile(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "memory.Reconcile")
	defer span.End()

	if s.ledger == nil {
		return 0, nil
	}

	records, err := s.ledger.LoadAll(ctx)
	if err != nil {
		return 0, fail(span, fmt.Errorf("loading ledger: %w", err))
	}

	model := s.provider.Model()
	var added, present int
	for _, rec := range records {
		if rec.EmbeddingModel != "" && rec.EmbeddingModel != model {
			s.logger.Warn("re-embedding memory captured with a different model",
				zap.String("id", rec.ID),
				zap.String("captured_with", rec.EmbeddingModel),
				zap.String("active", model))
		}

		m := fromRecord(rec)
		vec, err := s.embed(ctx, embedText(m.Summary, m.Content))
		if err != nil {
			return 0, fail(span, fmt.Errorf("re-embedding %s: %w", rec.ID, err))
		}

		err = s.index.Insert(ctx, m, vec)
		switch {
		case err == nil:
			added++
			s.metrics.recordReconciled(ctx, "added")
		case errors.Is(err, vectorstore.ErrConflict):
			present++
			s.metrics.recordReconciled(ctx, "present")
		default:
			return 0, fail(span, fmt.Errorf("indexing %s: %w", rec.ID, err))
		}
	}

	span.SetAttributes(attribute.Int("reconcile.records", len(records)), attribute.Int("reconcile.added", added))
	s.logger.Info("reconciled index with ledger",
		zap.Int("records", len(records)),
		zap.Int("added", added),
		zap.Int("already_indexed", present))
	return len(records), nil
}

func fromRecord(rec ledger.Record) *Memory {
	tags := rec.Tags
	if tags == nil {
		tags = []string{}
	}
	updated := rec.UpdatedAt
	if updated == "" {
		updated = rec.CreatedAt
	}
	return &Memory{
		ID:        rec.ID,
		Namespace: rec.Namespace,
		Summary:   rec.Summary,
		Content:   rec.Content,
		Tags:      tags,
		FilePath:  rec.FilePath,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: updated,
		LedgerRef: rec.GitNoteRef,
	}
}

// Stats reports the index size and configuration.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	n, err := s.index.Count(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		Memories:   n,
		Backend:    s.index.Backend(),
		Dimension:  s.index.Dimension(),
		Model:      s.provider.Model(),
		Namespaces: s.Namespaces(),
	}, nil
}

// Close releases the provider and the index.
func (s *Service) Close() error {
	return errors.Join(s.provider.Close(), s.index.Close())
}
