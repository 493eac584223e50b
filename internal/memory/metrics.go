package memory

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/gitmem/internal/memory"

// Metrics counts engine operations.
type Metrics struct {
	captures      metric.Int64Counter
	searches      metric.Int64Counter
	searchResults metric.Int64Histogram
	reconciled    metric.Int64Counter
	ledgerErrors  metric.Int64Counter
	redactions    metric.Int64Counter
}

// NewMetrics creates instruments on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	return newMetrics(otel.Meter(instrumentationName), logger)
}

func newMetrics(meter metric.Meter, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{}
	warn := func(name string, err error) {
		if err != nil {
			logger.Warn("failed to create instrument", zap.String("name", name), zap.Error(err))
		}
	}

	var err error
	m.captures, err = meter.Int64Counter("gitmem.memory.captures_total",
		metric.WithDescription("Capture calls by namespace and status"),
		metric.WithUnit("{capture}"))
	warn("captures", err)

	m.searches, err = meter.Int64Counter("gitmem.memory.searches_total",
		metric.WithDescription("Search calls by status"),
		metric.WithUnit("{search}"))
	warn("searches", err)

	m.searchResults, err = meter.Int64Histogram("gitmem.memory.search_results",
		metric.WithDescription("Results returned per search"),
		metric.WithUnit("{result}"),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 5, 10, 25, 50))
	warn("search_results", err)

	m.reconciled, err = meter.Int64Counter("gitmem.memory.reconciled_total",
		metric.WithDescription("Ledger records replayed by outcome"),
		metric.WithUnit("{record}"))
	warn("reconciled", err)

	m.ledgerErrors, err = meter.Int64Counter("gitmem.memory.ledger_errors_total",
		metric.WithDescription("Failed ledger writes"),
		metric.WithUnit("{error}"))
	warn("ledger_errors", err)

	m.redactions, err = meter.Int64Counter("gitmem.memory.redactions_total",
		metric.WithDescription("Secrets replaced by markers before storage"),
		metric.WithUnit("{finding}"))
	warn("redactions", err)

	return m
}

func status(err error) attribute.KeyValue {
	if err != nil {
		return attribute.String("status", "error")
	}
	return attribute.String("status", "ok")
}

func (m *Metrics) recordCapture(ctx context.Context, namespace string, err error) {
	if m.captures != nil {
		m.captures.Add(ctx, 1, metric.WithAttributes(attribute.String("namespace", namespace), status(err)))
	}
}

func (m *Metrics) recordSearch(ctx context.Context, results int, err error) {
	if m.searches != nil {
		m.searches.Add(ctx, 1, metric.WithAttributes(status(err)))
	}
	if err == nil && m.searchResults != nil {
		m.searchResults.Record(ctx, int64(results))
	}
}

func (m *Metrics) recordReconciled(ctx context.Context, outcome string) {
	if m.reconciled != nil {
		m.reconciled.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func (m *Metrics) recordLedgerError(ctx context.Context) {
	if m.ledgerErrors != nil {
		m.ledgerErrors.Add(ctx, 1)
	}
}

func (m *Metrics) recordRedactions(ctx context.Context, n int) {
	if n > 0 && m.redactions != nil {
		m.redactions.Add(ctx, int64(n))
	}
}
