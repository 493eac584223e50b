package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Provider turns text into vectors.
type Provider interface {
	// Dimension returns the length of every vector the provider produces.
	Dimension() int

	// Encode returns one vector per input text, in input order.
	Encode(ctx context.Context, texts []string) ([][]float32, error)

	// Model identifies the model producing the vectors.
	Model() string

	// Close releases resources held by the provider.
	Close() error
}

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	// Provider is the provider type: "fastembed", "tei" or "hash".
	Provider string
	// Model is the embedding model name.
	Model string
	// CacheDir is the model cache directory (fastembed only).
	CacheDir string
	// Device is the inference device. fastembed runs on CPU only.
	Device string
	// BaseURL is the TEI URL (tei only).
	BaseURL string
	// APIKey is sent as a bearer token (tei only).
	APIKey string
	// Timeout bounds one TEI request. Zero uses the service default.
	Timeout time.Duration
	// RateLimit caps TEI requests per second. Zero is unlimited.
	RateLimit float64
	// Dimension overrides the detected dimension (tei, hash).
	Dimension int
	// Logger receives provider diagnostics.
	Logger *zap.Logger
}

// NewProvider creates an embedding provider based on the configuration.
// The returned provider records otel metrics for every Encode call.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		p   Provider
		err error
	)
	switch cfg.Provider {
	case "fastembed", "":
		if cfg.Device != "" && cfg.Device != "cpu" {
			logger.Warn("fastembed runs on cpu only, ignoring device", zap.String("device", cfg.Device))
		}
		p, err = NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
	case "tei":
		dim := cfg.Dimension
		if dim == 0 {
			dim = detectDimensionFromModel(cfg.Model)
		}
		p, err = NewService(Config{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			APIKey:    cfg.APIKey,
			Dimension: dim,
			Timeout:   cfg.Timeout,
			RateLimit: cfg.RateLimit,
		})
	case "hash":
		p, err = NewHashProvider(cfg.Dimension)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q (supported: fastembed, tei, hash)", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	logger.Debug("embedding provider ready",
		zap.String("provider", cfg.Provider),
		zap.String("model", p.Model()),
		zap.Int("dimension", p.Dimension()),
	)

	return &instrumented{Provider: p, metrics: NewMetrics(logger)}, nil
}

// detectDimensionFromModel returns the embedding dimension for a model name.
// Falls back to 384 if model is unknown.
func detectDimensionFromModel(model string) int {
	if dim, ok := fastEmbedModelDimension(model); ok {
		return dim
	}
	switch {
	case strings.Contains(model, "base"):
		return 768
	case strings.Contains(model, "large"):
		return 1024
	default:
		return 384
	}
}

// instrumented records metrics around the wrapped provider.
type instrumented struct {
	Provider
	metrics *Metrics
}

func (i *instrumented) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	vectors, err := i.Provider.Encode(ctx, texts)
	i.metrics.RecordGeneration(ctx, i.Model(), "encode", time.Since(start), len(texts), err)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vectors), len(texts))
	}
	for n, v := range vectors {
		if len(v) != i.Dimension() {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, want %d", ErrEmbeddingFailed, n, len(v), i.Dimension())
		}
	}
	return vectors, nil
}
