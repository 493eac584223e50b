package vectorstore

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// pointNamespace seeds the UUIDv5 point ids derived from memory ids.
var pointNamespace = uuid.MustParse("6f1c2b7e-4d1a-5c55-9a0e-6d2f3b8a7c41")

var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// QdrantConfig holds configuration for the qdrant backend.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	Host string

	// Port is the Qdrant gRPC port (6334), not the REST port.
	Port int

	// Collection holds every memory point.
	Collection string

	// UseTLS enables TLS on the gRPC connection.
	UseTLS bool

	// MaxRetries bounds retries of transient failures. Default: 3
	MaxRetries int

	// RetryBackoff is the first retry delay, doubled each attempt. Default: 1s
	RetryBackoff time.Duration

	// MaxMessageSize is the gRPC message limit in bytes. Default: 50MB
	MaxMessageSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = "gitmem_memories"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if !collectionNamePattern.MatchString(c.Collection) {
		return fmt.Errorf("%w: collection name must match ^[a-z0-9_]{1,64}$, got %q", ErrInvalidConfig, c.Collection)
	}
	return nil
}

// IsTransientError reports whether a gRPC error is worth retrying.
func IsTransientError(err error) bool {
	st, ok := status.FromError(err)
	if err == nil || !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantIndex keeps records and vectors in one Qdrant collection.
type QdrantIndex struct {
	client *qdrant.Client
	config QdrantConfig
	dim    int
	logger *zap.Logger

	// writeMu makes the existence check and upsert one step.
	writeMu sync.Mutex
}

// NewQdrantIndex connects, checks health and ensures the collection exists
// with the given dimension.
func NewQdrantIndex(ctx context.Context, config QdrantConfig, dimension int, logger *zap.Logger) (*QdrantIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidConfig, dimension)
	}
	if !config.UseTLS {
		logger.Warn("qdrant gRPC connection is plaintext", zap.String("host", config.Host))
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	idx := &QdrantIndex{client: client, config: config, dim: dimension, logger: logger}

	hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(hctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check: %v", ErrConnectionFailed, err)
	}

	if err := idx.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return idx, nil
}

func (s *QdrantIndex) ensureCollection(ctx context.Context) error {
	name := s.config.Collection

	var exists bool
	err := s.retry(ctx, "collection_exists", func() error {
		var err error
		exists, err = s.client.CollectionExists(ctx, name)
		return err
	})
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", name, err)
	}

	if exists {
		info, err := s.client.GetCollectionInfo(ctx, name)
		if err != nil {
			return fmt.Errorf("reading collection %s: %w", name, err)
		}
		size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
		if int(size) != s.dim {
			return fmt.Errorf("%w: collection %s holds %d-dimensional vectors, provider produces %d", ErrDimensionMismatch, name, size, s.dim)
		}
		return nil
	}

	err = s.retry(ctx, "create_collection", func() error {
		return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(s.dim),
				Distance: qdrant.Distance_Cosine,
			}),
		})
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", name, err)
	}
	s.logger.Info("created qdrant collection", zap.String("collection", name), zap.Int("dimension", s.dim))
	return nil
}

// retry runs op with exponential backoff while it fails transiently.
func (s *QdrantIndex) retry(ctx context.Context, name string, op func() error) error {
	backoff := s.config.RetryBackoff
	for attempt := 0; ; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if !IsTransientError(err) || attempt == s.config.MaxRetries {
			return fmt.Errorf("%s: %w", name, err)
		}
		s.logger.Debug("retrying qdrant operation", zap.String("op", name), zap.Int("attempt", attempt+1), zap.Error(err))
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", name, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}

func pointID(id string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(pointNamespace, []byte(id)).String())
}

// Insert implements Index.
func (s *QdrantIndex) Insert(ctx context.Context, m *Memory, vector []float32) (err error) {
	ctx, span := tracer.Start(ctx, "QdrantIndex.Insert")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	span.SetAttributes(attribute.String("memory.id", m.ID))

	if len(vector) != s.dim {
		return dimensionError(len(vector), s.dim)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	existing, err := s.Get(ctx, m.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: %s", ErrConflict, m.ID)
	}

	point := &qdrant.PointStruct{
		Id:      pointID(m.ID),
		Vectors: qdrant.NewVectors(vector...),
		Payload: toPayload(m),
	}
	return s.retry(ctx, "upsert", func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.config.Collection,
			Wait:           qdrant.PtrOf(true),
			Points:         []*qdrant.PointStruct{point},
		})
		return err
	})
}

// Get implements Index.
func (s *QdrantIndex) Get(ctx context.Context, id string) (*Memory, error) {
	ctx, span := tracer.Start(ctx, "QdrantIndex.Get")
	defer span.End()

	var points []*qdrant.RetrievedPoint
	err := s.retry(ctx, "get", func() error {
		var err error
		points, err = s.client.Get(ctx, &qdrant.GetPoints{
			CollectionName: s.config.Collection,
			Ids:            []*qdrant.PointId{pointID(id)},
			WithPayload:    qdrant.NewWithPayload(true),
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("reading %s: %w", id, err)
	}
	if len(points) == 0 {
		return nil, nil
	}
	return fromPayload(points[0].GetPayload()), nil
}

// Search implements Index.
func (s *QdrantIndex) Search(ctx context.Context, vector []float32, q Query) ([]Hit, error) {
	ctx, span := tracer.Start(ctx, "QdrantIndex.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("query.namespace", q.Namespace),
		attribute.Int("query.k", q.K),
	)

	if err := checkQuery(vector, q, s.dim); err != nil {
		return nil, err
	}

	req := &qdrant.QueryPoints{
		CollectionName: s.config.Collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(q.K)),
		WithPayload:    qdrant.NewWithPayloadInclude("id"),
	}
	if q.MinSimilarity > 0 {
		req.ScoreThreshold = qdrant.PtrOf(float32(q.MinSimilarity))
	}
	if q.Namespace != "" {
		req.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatchKeyword(namespaceKey, q.Namespace)},
		}
	}

	var points []*qdrant.ScoredPoint
	err := s.retry(ctx, "query", func() error {
		var err error
		points, err = s.client.Query(ctx, req)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching %s: %w", s.config.Collection, err)
	}

	hits := make([]Hit, 0, len(points))
	for _, p := range points {
		sim := clampSimilarity(float64(p.GetScore()))
		if sim < q.MinSimilarity {
			continue
		}
		hits = append(hits, Hit{
			ID:         p.GetPayload()["id"].GetStringValue(),
			Similarity: sim,
		})
	}
	span.SetAttributes(attribute.Int("results_count", len(hits)))
	return hits, nil
}

// Count implements Index.
func (s *QdrantIndex) Count(ctx context.Context) (int, error) {
	info, err := s.client.GetCollectionInfo(ctx, s.config.Collection)
	if err != nil {
		return 0, fmt.Errorf("reading collection %s: %w", s.config.Collection, err)
	}
	return int(info.GetPointsCount()), nil
}

// Dimension implements Index.
func (s *QdrantIndex) Dimension() int { return s.dim }

// Backend implements Index.
func (s *QdrantIndex) Backend() string { return BackendQdrant }

// Close closes the gRPC connection.
func (s *QdrantIndex) Close() error {
	return s.client.Close()
}

func toPayload(m *Memory) map[string]*qdrant.Value {
	tags := make([]any, len(m.Tags))
	for i, t := range m.Tags {
		tags[i] = t
	}
	return qdrant.NewValueMap(map[string]any{
		"id":         m.ID,
		namespaceKey: m.Namespace,
		"summary":    m.Summary,
		"content":    m.Content,
		"tags":       tags,
		"file_path":  m.FilePath,
		"created_at": m.CreatedAt,
		"updated_at": m.UpdatedAt,
		"ledger_ref": m.LedgerRef,
	})
}

func fromPayload(p map[string]*qdrant.Value) *Memory {
	m := &Memory{
		ID:        p["id"].GetStringValue(),
		Namespace: p[namespaceKey].GetStringValue(),
		Summary:   p["summary"].GetStringValue(),
		Content:   p["content"].GetStringValue(),
		FilePath:  p["file_path"].GetStringValue(),
		CreatedAt: p["created_at"].GetStringValue(),
		UpdatedAt: p["updated_at"].GetStringValue(),
		LedgerRef: p["ledger_ref"].GetStringValue(),
		Tags:      []string{},
	}
	for _, v := range p["tags"].GetListValue().GetValues() {
		m.Tags = append(m.Tags, v.GetStringValue())
	}
	return m
}

var _ Index = (*QdrantIndex)(nil)
