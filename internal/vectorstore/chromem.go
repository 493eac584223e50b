package vectorstore

import (
	"context"
	"errors"
	"fmt"

	chromem "github.com/philippgille/chromem-go"
)

const (
	vectorCollection = "memories"
	namespaceKey     = "namespace"
)

// errNoEmbedder is returned if chromem ever asks to embed text itself. Every
// document and query arrives with its vector.
var errNoEmbedder = errors.New("vectors must be supplied by the caller")

// chromemVectors is the vector half of the sqlite backend.
type chromemVectors struct {
	db         *chromem.DB
	collection *chromem.Collection
}

func newChromemVectors(db *chromem.DB) (*chromemVectors, error) {
	// A non-nil embedding func stops chromem from defaulting to OpenAI.
	noEmbed := func(context.Context, string) ([]float32, error) { return nil, errNoEmbedder }

	c, err := db.GetOrCreateCollection(vectorCollection, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("opening vector collection: %w", err)
	}
	return &chromemVectors{db: db, collection: c}, nil
}

func (v *chromemVectors) add(ctx context.Context, id, namespace string, vector []float32) error {
	// chromem normalizes in place.
	emb := make([]float32, len(vector))
	copy(emb, vector)

	return v.collection.AddDocument(ctx, chromem.Document{
		ID:        id,
		Metadata:  map[string]string{namespaceKey: namespace},
		Embedding: emb,
	})
}

func (v *chromemVectors) has(ctx context.Context, id string) bool {
	_, err := v.collection.GetByID(ctx, id)
	return err == nil
}

func (v *chromemVectors) remove(ctx context.Context, id string) error {
	return v.collection.Delete(ctx, nil, nil, id)
}

func (v *chromemVectors) count() int {
	return v.collection.Count()
}

// query ranks vectors within namespace and keeps those at or above floor.
func (v *chromemVectors) query(ctx context.Context, vector []float32, q Query) ([]Hit, error) {
	// chromem rejects nResults above the collection size.
	n := v.collection.Count()
	if n == 0 {
		return []Hit{}, nil
	}
	k := q.K
	if k > n {
		k = n
	}

	var where map[string]string
	if q.Namespace != "" {
		where = map[string]string{namespaceKey: q.Namespace}
	}

	results, err := v.collection.QueryEmbedding(ctx, vector, k, where, nil)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		sim := clampSimilarity(float64(r.Similarity))
		if sim < q.MinSimilarity {
			continue
		}
		hits = append(hits, Hit{ID: r.ID, Similarity: sim})
	}
	return hits, nil
}
