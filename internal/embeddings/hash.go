package embeddings

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// DefaultHashDimension is the vector length of the hash provider when none is
// configured.
const DefaultHashDimension = 384

// HashProvider embeds text by feature hashing its lowercased word tokens.
//
// Vectors carry a constant bias component so that any two texts have a
// positive cosine similarity. Vectors are L2 normalized. The same text always
// produces the same vector.
type HashProvider struct {
	dimension int
}

// NewHashProvider creates a hash provider. A zero dimension selects
// DefaultHashDimension.
func NewHashProvider(dimension int) (*HashProvider, error) {
	if dimension == 0 {
		dimension = DefaultHashDimension
	}
	if dimension < 2 {
		return nil, fmt.Errorf("%w: hash dimension must be at least 2, got %d", ErrInvalidConfig, dimension)
	}
	return &HashProvider{dimension: dimension}, nil
}

// Encode returns one normalized vector per text.
func (p *HashProvider) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = p.embed(text)
	}
	return out, nil
}

func (p *HashProvider) embed(text string) []float32 {
	vec := make([]float64, p.dimension)
	vec[0] = 1

	buckets := uint64(p.dimension - 1)
	for _, tok := range tokenize(text) {
		vec[1+xxhash.Sum64String(tok)%buckets]++
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, p.dimension)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Dimension returns the vector length.
func (p *HashProvider) Dimension() int {
	return p.dimension
}

// Model identifies the hashing scheme and its dimension.
func (p *HashProvider) Model() string {
	return fmt.Sprintf("hash-xxh64-%d", p.dimension)
}

// Close is a no-op.
func (p *HashProvider) Close() error {
	return nil
}

var (
	_ Provider = (*HashProvider)(nil)
	_ Provider = (*Service)(nil)
	_ Provider = (*FastEmbedProvider)(nil)
)
