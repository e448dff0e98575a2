package embeddings

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	"github.com/fyrsmithlabs/infrad/internal/vectorstore"
)

// MockProvider generates deterministic embeddings without a model.
// Texts sharing tokens produce nearby vectors, so similarity ordering is
// stable across runs. Intended for tests and local development.
type MockProvider struct {
	dimension int
}

var _ vectorstore.Embedder = (*MockProvider)(nil)

// NewMockProvider creates a mock provider with the given dimension.
// A non-positive dimension defaults to 384.
func NewMockProvider(dimension int) *MockProvider {
	if dimension <= 0 {
		dimension = 384
	}
	return &MockProvider{dimension: dimension}
}

// EmbedDocuments generates deterministic embeddings for multiple texts.
func (m *MockProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = m.embed(text)
	}
	return vectors, nil
}

// EmbedQuery generates a deterministic embedding for a single query.
func (m *MockProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	return m.embed(text), nil
}

// Dimension returns the configured embedding dimension.
func (m *MockProvider) Dimension() int {
	return m.dimension
}

// Close is a no-op for the mock provider.
func (m *MockProvider) Close() error {
	return nil
}

// embed hashes each token into a vector slot and normalizes the result.
func (m *MockProvider) embed(text string) []float32 {
	vec := make([]float32, m.dimension)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(token))
		sum := h.Sum32()
		vec[int(sum)%m.dimension] += 1.0
		vec[int(sum>>8)%m.dimension] += 0.5
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1.0
		return vec
	}

	scale := float32(1.0 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
