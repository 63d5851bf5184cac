package vectordb

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/merchantry/askdb/embedding"
	"github.com/merchantry/askdb/schema"
)

// Memory is an in-process index that scans every stored vector per search.
// The corpus here is a few dozen product descriptions, so a linear scan is
// plenty.
type Memory struct {
	mu       sync.RWMutex
	embedder embedding.Provider
	docs     []string
	vectors  [][]float32
}

// NewMemory builds an empty in-process index over embedder.
func NewMemory(embedder embedding.Provider) *Memory {
	return &Memory{embedder: embedder}
}

// Build replaces the index contents with docs.
func (m *Memory) Build(ctx context.Context, docs []string) error {
	vectors, err := m.embedder.Embed(ctx, docs)
	if err != nil {
		return err
	}
	for i := range vectors {
		normalize(vectors[i])
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = append([]string(nil), docs...)
	m.vectors = vectors
	return nil
}

// Search returns the topK closest documents to query by cosine similarity.
func (m *Memory) Search(ctx context.Context, query string, topK int) ([]schema.SearchResult, error) {
	queryVecs, err := m.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	qv := queryVecs[0]
	normalize(qv)

	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]schema.SearchResult, 0, len(m.docs))
	for i, doc := range m.docs {
		results = append(results, schema.SearchResult{
			Text:     doc,
			Distance: float64(dot(qv, m.vectors[i])),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Distance > results[j].Distance
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func dot(a, b []float32) float32 {
	n := min(len(a), len(b))
	var s float32
	for i := 0; i < n; i++ {
		s += a[i] * b[i]
	}
	return s
}

func normalize(v []float32) {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= inv
	}
}
