// Package vectordb provides the nearest-neighbor index the retrieval path
// searches. The memory backend keeps vectors in-process; the milvus backend
// persists them in a Milvus collection.
package vectordb

import (
	"context"
	"fmt"

	"github.com/merchantry/askdb/config"
	"github.com/merchantry/askdb/embedding"
	"github.com/merchantry/askdb/schema"
)

// Index stores embedded documents and answers similarity searches. Scores
// follow the inner-product convention: higher means closer.
type Index interface {
	Build(ctx context.Context, docs []string) error
	Search(ctx context.Context, query string, topK int) ([]schema.SearchResult, error)
}

// New builds the index named by cfg, embedding documents with embedder.
func New(ctx context.Context, cfg config.VectorDBConfig, embedder embedding.Provider) (Index, error) {
	switch cfg.Provider {
	case "memory":
		return NewMemory(embedder), nil
	case "milvus":
		return NewMilvus(ctx, cfg, embedder)
	default:
		return nil, fmt.Errorf("vectordb: unknown provider %q", cfg.Provider)
	}
}
