// Package embedding turns text into dense vectors for the nearest-neighbor
// index. The openai provider calls a hosted embedding model; the hash
// provider computes deterministic local vectors so the assistant can run
// without any external service.
package embedding

import (
	"context"
	"fmt"

	"github.com/merchantry/askdb/config"
)

// Provider maps batches of texts to fixed-size embedding vectors.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// New builds the embedding provider named by cfg.
func New(cfg config.EmbeddingConfig) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("embedding: openai provider requires an api key")
		}
		return NewOpenAI(cfg), nil
	case "hash", "":
		return NewHashing(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("embedding: unknown provider %q", cfg.Provider)
	}
}
