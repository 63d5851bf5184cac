package embedding

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/merchantry/askdb/config"
	"github.com/merchantry/askdb/schema"
)

const defaultOpenAIDimensions = 1536

// OpenAI embeds text with a hosted OpenAI embedding model.
type OpenAI struct {
	client     openai.Client
	model      string
	dimensions int
}

// NewOpenAI builds an OpenAI embedding provider from cfg.
func NewOpenAI(cfg config.EmbeddingConfig) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = "text-embedding-3-small"
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = defaultOpenAIDimensions
	}
	return &OpenAI{
		client:     openai.NewClient(opts...),
		model:      model,
		dimensions: dims,
	}
}

func (o *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: o.model,
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, schema.NewCollaboratorError("embedding", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, schema.NewCollaboratorError("embedding",
			fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data)))
	}

	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func (o *OpenAI) Dimensions() int {
	return o.dimensions
}
