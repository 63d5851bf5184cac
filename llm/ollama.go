package llm

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/merchantry/askdb/config"
	"github.com/merchantry/askdb/schema"
)

const defaultOllamaURL = "http://localhost:11434"

// Ollama generates completions against a local Ollama server.
type Ollama struct {
	client      *api.Client
	model       string
	temperature float64
	maxTokens   int
}

// NewOllama builds an Ollama generator from cfg.
func NewOllama(cfg config.LLMConfig) (*Ollama, error) {
	base := cfg.BaseURL
	if base == "" {
		base = defaultOllamaURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, err
	}
	return &Ollama{
		client:      api.NewClient(u, http.DefaultClient),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

func (o *Ollama) Generate(ctx context.Context, system, prompt string) (string, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:   o.model,
		System:  system,
		Prompt:  prompt,
		Stream:  &stream,
		Options: map[string]any{"temperature": o.temperature},
	}
	if o.maxTokens > 0 {
		req.Options["num_predict"] = o.maxTokens
	}

	var out strings.Builder
	err := o.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		out.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", schema.NewCollaboratorError("llm", err)
	}
	return strings.TrimSpace(out.String()), nil
}
