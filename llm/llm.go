// Package llm wraps the text-generation backends behind a single interface.
package llm

import (
	"context"
	"fmt"

	"github.com/merchantry/askdb/config"
)

// Generator produces a completion for a system/user prompt pair.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// New builds the generator named by cfg.
func New(cfg config.LLMConfig) (Generator, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg)
	case "ollama":
		return NewOllama(cfg)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}
