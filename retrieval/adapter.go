// Package retrieval answers questions from the embedded product corpus. It
// builds the index lazily on first use, grounds the model on the nearest
// documents, and degrades to an explanatory answer instead of failing.
package retrieval

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/merchantry/askdb/cache"
	"github.com/merchantry/askdb/common/logger"
	"github.com/merchantry/askdb/llm"
	"github.com/merchantry/askdb/metrics"
	"github.com/merchantry/askdb/schema"
	"github.com/merchantry/askdb/vectordb"
)

const answerSystemPrompt = `You answer questions about a retail product catalog.
Ground every statement in the provided context. Count, list, or describe
items as the question calls for. If the context does not contain the
answer, say so briefly instead of guessing.`

// DocumentSource supplies the corpus the index is built from.
type DocumentSource interface {
	Documents(ctx context.Context) ([]string, error)
}

// Options tunes the adapter.
type Options struct {
	TopK             int
	MaxContextTokens int
	CacheSize        int
	CacheTTL         time.Duration
}

// Adapter is the retrieval strategy: embed, search, then generate.
type Adapter struct {
	index  vectordb.Index
	gen    llm.Generator
	source DocumentSource

	topK             int
	maxContextTokens int
	tokens           *tokenCounter
	answers          *cache.LRU[schema.RetrievalResult]

	buildMu sync.Mutex
	built   bool
}

// NewAdapter builds an adapter over index, gen, and source.
func NewAdapter(index vectordb.Index, gen llm.Generator, source DocumentSource, opts Options) *Adapter {
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	if opts.MaxContextTokens <= 0 {
		opts.MaxContextTokens = 1500
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	return &Adapter{
		index:            index,
		gen:              gen,
		source:           source,
		topK:             opts.TopK,
		maxContextTokens: opts.MaxContextTokens,
		tokens:           newTokenCounter(),
		answers:          cache.NewLRU[schema.RetrievalResult](opts.CacheSize, opts.CacheTTL),
	}
}

// Ask answers question from the corpus. Failures are reported inside the
// result's Answer text so the conversation keeps moving.
func (a *Adapter) Ask(ctx context.Context, question string) schema.RetrievalResult {
	key := strings.ToLower(strings.TrimSpace(question))
	if cached, ok := a.answers.Get(key); ok {
		metrics.CacheHits.WithLabelValues("hit").Inc()
		return cached
	}
	metrics.CacheHits.WithLabelValues("miss").Inc()

	result := a.ask(ctx, question)
	if result.ContextCount > 0 {
		a.answers.Set(key, result)
	}
	return result
}

func (a *Adapter) ask(ctx context.Context, question string) schema.RetrievalResult {
	result := schema.RetrievalResult{Question: question}

	if err := a.ensureBuilt(ctx); err != nil {
		logger.Errorf("retrieval index build failed: %v", err)
		result.Answer = fmt.Sprintf("I could not prepare the knowledge base: %v", err)
		return result
	}

	hits, err := a.index.Search(ctx, question, a.topK)
	if err != nil {
		logger.Errorf("retrieval search failed: %v", err)
		result.Answer = fmt.Sprintf("I encountered an error searching the knowledge base: %v", err)
		return result
	}
	if len(hits) == 0 {
		result.Answer = "I could not find anything related to that in the product catalog."
		return result
	}

	included := a.selectContext(hits)
	result.Context = included
	result.ContextCount = len(included)

	var contextText strings.Builder
	for _, doc := range included {
		contextText.WriteString("- ")
		contextText.WriteString(doc)
		contextText.WriteString("\n")
	}
	prompt := fmt.Sprintf("Context:\n%s\nQuestion: %s", contextText.String(), question)
	answer, err := a.gen.Generate(ctx, answerSystemPrompt, prompt)
	if err != nil {
		logger.Errorf("retrieval generation failed: %v", err)
		result.Answer = fmt.Sprintf("I found relevant information but could not compose an answer: %v", err)
		return result
	}
	if answer == "" {
		answer = "No answer generated."
	}
	result.Answer = answer
	return result
}

// selectContext keeps hits in rank order until the token budget runs out.
// The last document that fits only partially is truncated rather than
// dropped, so the best matches always make it into the prompt.
func (a *Adapter) selectContext(hits []schema.SearchResult) []string {
	var included []string
	used := 0
	for _, hit := range hits {
		cost := a.tokens.count(hit.Text)
		if used+cost > a.maxContextTokens {
			if remaining := a.maxContextTokens - used; remaining > 0 {
				if part := a.tokens.truncate(hit.Text, remaining); part != "" {
					included = append(included, part)
				}
			}
			break
		}
		included = append(included, hit.Text)
		used += cost
	}
	return included
}

// ensureBuilt builds the index on first use. Only a successful build is
// latched; a transient failure (cancelled context, momentary DB error) is
// retried on the next question.
func (a *Adapter) ensureBuilt(ctx context.Context) error {
	a.buildMu.Lock()
	defer a.buildMu.Unlock()
	if a.built {
		return nil
	}

	docs, err := a.source.Documents(ctx)
	if err != nil {
		return err
	}
	logger.Infof("building retrieval index over %d documents", len(docs))
	if err := a.index.Build(ctx, docs); err != nil {
		return err
	}
	a.built = true
	return nil
}
