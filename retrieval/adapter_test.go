package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchantry/askdb/embedding"
	"github.com/merchantry/askdb/schema"
	"github.com/merchantry/askdb/vectordb"
)

type fakeSource struct {
	docs []string
	err  error
}

func (f *fakeSource) Documents(context.Context) ([]string, error) {
	return f.docs, f.err
}

type fakeGenerator struct {
	reply string
	err   error
	calls int
}

func (f *fakeGenerator) Generate(_ context.Context, _, _ string) (string, error) {
	f.calls++
	return f.reply, f.err
}

func newAdapter(t *testing.T, gen *fakeGenerator, src *fakeSource) *Adapter {
	t.Helper()
	idx := vectordb.NewMemory(embedding.NewHashing(128))
	return NewAdapter(idx, gen, src, Options{TopK: 2})
}

func TestAskGroundsAnswerOnCorpus(t *testing.T) {
	gen := &fakeGenerator{reply: "Chai is a delicate tea blend."}
	src := &fakeSource{docs: []string{
		"Chai (Beverages): 10 boxes x 20 bags",
		"Ikura: salmon roe in jars",
	}}
	a := newAdapter(t, gen, src)

	result := a.Ask(context.Background(), "what is chai?")

	assert.Equal(t, "Chai is a delicate tea blend.", result.Answer)
	assert.Equal(t, 2, result.ContextCount)
	assert.Equal(t, "Chai (Beverages): 10 boxes x 20 bags", result.Context[0],
		"best match should rank first")
}

func TestAskCachesAnswers(t *testing.T) {
	gen := &fakeGenerator{reply: "cached answer"}
	src := &fakeSource{docs: []string{"Chai: tea blend"}}
	a := newAdapter(t, gen, src)

	first := a.Ask(context.Background(), "What is Chai?")
	second := a.Ask(context.Background(), "  what is chai?  ")

	assert.Equal(t, first.Answer, second.Answer)
	assert.Equal(t, 1, gen.calls, "second ask should be served from cache")
}

func TestAskDegradesOnBuildFailure(t *testing.T) {
	gen := &fakeGenerator{reply: "unused"}
	src := &fakeSource{err: errors.New("database locked")}
	a := newAdapter(t, gen, src)

	result := a.Ask(context.Background(), "what is chai?")

	assert.Contains(t, result.Answer, "could not prepare the knowledge base")
	assert.Contains(t, result.Answer, "database locked")
	assert.Zero(t, result.ContextCount)
	assert.Zero(t, gen.calls)
}

func TestAskRetriesBuildAfterTransientFailure(t *testing.T) {
	gen := &fakeGenerator{reply: "Chai is a tea blend."}
	src := &fakeSource{docs: []string{"Chai: tea blend"}, err: errors.New("database locked")}
	a := newAdapter(t, gen, src)

	first := a.Ask(context.Background(), "what is chai?")
	assert.Contains(t, first.Answer, "could not prepare the knowledge base")

	src.err = nil
	second := a.Ask(context.Background(), "what is chai?")
	assert.Equal(t, "Chai is a tea blend.", second.Answer,
		"a failed build must not be latched for the process lifetime")
	assert.Equal(t, 1, second.ContextCount)
}

func TestAskDegradesOnGenerationFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("model offline")}
	src := &fakeSource{docs: []string{"Chai: tea blend"}}
	a := newAdapter(t, gen, src)

	result := a.Ask(context.Background(), "what is chai?")

	assert.Contains(t, result.Answer, "could not compose an answer")
	assert.Equal(t, 1, result.ContextCount, "context was still retrieved")
}

func TestAskEmptyCorpus(t *testing.T) {
	gen := &fakeGenerator{reply: "unused"}
	src := &fakeSource{}
	a := newAdapter(t, gen, src)

	result := a.Ask(context.Background(), "what is chai?")

	assert.Contains(t, result.Answer, "could not find anything")
	assert.Zero(t, gen.calls)
}

func TestSelectContextRespectsTokenBudget(t *testing.T) {
	idx := vectordb.NewMemory(embedding.NewHashing(64))
	a := NewAdapter(idx, &fakeGenerator{}, &fakeSource{}, Options{MaxContextTokens: 8})

	hits := []schema.SearchResult{
		{Text: "first document with several words in it"},
		{Text: "second document that should be dropped entirely"},
	}
	included := a.selectContext(hits)

	require.NotEmpty(t, included)
	for _, doc := range included {
		assert.NotContains(t, doc, "second document")
	}
	total := 0
	for _, doc := range included {
		total += a.tokens.count(doc)
	}
	assert.LessOrEqual(t, total, 8)
}
