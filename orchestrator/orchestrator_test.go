package orchestrator

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchantry/askdb/corpus"
	"github.com/merchantry/askdb/embedding"
	"github.com/merchantry/askdb/nlsql"
	"github.com/merchantry/askdb/retrieval"
	"github.com/merchantry/askdb/schema"
	"github.com/merchantry/askdb/session"
	"github.com/merchantry/askdb/sqlagent"
	"github.com/merchantry/askdb/vectordb"
)

// answerGenerator always replies with the same text, optionally after a
// delay, standing in for the chat model.
type answerGenerator struct {
	reply string
	delay time.Duration
}

func (g *answerGenerator) Generate(ctx context.Context, _, _ string) (string, error) {
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return g.reply, nil
}

type stack struct {
	orch     *Orchestrator
	sessions *session.Store
}

func newStack(t *testing.T, ragReply string, sqlGen *answerGenerator, opts Options) *stack {
	return newStackGen(t, &answerGenerator{reply: ragReply}, sqlGen, opts)
}

func newStackGen(t *testing.T, ragGen, sqlGen *answerGenerator, opts Options) *stack {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE categories (
			category_id INTEGER PRIMARY KEY,
			category_name TEXT,
			description TEXT
		);
		CREATE TABLE products (
			product_id INTEGER PRIMARY KEY,
			product_name TEXT,
			quantity_per_unit TEXT,
			category_id INTEGER
		);
		INSERT INTO categories VALUES (1, 'Beverages', 'Soft drinks, coffees, teas');
		INSERT INTO products VALUES (1, 'Chai', '10 boxes x 20 bags', 1);
		INSERT INTO products VALUES (2, 'Chang', '24 - 12 oz bottles', 1);
		INSERT INTO products VALUES (3, 'Ikura', '12 - 200 ml jars', NULL);
	`)
	require.NoError(t, err)

	idx := vectordb.NewMemory(embedding.NewHashing(128))
	ret := retrieval.NewAdapter(idx, ragGen, corpus.NewSource(db), retrieval.Options{TopK: 2})

	pool := sqlagent.NewPool(nlsql.NewAgent(db, sqlGen), 2)
	t.Cleanup(pool.Close)

	sessions := session.NewStore(30*time.Minute, 0)
	return &stack{
		orch:     New(sessions, ret, pool, opts),
		sessions: sessions,
	}
}

func TestAskSQLPath(t *testing.T) {
	st := newStack(t, "unused", &answerGenerator{reply: "SELECT COUNT(*) FROM products"}, Options{})

	resp, err := st.orch.Ask(context.Background(), "count the total number of products", "", nil)
	require.NoError(t, err)

	assert.Equal(t, schema.StrategySQL, resp.Strategy)
	assert.Contains(t, resp.Answer, "The answer is 3.")
	assert.Contains(t, resp.Answer, "break these results down", "numeric answers invite a drill-down")
	assert.Equal(t, "SELECT COUNT(*) FROM products", resp.SQLQuery)
	assert.Equal(t, []string{"Database query"}, resp.Sources)
	assert.NotEmpty(t, resp.SessionID)
	assert.GreaterOrEqual(t, resp.Confidence, 0.6)

	_, total, err := st.orch.SessionHistory(resp.SessionID, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestAskSQLSuggestsRelatedQueries(t *testing.T) {
	st := newStack(t, "unused", &answerGenerator{reply: "SELECT COUNT(*) FROM products"}, Options{})

	resp, err := st.orch.Ask(context.Background(), "count the total number of products", "", nil)
	require.NoError(t, err)

	assert.Contains(t, resp.Answer,
		"You might also be interested in: product categories, supplier information, pricing analysis")
}

func TestAskRetrievalPath(t *testing.T) {
	st := newStack(t, "Chai is a delicate tea blend.", &answerGenerator{reply: "unused"}, Options{})

	resp, err := st.orch.Ask(context.Background(), "what is chai", "", nil)
	require.NoError(t, err)

	assert.Equal(t, schema.StrategyRetrieval, resp.Strategy)
	assert.Contains(t, resp.Answer, "Chai is a delicate tea blend.")
	assert.Equal(t, []string{"Vector search results"}, resp.Sources)
	assert.Empty(t, resp.SQLQuery)
}

func TestAskRetrievalJoinsBlurbsForEveryEntity(t *testing.T) {
	st := newStack(t, "They mostly buy beverages.", &answerGenerator{reply: "unused"}, Options{})

	resp, err := st.orch.Ask(context.Background(), "describe the products our customers buy", "", nil)
	require.NoError(t, err)

	assert.Equal(t, schema.StrategyRetrieval, resp.Strategy)
	assert.Contains(t, resp.Answer, "This database contains product information")
	assert.Contains(t, resp.Answer, "Customer data includes company information")
}

func TestAskClarificationPath(t *testing.T) {
	st := newStack(t, "unused", &answerGenerator{reply: "unused"}, Options{})

	resp, err := st.orch.Ask(context.Background(), "tell me more about it", "", nil)
	require.NoError(t, err)

	assert.Equal(t, schema.StrategyClarification, resp.Strategy)
	assert.InDelta(t, 0.8, resp.Confidence, 1e-9)
	assert.NotEmpty(t, resp.ClarificationNeed)

	_, total, err := st.orch.SessionHistory(resp.SessionID, 0)
	require.NoError(t, err)
	assert.Zero(t, total, "clarification turns are not recorded")

	stats := st.orch.GlobalStatistics()
	assert.Equal(t, 1, stats.QueryStatistics.ClarificationRequests)
	assert.Zero(t, stats.QueryStatistics.TotalQueries,
		"clarification turns do not count as answered queries")
}

func TestAskHybridPath(t *testing.T) {
	st := newStack(t, "We stock a range of beverages.", &answerGenerator{reply: "SELECT COUNT(*) FROM products"}, Options{})

	resp, err := st.orch.Ask(context.Background(), "how many products do we have", "", nil)
	require.NoError(t, err)

	assert.Equal(t, schema.StrategyHybrid, resp.Strategy)
	assert.Contains(t, resp.Answer, "The answer is 3.")
	assert.Contains(t, resp.Answer, "Additional context: We stock a range of beverages.")
	assert.Equal(t, []string{"Vector search results", "Database query"}, resp.Sources)
}

func TestAskHybridTimeoutFallsBackToRetrieval(t *testing.T) {
	sqlGen := &answerGenerator{reply: "SELECT COUNT(*) FROM products", delay: time.Second}
	st := newStack(t, "We stock a range of beverages.", sqlGen, Options{HybridTimeout: 50 * time.Millisecond})

	resp, err := st.orch.Ask(context.Background(), "how many products do we have", "", nil)
	require.NoError(t, err)

	assert.Equal(t, schema.LabelRetrievalFallback, resp.Strategy)
	assert.Equal(t, "We stock a range of beverages.", resp.Answer)
	assert.Contains(t, resp.Reasoning, "Timeout occurred, used RAG fallback")
	assert.Empty(t, resp.SQLQuery)
}

func TestAskHybridTimeoutWhileRetrievalInFlight(t *testing.T) {
	ragGen := &answerGenerator{reply: "We stock a range of beverages.", delay: 300 * time.Millisecond}
	sqlGen := &answerGenerator{reply: "SELECT COUNT(*) FROM products", delay: time.Second}
	st := newStackGen(t, ragGen, sqlGen, Options{HybridTimeout: 50 * time.Millisecond})

	resp, err := st.orch.Ask(context.Background(), "how many products do we have", "", nil)
	require.NoError(t, err)

	assert.Equal(t, schema.LabelRetrievalFallback, resp.Strategy,
		"a timeout falls back to retrieval even when that arm is still in flight")
	assert.Contains(t, resp.Reasoning, "Timeout occurred, used RAG fallback")
	assert.NotEmpty(t, resp.Answer)
	assert.NotEqual(t, schema.LabelError, resp.Strategy)
}

func TestAskEmptyQuestion(t *testing.T) {
	st := newStack(t, "unused", &answerGenerator{reply: "unused"}, Options{})

	_, err := st.orch.Ask(context.Background(), "   ", "", nil)
	assert.ErrorIs(t, err, schema.ErrEmptyQuestion)
}

func TestAskKeepsSessionAcrossTurns(t *testing.T) {
	st := newStack(t, "Chai is a tea.", &answerGenerator{reply: "SELECT COUNT(*) FROM products"}, Options{})

	first, err := st.orch.Ask(context.Background(), "what is chai", "", nil)
	require.NoError(t, err)
	second, err := st.orch.Ask(context.Background(), "count the total number of products", first.SessionID, nil)
	require.NoError(t, err)

	assert.Equal(t, first.SessionID, second.SessionID)
	assert.NotEmpty(t, second.ConversationSummary)

	_, total, err := st.orch.SessionHistory(first.SessionID, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	stats := st.orch.GlobalStatistics()
	assert.Equal(t, 2, stats.QueryStatistics.TotalQueries)
	assert.Equal(t, 1, stats.QueryStatistics.RAGQueries)
	assert.Equal(t, 1, stats.QueryStatistics.SQLQueries)
	assert.Equal(t, 1, stats.ActiveSessions)
	assert.Equal(t, "operational", stats.SystemStatus)
}

func TestAskReportsPreTurnSummary(t *testing.T) {
	st := newStack(t, "Chai is a tea.", &answerGenerator{reply: "unused"}, Options{})

	first, err := st.orch.Ask(context.Background(), "what is chai", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "No previous conversation.", first.ConversationSummary,
		"the summary describes the conversation before this turn")

	second, err := st.orch.Ask(context.Background(), "what is chang", first.SessionID, nil)
	require.NoError(t, err)
	assert.Contains(t, second.ConversationSummary, "what is chai")
	assert.NotContains(t, second.ConversationSummary, "what is chang")
}

func TestAskRecordsSourcesAndPreferences(t *testing.T) {
	st := newStack(t, "Chai is a tea.", &answerGenerator{reply: "unused"}, Options{})

	prefs := map[string]any{"detail": "brief"}
	resp, err := st.orch.Ask(context.Background(), "what is chai", "", prefs)
	require.NoError(t, err)

	history, _, err := st.orch.SessionHistory(resp.SessionID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, []string{"Vector search results"}, history[0].Metadata["sources"])
	assert.Equal(t, prefs, history[0].Metadata["preferences"])
}

func TestAskUnknownSessionStartsFresh(t *testing.T) {
	st := newStack(t, "Chai is a tea.", &answerGenerator{reply: "unused"}, Options{})

	resp, err := st.orch.Ask(context.Background(), "what is chai", "never-created-id", nil)
	require.NoError(t, err)
	assert.NotEqual(t, "never-created-id", resp.SessionID)
}

func TestFeedbackRoundTrip(t *testing.T) {
	st := newStack(t, "Chai is a tea.", &answerGenerator{reply: "unused"}, Options{})

	resp, err := st.orch.Ask(context.Background(), "what is chai", "", nil)
	require.NoError(t, err)

	require.NoError(t, st.orch.RecordFeedback(resp.SessionID, 0, 5, "helpful"))
	assert.ErrorIs(t, st.orch.RecordFeedback(resp.SessionID, 0, 9, ""), schema.ErrInvalidRating)
	assert.ErrorIs(t, st.orch.RecordFeedback(resp.SessionID, 7, 3, ""), schema.ErrInvalidFeedbackIndex)
}

func TestEndSession(t *testing.T) {
	st := newStack(t, "Chai is a tea.", &answerGenerator{reply: "unused"}, Options{})

	resp, err := st.orch.Ask(context.Background(), "what is chai", "", nil)
	require.NoError(t, err)

	require.NoError(t, st.orch.EndSession(resp.SessionID))
	assert.ErrorIs(t, st.orch.EndSession(resp.SessionID), schema.ErrSessionNotFound)

	_, err = st.orch.SessionStatistics(resp.SessionID)
	assert.ErrorIs(t, err, schema.ErrSessionNotFound)
}
