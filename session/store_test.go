package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchantry/askdb/schema"
)

func TestCreateAndGet(t *testing.T) {
	st := NewStore(time.Minute, 0)

	id := st.Create()
	require.NotEmpty(t, id)

	s := st.Get(id)
	require.NotNil(t, s)
	assert.Equal(t, id, s.ID)
	assert.Empty(t, s.History)
	assert.Equal(t, 1, st.Active())
}

func TestGetExpiredEvicts(t *testing.T) {
	st := NewStore(10*time.Millisecond, 0)
	id := st.Create()

	time.Sleep(20 * time.Millisecond)

	assert.Nil(t, st.Get(id))
	assert.Zero(t, st.Active(), "expired session is evicted on lookup")
}

func TestGetOrCreateReplacesUnknown(t *testing.T) {
	st := NewStore(time.Minute, 0)

	id, s := st.GetOrCreate("never-created")
	require.NotNil(t, s)
	assert.NotEqual(t, "never-created", id)

	again, _ := st.GetOrCreate(id)
	assert.Equal(t, id, again)
}

func TestSweep(t *testing.T) {
	st := NewStore(10*time.Millisecond, 0)
	st.Create()
	st.Create()

	time.Sleep(20 * time.Millisecond)
	fresh := st.Create()

	assert.Equal(t, 2, st.Sweep())
	assert.NotNil(t, st.Get(fresh))
}

func TestAddInteractionUpdatesContext(t *testing.T) {
	st := NewStore(time.Minute, 0)
	id := st.Create()

	err := st.AddInteraction(id, "how many products do we have", "The answer is 77.",
		schema.StrategySQL, map[string]any{"entities": []string{schema.EntityProducts}})
	require.NoError(t, err)

	stats, err := st.Stats(id)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalInteractions)
	assert.Equal(t, schema.EntityProducts, stats.CurrentContext["topic"])
	assert.Equal(t, schema.IntentCounting, stats.CurrentContext["intent"])
	assert.Equal(t, schema.StrategySQL, stats.CurrentContext["last_query_type"])
	assert.Equal(t, []string{schema.EntityProducts}, stats.CurrentContext["entities"])
}

func TestAddInteractionUnknownSession(t *testing.T) {
	st := NewStore(time.Minute, 0)

	err := st.AddInteraction("missing", "q", "a", schema.StrategyRetrieval, nil)
	assert.ErrorIs(t, err, schema.ErrSessionNotFound)
	assert.True(t, IsNotFound(err))
}

func TestHistoryAppendsExactlyOne(t *testing.T) {
	st := NewStore(time.Minute, 0)
	id := st.Create()

	for i := 0; i < 3; i++ {
		require.NoError(t, st.AddInteraction(id, "q", "a", schema.StrategyRetrieval, nil))
		_, total, err := st.History(id, 0)
		require.NoError(t, err)
		assert.Equal(t, i+1, total)
	}
}

func TestHistoryCap(t *testing.T) {
	st := NewStore(time.Minute, 2)
	id := st.Create()

	require.NoError(t, st.AddInteraction(id, "first", "a", schema.StrategyRetrieval, nil))
	require.NoError(t, st.AddInteraction(id, "second", "a", schema.StrategyRetrieval, nil))
	require.NoError(t, st.AddInteraction(id, "third", "a", schema.StrategyRetrieval, nil))

	interactions, total, err := st.History(id, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, interactions, 2)
	assert.Equal(t, "second", interactions[0].Question)
	assert.Equal(t, "third", interactions[1].Question)
}

func TestHistoryLimit(t *testing.T) {
	st := NewStore(time.Minute, 0)
	id := st.Create()

	for _, q := range []string{"one", "two", "three"} {
		require.NoError(t, st.AddInteraction(id, q, "a", schema.StrategyRetrieval, nil))
	}

	interactions, total, err := st.History(id, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, interactions, 2)
	assert.Equal(t, "two", interactions[0].Question)
}

func TestRecordFeedback(t *testing.T) {
	st := NewStore(time.Minute, 0)
	id := st.Create()
	require.NoError(t, st.AddInteraction(id, "q", "a", schema.StrategyRetrieval, nil))

	require.NoError(t, st.RecordFeedback(id, 0, 4, "useful"))

	interactions, _, err := st.History(id, 0)
	require.NoError(t, err)
	fb, ok := interactions[0].Metadata["feedback"].(Feedback)
	require.True(t, ok)
	assert.Equal(t, 4, fb.Rating)
	assert.Equal(t, "useful", fb.Comment)
}

func TestRecordFeedbackValidation(t *testing.T) {
	st := NewStore(time.Minute, 0)
	id := st.Create()
	require.NoError(t, st.AddInteraction(id, "q", "a", schema.StrategyRetrieval, nil))

	assert.ErrorIs(t, st.RecordFeedback(id, 0, 0, ""), schema.ErrInvalidRating)
	assert.ErrorIs(t, st.RecordFeedback(id, 0, 6, ""), schema.ErrInvalidRating)
	assert.ErrorIs(t, st.RecordFeedback(id, 5, 3, ""), schema.ErrInvalidFeedbackIndex)
	assert.ErrorIs(t, st.RecordFeedback("missing", 0, 3, ""), schema.ErrSessionNotFound)

	// A rejected rating must not touch the interaction.
	interactions, _, err := st.History(id, 0)
	require.NoError(t, err)
	_, tainted := interactions[0].Metadata["feedback"]
	assert.False(t, tainted)
}

func TestEnd(t *testing.T) {
	st := NewStore(time.Minute, 0)
	id := st.Create()

	require.NoError(t, st.End(id))
	assert.ErrorIs(t, st.End(id), schema.ErrSessionNotFound)
	assert.Nil(t, st.Get(id))
}

func TestSummary(t *testing.T) {
	st := NewStore(time.Minute, 0)
	id := st.Create()
	s := st.Get(id)

	assert.Equal(t, "No previous conversation.", s.Summary(3))

	require.NoError(t, st.AddInteraction(id, "what is chai", "A tea blend.", schema.StrategyRetrieval, nil))
	require.NoError(t, st.AddInteraction(id, "how many products", "The answer is 77.", schema.StrategySQL, nil))

	summary := s.Summary(2)
	assert.Contains(t, summary, "Q1: what is chai")
	assert.Contains(t, summary, "A2: The answer is 77.")
}

func TestRecentEntities(t *testing.T) {
	st := NewStore(time.Minute, 0)
	id := st.Create()

	require.NoError(t, st.AddInteraction(id, "q1", "a", schema.StrategyRetrieval,
		map[string]any{"entities": []string{schema.EntityProducts}}))
	require.NoError(t, st.AddInteraction(id, "q2", "a", schema.StrategySQL,
		map[string]any{"entities": []string{schema.EntityOrders, schema.EntityProducts}}))

	s := st.Get(id)
	assert.Equal(t, []string{schema.EntityProducts, schema.EntityOrders}, s.RecentEntities(2))
	assert.Equal(t, []string{schema.EntityOrders, schema.EntityProducts}, s.RecentEntities(1))
}
