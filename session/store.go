package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/merchantry/askdb/common/logger"
	"github.com/merchantry/askdb/schema"
)

// Store manages the mapping of session identifier to session. Expiry is
// enforced lazily on lookup and in bulk by Sweep. All methods are safe for
// concurrent use, but two concurrent requests against the same session id
// may interleave context updates; the store makes no ordering promise there.
type Store struct {
	mu         sync.RWMutex
	sessions   map[string]*Session
	timeout    time.Duration
	maxHistory int
}

// NewStore creates a store with the given idle timeout. maxHistory caps the
// per-session history length; zero means unbounded.
func NewStore(timeout time.Duration, maxHistory int) *Store {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &Store{
		sessions:   make(map[string]*Session),
		timeout:    timeout,
		maxHistory: maxHistory,
	}
}

// Create inserts a fresh empty session and returns its identifier.
func (st *Store) Create() string {
	now := time.Now()
	s := &Session{
		ID:           uuid.New().String(),
		CreatedAt:    now,
		LastActivity: now,
		History:      []Interaction{},
	}

	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	return s.ID
}

// Get returns the session for id, or nil if the id is unknown or the
// session has expired. An expired session is evicted as a side effect.
func (st *Store) Get(id string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[id]
	if !ok {
		return nil
	}
	if s.expired(st.timeout) {
		delete(st.sessions, id)
		return nil
	}
	return s
}

// GetOrCreate resolves id via Get when supplied; an absent, unknown or
// expired id is silently replaced by a new session.
func (st *Store) GetOrCreate(id string) (string, *Session) {
	if id != "" {
		if s := st.Get(id); s != nil {
			return id, s
		}
	}
	newID := st.Create()
	return newID, st.Get(newID)
}

// Sweep evicts every session idle beyond the timeout and returns how many
// were removed.
func (st *Store) Sweep() int {
	st.mu.Lock()
	defer st.mu.Unlock()

	removed := 0
	for id, s := range st.sessions {
		if s.expired(st.timeout) {
			delete(st.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		logger.Debugf("session: swept %d expired session(s)", removed)
	}
	return removed
}

// AddInteraction appends one exchange to the session and recomputes its
// context from the question text.
func (st *Store) AddInteraction(id, question, answer string, strategy schema.Strategy, metadata map[string]any) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[id]
	if !ok {
		return schema.ErrSessionNotFound
	}

	s.recordInteraction(question, answer, strategy, metadata)
	if st.maxHistory > 0 && len(s.History) > st.maxHistory {
		s.History = s.History[len(s.History)-st.maxHistory:]
	}
	return nil
}

// RecordFeedback attaches a rating to the interaction at index within the
// session's history.
func (st *Store) RecordFeedback(id string, index, rating int, comment string) error {
	if rating < 1 || rating > 5 {
		return schema.ErrInvalidRating
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[id]
	if !ok {
		return schema.ErrSessionNotFound
	}
	if index < 0 || index >= len(s.History) {
		return schema.ErrInvalidFeedbackIndex
	}

	s.History[index].Metadata["feedback"] = Feedback{
		Rating:    rating,
		Comment:   comment,
		Timestamp: time.Now(),
	}
	return nil
}

// End removes the session regardless of its idle time.
func (st *Store) End(id string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.sessions[id]; !ok {
		return schema.ErrSessionNotFound
	}
	delete(st.sessions, id)
	return nil
}

// History returns up to limit most-recent interactions for the session,
// along with the total history length. limit <= 0 returns everything.
func (st *Store) History(id string, limit int) ([]Interaction, int, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s, ok := st.sessions[id]
	if !ok {
		return nil, 0, schema.ErrSessionNotFound
	}

	total := len(s.History)
	history := s.History
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	out := make([]Interaction, len(history))
	copy(out, history)
	return out, total, nil
}

// Stats assembles the statistics view of one session.
func (st *Store) Stats(id string) (schema.SessionStats, error) {
	s := st.Get(id)
	if s == nil {
		return schema.SessionStats{}, schema.ErrSessionNotFound
	}

	return schema.SessionStats{
		SessionID:         s.ID,
		CreatedAt:         s.CreatedAt,
		LastActivity:      s.LastActivity,
		TotalInteractions: len(s.History),
		CurrentContext: map[string]any{
			"topic":           s.Context.Topic,
			"intent":          s.Context.Intent,
			"entities":        s.Context.Entities,
			"last_query_type": s.Context.LastStrategy,
		},
		ConversationSummary: s.Summary(3),
	}, nil
}

// Active reports the number of live sessions without evicting anything.
func (st *Store) Active() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// IsNotFound reports whether err is the store's not-found outcome.
func IsNotFound(err error) bool {
	return errors.Is(err, schema.ErrSessionNotFound)
}
