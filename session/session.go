// Package session manages per-conversation state: the interaction history,
// the inferred conversation context, and the lifecycle of idle sessions.
package session

import (
	"strconv"
	"strings"
	"time"

	"github.com/merchantry/askdb/schema"
)

// Interaction is one recorded question/answer exchange. Immutable once
// appended, except for feedback attached later through the store.
type Interaction struct {
	Timestamp time.Time      `json:"timestamp"`
	Question  string         `json:"question"`
	Answer    string         `json:"answer"`
	Strategy  schema.Strategy `json:"query_type"`
	Metadata  map[string]any `json:"metadata"`
}

// Feedback is a user rating attached to a past interaction.
type Feedback struct {
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Session holds the state of one ongoing conversation.
type Session struct {
	ID           string
	CreatedAt    time.Time
	LastActivity time.Time
	History      []Interaction
	Context      schema.ConversationContext
}

// Topic keyword tables used when recomputing the context after each
// interaction. These are narrower than the classifier's entity sets on
// purpose: only the strongest signals move the topic.
var (
	topicProductWords  = []string{"product", "item", "food", "beverage"}
	topicCustomerWords = []string{"customer", "client", "buyer"}
	topicOrderWords    = []string{"order", "purchase", "sale"}

	intentCountingWords  = []string{"how many", "count", "total", "number"}
	intentComparingWords = []string{"compare", "difference", "versus", "vs"}
	intentBrowsingWords  = []string{"list", "show", "what", "which"}
)

// recordInteraction appends the exchange and derives the new context from it.
func (s *Session) recordInteraction(question, answer string, strategy schema.Strategy, metadata map[string]any) {
	now := time.Now()
	s.LastActivity = now

	if metadata == nil {
		metadata = map[string]any{}
	}
	s.History = append(s.History, Interaction{
		Timestamp: now,
		Question:  question,
		Answer:    answer,
		Strategy:  strategy,
		Metadata:  metadata,
	})

	if entities, ok := metadata["entities"].([]string); ok {
		s.mergeEntities(entities)
	}
	s.updateContext(question, strategy)
}

// updateContext recomputes topic and intent from the question just asked.
// Topic and intent are independent chains: at most one of each is set per
// call, and an unmatched question leaves the prior value untouched.
// The last strategy is always overwritten.
func (s *Session) updateContext(question string, strategy schema.Strategy) {
	lower := strings.ToLower(question)

	if containsAny(lower, topicProductWords) {
		s.Context.Topic = schema.EntityProducts
	} else if containsAny(lower, topicCustomerWords) {
		s.Context.Topic = schema.EntityCustomers
	} else if containsAny(lower, topicOrderWords) {
		s.Context.Topic = schema.EntityOrders
	}

	if containsAny(lower, intentCountingWords) {
		s.Context.Intent = schema.IntentCounting
	} else if containsAny(lower, intentComparingWords) {
		s.Context.Intent = schema.IntentComparing
	} else if containsAny(lower, intentBrowsingWords) {
		s.Context.Intent = schema.IntentBrowsing
	}

	s.Context.LastStrategy = strategy
}

// Summary renders the last n interactions as alternating Q/A lines, with
// answers truncated for prompt friendliness.
func (s *Session) Summary(n int) string {
	if len(s.History) == 0 {
		return "No previous conversation."
	}

	recent := s.History
	if n > 0 && len(recent) > n {
		recent = recent[len(recent)-n:]
	}

	parts := make([]string, 0, len(recent))
	for i, interaction := range recent {
		answer := interaction.Answer
		if len(answer) > 200 {
			answer = answer[:200] + "..."
		}
		idx := strconv.Itoa(i + 1)
		parts = append(parts, "Q"+idx+": "+interaction.Question+"\nA"+idx+": "+answer)
	}
	return strings.Join(parts, "\n\n")
}

// RecentEntities returns the union of entity categories recorded in the last
// n interactions, in first-seen order.
func (s *Session) RecentEntities(n int) []string {
	recent := s.History
	if n > 0 && len(recent) > n {
		recent = recent[len(recent)-n:]
	}

	seen := map[string]bool{}
	out := []string{}
	for _, interaction := range recent {
		entities, ok := interaction.Metadata["entities"].([]string)
		if !ok {
			continue
		}
		for _, e := range entities {
			if !seen[e] {
				seen[e] = true
				out = append(out, e)
			}
		}
	}
	return out
}

// mergeEntities unions newly detected entity categories into the context.
func (s *Session) mergeEntities(entities []string) {
	for _, e := range entities {
		found := false
		for _, existing := range s.Context.Entities {
			if existing == e {
				found = true
				break
			}
		}
		if !found {
			s.Context.Entities = append(s.Context.Entities, e)
		}
	}
}

// expired reports whether the session has been idle longer than timeout.
func (s *Session) expired(timeout time.Duration) bool {
	return time.Since(s.LastActivity) > timeout
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

