// Package schema defines the shared domain types of the assistant: the
// processing strategy variants, the classifier output, and the response
// shape returned to callers.
package schema

import "time"

// Strategy is the closed set of processing paths a question can take.
type Strategy string

const (
	StrategyRetrieval     Strategy = "RAG"
	StrategySQL           Strategy = "SQL"
	StrategyHybrid        Strategy = "HYBRID"
	StrategyClarification Strategy = "CLARIFICATION"
)

// Response-only strategy labels. The classifier never emits these; the
// orchestrator uses them to label fallback and failure outcomes.
const (
	LabelRetrievalFallback Strategy = "RAG_FALLBACK"
	LabelError             Strategy = "ERROR"
)

func (s Strategy) String() string { return string(s) }

// Entity categories detected lexically in questions.
const (
	EntityProducts  = "products"
	EntityCustomers = "customers"
	EntityOrders    = "orders"
	EntityEmployees = "employees"
	EntityRegions   = "regions"
)

// ConversationContext is the mutable context record a session carries: the
// inferred topic and intent, the entity categories seen so far, and the
// strategy used for the previous interaction. Zero values mean "unset".
type ConversationContext struct {
	Topic        string   `json:"topic,omitempty"`
	Intent       string   `json:"intent,omitempty"`
	Entities     []string `json:"entities"`
	LastStrategy Strategy `json:"last_query_type,omitempty"`
}

// Intent values inferred from question text.
const (
	IntentCounting  = "counting"
	IntentComparing = "comparing"
	IntentBrowsing  = "browsing"
)

// QueryAnalysis is the transient result of classifying one question.
// It is never persisted.
type QueryAnalysis struct {
	OriginalQuestion   string   `json:"original_question"`
	Strategy           Strategy `json:"query_type"`
	Confidence         float64  `json:"confidence"`
	Reasoning          string   `json:"reasoning"`
	Entities           []string `json:"entities"`
	ClarificationNeed  string   `json:"clarification_needed,omitempty"`
	SuggestedFollowups []string `json:"suggested_followups"`
}

// SearchResult is one nearest-neighbor hit from a vector index.
type SearchResult struct {
	Text     string  `json:"text"`
	Distance float64 `json:"distance"`
}

// RetrievalResult is the Retrieval Strategy Adapter's answer shape.
type RetrievalResult struct {
	Question     string   `json:"question"`
	Answer       string   `json:"answer"`
	Context      []string `json:"context"`
	ContextCount int      `json:"context_count"`
}

// ConversationalResponse is the result of one orchestrator invocation.
type ConversationalResponse struct {
	Answer              string    `json:"answer"`
	Confidence          float64   `json:"confidence"`
	Strategy            Strategy  `json:"query_type_used"`
	SessionID           string    `json:"session_id"`
	Reasoning           string    `json:"reasoning"`
	Sources             []string  `json:"sources"`
	SQLQuery            string    `json:"sql_query,omitempty"`
	SuggestedFollowups  []string  `json:"suggested_followups"`
	ClarificationNeed   string    `json:"clarification_needed,omitempty"`
	ConversationSummary string    `json:"conversation_summary"`
	Timestamp           time.Time `json:"timestamp"`
}

// SessionStats summarizes one session for the statistics endpoint.
type SessionStats struct {
	SessionID           string         `json:"session_id"`
	CreatedAt           time.Time      `json:"created_at"`
	LastActivity        time.Time      `json:"last_activity"`
	TotalInteractions   int            `json:"total_interactions"`
	CurrentContext      map[string]any `json:"current_context"`
	ConversationSummary string         `json:"conversation_summary"`
}

// QueryStats holds the process-wide per-strategy counters.
type QueryStats struct {
	TotalQueries          int `json:"total_queries"`
	RAGQueries            int `json:"rag_queries"`
	SQLQueries            int `json:"sql_queries"`
	HybridQueries         int `json:"hybrid_queries"`
	ClarificationRequests int `json:"clarification_requests"`
}

// GlobalStats is the shape returned by the global statistics operation.
type GlobalStats struct {
	ActiveSessions  int        `json:"active_sessions"`
	QueryStatistics QueryStats `json:"query_statistics"`
	SystemStatus    string     `json:"system_status"`
}
