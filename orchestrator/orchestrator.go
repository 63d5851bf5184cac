// Package orchestrator coordinates one conversational turn: it resolves the
// session, classifies the question, dispatches to the retrieval path, the
// SQL path, or both, and records the exchange back into the session.
package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/merchantry/askdb/common/logger"
	"github.com/merchantry/askdb/metrics"
	"github.com/merchantry/askdb/nlsql"
	"github.com/merchantry/askdb/retrieval"
	"github.com/merchantry/askdb/router"
	"github.com/merchantry/askdb/schema"
	"github.com/merchantry/askdb/session"
	"github.com/merchantry/askdb/sqlagent"
)

// Reference cues that make a question lean on earlier turns. When one is
// present the single-strategy paths receive a context-augmented question;
// the hybrid path always works on the raw question so both arms see the
// same text.
var referenceCues = []string{"it", "that", "this", "them", "they", "also", "more"}

var numericAnswerRe = regexp.MustCompile(`\b\d+\b`)

// entityBlurbs extends retrieval answers with a pointer to the structured
// data available for the detected entities.
var entityBlurbs = map[string]string{
	schema.EntityProducts:  "This database contains product information including categories, suppliers, and pricing.",
	schema.EntityCustomers: "Customer data includes company information, contacts, and geographic details.",
	schema.EntityOrders:    "Order information includes purchase details, dates, and customer relationships.",
	schema.EntityEmployees: "Employee data covers staff information, territories, and reporting relationships.",
}

// relatedSuggestions names follow-up queries worth offering after a SQL
// answer that touched the entity.
var relatedSuggestions = map[string][]string{
	schema.EntityProducts:  {"product categories", "supplier information", "pricing analysis"},
	schema.EntityCustomers: {"customer regions", "order history", "contact details"},
	schema.EntityOrders:    {"order trends", "delivery information", "sales analysis"},
	schema.EntityEmployees: {"territory assignments", "sales performance", "team structure"},
}

// Options tunes the orchestrator.
type Options struct {
	HybridTimeout time.Duration
	SweepEvery    int
}

// Orchestrator is the conversational entry point.
type Orchestrator struct {
	sessions  *session.Store
	retrieval *retrieval.Adapter
	sqlPool   *sqlagent.Pool

	hybridTimeout time.Duration
	sweepEvery    int

	mu        sync.Mutex
	callCount int
	stats     schema.QueryStats
}

// New wires an orchestrator over its collaborators.
func New(sessions *session.Store, ret *retrieval.Adapter, sqlPool *sqlagent.Pool, opts Options) *Orchestrator {
	if opts.HybridTimeout <= 0 {
		opts.HybridTimeout = 30 * time.Second
	}
	if opts.SweepEvery <= 0 {
		opts.SweepEvery = 10
	}
	return &Orchestrator{
		sessions:      sessions,
		retrieval:     ret,
		sqlPool:       sqlPool,
		hybridTimeout: opts.HybridTimeout,
		sweepEvery:    opts.SweepEvery,
	}
}

// Ask answers one question within the session identified by sessionID. An
// empty sessionID starts a new session. Optional preferences are recorded
// alongside the interaction. Collaborator failures come back as a degraded
// response rather than an error; only invalid input errors.
func (o *Orchestrator) Ask(ctx context.Context, question, sessionID string, preferences map[string]any) (schema.ConversationalResponse, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return schema.ConversationalResponse{}, schema.ErrEmptyQuestion
	}

	start := time.Now()
	o.maybeSweep()

	id, sess := o.sessions.GetOrCreate(sessionID)
	// The summary reported back describes the conversation as it stood
	// before this turn.
	summary := ""
	if stats, err := o.sessions.Stats(id); err == nil {
		summary = stats.ConversationSummary
	}
	analysis := router.Analyze(question, &sess.Context)
	metrics.RouterConfidence.WithLabelValues(analysis.Strategy.String()).Observe(analysis.Confidence)
	logger.Debugf("routed question to %s (confidence %.2f): %s", analysis.Strategy, analysis.Confidence, question)

	var resp schema.ConversationalResponse
	switch analysis.Strategy {
	case schema.StrategyClarification:
		resp = o.clarify(sess, analysis)
	case schema.StrategyRetrieval:
		resp = o.askRetrieval(ctx, sess, analysis)
	case schema.StrategySQL:
		resp = o.askSQL(ctx, sess, analysis)
	case schema.StrategyHybrid:
		resp = o.askHybrid(ctx, analysis)
	default:
		resp = o.degraded(fmt.Errorf("unknown strategy %q", analysis.Strategy))
	}

	resp.SessionID = id
	resp.Timestamp = time.Now()
	resp.ConversationSummary = summary

	if resp.Strategy != schema.StrategyClarification && resp.Strategy != schema.LabelError {
		metadata := map[string]any{
			"entities":   analysis.Entities,
			"confidence": resp.Confidence,
			"sources":    resp.Sources,
		}
		if resp.SQLQuery != "" {
			metadata["sql_query"] = resp.SQLQuery
		}
		if len(preferences) > 0 {
			metadata["preferences"] = preferences
		}
		if err := o.sessions.AddInteraction(id, question, resp.Answer, analysis.Strategy, metadata); err != nil {
			logger.Warnf("recording interaction for session %s: %v", id, err)
		}
	}

	o.countQuery(resp.Strategy, analysis.Strategy)
	metrics.QueriesTotal.WithLabelValues(resp.Strategy.String()).Inc()
	metrics.QueryDuration.WithLabelValues(resp.Strategy.String()).Observe(time.Since(start).Seconds())
	metrics.ActiveSessions.Set(float64(o.sessions.Active()))

	return resp, nil
}

// clarify answers an ambiguous question by asking what it refers to,
// reminding the user what was recently discussed. The exchange is not
// recorded, so the eventual restated question classifies cleanly.
func (o *Orchestrator) clarify(sess *session.Session, analysis schema.QueryAnalysis) schema.ConversationalResponse {
	answer := analysis.ClarificationNeed
	if recent := sess.RecentEntities(2); len(recent) > 0 {
		answer = fmt.Sprintf("%s We were recently discussing: %s.", answer, strings.Join(recent, ", "))
	}
	return schema.ConversationalResponse{
		Answer:             answer,
		Confidence:         analysis.Confidence,
		Strategy:           schema.StrategyClarification,
		Reasoning:          analysis.Reasoning,
		ClarificationNeed:  analysis.ClarificationNeed,
		SuggestedFollowups: []string{},
	}
}

func (o *Orchestrator) askRetrieval(ctx context.Context, sess *session.Session, analysis schema.QueryAnalysis) schema.ConversationalResponse {
	question := o.contextualize(sess, analysis.OriginalQuestion)
	result := o.retrieval.Ask(ctx, question)

	answer := result.Answer
	if len(sess.History) > 0 {
		answer = "Building on our previous discussion, " + lowerFirst(answer)
	}
	if blurb := entityContext(analysis.Entities); blurb != "" {
		answer += "\n\n" + blurb
	}

	return schema.ConversationalResponse{
		Answer:             answer,
		Confidence:         analysis.Confidence,
		Strategy:           schema.StrategyRetrieval,
		Reasoning:          analysis.Reasoning,
		Sources:            []string{"Vector search results"},
		SuggestedFollowups: analysis.SuggestedFollowups,
	}
}

func (o *Orchestrator) askSQL(ctx context.Context, sess *session.Session, analysis schema.QueryAnalysis) schema.ConversationalResponse {
	question := o.contextualize(sess, analysis.OriginalQuestion)
	result, err := o.sqlPool.Answer(ctx, question)
	if err != nil {
		return o.degraded(err)
	}

	answer := result.Answer
	if numericAnswerRe.MatchString(answer) && result.Rows > 0 {
		answer += " Would you like me to break these results down further?"
	}
	if related := relatedFor(analysis.Entities); len(related) > 0 {
		answer += "\n\nYou might also be interested in: " + strings.Join(related, ", ")
	}

	return schema.ConversationalResponse{
		Answer:             answer,
		Confidence:         analysis.Confidence,
		Strategy:           schema.StrategySQL,
		Reasoning:          analysis.Reasoning,
		Sources:            []string{"Database query"},
		SQLQuery:           result.SQL,
		SuggestedFollowups: analysis.SuggestedFollowups,
	}
}

// askHybrid runs both strategies concurrently on the unmodified question
// and merges the answers. If the SQL arm misses the deadline the retrieval
// answer ships alone, labeled as a fallback.
func (o *Orchestrator) askHybrid(ctx context.Context, analysis schema.QueryAnalysis) schema.ConversationalResponse {
	question := analysis.OriginalQuestion

	ragCh := make(chan schema.RetrievalResult, 1)
	sqlCh := make(chan *nlsql.Result, 1)

	hctx, cancel := context.WithTimeout(ctx, o.hybridTimeout)
	defer cancel()

	go func() {
		ragCh <- o.retrieval.Ask(hctx, question)
	}()
	go func() {
		result, err := o.sqlPool.Answer(hctx, question)
		if err != nil {
			logger.Warnf("hybrid sql arm failed: %v", err)
			sqlCh <- nil
			return
		}
		sqlCh <- result
	}()

	var (
		ragResult *schema.RetrievalResult
		sqlResult *nlsql.Result
		sqlDown   bool
		timedOut  bool
	)
	for ragResult == nil || (sqlResult == nil && !sqlDown && !timedOut) {
		select {
		case r := <-ragCh:
			ragResult = &r
		case s := <-sqlCh:
			if s == nil {
				sqlDown = true
				continue
			}
			sqlResult = s
		case <-hctx.Done():
			// The retrieval arm never errors out, it degrades into an
			// explanatory answer, so waiting for it here is bounded by
			// the generator honoring the cancelled context.
			timedOut = true
			if ragResult == nil {
				r := <-ragCh
				ragResult = &r
			}
		}
	}

	if sqlResult == nil {
		note := " (SQL agent failed, used RAG fallback)"
		if timedOut {
			metrics.HybridTimeouts.Inc()
			note = " (Timeout occurred, used RAG fallback)"
		}
		return schema.ConversationalResponse{
			Answer:             ragResult.Answer,
			Confidence:         analysis.Confidence,
			Strategy:           schema.LabelRetrievalFallback,
			Reasoning:          analysis.Reasoning + note,
			Sources:            []string{"Vector search results"},
			SuggestedFollowups: analysis.SuggestedFollowups,
		}
	}

	// Lead with whichever arm carries hard numbers.
	var answer string
	if numericAnswerRe.MatchString(sqlResult.Answer) {
		answer = sqlResult.Answer + "\n\nAdditional context: " + ragResult.Answer
	} else if sqlResult.Answer != "" {
		answer = ragResult.Answer + "\n\nFrom the database: " + sqlResult.Answer
	} else {
		answer = ragResult.Answer
	}

	return schema.ConversationalResponse{
		Answer:             answer,
		Confidence:         analysis.Confidence,
		Strategy:           schema.StrategyHybrid,
		Reasoning:          analysis.Reasoning,
		Sources:            []string{"Vector search results", "Database query"},
		SQLQuery:           sqlResult.SQL,
		SuggestedFollowups: analysis.SuggestedFollowups,
	}
}

// contextualize prepends a short conversation summary when the question
// references earlier turns.
func (o *Orchestrator) contextualize(sess *session.Session, question string) string {
	if !hasReferenceCue(question) || len(sess.History) == 0 {
		return question
	}
	return fmt.Sprintf("Previous conversation:\n%s\n\nCurrent question: %s", sess.Summary(2), question)
}

// degraded is the answer of last resort when a strategy path fails outright.
func (o *Orchestrator) degraded(err error) schema.ConversationalResponse {
	logger.Errorf("question processing failed: %v", err)
	return schema.ConversationalResponse{
		Answer:             fmt.Sprintf("I ran into a problem while answering that: %v. Please try again or rephrase the question.", err),
		Confidence:         0,
		Strategy:           schema.LabelError,
		Reasoning:          fmt.Sprintf("Processing failed: %v", err),
		SuggestedFollowups: []string{},
	}
}

// maybeSweep evicts expired sessions on every Nth call rather than on a
// timer, matching the request-driven lifecycle of the store.
func (o *Orchestrator) maybeSweep() {
	o.mu.Lock()
	o.callCount++
	sweep := o.callCount%o.sweepEvery == 0
	o.mu.Unlock()

	if sweep {
		o.sessions.Sweep()
	}
}

func (o *Orchestrator) countQuery(responseStrategy, routedStrategy schema.Strategy) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if responseStrategy == schema.LabelError {
		return
	}
	// Clarification turns ask the user to restate; the restated question
	// is the one counted as a query.
	if routedStrategy == schema.StrategyClarification {
		o.stats.ClarificationRequests++
		return
	}
	o.stats.TotalQueries++
	switch routedStrategy {
	case schema.StrategyRetrieval:
		o.stats.RAGQueries++
	case schema.StrategySQL:
		o.stats.SQLQueries++
	case schema.StrategyHybrid:
		o.stats.HybridQueries++
	}
}

// SessionStatistics reports the statistics view of one session.
func (o *Orchestrator) SessionStatistics(id string) (schema.SessionStats, error) {
	return o.sessions.Stats(id)
}

// SessionHistory returns up to limit recent interactions and the total
// history length for the session.
func (o *Orchestrator) SessionHistory(id string, limit int) ([]session.Interaction, int, error) {
	return o.sessions.History(id, limit)
}

// EndSession removes the session.
func (o *Orchestrator) EndSession(id string) error {
	err := o.sessions.End(id)
	metrics.ActiveSessions.Set(float64(o.sessions.Active()))
	return err
}

// RecordFeedback attaches a rating to one past interaction.
func (o *Orchestrator) RecordFeedback(id string, index, rating int, comment string) error {
	if err := o.sessions.RecordFeedback(id, index, rating, comment); err != nil {
		return err
	}
	metrics.FeedbackRatings.WithLabelValues(fmt.Sprintf("%d", rating)).Inc()
	return nil
}

// GlobalStatistics reports process-wide counters.
func (o *Orchestrator) GlobalStatistics() schema.GlobalStats {
	o.mu.Lock()
	stats := o.stats
	o.mu.Unlock()

	return schema.GlobalStats{
		ActiveSessions:  o.sessions.Active(),
		QueryStatistics: stats,
		SystemStatus:    "operational",
	}
}

func hasReferenceCue(question string) bool {
	lower := " " + strings.ToLower(question) + " "
	for _, cue := range referenceCues {
		if strings.Contains(lower, " "+cue+" ") {
			return true
		}
	}
	return false
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// entityContext joins the blurbs for every detected entity.
func entityContext(entities []string) string {
	var blurbs []string
	for _, e := range entities {
		if blurb, ok := entityBlurbs[e]; ok {
			blurbs = append(blurbs, blurb)
		}
	}
	return strings.Join(blurbs, " ")
}

// relatedFor collects related-query suggestions for the detected entities,
// capped at three.
func relatedFor(entities []string) []string {
	var related []string
	for _, e := range entities {
		related = append(related, relatedSuggestions[e]...)
	}
	if len(related) > 3 {
		related = related[:3]
	}
	return related
}
