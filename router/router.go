// Package router classifies incoming questions into a processing strategy.
// Classification is purely lexical: indicator vocabularies are matched
// against the normalized question text and scored per strategy. The
// classifier performs no I/O and has no hidden state, so the same question
// with the same session context always yields the same analysis.
package router

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/merchantry/askdb/schema"
)

// Indicator vocabularies for structured-query scoring. Counting words carry
// the highest weight, enumeration words slightly less, everything else the
// base weight.
var (
	sqlCountingWords = []string{"how many", "count", "total"}
	sqlEnumWords     = []string{"list all", "show all", "get all"}
	sqlOtherWords    = []string{
		"number of", "sum", "average", "max", "min",
		"where", "filter", "specific", "exactly", "precise", "show me all",
		"compare", "difference", "versus", "vs", "between", "greater than", "less than",
		"find all", "top", "bottom", "highest", "lowest",
	}
	sqlQuestionWords = []string{"which", "where", "when", "who"}
)

// Indicator vocabularies for retrieval scoring.
var (
	ragDefinitionWords = []string{"what is", "explain", "describe"}
	ragInfoWords       = []string{"tell me about", "information about"}
	ragOtherWords      = []string{
		"how does", "why", "details about", "overview", "summary", "background",
		"recommend", "suggest", "advice", "should i", "best", "better", "ideal",
	}
	ragQuestionWords = []string{"what", "how", "why"}
)

// Ambiguous-reference pronouns that may require clarification when the
// session has no established topic.
var clarificationWords = []string{"it", "that", "this", "them", "those", "these"}

// Continuation cues that signal a follow-up to the previous question.
var continuationWords = []string{"also", "and", "more", "additionally", "furthermore"}

// entityKeywords maps each entity category to the keywords that detect it.
var entityKeywords = map[string][]string{
	schema.EntityProducts:  {"product", "item", "food", "beverage", "category", "supplier"},
	schema.EntityCustomers: {"customer", "client", "buyer", "company", "contact"},
	schema.EntityOrders:    {"order", "purchase", "sale", "transaction", "delivery"},
	schema.EntityEmployees: {"employee", "staff", "worker", "manager"},
	schema.EntityRegions:   {"region", "territory", "area", "location", "country", "city"},
}

// entityOrder fixes the iteration order for detection, keeping results
// deterministic across runs.
var entityOrder = []string{
	schema.EntityProducts,
	schema.EntityCustomers,
	schema.EntityOrders,
	schema.EntityEmployees,
	schema.EntityRegions,
}

// followupTable suggests follow-up questions per detected entity and chosen
// strategy.
var followupTable = map[string]map[schema.Strategy][]string{
	schema.EntityProducts: {
		schema.StrategySQL: {
			"Would you like to see the top-selling products?",
			"Are you interested in products from a specific category?",
			"Do you want to compare products by price or popularity?",
		},
		schema.StrategyRetrieval: {
			"Would you like to know more about product categories?",
			"Are you interested in learning about suppliers?",
			"Do you want to understand how products are organized?",
		},
	},
	schema.EntityCustomers: {
		schema.StrategySQL: {
			"Would you like to see customer order statistics?",
			"Are you interested in customers from specific regions?",
			"Do you want to analyze customer purchasing patterns?",
		},
		schema.StrategyRetrieval: {
			"Would you like to understand customer demographics?",
			"Are you interested in customer relationship management?",
			"Do you want to learn about customer segmentation?",
		},
	},
}

const maxFollowups = 3

var (
	punctRe = regexp.MustCompile(`[^\w\s]`)
	spaceRe = regexp.MustCompile(`\s+`)
	digitRe = regexp.MustCompile(`\b\d+\b`)
)

// Analyze maps a question and optional session context to a QueryAnalysis.
// ctx may be nil for a context-free classification.
func Analyze(question string, ctx *schema.ConversationContext) schema.QueryAnalysis {
	lower := strings.TrimSpace(strings.ToLower(question))
	clean := normalize(lower)

	analysis := schema.QueryAnalysis{
		OriginalQuestion:   question,
		Strategy:           schema.StrategyRetrieval,
		Entities:           detectEntities(clean),
		SuggestedFollowups: []string{},
	}

	// Ambiguous references without an established topic short-circuit into a
	// clarification request before any scoring.
	if needsClarification(clean, ctx) {
		analysis.Strategy = schema.StrategyClarification
		analysis.Confidence = 0.8
		analysis.Reasoning = "Question contains ambiguous references that need clarification"
		analysis.ClarificationNeed = clarificationPrompt(clean)
		return analysis
	}

	sqlScore := structuredScore(clean)
	ragScore := retrievalScore(clean)

	if ctx != nil {
		sqlScore, ragScore = adjustWithContext(sqlScore, ragScore, ctx, clean)
	}

	switch {
	case sqlScore > ragScore && sqlScore > 0.6:
		analysis.Strategy = schema.StrategySQL
		analysis.Confidence = min(sqlScore, 0.95)
		analysis.Reasoning = fmt.Sprintf("Question appears to request specific data (SQL score: %.2f)", sqlScore)
	case ragScore > 0.7:
		analysis.Strategy = schema.StrategyRetrieval
		analysis.Confidence = min(ragScore, 0.95)
		analysis.Reasoning = fmt.Sprintf("Question appears conceptual or needs context (RAG score: %.2f)", ragScore)
	case math.Abs(sqlScore-ragScore) < 0.2:
		analysis.Strategy = schema.StrategyHybrid
		analysis.Confidence = 0.7
		analysis.Reasoning = "Question could benefit from both data retrieval and contextual reasoning"
	default:
		analysis.Strategy = schema.StrategyRetrieval
		analysis.Confidence = 0.5
		analysis.Reasoning = "Unclear intent, defaulting to contextual search"
	}

	analysis.SuggestedFollowups = followups(analysis.Entities, analysis.Strategy)
	return analysis
}

// normalize lowercases, replaces punctuation with whitespace and collapses
// repeated whitespace.
func normalize(lower string) string {
	clean := punctRe.ReplaceAllString(lower, " ")
	clean = spaceRe.ReplaceAllString(clean, " ")
	return strings.TrimSpace(clean)
}

// detectEntities returns every entity category with at least one keyword
// present as a substring of the normalized question.
func detectEntities(clean string) []string {
	entities := []string{}
	for _, entity := range entityOrder {
		for _, kw := range entityKeywords[entity] {
			if strings.Contains(clean, kw) {
				entities = append(entities, entity)
				break
			}
		}
	}
	return entities
}

// needsClarification reports whether the question contains an ambiguous
// pronoun as a standalone word while the session has no topic.
func needsClarification(clean string, ctx *schema.ConversationContext) bool {
	if ctx != nil && ctx.Topic != "" {
		return false
	}
	for _, token := range strings.Fields(clean) {
		for _, word := range clarificationWords {
			if token == word {
				return true
			}
		}
	}
	return false
}

// clarificationPrompt picks a prompt keyed by which pronoun family matched.
func clarificationPrompt(clean string) string {
	tokens := strings.Fields(clean)
	contains := func(words ...string) bool {
		for _, token := range tokens {
			for _, word := range words {
				if token == word {
					return true
				}
			}
		}
		return false
	}
	if contains("it", "that", "this") {
		return "I'm not sure what you're referring to. Could you be more specific about what you'd like to know?"
	}
	if contains("them", "those", "these") {
		return "Which items are you asking about? Could you clarify what you'd like to know more about?"
	}
	return "Could you provide more details about what you're looking for?"
}

// structuredScore accumulates the structured-query score for the question.
func structuredScore(clean string) float64 {
	score := 0.0
	matches := 0

	for _, w := range sqlCountingWords {
		if strings.Contains(clean, w) {
			matches++
			score += 0.3
		}
	}
	for _, w := range sqlEnumWords {
		if strings.Contains(clean, w) {
			matches++
			score += 0.25
		}
	}
	for _, w := range sqlOtherWords {
		if strings.Contains(clean, w) {
			matches++
			score += 0.2
		}
	}

	if matches > 1 {
		score *= 1.2
	}
	if digitRe.MatchString(clean) {
		score += 0.1
	}
	for _, w := range sqlQuestionWords {
		if strings.HasPrefix(clean, w) {
			score += 0.15
		}
	}

	return clamp(score)
}

// retrievalScore accumulates the retrieval score for the question.
func retrievalScore(clean string) float64 {
	score := 0.0
	matches := 0

	for _, w := range ragDefinitionWords {
		if strings.Contains(clean, w) {
			matches++
			score += 0.3
		}
	}
	for _, w := range ragInfoWords {
		if strings.Contains(clean, w) {
			matches++
			score += 0.25
		}
	}
	for _, w := range ragOtherWords {
		if strings.Contains(clean, w) {
			matches++
			score += 0.2
		}
	}

	if matches > 1 {
		score *= 1.2
	}
	for _, w := range ragQuestionWords {
		if strings.HasPrefix(clean, w) {
			score += 0.2
		}
	}
	if len(strings.Fields(clean)) > 10 {
		score += 0.1
	}

	return clamp(score)
}

// adjustWithContext biases scores toward the previously used strategy. A
// continuation cue strengthens the bias to 1.2; it replaces the base 1.1
// adjustment rather than compounding with it.
func adjustWithContext(sqlScore, ragScore float64, ctx *schema.ConversationContext, clean string) (float64, float64) {
	multiplier := 1.1
	for _, w := range continuationWords {
		if strings.Contains(clean, w) {
			multiplier = 1.2
			break
		}
	}

	switch ctx.LastStrategy {
	case schema.StrategySQL:
		sqlScore = clamp(sqlScore * multiplier)
	case schema.StrategyRetrieval:
		ragScore = clamp(ragScore * multiplier)
	}
	return sqlScore, ragScore
}

// followups collects table suggestions for each detected entity, capped at
// maxFollowups, preserving entity-detection order.
func followups(entities []string, strategy schema.Strategy) []string {
	out := []string{}
	for _, entity := range entities {
		byStrategy, ok := followupTable[entity]
		if !ok {
			continue
		}
		key := strategy
		if key != schema.StrategySQL {
			key = schema.StrategyRetrieval
		}
		out = append(out, byStrategy[key]...)
	}
	if len(out) > maxFollowups {
		out = out[:maxFollowups]
	}
	return out
}

func clamp(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	if v < 0 {
		return 0
	}
	return v
}

