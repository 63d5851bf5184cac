package retrieval

import (
	"github.com/pkoukk/tiktoken-go"

	"github.com/merchantry/askdb/common/logger"
)

const tokenEncoding = "cl100k_base"

// tokenCounter bounds prompt context by model tokens rather than bytes.
type tokenCounter struct {
	encoder *tiktoken.Tiktoken
}

func newTokenCounter() *tokenCounter {
	enc, err := tiktoken.GetEncoding(tokenEncoding)
	if err != nil {
		logger.Warnf("token encoding %s unavailable, falling back to estimate: %v", tokenEncoding, err)
		return &tokenCounter{}
	}
	return &tokenCounter{encoder: enc}
}

func (t *tokenCounter) count(text string) int {
	if t.encoder == nil {
		// Rough average of four characters per token.
		return (len(text) + 3) / 4
	}
	return len(t.encoder.Encode(text, nil, nil))
}

// truncate cuts text down to at most budget tokens.
func (t *tokenCounter) truncate(text string, budget int) string {
	if budget <= 0 {
		return ""
	}
	if t.encoder == nil {
		limit := budget * 4
		if len(text) <= limit {
			return text
		}
		return text[:limit]
	}

	tokens := t.encoder.Encode(text, nil, nil)
	if len(tokens) <= budget {
		return text
	}
	return t.encoder.Decode(tokens[:budget])
}
