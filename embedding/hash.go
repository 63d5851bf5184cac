package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

const defaultHashDimensions = 256

// Hashing is a local feature-hashing embedder. Word unigrams and bigrams are
// hashed into a fixed number of buckets and the result is L2-normalized, so
// texts sharing vocabulary land close under cosine distance. It is not a
// semantic model, but it keeps the in-memory index usable with no API key.
type Hashing struct {
	dimensions int
}

// NewHashing builds a hashing embedder with the given vector size.
func NewHashing(dimensions int) *Hashing {
	if dimensions <= 0 {
		dimensions = defaultHashDimensions
	}
	return &Hashing{dimensions: dimensions}
}

func (h *Hashing) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = h.embedOne(text)
	}
	return vectors, nil
}

func (h *Hashing) Dimensions() int {
	return h.dimensions
}

func (h *Hashing) embedOne(text string) []float32 {
	vec := make([]float32, h.dimensions)

	words := strings.Fields(strings.ToLower(text))
	for i, w := range words {
		vec[h.bucket(w)]++
		if i > 0 {
			vec[h.bucket(words[i-1]+" "+w)]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec
}

func (h *Hashing) bucket(token string) int {
	hf := fnv.New32a()
	hf.Write([]byte(token))
	return int(hf.Sum32() % uint32(h.dimensions))
}
