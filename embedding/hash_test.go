package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashingDeterministic(t *testing.T) {
	h := NewHashing(64)

	a, err := h.Embed(context.Background(), []string{"chai is a tea beverage"})
	require.NoError(t, err)
	b, err := h.Embed(context.Background(), []string{"chai is a tea beverage"})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a[0], 64)
}

func TestHashingNormalized(t *testing.T) {
	h := NewHashing(128)

	vecs, err := h.Embed(context.Background(), []string{"list all products in the beverages category"})
	require.NoError(t, err)

	var norm float64
	for _, v := range vecs[0] {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-4)
}

func TestHashingSimilarTextsCloser(t *testing.T) {
	h := NewHashing(256)

	vecs, err := h.Embed(context.Background(), []string{
		"chai tea beverage from exotic liquids",
		"chai tea beverage supplier exotic liquids",
		"bicycle repair manual chapter seven",
	})
	require.NoError(t, err)

	dot := func(a, b []float32) float64 {
		var s float64
		for i := range a {
			s += float64(a[i]) * float64(b[i])
		}
		return s
	}

	assert.Greater(t, dot(vecs[0], vecs[1]), dot(vecs[0], vecs[2]),
		"overlapping vocabulary should score higher under cosine")
}

func TestHashingEmptyInput(t *testing.T) {
	h := NewHashing(32)

	vecs, err := h.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}
