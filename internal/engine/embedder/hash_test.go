package embedder

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestHashDeterministicAndNormalized(t *testing.T) {
	h := NewHash(0)
	a, err := h.Embed(context.Background(), "Error: Missing field '[VALUE]'")
	require.NoError(t, err)
	b, err := NewHash(0).Embed(context.Background(), "Error: Missing field '[VALUE]'")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, hashDims)

	var n float64
	for _, v := range a {
		n += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, n, 1e-5)
}

func TestHashSimilarity(t *testing.T) {
	h := NewHash(0)
	vecs, err := h.EmbedBatch(context.Background(), []string{
		"Assertion: '[VALUE]' in response\nError: Missing field '[VALUE]'\nExecution path: agent.run -> router",
		"Assertion: '[VALUE]' in response\nError: Missing field '[VALUE]'\nExecution path: agent.run -> router -> llm.generate",
		"Error: Timeout after [NUMBER]\nExecution path: tool.hotels",
	})
	require.NoError(t, err)

	near := cosine(vecs[0], vecs[1])
	far := cosine(vecs[0], vecs[2])
	assert.Greater(t, near, far)
	assert.Greater(t, near, 0.8)
}

func TestHashCaseFolding(t *testing.T) {
	h := NewHash(0)
	a, _ := h.Embed(context.Background(), "MISSING FIELD")
	b, _ := h.Embed(context.Background(), "missing field")
	assert.Equal(t, a, b)
}

func TestHashTokens(t *testing.T) {
	got := NewHash(0).tokens("Missing field '[VALUE]' after [NUMBER]s, gpt4")
	assert.Equal(t, []string{"missing", "field", "[value]", "after", "[number]", "s", "gpt4"}, got)
}

func TestHashEmptyText(t *testing.T) {
	v, err := NewHash(8).Embed(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 8), v)
}

func TestHashCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHash(0).EmbedBatch(ctx, []string{"x"})
	assert.ErrorIs(t, err, context.Canceled)
}
