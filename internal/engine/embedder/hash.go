package embedder

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

const hashDims = 256

// HashEmbedder maps text to a signed feature-hashing vector over unigram
// and bigram tokens. It needs no assets and is fully deterministic, which
// makes it the default for offline runs and tests.
type HashEmbedder struct {
	dims int
}

// NewHash creates a HashEmbedder with the given dimensionality (256 if <= 0).
func NewHash(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = hashDims
	}
	return &HashEmbedder{dims: dims}
}

func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return h.vector(text), nil
}

func (h *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h *HashEmbedder) Dimensions() int { return h.dims }
func (h *HashEmbedder) Name() string    { return "hash" }
func (h *HashEmbedder) Close() error    { return nil }

func (h *HashEmbedder) vector(text string) []float32 {
	acc := make([]float64, h.dims)
	toks := h.tokens(text)
	for i, tok := range toks {
		h.add(acc, tok, 1)
		if i > 0 {
			h.add(acc, toks[i-1]+" "+tok, 0.5)
		}
	}

	var norm2 float64
	for _, v := range acc {
		norm2 += v * v
	}
	out := make([]float32, h.dims)
	if norm2 == 0 {
		return out
	}
	inv := 1 / math.Sqrt(norm2)
	for i, v := range acc {
		out[i] = float32(v * inv)
	}
	return out
}

func (h *HashEmbedder) add(acc []float64, feature string, weight float64) {
	f := fnv.New64a()
	f.Write([]byte(feature))
	sum := f.Sum64()
	idx := int(sum % uint64(h.dims))
	if sum>>63 == 1 {
		weight = -weight
	}
	acc[idx] += weight
}

// tokens case-folds and NFKC-normalizes text, then splits it into runs of
// letters and digits. Placeholders such as [VALUE] stay one token.
// A Caser is stateful, so each call gets its own.
func (h *HashEmbedder) tokens(text string) []string {
	text = cases.Fold().String(norm.NFKC.String(text))
	var toks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}
	inPlaceholder := false
	for _, r := range text {
		switch {
		case r == '[':
			flush()
			inPlaceholder = true
			cur.WriteRune(r)
		case r == ']' && inPlaceholder:
			cur.WriteRune(r)
			flush()
			inPlaceholder = false
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			cur.WriteRune(r)
		default:
			flush()
			inPlaceholder = false
		}
	}
	flush()
	return toks
}
