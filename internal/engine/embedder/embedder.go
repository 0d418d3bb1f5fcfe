// Package embedder turns generalized failure text into vectors. A run picks
// exactly one variant by model key; every vector of that run comes from it.
package embedder

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/crimson-sun/faultline/internal/model"
)

// Kind identifies an embedding backend.
type Kind string

const (
	KindHash   Kind = "hash"
	KindONNX   Kind = "onnx"
	KindOpenAI Kind = "openai"
	KindGenAI  Kind = "genai"
	KindOllama Kind = "ollama"
)

// Remote reports whether the backend is reached over the network.
func (k Kind) Remote() bool {
	return k == KindOpenAI || k == KindGenAI || k == KindOllama
}

// Embedder produces vector embeddings from text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
	Close() error
}

// Model describes one selectable model key.
type Model struct {
	Key        string
	Kind       Kind
	Name       string // provider-side model name
	Dimensions int    // 0 when only known after loading
}

var models = map[string]Model{
	"hash":         {Key: "hash", Kind: KindHash, Name: "feature-hash", Dimensions: hashDims},
	"onnx":         {Key: "onnx", Kind: KindONNX, Name: "onnx-local"},
	"openai-small": {Key: "openai-small", Kind: KindOpenAI, Name: "text-embedding-3-small", Dimensions: 1536},
	"openai-large": {Key: "openai-large", Kind: KindOpenAI, Name: "text-embedding-3-large", Dimensions: 3072},
	"gemini":       {Key: "gemini", Kind: KindGenAI, Name: "gemini-embedding-001", Dimensions: 768},
	"ollama":       {Key: "ollama", Kind: KindOllama, Name: "embeddinggemma", Dimensions: 768},
}

// Lookup returns the model registered under key.
func Lookup(key string) (Model, error) {
	m, ok := models[key]
	if !ok {
		return Model{}, fmt.Errorf("unknown embedding model %q (available: %s)", key, strings.Join(Keys(), ", "))
	}
	return m, nil
}

// Keys returns the registered model keys in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(models))
	for k := range models {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Text renders the clustering section of sig as the embedding input. Only
// generalized fields are used, so two failures with the same cause yield
// the same text regardless of their literal values.
func Text(sig model.FailureSignature) string {
	c := sig.Clustering
	var parts []string
	if len(c.AssertionExpressions) > 0 {
		parts = append(parts, "Assertion: "+strings.Join(c.AssertionExpressions, "; "))
	}
	errType := c.ErrorType
	if errType == "" {
		errType = "Unknown error"
	}
	parts = append(parts, "Error: "+errType)
	if len(c.ExecutionFlow) > 0 {
		parts = append(parts, "Execution path: "+strings.Join(c.ExecutionFlow, " -> "))
	}
	if names := c.AnomalyFlags.Names(); len(names) > 0 {
		parts = append(parts, "Anomalies: "+strings.Join(names, ", "))
	}
	return strings.Join(parts, "\n")
}

// Texts renders every signature of c in collection order.
func Texts(c *model.Collection) []string {
	out := make([]string, c.Len())
	for i := range out {
		out[i] = Text(c.At(i))
	}
	return out
}
