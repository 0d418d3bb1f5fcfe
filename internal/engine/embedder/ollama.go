package embedder

import (
	"context"
	"fmt"

	"github.com/crimson-sun/faultline/internal/httpclient"
)

// OllamaEmbedder calls a local Ollama server's /api/embed endpoint, which
// accepts a batch of inputs per request.
type OllamaEmbedder struct {
	client *httpclient.Client
	model  string
	dims   int
}

type ollamaRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllama creates an embedder for m against endpoint (the full
// /api/embed URL).
func NewOllama(m Model, endpoint string, opts ...httpclient.Option) *OllamaEmbedder {
	return &OllamaEmbedder{
		client: httpclient.New(endpoint, "", opts...),
		model:  m.Name,
		dims:   m.Dimensions,
	}
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var resp ollamaResponse
	if err := e.client.PostJSON(ctx, "", ollamaRequest{Model: e.model, Input: texts}, &resp); err != nil {
		return nil, httpclient.Classify("ollama embed", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: got %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}
	return resp.Embeddings, nil
}

func (e *OllamaEmbedder) Dimensions() int { return e.dims }
func (e *OllamaEmbedder) Name() string    { return "ollama:" + e.model }
func (e *OllamaEmbedder) Close() error    { return nil }
