package embedder

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/crimson-sun/faultline/internal/httpclient"
	"github.com/crimson-sun/faultline/internal/model"
)

// OpenAIEmbedder calls the OpenAI embeddings endpoint.
type OpenAIEmbedder struct {
	client *httpclient.Client
	model  string
	dims   int
}

type openAIRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	EncodingFormat string   `json:"encoding_format"`
}

type openAIResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// NewOpenAI creates an embedder for m against endpoint (the full
// embeddings URL). A missing API key is a *model.ResourceError.
func NewOpenAI(m Model, endpoint, apiKey string, opts ...httpclient.Option) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, &model.ResourceError{Asset: "OPENAI_API_KEY", Err: errors.New("not set")}
	}
	return &OpenAIEmbedder{
		client: httpclient.New(endpoint, apiKey, opts...),
		model:  m.Name,
		dims:   m.Dimensions,
	}, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch sends texts in one request. Rate limiting, server errors and
// transport failures come back as *model.TransientError.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var resp openAIResponse
	req := openAIRequest{Model: e.model, Input: texts, EncodingFormat: "float"}
	if err := e.client.PostJSON(ctx, "", req, &resp); err != nil {
		return nil, httpclient.Classify("openai embed", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embed: got %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
	out := make([][]float32, len(texts))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

func (e *OpenAIEmbedder) Dimensions() int { return e.dims }
func (e *OpenAIEmbedder) Name() string    { return "openai:" + e.model }
func (e *OpenAIEmbedder) Close() error    { return nil }
