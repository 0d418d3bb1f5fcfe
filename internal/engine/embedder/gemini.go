package embedder

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/crimson-sun/faultline/internal/httpclient"
	"github.com/crimson-sun/faultline/internal/model"
)

// GenAIEmbedder calls the Gemini embedding API with the CLUSTERING task
// type.
type GenAIEmbedder struct {
	client *genai.Client
	model  string
	dims   int
}

// NewGenAI creates a Gemini embedder for m. baseURL overrides the API host
// and is empty in normal use. A missing API key is a *model.ResourceError.
func NewGenAI(ctx context.Context, m Model, apiKey, baseURL string) (*GenAIEmbedder, error) {
	if apiKey == "" {
		return nil, &model.ResourceError{Asset: "GEMINI_API_KEY", Err: errors.New("not set")}
	}
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	return &GenAIEmbedder{client: client, model: m.Name, dims: m.Dimensions}, nil
}

func (e *GenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *GenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	dims := int32(e.dims)
	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		TaskType:             "CLUSTERING",
		OutputDimensionality: &dims,
	})
	if err != nil {
		return nil, classifyGenAI(err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("genai embed: got %d embeddings for %d inputs", len(result.Embeddings), len(texts))
	}

	out := make([][]float32, len(texts))
	for i, emb := range result.Embeddings {
		out[i] = emb.Values
	}
	return out, nil
}

// classifyGenAI maps rate limiting and server errors to
// *model.TransientError; other API errors are final.
func classifyGenAI(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500 {
			return &model.TransientError{Op: "genai embed", Err: err}
		}
		return fmt.Errorf("genai embed: %w", err)
	}
	return httpclient.Classify("genai embed", err)
}

func (e *GenAIEmbedder) Dimensions() int { return e.dims }
func (e *GenAIEmbedder) Name() string    { return "genai:" + e.model }
func (e *GenAIEmbedder) Close() error    { return nil }
