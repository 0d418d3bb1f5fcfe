package embedder

import (
	"context"
	"fmt"

	"github.com/crimson-sun/faultline/internal/config"
)

// Open constructs the variant registered under cfg.Model. It does not
// wrap it; see NewBatched.
func Open(ctx context.Context, cfg config.EmbeddingConfig) (Embedder, error) {
	m, err := Lookup(cfg.Model)
	if err != nil {
		return nil, err
	}
	switch m.Kind {
	case KindHash:
		return NewHash(m.Dimensions), nil
	case KindONNX:
		e, err := NewONNX(ONNXConfig{
			ModelPath:      cfg.ModelPath(),
			VocabPath:      cfg.VocabPath(),
			ProjectionPath: cfg.ProjectionPath(),
		})
		if err != nil {
			return nil, err
		}
		return e, nil
	case KindOpenAI:
		e, err := NewOpenAI(m, cfg.OpenAIEndpoint, cfg.OpenAIKey)
		if err != nil {
			return nil, err
		}
		return e, nil
	case KindGenAI:
		e, err := NewGenAI(ctx, m, cfg.GeminiKey, "")
		if err != nil {
			return nil, err
		}
		return e, nil
	case KindOllama:
		return NewOllama(m, cfg.OllamaEndpoint), nil
	default:
		return nil, fmt.Errorf("embedding kind %q not supported", m.Kind)
	}
}
