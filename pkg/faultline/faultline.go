package faultline

import (
	"context"
	"fmt"
	"strings"

	"github.com/crimson-sun/faultline/internal/config"
	"github.com/crimson-sun/faultline/internal/engine"
	"github.com/crimson-sun/faultline/internal/engine/cluster"
	"github.com/crimson-sun/faultline/internal/engine/dedup"
	"github.com/crimson-sun/faultline/internal/engine/embedder"
	"github.com/crimson-sun/faultline/internal/engine/generalize"
	"github.com/crimson-sun/faultline/internal/model"
)

// Clusterer embeds failures and groups them by root cause.
type Clusterer struct {
	engine   *engine.Engine
	embedder embedder.Embedder
	cfg      cluster.Config
}

// New creates a Clusterer. Loading a local model is expensive; create
// once and reuse.
func New(opts ...Option) (*Clusterer, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	cfg := cluster.Config{MinClusterSize: o.minClusterSize, MinSamples: o.minSamples}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("faultline: %w", err)
	}

	ecfg := config.Default().Embedding
	ecfg.Model = o.model
	ecfg.ModelDir = o.modelDir
	ecfg.OpenAIKey = o.apiKey
	ecfg.GeminiKey = o.apiKey

	inner, err := embedder.Open(context.Background(), ecfg)
	if err != nil {
		return nil, fmt.Errorf("faultline: %w", err)
	}
	emb := embedder.NewBatched(inner, embedder.BatchOptions{})
	return &Clusterer{engine: engine.New(emb, nil), embedder: emb, cfg: cfg}, nil
}

// Cluster groups failures. Case ids must be unique.
func (c *Clusterer) Cluster(ctx context.Context, failures []Failure) (Result, error) {
	ids, byID := dedup.Group(failures, func(f Failure) string { return f.CaseID })
	for _, id := range ids {
		if n := len(byID[id]); n > 1 {
			return Result{}, fmt.Errorf("faultline: case id %q appears %d times", id, n)
		}
	}

	sigs := make([]model.FailureSignature, len(failures))
	for i, f := range failures {
		sigs[i] = signature(f)
	}
	res, err := c.engine.Cluster(ctx, model.NewCollection(sigs), c.cfg)
	if err != nil {
		return Result{}, fmt.Errorf("faultline: %w", err)
	}
	return resultFromAssignment(res.Assignment), nil
}

// Close releases model resources.
func (c *Clusterer) Close() error {
	return c.embedder.Close()
}

// Generalize replaces the literal values in s (ids, dates, times, quoted
// strings, collections, numbers) with placeholders.
func Generalize(s string) string {
	return generalize.Generalize(s)
}

func signature(f Failure) model.FailureSignature {
	return model.FailureSignature{
		CaseID:   f.CaseID,
		TestName: f.TestName,
		Clustering: model.ClusteringSection{
			ErrorType:            generalize.Generalize(firstLine(f.Error)),
			AssertionExpressions: generalize.All(f.Assertions),
			ExecutionFlow:        generalize.All(f.Flow),
		},
		FixContext: model.FixContext{ErrorMessage: f.Error},
	}
}

// firstLine returns the first non-blank line of s, trimmed.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

func resultFromAssignment(a model.ClusterAssignment) Result {
	res := Result{
		Noise:      a.Noise(),
		Silhouette: a.Metrics.Silhouette,
		Coherence:  a.Metrics.Coherence,
	}
	for _, cl := range a.Clusters {
		types := make([]string, len(cl.Shapes))
		for i, s := range cl.Shapes {
			types[i] = s.Shape
		}
		res.Clusters = append(res.Clusters, Cluster{
			Label:          cl.Label,
			Members:        cl.Members,
			ErrorTypes:     types,
			Coherent:       cl.Coherent,
			Representative: cl.Representative,
		})
	}
	return res
}
