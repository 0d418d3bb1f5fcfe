package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/crimson-sun/faultline/internal/engine/cluster"
	"github.com/crimson-sun/faultline/internal/engine/embedder"
	"github.com/crimson-sun/faultline/internal/model"
)

// Engine orchestrates the embed → cluster pipeline over a collection.
type Engine struct {
	embedder embedder.Embedder
	logger   *slog.Logger
}

// New creates an Engine around emb. A nil logger uses slog.Default().
func New(emb embedder.Embedder, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{embedder: emb, logger: logger}
}

// Result is one clustering run.
type Result struct {
	Assignment  model.ClusterAssignment
	Dimensions  int
	EmbedTime   time.Duration
	ClusterTime time.Duration
}

// Points embeds every signature's clustering text. Points come back in
// collection order, which is ascending case id.
func (e *Engine) Points(ctx context.Context, c *model.Collection) ([]cluster.Point, error) {
	if c == nil || c.Len() == 0 {
		return nil, &model.EmptyCollectionError{}
	}

	vecs, err := e.embedder.EmbedBatch(ctx, embedder.Texts(c))
	if err != nil {
		return nil, fmt.Errorf("embed collection with %s: %w", e.embedder.Name(), err)
	}
	if len(vecs) != c.Len() {
		return nil, fmt.Errorf("embed collection with %s: got %d vectors for %d signatures",
			e.embedder.Name(), len(vecs), c.Len())
	}

	pts := make([]cluster.Point, c.Len())
	for i, v := range vecs {
		sig := c.At(i)
		if len(v) != len(vecs[0]) {
			return nil, fmt.Errorf("embed collection with %s: %s has %d dimensions, expected %d",
				e.embedder.Name(), sig.CaseID, len(v), len(vecs[0]))
		}
		pts[i] = cluster.Point{
			ID:     sig.CaseID,
			Vector: widen(v),
			Shape:  sig.Clustering.ErrorType,
		}
	}
	return pts, nil
}

// Cluster embeds the collection and groups it with HDBSCAN.
func (e *Engine) Cluster(ctx context.Context, c *model.Collection, cfg cluster.Config) (Result, error) {
	// Bad parameters fail before any embedding call is spent.
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}

	start := time.Now()
	pts, err := e.Points(ctx, c)
	if err != nil {
		return Result{}, err
	}
	res := Result{EmbedTime: time.Since(start)}
	if len(pts) > 0 {
		res.Dimensions = len(pts[0].Vector)
	}

	start = time.Now()
	res.Assignment, err = cluster.Run(pts, cfg)
	if err != nil {
		return Result{}, err
	}
	res.ClusterTime = time.Since(start)

	e.logger.Debug("clustered collection",
		"model", e.embedder.Name(),
		"signatures", len(pts),
		"dimensions", res.Dimensions,
		"clusters", res.Assignment.Metrics.Clusters,
		"noise", res.Assignment.Metrics.Noise,
	)
	return res, nil
}

func widen(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
