package embedder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/crimson-sun/faultline/internal/engine/compactor"
	"github.com/crimson-sun/faultline/internal/engine/dedup"
	"github.com/crimson-sun/faultline/internal/httpclient"
	"github.com/crimson-sun/faultline/internal/model"
)

const (
	DefaultBatchSize  = 100
	DefaultMaxTokens  = 8000
	DefaultMaxRetries = 3
)

// BatchOptions configures a Batched embedder.
type BatchOptions struct {
	BatchSize  int     // texts per request; default 100
	MaxTokens  int     // estimated tokens per request; default 8000
	MaxRetries int     // retries per sub-batch after the first attempt; default 3, <0 disables
	RateLimit  float64 // requests per second; 0 is unlimited
	Logger     *slog.Logger

	// Backoff returns the wait before retry attempt n (1-based).
	// Default: httpclient.Backoff.
	Backoff func(attempt int, retryAfter time.Duration) time.Duration
}

// Batched wraps an Embedder with deduplication, sub-batching, per-sub-batch
// retry of transient failures, request pacing and a dimensionality check.
type Batched struct {
	inner   Embedder
	opts    BatchOptions
	limiter *rate.Limiter
	log     *slog.Logger
}

// NewBatched wraps inner.
func NewBatched(inner Embedder, opts BatchOptions) *Batched {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = DefaultMaxRetries
	} else if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Backoff == nil {
		opts.Backoff = httpclient.Backoff
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	return &Batched{
		inner:   inner,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
		log:     opts.Logger,
	}
}

func (b *Batched) Dimensions() int { return b.inner.Dimensions() }
func (b *Batched) Name() string    { return b.inner.Name() }
func (b *Batched) Close() error    { return b.inner.Close() }

func (b *Batched) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := b.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts, returning one vector per input in input order.
// Identical texts are sent once. A sub-batch whose retries are exhausted,
// or that fails with a non-transient error, aborts the whole call with a
// *model.StageError counting the texts already embedded.
func (b *Batched) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	uniq, idx := dedup.Index(texts)
	batches := b.split(uniq)

	vecs := make([][]float32, 0, len(uniq))
	dim := b.inner.Dimensions()
	for i, batch := range batches {
		got, err := b.embedWithRetry(ctx, batch)
		if err != nil {
			return nil, &model.StageError{
				Stage:     "embed",
				Succeeded: len(vecs),
				Err:       fmt.Errorf("sub-batch %d/%d: %w", i+1, len(batches), err),
			}
		}
		for _, v := range got {
			if dim <= 0 {
				dim = len(v)
			}
			if len(v) != dim {
				return nil, &model.StageError{
					Stage:     "embed",
					Succeeded: len(vecs),
					Err:       fmt.Errorf("%s returned a %d-dim vector, expected %d", b.Name(), len(v), dim),
				}
			}
			vecs = append(vecs, v)
		}
	}

	b.log.Debug("embedded texts", "model", b.Name(), "texts", len(texts),
		"unique", len(uniq), "requests", len(batches), "est_tokens", compactor.EstimateTotal(uniq))

	out := make([][]float32, len(texts))
	for i, p := range idx {
		out[i] = vecs[p]
	}
	return out, nil
}

// split cuts texts into consecutive sub-batches bounded by BatchSize and
// MaxTokens. A single text over the token budget gets its own sub-batch.
func (b *Batched) split(texts []string) [][]string {
	var out [][]string
	var cur []string
	tokens := 0
	for _, t := range texts {
		n := compactor.EstimateTokens(t)
		if len(cur) > 0 && (len(cur) >= b.opts.BatchSize || tokens+n > b.opts.MaxTokens) {
			out = append(out, cur)
			cur, tokens = nil, 0
		}
		cur = append(cur, t)
		tokens += n
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

func (b *Batched) embedWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= b.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			var retryAfter time.Duration
			var te *model.TransientError
			if errors.As(lastErr, &te) {
				retryAfter = te.RetryAfter
			}
			wait := b.opts.Backoff(attempt, retryAfter)
			b.log.Warn("retrying embedding sub-batch", "model", b.Name(),
				"attempt", attempt, "wait", wait, "error", lastErr)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		vecs, err := b.inner.EmbedBatch(ctx, batch)
		if err == nil {
			if len(vecs) != len(batch) {
				return nil, fmt.Errorf("%s returned %d vectors for %d texts", b.Name(), len(vecs), len(batch))
			}
			return vecs, nil
		}
		var te *model.TransientError
		if !errors.As(err, &te) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("retries exhausted after %d attempts: %w", b.opts.MaxRetries+1, lastErr)
}
