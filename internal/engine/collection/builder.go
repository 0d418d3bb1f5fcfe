// Package collection runs the extractor over a batch of case ids and reads
// and writes the resulting signature collections.
package collection

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/crimson-sun/faultline/internal/engine/dedup"
	"github.com/crimson-sun/faultline/internal/model"
)

// DefaultWorkers bounds concurrent extractions when Options.Workers is unset.
const DefaultWorkers = 4

// Extractor produces one signature per failed case.
type Extractor interface {
	Extract(ctx context.Context, caseID string) (model.FailureSignature, error)
}

// Skip records a case id that produced no signature.
type Skip struct {
	CaseID string `json:"case_id"`
	Reason string `json:"reason"`
}

// Report summarizes one Build.
type Report struct {
	Requested int    // distinct case ids
	Extracted int
	Skipped   []Skip // ordered by case id
}

// Options configures a Builder.
type Options struct {
	Workers int
	Logger  *slog.Logger
}

// Builder extracts signatures in parallel and assembles a Collection.
type Builder struct {
	ex      Extractor
	workers int
	log     *slog.Logger
}

// NewBuilder creates a Builder around ex.
func NewBuilder(ex Extractor, opts Options) *Builder {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Builder{ex: ex, workers: opts.Workers, log: opts.Logger}
}

// Build extracts a signature for every distinct case id. A failure for one
// id is recorded in the report and never aborts the batch. Returns
// *model.EmptyCollectionError if nothing was extracted, and the context
// error if ctx is cancelled.
func (b *Builder) Build(ctx context.Context, caseIDs []string) (*model.Collection, Report, error) {
	ids := dedup.Unique(caseIDs)
	rep := Report{Requested: len(ids)}

	var (
		mu    sync.Mutex
		sigs  []model.FailureSignature
		skips []Skip
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for _, id := range ids {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sig, err := b.ex.Extract(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				b.log.Warn("skipping case", "case_id", id, "error", err)
				skips = append(skips, Skip{CaseID: id, Reason: err.Error()})
				return nil
			}
			sigs = append(sigs, sig)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, rep, err
	}
	if err := ctx.Err(); err != nil {
		return nil, rep, err
	}

	sort.Slice(skips, func(i, j int) bool { return skips[i].CaseID < skips[j].CaseID })
	rep.Skipped = skips
	rep.Extracted = len(sigs)

	b.log.Info("collection built",
		"requested", rep.Requested, "extracted", rep.Extracted, "skipped", len(rep.Skipped))

	if len(sigs) == 0 {
		return nil, rep, &model.EmptyCollectionError{Requested: rep.Requested, Skipped: len(rep.Skipped)}
	}
	return model.NewCollection(sigs), rep, nil
}
