// Package pipeline runs the collect, cluster and compare commands end to
// end: sources in, artifacts out.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/crimson-sun/faultline/internal/config"
	"github.com/crimson-sun/faultline/internal/connector"
	"github.com/crimson-sun/faultline/internal/engine"
	"github.com/crimson-sun/faultline/internal/engine/cluster"
	"github.com/crimson-sun/faultline/internal/engine/collection"
	"github.com/crimson-sun/faultline/internal/engine/compactor"
	"github.com/crimson-sun/faultline/internal/engine/dedup"
	"github.com/crimson-sun/faultline/internal/engine/embedder"
	"github.com/crimson-sun/faultline/internal/engine/extractor"
	"github.com/crimson-sun/faultline/internal/model"
	"github.com/crimson-sun/faultline/internal/output"
	"github.com/crimson-sun/faultline/internal/output/file"
	"github.com/crimson-sun/faultline/internal/report"
)

// EmbedderFactory opens the embedding backend for a run.
type EmbedderFactory func(ctx context.Context, cfg config.EmbeddingConfig) (embedder.Embedder, error)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithStdout sets where summaries are printed. Default: os.Stdout.
func WithStdout(w io.Writer) Option {
	return func(p *Pipeline) { p.stdout = w }
}

// WithSource reads executions and traces from src instead of opening the
// configured provider. The pipeline does not close it.
func WithSource(src connector.Source) Option {
	return func(p *Pipeline) { p.source = src }
}

// WithNotifier sends every written cluster artifact to out as well.
// Notifier failures are logged and never fail a run.
func WithNotifier(out output.Output) Option {
	return func(p *Pipeline) { p.notify = out }
}

// WithEmbedderFactory replaces embedder.Open.
func WithEmbedderFactory(f EmbedderFactory) Option {
	return func(p *Pipeline) { p.openEmbedder = f }
}

// WithClock overrides time.Now for artifact names and timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// Pipeline connects sources, the engine and outputs.
type Pipeline struct {
	cfg          config.Config
	log          *slog.Logger
	stdout       io.Writer
	source       connector.Source
	notify       output.Output
	openEmbedder EmbedderFactory
	now          func() time.Time
}

// New creates a Pipeline for cfg.
func New(cfg config.Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:    cfg,
		log:    slog.Default(),
		stdout: os.Stdout,
		openEmbedder: func(ctx context.Context, cfg config.EmbeddingConfig) (embedder.Embedder, error) {
			return embedder.Open(ctx, cfg)
		},
		now: time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Close releases the notifier.
func (p *Pipeline) Close() error {
	if p.notify != nil {
		return p.notify.Close()
	}
	return nil
}

// CollectRequest selects the executions to extract.
type CollectRequest struct {
	RunIDs   []string // failed executions of these runs; none means the latest run
	CaseIDs  []string // explicit case ids; take precedence over RunIDs
	Out      string   // collection path; default <output.dir>/failure_signature_collection_<ts>.json
	SplitDir string   // also write one file per signature here
}

// CollectResult is the outcome of Collect.
type CollectResult struct {
	Path       string
	Collection *model.Collection
	Report     collection.Report
}

// Collect extracts a signature for every requested failure and saves the
// collection.
func (p *Pipeline) Collect(ctx context.Context, req CollectRequest) (res CollectResult, err error) {
	rc := NewRunContext("collect")
	defer func() { rc.Flush(p.log, err) }()

	src, closeSrc, err := p.openSource()
	if err != nil {
		return CollectResult{}, err
	}
	defer closeSrc()

	ids := req.CaseIDs
	if len(ids) == 0 {
		done := rc.Stage("list")
		recs, err := src.FailedExecutions(ctx, req.RunIDs)
		done()
		if err != nil {
			return CollectResult{}, fmt.Errorf("list failed executions: %w", err)
		}
		for _, r := range recs {
			ids = append(ids, r.CaseID)
		}
	}

	ex := extractor.New(src, src, extractor.Options{
		FlowLimit: p.cfg.Extract.FlowLimit,
		Logger:    p.log,
	})
	b := collection.NewBuilder(ex, collection.Options{Workers: p.cfg.Extract.Workers, Logger: p.log})

	done := rc.Stage("extract")
	c, rep, err := b.Build(ctx, ids)
	done()
	rc.Add("requested", rep.Requested)
	rc.Add("extracted", rep.Extracted)
	rc.Add("skipped", len(rep.Skipped))
	if err != nil {
		return CollectResult{Report: rep}, err
	}

	path := req.Out
	if path == "" {
		path = filepath.Join(p.cfg.Output.Dir, collection.DefaultName(p.now().UTC()))
	}
	done = rc.Stage("write")
	defer done()
	if err := collection.Save(path, c); err != nil {
		return CollectResult{Report: rep}, &model.StageError{Stage: "write", Succeeded: c.Len(), Err: err}
	}
	if req.SplitDir != "" {
		if err := collection.SaveSplit(req.SplitDir, c); err != nil {
			return CollectResult{Report: rep}, &model.StageError{Stage: "write", Succeeded: c.Len(), Err: err}
		}
	}

	p.log.Info("collection saved", "path", path, "signatures", c.Len(), "skipped", len(rep.Skipped))
	return CollectResult{Path: path, Collection: c, Report: rep}, nil
}

func (p *Pipeline) openSource() (connector.Source, func(), error) {
	if p.source != nil {
		return p.source, func() {}, nil
	}
	src, err := connector.Open(connector.Config{
		Provider:       p.cfg.Source.Provider,
		DBPath:         p.cfg.Source.DBPath,
		ExecutionsPath: p.cfg.Source.ExecutionsPath,
		SpansPath:      p.cfg.Source.SpansPath,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open source: %w", err)
	}
	return src, func() {
		if err := src.Close(); err != nil {
			p.log.Warn("close source", "error", err)
		}
	}, nil
}

// ClusterRequest parameterizes one clustering run. Empty strings and nil
// sizes fall back to configuration; explicit sizes are validated as given.
type ClusterRequest struct {
	Collection     string // collection file or directory of signature files
	Model          string
	MinClusterSize *int
	MinSamples     *int
	Out            string // default report.DefaultName
	Verbosity      string
}

// ClusterResult is the outcome of one clustering run.
type ClusterResult struct {
	Model    string
	Path     string
	Artifact *report.Artifact
}

// Cluster clusters a saved collection, writes the artifact and prints the
// summary.
func (p *Pipeline) Cluster(ctx context.Context, req ClusterRequest) (res ClusterResult, err error) {
	rc := NewRunContext("cluster")
	defer func() { rc.Flush(p.log, err) }()

	ccfg, err := p.clusterConfig(req.MinClusterSize, req.MinSamples)
	if err != nil {
		return ClusterResult{}, err
	}
	verbosity, err := compactor.ParseVerbosity(p.orDefault(req.Verbosity, p.cfg.Output.Verbosity))
	if err != nil {
		return ClusterResult{}, err
	}

	c, err := p.loadCollection(rc, req.Collection)
	if err != nil {
		return ClusterResult{}, err
	}
	res, err = p.clusterOne(ctx, rc, c, req, ccfg)
	if err != nil {
		return ClusterResult{}, err
	}

	if err := report.NewSummary(verbosity).Write(p.stdout, res.Artifact, c); err != nil {
		return res, fmt.Errorf("write summary: %w", err)
	}
	fmt.Fprintf(p.stdout, "Cluster assignments saved to: %s\n", res.Path)
	return res, nil
}

// CompareRequest clusters one collection with several models.
type CompareRequest struct {
	Collection     string
	Models         []string
	MinClusterSize *int
	MinSamples     *int
}

// Compare runs Cluster once per model, concurrently, then prints the
// ranked metrics and pairwise agreement. Each model writes its own
// artifact.
func (p *Pipeline) Compare(ctx context.Context, req CompareRequest) (cmp report.Comparison, err error) {
	rc := NewRunContext("compare")
	defer func() { rc.Flush(p.log, err) }()

	if len(req.Models) < 2 {
		return report.Comparison{}, fmt.Errorf("compare needs at least 2 models, got %d", len(req.Models))
	}
	if uniq := dedup.Unique(req.Models); len(uniq) != len(req.Models) {
		return report.Comparison{}, fmt.Errorf("compare models must be distinct, got %s", strings.Join(req.Models, ", "))
	}
	ccfg, err := p.clusterConfig(req.MinClusterSize, req.MinSamples)
	if err != nil {
		return report.Comparison{}, err
	}
	c, err := p.loadCollection(rc, req.Collection)
	if err != nil {
		return report.Comparison{}, err
	}

	results := make([]ClusterResult, len(req.Models))
	g, gctx := errgroup.WithContext(ctx)
	for i, m := range req.Models {
		g.Go(func() error {
			r, err := p.clusterOne(gctx, rc, c, ClusterRequest{Collection: req.Collection, Model: m}, ccfg)
			if err != nil {
				return fmt.Errorf("model %s: %w", m, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report.Comparison{}, err
	}

	entries := make([]report.Entry, len(results))
	for i, r := range results {
		entries[i] = report.Entry{Model: r.Model, Artifact: r.Artifact}
	}
	cmp = report.Compare(entries)
	if err := cmp.Write(p.stdout); err != nil {
		return cmp, fmt.Errorf("write comparison: %w", err)
	}
	return cmp, nil
}

func (p *Pipeline) loadCollection(rc *RunContext, path string) (*model.Collection, error) {
	done := rc.Stage("load")
	defer done()

	c, rep, err := collection.Load(path)
	if err != nil {
		return nil, err
	}
	rc.Add("signatures", c.Len())
	rc.Add("malformed", len(rep.Malformed))
	if c.Len() == 0 {
		return nil, &model.EmptyCollectionError{Skipped: len(rep.Malformed)}
	}
	return c, nil
}

// clusterConfig resolves the clustering parameters of a request against
// configuration and validates them before any work starts.
func (p *Pipeline) clusterConfig(minClusterSize, minSamples *int) (cluster.Config, error) {
	ccfg := cluster.Config{
		MinClusterSize: p.cfg.Cluster.MinClusterSize,
		MinSamples:     p.cfg.Cluster.MinSamples,
		MaxShapes:      p.cfg.Cluster.MaxShapes,
	}
	if minClusterSize != nil {
		ccfg.MinClusterSize = *minClusterSize
	}
	if minSamples != nil {
		ccfg.MinSamples = *minSamples
	}
	if err := ccfg.Validate(); err != nil {
		return cluster.Config{}, err
	}
	return ccfg, nil
}

func (p *Pipeline) clusterOne(ctx context.Context, rc *RunContext, c *model.Collection, req ClusterRequest, ccfg cluster.Config) (ClusterResult, error) {
	ecfg := p.cfg.Embedding
	ecfg.Model = p.orDefault(req.Model, ecfg.Model)
	m, err := embedder.Lookup(ecfg.Model)
	if err != nil {
		return ClusterResult{}, err
	}

	done := rc.Stage("open_" + m.Key)
	inner, err := p.openEmbedder(ctx, ecfg)
	done()
	if err != nil {
		return ClusterResult{}, fmt.Errorf("open embedder %s: %w", m.Key, err)
	}
	var pace float64
	if m.Kind.Remote() {
		pace = ecfg.RateLimit
	}
	emb := embedder.NewBatched(inner, embedder.BatchOptions{
		BatchSize:  ecfg.BatchSize,
		MaxRetries: retries(ecfg.MaxRetries),
		RateLimit:  pace,
		Logger:     p.log.With("model", m.Key),
	})
	defer func() {
		if err := emb.Close(); err != nil {
			p.log.Warn("close embedder", "model", m.Key, "error", err)
		}
	}()

	res, err := engine.New(emb, p.log).Cluster(ctx, c, ccfg)
	if err != nil {
		return ClusterResult{}, err
	}
	rc.Add("clusters_"+m.Key, res.Assignment.Metrics.Clusters)
	rc.Add("noise_"+m.Key, res.Assignment.Metrics.Noise)

	minSamples := ccfg.MinSamples
	if minSamples == 0 {
		minSamples = ccfg.MinClusterSize
	}
	art := report.New(report.Run{
		RunID:          rc.ID,
		EmbeddingModel: m.Name,
		EmbeddingKind:  string(m.Kind),
		Dimensions:     res.Dimensions,
		MinClusterSize: ccfg.MinClusterSize,
		MinSamples:     minSamples,
		Collection:     req.Collection,
		CreatedAt:      p.now().UTC(),
	}, res.Assignment)

	path := p.orDefault(req.Out, report.DefaultName(req.Collection, m.Key, ccfg.MinClusterSize, ccfg.MinSamples))
	a := output.Artifact{Kind: "cluster", Name: filepath.Base(path), Value: art}
	done = rc.Stage("write_" + m.Key)
	err = file.New(path, file.WithHistory(p.cfg.Output.History)).Write(ctx, a)
	done()
	if err != nil {
		return ClusterResult{}, &model.StageError{Stage: "write", Succeeded: len(res.Assignment.Labels), Err: err}
	}
	p.log.Info("cluster artifact saved", "model", m.Key, "path", path,
		"clusters", art.Metrics.Clusters, "noise", art.Metrics.Noise)

	if p.notify != nil {
		if err := p.notify.Write(ctx, a); err != nil {
			p.log.Warn("notify", "model", m.Key, "error", err)
		}
	}
	return ClusterResult{Model: m.Key, Path: path, Artifact: art}, nil
}

// retries maps the configured retry count onto BatchOptions, where 0
// means the default and a negative value disables retries.
func retries(n int) int {
	if n == 0 {
		return -1
	}
	return n
}

func (p *Pipeline) orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

