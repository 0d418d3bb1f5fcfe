// Package extractor builds the two-section failure signature of one failed
// execution from its record, assertions and trace.
package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/crimson-sun/faultline/internal/connector"
	"github.com/crimson-sun/faultline/internal/engine/generalize"
	"github.com/crimson-sun/faultline/internal/model"
)

// UnknownError is the error type of a failure with no message at all.
const UnknownError = "Unknown error"

// DefaultSkipPrefixes name test-harness spans that are not components of
// the system under test.
var DefaultSkipPrefixes = []string{"test.", "sut."}

// Options tunes extraction.
type Options struct {
	FlowLimit    int      // execution flow keeps the last FlowLimit components (default 10)
	SkipPrefixes []string // span name prefixes excluded from flow and code locations
	Logger       *slog.Logger
}

// Extractor builds failure signatures. It only reads from its sources and
// is safe for concurrent use if they are.
type Extractor struct {
	records connector.RecordSource
	traces  connector.TraceStore
	opts    Options
	log     *slog.Logger
}

// New creates an Extractor over the given sources.
func New(records connector.RecordSource, traces connector.TraceStore, opts Options) *Extractor {
	if opts.FlowLimit <= 0 {
		opts.FlowLimit = 10
	}
	if opts.SkipPrefixes == nil {
		opts.SkipPrefixes = DefaultSkipPrefixes
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{records: records, traces: traces, opts: opts, log: log}
}

// Extract builds the signature of caseID's most recent execution. It fails
// with *model.NotFoundError when the execution is absent or did not fail.
// A missing trace is not an error: flow and code locations are then empty.
func (e *Extractor) Extract(ctx context.Context, caseID string) (model.FailureSignature, error) {
	rec, err := e.records.Execution(ctx, caseID)
	if err != nil {
		return model.FailureSignature{}, err
	}
	if !rec.Status.Failed() {
		return model.FailureSignature{}, &model.NotFoundError{
			Kind:   "execution",
			ID:     caseID,
			Reason: fmt.Sprintf("status is %q, not failed", rec.Status),
		}
	}

	assertions, err := e.records.Assertions(ctx, rec.ExecutionID)
	if err != nil {
		return model.FailureSignature{}, fmt.Errorf("load assertions of %s: %w", caseID, err)
	}

	spans := e.loadSpans(ctx, rec)
	return e.build(rec, assertions, newTrace(spans)), nil
}

// loadSpans fetches the trace. Trace capture is best effort, so store
// failures degrade to an empty trace.
func (e *Extractor) loadSpans(ctx context.Context, rec model.ExecutionRecord) []model.SpanRecord {
	if !rec.TraceID.Present {
		return nil
	}
	spans, err := e.traces.Spans(ctx, rec.TraceID.ID)
	if err != nil {
		e.log.Warn("trace unavailable", "case_id", rec.CaseID, "trace_id", rec.TraceID.ID, "error", err)
		return nil
	}
	if len(spans) == 0 {
		e.log.Debug("trace has no spans", "case_id", rec.CaseID, "trace_id", rec.TraceID.ID)
	}
	return spans
}

func (e *Extractor) build(rec model.ExecutionRecord, assertions []model.AssertionRecord, t *trace) model.FailureSignature {
	var failed []model.AssertionRecord
	var pretty []string
	for _, a := range assertions {
		pretty = append(pretty, a.Pretty())
		if !a.Passed {
			failed = append(failed, a)
		}
	}

	sig := model.FailureSignature{
		CaseID:     rec.CaseID,
		TestName:   rec.TestName,
		TestModule: rec.TestModule,
		TraceID:    rec.TraceID.ID,
	}

	c := &sig.Clustering
	c.ErrorType = generalize.Generalize(errorType(rec, failed))
	for _, a := range failed {
		c.AssertionExpressions = append(c.AssertionExpressions, generalize.Generalize(a.Expression))
		c.AssertionBlocks = append(c.AssertionBlocks, generalize.Generalize(a.Pretty()))
	}
	c.ExecutionFlow = generalize.All(t.flow(e.opts.SkipPrefixes, e.opts.FlowLimit))
	c.AnomalyFlags = anomalyFlags(t)

	for _, s := range c.Strings() {
		if leaks := generalize.Leaks(s); len(leaks) > 0 {
			e.log.Debug("literal left in clustering section", "case_id", rec.CaseID, "leaks", leaks)
		}
	}

	f := &sig.FixContext
	f.ErrorMessage = rec.ErrorMessage
	f.Assertions = pretty
	for _, a := range failed {
		f.FailedAssertions = append(f.FailedAssertions, model.AssertionDetail{
			Expression:   a.Expression,
			Error:        a.ErrorMessage,
			ResolvedArgs: copyArgs(a.ResolvedArgs),
			Pretty:       a.Pretty(),
		})
	}
	f.Inputs = inputs(t)
	f.ActualOutput = actualOutput(t)
	f.ExpectedOutput = expectedOutput(t, failed)
	f.CodeLocations = codeLocations(t, e.opts.SkipPrefixes)

	// Artifacts carry empty lists rather than nulls.
	c.AssertionExpressions = nonNil(c.AssertionExpressions)
	c.AssertionBlocks = nonNil(c.AssertionBlocks)
	c.ExecutionFlow = nonNil(c.ExecutionFlow)
	f.Assertions = nonNil(f.Assertions)
	f.FailedAssertions = nonNil(f.FailedAssertions)
	f.CodeLocations = nonNil(f.CodeLocations)
	return sig
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// errorType is the first non-empty line of the execution's error message,
// falling back to the first failed assertion's message.
func errorType(rec model.ExecutionRecord, failed []model.AssertionRecord) string {
	if line := firstLine(rec.ErrorMessage); line != "" {
		return line
	}
	for _, a := range failed {
		if line := firstLine(a.ErrorMessage); line != "" {
			return line
		}
	}
	return UnknownError
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

func copyArgs(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
