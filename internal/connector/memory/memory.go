// Package memory is an in-process connector.Source for tests and library use.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/crimson-sun/faultline/internal/connector"
	"github.com/crimson-sun/faultline/internal/model"
)

// Source holds executions, assertions and spans in memory. It is safe for
// concurrent use.
type Source struct {
	mu         sync.RWMutex
	executions []model.ExecutionRecord
	assertions map[string][]model.AssertionRecord // by execution id
	spans      map[string][]model.SpanRecord      // by normalized trace id
}

// New returns an empty Source.
func New() *Source {
	return &Source{
		assertions: make(map[string][]model.AssertionRecord),
		spans:      make(map[string][]model.SpanRecord),
	}
}

// AddExecution records an execution with its assertions. Later additions
// for the same case id are treated as more recent.
func (s *Source) AddExecution(rec model.ExecutionRecord, assertions ...model.AssertionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions = append(s.executions, rec)
	s.assertions[rec.ExecutionID] = append(s.assertions[rec.ExecutionID], assertions...)
}

// AddSpans records spans under traceID.
func (s *Source) AddSpans(traceID string, spans ...model.SpanRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := connector.NormalizeTraceID(traceID)
	s.spans[key] = append(s.spans[key], spans...)
}

// FailedExecutions returns failed executions of runIDs ordered by case id.
// With no run ids the run added last is used.
func (s *Source) FailedExecutions(_ context.Context, runIDs []string) ([]model.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := make(map[string]bool, len(runIDs))
	for _, id := range runIDs {
		want[id] = true
	}
	if len(want) == 0 && len(s.executions) > 0 {
		want[s.executions[len(s.executions)-1].RunID] = true
	}

	var out []model.ExecutionRecord
	for _, rec := range s.executions {
		if want[rec.RunID] && rec.Status.Failed() {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CaseID < out[j].CaseID })
	return out, nil
}

// Execution returns the execution of caseID added last.
func (s *Source) Execution(_ context.Context, caseID string) (model.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.executions) - 1; i >= 0; i-- {
		if s.executions[i].CaseID == caseID {
			return s.executions[i], nil
		}
	}
	return model.ExecutionRecord{}, &model.NotFoundError{Kind: "execution", ID: caseID}
}

// Assertions returns a copy of the assertions of executionID.
func (s *Source) Assertions(_ context.Context, executionID string) ([]model.AssertionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.AssertionRecord(nil), s.assertions[executionID]...), nil
}

// Spans returns a copy of the spans of traceID ordered by start time.
func (s *Source) Spans(_ context.Context, traceID string) ([]model.SpanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]model.SpanRecord(nil), s.spans[connector.NormalizeTraceID(traceID)]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// Close is a no-op.
func (s *Source) Close() error { return nil }
