package extractor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crimson-sun/faultline/internal/connector/memory"
	"github.com/crimson-sun/faultline/internal/engine/generalize"
	"github.com/crimson-sun/faultline/internal/model"
)

var t0 = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

func span(id, parent, name string, offset int, attrs map[string]any) model.SpanRecord {
	if attrs == nil {
		attrs = map[string]any{}
	}
	return model.SpanRecord{
		SpanID:     id,
		ParentID:   parent,
		TraceID:    "0xabc",
		Name:       name,
		Start:      t0.Add(time.Duration(offset) * time.Millisecond),
		End:        t0.Add(time.Duration(offset+5) * time.Millisecond),
		Attributes: attrs,
	}
}

func fixture() *memory.Source {
	src := memory.New()
	src.AddExecution(model.ExecutionRecord{
		CaseID:       "case-1",
		ExecutionID:  "e1",
		RunID:        "r1",
		TestName:     "test_destination_present",
		TestModule:   "tests/test_agent.py",
		Status:       model.StatusFailed,
		TraceID:      model.NewTraceRef("abc"),
		ErrorMessage: "Missing field 'destination'\nTraceback (most recent call last): ...",
	},
		model.AssertionRecord{ID: 1, Expression: "response is not None", Passed: true},
		model.AssertionRecord{
			ID:           2,
			Expression:   "'destination' in response",
			Passed:       false,
			ErrorMessage: "Missing field 'destination'",
			ResolvedArgs: map[string]string{"response": "{'origin': 'SFO'}", "expected_destination": "'Rome'"},
		},
	)
	src.AddSpans("0xabc",
		span("1", "", "test.case", 0, nil),
		span("2", "1", "travelops.agent.run", 1, map[string]any{
			"input.query":   "Plan 3 days in Rome",
			"code.filepath": "app/agent.py",
			"code.lineno":   float64(40),
			"code.function": "run",
		}),
		span("4", "2", "travelops.llm.generate", 20, map[string]any{
			"gen_ai.prompt.1.content":     "Plan 3 days in Rome",
			"gen_ai.prompt.1.role":        "user",
			"gen_ai.prompt.0.content":     "You are a travel agent",
			"gen_ai.prompt.0.role":        "system",
			"gen_ai.completion.0.content": "{}",
			"validation_success":          false,
		}),
		span("3", "2", "travelops.router", 10, map[string]any{
			"route.needs_tools": true,
			"route.tools":       []any{"flights"},
		}),
		span("5", "2", "travelops.tool.flights", 30, map[string]any{
			"tool.input":  "SFO->FCO",
			"tool.result": "[]",
		}),
		span("6", "1", "sut.teardown", 50, nil),
		span("7", "ghost", "travelops.postprocess", 60, map[string]any{
			"expected.destination": "Rome",
		}),
	)
	return src
}

func TestExtract_MissingFieldExample(t *testing.T) {
	src := fixture()
	sig, err := New(src, src, Options{}).Extract(context.Background(), "case-1")
	require.NoError(t, err)

	assert.Equal(t, "Missing field '[VALUE]'", sig.Clustering.ErrorType)
	assert.Equal(t, []string{"'[VALUE]' in response"}, sig.Clustering.AssertionExpressions)
	require.Len(t, sig.Clustering.AssertionBlocks, 1)
	assert.Contains(t, sig.Clustering.AssertionBlocks[0], "Error message: Missing field '[VALUE]'")
	assert.Contains(t, sig.Clustering.AssertionBlocks[0], "response = [MAP]")

	assert.Equal(t, "Missing field 'destination'\nTraceback (most recent call last): ...", sig.FixContext.ErrorMessage)
	require.Len(t, sig.FixContext.FailedAssertions, 1)
	assert.Equal(t, "'destination' in response", sig.FixContext.FailedAssertions[0].Expression)
	assert.Contains(t, sig.FixContext.FailedAssertions[0].Pretty, "response = {'origin': 'SFO'}")
	assert.Len(t, sig.FixContext.Assertions, 2, "fix context keeps passed assertions too")

	assert.Equal(t, "case-1", sig.CaseID)
	assert.Equal(t, "tests/test_agent.py", sig.TestModule)
	assert.Equal(t, "abc", sig.TraceID)
}

func TestExtract_FlowOrder(t *testing.T) {
	src := fixture()
	sig, err := New(src, src, Options{}).Extract(context.Background(), "case-1")
	require.NoError(t, err)

	want := []string{
		"travelops.agent.run",
		"travelops.router",
		"travelops.llm.generate",
		"travelops.tool.flights",
		"travelops.postprocess", // orphan: parent not in trace
	}
	if diff := cmp.Diff(want, sig.Clustering.ExecutionFlow); diff != "" {
		t.Errorf("flow mismatch (-want +got):\n%s", diff)
	}
}

func TestExtract_FlowLimit(t *testing.T) {
	src := fixture()
	sig, err := New(src, src, Options{FlowLimit: 2}).Extract(context.Background(), "case-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"travelops.tool.flights", "travelops.postprocess"}, sig.Clustering.ExecutionFlow)
}

func TestExtract_AnomalyFlags(t *testing.T) {
	src := fixture()
	sig, err := New(src, src, Options{}).Extract(context.Background(), "case-1")
	require.NoError(t, err)

	assert.Equal(t, model.AnomalyFlags{
		ValidationFailure: true,
		EmptyResponse:     true,
		RoutingDecision:   true,
		ToolCalls:         true,
	}, sig.Clustering.AnomalyFlags)
}

func TestExtract_FixContext(t *testing.T) {
	src := fixture()
	sig, err := New(src, src, Options{}).Extract(context.Background(), "case-1")
	require.NoError(t, err)
	f := sig.FixContext

	assert.Equal(t, "Plan 3 days in Rome", f.Inputs["query"])
	assert.Equal(t, true, f.Inputs["needs_tools"])
	assert.Equal(t, map[string]any{"flights": "SFO->FCO"}, f.Inputs["tool_inputs"])
	assert.Equal(t, []any{
		map[string]any{"role": "system", "content": "You are a travel agent"},
		map[string]any{"role": "user", "content": "Plan 3 days in Rome"},
	}, f.Inputs["messages"])

	assert.Equal(t, "{}", f.ActualOutput["llm_response"])
	assert.Equal(t, map[string]any{"flights": "[]"}, f.ActualOutput["tool_results"])

	assert.Equal(t, "Rome", f.ExpectedOutput["destination"])
	assert.Equal(t, "'Rome'", f.ExpectedOutput["expected_destination"])

	require.NotEmpty(t, f.CodeLocations)
	assert.Equal(t, model.CodeLocation{
		Component: "travelops.agent.run",
		FilePath:  "app/agent.py",
		LineNo:    40,
		Function:  "run",
	}, f.CodeLocations[0])
	for _, loc := range f.CodeLocations {
		assert.NotEqual(t, "test.case", loc.Component)
		assert.NotEqual(t, "sut.teardown", loc.Component)
	}
	// Spans without code attributes fall back to their name.
	assert.Equal(t, "travelops.router", f.CodeLocations[1].Function)
}

func TestExtract_LeakFree(t *testing.T) {
	src := fixture()
	sig, err := New(src, src, Options{}).Extract(context.Background(), "case-1")
	require.NoError(t, err)
	for _, s := range sig.Clustering.Strings() {
		assert.Empty(t, generalize.Leaks(s), "leak in %q", s)
	}
}

func TestExtract_NotFound(t *testing.T) {
	src := fixture()
	src.AddExecution(model.ExecutionRecord{CaseID: "ok", ExecutionID: "e9", Status: model.StatusPassed})
	ex := New(src, src, Options{})

	for _, id := range []string{"missing", "ok"} {
		_, err := ex.Extract(context.Background(), id)
		var nf *model.NotFoundError
		require.True(t, errors.As(err, &nf), "%s: got %v", id, err)
		assert.Equal(t, id, nf.ID)
	}
}

func TestExtract_NoTrace(t *testing.T) {
	src := memory.New()
	src.AddExecution(model.ExecutionRecord{CaseID: "c", ExecutionID: "e", Status: model.StatusError})

	sig, err := New(src, src, Options{}).Extract(context.Background(), "c")
	require.NoError(t, err)
	assert.Equal(t, UnknownError, sig.Clustering.ErrorType)
	assert.Empty(t, sig.Clustering.ExecutionFlow)
	assert.NotNil(t, sig.Clustering.ExecutionFlow)
	assert.Empty(t, sig.FixContext.CodeLocations)
	assert.Nil(t, sig.FixContext.Inputs)
}

type failingTraces struct{}

func (failingTraces) Spans(context.Context, string) ([]model.SpanRecord, error) {
	return nil, errors.New("trace store offline")
}

func TestExtract_TraceStoreFailureDegrades(t *testing.T) {
	src := fixture()
	sig, err := New(src, failingTraces{}, Options{}).Extract(context.Background(), "case-1")
	require.NoError(t, err)
	assert.Empty(t, sig.Clustering.ExecutionFlow)
	assert.Equal(t, "Missing field '[VALUE]'", sig.Clustering.ErrorType)
}

func TestExtract_ErrorTypeFallsBackToAssertion(t *testing.T) {
	src := memory.New()
	src.AddExecution(model.ExecutionRecord{CaseID: "c", ExecutionID: "e", Status: model.StatusFailed},
		model.AssertionRecord{Expression: "x == 2", ErrorMessage: "\n  expected 2 got 3"})

	sig, err := New(src, src, Options{}).Extract(context.Background(), "c")
	require.NoError(t, err)
	assert.Equal(t, "expected [NUMBER] got [NUMBER]", sig.Clustering.ErrorType)
}

func TestExtract_DoesNotMutateSources(t *testing.T) {
	src := fixture()
	ctx := context.Background()
	before, _ := src.Spans(ctx, "abc")
	_, err := New(src, src, Options{}).Extract(ctx, "case-1")
	require.NoError(t, err)
	after, _ := src.Spans(ctx, "abc")
	assert.Equal(t, before, after)
}

func TestTraceOrder_Cycle(t *testing.T) {
	tr := newTrace([]model.SpanRecord{
		span("a", "b", "a", 0, nil),
		span("b", "a", "b", 1, nil),
		span("r", "", "root", 2, nil),
	})
	var names []string
	for _, i := range tr.order() {
		names = append(names, tr.spans[i].Name)
	}
	assert.Equal(t, []string{"root", "a", "b"}, names)
}
