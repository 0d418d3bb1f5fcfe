package connector

import (
	"context"
	"strings"

	"github.com/crimson-sun/faultline/internal/model"
)

// RecordSource exposes failed test executions and their assertions.
type RecordSource interface {
	// FailedExecutions returns the failed executions of the given runs,
	// ordered by case id. No run ids selects the most recent run.
	FailedExecutions(ctx context.Context, runIDs []string) ([]model.ExecutionRecord, error)

	// Execution returns the most recent execution of caseID, or a
	// *model.NotFoundError.
	Execution(ctx context.Context, caseID string) (model.ExecutionRecord, error)

	// Assertions returns the assertions evaluated by an execution, in
	// evaluation order.
	Assertions(ctx context.Context, executionID string) ([]model.AssertionRecord, error)
}

// TraceStore exposes the spans of a trace. An unknown trace id yields an
// empty result, not an error.
type TraceStore interface {
	Spans(ctx context.Context, traceID string) ([]model.SpanRecord, error)
}

// Source is a provider serving both contracts.
type Source interface {
	RecordSource
	TraceStore
	Close() error
}

// Config holds provider-specific connection settings.
type Config struct {
	Provider       string
	DBPath         string
	ExecutionsPath string
	SpansPath      string
}

// TraceIDVariants returns the id with and without its 0x prefix. Runners
// disagree on whether trace ids carry the prefix.
func TraceIDVariants(id string) []string {
	bare := strings.TrimPrefix(strings.TrimPrefix(id, "0x"), "0X")
	return []string{"0x" + bare, bare}
}

// NormalizeTraceID strips the 0x prefix and lowercases the id.
func NormalizeTraceID(id string) string {
	return strings.ToLower(TraceIDVariants(id)[1])
}
