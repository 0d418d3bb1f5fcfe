package model

import (
	"fmt"
	"sort"
	"time"
)

// NotFoundError reports a missing or non-failed execution, or a missing trace.
type NotFoundError struct {
	Kind   string // "execution", "trace"
	ID     string
	Reason string
}

func (e *NotFoundError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s %s not found: %s", e.Kind, e.ID, e.Reason)
	}
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// EmptyCollectionError reports that extraction produced zero signatures.
type EmptyCollectionError struct {
	Requested int
	Skipped   int
}

func (e *EmptyCollectionError) Error() string {
	return fmt.Sprintf("empty collection: 0 of %d case ids produced a signature (%d skipped)", e.Requested, e.Skipped)
}

// TransientError is a retryable embedding failure (network, rate limit, 5xx).
type TransientError struct {
	Op         string
	RetryAfter time.Duration // zero when the server gave no hint
	Err        error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ResourceError reports missing local model assets. Never retried.
type ResourceError struct {
	Asset string
	Err   error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("resource %s unavailable: %v", e.Asset, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// SerializationError reports a malformed signature or collection file.
type SerializationError struct {
	Path string
	Err  error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("malformed signature file %s: %v", e.Path, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// ClusterConfigError rejects invalid clustering parameters before computation.
type ClusterConfigError struct {
	Field  string
	Value  int
	Reason string
}

func (e *ClusterConfigError) Error() string {
	return fmt.Sprintf("invalid %s=%d: %s", e.Field, e.Value, e.Reason)
}

// StageError aborts a run, naming the failing stage and how many items had
// already succeeded.
type StageError struct {
	Stage     string
	Succeeded int
	Err       error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed after %d successes: %v", e.Stage, e.Succeeded, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
