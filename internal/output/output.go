package output

import (
	"context"
)

// Artifact is one named document produced by a run: a signature collection
// or a cluster assignment.
type Artifact struct {
	Kind  string // "collection", "clusters", "compare"
	Name  string // base name, used by outputs that address artifacts by name
	Value any    // JSON-encodable content
}

// Output defines the interface for artifact destinations.
type Output interface {
	Write(ctx context.Context, a Artifact) error
	Close() error
}
