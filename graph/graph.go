// Package graph defines the property-graph capability used by the import
// pipeline and the read API, and implements the traversal engine on top of
// it.
//
// The write side performs idempotent upserts of program/version nodes and
// their edges; the read side is one-hop neighbor queries that the bounded
// traversals in this package expand. There is a single production
// implementation, the bolt-backed store in graph/neo4jstore.
package graph

import (
	"context"

	cratespro "github.com/crates-pro/crates-pro"
)

// Querier is the graph-read capability: one-hop expansion over depends_on in
// both directions. Keys are name-and-version keys.
//
// Implementations must not surface writes in progress; an
// eventually-consistent snapshot is acceptable. No ordering is defined for
// same-distance neighbors.
type Querier interface {
	// DirectDependencies returns the one-hop depends_on targets of key.
	DirectDependencies(ctx context.Context, key string) ([]string, error)
	// DirectDependents returns the one-hop reverse neighbors of key.
	DirectDependents(ctx context.Context, key string) ([]string, error)
}

// Store is the full graph capability: the read side plus idempotent upserts.
type Store interface {
	Querier

	// UpsertProgram creates the Program node and its has_type edge. Creating
	// an already-present program is a no-op.
	UpsertProgram(ctx context.Context, p *cratespro.Program) error
	// UpsertVersion creates the Version node, the has_version edge from the
	// owning program's type node, the legacy has_dep_version self-bridge, and
	// one depends_on edge per declared dependency. Dependency targets that do
	// not exist yet are created as bare Version nodes.
	UpsertVersion(ctx context.Context, v *cratespro.Version, deps []cratespro.Dependency) error
	// ProgramByName fetches a program by its package name.
	ProgramByName(ctx context.Context, name string) (*cratespro.Program, error)

	Close(ctx context.Context) error
}

// ErrNotFound is returned by lookups when the node does not exist.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "graph: not found" }
