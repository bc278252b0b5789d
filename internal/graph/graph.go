// Package graph defines the archive graph collaborator contract (spec.md
// §6.4) and a badger-backed in-process implementation used for local
// development, `gen-test-database` fixtures, and unit tests. The real
// production graph service lives outside this repository's scope; this
// package only needs to satisfy the same interface the query engine and
// index builder depend on.
package graph

import (
	"context"
	"time"

	"github.com/softwareheritage/provenance/internal/swhid"
)

// NodeID is the dense 64-bit integer a graph snapshot assigns to each node.
// It is only meaningful relative to the snapshot that produced it.
type NodeID = uint64

// DirEntry is one named edge from a directory to a content or
// sub-directory.
type DirEntry struct {
	Name   string
	Target NodeID
}

// Graph is the read-only collaborator contract spec.md §6.4 requires:
// SWHID<->node-id resolution, typed successor/predecessor iteration,
// per-revision committer timestamps, and origin resolution.
type Graph interface {
	// NodeID resolves a SWHID to its node-id in this snapshot. ok is false
	// if the SWHID is not present.
	NodeID(ctx context.Context, id swhid.SWHID) (NodeID, bool, error)

	// SWHID resolves a node-id back to its SWHID.
	SWHID(ctx context.Context, id NodeID) (swhid.SWHID, bool, error)

	// NodeType returns the type of a node.
	NodeType(ctx context.Context, id NodeID) (swhid.NodeType, error)

	// Successors returns the outgoing typed edges of a node: for a
	// revision, its root directory (and parent revisions); for a
	// directory, its entries' targets; for a snapshot, its branch
	// targets; for an origin, its snapshots.
	Successors(ctx context.Context, id NodeID) ([]NodeID, error)

	// Predecessors returns the reverse of Successors.
	Predecessors(ctx context.Context, id NodeID) ([]NodeID, error)

	// DirectoryEntries returns the named entries of a directory node.
	DirectoryEntries(ctx context.Context, dir NodeID) ([]DirEntry, error)

	// CommitterDate returns the committer date of a revision, if known.
	CommitterDate(ctx context.Context, revision NodeID) (time.Time, bool, error)

	// OriginForRevision returns one origin URL reachable via a snapshot
	// pointing transitively to revision, if any.
	OriginForRevision(ctx context.Context, revision NodeID) (string, bool, error)

	// NodesByType enumerates every node-id of the given type in this
	// snapshot. The index builder uses this to drive its per-revision and
	// per-directory parallel passes (spec.md §4.1 Stages A-D); the real
	// production graph service backs this with its own compressed node
	// index, which is out of this repository's scope.
	NodesByType(ctx context.Context, typ swhid.NodeType) ([]NodeID, error)

	// MaxNodeID returns the largest node-id assigned in this snapshot, used
	// to size the builder's dense per-node-id arrays (`earliest`,
	// `max_leaf`).
	MaxNodeID(ctx context.Context) (NodeID, error)
}
