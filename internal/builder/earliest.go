package builder

import (
	"context"
	"sync/atomic"

	"github.com/softwareheritage/provenance/internal/graph"
	"github.com/softwareheritage/provenance/internal/swhid"
)

// EarliestTimestamps is Stage A's output: a dense array indexed by content
// node-id, where Values[c] is the minimum committer date (Unix seconds)
// over every revision transitively containing content c, or Unset if no
// dated revision reaches c.
type EarliestTimestamps struct {
	Values []int64
}

// ComputeEarliestTimestamps runs Stage A (spec.md §4.1): iterate revisions
// in parallel, walk each revision's tree, and atomic-min the revision's
// committer date into every content reached.
func ComputeEarliestTimestamps(ctx context.Context, opt Options) (*EarliestTimestamps, error) {
	log := opt.logger()

	if values, ok, err := readCheckpoint(opt.Checkpoints, "earliest"); err != nil {
		return nil, wrapStageErr("earliest-timestamps", err)
	} else if ok {
		log.Info("builder: loaded earliest-timestamps checkpoint", "nodes", len(values))
		return &EarliestTimestamps{Values: values}, nil
	}

	maxID, err := opt.Graph.MaxNodeID(ctx)
	if err != nil {
		return nil, wrapStageErr("earliest-timestamps", err)
	}
	revisions, err := opt.Graph.NodesByType(ctx, swhid.Revision)
	if err != nil {
		return nil, wrapStageErr("earliest-timestamps", err)
	}

	earliest := make([]int64, maxID+1)
	for i := range earliest {
		earliest[i] = Unset
	}

	err = opt.Pool.ForEach(ctx, len(revisions), func(ctx context.Context, i int) error {
		revision := revisions[i]
		date, ok, err := opt.Graph.CommitterDate(ctx, revision)
		if err != nil {
			return err
		}
		if !ok {
			// Revisions with missing dates are skipped (spec.md §4.1
			// Stage A); they still participate in Stage D's direct walk.
			return nil
		}
		t := date.Unix()

		root, ok, err := rootDirectoryOf(ctx, opt.Graph, revision)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		return walkContents(ctx, opt.Graph, root, func(content graph.NodeID) error {
			atomicMin(&earliest[content], t)
			return nil
		})
	})
	if err != nil {
		return nil, wrapStageErr("earliest-timestamps", err)
	}

	if err := writeCheckpoint(opt.Checkpoints, "earliest", earliest); err != nil {
		log.Warn("builder: failed to persist earliest-timestamps checkpoint", "error", err)
	}
	log.Info("builder: computed earliest-timestamps", "revisions", len(revisions), "nodes", len(earliest))
	return &EarliestTimestamps{Values: earliest}, nil
}

// atomicMin sets *addr to min(*addr, v) using a compare-and-swap retry
// loop, following the same shared-array atomic-update idiom the teacher
// uses for its durability counters.
func atomicMin(addr *int64, v int64) {
	for {
		old := atomic.LoadInt64(addr)
		if v >= old {
			return
		}
		if atomic.CompareAndSwapInt64(addr, old, v) {
			return
		}
	}
}

// walkContents performs a full (non-memoized) DFS from root, invoking fn
// for every content node reached. Directories are content-addressed, so
// the same subdirectory can be reachable via more than one path within a
// single revision's tree; this walk intentionally visits it again each
// time.
func walkContents(ctx context.Context, g graph.Graph, dir graph.NodeID, fn func(content graph.NodeID) error) error {
	entries, err := g.DirectoryEntries(ctx, dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		typ, err := g.NodeType(ctx, e.Target)
		if err != nil {
			return err
		}
		switch typ {
		case swhid.Directory:
			if err := walkContents(ctx, g, e.Target, fn); err != nil {
				return err
			}
		case swhid.Content:
			if err := fn(e.Target); err != nil {
				return err
			}
		}
	}
	return nil
}
