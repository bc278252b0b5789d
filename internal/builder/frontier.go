package builder

import (
	"context"
	"sort"
	"sync"

	"github.com/softwareheritage/provenance/internal/eliasfano"
	"github.com/softwareheritage/provenance/internal/graph"
	"github.com/softwareheritage/provenance/internal/swhid"
	"github.com/softwareheritage/provenance/internal/tablestore"
)

// Frontier is Stage C's output: the set of frontier directory node-ids
// (spec.md §4.1 Stage C) plus its Elias-Fano membership structure.
type Frontier struct {
	NodeIDs []uint64
	EF      *eliasfano.EliasFano
}

// Contains reports whether dir is a frontier directory.
func (f *Frontier) Contains(dir graph.NodeID) bool { return f.EF.Contains(dir) }

// isFrontier evaluates the per-revision strict-older predicate spec.md
// §4.1 Stage C defines: d is a frontier cut for revision r iff its
// max_leaf is known and strictly older than r's committer date.
func isFrontier(maxLeaf []int64, dir graph.NodeID, revisionDate int64) bool {
	v := maxLeaf[dir]
	return v != Unset && v < revisionDate
}

// ComputeFrontier runs Stage C: for every revision with a known committer
// date, walk its tree roots-down and record the first directory along
// each path that satisfies the strict-older predicate (spec.md §4.1's
// "maximal" rule, enforced by early termination during the walk). The
// same directory may be recorded by more than one revision's walk; the
// union, deduplicated and sorted, is the frontier set.
func ComputeFrontier(ctx context.Context, opt Options, maxLeaf *MaxLeafTimestamps) (*Frontier, error) {
	log := opt.logger()

	revisions, err := opt.Graph.NodesByType(ctx, swhid.Revision)
	if err != nil {
		return nil, wrapStageErr("directory-frontier", err)
	}

	var mu sync.Mutex
	frontierSet := make(map[graph.NodeID]struct{})

	err = opt.Pool.ForEach(ctx, len(revisions), func(ctx context.Context, i int) error {
		revision := revisions[i]
		date, ok, err := opt.Graph.CommitterDate(ctx, revision)
		if err != nil {
			return err
		}
		if !ok {
			// An undated revision never satisfies the strict-older
			// predicate, so it contributes nothing to the frontier.
			return nil
		}
		root, ok, err := rootDirectoryOf(ctx, opt.Graph, revision)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		var hits []graph.NodeID
		if err := frontierWalk(ctx, opt.Graph, maxLeaf.Values, root, date.Unix(), &hits); err != nil {
			return err
		}
		if len(hits) == 0 {
			return nil
		}
		mu.Lock()
		for _, h := range hits {
			frontierSet[h] = struct{}{}
		}
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, wrapStageErr("directory-frontier", err)
	}

	ids := make([]uint64, 0, len(frontierSet))
	for id := range frontierSet {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	ef, err := eliasfano.Build(ids)
	if err != nil {
		return nil, wrapStageErr("directory-frontier", err)
	}
	log.Info("builder: computed directory-frontier", "revisions", len(revisions), "frontier_directories", len(ids))
	return &Frontier{NodeIDs: ids, EF: ef}, nil
}

// frontierWalk descends from dir; whenever it hits a directory satisfying
// the strict-older predicate it records the hit and stops descending
// along that path. Otherwise it recurses into every child directory.
func frontierWalk(ctx context.Context, g graph.Graph, maxLeaf []int64, dir graph.NodeID, revisionDate int64, hits *[]graph.NodeID) error {
	if isFrontier(maxLeaf, dir, revisionDate) {
		*hits = append(*hits, dir)
		return nil
	}
	entries, err := g.DirectoryEntries(ctx, dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		typ, err := g.NodeType(ctx, e.Target)
		if err != nil {
			return err
		}
		if typ != swhid.Directory {
			continue
		}
		if err := frontierWalk(ctx, g, maxLeaf, e.Target, revisionDate, hits); err != nil {
			return err
		}
	}
	return nil
}

// PromoteFrontierTable writes and promotes the frontier's node-id list as
// its own single-column table, matching spec.md §4.1's "written as a
// sorted list + an Elias-Fano membership structure" output description.
func PromoteFrontierTable(store *tablestore.Store, f *Frontier) error {
	return writeFrontierTable(store, "frontier_directories", f.NodeIDs)
}
