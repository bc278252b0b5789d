package builder

import (
	"context"
	"fmt"
	"sync"

	"github.com/softwareheritage/provenance/internal/graph"
	"github.com/softwareheritage/provenance/internal/parquetio"
	"github.com/softwareheritage/provenance/internal/swhid"
	"github.com/softwareheritage/provenance/internal/tablestore"
)

const (
	tableFDIR = "frontier_directories_in_revisions"
	tableCFD  = "contents_in_frontier_directories"
	tableCRNF = "contents_in_revisions_without_frontiers"
)

// ComputeRelations runs Stage D (spec.md §4.1): one tree walk per revision
// producing FDIR and CRNF rows with the frontier as a cut, plus one
// subtree walk per frontier directory producing CFD rows.
func ComputeRelations(ctx context.Context, opt Options, maxLeaf *MaxLeafTimestamps, frontier *Frontier, store *tablestore.Store) error {
	log := opt.logger()

	revisions, err := opt.Graph.NodesByType(ctx, swhid.Revision)
	if err != nil {
		return wrapStageErr("relations", err)
	}

	fdirStage, err := store.Stage(tableFDIR)
	if err != nil {
		return wrapStageErr("relations", err)
	}
	cfdStage, err := store.Stage(tableCFD)
	if err != nil {
		_ = store.Discard(fdirStage)
		return wrapStageErr("relations", err)
	}
	crnfStage, err := store.Stage(tableCRNF)
	if err != nil {
		_ = store.Discard(fdirStage)
		_ = store.Discard(cfdStage)
		return wrapStageErr("relations", err)
	}
	discardAll := func() {
		_ = store.Discard(fdirStage)
		_ = store.Discard(cfdStage)
		_ = store.Discard(crnfStage)
	}

	fdirWriter := parquetio.NewPartitionedWriter[parquetio.FDIRRow](fdirStage, opt.Parts, func(r parquetio.FDIRRow) uint64 { return r.FrontierDir })
	crnfWriter := parquetio.NewPartitionedWriter[parquetio.CRNFRow](crnfStage, opt.Parts, func(r parquetio.CRNFRow) uint64 { return r.Content })
	cfdWriter := parquetio.NewPartitionedWriter[parquetio.CFDRow](cfdStage, opt.Parts, func(r parquetio.CFDRow) uint64 { return r.Content })

	var relMu sync.Mutex
	err = opt.Pool.ForEach(ctx, len(revisions), func(ctx context.Context, i int) error {
		revision := revisions[i]
		date, hasDate, err := opt.Graph.CommitterDate(ctx, revision)
		if err != nil {
			return err
		}
		root, ok, err := rootDirectoryOf(ctx, opt.Graph, revision)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		w := &revisionWalker{
			g:            opt.Graph,
			maxLeaf:      maxLeaf.Values,
			hasDate:      hasDate,
			revisionDate: dateOrZero(hasDate, date),
			fdirBest:     make(map[graph.NodeID]string),
			crnfSeen:     make(map[string]bool),
		}
		if err := w.walk(ctx, root, ""); err != nil {
			return err
		}

		relMu.Lock()
		for dir, path := range w.fdirBest {
			fdirWriter.Add(parquetio.FDIRRow{FrontierDir: dir, Revision: revision, Path: []byte(path)})
		}
		for _, row := range w.crnfRows {
			crnfWriter.Add(parquetio.CRNFRow{Content: row.content, Revision: revision, Path: []byte(row.path)})
		}
		relMu.Unlock()
		return nil
	})
	if err != nil {
		discardAll()
		return wrapStageErr("relations", err)
	}

	var cfdMu sync.Mutex
	cfdSeen := make(map[string]bool)
	err = opt.Pool.ForEach(ctx, len(frontier.NodeIDs), func(ctx context.Context, i int) error {
		fd := frontier.NodeIDs[i]
		return walkSubtreeForCFD(ctx, opt.Graph, fd, "", func(content graph.NodeID, path string) error {
			key := fmt.Sprintf("%d|%d|%s", content, fd, path)
			cfdMu.Lock()
			defer cfdMu.Unlock()
			if cfdSeen[key] {
				return nil
			}
			cfdSeen[key] = true
			cfdWriter.Add(parquetio.CFDRow{Content: content, FrontierDir: fd, Path: []byte(path)})
			return nil
		})
	})
	if err != nil {
		discardAll()
		return wrapStageErr("relations", err)
	}

	if err := fdirWriter.Close(); err != nil {
		discardAll()
		return wrapStageErr("relations", err)
	}
	if err := crnfWriter.Close(); err != nil {
		discardAll()
		return wrapStageErr("relations", err)
	}
	if err := cfdWriter.Close(); err != nil {
		discardAll()
		return wrapStageErr("relations", err)
	}

	if err := store.PromoteAtomic(tableFDIR, fdirStage); err != nil {
		return wrapStageErr("relations", err)
	}
	if err := store.PromoteAtomic(tableCFD, cfdStage); err != nil {
		return wrapStageErr("relations", err)
	}
	if err := store.PromoteAtomic(tableCRNF, crnfStage); err != nil {
		return wrapStageErr("relations", err)
	}

	log.Info("builder: computed relations", "revisions", len(revisions), "frontier_directories", len(frontier.NodeIDs))
	return nil
}

func dateOrZero(hasDate bool, t interface{ Unix() int64 }) int64 {
	if !hasDate {
		return 0
	}
	return t.Unix()
}

type crnfHit struct {
	content graph.NodeID
	path    string
}

// revisionWalker accumulates one revision's FDIR/CRNF hits before they are
// merged into the shared partitioned writers, so per-revision dedup
// (spec.md §4.1's "lexicographically smallest path wins" for FDIR, exact
// triple uniqueness for CRNF) never needs cross-goroutine locking.
type revisionWalker struct {
	g            graph.Graph
	maxLeaf      []int64
	hasDate      bool
	revisionDate int64

	fdirBest map[graph.NodeID]string
	crnfSeen map[string]bool
	crnfRows []crnfHit
}

func (w *revisionWalker) walk(ctx context.Context, dir graph.NodeID, path string) error {
	if w.hasDate && isFrontier(w.maxLeaf, dir, w.revisionDate) {
		if existing, ok := w.fdirBest[dir]; !ok || path < existing {
			w.fdirBest[dir] = path
		}
		return nil
	}
	entries, err := w.g.DirectoryEntries(ctx, dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		typ, err := w.g.NodeType(ctx, e.Target)
		if err != nil {
			return err
		}
		childPath := joinName(path, e.Name)
		switch typ {
		case swhid.Directory:
			if err := w.walk(ctx, e.Target, childPath); err != nil {
				return err
			}
		case swhid.Content:
			key := fmt.Sprintf("%d|%s", e.Target, childPath)
			if w.crnfSeen[key] {
				continue
			}
			w.crnfSeen[key] = true
			w.crnfRows = append(w.crnfRows, crnfHit{content: e.Target, path: childPath})
		}
	}
	return nil
}

// walkSubtreeForCFD walks a frontier directory's full subtree unconditionally
// (spec.md §4.1 Stage D: "walk its subtree once ... for each content c
// inside (any depth)"), independent of any particular revision.
func walkSubtreeForCFD(ctx context.Context, g graph.Graph, dir graph.NodeID, path string, fn func(content graph.NodeID, path string) error) error {
	entries, err := g.DirectoryEntries(ctx, dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		typ, err := g.NodeType(ctx, e.Target)
		if err != nil {
			return err
		}
		childPath := joinName(path, e.Name)
		switch typ {
		case swhid.Directory:
			if err := walkSubtreeForCFD(ctx, g, e.Target, childPath, fn); err != nil {
				return err
			}
		case swhid.Content:
			if err := fn(e.Target, childPath); err != nil {
				return err
			}
		}
	}
	return nil
}
