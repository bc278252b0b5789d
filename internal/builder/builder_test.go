package builder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/softwareheritage/provenance/internal/cache"
	"github.com/softwareheritage/provenance/internal/graph"
	"github.com/softwareheritage/provenance/internal/metrics"
	"github.com/softwareheritage/provenance/internal/parquetio"
	"github.com/softwareheritage/provenance/internal/swhid"
	"github.com/softwareheritage/provenance/internal/tablestore"
	"github.com/softwareheritage/provenance/internal/workerpool"
)

func mkswhid(typ swhid.NodeType, b byte) swhid.SWHID {
	var id swhid.SWHID
	id.Version = 1
	id.Type = typ
	id.Hash[19] = b
	return id
}

// buildScenarioOneGraph reproduces spec.md §8 end-to-end scenario 1: two
// revisions R1@t=10 and R2@t=20 share root directory D containing content
// C at "lib/a.c".
func buildScenarioOneGraph(t *testing.T) *graph.MemGraph {
	t.Helper()
	g, err := graph.Open("", nil)
	require.NoError(t, err)

	require.NoError(t, g.PutNode(1, mkswhid(swhid.Content, 1)))
	require.NoError(t, g.PutNode(2, mkswhid(swhid.Directory, 2)))
	require.NoError(t, g.PutNode(3, mkswhid(swhid.Revision, 3)))
	require.NoError(t, g.PutNode(4, mkswhid(swhid.Revision, 4)))

	require.NoError(t, g.PutDirectoryEntries(2, []graph.DirEntry{{Name: "lib/a.c", Target: 1}}))
	require.NoError(t, g.PutSuccessors(3, []graph.NodeID{2}))
	require.NoError(t, g.PutSuccessors(4, []graph.NodeID{2}))
	require.NoError(t, g.PutCommitterDate(3, time.Unix(10, 0)))
	require.NoError(t, g.PutCommitterDate(4, time.Unix(20, 0)))
	return g
}

func TestScenarioOneEndToEnd(t *testing.T) {
	ctx := context.Background()
	g := buildScenarioOneGraph(t)
	defer g.Close()

	opt := Options{Graph: g, Pool: workerpool.New(2), Parts: 2}

	earliest, err := ComputeEarliestTimestamps(ctx, opt)
	require.NoError(t, err)
	require.Equal(t, int64(10), earliest.Values[1])

	maxLeaf, err := ComputeMaxLeafTimestamps(ctx, opt, earliest)
	require.NoError(t, err)
	require.Equal(t, int64(10), maxLeaf.Values[2])

	frontier, err := ComputeFrontier(ctx, opt, maxLeaf)
	require.NoError(t, err)
	require.True(t, frontier.Contains(2), "D must be a frontier directory (triggered by R2)")
	require.Equal(t, []uint64{2}, frontier.NodeIDs)

	store, err := tablestore.Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, PromoteFrontierTable(store, frontier))
	require.NoError(t, ComputeRelations(ctx, opt, maxLeaf, frontier, store))

	caches, err := cache.New(cache.DefaultBudget)
	require.NoError(t, err)
	defer caches.Close()
	rec, err := metrics.New("", "test")
	require.NoError(t, err)

	fdirDir, err := store.Path(tableFDIR)
	require.NoError(t, err)
	fdirTable, err := parquetio.OpenTable[parquetio.FDIRRow](fdirDir, func(r parquetio.FDIRRow) uint64 { return r.FrontierDir }, caches, rec)
	require.NoError(t, err)
	fdirRows, err := fdirTable.Lookup(ctx, 2)
	require.NoError(t, err)
	require.Len(t, fdirRows, 1)
	require.Equal(t, graph.NodeID(4), fdirRows[0].Revision)
	require.Equal(t, "", string(fdirRows[0].Path))

	crnfDir, err := store.Path(tableCRNF)
	require.NoError(t, err)
	crnfTable, err := parquetio.OpenTable[parquetio.CRNFRow](crnfDir, func(r parquetio.CRNFRow) uint64 { return r.Content }, caches, rec)
	require.NoError(t, err)
	crnfRows, err := crnfTable.Lookup(ctx, 1)
	require.NoError(t, err)
	require.Len(t, crnfRows, 1)
	require.Equal(t, graph.NodeID(3), crnfRows[0].Revision)
	require.Equal(t, "lib/a.c", string(crnfRows[0].Path))

	cfdDir, err := store.Path(tableCFD)
	require.NoError(t, err)
	cfdTable, err := parquetio.OpenTable[parquetio.CFDRow](cfdDir, func(r parquetio.CFDRow) uint64 { return r.Content }, caches, rec)
	require.NoError(t, err)
	cfdRows, err := cfdTable.Lookup(ctx, 1)
	require.NoError(t, err)
	require.Len(t, cfdRows, 1)
	require.Equal(t, graph.NodeID(2), cfdRows[0].FrontierDir)
	require.Equal(t, "lib/a.c", string(cfdRows[0].Path))
}

func TestScenarioTwoDuplicatePathsYieldTwoCRNFRows(t *testing.T) {
	ctx := context.Background()
	g, err := graph.Open("", nil)
	require.NoError(t, err)
	defer g.Close()

	// Single revision R with two copies of content C, at "a" and "b/a".
	// Modeled as one directory D directly containing two named entries
	// both pointing at C.
	require.NoError(t, g.PutNode(1, mkswhid(swhid.Content, 1)))
	require.NoError(t, g.PutNode(2, mkswhid(swhid.Directory, 2)))
	require.NoError(t, g.PutNode(3, mkswhid(swhid.Revision, 3)))
	require.NoError(t, g.PutDirectoryEntries(2, []graph.DirEntry{
		{Name: "b/a", Target: 1},
		{Name: "a", Target: 1},
	}))
	require.NoError(t, g.PutSuccessors(3, []graph.NodeID{2}))
	require.NoError(t, g.PutCommitterDate(3, time.Unix(5, 0)))

	opt := Options{Graph: g, Pool: workerpool.New(2), Parts: 1}
	earliest, err := ComputeEarliestTimestamps(ctx, opt)
	require.NoError(t, err)
	maxLeaf, err := ComputeMaxLeafTimestamps(ctx, opt, earliest)
	require.NoError(t, err)
	frontier, err := ComputeFrontier(ctx, opt, maxLeaf)
	require.NoError(t, err)
	require.False(t, frontier.Contains(2), "D's max_leaf (5) is not strictly older than R's committer date (5), so it is not a frontier")

	store, err := tablestore.Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, PromoteFrontierTable(store, frontier))
	require.NoError(t, ComputeRelations(ctx, opt, maxLeaf, frontier, store))

	caches, err := cache.New(cache.DefaultBudget)
	require.NoError(t, err)
	defer caches.Close()
	rec, err := metrics.New("", "test")
	require.NoError(t, err)

	crnfDir, err := store.Path(tableCRNF)
	require.NoError(t, err)
	crnfTable, err := parquetio.OpenTable[parquetio.CRNFRow](crnfDir, func(r parquetio.CRNFRow) uint64 { return r.Content }, caches, rec)
	require.NoError(t, err)
	rows, err := crnfTable.Lookup(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rows, 2, "two distinct paths to the same content in one revision yield two CRNF rows")
}

func TestScenarioThreeRevisionWithoutCommitterDate(t *testing.T) {
	ctx := context.Background()
	g, err := graph.Open("", nil)
	require.NoError(t, err)
	defer g.Close()

	require.NoError(t, g.PutNode(1, mkswhid(swhid.Content, 1)))
	require.NoError(t, g.PutNode(2, mkswhid(swhid.Directory, 2)))
	require.NoError(t, g.PutNode(3, mkswhid(swhid.Revision, 3)))
	require.NoError(t, g.PutDirectoryEntries(2, []graph.DirEntry{{Name: "a.c", Target: 1}}))
	require.NoError(t, g.PutSuccessors(3, []graph.NodeID{2}))
	// No PutCommitterDate call: the revision's date is unknown.

	opt := Options{Graph: g, Pool: workerpool.New(2), Parts: 1}
	earliest, err := ComputeEarliestTimestamps(ctx, opt)
	require.NoError(t, err)
	require.Equal(t, Unset, earliest.Values[1], "no dated revision reaches the content")

	maxLeaf, err := ComputeMaxLeafTimestamps(ctx, opt, earliest)
	require.NoError(t, err)
	frontier, err := ComputeFrontier(ctx, opt, maxLeaf)
	require.NoError(t, err)
	require.Empty(t, frontier.NodeIDs)

	store, err := tablestore.Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, PromoteFrontierTable(store, frontier))
	require.NoError(t, ComputeRelations(ctx, opt, maxLeaf, frontier, store))

	caches, err := cache.New(cache.DefaultBudget)
	require.NoError(t, err)
	defer caches.Close()
	rec, err := metrics.New("", "test")
	require.NoError(t, err)

	crnfDir, err := store.Path(tableCRNF)
	require.NoError(t, err)
	crnfTable, err := parquetio.OpenTable[parquetio.CRNFRow](crnfDir, func(r parquetio.CRNFRow) uint64 { return r.Content }, caches, rec)
	require.NoError(t, err)
	rows, err := crnfTable.Lookup(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1, "still reachable via CRNF despite the revision having no date")
}
