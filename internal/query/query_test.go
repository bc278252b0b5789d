package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/softwareheritage/provenance/internal/builder"
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

// spyGraph wraps a graph.Graph and counts OriginForRevision calls, used to
// verify the field-mask-driven partial-response optimization actually
// skips the origin round-trip when a caller doesn't ask for it.
type spyGraph struct {
	graph.Graph
	originCalls int
}

func (s *spyGraph) OriginForRevision(ctx context.Context, id graph.NodeID) (string, bool, error) {
	s.originCalls++
	return s.Graph.OriginForRevision(ctx, id)
}

// buildScenarioOneTables reproduces spec.md §8 scenario 1 end to end: it
// runs the full index-builder pipeline over a small graph and opens the
// resulting tables the same way the query engine would.
func buildScenarioOneTables(t *testing.T) (*graph.MemGraph, *TableSet, *cache.Caches) {
	t.Helper()
	ctx := context.Background()
	g, err := graph.Open("", nil)
	require.NoError(t, err)

	require.NoError(t, g.PutNode(1, mkswhid(swhid.Content, 1)))
	require.NoError(t, g.PutNode(2, mkswhid(swhid.Directory, 2)))
	require.NoError(t, g.PutNode(3, mkswhid(swhid.Revision, 3)))
	require.NoError(t, g.PutNode(4, mkswhid(swhid.Revision, 4)))
	require.NoError(t, g.PutNode(5, mkswhid(swhid.Snapshot, 5)))
	require.NoError(t, g.PutNode(6, mkswhid(swhid.Origin, 6)))
	require.NoError(t, g.PutDirectoryEntries(2, []graph.DirEntry{{Name: "lib/a.c", Target: 1}}))
	require.NoError(t, g.PutSuccessors(3, []graph.NodeID{2}))
	require.NoError(t, g.PutSuccessors(4, []graph.NodeID{2}))
	require.NoError(t, g.PutSuccessors(5, []graph.NodeID{3})) // snapshot -> R1
	require.NoError(t, g.PutSuccessors(6, []graph.NodeID{5})) // origin -> snapshot
	require.NoError(t, g.PutCommitterDate(3, time.Unix(10, 0)))
	require.NoError(t, g.PutCommitterDate(4, time.Unix(20, 0)))
	require.NoError(t, g.PutOrigin(6, "https://example.invalid/repo.git"))

	opt := builder.Options{Graph: g, Pool: workerpool.New(2), Parts: 2}
	earliest, err := builder.ComputeEarliestTimestamps(ctx, opt)
	require.NoError(t, err)
	maxLeaf, err := builder.ComputeMaxLeafTimestamps(ctx, opt, earliest)
	require.NoError(t, err)
	frontier, err := builder.ComputeFrontier(ctx, opt, maxLeaf)
	require.NoError(t, err)

	store, err := tablestore.Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, builder.PromoteFrontierTable(store, frontier))
	require.NoError(t, builder.ComputeRelations(ctx, opt, maxLeaf, frontier, store))
	require.NoError(t, builder.WriteNodesTable(ctx, opt, store))

	caches, err := cache.New(cache.DefaultBudget)
	require.NoError(t, err)
	rec, err := metrics.New("", "test")
	require.NoError(t, err)

	nodesDir, err := store.Path("nodes")
	require.NoError(t, err)
	nodesTable, err := parquetio.OpenTable[parquetio.NodeRow](nodesDir, func(r parquetio.NodeRow) uint64 { return r.NodeID }, caches, rec)
	require.NoError(t, err)

	fdirDir, err := store.Path("frontier_directories_in_revisions")
	require.NoError(t, err)
	fdirTable, err := parquetio.OpenTable[parquetio.FDIRRow](fdirDir, func(r parquetio.FDIRRow) uint64 { return r.FrontierDir }, caches, rec)
	require.NoError(t, err)

	cfdDir, err := store.Path("contents_in_frontier_directories")
	require.NoError(t, err)
	cfdTable, err := parquetio.OpenTable[parquetio.CFDRow](cfdDir, func(r parquetio.CFDRow) uint64 { return r.Content }, caches, rec)
	require.NoError(t, err)

	crnfDir, err := store.Path("contents_in_revisions_without_frontiers")
	require.NoError(t, err)
	crnfTable, err := parquetio.OpenTable[parquetio.CRNFRow](crnfDir, func(r parquetio.CRNFRow) uint64 { return r.Content }, caches, rec)
	require.NoError(t, err)

	return g, &TableSet{Nodes: nodesTable, FDIR: fdirTable, CFD: cfdTable, CRNF: crnfTable}, caches
}

func TestJoinPaths(t *testing.T) {
	require.Equal(t, "b", string(JoinPaths(nil, []byte("b"))))
	require.Equal(t, "a", string(JoinPaths([]byte("a"), nil)))
	require.Equal(t, "a", string(JoinPaths([]byte("a"), []byte("."))))
	require.Equal(t, "b", string(JoinPaths([]byte("."), []byte("b"))))
	require.Equal(t, "a/b", string(JoinPaths([]byte("a"), []byte("b"))))
}

func TestParseFieldMask(t *testing.T) {
	m, err := ParseFieldMask("")
	require.NoError(t, err)
	require.Equal(t, AllFields(), m)

	m, err = ParseFieldMask("swhid,origin")
	require.NoError(t, err)
	require.Equal(t, FieldMask{SWHID: true, Origin: true}, m)

	_, err = ParseFieldMask("bogus")
	require.Error(t, err)
}

func TestWhereIsOnePicksEarliestRevision(t *testing.T) {
	ctx := context.Background()
	g, ts, caches := buildScenarioOneTables(t)
	defer g.Close()
	defer caches.Close()

	e, err := New(g, ts, caches, nil, nil)
	require.NoError(t, err)

	res, err := e.WhereIsOne(ctx, mkswhid(swhid.Content, 1), AllFields())
	require.NoError(t, err)
	require.True(t, res.Found)
	require.True(t, res.HasAnchor)
	require.Equal(t, mkswhid(swhid.Revision, 3), res.Anchor, "R1@t=10 must win over R2@t=20")
	require.Equal(t, "lib/a.c", string(res.AnchorPath))
	require.True(t, res.HasOrigin)
	require.Equal(t, "https://example.invalid/repo.git", res.Origin)
}

func TestWhereIsOneUnknownContentIsNotFound(t *testing.T) {
	ctx := context.Background()
	g, ts, caches := buildScenarioOneTables(t)
	defer g.Close()
	defer caches.Close()

	e, err := New(g, ts, caches, nil, nil)
	require.NoError(t, err)

	res, err := e.WhereIsOne(ctx, mkswhid(swhid.Content, 99), AllFields())
	require.NoError(t, err)
	require.False(t, res.Found)
}

func TestWhereIsOneFieldMaskSkipsOriginRoundTrip(t *testing.T) {
	ctx := context.Background()
	g, ts, caches := buildScenarioOneTables(t)
	defer g.Close()
	defer caches.Close()

	spy := &spyGraph{Graph: g}
	e, err := New(spy, ts, caches, nil, nil)
	require.NoError(t, err)

	res, err := e.WhereIsOne(ctx, mkswhid(swhid.Content, 1), FieldMask{SWHID: true, Anchor: true})
	require.NoError(t, err)
	require.True(t, res.Found)
	require.False(t, res.HasOrigin)
	require.Equal(t, 0, spy.originCalls, "origin must never be resolved when the mask doesn't ask for it and no tie forced it")
}

func TestWhereAreOneStreamsEveryInput(t *testing.T) {
	ctx := context.Background()
	g, ts, caches := buildScenarioOneTables(t)
	defer g.Close()
	defer caches.Close()

	e, err := New(g, ts, caches, nil, nil)
	require.NoError(t, err)

	ids := []swhid.SWHID{
		mkswhid(swhid.Content, 1),
		mkswhid(swhid.Content, 99), // unknown
		mkswhid(swhid.Content, 1),  // duplicate
	}
	out := e.WhereAreOne(ctx, ids, AllFields())

	var results []Result
	for r := range out {
		results = append(results, r)
	}
	require.Len(t, results, 3)

	found := 0
	for _, r := range results {
		if r.Found {
			found++
		}
	}
	require.Equal(t, 2, found, "both copies of the known content resolve, the unknown one does not")
}
