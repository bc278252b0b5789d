package builder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/softwareheritage/provenance/internal/graph"
	"github.com/softwareheritage/provenance/internal/swhid"
	"github.com/softwareheritage/provenance/internal/workerpool"
)

func TestMaxLeafNestedDirectories(t *testing.T) {
	ctx := context.Background()
	g, err := graph.Open("", nil)
	require.NoError(t, err)
	defer g.Close()

	require.NoError(t, g.PutNode(1, mkswhid(swhid.Content, 1)))
	require.NoError(t, g.PutNode(2, mkswhid(swhid.Directory, 2))) // inner
	require.NoError(t, g.PutNode(3, mkswhid(swhid.Directory, 3))) // outer
	require.NoError(t, g.PutNode(4, mkswhid(swhid.Revision, 4)))

	require.NoError(t, g.PutDirectoryEntries(2, []graph.DirEntry{{Name: "a.c", Target: 1}}))
	require.NoError(t, g.PutDirectoryEntries(3, []graph.DirEntry{{Name: "inner", Target: 2}}))
	require.NoError(t, g.PutSuccessors(4, []graph.NodeID{3}))
	require.NoError(t, g.PutCommitterDate(4, time.Unix(42, 0)))

	opt := Options{Graph: g, Pool: workerpool.New(2)}
	earliest, err := ComputeEarliestTimestamps(ctx, opt)
	require.NoError(t, err)
	require.Equal(t, int64(42), earliest.Values[1])

	maxLeaf, err := ComputeMaxLeafTimestamps(ctx, opt, earliest)
	require.NoError(t, err)
	require.Equal(t, int64(42), maxLeaf.Values[2], "inner directory's max_leaf equals its sole content's earliest timestamp")
	require.Equal(t, int64(42), maxLeaf.Values[3], "outer directory's max_leaf propagates from its child directory")
}

func TestMaxLeafEmptyDirectoryIsUnset(t *testing.T) {
	ctx := context.Background()
	g, err := graph.Open("", nil)
	require.NoError(t, err)
	defer g.Close()

	require.NoError(t, g.PutNode(1, mkswhid(swhid.Directory, 1)))
	require.NoError(t, g.PutDirectoryEntries(1, nil))

	opt := Options{Graph: g, Pool: workerpool.New(2)}
	maxLeaf, err := ComputeMaxLeafTimestamps(ctx, opt, &EarliestTimestamps{Values: []int64{Unset, Unset}})
	require.NoError(t, err)
	require.Equal(t, Unset, maxLeaf.Values[1])
}

func TestMaxLeafCheckpointRoundTrip(t *testing.T) {
	ctx := context.Background()
	g := buildScenarioOneGraph(t)
	defer g.Close()

	dir := t.TempDir()
	opt := Options{Graph: g, Pool: workerpool.New(2), Checkpoints: dir}
	earliest, err := ComputeEarliestTimestamps(ctx, opt)
	require.NoError(t, err)

	first, err := ComputeMaxLeafTimestamps(ctx, opt, earliest)
	require.NoError(t, err)

	empty, err := graph.Open("", nil)
	require.NoError(t, err)
	defer empty.Close()
	opt2 := Options{Graph: empty, Pool: workerpool.New(2), Checkpoints: dir}
	second, err := ComputeMaxLeafTimestamps(ctx, opt2, &EarliestTimestamps{})
	require.NoError(t, err)
	require.Equal(t, first.Values, second.Values)
}
