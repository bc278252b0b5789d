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

func TestIsFrontierPredicate(t *testing.T) {
	maxLeaf := []int64{Unset, 5, Unset}
	require.True(t, isFrontier(maxLeaf, 1, 10), "5 < 10 satisfies the strict-older predicate")
	require.False(t, isFrontier(maxLeaf, 1, 5), "5 < 5 is false: the predicate is strict")
	require.False(t, isFrontier(maxLeaf, 2, 1000), "an Unset max_leaf never qualifies, regardless of revision date")
}

// TestFrontierStopsDescentAtFirstQualifyingDirectory builds a two-revision
// graph where an outer directory's own max_leaf fails the later revision's
// predicate (because a sibling content raises it), but its inner child
// directory's max_leaf does qualify — verifying the frontier walk records
// the inner directory and never needs to look past it.
func TestFrontierStopsDescentAtFirstQualifyingDirectory(t *testing.T) {
	ctx := context.Background()
	g, err := graph.Open("", nil)
	require.NoError(t, err)
	defer g.Close()

	require.NoError(t, g.PutNode(1, mkswhid(swhid.Content, 1)))   // old content
	require.NoError(t, g.PutNode(2, mkswhid(swhid.Directory, 2))) // inner (contains node 1)
	require.NoError(t, g.PutNode(3, mkswhid(swhid.Directory, 3))) // outer (contains inner + node 6)
	require.NoError(t, g.PutNode(4, mkswhid(swhid.Revision, 4)))  // dates node 1 at t=5
	require.NoError(t, g.PutNode(5, mkswhid(swhid.Revision, 5)))  // walks the outer tree at t=100
	require.NoError(t, g.PutNode(6, mkswhid(swhid.Content, 6)))   // sibling content, dated by rev 5 itself

	require.NoError(t, g.PutDirectoryEntries(2, []graph.DirEntry{{Name: "a.c", Target: 1}}))
	require.NoError(t, g.PutDirectoryEntries(3, []graph.DirEntry{
		{Name: "inner", Target: 2},
		{Name: "sibling", Target: 6},
	}))
	require.NoError(t, g.PutSuccessors(4, []graph.NodeID{2}))
	require.NoError(t, g.PutSuccessors(5, []graph.NodeID{3}))
	require.NoError(t, g.PutCommitterDate(4, time.Unix(5, 0)))
	require.NoError(t, g.PutCommitterDate(5, time.Unix(100, 0)))

	opt := Options{Graph: g, Pool: workerpool.New(2)}
	earliest, err := ComputeEarliestTimestamps(ctx, opt)
	require.NoError(t, err)
	require.Equal(t, int64(5), earliest.Values[1])
	require.Equal(t, int64(100), earliest.Values[6])

	maxLeaf, err := ComputeMaxLeafTimestamps(ctx, opt, earliest)
	require.NoError(t, err)
	require.Equal(t, int64(5), maxLeaf.Values[2])
	require.Equal(t, int64(100), maxLeaf.Values[3], "outer's max_leaf is raised by the sibling content dated at 100")

	frontier, err := ComputeFrontier(ctx, opt, maxLeaf)
	require.NoError(t, err)
	require.True(t, frontier.Contains(2), "inner satisfies 5 < 100")
	require.False(t, frontier.Contains(3), "outer fails 100 < 100 and must not be recorded")
}

func TestComputeFrontierEmptyGraph(t *testing.T) {
	ctx := context.Background()
	g, err := graph.Open("", nil)
	require.NoError(t, err)
	defer g.Close()

	opt := Options{Graph: g, Pool: workerpool.New(2)}
	frontier, err := ComputeFrontier(ctx, opt, &MaxLeafTimestamps{})
	require.NoError(t, err)
	require.Empty(t, frontier.NodeIDs)
	require.False(t, frontier.Contains(1))
}
