package testfixtures

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/softwareheritage/provenance/internal/graph"
	"github.com/softwareheritage/provenance/internal/swhid"
)

func TestBuildDanglingContentIsNotReachableFromAnyRevision(t *testing.T) {
	g, err := graph.Open("", nil)
	require.NoError(t, err)
	defer g.Close()

	require.NoError(t, BuildDanglingContent(g))

	id, ok, err := g.NodeID(context.Background(), mkswhid(swhid.Content, 5))
	require.NoError(t, err)
	require.True(t, ok)

	preds, err := g.Predecessors(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, []graph.NodeID{4}, preds, "the dangling content sits only in directory 4")

	dirPreds, err := g.Predecessors(context.Background(), preds[0])
	require.NoError(t, err)
	require.Empty(t, dirPreds, "no revision points to the dangling content's directory")
}

func TestGenerateRandomProducesQueryableContents(t *testing.T) {
	g, err := graph.Open("", nil)
	require.NoError(t, err)
	defer g.Close()

	opts := RandomOptions{Revisions: 5, MaxTreeDepth: 2, MaxDirEntries: 3, Snapshots: 2, Seed: 42}
	fixture, err := GenerateRandom(context.Background(), g, opts)
	require.NoError(t, err)
	require.NotEmpty(t, fixture.ContentSWHIDs)

	for _, id := range fixture.ContentSWHIDs {
		_, ok, err := g.NodeID(context.Background(), id)
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestSampleUnknownSWHIDsNeverCollideWithGenerated(t *testing.T) {
	g, err := graph.Open("", nil)
	require.NoError(t, err)
	defer g.Close()

	fixture, err := GenerateRandom(context.Background(), g, RandomOptions{Revisions: 20, MaxTreeDepth: 3, MaxDirEntries: 4, Snapshots: 3, Seed: 7})
	require.NoError(t, err)

	known := make(map[swhid.SWHID]bool, len(fixture.ContentSWHIDs))
	for _, id := range fixture.ContentSWHIDs {
		known[id] = true
	}

	for _, id := range SampleUnknownSWHIDs(500, 7) {
		require.False(t, known[id])
	}
}
