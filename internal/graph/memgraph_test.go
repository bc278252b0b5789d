package graph

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/softwareheritage/provenance/internal/swhid"
)

func mkswhid(t *testing.T, typ swhid.NodeType, b byte) swhid.SWHID {
	t.Helper()
	var id swhid.SWHID
	id.Version = 1
	id.Type = typ
	id.Hash[19] = b
	return id
}

func TestMemGraphRoundTrip(t *testing.T) {
	ctx := context.Background()
	g, err := Open("", nil)
	require.NoError(t, err)
	defer g.Close()

	content := mkswhid(t, swhid.Content, 1)
	dir := mkswhid(t, swhid.Directory, 2)
	rev := mkswhid(t, swhid.Revision, 3)
	snap := mkswhid(t, swhid.Snapshot, 4)
	origin := mkswhid(t, swhid.Origin, 5)

	require.NoError(t, g.PutNode(1, content))
	require.NoError(t, g.PutNode(2, dir))
	require.NoError(t, g.PutNode(3, rev))
	require.NoError(t, g.PutNode(4, snap))
	require.NoError(t, g.PutNode(5, origin))

	require.NoError(t, g.PutDirectoryEntries(2, []DirEntry{{Name: "lib/a.c", Target: 1}}))
	require.NoError(t, g.PutSuccessors(3, []NodeID{2})) // revision -> root directory
	require.NoError(t, g.PutSuccessors(4, []NodeID{3})) // snapshot -> revision
	require.NoError(t, g.PutSuccessors(5, []NodeID{4})) // origin -> snapshot
	require.NoError(t, g.PutCommitterDate(3, time.Unix(10, 0)))
	require.NoError(t, g.PutOrigin(5, "https://example.org/repo.git"))

	nodeID, ok, err := g.NodeID(ctx, content)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, NodeID(1), nodeID)

	gotSWHID, ok, err := g.SWHID(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, content, gotSWHID)

	entries, err := g.DirectoryEntries(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "lib/a.c", entries[0].Name)
	require.Equal(t, NodeID(1), entries[0].Target)

	date, ok, err := g.CommitterDate(ctx, 3)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(10), date.Unix())

	url, ok, err := g.OriginForRevision(ctx, 3)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "https://example.org/repo.git", url)

	preds, err := g.Predecessors(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, []NodeID{3}, preds)

	revisions, err := g.NodesByType(ctx, swhid.Revision)
	require.NoError(t, err)
	require.Equal(t, []NodeID{3}, revisions)

	max, err := g.MaxNodeID(ctx)
	require.NoError(t, err)
	require.Equal(t, NodeID(5), max)
}

func TestMemGraphMissingNode(t *testing.T) {
	ctx := context.Background()
	g, err := Open("", nil)
	require.NoError(t, err)
	defer g.Close()

	_, ok, err := g.NodeID(ctx, mkswhid(t, swhid.Content, 99))
	require.NoError(t, err)
	require.False(t, ok)

	_, found, err := g.CommitterDate(ctx, 12345)
	require.NoError(t, err)
	require.False(t, found)
}
