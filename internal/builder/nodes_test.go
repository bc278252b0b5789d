package builder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/softwareheritage/provenance/internal/cache"
	"github.com/softwareheritage/provenance/internal/graph"
	"github.com/softwareheritage/provenance/internal/metrics"
	"github.com/softwareheritage/provenance/internal/parquetio"
	"github.com/softwareheritage/provenance/internal/swhid"
	"github.com/softwareheritage/provenance/internal/tablestore"
	"github.com/softwareheritage/provenance/internal/workerpool"
)

func TestWriteNodesTable(t *testing.T) {
	ctx := context.Background()
	g := buildScenarioOneGraph(t)
	defer g.Close()

	opt := Options{Graph: g, Pool: workerpool.New(2), Parts: 2}
	store, err := tablestore.Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, WriteNodesTable(ctx, opt, store))

	dir, err := store.Path(tableNodes)
	require.NoError(t, err)
	caches, err := cache.New(cache.DefaultBudget)
	require.NoError(t, err)
	defer caches.Close()
	rec, err := metrics.New("", "test")
	require.NoError(t, err)

	table, err := parquetio.OpenTable[parquetio.NodeRow](dir, func(r parquetio.NodeRow) uint64 { return r.NodeID }, caches, rec)
	require.NoError(t, err)

	rows, err := table.Lookup(ctx, 2) // the shared directory D
	require.NoError(t, err)
	require.Len(t, rows, 1)

	wantSWHID, ok, err := g.SWHID(ctx, 2)
	require.NoError(t, err)
	require.True(t, ok)
	wantBytes := wantSWHID.Bytes()
	require.Equal(t, wantBytes[:], rows[0].SWHID)

	decoded, err := swhid.FromBytes(rows[0].SWHID)
	require.NoError(t, err)
	require.Equal(t, swhid.Directory, decoded.Type)
}

func TestWriteNodesTableEmptyGraph(t *testing.T) {
	ctx := context.Background()
	g, err := graph.Open("", nil)
	require.NoError(t, err)
	defer g.Close()

	opt := Options{Graph: g, Pool: workerpool.New(2), Parts: 1}
	store, err := tablestore.Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, WriteNodesTable(ctx, opt, store))

	dir, err := store.Path(tableNodes)
	require.NoError(t, err)
	caches, err := cache.New(cache.DefaultBudget)
	require.NoError(t, err)
	defer caches.Close()
	rec, err := metrics.New("", "test")
	require.NoError(t, err)

	table, err := parquetio.OpenTable[parquetio.NodeRow](dir, func(r parquetio.NodeRow) uint64 { return r.NodeID }, caches, rec)
	require.NoError(t, err)
	rows, err := table.Lookup(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, rows)
}
