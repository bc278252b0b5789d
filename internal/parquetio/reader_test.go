package parquetio

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/softwareheritage/provenance/internal/cache"
	"github.com/softwareheritage/provenance/internal/metrics"
)

func TestPartitionedWriterAndLookupRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w := NewPartitionedWriter[CRNFRow](dir, 4, func(r CRNFRow) uint64 { return r.Content })

	rows := []CRNFRow{
		{Content: 1, Revision: 10, Path: []byte("a.txt")},
		{Content: 2, Revision: 10, Path: []byte("b.txt")},
		{Content: 3, Revision: 20, Path: []byte("c.txt")},
		{Content: 3, Revision: 21, Path: []byte("c.txt")},
		{Content: 500, Revision: 99, Path: []byte("deep/nested/path.go")},
	}
	for _, r := range rows {
		w.Add(r)
	}
	require.NoError(t, w.Close())

	caches, err := cache.New(cache.DefaultBudget)
	require.NoError(t, err)
	defer caches.Close()
	rec, err := metrics.New("", "test")
	require.NoError(t, err)

	table, err := OpenTable[CRNFRow](dir, func(r CRNFRow) uint64 { return r.Content }, caches, rec)
	require.NoError(t, err)

	got, err := table.Lookup(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, got, 2)

	got, err = table.Lookup(context.Background(), 500)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "deep/nested/path.go", string(got[0].Path))

	got, err = table.Lookup(context.Background(), 9999)
	require.NoError(t, err)
	require.Empty(t, got)

	// Second lookup for the same key should hit the warmed sidecar/footer
	// caches rather than error.
	got, err = table.Lookup(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestLookupEmptyTable(t *testing.T) {
	dir := t.TempDir()
	caches, err := cache.New(cache.DefaultBudget)
	require.NoError(t, err)
	defer caches.Close()
	rec, err := metrics.New("", "test")
	require.NoError(t, err)

	table, err := OpenTable[NodeRow](dir, func(r NodeRow) uint64 { return r.NodeID }, caches, rec)
	require.NoError(t, err)

	got, err := table.Lookup(context.Background(), 1)
	require.NoError(t, err)
	require.Empty(t, got)
}
