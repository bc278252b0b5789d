package parquetio

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/softwareheritage/provenance/internal/cache"
	"github.com/softwareheritage/provenance/internal/eliasfano"
	"github.com/softwareheritage/provenance/internal/metrics"
)

// Table is a point-query handle over one hash-partitioned table
// directory. It implements the protocol from spec.md §4.2/§4.3: consult
// each part file's Elias-Fano sidecar first, then row-group statistics,
// before decoding any row.
//
// The convention throughout this package is that the primary-key column
// is always the first field of the row struct T, so pruning never needs
// to resolve a column by name.
type Table[T any] struct {
	dir       string
	partPaths []string
	keyOf     func(T) uint64
	caches    *cache.Caches
	metrics   *metrics.Recorder
}

// OpenTable lists the part files under dir and prepares a Table handle.
// It does not eagerly open any file; footers and sidecars are loaded (and
// cached) lazily on first Lookup.
func OpenTable[T any](dir string, keyOf func(T) uint64, caches *cache.Caches, rec *metrics.Recorder) (*Table[T], error) {
	matches, err := filepath.Glob(filepath.Join(dir, "part-*.parquet"))
	if err != nil {
		return nil, fmt.Errorf("parquetio: list %s: %w", dir, err)
	}
	sort.Strings(matches)
	return &Table[T]{dir: dir, partPaths: matches, keyOf: keyOf, caches: caches, metrics: rec}, nil
}

func efPath(partPath string) string {
	return strings.TrimSuffix(partPath, ".parquet") + ".ef"
}

// Lookup returns every row across every part file whose primary key
// equals key, applying the Elias-Fano sidecar and row-group statistics
// pruning steps before decoding any row.
func (t *Table[T]) Lookup(ctx context.Context, key uint64) ([]T, error) {
	var out []T
	for _, partPath := range t.partPaths {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}

		ef, hit, err := cache.GetOrLoad(t.caches.Sidecar, efPath(partPath), 1<<16, func() (*eliasfano.EliasFano, error) {
			return readSidecar(efPath(partPath))
		})
		if err != nil {
			return nil, fmt.Errorf("parquetio: load sidecar %s: %w", efPath(partPath), err)
		}
		recordCacheOutcome(t.metrics, "sidecar", hit)

		if !ef.Contains(key) {
			t.metrics.FilePrunedByEF(1)
			continue
		}

		pf, hit, err := cache.GetOrLoad(t.caches.Footers, partPath, 1<<20, func() (*parquetFileHandle, error) {
			return openParquetFile(partPath)
		})
		if err != nil {
			return nil, fmt.Errorf("parquetio: open %s: %w", partPath, err)
		}
		recordCacheOutcome(t.metrics, "footer", hit)

		for rgIndex, rg := range pf.file.RowGroups() {
			candidate, err := rowGroupMayContain(rg, key)
			if err != nil {
				return nil, fmt.Errorf("parquetio: row group stats in %s: %w", partPath, err)
			}
			if !candidate {
				t.metrics.RowGroupsSkipped(1)
				continue
			}
			matches, err := t.scanRowGroup(partPath, rgIndex, rg, key)
			if err != nil {
				return nil, fmt.Errorf("parquetio: scan row group in %s: %w", partPath, err)
			}
			out = append(out, matches...)
		}
	}
	t.metrics.PointLookedUp(1)
	return out, nil
}

func recordCacheOutcome(rec *metrics.Recorder, cacheName string, hit bool) {
	if hit {
		rec.CacheHit(cacheName)
	} else {
		rec.CacheMiss(cacheName)
	}
}

// rowGroupMayContain checks the row group's min/max statistics on the
// primary-key column (always column 0) via its column index, following
// spec.md §4.2's "locate the row group whose primary-key range covers the
// id" step. If no column index is available (e.g. statistics were not
// written), the row group is treated as a candidate — pruning must never
// produce a false negative.
func rowGroupMayContain(rg parquet.RowGroup, key uint64) (bool, error) {
	chunks := rg.ColumnChunks()
	if len(chunks) == 0 {
		return true, nil
	}
	idx, err := chunks[0].ColumnIndex()
	if err != nil || idx == nil {
		return true, nil
	}
	var min, max uint64
	found := false
	for p := 0; p < idx.NumPages(); p++ {
		if idx.NullPage(p) {
			continue
		}
		minVal := valueToUint64(idx.MinValue(p))
		maxVal := valueToUint64(idx.MaxValue(p))
		if !found || minVal < min {
			min = minVal
		}
		if !found || maxVal > max {
			max = maxVal
		}
		found = true
	}
	if !found {
		return true, nil
	}
	return key >= min && key <= max, nil
}

func valueToUint64(v parquet.Value) uint64 {
	return uint64(v.Int64())
}

// scanRowGroup implements spec.md §4.2's page-level narrowing: for each
// candidate row group, "use the page index to find candidate pages" (the
// primary key column's OffsetIndex/ColumnIndex pair), decode only those
// pages, and filter their rows for an exact key match. A row group that
// carries no page index at all (or a malformed one, column-index and
// offset-index page counts disagreeing) falls back to a full scan, the
// same as before page pruning existed — pruning must never produce a
// false negative.
func (t *Table[T]) scanRowGroup(partPath string, rgIndex int, rg parquet.RowGroup, key uint64) ([]T, error) {
	chunks := rg.ColumnChunks()
	if len(chunks) == 0 {
		return fullScanRowGroup(rg, key, t.keyOf)
	}
	colIdx, cErr := chunks[0].ColumnIndex()
	offIdx, oErr := chunks[0].OffsetIndex()
	if cErr != nil || oErr != nil || colIdx == nil || offIdx == nil {
		return fullScanRowGroup(rg, key, t.keyOf)
	}
	numPages := colIdx.NumPages()
	if numPages == 0 || offIdx.NumPages() != numPages {
		return fullScanRowGroup(rg, key, t.keyOf)
	}

	numRows := rg.NumRows()
	var out []T
	var skipped int64
	for p := 0; p < numPages; p++ {
		if !colIdx.NullPage(p) {
			minVal := valueToUint64(colIdx.MinValue(p))
			maxVal := valueToUint64(colIdx.MaxValue(p))
			if key < minVal || key > maxVal {
				skipped++
				continue
			}
		}

		first := offIdx.FirstRowIndex(p)
		last := numRows - 1
		if p+1 < numPages {
			last = offIdx.FirstRowIndex(p+1) - 1
		}
		count := last - first + 1
		if count <= 0 {
			continue
		}

		cacheKey := fmt.Sprintf("%s#rg%d#page%d", partPath, rgIndex, p)
		rows, hit, err := cache.GetOrLoad(t.caches.Pages, cacheKey, offIdx.CompressedPageSize(p), func() ([]T, error) {
			return decodePageRows[T](rg, first, count)
		})
		if err != nil {
			return nil, fmt.Errorf("parquetio: decode page %d of row group in %s: %w", p, partPath, err)
		}
		recordCacheOutcome(t.metrics, "page", hit)

		for _, v := range rows {
			if t.keyOf(v) == key {
				out = append(out, v)
			}
		}
	}
	if skipped > 0 {
		t.metrics.PagesSkipped(skipped)
	}
	return out, nil
}

// decodePageRows decodes exactly the [first, first+count) row range of rg,
// seeking to the first row rather than scanning from the start of the row
// group. The cached result is every row in that range, not only ones
// matching a particular key, so a later Lookup for a different key that
// lands in the same page reuses the decode instead of re-seeking.
func decodePageRows[T any](rg parquet.RowGroup, first, count int64) ([]T, error) {
	rows := rg.Rows()
	defer rows.Close()
	if first > 0 {
		if err := rows.SeekToRow(first); err != nil {
			return nil, err
		}
	}

	schema := parquet.SchemaOf(new(T))
	out := make([]T, 0, count)
	buf := make([]parquet.Row, 128)
	remaining := count
	for remaining > 0 {
		n, err := rows.ReadRows(buf[:min(int64(len(buf)), remaining)])
		for i := 0; i < n; i++ {
			var v T
			if rerr := schema.Reconstruct(&v, buf[i]); rerr != nil {
				return nil, rerr
			}
			out = append(out, v)
		}
		remaining -= int64(n)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
	}
	return out, nil
}

// fullScanRowGroup decodes every row in the row group, used when no usable
// page index is available to narrow the scan.
func fullScanRowGroup[T any](rg parquet.RowGroup, key uint64, keyOf func(T) uint64) ([]T, error) {
	schema := parquet.SchemaOf(new(T))
	rows := rg.Rows()
	defer rows.Close()

	buf := make([]parquet.Row, 128)
	var out []T
	for {
		n, err := rows.ReadRows(buf)
		for i := 0; i < n; i++ {
			var v T
			if rerr := schema.Reconstruct(&v, buf[i]); rerr != nil {
				return nil, rerr
			}
			if keyOf(v) == key {
				out = append(out, v)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
	}
	return out, nil
}

type parquetFileHandle struct {
	file *parquet.File
	f    *os.File
}

func openParquetFile(path string) (*parquetFileHandle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	return &parquetFileHandle{file: pf, f: f}, nil
}
