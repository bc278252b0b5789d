package parquetio

import (
	"context"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/softwareheritage/provenance/internal/cache"
)

// ForEach performs a full linear scan over every row of every part file,
// invoking fn for each decoded row. fn returns stop=true to end the scan
// early. This bypasses the Elias-Fano/statistics pruning Lookup relies on
// and exists only for the rare case a caller needs to search by something
// other than the primary key — spec.md §4.2's SWHID->node-id resolution
// fallback against the `nodes` table, whose primary key is node-id, not
// SWHID.
func (t *Table[T]) ForEach(ctx context.Context, fn func(T) (bool, error)) error {
	for _, partPath := range t.partPaths {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		pf, hit, err := cache.GetOrLoad(t.caches.Footers, partPath, 1<<20, func() (*parquetFileHandle, error) {
			return openParquetFile(partPath)
		})
		if err != nil {
			return err
		}
		recordCacheOutcome(t.metrics, "footer", hit)

		stop, err := forEachRowGroup(pf.file, fn)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
	return nil
}

func forEachRowGroup[T any](file *parquet.File, fn func(T) (bool, error)) (bool, error) {
	for _, rg := range file.RowGroups() {
		schema := parquet.SchemaOf(new(T))
		rows := rg.Rows()
		buf := make([]parquet.Row, 128)
		for {
			n, rerr := rows.ReadRows(buf)
			for i := 0; i < n; i++ {
				var v T
				if err := schema.Reconstruct(&v, buf[i]); err != nil {
					rows.Close()
					return false, err
				}
				stop, err := fn(v)
				if err != nil {
					rows.Close()
					return false, err
				}
				if stop {
					rows.Close()
					return true, nil
				}
			}
			if rerr == io.EOF {
				break
			}
			if rerr != nil {
				rows.Close()
				return false, rerr
			}
			if n == 0 {
				break
			}
		}
		rows.Close()
	}
	return false, nil
}
