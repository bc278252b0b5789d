package parquetio

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sort"

	"github.com/parquet-go/parquet-go"

	"github.com/softwareheritage/provenance/internal/eliasfano"
)

// PartitionedWriter buckets rows by hash(primary key) into numParts
// partitions, so each distinct key lives in exactly one output file
// (spec.md §4.1 "File partitioning hashes on primary key"), sorts each
// bucket by key before writing, and emits a `.ef` sidecar of the distinct
// keys present in that file alongside each `part-*.parquet`.
type PartitionedWriter[T any] struct {
	dir      string
	numParts int
	keyOf    func(T) uint64
	buckets  [][]T
}

// NewPartitionedWriter creates a writer that will place output under dir
// (a staging directory; callers promote it atomically via tablestore).
func NewPartitionedWriter[T any](dir string, numParts int, keyOf func(T) uint64) *PartitionedWriter[T] {
	if numParts < 1 {
		numParts = 1
	}
	return &PartitionedWriter[T]{
		dir:      dir,
		numParts: numParts,
		keyOf:    keyOf,
		buckets:  make([][]T, numParts),
	}
}

func (w *PartitionedWriter[T]) bucketOf(key uint64) int {
	h := fnv.New64a()
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(key >> (8 * i))
	}
	_, _ = h.Write(buf[:])
	return int(h.Sum64() % uint64(w.numParts))
}

// Add appends row to its hash-partitioned bucket.
func (w *PartitionedWriter[T]) Add(row T) {
	b := w.bucketOf(w.keyOf(row))
	w.buckets[b] = append(w.buckets[b], row)
}

// Close sorts and writes every non-empty bucket to `part-NNNNN.parquet`
// plus its `.ef` sidecar under dir.
func (w *PartitionedWriter[T]) Close() error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("parquetio: mkdir %s: %w", w.dir, err)
	}
	for i, bucket := range w.buckets {
		if len(bucket) == 0 {
			continue
		}
		sort.Slice(bucket, func(a, b int) bool { return w.keyOf(bucket[a]) < w.keyOf(bucket[b]) })

		partPath := filepath.Join(w.dir, fmt.Sprintf("part-%05d.parquet", i))
		if err := writeParquet(partPath, bucket); err != nil {
			return fmt.Errorf("parquetio: write %s: %w", partPath, err)
		}

		keys := make([]uint64, len(bucket))
		for j, row := range bucket {
			keys[j] = w.keyOf(row)
		}
		keys = eliasfano.SortUnique(keys)
		ef, err := eliasfano.Build(keys)
		if err != nil {
			return fmt.Errorf("parquetio: build sidecar for %s: %w", partPath, err)
		}
		efPath := partPath[:len(partPath)-len(".parquet")] + ".ef"
		if err := writeSidecar(efPath, ef); err != nil {
			return fmt.Errorf("parquetio: write sidecar %s: %w", efPath, err)
		}
	}
	return nil
}

func writeParquet[T any](path string, rows []T) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := parquet.NewGenericWriter[T](f, parquet.PageBufferSize(1<<20))
	if _, err := w.Write(rows); err != nil {
		_ = w.Close()
		return fmt.Errorf("write rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return f.Sync()
}
