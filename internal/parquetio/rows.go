// Package parquetio implements the "Parquet reader with auxiliary
// indexes" component of spec.md §4.3: Parquet part files sorted by
// primary key, each with a companion Elias-Fano sidecar of distinct keys,
// pruned first by the sidecar, then by row-group min/max statistics,
// before any data page is decoded.
//
// Grounded on github.com/parquet-go/parquet-go, the mainstream pure-Go
// Parquet implementation (out-of-pack: no example repo ships a Parquet
// library; named per the grounding ledger's out-of-pack rule).
package parquetio

// NodeRow is the physical row shape of the `nodes` table (spec.md §6.3):
// node_id -> swhid, sorted and partitioned by node_id.
type NodeRow struct {
	NodeID uint64 `parquet:"node_id"`
	SWHID  []byte `parquet:"swhid"` // 22-byte fixed physical representation
}

// FDIRRow is one row of frontier_directories_in_revisions.
type FDIRRow struct {
	FrontierDir uint64 `parquet:"frontier_dir"`
	Revision    uint64 `parquet:"revision"`
	Path        []byte `parquet:"path"`
}

// CFDRow is one row of contents_in_frontier_directories.
type CFDRow struct {
	Content     uint64 `parquet:"content"`
	FrontierDir uint64 `parquet:"frontier_dir"`
	Path        []byte `parquet:"path"`
}

// CRNFRow is one row of contents_in_revisions_without_frontiers.
type CRNFRow struct {
	Content  uint64 `parquet:"content"`
	Revision uint64 `parquet:"revision"`
	Path     []byte `parquet:"path"`
}
