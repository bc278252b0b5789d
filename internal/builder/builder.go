// Package builder implements the four-stage offline index builder from
// spec.md §4.1: compute-earliest-timestamps, list-directory-with-max-leaf-timestamp,
// compute-directory-frontier, and the three relation-table tree walks.
// Each stage is embarrassingly parallel over node-ids and dispatches onto
// the work-stealing pool in internal/workerpool, generalized from the
// teacher's pkg/workerPool Room/Task model.
package builder

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/softwareheritage/provenance/internal/cache"
	"github.com/softwareheritage/provenance/internal/eliasfano"
	"github.com/softwareheritage/provenance/internal/graph"
	"github.com/softwareheritage/provenance/internal/metrics"
	"github.com/softwareheritage/provenance/internal/parquetio"
	"github.com/softwareheritage/provenance/internal/swhid"
	"github.com/softwareheritage/provenance/internal/tablestore"
	"github.com/softwareheritage/provenance/internal/workerpool"
	"github.com/softwareheritage/provenance/internal/xzcodec"
)

// Unset is the sentinel value for "no committer date reaches this node",
// stored in the dense earliest/max_leaf arrays. It is chosen so that a
// plain integer comparison against any real Unix timestamp always treats
// Unset as "later than everything", matching the timestamp-aggregation
// invariants in spec.md §3 (unset entries never win a min/max reduction).
const Unset = int64(math.MaxInt64)

// Options carries the dependencies every builder stage needs: the graph
// collaborator, a sized worker pool, and a logger. It is passed by value
// (or pointer) rather than reached for via package globals, per spec.md
// §9's anti-singleton design note.
type Options struct {
	Graph       graph.Graph
	Pool        *workerpool.Pool
	Log         *slog.Logger
	Checkpoints string // directory for compressed intermediate arrays; "" disables checkpointing
	Parts       int    // hash-partition count for relation table output; <1 defaults to 1
}

func (o Options) logger() *slog.Logger {
	if o.Log != nil {
		return o.Log
	}
	return slog.Default()
}

// rootDirectoryOf returns the first Directory-typed successor of a
// revision node, i.e. its root directory. Successors of a revision may
// also include parent revisions (spec.md §6.4), so the type must be
// checked rather than assuming index 0.
func rootDirectoryOf(ctx context.Context, g graph.Graph, revision graph.NodeID) (graph.NodeID, bool, error) {
	successors, err := g.Successors(ctx, revision)
	if err != nil {
		return 0, false, err
	}
	for _, s := range successors {
		typ, err := g.NodeType(ctx, s)
		if err != nil {
			return 0, false, err
		}
		if typ == swhid.Directory {
			return s, true, nil
		}
	}
	return 0, false, nil
}

// joinName appends a directory entry name to an accumulated path,
// following the same "empty prefix means no separator" rule spec.md
// §4.2 defines for joining FDIR/CFD path fragments at query time.
func joinName(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

func uint64Sentinel(v int64) uint64 { return uint64(v) }

func int64FromSentinel(v uint64) int64 { return int64(v) }

func toUint64Slice(values []int64) []uint64 {
	out := make([]uint64, len(values))
	for i, v := range values {
		out[i] = uint64Sentinel(v)
	}
	return out
}

func fromUint64Slice(values []uint64) []int64 {
	out := make([]int64, len(values))
	for i, v := range values {
		out[i] = int64FromSentinel(v)
	}
	return out
}

func writeCheckpoint(dir, name string, values []int64) error {
	if dir == "" {
		return nil
	}
	return xzcodec.WriteUint64Checkpoint(dir+"/"+name+".xz", toUint64Slice(values))
}

// readCheckpoint loads a previously written checkpoint, returning ok=false
// if checkpointing is disabled or the file does not exist yet.
func readCheckpoint(dir, name string) (values []int64, ok bool, err error) {
	if dir == "" {
		return nil, false, nil
	}
	path := dir + "/" + name + ".xz"
	raw, readErr := xzcodec.ReadUint64Checkpoint(path)
	if readErr != nil {
		return nil, false, nil
	}
	return fromUint64Slice(raw), true, nil
}

// writeFrontierTable writes a single-column part file plus its
// Elias-Fano sidecar for a table whose only content is a sorted, deduped
// set of node-ids (used for the frontier directory set in Stage C).
type frontierRow struct {
	NodeID uint64 `parquet:"node_id"`
}

func writeFrontierTable(store *tablestore.Store, name string, nodeIDs []uint64) error {
	stage, err := store.Stage(name)
	if err != nil {
		return err
	}
	w := parquetio.NewPartitionedWriter[frontierRow](stage, 1, func(r frontierRow) uint64 { return r.NodeID })
	for _, id := range nodeIDs {
		w.Add(frontierRow{NodeID: id})
	}
	if err := w.Close(); err != nil {
		_ = store.Discard(stage)
		return err
	}
	return store.PromoteAtomic(name, stage)
}

// LoadFrontierTable reconstructs a Frontier from a previously promoted
// "frontier_directories" table, so that `index relations` can run as its
// own CLI invocation, in a separate process from `index directory-frontier`,
// picking the frontier set back up from disk instead of requiring both
// stages to share one in-memory Frontier value.
func LoadFrontierTable(store *tablestore.Store, caches *cache.Caches, rec *metrics.Recorder) (*Frontier, error) {
	dir, err := store.Path("frontier_directories")
	if err != nil {
		return nil, err
	}
	table, err := parquetio.OpenTable[frontierRow](dir, func(r frontierRow) uint64 { return r.NodeID }, caches, rec)
	if err != nil {
		return nil, err
	}

	var ids []uint64
	err = table.ForEach(context.Background(), func(r frontierRow) (bool, error) {
		ids = append(ids, r.NodeID)
		return false, nil
	})
	if err != nil {
		return nil, wrapStageErr("directory-frontier", err)
	}

	ids = eliasfano.SortUnique(ids)
	ef, err := eliasfano.Build(ids)
	if err != nil {
		return nil, wrapStageErr("directory-frontier", err)
	}
	return &Frontier{NodeIDs: ids, EF: ef}, nil
}

func wrapStageErr(stage string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("builder: stage %s: %w", stage, err)
}
