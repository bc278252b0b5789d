package builder

import (
	"context"

	"github.com/softwareheritage/provenance/internal/parquetio"
	"github.com/softwareheritage/provenance/internal/swhid"
	"github.com/softwareheritage/provenance/internal/tablestore"
)

const tableNodes = "nodes"

var allNodeTypes = []swhid.NodeType{
	swhid.Content, swhid.Directory, swhid.Revision,
	swhid.Release, swhid.Snapshot, swhid.Origin,
}

// WriteNodesTable materializes the `nodes` table (spec.md §6.3: node-id ->
// swhid, sorted and partitioned by node-id) from the graph's own SWHID
// mapping. Unlike Stages A-D this is not itself an isochrone-frontier
// computation; it simply republishes the graph snapshot's own identifier
// map in the query engine's on-disk format, so `where_is_one`'s SWHID
// resolution has a table to fall back to when the graph collaborator
// does not know a SWHID.
func WriteNodesTable(ctx context.Context, opt Options, store *tablestore.Store) error {
	log := opt.logger()

	stage, err := store.Stage(tableNodes)
	if err != nil {
		return wrapStageErr("nodes", err)
	}
	writer := parquetio.NewPartitionedWriter[parquetio.NodeRow](stage, opt.Parts, func(r parquetio.NodeRow) uint64 { return r.NodeID })

	total := 0
	for _, typ := range allNodeTypes {
		ids, err := opt.Graph.NodesByType(ctx, typ)
		if err != nil {
			_ = store.Discard(stage)
			return wrapStageErr("nodes", err)
		}
		for _, id := range ids {
			s, ok, err := opt.Graph.SWHID(ctx, id)
			if err != nil {
				_ = store.Discard(stage)
				return wrapStageErr("nodes", err)
			}
			if !ok {
				continue
			}
			b := s.Bytes()
			writer.Add(parquetio.NodeRow{NodeID: id, SWHID: b[:]})
			total++
		}
	}

	if err := writer.Close(); err != nil {
		_ = store.Discard(stage)
		return wrapStageErr("nodes", err)
	}
	if err := store.PromoteAtomic(tableNodes, stage); err != nil {
		return wrapStageErr("nodes", err)
	}
	log.Info("builder: wrote nodes table", "nodes", total)
	return nil
}
