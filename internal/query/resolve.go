package query

import (
	"context"

	"github.com/softwareheritage/provenance/internal/graph"
	"github.com/softwareheritage/provenance/internal/parquetio"
	"github.com/softwareheritage/provenance/internal/provenanceerr"
	"github.com/softwareheritage/provenance/internal/swhid"
)

// resolveSWHIDToNode implements spec.md §4.2 step 1: ask the graph first;
// on a miss, fall back to a full scan of the `nodes` table. The fallback
// is a scan, not a keyed lookup, because the table's primary key is
// node-id, not SWHID.
func resolveSWHIDToNode(ctx context.Context, e *Engine, ts *TableSet, id swhid.SWHID) (graph.NodeID, bool, error) {
	var nodeID graph.NodeID
	var ok bool
	err := provenanceerr.Retry(ctx, provenanceerr.DefaultRetryConfig, "query.resolveSWHIDToNode", func() error {
		var retryErr error
		nodeID, ok, retryErr = e.Graph.NodeID(ctx, id)
		return retryErr
	})
	if err != nil {
		return 0, false, err
	}
	if ok {
		return nodeID, true, nil
	}
	if ts.Nodes == nil {
		return 0, false, nil
	}

	var found graph.NodeID
	var hit bool
	err = provenanceerr.Retry(ctx, provenanceerr.DefaultRetryConfig, "query.resolveSWHIDToNode.scan", func() error {
		found, hit = 0, false
		return ts.Nodes.ForEach(ctx, func(row parquetio.NodeRow) (bool, error) {
			decoded, derr := swhid.FromBytes(row.SWHID)
			if derr != nil {
				return false, derr
			}
			if decoded == id {
				found, hit = row.NodeID, true
				return true, nil
			}
			return false, nil
		})
	})
	if err != nil {
		return 0, false, err
	}
	return found, hit, nil
}

// resolveNodeToSWHID resolves the reverse direction, used both to fill in
// the `anchor` result field and to compare revision SWHIDs during merge
// tie-break. Unlike resolveSWHIDToNode's fallback, the `nodes` table
// fallback here is a keyed point lookup: node-id is its primary key.
func resolveNodeToSWHID(ctx context.Context, ts *TableSet, id graph.NodeID) (swhid.SWHID, bool, error) {
	var rows []parquetio.NodeRow
	err := provenanceerr.Retry(ctx, provenanceerr.DefaultRetryConfig, "query.resolveNodeToSWHID", func() error {
		var retryErr error
		rows, retryErr = ts.Nodes.Lookup(ctx, id)
		return retryErr
	})
	if err != nil {
		return swhid.SWHID{}, false, err
	}
	if len(rows) == 0 {
		return swhid.SWHID{}, false, nil
	}
	decoded, err := swhid.FromBytes(rows[0].SWHID)
	if err != nil {
		return swhid.SWHID{}, false, err
	}
	return decoded, true, nil
}

// resolveNodeToSWHIDGraphFirst tries the graph before falling back to the
// `nodes` table, mirroring resolveSWHIDToNode's ordering.
func resolveNodeToSWHIDGraphFirst(ctx context.Context, e *Engine, ts *TableSet, id graph.NodeID) (swhid.SWHID, bool, error) {
	var s swhid.SWHID
	var ok bool
	err := provenanceerr.Retry(ctx, provenanceerr.DefaultRetryConfig, "query.resolveNodeToSWHIDGraphFirst", func() error {
		var retryErr error
		s, ok, retryErr = e.Graph.SWHID(ctx, id)
		return retryErr
	})
	if err != nil {
		return swhid.SWHID{}, false, err
	}
	if ok {
		return s, true, nil
	}
	if ts.Nodes == nil {
		return swhid.SWHID{}, false, nil
	}
	return resolveNodeToSWHID(ctx, ts, id)
}
