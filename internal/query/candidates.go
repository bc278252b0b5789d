package query

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/softwareheritage/provenance/internal/graph"
	"github.com/softwareheritage/provenance/internal/parquetio"
	"github.com/softwareheritage/provenance/internal/provenanceerr"
)

// candidate is one (revision, path) tuple surfaced by either branch of
// spec.md §4.2's resolution pipeline, before the merge stage picks a
// winner.
type candidate struct {
	Revision graph.NodeID
	Path     []byte
}

// scanBranch1 point-queries CRNF: revisions that reach the content
// directly, without crossing a frontier directory.
func scanBranch1(ctx context.Context, ts *TableSet, content graph.NodeID) ([]candidate, error) {
	if ts.CRNF == nil {
		return nil, nil
	}
	var rows []parquetio.CRNFRow
	err := provenanceerr.Retry(ctx, provenanceerr.DefaultRetryConfig, "query.scanBranch1", func() error {
		var retryErr error
		rows, retryErr = ts.CRNF.Lookup(ctx, content)
		return retryErr
	})
	if err != nil {
		return nil, err
	}
	out := make([]candidate, len(rows))
	for i, r := range rows {
		out[i] = candidate{Revision: graph.NodeID(r.Revision), Path: r.Path}
	}
	return out, nil
}

// fdirLookupConcurrency bounds how many frontier-directory point-lookups
// scanBranch2 dispatches at once, per spec.md §4.3's work-stealing
// point-lookup helper.
const fdirLookupConcurrency = 8

// scanBranch2 point-queries CFD for the frontier directories that contain
// the content, then FDIR for the revisions that reach each such
// directory, joining the two paths per spec.md §4.2's rule. The FDIR
// lookups run concurrently since a popular content can sit under many
// frontier directories.
func scanBranch2(ctx context.Context, ts *TableSet, content graph.NodeID) ([]candidate, error) {
	if ts.CFD == nil || ts.FDIR == nil {
		return nil, nil
	}
	var cfdRows []parquetio.CFDRow
	err := provenanceerr.Retry(ctx, provenanceerr.DefaultRetryConfig, "query.scanBranch2.cfd", func() error {
		var retryErr error
		cfdRows, retryErr = ts.CFD.Lookup(ctx, content)
		return retryErr
	})
	if err != nil {
		return nil, err
	}
	if len(cfdRows) == 0 {
		return nil, nil
	}

	var mu sync.Mutex
	var out []candidate
	sem := semaphore.NewWeighted(fdirLookupConcurrency)
	g, gctx := errgroup.WithContext(ctx)
	for _, row := range cfdRows {
		row := row
		if err := sem.Acquire(gctx, 1); err != nil {
			return nil, err
		}
		g.Go(func() error {
			defer sem.Release(1)
			var fdirRows []parquetio.FDIRRow
			err := provenanceerr.Retry(gctx, provenanceerr.DefaultRetryConfig, "query.scanBranch2.fdir", func() error {
				var retryErr error
				fdirRows, retryErr = ts.FDIR.Lookup(gctx, row.FrontierDir)
				return retryErr
			})
			if err != nil {
				return err
			}
			local := make([]candidate, len(fdirRows))
			for i, f := range fdirRows {
				local[i] = candidate{
					Revision: graph.NodeID(f.Revision),
					Path:     JoinPaths(f.Path, row.Path),
				}
			}
			mu.Lock()
			out = append(out, local...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
