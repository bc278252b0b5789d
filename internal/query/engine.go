// Package query implements the read-only provenance query engine: the
// resolution pipeline of spec.md §4.2 (SWHID -> node-id, the two
// point-query branches, merge/tie-break, and graph enrichment) served
// behind an explicit Engine handle rather than package-level state,
// grounded on the teacher's own instance-carrying design.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/softwareheritage/provenance/internal/cache"
	"github.com/softwareheritage/provenance/internal/graph"
	"github.com/softwareheritage/provenance/internal/metrics"
	"github.com/softwareheritage/provenance/internal/parquetio"
	"github.com/softwareheritage/provenance/internal/provenanceerr"
	"github.com/softwareheritage/provenance/internal/swhid"
)

// Timeouts bounds how long a single request, and any one sub-lookup
// within it, may run before it is cancelled. spec.md §5 fixes these at
// 30s and 5s respectively; they are configurable here so tests can use
// shorter values.
type Timeouts struct {
	Request   time.Duration
	SubLookup time.Duration
}

// DefaultTimeouts matches spec.md §5's stated bounds.
var DefaultTimeouts = Timeouts{Request: 30 * time.Second, SubLookup: 5 * time.Second}

// TableSet groups the four Parquet tables spec.md §6.3 defines. A nil
// field is valid and treated as "that branch has no candidates" — useful
// for tests that only exercise part of the pipeline, and for the moment
// between an index rebuild starting and its first PromoteAtomic.
type TableSet struct {
	Nodes *parquetio.Table[parquetio.NodeRow]
	FDIR  *parquetio.Table[parquetio.FDIRRow]
	CFD   *parquetio.Table[parquetio.CFDRow]
	CRNF  *parquetio.Table[parquetio.CRNFRow]
}

// Engine is the explicit, non-singleton query handle spec.md §5 calls
// for: every dependency (graph client, caches, metrics, the live table
// set) is a field threaded through the call chain, never a package
// global, following the teacher's own instance-carrying struct shape.
type Engine struct {
	Graph    graph.Graph
	Caches   *cache.Caches
	Metrics  *metrics.Recorder
	Log      *slog.Logger
	Timeouts Timeouts

	// batchConcurrency bounds how many WhereAreOne elements run
	// concurrently. Zero means DefaultBatchConcurrency.
	batchConcurrency int

	mu     sync.RWMutex
	tables *TableSet
}

// DefaultBatchConcurrency bounds concurrent WhereAreOne lookups absent an
// explicit override.
const DefaultBatchConcurrency = 32

// New builds an Engine over an initial table set. g and rec may be
// supplied later via zero-value fallbacks: a nil Metrics recorder is
// valid (it drops every counter), but Graph must be non-nil.
func New(g graph.Graph, tables *TableSet, caches *cache.Caches, rec *metrics.Recorder, log *slog.Logger) (*Engine, error) {
	if g == nil {
		return nil, fmt.Errorf("query: graph collaborator is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		Graph:    g,
		Caches:   caches,
		Metrics:  rec,
		Log:      log,
		Timeouts: DefaultTimeouts,
		tables:   tables,
	}, nil
}

// Swap installs a new table set atomically, for the moment an index
// rebuild's PromoteAtomic completes and the query engine should start
// serving the new generation without a restart (spec.md §5's hot-swap
// requirement).
func (e *Engine) Swap(tables *TableSet) {
	e.mu.Lock()
	e.tables = tables
	e.mu.Unlock()
}

func (e *Engine) snapshot() *TableSet {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tables
}

func (e *Engine) logger() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.Default()
}

func (e *Engine) concurrency() int64 {
	if e.batchConcurrency > 0 {
		return int64(e.batchConcurrency)
	}
	return DefaultBatchConcurrency
}

// SetBatchConcurrency overrides DefaultBatchConcurrency for WhereAreOne.
func (e *Engine) SetBatchConcurrency(n int) { e.batchConcurrency = n }

// Result is the outcome of one WhereIsOne/WhereAreOne resolution: the
// earliest revision (and, transitively, origin) known to have introduced
// the queried content, per spec.md §4.2 step 4's tie-break. Found is
// false when the content is unknown to the graph and the `nodes` table
// fallback, or reachable by no revision at all (spec.md §8 scenario 5,
// "dangling content").
type Result struct {
	SWHID swhid.SWHID
	Found bool

	Anchor     swhid.SWHID
	HasAnchor  bool
	AnchorPath []byte

	Origin    string
	HasOrigin bool
}

// WhereIsOne resolves a single SWHID per spec.md §4.2's five-step
// pipeline, bounded by Timeouts.Request.
func (e *Engine) WhereIsOne(ctx context.Context, id swhid.SWHID, mask FieldMask) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.effectiveTimeout(e.Timeouts.Request))
	defer cancel()
	e.Metrics.StageRequest("where_is_one")
	return e.resolveOne(ctx, id, mask)
}

// WhereAreOne streams a Result per input SWHID, in no particular order,
// dispatching up to concurrency() lookups at once (spec.md §4.3's
// work-stealing point-lookup helper, applied at the request-batch level
// rather than only within a single sub-lookup). The returned channel is
// closed once every input has produced a Result or ctx is done.
func (e *Engine) WhereAreOne(ctx context.Context, ids []swhid.SWHID, mask FieldMask) <-chan Result {
	out := make(chan Result, len(ids))
	go func() {
		defer close(out)
		sem := semaphore.NewWeighted(e.concurrency())
		var wg sync.WaitGroup
		for _, id := range ids {
			id := id
			if err := sem.Acquire(ctx, 1); err != nil {
				break
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer sem.Release(1)
				reqCtx, cancel := context.WithTimeout(ctx, e.effectiveTimeout(e.Timeouts.Request))
				defer cancel()
				e.Metrics.StageRequest("where_are_one")
				res, err := e.resolveOne(reqCtx, id, mask)
				if err != nil {
					e.logger().Warn("query: where_are_one element failed", "swhid", id.String(), "error", err)
					res = Result{SWHID: id}
				}
				select {
				case out <- res:
				case <-ctx.Done():
				}
			}()
		}
		wg.Wait()
	}()
	return out
}

func (e *Engine) effectiveTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultTimeouts.Request
	}
	return d
}

// resolveOne runs the full pipeline for one SWHID against the Engine's
// current table-set snapshot, advancing a per-lookup State as it goes.
func (e *Engine) resolveOne(ctx context.Context, id swhid.SWHID, mask FieldMask) (Result, error) {
	st := &lookupState{}
	st.set(StateResolving)

	ts := e.snapshot()
	if ts == nil {
		st.set(StateEmpty)
		return Result{SWHID: id}, nil
	}

	contentID, ok, err := resolveSWHIDToNode(ctx, e, ts, id)
	if err != nil {
		st.set(StateDone)
		return Result{}, fmt.Errorf("query: resolve %s: %w", id, err)
	}
	if !ok {
		st.set(StateEmpty)
		return Result{SWHID: id}, nil
	}

	st.set(StateScanning)
	subCtx, subCancel := context.WithTimeout(ctx, e.effectiveSubTimeout())
	defer subCancel()
	b1, err := scanBranch1(subCtx, ts, contentID)
	if err != nil {
		st.set(StateDone)
		return Result{}, fmt.Errorf("query: branch1 scan for %s: %w", id, err)
	}
	b2, err := scanBranch2(subCtx, ts, contentID)
	if err != nil {
		st.set(StateDone)
		return Result{}, fmt.Errorf("query: branch2 scan for %s: %w", id, err)
	}
	candidates := append(b1, b2...)
	if len(candidates) == 0 {
		st.set(StateEmpty)
		return Result{SWHID: id}, nil
	}

	st.set(StateMerging)
	winner, info, err := mergeCandidates(ctx, e, ts, mask, candidates)
	if err != nil {
		st.set(StateDone)
		return Result{}, fmt.Errorf("query: merge candidates for %s: %w", id, err)
	}
	if winner == nil {
		st.set(StateEmpty)
		return Result{SWHID: id}, nil
	}

	st.set(StateEnriching)
	result, err := enrichWinner(ctx, e, id, winner, info, mask)
	if err != nil {
		st.set(StateDone)
		return Result{}, fmt.Errorf("query: enrich %s: %w", id, err)
	}

	st.set(StateDone)
	return result, nil
}

func (e *Engine) effectiveSubTimeout() time.Duration {
	if e.Timeouts.SubLookup <= 0 {
		return DefaultTimeouts.SubLookup
	}
	return e.Timeouts.SubLookup
}

// enrichWinner fills in the fields mask asks for. Anchor's SWHID and
// origin's URL were, at least in part, already resolved by mergeCandidates
// (SWHID when the mask asks for the anchor or a date tie forced it;
// origin only if a tie forced it) — this
// reuses that work via info rather than repeating graph calls, and per
// the field-mask-driven partial-response design, skips the origin
// round-trip entirely when it was never needed and the caller didn't ask.
func enrichWinner(ctx context.Context, e *Engine, queried swhid.SWHID, winner *candidate, info *revisionInfo, mask FieldMask) (Result, error) {
	res := Result{SWHID: queried, Found: true}

	if mask.Anchor {
		if !info.swhidAttempted {
			s, ok, err := resolveNodeToSWHIDGraphFirst(ctx, e, e.snapshot(), winner.Revision)
			if err != nil {
				return Result{}, err
			}
			info.swhidAttempted, info.swhid, info.hasSWHID = true, s, ok
		} else if info.swhidErr != nil {
			return Result{}, info.swhidErr
		}
		res.Anchor, res.HasAnchor = info.swhid, info.hasSWHID
		res.AnchorPath = winner.Path
	}

	if mask.Origin {
		if !info.originAttempted {
			var url string
			var ok bool
			err := provenanceerr.Retry(ctx, provenanceerr.DefaultRetryConfig, "query.enrichWinner.originForRevision", func() error {
				var retryErr error
				url, ok, retryErr = e.Graph.OriginForRevision(ctx, winner.Revision)
				return retryErr
			})
			if err != nil {
				return Result{}, err
			}
			info.originAttempted = true
			if ok {
				info.origin, info.originFound = url, true
			}
		}
		if info.originErr != nil {
			return Result{}, info.originErr
		}
		res.Origin, res.HasOrigin = info.origin, info.originFound
	}

	return res, nil
}
