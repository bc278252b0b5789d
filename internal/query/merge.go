package query

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/softwareheritage/provenance/internal/graph"
	"github.com/softwareheritage/provenance/internal/provenanceerr"
	"github.com/softwareheritage/provenance/internal/swhid"
)

// unsetDate sorts revisions without a known committer date after every
// dated revision, per spec.md §8 scenario 3: a content whose only
// containing revision lacks a committer date must still be returned, it
// simply never wins a tie against a dated competitor.
const unsetDate = int64(math.MaxInt64)

// revisionInfo memoizes the tie-break fields spec.md §4.2 step 4 sorts by,
// resolved once per distinct revision across all of a lookup's
// candidates. Committer date is cheap (a single graph call every
// candidate needs anyway to be ordered at all) and resolved eagerly;
// revision SWHID and origin URL are resolved lazily — SWHID only when a
// date tie forces the comparison down to it, or the caller's field mask
// asks for the anchor; origin only when a date+SWHID tie forces the
// comparison to it, or the mask asks for origin. This mirrors the
// field-mask-driven "don't do work you don't need" design documented as
// a supplemented feature in SPEC_FULL.md.
type revisionInfo struct {
	date int64

	swhidAttempted bool
	hasSWHID       bool
	swhid          swhid.SWHID
	swhidErr       error

	originAttempted bool
	originFound     bool
	origin          string
	originErr       error
}

// mergeCandidates dedupes candidates by (revision, path), resolves each
// distinct revision's committer date, and returns the candidate with the
// smallest (earliest_date, revision_swhid, origin_url, path) tuple along
// with its resolved revisionInfo (so the enrich stage can reuse whatever
// work was already done here instead of repeating it).
func mergeCandidates(ctx context.Context, e *Engine, ts *TableSet, mask FieldMask, candidates []candidate) (*candidate, *revisionInfo, error) {
	type dedupKey struct {
		revision graph.NodeID
		path     string
	}
	seen := make(map[dedupKey]bool, len(candidates))
	unique := make([]candidate, 0, len(candidates))
	for _, c := range candidates {
		k := dedupKey{c.Revision, string(c.Path)}
		if seen[k] {
			continue
		}
		seen[k] = true
		unique = append(unique, c)
	}
	if len(unique) == 0 {
		return nil, nil, nil
	}

	info := make(map[graph.NodeID]*revisionInfo, len(unique))
	for _, c := range unique {
		if _, ok := info[c.Revision]; ok {
			continue
		}
		ri := &revisionInfo{date: unsetDate}
		var date time.Time
		var hasDate bool
		err := provenanceerr.Retry(ctx, provenanceerr.DefaultRetryConfig, "query.mergeCandidates.committerDate", func() error {
			var retryErr error
			date, hasDate, retryErr = e.Graph.CommitterDate(ctx, c.Revision)
			return retryErr
		})
		if err != nil {
			return nil, nil, err
		}
		if hasDate {
			ri.date = date.Unix()
		}
		info[c.Revision] = ri
	}

	swhidOf := func(revision graph.NodeID) (swhid.SWHID, bool, error) {
		ri := info[revision]
		if !ri.swhidAttempted {
			s, ok, err := resolveNodeToSWHIDGraphFirst(ctx, e, ts, revision)
			ri.swhidAttempted = true
			ri.swhidErr = err
			if err == nil {
				ri.swhid, ri.hasSWHID = s, ok
			}
		}
		return ri.swhid, ri.hasSWHID, ri.swhidErr
	}

	originOf := func(revision graph.NodeID) (string, error) {
		ri := info[revision]
		if !ri.originAttempted {
			var url string
			var ok bool
			err := provenanceerr.Retry(ctx, provenanceerr.DefaultRetryConfig, "query.mergeCandidates.originForRevision", func() error {
				var retryErr error
				url, ok, retryErr = e.Graph.OriginForRevision(ctx, revision)
				return retryErr
			})
			ri.originAttempted = true
			ri.originErr = err
			if err == nil && ok {
				ri.origin, ri.originFound = url, true
			}
		}
		return ri.origin, ri.originErr
	}

	if mask.Anchor {
		// The result needs the winner's SWHID regardless of whether a tie
		// occurs; resolving every candidate's up front is what lets the
		// comparator below treat it as already available.
		for revision := range info {
			if _, _, err := swhidOf(revision); err != nil {
				return nil, nil, err
			}
		}
	}

	var sortErr error
	sort.SliceStable(unique, func(i, j int) bool {
		a, b := info[unique[i].Revision], info[unique[j].Revision]
		if a.date != b.date {
			return a.date < b.date
		}
		sa, _, err := swhidOf(unique[i].Revision)
		if err != nil && sortErr == nil {
			sortErr = err
		}
		sb, _, err := swhidOf(unique[j].Revision)
		if err != nil && sortErr == nil {
			sortErr = err
		}
		if sa != sb {
			return sa.String() < sb.String()
		}
		oa, err := originOf(unique[i].Revision)
		if err != nil && sortErr == nil {
			sortErr = err
		}
		ob, err := originOf(unique[j].Revision)
		if err != nil && sortErr == nil {
			sortErr = err
		}
		if oa != ob {
			return oa < ob
		}
		return string(unique[i].Path) < string(unique[j].Path)
	})
	if sortErr != nil {
		return nil, nil, sortErr
	}

	winner := unique[0]
	return &winner, info[winner.Revision], nil
}
