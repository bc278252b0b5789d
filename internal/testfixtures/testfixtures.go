// Package testfixtures builds small, disposable graph.Graph snapshots for
// the `gen-test-database` CLI subcommand and for package tests that need a
// realistic-shaped provenance graph without a real archive graph service.
// It mirrors the teacher's own cmd/mockData: synthetic data generated
// straight from math/rand rather than pulled from a fixture library, since
// the teacher never reaches for one either.
package testfixtures

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/softwareheritage/provenance/internal/graph"
	"github.com/softwareheritage/provenance/internal/swhid"
)

func mkswhid(typ swhid.NodeType, id uint64) swhid.SWHID {
	var s swhid.SWHID
	s.Version = 1
	s.Type = typ
	// Node-id in the low 8 bytes of the hash gives every generated fixture
	// a distinct, deterministic SWHID without needing real content hashes.
	for i := 0; i < 8; i++ {
		s.Hash[19-i] = byte(id >> (8 * i))
	}
	return s
}

// BuildDanglingContent populates g with the shape
// original_source/rust/src/test_databases/dangling_content.rs generates:
// one content (node 3, "README.md") reachable from revision 1 through
// directory 2, and one content (node 5, "parser.c") that sits in a
// directory (4) with no revision pointing to it at all. WhereIsOne on the
// dangling content's SWHID must return Found=false.
func BuildDanglingContent(g graph.Graph) error {
	put, ok := g.(interface {
		PutNode(graph.NodeID, swhid.SWHID) error
		PutDirectoryEntries(graph.NodeID, []graph.DirEntry) error
		PutSuccessors(graph.NodeID, []graph.NodeID) error
		PutCommitterDate(graph.NodeID, time.Time) error
	})
	if !ok {
		return fmt.Errorf("testfixtures: graph implementation does not support fixture population")
	}

	if err := put.PutNode(1, mkswhid(swhid.Revision, 1)); err != nil {
		return err
	}
	if err := put.PutNode(2, mkswhid(swhid.Directory, 2)); err != nil {
		return err
	}
	if err := put.PutNode(3, mkswhid(swhid.Content, 3)); err != nil {
		return err
	}
	if err := put.PutNode(4, mkswhid(swhid.Directory, 4)); err != nil {
		return err
	}
	if err := put.PutNode(5, mkswhid(swhid.Content, 5)); err != nil {
		return err
	}
	if err := put.PutSuccessors(1, []graph.NodeID{2}); err != nil {
		return err
	}
	if err := put.PutDirectoryEntries(2, []graph.DirEntry{{Name: "README.md", Target: 3}}); err != nil {
		return err
	}
	if err := put.PutDirectoryEntries(4, []graph.DirEntry{{Name: "parser.c", Target: 5}}); err != nil {
		return err
	}
	if err := put.PutCommitterDate(1, time.Unix(1111122220, 0)); err != nil {
		return err
	}
	return nil
}

// RandomOptions sizes a synthetic graph.RandomOptions.Seed makes generation
// reproducible for tests that need to know which SWHIDs exist.
type RandomOptions struct {
	Revisions     int
	MaxTreeDepth  int
	MaxDirEntries int
	Snapshots     int
	Seed          int64
}

// DefaultRandomOptions matches spec.md §8 scenario 6's shape (a batch large
// enough to exercise WhereAreOne's bounded concurrency).
func DefaultRandomOptions() RandomOptions {
	return RandomOptions{
		Revisions:     200,
		MaxTreeDepth:  4,
		MaxDirEntries: 5,
		Snapshots:     20,
		Seed:          1,
	}
}

// RandomFixture records which SWHIDs the generator actually created, so
// callers building scenario 6 (10,000 lookups, 5% unknown) can sample known
// vs. deliberately-absent SWHIDs.
type RandomFixture struct {
	ContentSWHIDs []swhid.SWHID
}

// GenerateRandom populates g with a random forest of revisions, each
// pointing to a random directory tree of contents and sub-directories, a
// handful of snapshots pointing at random revisions, and origins pointing
// at those snapshots. It returns the set of content SWHIDs it created.
func GenerateRandom(ctx context.Context, g graph.Graph, opts RandomOptions) (*RandomFixture, error) {
	put, ok := g.(interface {
		PutNode(graph.NodeID, swhid.SWHID) error
		PutDirectoryEntries(graph.NodeID, []graph.DirEntry) error
		PutSuccessors(graph.NodeID, []graph.NodeID) error
		PutCommitterDate(graph.NodeID, time.Time) error
		PutOrigin(graph.NodeID, string) error
	})
	if !ok {
		return nil, fmt.Errorf("testfixtures: graph implementation does not support fixture population")
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	var nextID graph.NodeID = 1
	alloc := func() graph.NodeID {
		id := nextID
		nextID++
		return id
	}

	fixture := &RandomFixture{}
	baseDate := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)

	var buildTree func(depth int) (graph.NodeID, error)
	buildTree = func(depth int) (graph.NodeID, error) {
		dirID := alloc()
		if err := put.PutNode(dirID, mkswhid(swhid.Directory, dirID)); err != nil {
			return 0, err
		}
		n := 1 + rng.Intn(opts.MaxDirEntries)
		entries := make([]graph.DirEntry, 0, n)
		for i := 0; i < n; i++ {
			if depth > 0 && rng.Intn(2) == 0 {
				sub, err := buildTree(depth - 1)
				if err != nil {
					return 0, err
				}
				entries = append(entries, graph.DirEntry{Name: fmt.Sprintf("sub%d", i), Target: sub})
				continue
			}
			cnt := alloc()
			cswhid := mkswhid(swhid.Content, cnt)
			if err := put.PutNode(cnt, cswhid); err != nil {
				return 0, err
			}
			fixture.ContentSWHIDs = append(fixture.ContentSWHIDs, cswhid)
			entries = append(entries, graph.DirEntry{Name: fmt.Sprintf("file%d.txt", i), Target: cnt})
		}
		if err := put.PutDirectoryEntries(dirID, entries); err != nil {
			return 0, err
		}
		return dirID, nil
	}

	revisions := make([]graph.NodeID, 0, opts.Revisions)
	for i := 0; i < opts.Revisions; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		rev := alloc()
		if err := put.PutNode(rev, mkswhid(swhid.Revision, rev)); err != nil {
			return nil, err
		}
		root, err := buildTree(opts.MaxTreeDepth)
		if err != nil {
			return nil, err
		}
		if err := put.PutSuccessors(rev, []graph.NodeID{root}); err != nil {
			return nil, err
		}
		date := baseDate.Add(time.Duration(rng.Intn(365*10)) * 24 * time.Hour)
		if err := put.PutCommitterDate(rev, date); err != nil {
			return nil, err
		}
		revisions = append(revisions, rev)
	}

	for i := 0; i < opts.Snapshots && len(revisions) > 0; i++ {
		snap := alloc()
		if err := put.PutNode(snap, mkswhid(swhid.Snapshot, snap)); err != nil {
			return nil, err
		}
		pointsTo := revisions[rng.Intn(len(revisions))]
		if err := put.PutSuccessors(snap, []graph.NodeID{pointsTo}); err != nil {
			return nil, err
		}

		origin := alloc()
		if err := put.PutNode(origin, mkswhid(swhid.Origin, origin)); err != nil {
			return nil, err
		}
		if err := put.PutSuccessors(origin, []graph.NodeID{snap}); err != nil {
			return nil, err
		}
		if err := put.PutOrigin(origin, fmt.Sprintf("https://example.invalid/repo-%d.git", i)); err != nil {
			return nil, err
		}
	}

	return fixture, nil
}

// SampleUnknownSWHIDs synthesizes SWHIDs guaranteed absent from the graph
// GenerateRandom built, for spec.md §8 scenario 6's "5% unknown" mix.
func SampleUnknownSWHIDs(n int, seed int64) []swhid.SWHID {
	rng := rand.New(rand.NewSource(seed))
	out := make([]swhid.SWHID, n)
	for i := range out {
		var s swhid.SWHID
		s.Version = 1
		s.Type = swhid.Content
		// The high bit of the first hash byte is never set by mkswhid's
		// low-8-byte node-id encoding, so this range can never collide
		// with a real generated content SWHID.
		s.Hash[0] = 0x80
		rng.Read(s.Hash[1:])
		out[i] = s
	}
	return out
}
