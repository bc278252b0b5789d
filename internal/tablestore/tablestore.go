// Package tablestore implements the promotion protocol spec.md §5.2
// requires for each of the four provenance tables: a builder stage writes
// its output into a private staging directory, then promotes it into
// place with a single atomic rename so that a concurrently-running query
// engine only ever observes a complete generation, never a partial write.
//
// This generalizes the teacher repo's write-then-seal idiom (pkg/storage's
// StoreFileOptions/Storage separation between the pending write path and
// the sealed chunk store) to whole directories of Parquet part files
// instead of individual encrypted chunks, and borrows the WAL's
// "_SUCCESS"-marker-before-visible" discipline from internal/wal's block
// sealing.
package tablestore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/softwareheritage/provenance/internal/provenanceerr"
)

const successMarker = "_SUCCESS"

// Store manages named table directories under a root, each promoted
// atomically from a staging area.
type Store struct {
	root string
}

// Open prepares a Store rooted at root, creating the staging and tables
// subdirectories if they do not already exist.
func Open(root string) (*Store, error) {
	if root == "" {
		return nil, provenanceerr.Input("tablestore.Open", fmt.Errorf("root path is empty"))
	}
	for _, sub := range []string{"staging", "tables"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, provenanceerr.Internal("tablestore.Open", fmt.Errorf("mkdir %s: %w", sub, err))
		}
	}
	return &Store{root: root}, nil
}

func (s *Store) tableDir(name string) string {
	return filepath.Join(s.root, "tables", name)
}

// Stage allocates a fresh, empty staging directory for the named table. A
// builder stage writes its part files and sidecars here before calling
// PromoteAtomic.
func (s *Store) Stage(name string) (string, error) {
	dir, err := os.MkdirTemp(filepath.Join(s.root, "staging"), name+"-*")
	if err != nil {
		return "", provenanceerr.Internal("tablestore.Stage", fmt.Errorf("mkdir staging for %s: %w", name, err))
	}
	return dir, nil
}

// PromoteAtomic makes stagingDir the new live directory for name. It
// writes the _SUCCESS marker into stagingDir first, then performs a
// rename-swap: any previous generation is renamed aside, the staging
// directory is renamed into place, and the previous generation is removed
// only once the swap has succeeded. If the final rename fails, the
// previous generation is restored so a caller never observes a missing
// table.
func (s *Store) PromoteAtomic(name, stagingDir string) error {
	if err := os.WriteFile(filepath.Join(stagingDir, successMarker), []byte(time.Now().UTC().Format(time.RFC3339)), 0o644); err != nil {
		return provenanceerr.Internal("tablestore.PromoteAtomic", fmt.Errorf("write success marker: %w", err))
	}

	live := s.tableDir(name)
	backup := live + ".prev"
	_ = os.RemoveAll(backup)

	hadPrevious := false
	if _, err := os.Stat(live); err == nil {
		if err := os.Rename(live, backup); err != nil {
			return provenanceerr.Internal("tablestore.PromoteAtomic", fmt.Errorf("back up previous generation of %s: %w", name, err))
		}
		hadPrevious = true
	}

	if err := os.Rename(stagingDir, live); err != nil {
		if hadPrevious {
			_ = os.Rename(backup, live)
		}
		return provenanceerr.Internal("tablestore.PromoteAtomic", fmt.Errorf("promote %s: %w", name, err))
	}

	if hadPrevious {
		_ = os.RemoveAll(backup)
	}
	return nil
}

// Path returns the live directory for name, failing with a NotFound-kind
// error if no generation has ever been promoted.
func (s *Store) Path(name string) (string, error) {
	dir := s.tableDir(name)
	if _, err := os.Stat(filepath.Join(dir, successMarker)); err != nil {
		return "", provenanceerr.New(provenanceerr.KindNotFound, "tablestore.Path", fmt.Errorf("no promoted generation for table %q", name))
	}
	return dir, nil
}

// Discard removes a staging directory that a builder stage abandoned
// (e.g. after a failed run), so retries do not accumulate garbage.
func (s *Store) Discard(stagingDir string) error {
	if err := os.RemoveAll(stagingDir); err != nil {
		return provenanceerr.Internal("tablestore.Discard", fmt.Errorf("remove %s: %w", stagingDir, err))
	}
	return nil
}
