package graph

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/softwareheritage/provenance/internal/provenanceerr"
	"github.com/softwareheritage/provenance/internal/swhid"
)

// MemGraph is a badger-backed Graph implementation used by
// `gen-test-database` and by tests that need a small, disposable graph
// snapshot without a real archive graph service. It mirrors the teacher's
// own badger.Open(badger.DefaultOptions(path)) usage in
// cmd/badgerDBTorture and the OuroborosDB constructor.
type MemGraph struct {
	log *slog.Logger
	db  *badger.DB
}

const (
	prefixNodeToSWHID   = "n2s:"
	prefixSWHIDToNode   = "s2n:"
	prefixSuccessors    = "suc:"
	prefixPredecessors  = "pred:"
	prefixDirEntries    = "dirent:"
	prefixCommitterDate = "cdate:"
	prefixNodeType      = "ntype:"
	prefixOriginURL     = "origin:"
)

// Open creates or opens a MemGraph at path. Passing an empty path opens an
// in-memory badger instance, used by unit tests.
func Open(path string, logger *slog.Logger) (*MemGraph, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("graph: open badger store: %w", err)
	}
	return &MemGraph{log: logger, db: db}, nil
}

// Close releases the underlying badger store.
func (g *MemGraph) Close() error {
	if err := g.db.Close(); err != nil {
		return fmt.Errorf("graph: close: %w", err)
	}
	return nil
}

func nodeKey(prefix string, id NodeID) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	return append([]byte(prefix), buf[:]...)
}

func swhidKey(id swhid.SWHID) []byte {
	b := id.Bytes()
	return append([]byte(prefixSWHIDToNode), b[:]...)
}

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

// PutNode registers a node's SWHID and type.
func (g *MemGraph) PutNode(id NodeID, s swhid.SWHID) error {
	return g.db.Update(func(txn *badger.Txn) error {
		sb := s.Bytes()
		if err := txn.Set(nodeKey(prefixNodeToSWHID, id), sb[:]); err != nil {
			return err
		}
		if err := txn.Set(swhidKey(s), nodeIDBytes(id)); err != nil {
			return err
		}
		return txn.Set(nodeKey(prefixNodeType, id), []byte{byte(s.Type)})
	})
}

func nodeIDBytes(id NodeID) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	return buf[:]
}

// PutSuccessors sets id's outgoing edges and maintains the reverse index.
func (g *MemGraph) PutSuccessors(id NodeID, successors []NodeID) error {
	return g.db.Update(func(txn *badger.Txn) error {
		enc, err := encodeGob(successors)
		if err != nil {
			return err
		}
		if err := txn.Set(nodeKey(prefixSuccessors, id), enc); err != nil {
			return err
		}
		for _, succ := range successors {
			var preds []NodeID
			item, err := txn.Get(nodeKey(prefixPredecessors, succ))
			switch {
			case err == nil:
				if decErr := item.Value(func(val []byte) error {
					return decodeGob(val, &preds)
				}); decErr != nil {
					return decErr
				}
			case errors.Is(err, badger.ErrKeyNotFound):
				// no predecessors yet
			default:
				return err
			}
			preds = append(preds, id)
			predEnc, err := encodeGob(preds)
			if err != nil {
				return err
			}
			if err := txn.Set(nodeKey(prefixPredecessors, succ), predEnc); err != nil {
				return err
			}
		}
		return nil
	})
}

// PutDirectoryEntries sets a directory's named entries.
func (g *MemGraph) PutDirectoryEntries(dir NodeID, entries []DirEntry) error {
	enc, err := encodeGob(entries)
	if err != nil {
		return err
	}
	successors := make([]NodeID, len(entries))
	for i, e := range entries {
		successors[i] = e.Target
	}
	if err := g.PutSuccessors(dir, successors); err != nil {
		return err
	}
	return g.db.Update(func(txn *badger.Txn) error {
		return txn.Set(nodeKey(prefixDirEntries, dir), enc)
	})
}

// PutCommitterDate records a revision's committer date.
func (g *MemGraph) PutCommitterDate(revision NodeID, t time.Time) error {
	return g.db.Update(func(txn *badger.Txn) error {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(t.Unix()))
		return txn.Set(nodeKey(prefixCommitterDate, revision), buf[:])
	})
}

// PutOrigin records the URL of an origin node.
func (g *MemGraph) PutOrigin(origin NodeID, url string) error {
	return g.db.Update(func(txn *badger.Txn) error {
		return txn.Set(nodeKey(prefixOriginURL, origin), []byte(url))
	})
}

func (g *MemGraph) NodeID(ctx context.Context, id swhid.SWHID) (NodeID, bool, error) {
	var out NodeID
	found := false
	err := g.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(swhidKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			out = binary.BigEndian.Uint64(val)
			return nil
		})
	})
	if err != nil {
		return 0, false, provenanceerr.Transient("graph.NodeID", err)
	}
	return out, found, nil
}

func (g *MemGraph) SWHID(ctx context.Context, id NodeID) (swhid.SWHID, bool, error) {
	var out swhid.SWHID
	found := false
	err := g.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(nodeKey(prefixNodeToSWHID, id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			decoded, decErr := swhid.FromBytes(val)
			if decErr != nil {
				return decErr
			}
			out = decoded
			return nil
		})
	})
	if err != nil {
		return swhid.SWHID{}, false, provenanceerr.Transient("graph.SWHID", err)
	}
	return out, found, nil
}

func (g *MemGraph) NodeType(ctx context.Context, id NodeID) (swhid.NodeType, error) {
	var out swhid.NodeType
	err := g.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(nodeKey(prefixNodeType, id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 1 {
				return fmt.Errorf("corrupt node type for node %d", id)
			}
			out = swhid.NodeType(val[0])
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, provenanceerr.New(provenanceerr.KindNotFound, "graph.NodeType", err)
	}
	if err != nil {
		return 0, provenanceerr.Transient("graph.NodeType", err)
	}
	return out, nil
}

func (g *MemGraph) readEdgeList(prefix string, id NodeID) ([]NodeID, error) {
	var out []NodeID
	err := g.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(nodeKey(prefix, id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return decodeGob(val, &out)
		})
	})
	if err != nil {
		return nil, provenanceerr.Transient("graph.readEdgeList", err)
	}
	return out, nil
}

func (g *MemGraph) Successors(ctx context.Context, id NodeID) ([]NodeID, error) {
	return g.readEdgeList(prefixSuccessors, id)
}

func (g *MemGraph) Predecessors(ctx context.Context, id NodeID) ([]NodeID, error) {
	return g.readEdgeList(prefixPredecessors, id)
}

func (g *MemGraph) DirectoryEntries(ctx context.Context, dir NodeID) ([]DirEntry, error) {
	var out []DirEntry
	err := g.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(nodeKey(prefixDirEntries, dir))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return decodeGob(val, &out)
		})
	})
	if err != nil {
		return nil, provenanceerr.Transient("graph.DirectoryEntries", err)
	}
	return out, nil
}

func (g *MemGraph) CommitterDate(ctx context.Context, revision NodeID) (time.Time, bool, error) {
	var out time.Time
	found := false
	err := g.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(nodeKey(prefixCommitterDate, revision))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			out = time.Unix(int64(binary.BigEndian.Uint64(val)), 0).UTC()
			return nil
		})
	})
	if err != nil {
		return time.Time{}, false, provenanceerr.Transient("graph.CommitterDate", err)
	}
	return out, found, nil
}

// OriginForRevision walks predecessors from revision (revision <- snapshot
// <- origin) breadth-first until an Origin-typed node is found. The
// production graph resolves this via a dedicated index; this in-memory
// implementation performs the equivalent bounded traversal directly.
func (g *MemGraph) OriginForRevision(ctx context.Context, revision NodeID) (string, bool, error) {
	const maxDepth = 8
	visited := map[NodeID]bool{revision: true}
	frontier := []NodeID{revision}
	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []NodeID
		for _, n := range frontier {
			preds, err := g.Predecessors(ctx, n)
			if err != nil {
				return "", false, err
			}
			for _, p := range preds {
				if visited[p] {
					continue
				}
				visited[p] = true
				typ, err := g.NodeType(ctx, p)
				if err != nil && !provenanceerr.IsNotFound(err) {
					return "", false, err
				}
				if typ == swhid.Origin {
					url, ok, err := g.originURL(p)
					if err != nil {
						return "", false, err
					}
					if ok {
						return url, true, nil
					}
				}
				next = append(next, p)
			}
		}
		frontier = next
	}
	return "", false, nil
}

// NodesByType scans the ntype: keyspace, which is small relative to the
// full node set (one byte per node), so a full iteration is cheap enough
// for the builder's once-per-stage enumeration.
func (g *MemGraph) NodesByType(ctx context.Context, typ swhid.NodeType) ([]NodeID, error) {
	var out []NodeID
	err := g.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := []byte(prefixNodeType)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var match bool
			if err := item.Value(func(val []byte) error {
				match = len(val) == 1 && swhid.NodeType(val[0]) == typ
				return nil
			}); err != nil {
				return err
			}
			if !match {
				continue
			}
			key := item.KeyCopy(nil)
			out = append(out, binary.BigEndian.Uint64(key[len(prefixNodeType):]))
		}
		return nil
	})
	if err != nil {
		return nil, provenanceerr.Transient("graph.NodesByType", err)
	}
	return out, nil
}

// MaxNodeID scans the ntype: keyspace for the largest assigned node-id.
func (g *MemGraph) MaxNodeID(ctx context.Context) (NodeID, error) {
	var max NodeID
	err := g.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := []byte(prefixNodeType)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			id := binary.BigEndian.Uint64(key[len(prefixNodeType):])
			if id > max {
				max = id
			}
		}
		return nil
	})
	if err != nil {
		return 0, provenanceerr.Transient("graph.MaxNodeID", err)
	}
	return max, nil
}

func (g *MemGraph) originURL(origin NodeID) (string, bool, error) {
	var out string
	found := false
	err := g.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(nodeKey(prefixOriginURL, origin))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			out = string(val)
			return nil
		})
	})
	if err != nil {
		return "", false, provenanceerr.Transient("graph.originURL", err)
	}
	return out, found, nil
}
