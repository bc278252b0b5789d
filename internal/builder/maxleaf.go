package builder

import (
	"context"
	"sync"

	"github.com/softwareheritage/provenance/internal/graph"
	"github.com/softwareheritage/provenance/internal/swhid"
)

// MaxLeafTimestamps is Stage B's output: a dense array indexed by
// directory node-id, where Values[d] is the maximum earliest-timestamp
// over every content transitively contained in d, or Unset if the
// subtree has no dated content.
type MaxLeafTimestamps struct {
	Values []int64
}

// ComputeMaxLeafTimestamps runs Stage B (spec.md §4.1): process
// directories in reverse topological order (children before parents),
// combining children's max_leaf with direct content children's earliest
// timestamps. Reverse-topological order falls out naturally from
// memoized post-order recursion: a directory's value is only set after
// every child directory's value has been computed.
func ComputeMaxLeafTimestamps(ctx context.Context, opt Options, earliest *EarliestTimestamps) (*MaxLeafTimestamps, error) {
	log := opt.logger()

	if values, ok, err := readCheckpoint(opt.Checkpoints, "max_leaf"); err != nil {
		return nil, wrapStageErr("directory-max-leaf-timestamps", err)
	} else if ok {
		log.Info("builder: loaded max-leaf-timestamps checkpoint", "nodes", len(values))
		return &MaxLeafTimestamps{Values: values}, nil
	}

	maxID, err := opt.Graph.MaxNodeID(ctx)
	if err != nil {
		return nil, wrapStageErr("directory-max-leaf-timestamps", err)
	}
	directories, err := opt.Graph.NodesByType(ctx, swhid.Directory)
	if err != nil {
		return nil, wrapStageErr("directory-max-leaf-timestamps", err)
	}

	maxLeaf := make([]int64, maxID+1)
	for i := range maxLeaf {
		maxLeaf[i] = Unset
	}

	c := &maxLeafComputer{
		g:        opt.Graph,
		earliest: earliest.Values,
		maxLeaf:  maxLeaf,
		once:     make([]sync.Once, maxID+1),
	}

	err = opt.Pool.ForEach(ctx, len(directories), func(ctx context.Context, i int) error {
		return c.compute(ctx, directories[i])
	})
	if err != nil {
		return nil, wrapStageErr("directory-max-leaf-timestamps", err)
	}
	if err := c.firstErr(); err != nil {
		return nil, wrapStageErr("directory-max-leaf-timestamps", err)
	}

	if err := writeCheckpoint(opt.Checkpoints, "max_leaf", maxLeaf); err != nil {
		log.Warn("builder: failed to persist max-leaf-timestamps checkpoint", "error", err)
	}
	log.Info("builder: computed directory-max-leaf-timestamps", "directories", len(directories))
	return &MaxLeafTimestamps{Values: maxLeaf}, nil
}

// maxLeafComputer memoizes per-directory results with a sync.Once per
// node-id so that a directory shared by many parents (common in a
// content-addressed Merkle DAG) is only ever walked once, regardless of
// how many worker goroutines reach it concurrently.
type maxLeafComputer struct {
	g        graph.Graph
	earliest []int64
	maxLeaf  []int64
	once     []sync.Once

	errMu  sync.Mutex
	errVal error
}

// setErr latches the first non-nil error, guarded by a mutex rather than
// atomic.Value: CompareAndSwap on an atomic.Value panics if two goroutines
// ever store errors of different concrete types, and graph.Graph errors
// are not guaranteed to share one dynamic type.
func (c *maxLeafComputer) setErr(err error) {
	if err == nil {
		return
	}
	c.errMu.Lock()
	if c.errVal == nil {
		c.errVal = err
	}
	c.errMu.Unlock()
}

func (c *maxLeafComputer) firstErr() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.errVal
}

func (c *maxLeafComputer) compute(ctx context.Context, dir graph.NodeID) error {
	c.once[dir].Do(func() {
		entries, err := c.g.DirectoryEntries(ctx, dir)
		if err != nil {
			c.setErr(err)
			return
		}
		best := Unset
		for _, e := range entries {
			typ, err := c.g.NodeType(ctx, e.Target)
			if err != nil {
				c.setErr(err)
				return
			}
			switch typ {
			case swhid.Directory:
				if err := c.compute(ctx, e.Target); err != nil {
					c.setErr(err)
					return
				}
				if v := c.maxLeaf[e.Target]; v != Unset && (best == Unset || v > best) {
					best = v
				}
			case swhid.Content:
				if v := c.earliest[e.Target]; v != Unset && (best == Unset || v > best) {
					best = v
				}
			}
		}
		c.maxLeaf[dir] = best
	})
	return c.firstErr()
}
