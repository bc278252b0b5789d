package main

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/softwareheritage/provenance/internal/builder"
	"github.com/softwareheritage/provenance/internal/cache"
	"github.com/softwareheritage/provenance/internal/config"
	"github.com/softwareheritage/provenance/internal/graph"
	"github.com/softwareheritage/provenance/internal/metrics"
	"github.com/softwareheritage/provenance/internal/provenanceerr"
	"github.com/softwareheritage/provenance/internal/tablestore"
	"github.com/softwareheritage/provenance/internal/workerpool"
)

// stageContext bundles the graph, table store, and builder.Options every
// `index` subcommand needs, opened once per invocation and torn down on
// return. Each subcommand is its own process per spec.md §6.2, so
// intermediate Stage A/B arrays are recovered from opt.Checkpoints rather
// than passed in memory across commands.
type stageContext struct {
	graph *graph.MemGraph
	store *tablestore.Store
	opt   builder.Options
}

func openStageContext(cfg config.Config) (*stageContext, error) {
	log := newLogger(cfg)

	g, err := graph.Open(cfg.GraphPath, log)
	if err != nil {
		return nil, err
	}

	store, err := tablestore.Open(cfg.DatabaseURL)
	if err != nil {
		g.Close()
		return nil, err
	}

	opt := builder.Options{
		Graph:       g,
		Pool:        workerpool.New(cfg.EffectiveWorkers()),
		Log:         log,
		Checkpoints: filepath.Join(cfg.DatabaseURL, "checkpoints"),
		Parts:       cfg.EffectiveWorkers(),
	}
	return &stageContext{graph: g, store: store, opt: opt}, nil
}

func (sc *stageContext) close() {
	sc.graph.Close()
}

func (sc *stageContext) earliestAndMaxLeaf(ctx context.Context) (*builder.EarliestTimestamps, *builder.MaxLeafTimestamps, error) {
	earliest, err := builder.ComputeEarliestTimestamps(ctx, sc.opt)
	if err != nil {
		return nil, nil, err
	}
	maxLeaf, err := builder.ComputeMaxLeafTimestamps(ctx, sc.opt, earliest)
	if err != nil {
		return nil, nil, err
	}
	return earliest, maxLeaf, nil
}

func newIndexCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Run one stage of the offline index builder",
	}
	cmd.AddCommand(newIndexEarliestTimestampsCmd(cfg))
	cmd.AddCommand(newIndexMaxLeafTimestampsCmd(cfg))
	cmd.AddCommand(newIndexDirectoryFrontierCmd(cfg))
	cmd.AddCommand(newIndexRelationsCmd(cfg))
	return cmd
}

func newIndexEarliestTimestampsCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "earliest-timestamps",
		Short: "Stage A: minimum committer date reaching each content",
		RunE: func(cmd *cobra.Command, args []string) error {
			return tagRunErr(runIndexEarliestTimestamps(cmd.Context(), *cfg))
		},
	}
}

func runIndexEarliestTimestamps(ctx context.Context, cfg config.Config) error {
	if err := cfg.Validate(true, true); err != nil {
		return provenanceerr.Input("config", err)
	}
	sc, err := openStageContext(cfg)
	if err != nil {
		return err
	}
	defer sc.close()

	_, err = builder.ComputeEarliestTimestamps(ctx, sc.opt)
	return err
}

func newIndexMaxLeafTimestampsCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "directory-max-leaf-timestamps",
		Short: "Stage B: max leaf committer date under each directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return tagRunErr(runIndexMaxLeafTimestamps(cmd.Context(), *cfg))
		},
	}
}

func runIndexMaxLeafTimestamps(ctx context.Context, cfg config.Config) error {
	if err := cfg.Validate(true, true); err != nil {
		return provenanceerr.Input("config", err)
	}
	sc, err := openStageContext(cfg)
	if err != nil {
		return err
	}
	defer sc.close()

	_, _, err = sc.earliestAndMaxLeaf(ctx)
	return err
}

func newIndexDirectoryFrontierCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "directory-frontier",
		Short: "Stage C: compute and promote the frontier directory set",
		RunE: func(cmd *cobra.Command, args []string) error {
			return tagRunErr(runIndexDirectoryFrontier(cmd.Context(), *cfg))
		},
	}
}

func runIndexDirectoryFrontier(ctx context.Context, cfg config.Config) error {
	if err := cfg.Validate(true, true); err != nil {
		return provenanceerr.Input("config", err)
	}
	sc, err := openStageContext(cfg)
	if err != nil {
		return err
	}
	defer sc.close()

	_, maxLeaf, err := sc.earliestAndMaxLeaf(ctx)
	if err != nil {
		return err
	}
	frontier, err := builder.ComputeFrontier(ctx, sc.opt, maxLeaf)
	if err != nil {
		return err
	}
	return builder.PromoteFrontierTable(sc.store, frontier)
}

func newIndexRelationsCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "relations",
		Short: "Stage D: promote the three relation tables and the nodes table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return tagRunErr(runIndexRelations(cmd.Context(), *cfg))
		},
	}
}

func runIndexRelations(ctx context.Context, cfg config.Config) error {
	if err := cfg.Validate(true, true); err != nil {
		return provenanceerr.Input("config", err)
	}
	sc, err := openStageContext(cfg)
	if err != nil {
		return err
	}
	defer sc.close()

	_, maxLeaf, err := sc.earliestAndMaxLeaf(ctx)
	if err != nil {
		return err
	}

	caches, err := cache.New(cache.DefaultBudget)
	if err != nil {
		return err
	}
	defer caches.Close()
	rec, err := metrics.New("", "provenance")
	if err != nil {
		return err
	}
	defer rec.Close()

	frontier, err := builder.LoadFrontierTable(sc.store, caches, rec)
	if err != nil {
		return err
	}

	if err := builder.ComputeRelations(ctx, sc.opt, maxLeaf, frontier, sc.store); err != nil {
		return err
	}
	return builder.WriteNodesTable(ctx, sc.opt, sc.store)
}
