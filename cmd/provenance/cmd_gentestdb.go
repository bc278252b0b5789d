package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/softwareheritage/provenance/internal/builder"
	"github.com/softwareheritage/provenance/internal/config"
	"github.com/softwareheritage/provenance/internal/graph"
	"github.com/softwareheritage/provenance/internal/swhid"
	"github.com/softwareheritage/provenance/internal/tablestore"
	"github.com/softwareheritage/provenance/internal/testfixtures"
	"github.com/softwareheritage/provenance/internal/workerpool"
)

func newGenTestDatabaseCmd(cfg *config.Config) *cobra.Command {
	var out string
	var revisions int
	var seed int64
	var dangling bool
	cmd := &cobra.Command{
		Use:   "gen-test-database",
		Short: "Generate a synthetic graph and promoted table set for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return tagRunErr(runGenTestDatabase(cmd.Context(), *cfg, out, revisions, seed, dangling))
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output directory (required)")
	cmd.Flags().IntVar(&revisions, "revisions", testfixtures.DefaultRandomOptions().Revisions, "number of synthetic revisions to generate")
	cmd.Flags().Int64Var(&seed, "seed", testfixtures.DefaultRandomOptions().Seed, "PRNG seed, for reproducible fixtures")
	cmd.Flags().BoolVar(&dangling, "dangling", true, "also add the dangling-content fixture (a content reachable by no revision)")
	cmd.MarkFlagRequired("out")
	return cmd
}

// manifest is written alongside the generated fixture so `WhereAreOne`
// benchmarks (spec.md §8 scenario 6) can sample known vs. deliberately
// absent SWHIDs without re-walking the graph.
type manifest struct {
	KnownContentSWHIDs   []string `json:"known_content_swhids"`
	UnknownContentSWHIDs []string `json:"unknown_content_swhids"`
}

func runGenTestDatabase(ctx context.Context, cfg config.Config, out string, revisions int, seed int64, dangling bool) error {
	if out == "" {
		return fmt.Errorf("gen-test-database: --out is required")
	}
	log := newLogger(cfg)

	graphPath := filepath.Join(out, "graph")
	if err := os.MkdirAll(graphPath, 0o755); err != nil {
		return err
	}
	g, err := graph.Open(graphPath, log)
	if err != nil {
		return err
	}
	defer g.Close()

	opts := testfixtures.DefaultRandomOptions()
	opts.Revisions = revisions
	opts.Seed = seed
	fixture, err := testfixtures.GenerateRandom(ctx, g, opts)
	if err != nil {
		return err
	}
	if dangling {
		if err := testfixtures.BuildDanglingContent(g); err != nil {
			return err
		}
	}

	dbPath := filepath.Join(out, "database")
	store, err := tablestore.Open(dbPath)
	if err != nil {
		return err
	}

	opt := builder.Options{
		Graph:       g,
		Pool:        workerpool.New(cfg.EffectiveWorkers()),
		Log:         log,
		Checkpoints: filepath.Join(dbPath, "checkpoints"),
		Parts:       cfg.EffectiveWorkers(),
	}
	earliest, err := builder.ComputeEarliestTimestamps(ctx, opt)
	if err != nil {
		return err
	}
	maxLeaf, err := builder.ComputeMaxLeafTimestamps(ctx, opt, earliest)
	if err != nil {
		return err
	}
	frontier, err := builder.ComputeFrontier(ctx, opt, maxLeaf)
	if err != nil {
		return err
	}
	if err := builder.PromoteFrontierTable(store, frontier); err != nil {
		return err
	}
	if err := builder.ComputeRelations(ctx, opt, maxLeaf, frontier, store); err != nil {
		return err
	}
	if err := builder.WriteNodesTable(ctx, opt, store); err != nil {
		return err
	}

	m := manifest{
		KnownContentSWHIDs: swhidStrings(fixture.ContentSWHIDs),
	}
	unknownCount := len(fixture.ContentSWHIDs) / 19 // ~5% unknown, per spec.md §8 scenario 6
	if unknownCount < 1 {
		unknownCount = 1
	}
	m.UnknownContentSWHIDs = swhidStrings(testfixtures.SampleUnknownSWHIDs(unknownCount, seed))

	manifestPath := filepath.Join(out, "manifest.json")
	f, err := os.Create(manifestPath)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return err
	}

	log.Info("gen-test-database: done",
		"graph", graphPath, "database", dbPath, "manifest", manifestPath,
		"known_contents", len(m.KnownContentSWHIDs), "unknown_contents", len(m.UnknownContentSWHIDs))
	return nil
}

func swhidStrings(ids []swhid.SWHID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
