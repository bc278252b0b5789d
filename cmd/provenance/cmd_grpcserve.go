package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/softwareheritage/provenance/internal/cache"
	"github.com/softwareheritage/provenance/internal/config"
	"github.com/softwareheritage/provenance/internal/graph"
	"github.com/softwareheritage/provenance/internal/grpcserver"
	"github.com/softwareheritage/provenance/internal/metrics"
	"github.com/softwareheritage/provenance/internal/parquetio"
	"github.com/softwareheritage/provenance/internal/provenanceerr"
	"github.com/softwareheritage/provenance/internal/query"
	"github.com/softwareheritage/provenance/internal/tablestore"
)

func newGRPCServeCmd(cfg *config.Config) *cobra.Command {
	var bind string
	cmd := &cobra.Command{
		Use:   "grpc-serve",
		Short: "Serve WhereIsOne/WhereAreOne over gRPC against a promoted index",
		RunE: func(cmd *cobra.Command, args []string) error {
			return tagRunErr(runGRPCServe(cmd.Context(), *cfg, bind))
		},
	}
	cmd.Flags().StringVar(&bind, "bind", ":9090", "address to listen on")
	return cmd
}

func runGRPCServe(ctx context.Context, cfg config.Config, bind string) error {
	if err := cfg.Validate(true, true); err != nil {
		return provenanceerr.Input("config", err)
	}
	log := newLogger(cfg)

	g, err := graph.Open(cfg.GraphPath, log)
	if err != nil {
		return err
	}
	defer g.Close()

	store, err := tablestore.Open(cfg.DatabaseURL)
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

	tables, err := openTableSet(store, caches, rec)
	if err != nil {
		return err
	}

	engine, err := query.New(g, tables, caches, rec, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return grpcserver.Serve(ctx, bind, engine, log)
}

func openTableSet(store *tablestore.Store, caches *cache.Caches, rec *metrics.Recorder) (*query.TableSet, error) {
	nodesDir, err := store.Path("nodes")
	if err != nil {
		return nil, err
	}
	nodesTable, err := parquetio.OpenTable[parquetio.NodeRow](nodesDir, func(r parquetio.NodeRow) uint64 { return r.NodeID }, caches, rec)
	if err != nil {
		return nil, err
	}

	fdirDir, err := store.Path("frontier_directories_in_revisions")
	if err != nil {
		return nil, err
	}
	fdirTable, err := parquetio.OpenTable[parquetio.FDIRRow](fdirDir, func(r parquetio.FDIRRow) uint64 { return r.FrontierDir }, caches, rec)
	if err != nil {
		return nil, err
	}

	cfdDir, err := store.Path("contents_in_frontier_directories")
	if err != nil {
		return nil, err
	}
	cfdTable, err := parquetio.OpenTable[parquetio.CFDRow](cfdDir, func(r parquetio.CFDRow) uint64 { return r.Content }, caches, rec)
	if err != nil {
		return nil, err
	}

	crnfDir, err := store.Path("contents_in_revisions_without_frontiers")
	if err != nil {
		return nil, err
	}
	crnfTable, err := parquetio.OpenTable[parquetio.CRNFRow](crnfDir, func(r parquetio.CRNFRow) uint64 { return r.Content }, caches, rec)
	if err != nil {
		return nil, err
	}

	return &query.TableSet{Nodes: nodesTable, FDIR: fdirTable, CFD: cfdTable, CRNF: crnfTable}, nil
}
