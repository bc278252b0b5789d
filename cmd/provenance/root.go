package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/softwareheritage/provenance/internal/config"
)

// run builds the root command, executes it against args, and returns the
// process exit code per spec.md §6.2. It never calls os.Exit itself so
// tests can drive it in-process.
func run(args []string) int {
	var cfg config.Config
	var graphFlag, dbFlag string
	var workersFlag int

	root := &cobra.Command{
		Use:           "provenance",
		Short:         "Software Heritage provenance index builder and query facade",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg = config.Load()
			if graphFlag != "" {
				cfg.GraphPath = graphFlag
			}
			if dbFlag != "" {
				cfg.DatabaseURL = dbFlag
			}
			if workersFlag != 0 {
				cfg.Workers = workersFlag
			}
		},
	}
	root.PersistentFlags().StringVar(&graphFlag, "graph", "", "path to the graph snapshot (overrides SWH_PROVENANCE_GRAPH_PATH)")
	root.PersistentFlags().StringVar(&dbFlag, "database", "", "columnar store root URL (overrides SWH_PROVENANCE_DB_URL)")
	root.PersistentFlags().IntVar(&workersFlag, "workers", 0, "worker pool size; 0 selects automatic sizing")

	root.AddCommand(newIndexCmd(&cfg))
	root.AddCommand(newGRPCServeCmd(&cfg))
	root.AddCommand(newGenTestDatabaseCmd(&cfg))

	root.SetArgs(args)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var tagged *runErrTag
		if errors.As(err, &tagged) {
			return exitCodeFor(tagged.err, false)
		}
		return exitArgumentError
	}
	return exitSuccess
}

// runErrTag wraps a command-body error so run() can tell it apart from a
// cobra argument-parsing error (unknown flag, missing positional arg),
// which is always exitArgumentError regardless of what it wraps.
type runErrTag struct{ err error }

func (r *runErrTag) Error() string { return r.err.Error() }
func (r *runErrTag) Unwrap() error { return r.err }

func tagRunErr(err error) error {
	if err == nil {
		return nil
	}
	return &runErrTag{err: err}
}

func newLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	filter := cfg.LogFilter
	if idx := strings.LastIndex(filter, "="); idx >= 0 {
		filter = filter[idx+1:]
	}
	switch strings.ToLower(strings.TrimSpace(filter)) {
	case "debug", "trace":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}
