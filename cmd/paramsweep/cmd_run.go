package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/banshee-data/paramsweep/internal/config"
	"github.com/banshee-data/paramsweep/internal/db"
	"github.com/banshee-data/paramsweep/internal/dispatch"
	"github.com/banshee-data/paramsweep/internal/monitoring"
	"github.com/banshee-data/paramsweep/internal/report"
)

func newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate a sweep and launch one simulation run per combination",
		Long: `Run loads an experiment file, generates every parameter combination and
launches the project's binary once per combination, each in its own numbered
directory under save_dir. Runs execute in parallel up to --parallel workers;
a failing run is recorded and never stops the others.

When the experiment names a registry, the sweep and each run are recorded in
that SQLite database. When it has a report section, sweep.csv, stats.csv and
optional charts are written once all runs finish.

Examples:
  paramsweep run -f experiment.yaml
  paramsweep run -f experiment.yaml --parallel 8 --metrics-addr :9090
  paramsweep run -f experiment.yaml --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			cfg, err := config.Load(file)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts.trace = traceLogger(cmd)
			opts.out = cmd.OutOrStdout()
			_, err = runSweep(ctx, cfg, opts)
			return err
		},
	}
	cmd.Flags().StringP("file", "f", "", "Experiment file (.yaml, .yml or .json)")
	cmd.MarkFlagRequired("file")
	cmd.Flags().IntVar(&opts.parallel, "parallel", 0, "Concurrent runs (overrides the experiment's parallel)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Stage run directories and configurations without launching anything")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running (e.g. :9090)")
	return cmd
}

type runOptions struct {
	parallel    int
	dryRun      bool
	metricsAddr string

	trace    *log.Logger
	out      io.Writer
	commands dispatch.CommandBuilder
	registry *prometheus.Registry
}

// runSummary is what a finished sweep reports.
type runSummary struct {
	SweepID string
	Results []dispatch.Result
	Failed  int
	Report  *report.Files
}

func runSweep(ctx context.Context, cfg *config.Experiment, opts runOptions) (*runSummary, error) {
	if opts.out == nil {
		opts.out = io.Discard
	}
	exp, err := cfg.Build(opts.trace)
	if err != nil {
		return nil, err
	}
	for _, w := range exp.Warnings() {
		monitoring.Logf("warning: %s", w)
	}
	s, err := exp.Generate()
	if err != nil {
		return nil, err
	}
	project := cfg.Project()
	if err := project.Validate(nil); err != nil {
		return nil, err
	}
	tasks, err := dispatch.BuildTasks(exp, s)
	if err != nil {
		return nil, err
	}

	parallel := cfg.Parallel
	if opts.parallel > 0 {
		parallel = opts.parallel
	}
	sum := &runSummary{SweepID: uuid.NewString()}
	monitoring.Logf("sweep %s: %d run(s) of %q, %d in parallel", sum.SweepID, len(tasks), cfg.Name, parallel)

	var store *db.SweepStore
	if cfg.Registry != "" {
		database, err := db.NewDB(cfg.RegistryPath())
		if err != nil {
			return nil, err
		}
		defer database.Close()
		store = db.NewSweepStore(database.DB)
		raw, err := json.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("encoding experiment: %w", err)
		}
		if err := store.InsertSweep(db.SweepRecord{
			SweepID:    sum.SweepID,
			Name:       cfg.Name,
			ParamNames: s.Names,
			TotalRuns:  len(tasks),
			SaveFolder: cfg.SaveDirPath(),
			Config:     raw,
			StartedAt:  time.Now(),
		}); err != nil {
			return nil, err
		}
	}

	reg := opts.registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if opts.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := serveHTTP(metricsCtx, opts.metricsAddr, mux); err != nil {
				monitoring.Logf("metrics server: %v", err)
			}
		}()
	}

	executor := dispatch.NewExecutor(project, dispatch.NewAllocator(nil, cfg.SaveDirPath()))
	executor.DryRun = opts.dryRun
	if opts.commands != nil {
		executor.Commands = opts.commands
	}
	d := &dispatch.Dispatcher{
		Runner:   executor,
		Parallel: parallel,
		Metrics:  dispatch.NewMetrics(reg),
		OnResult: func(r dispatch.Result) {
			if store == nil {
				return
			}
			if err := store.RecordResult(sum.SweepID, r); err != nil {
				monitoring.Logf("failed to record run %d: %v", r.Task.Index, err)
			}
		},
	}
	results, err := d.Run(ctx, tasks)
	if err != nil {
		return nil, err
	}
	sum.Results = results
	sum.Failed = len(dispatch.Failed(results))

	if store != nil {
		status, msg := db.SweepCompleted, ""
		switch {
		case ctx.Err() != nil:
			status, msg = db.SweepCancelled, ctx.Err().Error()
		case sum.Failed > 0:
			status, msg = db.SweepFailed, fmt.Sprintf("%d of %d runs failed", sum.Failed, len(results))
		}
		if err := store.CompleteSweep(sum.SweepID, status, sum.Failed, time.Now(), msg); err != nil {
			monitoring.Logf("failed to complete sweep %s: %v", sum.SweepID, err)
		}
	}

	if dir := cfg.ReportDir(); dir != "" {
		w := &report.Writer{Dir: dir, Title: cfg.Name, Charts: cfg.Report.Charts}
		files, err := w.Write(s.Names, report.Rows(s, results))
		if err != nil {
			return sum, err
		}
		sum.Report = files
	}

	fmt.Fprintf(opts.out, "sweep %s: %d run(s), %d failed\n", sum.SweepID, len(results), sum.Failed)
	if sum.Report != nil {
		fmt.Fprintf(opts.out, "report: %s\n", sum.Report.CSV)
	}
	if err := ctx.Err(); err != nil {
		return sum, err
	}
	if sum.Failed > 0 {
		return sum, fmt.Errorf("%d of %d runs failed", sum.Failed, len(results))
	}
	return sum, nil
}
