package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/goindexq/internal/database"
	"github.com/dbsmedya/goindexq/internal/document"
	"github.com/dbsmedya/goindexq/internal/logger"
	"github.com/dbsmedya/goindexq/internal/metrics"
	"github.com/dbsmedya/goindexq/internal/worker"
)

var (
	workerOnce        bool
	workerRoot        int64
	workerMaxItems    int
	workerOutput      string
	workerMetricsAddr string
	workerSchedule    string
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Drain pending queue items into search documents",
	Long: `Worker claims pending queue items, builds their search documents and
writes them as JSON lines. Items that fail are marked failed with the error
text and retried after reset-errors or the next change of the record.

Without --once the worker runs on the configured cron schedule until it
receives SIGINT or SIGTERM.

Examples:
  goindexq worker --once
  goindexq worker --metrics-addr :9108 --output /var/lib/goindexq/docs.jsonl`,
	RunE: runWorker,
}

func init() {
	workerCmd.Flags().BoolVar(&workerOnce, "once", false, "Drain the queue once and exit")
	workerCmd.Flags().Int64Var(&workerRoot, "root", 0, "Only drain items of this site root page")
	workerCmd.Flags().IntVar(&workerMaxItems, "max-items", 0, "Override maximum items per run (0 = until drained)")
	workerCmd.Flags().StringVar(&workerOutput, "output", "", "Override document output (stdout or file path)")
	workerCmd.Flags().StringVar(&workerMetricsAddr, "metrics-addr", "", "Override Prometheus listen address")
	workerCmd.Flags().StringVar(&workerSchedule, "schedule", "", "Override 5-field cron schedule")
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	a, err := newApp(context.Background(), true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := database.ShutdownContext(context.Background(), func(sig os.Signal) {
		a.log.Warnw("Received shutdown signal - finishing current items", "signal", sig.String())
	})
	defer cancel()

	opts := worker.OptionsFromConfig(a.cfg.Worker)
	opts.RootPageID = workerRoot
	if workerMaxItems > 0 {
		opts.MaxItems = workerMaxItems
	}
	output := a.cfg.Worker.Output
	if workerOutput != "" {
		output = workerOutput
	}
	schedule := a.cfg.Worker.Schedule
	if workerSchedule != "" {
		schedule = workerSchedule
	}
	metricsAddr := a.cfg.Metrics.Addr
	if workerMetricsAddr != "" {
		metricsAddr = workerMetricsAddr
	}

	sink, err := document.Open(output)
	if err != nil {
		return err
	}
	defer func() { _ = sink.Close() }()

	builder, err := document.NewBuilder(a.db.DB, a.log)
	if err != nil {
		return err
	}
	w, err := worker.New(a.store, builder, sink, a.metrics, opts, a.log)
	if err != nil {
		return err
	}

	if metricsAddr != "" {
		stop := serveMetrics(a, metricsAddr)
		defer stop()
	}

	if workerOnce {
		result, err := w.RunOnce(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				a.log.Warn("Worker cancelled")
				return nil
			}
			return err
		}
		cmd.PrintErrf("Indexed %d, failed %d, released %d stale claims\n", result.Indexed, result.Failed, result.Released)
		renderStats(cmd.ErrOrStderr(), []statRow{{"queue", result.Statistic}})
		return nil
	}
	return w.Schedule(ctx, schedule)
}

// serveMetrics exposes the app registry on addr until the returned stop is called.
func serveMetrics(a *app, addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(a.registry))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func(log *logger.Logger) {
		log.Infow("Serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("Metrics server failed", "error", err)
		}
	}(a.log)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
