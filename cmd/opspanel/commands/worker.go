package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/opspanel/backend/internal/app"
	"github.com/opspanel/backend/internal/core/jobs"
	"github.com/opspanel/backend/internal/core/worker"
)

var (
	workerQueues      []string
	workerConcurrency int
)

var WorkerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the task worker pool",
	Long: `worker consumes invocations from the configured queues and runs the
registered task handlers. Workers share nothing in memory and can be scaled
horizontally.`,
	RunE: runWorker,
}

func init() {
	WorkerCmd.Flags().StringSliceVarP(&workerQueues, "queues", "Q", nil, "queues to consume (default: worker.queues)")
	WorkerCmd.Flags().IntVarP(&workerConcurrency, "concurrency", "c", 0, "concurrent consumers (default: worker.concurrency)")
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	rt, err := openProcess(ctx, "worker", true)
	if err != nil {
		return err
	}
	defer rt.close()
	cfg := rt.cfg

	if len(workerQueues) > 0 {
		cfg.Worker.Queues = workerQueues
	}
	if workerConcurrency > 0 {
		cfg.Worker.Concurrency = workerConcurrency
	}

	container, err := app.Build(app.Options{
		Config:  cfg,
		DB:      rt.db,
		Redis:   rt.redisClient(),
		Metrics: rt.metrics,
		Logger:  rt.log,
	})
	if err != nil {
		return err
	}

	registry := worker.NewRegistry()
	jobs.Register(registry, container.JobDeps())

	if cfg.Metrics.Enabled {
		rt.metrics.Serve(ctx, cfg.Metrics.Address, cfg.Metrics.Path, rt.log)
	}

	pool := worker.NewPool(cfg.Worker, container.Broker, registry, rt.metrics, rt.log)
	pool.Start(ctx)
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	pool.Stop(stopCtx)
	return nil
}
