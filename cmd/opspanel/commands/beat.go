package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/opspanel/backend/internal/core/jobs"
	"github.com/opspanel/backend/internal/core/ports"
	"github.com/opspanel/backend/internal/core/schedule"
	"github.com/opspanel/backend/internal/infrastructure/queue"
)

var beatSingleInstance bool

var BeatCmd = &cobra.Command{
	Use:   "beat",
	Short: "Run the periodic task scheduler",
	Long: `beat evaluates the schedule table every tick and enqueues due tasks.

Several beat processes may run; a Redis lease elects the one that enqueues.
Ticks missed while no instance led are not replayed.`,
	RunE: runBeat,
}

func init() {
	BeatCmd.Flags().BoolVar(&beatSingleInstance, "single-instance", false, "skip the leader lock (only when exactly one beat runs)")
}

func runBeat(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	rt, err := openProcess(ctx, "beat", true)
	if err != nil {
		return err
	}
	defer rt.close()
	cfg := rt.cfg

	loc, err := cfg.Scheduler.Location()
	if err != nil {
		return err
	}
	table, err := schedule.LoadTable(cfg.Scheduler.ScheduleFile, loc, jobs.Known)
	if err != nil {
		return err
	}
	rt.log.Infow("schedule_loaded", "definitions", table.Len(), "file", cfg.Scheduler.ScheduleFile, "timezone", loc.String())

	var lock ports.LeaderLock = queue.NewRedisLock(rt.redis, redisKey(cfg, cfg.Scheduler.LockKey), cfg.Scheduler.LockTTL)
	if beatSingleInstance {
		lock = queue.LocalLock{}
	}

	scheduler := schedule.NewScheduler(
		cfg.Scheduler,
		schedule.NewRegistry(table, jobs.Known),
		queue.NewRedisBroker(rt.redis, cfg.Redis.KeyPrefix),
		lock,
		rt.metrics,
		rt.log,
	).WithOverrides(queue.NewRedisOverrides(rt.redis, cfg.Redis.KeyPrefix))

	if cfg.Metrics.Enabled {
		rt.metrics.Serve(ctx, cfg.Metrics.Address, cfg.Metrics.Path, rt.log)
	}

	scheduler.Start(ctx)
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	scheduler.Stop(stopCtx)
	return nil
}
