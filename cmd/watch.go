package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/solwatch/internal/reconcile"
	"github.com/sells-group/solwatch/internal/score"
	"github.com/sells-group/solwatch/internal/store"
)

var (
	watchIngestHour int
	watchSweepHour  int
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run ingestion and the liveness sweep on a daily schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cfg.SAM.APIKey == "" {
			return eris.New("SAM API key is required (set SOLWATCH_SAM_API_KEY)")
		}

		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return eris.Wrap(err, "create scheduler")
		}

		_, err = scheduler.NewJob(
			gocron.DailyJob(1, gocron.NewAtTimes(
				gocron.NewAtTime(uint(watchIngestHour), 0, 0))),
			gocron.NewTask(func() { runScheduledIngest(ctx) }),
		)
		if err != nil {
			return eris.Wrap(err, "schedule ingest job")
		}

		_, err = scheduler.NewJob(
			gocron.DailyJob(1, gocron.NewAtTimes(
				gocron.NewAtTime(uint(watchSweepHour), 0, 0))),
			gocron.NewTask(func() { runScheduledSweep(ctx) }),
		)
		if err != nil {
			return eris.Wrap(err, "schedule sweep job")
		}

		scheduler.Start()
		zap.L().Info("watch started",
			zap.Int("ingest_hour", watchIngestHour), zap.Int("sweep_hour", watchSweepHour))

		<-ctx.Done()
		return scheduler.Shutdown()
	},
}

func init() {
	watchCmd.Flags().IntVar(&watchIngestHour, "ingest-hour", 6, "hour of day (UTC) for the daily ingest")
	watchCmd.Flags().IntVar(&watchSweepHour, "sweep-hour", 8, "hour of day (UTC) for the daily sweep")
	rootCmd.AddCommand(watchCmd)
}

func runScheduledIngest(ctx context.Context) {
	log := zap.L().With(zap.String("command", "watch.ingest"))
	started := time.Now()

	env, err := initPipeline(ctx)
	if err != nil {
		log.Error("pipeline init failed", zap.Error(err))
		return
	}
	defer env.Close()

	until := time.Now().UTC()
	opts := ingestOpts{source: "sam", since: until.AddDate(0, 0, -1), until: until}
	notices, err := fetchNotices(ctx, env, opts)
	if err != nil {
		log.Error("fetch failed", zap.Error(err))
		return
	}

	if err := env.resolver.ResolveAll(ctx, notices, cfg.Attach.DownloadWorkers); err != nil {
		log.Error("attachment resolution failed", zap.Error(err))
		return
	}
	for i := range notices {
		score.ScoreAttachments(ctx, env.scorer, notices[i].Attachments)
	}

	sum := env.reconciler.Reconcile(ctx, notices)
	if err := env.store.LogSync(ctx, store.SyncRecord{
		Kind:      "ingest",
		StartedAt: started,
		Notices:   sum.Notices,
		Created:   sum.Created,
		Updated:   sum.Updated,
		Errors:    sum.Errors,
	}); err != nil {
		log.Warn("sync log write failed", zap.Error(err))
	}
}

func runScheduledSweep(ctx context.Context) {
	log := zap.L().With(zap.String("command", "watch.sweep"))
	started := time.Now()

	env, err := initPipeline(ctx)
	if err != nil {
		log.Error("pipeline init failed", zap.Error(err))
		return
	}
	defer env.Close()

	sweeper := reconcile.NewSweeper(
		reconcile.StoreUnits{Store: env.store}, env.snapshot, cfg.Reconcile)
	sum := sweeper.Sweep(ctx)

	if err := env.store.LogSync(ctx, store.SyncRecord{
		Kind:      "reconcile",
		StartedAt: started,
		Notices:   sum.Checked,
		Updated:   sum.Deactivated + sum.Corrected,
		Errors:    sum.Errors,
	}); err != nil {
		log.Warn("sync log write failed", zap.Error(err))
	}
}
