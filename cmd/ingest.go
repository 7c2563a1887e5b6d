package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/solwatch/internal/feed"
	"github.com/sells-group/solwatch/internal/model"
	"github.com/sells-group/solwatch/internal/reconcile"
	"github.com/sells-group/solwatch/internal/score"
	"github.com/sells-group/solwatch/internal/store"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest procurement notices and merge them into solicitation state",
	Long: `Fetch notices from the SAM.gov REST API (or the legacy nightly flat
file), resolve and extract their attachments, score each document for 508
compliance, and reconcile the results into the solicitations table.

Use --types to restrict to specific notice-type codes (p,k,o,m,a,r,s,u,g,i).
Use --skip-attachments to merge notice metadata without touching documents.
Use --reconcile-old to follow the ingest with a liveness sweep.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("command", "ingest"))
		started := time.Now()

		opts, err := parseIngestOpts(cmd)
		if err != nil {
			return err
		}
		if opts.source == "sam" && cfg.SAM.APIKey == "" {
			return eris.New("SAM API key is required (set SOLWATCH_SAM_API_KEY)")
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		notices, err := fetchNotices(ctx, env, opts)
		if err != nil {
			return err
		}
		log.Info("notices fetched",
			zap.String("source", opts.source), zap.Int("count", len(notices)))

		if !opts.skipAttachments {
			if err := env.resolver.ResolveAll(ctx, notices, cfg.Attach.DownloadWorkers); err != nil {
				return eris.Wrap(err, "ingest: resolve attachments")
			}
			for i := range notices {
				score.ScoreAttachments(ctx, env.scorer, notices[i].Attachments)
			}
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

		fmt.Printf("Ingested %d notices: %d created, %d updated, %d errors\n",
			sum.Notices, sum.Created, sum.Updated, sum.Errors)

		if opts.reconcileOld {
			sweeper := reconcile.NewSweeper(
				reconcile.StoreUnits{Store: env.store}, env.snapshot, cfg.Reconcile)
			sw := sweeper.Sweep(ctx)
			fmt.Printf("Sweep: %d checked, %d deactivated, %d corrected, %d errors\n",
				sw.Checked, sw.Deactivated, sw.Corrected, sw.Errors)
		}

		return nil
	},
}

func init() {
	ingestCmd.Flags().String("source", "sam", "notice source: sam or flat")
	ingestCmd.Flags().String("types", "", "comma-separated notice-type codes (e.g. p,k,o)")
	ingestCmd.Flags().Int("days", 1, "ingest notices modified in the last N days")
	ingestCmd.Flags().String("from", "", "window start date (YYYY-MM-DD, overrides --days)")
	ingestCmd.Flags().String("to", "", "window end date (YYYY-MM-DD, defaults to now)")
	ingestCmd.Flags().Bool("skip-attachments", false, "merge metadata only, without downloading documents")
	ingestCmd.Flags().Bool("reconcile-old", false, "run the liveness sweep after ingesting")
	rootCmd.AddCommand(ingestCmd)
}

type ingestOpts struct {
	source          string
	types           []model.NoticeType
	since           time.Time
	until           time.Time
	skipAttachments bool
	reconcileOld    bool
}

func parseIngestOpts(cmd *cobra.Command) (ingestOpts, error) {
	opts := ingestOpts{}
	opts.source, _ = cmd.Flags().GetString("source")
	if opts.source != "sam" && opts.source != "flat" {
		return ingestOpts{}, eris.Errorf("unknown source %q (want sam or flat)", opts.source)
	}
	opts.skipAttachments, _ = cmd.Flags().GetBool("skip-attachments")
	opts.reconcileOld, _ = cmd.Flags().GetBool("reconcile-old")

	typesStr, _ := cmd.Flags().GetString("types")
	types, err := parseTypeCodes(typesStr)
	if err != nil {
		return ingestOpts{}, err
	}
	opts.types = types

	days, _ := cmd.Flags().GetInt("days")
	fromStr, _ := cmd.Flags().GetString("from")
	toStr, _ := cmd.Flags().GetString("to")

	opts.until = time.Now().UTC()
	if toStr != "" {
		if opts.until, err = time.Parse("2006-01-02", toStr); err != nil {
			return ingestOpts{}, eris.Wrapf(err, "parse --to %q", toStr)
		}
	}
	opts.since = opts.until.AddDate(0, 0, -days)
	if fromStr != "" {
		if opts.since, err = time.Parse("2006-01-02", fromStr); err != nil {
			return ingestOpts{}, eris.Wrapf(err, "parse --from %q", fromStr)
		}
	}
	if !opts.since.Before(opts.until) {
		return ingestOpts{}, eris.New("ingest window is empty (--from must precede --to)")
	}

	return opts, nil
}

// parseTypeCodes maps comma-separated short codes onto canonical notice types.
func parseTypeCodes(s string) ([]model.NoticeType, error) {
	if s == "" {
		return nil, nil
	}
	var types []model.NoticeType
	for _, code := range strings.Split(s, ",") {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		t, ok := feed.MapAPICode(code)
		if !ok {
			return nil, eris.Errorf("unknown notice-type code %q", code)
		}
		types = append(types, t)
	}
	return types, nil
}

func fetchNotices(ctx context.Context, env *pipelineEnv, opts ingestOpts) ([]model.Notice, error) {
	if opts.source == "flat" {
		var notices []model.Notice
		for day := opts.since; day.Before(opts.until); day = day.AddDate(0, 0, 1) {
			batch, err := feed.FetchFlatFeed(ctx, env.ftp,
				cfg.Feed.FTPHost, cfg.Feed.FTPPathTmpl, day, opts.types)
			if err != nil {
				// One missing nightly file should not sink a multi-day window.
				zap.L().Warn("flat feed fetch failed",
					zap.String("day", day.Format("2006-01-02")), zap.Error(err))
				continue
			}
			notices = append(notices, batch...)
		}
		return notices, nil
	}

	client, err := feed.NewSAMClient(env.http, cfg.SAM.BaseURL, cfg.SAM.APIKey, cfg.SAM.PageSize)
	if err != nil {
		return nil, err
	}
	return client.FetchWindow(ctx, opts.since, opts.until, opts.types)
}
