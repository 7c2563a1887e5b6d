package main

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/solwatch/internal/attach"
	"github.com/sells-group/solwatch/internal/extract"
	"github.com/sells-group/solwatch/internal/fetcher"
	"github.com/sells-group/solwatch/internal/reconcile"
	"github.com/sells-group/solwatch/internal/score"
	"github.com/sells-group/solwatch/internal/snapshot"
	"github.com/sells-group/solwatch/internal/store"
)

// pipelineEnv wires the full ingestion pipeline for one command invocation.
type pipelineEnv struct {
	store      *store.Store
	http       *fetcher.HTTPFetcher
	ftp        *fetcher.FTPFetcher
	resolver   *attach.Resolver
	scorer     *score.Client
	snapshot   *snapshot.Source
	reconciler *reconcile.Reconciler
}

func (e *pipelineEnv) Close() {
	if e.store != nil {
		_ = e.store.Close()
	}
}

func openStore(ctx context.Context) (*store.Store, error) {
	if cfg.Store.DatabaseURL == "" {
		return nil, eris.New("no database_url configured (set store.database_url or SOLWATCH_STORE_DATABASE_URL)")
	}
	st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Attach.TempDir, 0o755); err != nil {
		st.Close()
		return nil, eris.Wrapf(err, "create temp dir %s", cfg.Attach.TempDir)
	}

	httpFetcher := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Timeout:      time.Duration(cfg.Attach.TimeoutSecs) * time.Second,
		MaxRetries:   3,
		RateLimiters: fetcher.DefaultRateLimiters(),
	})
	ftpFetcher := fetcher.NewFTPFetcher(fetcher.FTPOptions{
		Timeout: time.Duration(cfg.Attach.TimeoutSecs) * time.Second,
	})

	downloader := attach.NewDownloader(httpFetcher, ftpFetcher, cfg.Attach.TempDir)
	downloader.SetMaxSize(cfg.Attach.MaxSizeBytes)

	fedconnect, err := attach.NewFedConnectClient(cfg.Attach.TempDir,
		time.Duration(cfg.Attach.TimeoutSecs)*time.Second)
	if err != nil {
		st.Close()
		return nil, err
	}

	extractor := extract.NewService(cfg.Extract.PdfToTextPath)
	resolver := attach.NewResolver(httpFetcher, downloader, fedconnect, extractor)

	env := &pipelineEnv{
		store:      st,
		http:       httpFetcher,
		ftp:        ftpFetcher,
		resolver:   resolver,
		scorer:     score.NewClient(cfg.Scorer),
		snapshot:   snapshot.NewSource(cfg.Snapshot, httpFetcher),
		reconciler: reconcile.New(reconcile.StoreUnits{Store: st}),
	}
	zap.L().Debug("pipeline initialized")
	return env, nil
}
