package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/artiklix/kirjasto-harvester/internal/api"
	"github.com/artiklix/kirjasto-harvester/internal/archive"
	"github.com/artiklix/kirjasto-harvester/internal/catalog"
	"github.com/artiklix/kirjasto-harvester/internal/config"
	"github.com/artiklix/kirjasto-harvester/internal/fetcher"
	collyfetcher "github.com/artiklix/kirjasto-harvester/internal/fetcher/colly"
	"github.com/artiklix/kirjasto-harvester/internal/harvest"
	"github.com/artiklix/kirjasto-harvester/internal/hash/sha256"
	"github.com/artiklix/kirjasto-harvester/internal/logging"
	"github.com/artiklix/kirjasto-harvester/internal/progress"
	"github.com/artiklix/kirjasto-harvester/internal/progress/sinks"
	pubsubpub "github.com/artiklix/kirjasto-harvester/internal/publisher/pubsub"
	"github.com/artiklix/kirjasto-harvester/internal/ratelimit"
	"github.com/artiklix/kirjasto-harvester/internal/segment"
	dedup "github.com/artiklix/kirjasto-harvester/internal/store"
	"github.com/artiklix/kirjasto-harvester/internal/storage/postgres"
)

func newHarvestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "harvest",
		Short: "Runs one full catalog harvest",
		Long: `Discovers the catalog's category menu, enumerates every subcategory's
article list, and drains the resulting article queue with a fixed worker
pool. The observability HTTP server runs for the duration of the harvest.`,
		RunE: runHarvestCommand,
	}
}

func runHarvestCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	ctx := cmd.Context()

	registry := prometheus.NewRegistry()
	promSink, err := sinks.NewPrometheusSink(registry)
	if err != nil {
		return err
	}
	hub := progress.NewHub(progress.Config{Logger: logger}, sinks.NewLogSink(logger), promSink)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := hub.Close(closeCtx); err != nil {
			logger.Warn("progress hub close failed", zap.Error(err))
		}
	}()

	limiter := ratelimit.New(ratelimit.Config{
		RPS:   cfg.Harvest.RequestsPerS,
		Burst: cfg.Harvest.Burst,
	})
	baseFetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second,
	}, limiter)
	// MaxRetries counts retries after the initial attempt.
	policy := harvest.NewExponentialRetryPolicy(cfg.HTTP.MaxRetries + 1)
	retrying := fetcher.NewRetrying(baseFetcher, policy, logger)

	pg, err := postgres.NewStore(ctx, postgres.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: int32(cfg.DB.MaxConns),
		MinConns: int32(cfg.DB.MinConns),
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pg.Close()
	if err := pg.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	articleStore := dedup.NewDeduplicator(pg, sha256.New(), logger)
	if cfg.DB.PreloadContent {
		if err := articleStore.Preload(ctx); err != nil {
			return fmt.Errorf("preload content index: %w", err)
		}
	}

	archiver, closeArchiver, err := buildArchiver(ctx, cfg.Archive)
	if err != nil {
		return err
	}
	defer closeArchiver()

	publisher, closePublisher, err := buildPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	defer closePublisher()

	discoverer := catalog.NewDiscoverer(catalog.DiscovererConfig{
		MenuContainer: cfg.Site.MenuContainer,
		MenuItemClass: cfg.Site.MenuItemClass,
		ListKeyParam:  cfg.Site.ListKeyParam,
		BaseURL:       cfg.Site.RootURL,
	}, logger)
	lister := catalog.NewLister(retrying, catalog.ListerConfig{
		ListAPIURL: cfg.Site.ListAPIURL,
		BaseURL:    cfg.Site.RootURL,
	}, logger)
	segmenter := segment.New(segment.Config{
		ArticleContainer: cfg.Site.ArticleContainer,
		SectionSelector:  cfg.Site.SectionSelector,
		MaxSegmentBytes:  cfg.Segment.MaxSegmentBytes,
		MaxKeywords:      cfg.Segment.MaxKeywords,
	})

	orch, err := harvest.NewOrchestrator(
		harvest.OrchestratorConfig{
			RootURL:     cfg.Site.RootURL,
			Concurrency: cfg.Harvest.Concurrency,
			QueueDepth:  cfg.Harvest.QueueDepth,
			EventTopic:  cfg.Harvest.EventTopic,
		},
		retrying,
		discoverer,
		lister,
		harvest.WorkerDeps{
			Fetcher:   retrying,
			Segmenter: segmenter,
			Store:     articleStore,
			Policy:    policy,
			Archiver:  archiver,
			Publisher: publisher,
			Emitter:   hub,
			Logger:    logger,
		},
		logger,
	)
	if err != nil {
		return err
	}
	logger.Info("starting harvest",
		zap.String("run_id", orch.RunID().String()),
		zap.String("root_url", cfg.Site.RootURL),
		zap.Int("concurrency", cfg.Harvest.Concurrency),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewServer(orch, registry, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("observability server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("server shutdown failed", zap.Error(err))
			}
		}()
		summary, err := orch.Run(gctx)
		logger.Info("harvest summary",
			zap.Int("discovered", summary.Discovered),
			zap.Int("stored", summary.Stored),
			zap.Int("deduplicated", summary.Deduplicated),
			zap.Int("failed", summary.FailedCount()),
		)
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("harvest: %w", err)
	}
	return nil
}

func buildArchiver(ctx context.Context, cfg config.ArchiveConfig) (harvest.Archiver, func(), error) {
	noop := func() {}
	switch cfg.Mode {
	case "", "off":
		return nil, noop, nil
	case "local":
		a, err := archive.NewLocalArchive(cfg.LocalDir)
		if err != nil {
			return nil, noop, fmt.Errorf("init local archive: %w", err)
		}
		return a, noop, nil
	case "gcs":
		a, err := archive.NewGCSArchive(ctx, cfg.GCSBucket, cfg.Prefix)
		if err != nil {
			return nil, noop, fmt.Errorf("init gcs archive: %w", err)
		}
		return a, func() { _ = a.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("unknown archive mode %q", cfg.Mode)
	}
}

func buildPublisher(ctx context.Context, cfg config.Config) (harvest.Publisher, func(), error) {
	noop := func() {}
	if !cfg.PubSub.Enabled {
		return nil, noop, nil
	}
	p, err := pubsubpub.New(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, noop, fmt.Errorf("init pubsub publisher: %w", err)
	}
	return p, func() { _ = p.Close() }, nil
}
