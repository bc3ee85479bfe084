// The backfill command runs a one-shot ingestion for a single store,
// for operator use and cron schedules that do not go through the API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BarkinBalci/attribution-engine/internal/config"
	"github.com/BarkinBalci/attribution-engine/internal/logger"
	"github.com/BarkinBalci/attribution-engine/internal/matching"
	"github.com/BarkinBalci/attribution-engine/internal/orders"
	"github.com/BarkinBalci/attribution-engine/internal/pipeline"
	"github.com/BarkinBalci/attribution-engine/internal/repository"
	"github.com/BarkinBalci/attribution-engine/internal/repository/clickhouse"
	"github.com/BarkinBalci/attribution-engine/internal/repository/memory"
	"github.com/BarkinBalci/attribution-engine/internal/service"
	"github.com/BarkinBalci/attribution-engine/internal/taxonomy"
)

func main() {
	var (
		storeID string
		days    int
		dryRun  bool
	)

	rootCmd := &cobra.Command{
		Use:   "backfill",
		Short: "Run a one-shot order backfill for a store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), storeID, days, dryRun)
		},
	}

	rootCmd.Flags().StringVar(&storeID, "store", "", "store ID to backfill (required)")
	rootCmd.Flags().IntVar(&days, "days", service.DefaultBackfillDays, "trailing window in days (1-30)")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "ingest into an in-memory store, printing the summary without persisting")
	if err := rootCmd.MarkFlagRequired("store"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, storeID string, days int, dryRun bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.Service.Environment)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = log.Sync()
	}()

	creds, err := orders.StaticCredentialsFromJSON(cfg.Upstream.StoreCredentials)
	if err != nil {
		return err
	}
	feed := orders.NewHTTPFeed(creds)

	var repo repository.EventRepository
	var resolver taxonomy.Resolver = taxonomy.NopResolver{}

	if dryRun {
		log.Info("Dry run: using in-memory event store")
		repo = memory.NewRepository()
	} else {
		client, err := clickhouse.NewClient(ctx, &cfg.ClickHouse, log)
		if err != nil {
			return fmt.Errorf("failed to create ClickHouse client: %w", err)
		}
		chRepo := clickhouse.NewRepository(client, log)
		defer func() {
			if err := chRepo.Close(); err != nil {
				log.Error("Failed to close repository", zap.Error(err))
			}
		}()
		if err := chRepo.InitSchema(ctx); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
		repo = chRepo

		index, err := taxonomy.NewIndex(taxonomy.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
			TTL:      time.Duration(cfg.Backfill.TaxonomyCacheTTLMin) * time.Minute,
		}, log)
		if err != nil {
			log.Warn("Taxonomy index unavailable, UTM resolution disabled", zap.Error(err))
		} else {
			defer func() {
				if err := index.Close(); err != nil {
					log.Error("Failed to close taxonomy index", zap.Error(err))
				}
			}()
			resolver = index
		}
	}

	thresholds := matching.Thresholds{
		Version:    matching.ThresholdsVersion,
		ClickID:    cfg.Matching.ClickIDThreshold,
		FBC:        cfg.Matching.FBCThreshold,
		FBPOrEmail: cfg.Matching.FBPOrEmailThreshold,
		Floor:      cfg.Matching.FloorThreshold,
	}
	matcher := matching.NewMatcher(repo, thresholds, log)
	backfill := pipeline.NewBackfill(feed, repo, matcher, resolver, pipeline.Config{
		PageSize:         cfg.Backfill.PageSize,
		MaxPages:         cfg.Backfill.MaxPages,
		ProximityWindow:  time.Duration(cfg.Backfill.ProximityWindowMin) * time.Minute,
		ExecutionCeiling: time.Duration(cfg.Backfill.ExecutionCeilingSec) * time.Second,
	}, log)

	svc := service.NewAttributionService(backfill, nil, creds, repo, log)
	summary, err := svc.RunBackfill(ctx, storeID, days)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
