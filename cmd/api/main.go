package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BarkinBalci/attribution-engine/internal/config"
	"github.com/BarkinBalci/attribution-engine/internal/handler"
	"github.com/BarkinBalci/attribution-engine/internal/logger"
	"github.com/BarkinBalci/attribution-engine/internal/matching"
	"github.com/BarkinBalci/attribution-engine/internal/orders"
	"github.com/BarkinBalci/attribution-engine/internal/pipeline"
	"github.com/BarkinBalci/attribution-engine/internal/reporting"
	"github.com/BarkinBalci/attribution-engine/internal/repository/clickhouse"
	"github.com/BarkinBalci/attribution-engine/internal/service"
	"github.com/BarkinBalci/attribution-engine/internal/taxonomy"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	log, err := logger.New(cfg.Service.Environment)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer func(log *zap.Logger) {
		err := log.Sync()
		if err != nil {
			log.Error("Failed to sync logger", zap.Error(err))
		}
	}(log)

	log.Info("Starting attribution API service",
		zap.String("environment", cfg.Service.Environment),
		zap.String("port", cfg.Service.APIPort))

	ctx := context.Background()

	// Initialize ClickHouse client
	clickhouseClient, err := clickhouse.NewClient(ctx, &cfg.ClickHouse, log)
	if err != nil {
		log.Fatal("Failed to create ClickHouse client", zap.Error(err))
	}
	defer func(clickhouseClient *clickhouse.Client) {
		if err := clickhouseClient.Close(); err != nil {
			log.Error("Failed to close ClickHouse client", zap.Error(err))
		}
	}(clickhouseClient)

	// Initialize repository
	repo := clickhouse.NewRepository(clickhouseClient, log)
	if err := repo.InitSchema(ctx); err != nil {
		log.Fatal("Failed to initialize schema", zap.Error(err))
	}

	// Initialize taxonomy index
	index, err := taxonomy.NewIndex(taxonomy.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
		TTL:      time.Duration(cfg.Backfill.TaxonomyCacheTTLMin) * time.Minute,
	}, log)
	if err != nil {
		log.Fatal("Failed to create taxonomy index", zap.Error(err))
	}
	defer func(index *taxonomy.Index) {
		if err := index.Close(); err != nil {
			log.Error("Failed to close taxonomy index", zap.Error(err))
		}
	}(index)

	// Initialize upstream collaborators
	creds, err := orders.StaticCredentialsFromJSON(cfg.Upstream.StoreCredentials)
	if err != nil {
		log.Fatal("Failed to parse store credentials", zap.Error(err))
	}
	feed := orders.NewHTTPFeed(creds)

	// Initialize pipeline and aggregator
	thresholds := matching.Thresholds{
		Version:    matching.ThresholdsVersion,
		ClickID:    cfg.Matching.ClickIDThreshold,
		FBC:        cfg.Matching.FBCThreshold,
		FBPOrEmail: cfg.Matching.FBPOrEmailThreshold,
		Floor:      cfg.Matching.FloorThreshold,
	}
	matcher := matching.NewMatcher(repo, thresholds, log)
	backfill := pipeline.NewBackfill(feed, repo, matcher, index, pipeline.Config{
		PageSize:         cfg.Backfill.PageSize,
		MaxPages:         cfg.Backfill.MaxPages,
		ProximityWindow:  time.Duration(cfg.Backfill.ProximityWindowMin) * time.Minute,
		ExecutionCeiling: time.Duration(cfg.Backfill.ExecutionCeilingSec) * time.Second,
	}, log)
	aggregator := reporting.NewAggregator(repo, log)

	// Initialize attribution service
	attributionService := service.NewAttributionService(backfill, aggregator, creds, repo, log)

	// Initialize handler
	h := handler.NewHandler(attributionService, repo, index, log)

	addr := fmt.Sprintf(":%s", cfg.Service.APIPort)
	log.Info("API server starting", zap.String("address", addr))

	if err := http.ListenAndServe(addr, h); err != nil {
		log.Fatal("Failed to start API server", zap.Error(err))
	}
}
