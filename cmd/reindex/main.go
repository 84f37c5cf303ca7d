package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/memexpert/memexpert/internal/config"
	"github.com/memexpert/memexpert/internal/logger"
	"github.com/memexpert/memexpert/internal/media"
	"github.com/memexpert/memexpert/internal/repository"
	"github.com/memexpert/memexpert/internal/service"
)

func main() {
	var (
		configPath = flag.String("config", os.Getenv("CONFIG_PATH"), "path to config file")
		healOnly   = flag.Bool("heal", false, "reconcile missing/orphaned points instead of a full rebuild")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.New(&logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: "memexpert-reindex",
	})
	logger.SetDefaultLogger(appLogger)

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	memeRepo := repository.NewMemeRepository(db)
	fileCacheRepo := repository.NewFileCacheRepository(db)

	qdrantRepo, err := repository.NewQdrantRepository(&repository.QdrantConnectionConfig{
		Host:            cfg.Qdrant.Host,
		Port:            cfg.Qdrant.Port,
		Collection:      cfg.Qdrant.Collection,
		APIKey:          cfg.Qdrant.APIKey,
		UseTLS:          cfg.Qdrant.UseTLS,
		VectorDimension: cfg.Embed.Dimensions,
		Distance:        cfg.Embed.Distance,
		Spaces:          []string{cfg.Embed.TextSpace, cfg.Embed.ImageSpace},
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize Qdrant repository")
	}
	defer qdrantRepo.Close()

	embedder := service.NewJinaEmbedder(&service.EmbeddingConfig{
		APIKey:     cfg.Embed.APIKey,
		BaseURL:    cfg.Embed.BaseURL,
		Model:      cfg.Embed.Model,
		Dimensions: cfg.Embed.Dimensions,
	})

	fetcher := media.NewFetcher(&media.FetcherConfig{
		BaseURL: cfg.Media.HostBaseURL,
		Token:   cfg.Media.HostToken,
	}, fileCacheRepo, appLogger)
	mediaService := media.NewService(fetcher, nil, appLogger)

	indexer := service.NewIndexer(memeRepo, qdrantRepo, embedder, mediaService, appLogger, &service.IndexerConfig{
		TextSpace:   cfg.Embed.TextSpace,
		ImageSpace:  cfg.Embed.ImageSpace,
		PacingDelay: cfg.Index.PacingDelay,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var stats *service.MaintenanceStats
	if *healOnly {
		if err := qdrantRepo.EnsureCollection(ctx); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure Qdrant collection")
		}
		stats, err = indexer.Heal(ctx)
	} else {
		stats, err = indexer.ReindexAll(ctx)
	}
	if err != nil {
		appLogger.WithError(err).Fatal("Index maintenance failed")
	}

	appLogger.WithFields(logger.Fields{
		"total":   stats.Total,
		"synced":  stats.Synced,
		"skipped": stats.Skipped,
		"deleted": stats.Deleted,
		"failed":  stats.Failed,
	}).Info("Index maintenance completed")
}
