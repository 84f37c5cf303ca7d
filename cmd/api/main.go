package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/memexpert/memexpert/internal/api"
	"github.com/memexpert/memexpert/internal/api/middleware"
	"github.com/memexpert/memexpert/internal/cache"
	"github.com/memexpert/memexpert/internal/config"
	"github.com/memexpert/memexpert/internal/logger"
	"github.com/memexpert/memexpert/internal/media"
	"github.com/memexpert/memexpert/internal/repository"
	"github.com/memexpert/memexpert/internal/service"
)

func main() {
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.New(&logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: "memexpert-api",
		File:        cfg.Log.File,
		MaxSizeMB:   cfg.Log.MaxSizeMB,
		MaxBackups:  cfg.Log.MaxBackups,
		MaxAgeDays:  cfg.Log.MaxAgeDays,
	})
	logger.SetDefaultLogger(appLogger)

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	memeRepo := repository.NewMemeRepository(db)
	usageRepo := repository.NewUsageRepository(db)
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

	ctx := context.Background()
	if err := qdrantRepo.EnsureCollection(ctx); err != nil {
		appLogger.WithError(err).Fatal("Failed to ensure Qdrant collection")
	}

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

	var mirror *media.S3Storage
	if cfg.Media.S3Endpoint != "" {
		mirror, err = media.NewS3Storage(&media.S3Config{
			Endpoint:  cfg.Media.S3Endpoint,
			AccessKey: cfg.Media.S3AccessKey,
			SecretKey: cfg.Media.S3SecretKey,
			UseSSL:    cfg.Media.S3UseSSL,
			Bucket:    cfg.Media.S3Bucket,
			Region:    cfg.Media.S3Region,
			PublicURL: cfg.Media.PublicURL,
		})
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize object storage")
		}
		if err := mirror.EnsureBucket(ctx); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure storage bucket")
		}
	}
	mediaService := media.NewService(fetcher, mirror, appLogger)

	indexer := service.NewIndexer(memeRepo, qdrantRepo, embedder, mediaService, appLogger, &service.IndexerConfig{
		TextSpace:   cfg.Embed.TextSpace,
		ImageSpace:  cfg.Embed.ImageSpace,
		PacingDelay: cfg.Index.PacingDelay,
	})

	var popularCache service.PopularCache
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		popularCache = cache.NewPopularCache(rdb, cfg.Search.PopularCacheTTL)
	}

	searchService := service.NewSearchService(
		memeRepo,
		usageRepo,
		qdrantRepo,
		embedder,
		popularCache,
		appLogger,
		service.SearchConfig{
			TextSpace:          cfg.Embed.TextSpace,
			ImageSpace:         cfg.Embed.ImageSpace,
			TextPrefetchLimit:  cfg.Search.TextPrefetchLimit,
			ImagePrefetchLimit: cfg.Search.ImagePrefetchLimit,
			PageSize:           cfg.Search.PageSize,
			RRFK:               cfg.Search.RRFK,
			DuplicateThreshold: cfg.Search.DuplicateThreshold,
			PopularWindow:      cfg.Search.PopularWindow,
		},
	)

	var metadataService *service.MetadataService
	if cfg.Metadata.Enabled && cfg.Metadata.APIKey != "" {
		metadataService = service.NewMetadataService(&service.MetadataConfig{
			Model:   cfg.Metadata.Model,
			APIKey:  cfg.Metadata.APIKey,
			BaseURL: cfg.Metadata.BaseURL,
		}, appLogger)
	}

	contentService := service.NewContentService(
		memeRepo,
		usageRepo,
		indexer,
		searchService,
		embedder,
		mediaService,
		metadataService,
		appLogger,
	)

	router := api.SetupRouter(searchService, contentService, indexer, mediaService, appLogger, api.RouterConfig{
		Mode: cfg.Server.Mode,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
