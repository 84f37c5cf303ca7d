package api

import (
	"github.com/gin-gonic/gin"
	"github.com/memexpert/memexpert/internal/api/handler"
	"github.com/memexpert/memexpert/internal/api/middleware"
	"github.com/memexpert/memexpert/internal/logger"
	"github.com/memexpert/memexpert/internal/media"
	"github.com/memexpert/memexpert/internal/service"
)

// RouterConfig holds router-level configuration.
type RouterConfig struct {
	Mode string
	CORS middleware.CORSConfig
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	searchService *service.SearchService,
	contentService *service.ContentService,
	indexer *service.Indexer,
	mediaService *media.Service,
	log *logger.Logger,
	cfg RouterConfig,
) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS(cfg.CORS))

	healthHandler := handler.NewHealthHandler()
	searchHandler := handler.NewSearchHandler(searchService)
	memeHandler := handler.NewMemeHandler(contentService, mediaService)
	adminHandler := handler.NewAdminHandler(indexer, contentService)

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/search", searchHandler.Search)
		v1.POST("/search/chosen", searchHandler.Chosen)

		v1.GET("/memes/:slug", memeHandler.GetBySlug)
		v1.GET("/similar/:id", searchHandler.Similar)

		admin := v1.Group("/admin")
		{
			admin.POST("/reindex", adminHandler.Reindex)
			admin.POST("/heal", adminHandler.Heal)
			admin.POST("/memes", adminHandler.CreateMeme)
			admin.PUT("/translations", adminHandler.UpsertTranslation)
		}
	}

	return r
}
