package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/phambaophuc/vehicle-damage/internal/config"
	"github.com/phambaophuc/vehicle-damage/internal/http/handlers"
	"github.com/phambaophuc/vehicle-damage/internal/http/middleware"
	"go.uber.org/zap"
)

type Router struct {
	analysisHandler *handlers.AnalysisHandler
	storage         config.StorageConfig
	logger          *zap.Logger
}

func NewRouter(
	analysisHandler *handlers.AnalysisHandler,
	storage config.StorageConfig,
	logger *zap.Logger,
) *Router {
	return &Router{
		analysisHandler: analysisHandler,
		storage:         storage,
		logger:          logger,
	}
}

func (r *Router) SetupRoutes() *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(r.logger))
	router.Use(middleware.ErrorHandler(r.logger))
	router.Use(middleware.CORS())
	router.Use(middleware.SecurityHeaders())

	// Multipart framing needs headroom over the file itself.
	upload := []gin.HandlerFunc{
		middleware.LimitBody(r.storage.MaxFileSize + 1<<20),
		middleware.ValidateContentType(r.storage.AllowedTypes),
		r.analysisHandler.Analyze,
	}

	router.GET("/", r.analysisHandler.Root)
	router.GET("/health", r.analysisHandler.HealthCheck)
	router.POST("/analyze", upload...)
	router.POST("/ml/analyze", upload...)

	// API version 1
	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", r.analysisHandler.HealthCheck)
		v1.GET("/stats", r.analysisHandler.GetStats)
		v1.POST("/analyze", upload...)
	}

	return router
}
