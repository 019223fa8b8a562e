package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/getcomics-go/api/handlers"
	"github.com/yourusername/getcomics-go/api/middleware"
	"github.com/yourusername/getcomics-go/internal/app"
	"github.com/yourusername/getcomics-go/pkg/logger"
)

// RouterDeps are the components served over HTTP
type RouterDeps struct {
	QueueMgr     *app.QueueManager
	DownloadMgr  *app.DownloadManager
	Searcher     handlers.Searcher
	BaseDir      string
	Accelerated  bool
	DefaultQuota int
	Logger       *zap.Logger
	MultiLogger  *logger.MultiLogger
}

// SetupRouter sets up the HTTP router
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()

	// Middleware
	router.Use(middleware.Logger(log, deps.MultiLogger))
	router.Use(middleware.Recovery(log, deps.MultiLogger))
	router.Use(middleware.CORS())

	// Health endpoints
	healthHandler := handlers.NewHealthHandler(deps.QueueMgr)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		searchHandler := handlers.NewSearchHandler(deps.Searcher, deps.DefaultQuota, log)
		v1.POST("/search", searchHandler.Search)

		downloadHandler := handlers.NewDownloadHandler(deps.QueueMgr, deps.DownloadMgr, deps.BaseDir, deps.Accelerated, log)
		downloads := v1.Group("/downloads")
		{
			downloads.POST("", downloadHandler.AddDownloads)
			downloads.GET("", downloadHandler.ListDownloads)
			downloads.GET("/stats", downloadHandler.GetStats)
		}

		batches := v1.Group("/batches")
		{
			batches.GET("", downloadHandler.ListBatches)
			batches.GET("/:id", downloadHandler.GetBatch)
		}

		v1.POST("/recover", downloadHandler.Recover)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router
}
