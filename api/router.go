package api

import (
	"github.com/gin-gonic/gin"

	"marketingflow/config"
)

func SetupRouter(h *Handler, cfg *config.Config) *gin.Engine {
	r := gin.Default()
	r.MaxMultipartMemory = 32 << 20

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	v1.Use(AuthMiddleware(cfg))
	{
		v1.GET("/state", h.handleState)

		// Synchronous analyses
		v1.POST("/page/analyze", h.handleAnalyzePage)
		v1.POST("/video/analyze", h.handleAnalyzeVideo)

		// Scene selection
		v1.POST("/video/scenes/:index/toggle", h.handleToggleScene)
		v1.GET("/video/scenes/:index/times", h.handleSceneTimes)
		v1.DELETE("/video/scenes/selection", h.handleClearSelection)

		// Polled jobs
		v1.POST("/media", h.handleStartMedia)
		v1.POST("/remix", h.handleStartRemix)
		v1.GET("/jobs/:kind", h.handleGetJob)

		// Deliverables and exports
		v1.GET("/deliverables", h.handleDeliverables)
		v1.GET("/deliverables.csv", h.handleExportCSV)
		v1.GET("/deliverables.xlsx", h.handleExportXLSX)
	}
	return r
}
