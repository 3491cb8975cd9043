package server

import (
	"log/slog"
	"net/http"

	"github.com/USA-RedDragon/logcapture-server/internal/server/apimodels"
	"github.com/USA-RedDragon/logcapture-server/internal/server/controllers"
	"github.com/gin-gonic/gin"
)

func applyRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	r.POST("/upload", controllers.POSTUpload)
	r.GET("/projects", controllers.GETProjects)

	project := r.Group("/project/:id")
	project.GET("/devices", controllers.GETProjectDevices)
	project.GET("/stats", controllers.GETProjectStats)
	project.GET("/captures/:capture_id/crashes", controllers.GETCaptureCrashes)

	r.NoRoute(func(c *gin.Context) {
		slog.Warn("Not Found", "path", c.Request.URL.Path)
		c.JSON(http.StatusNotFound, apimodels.ErrorResponse{Detail: "Not Found"})
	})
}
