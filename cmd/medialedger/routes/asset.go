package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/lyzr/medialedger/cmd/medialedger/container"
)

// RegisterAssetRoutes registers all asset lifecycle routes
func RegisterAssetRoutes(e *echo.Echo, c *container.Container) {
	api := e.Group("/api/v1")

	// Upload pipeline
	api.POST("/assets", c.UploadHandler.Upload)

	// Promotion and usage tracking
	api.POST("/assets/promote", c.AssetHandler.Promote)
	api.POST("/assets/detach", c.AssetHandler.Detach)

	// Deletion
	api.DELETE("/assets/:id", c.AssetHandler.DeleteAsset)
	api.POST("/assets/delete-batch", c.AssetHandler.DeleteBatch)

	// Reads
	api.GET("/assets/:id", c.AssetHandler.GetAsset)

	// Maintenance
	api.POST("/maintenance/reclaim", c.MaintenanceHandler.Reclaim)
}
