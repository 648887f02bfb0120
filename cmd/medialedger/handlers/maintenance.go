package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lyzr/medialedger/cmd/medialedger/service"
	"github.com/lyzr/medialedger/common/bootstrap"
	"github.com/lyzr/medialedger/common/models"
)

// MaintenanceHandler exposes operator-triggered maintenance tasks
type MaintenanceHandler struct {
	components *bootstrap.Components
	reclaimer  *service.ReclaimerService
}

// NewMaintenanceHandler creates a new maintenance handler
func NewMaintenanceHandler(components *bootstrap.Components, reclaimer *service.ReclaimerService) *MaintenanceHandler {
	return &MaintenanceHandler{
		components: components,
		reclaimer:  reclaimer,
	}
}

// Reclaim triggers one reclamation run outside the timer, behind the same
// advisory lock as scheduled runs
// POST /api/v1/maintenance/reclaim
func (h *MaintenanceHandler) Reclaim(c echo.Context) error {
	stats, err := h.reclaimer.Run(c.Request().Context())
	if err != nil {
		if errors.Is(err, models.ErrSweepLocked) {
			return c.JSON(http.StatusConflict, map[string]interface{}{
				"error":   "sweep_running",
				"message": "a reclamation sweep is already running",
			})
		}
		h.components.Logger.Error("manual reclamation failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "reclamation failed")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"temp_purged":     stats.TempPurged,
		"archived_purged": stats.ArchivedPurged,
		"skipped":         stats.Skipped,
		"remote_failures": stats.RemoteFailures,
	})
}
