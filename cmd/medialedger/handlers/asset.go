package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lyzr/medialedger/cmd/medialedger/service"
	"github.com/lyzr/medialedger/common/bootstrap"
	"github.com/lyzr/medialedger/common/models"
)

// AssetHandler handles asset lifecycle operations
type AssetHandler struct {
	components   *bootstrap.Components
	lifecycleSvc *service.LifecycleService
}

// NewAssetHandler creates a new asset handler
func NewAssetHandler(components *bootstrap.Components, lifecycleSvc *service.LifecycleService) *AssetHandler {
	return &AssetHandler{
		components:   components,
		lifecycleSvc: lifecycleSvc,
	}
}

// GetAsset retrieves an asset by ID or storage key
// GET /api/v1/assets/:id
func (h *AssetHandler) GetAsset(c echo.Context) error {
	asset, err := h.lifecycleSvc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, models.ErrAssetNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "asset not found")
		}
		h.components.Logger.Error("failed to get asset", "id", c.Param("id"), "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to retrieve asset")
	}

	return c.JSON(http.StatusOK, asset)
}

type promoteRequest struct {
	StorageKey string `json:"storage_key"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
}

// Promote marks an asset permanent when an owning entity saves a reference
// POST /api/v1/assets/promote
func (h *AssetHandler) Promote(c echo.Context) error {
	var req promoteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.StorageKey == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "storage_key is required")
	}

	asset, err := h.lifecycleSvc.Promote(c.Request().Context(), req.StorageKey, req.EntityType, req.EntityID)
	if err != nil {
		return h.mapError(c, err, "promote", req.StorageKey)
	}

	return c.JSON(http.StatusOK, asset)
}

type detachRequest struct {
	StorageKey string `json:"storage_key"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
}

// Detach removes one owner reference from an asset
// POST /api/v1/assets/detach
func (h *AssetHandler) Detach(c echo.Context) error {
	var req detachRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.StorageKey == "" || req.EntityType == "" || req.EntityID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "storage_key, entity_type and entity_id are required")
	}

	asset, err := h.lifecycleSvc.Detach(c.Request().Context(), req.StorageKey, req.EntityType, req.EntityID)
	if err != nil {
		return h.mapError(c, err, "detach", req.StorageKey)
	}

	return c.JSON(http.StatusOK, asset)
}

// DeleteAsset handles a single deletion request
// DELETE /api/v1/assets/:id?force=true
func (h *AssetHandler) DeleteAsset(c echo.Context) error {
	force := c.QueryParam("force") == "true"

	result, err := h.lifecycleSvc.Delete(c.Request().Context(), c.Param("id"), force)
	if err != nil {
		return h.mapError(c, err, "delete", c.Param("id"))
	}

	resp := map[string]interface{}{
		"result":   result.Outcome,
		"asset_id": result.Asset.AssetID,
	}
	if result.Outcome == service.OutcomeArchived {
		resp["message"] = "asset archived; it will be permanently removed after the retention window"
		if result.Asset.ArchivedAt != nil {
			resp["archived_at"] = result.Asset.ArchivedAt
		}
	}

	return c.JSON(http.StatusOK, resp)
}

type batchDeleteRequest struct {
	IDs   []string `json:"ids"`
	Force bool     `json:"force"`
}

// DeleteBatch deletes several assets, reporting per-item outcomes
// POST /api/v1/assets/delete-batch
func (h *AssetHandler) DeleteBatch(c echo.Context) error {
	var req batchDeleteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.IDs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "ids is required")
	}

	results := h.lifecycleSvc.DeleteBatch(c.Request().Context(), req.IDs, req.Force)

	return c.JSON(http.StatusOK, map[string]interface{}{
		"results": results,
	})
}

// mapError translates lifecycle refusals into actionable responses: an
// in-use refusal names the blocking entities, a protected refusal explains
// the force flag.
func (h *AssetHandler) mapError(c echo.Context, err error, op, id string) error {
	var inUse *models.AssetInUseError
	switch {
	case errors.Is(err, models.ErrAssetNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "asset not found")
	case errors.As(err, &inUse):
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"error":   "asset_in_use",
			"message": inUse.Error(),
			"used_by": inUse.UsedBy,
		})
	case errors.Is(err, models.ErrUnknownOwnerKind):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrAssetArchived):
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"error":   "asset_archived",
			"message": "asset is in its archive grace period and cannot be promoted",
		})
	case errors.Is(err, models.ErrAssetProtected):
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"error":   "asset_protected",
			"message": "asset is permanent; pass force=true to archive it with a grace period",
		})
	default:
		h.components.Logger.Error("asset operation failed", "op", op, "id", id, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "operation failed")
	}
}
