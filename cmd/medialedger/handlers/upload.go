package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lyzr/medialedger/cmd/medialedger/service"
	"github.com/lyzr/medialedger/common/bootstrap"
	"github.com/lyzr/medialedger/common/models"
)

// maxUploadBytes caps how much of an upload is read into memory.
const maxUploadBytes = 32 << 20 // 32 MiB

// UploadHandler handles asset uploads
type UploadHandler struct {
	components *bootstrap.Components
	uploadSvc  *service.UploadService
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(components *bootstrap.Components, uploadSvc *service.UploadService) *UploadHandler {
	return &UploadHandler{
		components: components,
		uploadSvc:  uploadSvc,
	}
}

// Upload accepts a media upload and returns the (possibly deduplicated) asset
// POST /api/v1/assets
// multipart fields: file, origin_source, origin_context, intended_use (optional)
func (h *UploadHandler) Upload(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file field is required")
	}
	if fileHeader.Size > maxUploadBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "upload exceeds size limit")
	}

	src, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to open upload")
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxUploadBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read upload")
	}
	if len(data) > maxUploadBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "upload exceeds size limit")
	}

	origin := models.Origin{
		Source:  c.FormValue("origin_source"),
		Context: c.FormValue("origin_context"),
	}
	if origin.Source == "" || origin.Context == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "origin_source and origin_context are required")
	}

	var intendedUse *string
	if v := c.FormValue("intended_use"); v != "" {
		intendedUse = &v
	}

	result, err := h.uploadSvc.Upload(c.Request().Context(), data, origin, intendedUse)
	if err != nil {
		if errors.Is(err, models.ErrRemoteUpload) {
			h.components.Logger.Error("upload rejected by object store", "error", err)
			return echo.NewHTTPError(http.StatusBadGateway, "object store rejected the upload")
		}
		h.components.Logger.Error("upload failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "upload failed")
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}

	return c.JSON(status, map[string]interface{}{
		"asset_id":     result.Asset.AssetID,
		"storage_key":  result.Asset.StorageKey,
		"delivery_url": result.Asset.DeliveryURL,
		"status":       result.Asset.Status,
		"duplicate":    result.Duplicate,
	})
}
