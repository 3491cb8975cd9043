package controllers

import (
	"log/slog"
	"net/http"

	"github.com/USA-RedDragon/logcapture-server/internal/ingest"
	"github.com/USA-RedDragon/logcapture-server/internal/server/apimodels"
	"github.com/gin-gonic/gin"
	"github.com/go-errors/errors"
)

const uploadFormField = "file"

func POSTUpload(c *gin.Context) {
	pipeline, ok := c.MustGet("pipeline").(*ingest.Pipeline)
	if !ok {
		slog.Error("Failed to get pipeline from context")
		c.JSON(http.StatusInternalServerError, apimodels.ErrorResponse{Detail: "Try again later"})
		return
	}

	fileHeader, err := c.FormFile(uploadFormField)
	if err != nil {
		c.JSON(http.StatusBadRequest, apimodels.ErrorResponse{Detail: "A diagnostic archive must be uploaded in the \"file\" field"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		slog.Error("Failed to open uploaded file", "filename", fileHeader.Filename, "error", err)
		c.JSON(http.StatusInternalServerError, apimodels.ErrorResponse{Detail: "Error processing upload"})
		return
	}
	defer file.Close()

	result, err := pipeline.Ingest(c.Request.Context(), fileHeader.Filename, file)
	if err != nil {
		status, detail := uploadError(err)
		slog.Error("Upload error", "filename", fileHeader.Filename, "status", status, "error", err)
		c.JSON(status, apimodels.ErrorResponse{Detail: detail})
		return
	}

	c.JSON(http.StatusOK, apimodels.UploadResponse{
		Message:          "File processed successfully",
		DevicesProcessed: result.DevicesProcessed,
		ProjectName:      result.ProjectName,
		Timestamp:        apimodels.FormatTimestamp(result.Timestamp),
	})
}

func uploadError(err error) (int, string) {
	var deviceErr *ingest.DeviceError
	switch {
	case ingest.IsClientError(err):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &deviceErr):
		return http.StatusInternalServerError, deviceErr.Error()
	default:
		return http.StatusInternalServerError, "Error processing upload"
	}
}
