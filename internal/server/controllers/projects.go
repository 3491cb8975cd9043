package controllers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/USA-RedDragon/logcapture-server/internal/captures"
	"github.com/USA-RedDragon/logcapture-server/internal/db/models"
	"github.com/USA-RedDragon/logcapture-server/internal/server/apimodels"
	"github.com/gin-gonic/gin"
	"github.com/go-errors/errors"
	"gorm.io/gorm"
)

func GETProjects(c *gin.Context) {
	db, ok := c.MustGet("db").(*gorm.DB)
	if !ok {
		slog.Error("Failed to get db from context")
		c.JSON(http.StatusInternalServerError, apimodels.ErrorResponse{Detail: "Try again later"})
		return
	}

	projects, err := models.ListProjects(db.WithContext(c.Request.Context()))
	if err != nil {
		slog.Error("Failed to list projects", "error", err)
		c.JSON(http.StatusInternalServerError, apimodels.ErrorResponse{Detail: "Try again later"})
		return
	}

	resp := make([]apimodels.Project, 0, len(projects))
	for _, project := range projects {
		resp = append(resp, apimodels.Project{
			ID:        project.ID,
			Name:      project.Name,
			CreatedAt: apimodels.FormatTimestamp(project.CreatedAt),
		})
	}
	c.JSON(http.StatusOK, resp)
}

func GETProjectDevices(c *gin.Context) {
	db, ok := c.MustGet("db").(*gorm.DB)
	if !ok {
		slog.Error("Failed to get db from context")
		c.JSON(http.StatusInternalServerError, apimodels.ErrorResponse{Detail: "Try again later"})
		return
	}

	projectID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	var captureID *uint
	if raw := c.Query("capture_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 0)
		if err != nil {
			c.JSON(http.StatusBadRequest, apimodels.ErrorResponse{Detail: "capture_id must be a positive integer"})
			return
		}
		parsed := uint(id)
		captureID = &parsed
	}

	diffs, err := captures.DiffDevices(c.Request.Context(), db, projectID, captureID)
	if err != nil {
		slog.Error("Failed to diff devices", "project_id", projectID, "error", err)
		c.JSON(http.StatusInternalServerError, apimodels.ErrorResponse{Detail: "Try again later"})
		return
	}

	resp := make([]apimodels.DeviceDiff, 0, len(diffs))
	for _, diff := range diffs {
		device := apimodels.DeviceDiff{
			ID:       diff.ID,
			DeviceID: diff.DeviceID,
			Current:  snapshot(diff.Current),
		}
		if diff.Previous != nil {
			previous := snapshot(*diff.Previous)
			device.Previous = &previous
		}
		resp = append(resp, device)
	}
	c.JSON(http.StatusOK, resp)
}

func GETProjectStats(c *gin.Context) {
	db, ok := c.MustGet("db").(*gorm.DB)
	if !ok {
		slog.Error("Failed to get db from context")
		c.JSON(http.StatusInternalServerError, apimodels.ErrorResponse{Detail: "Try again later"})
		return
	}

	projectID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	stats, err := captures.Stats(c.Request.Context(), db, projectID)
	if errors.Is(err, captures.ErrProjectNotFound) {
		c.JSON(http.StatusNotFound, apimodels.ErrorResponse{Detail: err.Error()})
		return
	}
	if err != nil {
		slog.Error("Failed to get project stats", "project_id", projectID, "error", err)
		c.JSON(http.StatusInternalServerError, apimodels.ErrorResponse{Detail: "Try again later"})
		return
	}

	resp := apimodels.ProjectStatsResponse{
		ProjectName: stats.ProjectName,
		Captures:    make([]apimodels.CaptureStats, 0, len(stats.Captures)),
	}
	for _, capture := range stats.Captures {
		resp.Captures = append(resp.Captures, apimodels.CaptureStats{
			CaptureID:   capture.CaptureID,
			Timestamp:   apimodels.FormatTimestamp(capture.Timestamp),
			DeviceCount: capture.DeviceCount,
		})
	}
	c.JSON(http.StatusOK, resp)
}

func GETCaptureCrashes(c *gin.Context) {
	db, ok := c.MustGet("db").(*gorm.DB)
	if !ok {
		slog.Error("Failed to get db from context")
		c.JSON(http.StatusInternalServerError, apimodels.ErrorResponse{Detail: "Try again later"})
		return
	}

	projectID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	captureID, ok := uintParam(c, "capture_id")
	if !ok {
		return
	}

	reports, err := captures.CrashReports(c.Request.Context(), db, projectID, captureID)
	if errors.Is(err, captures.ErrCaptureNotFound) {
		c.JSON(http.StatusNotFound, apimodels.ErrorResponse{Detail: err.Error()})
		return
	}
	if err != nil {
		slog.Error("Failed to list crash reports", "project_id", projectID, "capture_id", captureID, "error", err)
		c.JSON(http.StatusInternalServerError, apimodels.ErrorResponse{Detail: "Try again later"})
		return
	}

	resp := make([]apimodels.CrashReport, 0, len(reports))
	for _, report := range reports {
		crash := apimodels.CrashReport{
			ID:          report.ID,
			ProcessName: report.ProcessName,
			CrashData:   report.CrashData,
		}
		if report.Timestamp != nil {
			ts := apimodels.FormatTimestamp(*report.Timestamp)
			crash.Timestamp = &ts
		}
		if report.RelatedDeviceID.Valid() {
			deviceID := report.RelatedDeviceID.String()
			crash.RelatedDeviceID = &deviceID
		}
		resp = append(resp, crash)
	}
	c.JSON(http.StatusOK, resp)
}

func snapshot(s captures.Snapshot) apimodels.Snapshot {
	return apimodels.Snapshot{
		NetworkData:      s.NetworkData,
		HealthData:       s.HealthData,
		CaptureTimestamp: apimodels.FormatTimestamp(s.CaptureTimestamp),
	}
}

// uintParam reads a numeric path parameter, answering 400 itself when it is not one.
func uintParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, apimodels.ErrorResponse{Detail: name + " must be a positive integer"})
		return 0, false
	}
	return uint(id), true
}
