package apimodels

import (
	"time"

	"gorm.io/datatypes"
)

// TimestampLayout formats capture timestamps: ISO 8601 without a zone.
const TimestampLayout = "2006-01-02T15:04:05"

func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

type ErrorResponse struct {
	Detail string `json:"detail"`
}

type UploadResponse struct {
	Message          string `json:"message"`
	DevicesProcessed int    `json:"devices_processed"`
	ProjectName      string `json:"project_name"`
	Timestamp        string `json:"timestamp"`
}

type Project struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

type Snapshot struct {
	NetworkData      datatypes.JSON `json:"network_data"`
	HealthData       datatypes.JSON `json:"health_data"`
	CaptureTimestamp string         `json:"capture_timestamp"`
}

type DeviceDiff struct {
	ID       uint      `json:"id"`
	DeviceID string    `json:"device_id"`
	Current  Snapshot  `json:"current"`
	Previous *Snapshot `json:"previous"`
}

type CaptureStats struct {
	CaptureID   uint   `json:"capture_id"`
	Timestamp   string `json:"timestamp"`
	DeviceCount int64  `json:"device_count"`
}

type ProjectStatsResponse struct {
	ProjectName string         `json:"project_name"`
	Captures    []CaptureStats `json:"captures"`
}

type CrashReport struct {
	ID              uint    `json:"id"`
	ProcessName     string  `json:"process_name"`
	Timestamp       *string `json:"timestamp"`
	CrashData       string  `json:"crash_data"`
	RelatedDeviceID *string `json:"related_device_id"`
}
