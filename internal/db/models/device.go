package models

import (
	"github.com/mattn/go-nulltype"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// HistoryEntry is one lighting state transition. Both values are kept
// exactly as the history store returned them.
type HistoryEntry struct {
	State     any `json:"state"`
	Timestamp any `json:"timestamp"`
}

// CrashSummary is the crash information attached to a device row.
type CrashSummary struct {
	Process   string  `json:"process"`
	Timestamp *string `json:"timestamp"`
	DeviceID  *string `json:"device_id"`
	Content   string  `json:"content"`
}

// Device is the correlated snapshot of one device within one capture.
// DeviceID is only unique within its capture.
type Device struct {
	ID              uint                `json:"id" gorm:"primaryKey"`
	DeviceID        string              `json:"device_id" gorm:"size:255;not null;index"`
	CaptureID       uint                `json:"capture_id" gorm:"not null;index"`
	NetworkData     datatypes.JSON      `json:"network_data" gorm:"not null"`
	HealthData      datatypes.JSON      `json:"health_data"`
	RelatedCrashes  datatypes.JSON      `json:"related_crashes"`
	LightingHistory datatypes.JSON      `json:"lighting_history"`
	SystemStats     nulltype.NullString `json:"system_stats" gorm:"type:text"`
	WifiData        nulltype.NullString `json:"wifi_data" gorm:"type:text"`
}

func (d Device) TableName() string {
	return "devices"
}

func ListDevicesForCapture(db *gorm.DB, captureID uint) ([]Device, error) {
	var devices []Device
	err := db.Where("capture_id = ?", captureID).Order("id asc").Find(&devices).Error
	return devices, err
}

func CountDevicesForCapture(db *gorm.DB, captureID uint) (int64, error) {
	var count int64
	err := db.Model(&Device{}).Where("capture_id = ?", captureID).Count(&count).Error
	return count, err
}

type captureDeviceCount struct {
	CaptureID   uint
	DeviceCount int64
}

// CountDevicesByCapture returns the device count of every capture in a project, keyed by capture ID.
func CountDevicesByCapture(db *gorm.DB, projectID uint) (map[uint]int64, error) {
	var rows []captureDeviceCount
	err := db.Model(&Device{}).
		Select("devices.capture_id AS capture_id, COUNT(devices.id) AS device_count").
		Joins("JOIN captures ON captures.id = devices.capture_id").
		Where("captures.project_id = ?", projectID).
		Group("devices.capture_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[uint]int64, len(rows))
	for _, row := range rows {
		counts[row.CaptureID] = row.DeviceCount
	}
	return counts, nil
}
