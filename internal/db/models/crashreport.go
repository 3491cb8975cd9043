package models

import (
	"time"

	"github.com/mattn/go-nulltype"
	"gorm.io/gorm"
)

const UnknownProcess = "unknown"

type CrashReport struct {
	ID              uint                `json:"id" gorm:"primaryKey"`
	CaptureID       uint                `json:"capture_id" gorm:"not null;index"`
	ProcessName     string              `json:"process_name" gorm:"size:255;not null;default:unknown"`
	Timestamp       *time.Time          `json:"timestamp"`
	CrashData       string              `json:"crash_data" gorm:"type:text"`
	RelatedDeviceID nulltype.NullString `json:"related_device_id" gorm:"type:text"`
}

func (c CrashReport) TableName() string {
	return "crash_reports"
}

func ListCrashReportsForCapture(db *gorm.DB, captureID uint) ([]CrashReport, error) {
	var reports []CrashReport
	err := db.Where("capture_id = ?", captureID).Order("id asc").Find(&reports).Error
	return reports, err
}
