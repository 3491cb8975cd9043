package models

import (
	"time"

	"gorm.io/gorm"
)

// Capture is one ingested diagnostic archive. Timestamp comes from the
// archive filename, not from the time of upload.
type Capture struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	ProjectID uint      `json:"project_id" gorm:"not null;index:idx_captures_project_timestamp,priority:1"`
	Timestamp time.Time `json:"timestamp" gorm:"not null;index:idx_captures_project_timestamp,priority:2"`
	CreatedAt time.Time `json:"created_at"`
}

func (c Capture) TableName() string {
	return "captures"
}

func FindCaptureForProject(db *gorm.DB, projectID, captureID uint) (Capture, error) {
	var capture Capture
	err := db.Where("project_id = ? AND id = ?", projectID, captureID).First(&capture).Error
	return capture, err
}

func FindLatestCapture(db *gorm.DB, projectID uint) (Capture, error) {
	var capture Capture
	err := db.Where("project_id = ?", projectID).Order("timestamp desc").Order("id desc").First(&capture).Error
	return capture, err
}

// FindPreviousCapture returns the capture with the greatest timestamp strictly before the given one.
func FindPreviousCapture(db *gorm.DB, projectID uint, before time.Time) (Capture, error) {
	var capture Capture
	err := db.Where("project_id = ? AND timestamp < ?", projectID, before).
		Order("timestamp desc").Order("id desc").First(&capture).Error
	return capture, err
}

func ListCapturesForProject(db *gorm.DB, projectID uint) ([]Capture, error) {
	var captures []Capture
	err := db.Where("project_id = ?", projectID).Order("timestamp asc").Order("id asc").Find(&captures).Error
	return captures, err
}
