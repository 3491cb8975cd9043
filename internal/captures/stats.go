package captures

import (
	"context"
	"time"

	"github.com/USA-RedDragon/logcapture-server/internal/db/models"
	"github.com/go-errors/errors"
	"gorm.io/gorm"
)

var (
	ErrProjectNotFound = errors.New("Project not found")
	ErrCaptureNotFound = errors.New("Capture not found")
)

type CaptureStats struct {
	CaptureID   uint
	Timestamp   time.Time
	DeviceCount int64
}

type ProjectStats struct {
	ProjectName string
	Captures    []CaptureStats
}

// Stats lists every capture of a project with its device count, oldest first.
func Stats(ctx context.Context, db *gorm.DB, projectID uint) (ProjectStats, error) {
	db = db.WithContext(ctx)

	project, err := models.FindProjectByID(db, projectID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ProjectStats{}, ErrProjectNotFound
	}
	if err != nil {
		return ProjectStats{}, err
	}

	captures, err := models.ListCapturesForProject(db, project.ID)
	if err != nil {
		return ProjectStats{}, err
	}
	counts, err := models.CountDevicesByCapture(db, project.ID)
	if err != nil {
		return ProjectStats{}, err
	}

	stats := ProjectStats{
		ProjectName: project.Name,
		Captures:    make([]CaptureStats, 0, len(captures)),
	}
	for _, capture := range captures {
		stats.Captures = append(stats.Captures, CaptureStats{
			CaptureID:   capture.ID,
			Timestamp:   capture.Timestamp,
			DeviceCount: counts[capture.ID],
		})
	}
	return stats, nil
}

// CrashReports lists the crash reports found in one capture of a project.
func CrashReports(ctx context.Context, db *gorm.DB, projectID, captureID uint) ([]models.CrashReport, error) {
	db = db.WithContext(ctx)

	capture, err := models.FindCaptureForProject(db, projectID, captureID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCaptureNotFound
	}
	if err != nil {
		return nil, err
	}
	return models.ListCrashReportsForCapture(db, capture.ID)
}
