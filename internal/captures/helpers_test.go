package captures_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/USA-RedDragon/logcapture-server/internal/config"
	"github.com/USA-RedDragon/logcapture-server/internal/db"
	"github.com/USA-RedDragon/logcapture-server/internal/db/models"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func makeTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	cfg := &config.Config{}
	cfg.Persistence.Database.Driver = config.DatabaseDriverSQLite
	cfg.Persistence.Database.Database = filepath.Join(t.TempDir(), "test.db")
	testDB, err := db.MakeDB(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, err := testDB.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})
	return testDB
}

func seedProject(t *testing.T, testDB *gorm.DB, name string) models.Project {
	t.Helper()
	project, err := models.FirstOrCreateProject(testDB, name)
	require.NoError(t, err)
	return project
}

func seedCapture(t *testing.T, testDB *gorm.DB, project models.Project, timestamp time.Time, networkData map[string]string) models.Capture {
	t.Helper()
	capture := models.Capture{ProjectID: project.ID, Timestamp: timestamp}
	require.NoError(t, testDB.Create(&capture).Error)
	for deviceID, data := range networkData {
		device := models.Device{
			DeviceID:    deviceID,
			CaptureID:   capture.ID,
			NetworkData: datatypes.JSON(data),
		}
		require.NoError(t, testDB.Create(&device).Error)
	}
	return capture
}

func at(hour int) time.Time {
	return time.Date(2024, time.January, 15, hour, 0, 0, 0, time.UTC)
}
