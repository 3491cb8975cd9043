package ingest_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/USA-RedDragon/logcapture-server/internal/db/models"
	"github.com/USA-RedDragon/logcapture-server/internal/ingest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullCrash = `Incident Identifier: 1234
Process:         lightingd [412]
Date/Time:       2024-01-15 09:29:58
Device ID: AABBCC
Exception Type:  SIGSEGV
`

func TestParseCrashTextAllMarkers(t *testing.T) {
	t.Parallel()

	crash := ingest.ParseCrashText(fullCrash)
	assert.Equal(t, "lightingd", crash.Process)
	require.NotNil(t, crash.Timestamp)
	assert.Equal(t, "2024-01-15 09:29:58", *crash.Timestamp)
	require.NotNil(t, crash.DeviceID)
	assert.Equal(t, "AABBCC", *crash.DeviceID)
	assert.Equal(t, fullCrash, crash.Content)
}

func TestParseCrashTextNoMarkers(t *testing.T) {
	t.Parallel()

	content := `{"state":"found","ip":"10.0.0.4"}`
	crash := ingest.ParseCrashText(content)
	assert.Equal(t, models.UnknownProcess, crash.Process)
	assert.Nil(t, crash.Timestamp)
	assert.Nil(t, crash.DeviceID)
	assert.Equal(t, content, crash.Content)
}

func TestParseCrashTextLowercaseDeviceID(t *testing.T) {
	t.Parallel()

	crash := ingest.ParseCrashText("Device ID: aabbcc")
	assert.Nil(t, crash.DeviceID)
}

func TestParseCrashReportUnreadable(t *testing.T) {
	t.Parallel()

	assert.Nil(t, ingest.ParseCrashReport(filepath.Join(t.TempDir(), "missing")))
}

func TestParseCrashReportFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "AABBCC")
	require.NoError(t, os.WriteFile(path, []byte(fullCrash), 0o600))

	crash := ingest.ParseCrashReport(path)
	require.NotNil(t, crash)
	assert.Equal(t, "lightingd", crash.Process)
}

func TestCrashRecord(t *testing.T) {
	t.Parallel()

	record := ingest.ParseCrashText(fullCrash).Record()
	assert.Equal(t, "lightingd", record.ProcessName)
	assert.Equal(t, fullCrash, record.CrashData)
	require.NotNil(t, record.Timestamp)
	assert.True(t, time.Date(2024, 1, 15, 9, 29, 58, 0, time.UTC).Equal(*record.Timestamp))
	assert.True(t, record.RelatedDeviceID.Valid())
	assert.Equal(t, "AABBCC", record.RelatedDeviceID.String())
}

func TestCrashRecordUnparsableTimestamp(t *testing.T) {
	t.Parallel()

	record := ingest.ParseCrashText("Process: lightingd\nDate/Time: last tuesday\n").Record()
	assert.Nil(t, record.Timestamp)
	assert.False(t, record.RelatedDeviceID.Valid())
}
