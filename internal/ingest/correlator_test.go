package ingest_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/USA-RedDragon/logcapture-server/internal/db/models"
	"github.com/USA-RedDragon/logcapture-server/internal/ingest"
	"github.com/go-errors/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func locate(t *testing.T, files map[string]string) ingest.CaptureLayout {
	t.Helper()
	root := writeTree(t, t.TempDir(), files)
	layout, err := ingest.LocateCapture(root)
	require.NoError(t, err)
	return layout
}

func TestCorrelateAllDevices(t *testing.T) {
	t.Parallel()
	layout := locate(t, map[string]string{
		"logcapture-1/" + networkDevicePath + "AABBCC": `{"state":"found","ip":"10.0.0.2"}`,
		"logcapture-1/" + networkDevicePath + "DDEEFF": `{"state":"lost"}`,
		"logcapture-1/" + networkDevicePath + "112233": `{"state":"found"}`,
		"logcapture-1/lighting/SystemHealth/AABBCC":    `{"cpu":12}`,
		"logcapture-1/lighting/wifilist.out":           "ssid-a\n",
	})

	correlation, err := ingest.Correlate(context.Background(), layout)
	require.NoError(t, err)
	require.Len(t, correlation.Devices, 3)
	require.Len(t, correlation.Crashes, 3)
	for _, crash := range correlation.Crashes {
		assert.Equal(t, models.UnknownProcess, crash.ProcessName)
		assert.False(t, crash.RelatedDeviceID.Valid())
	}

	byID := map[string]models.Device{}
	for _, device := range correlation.Devices {
		byID[device.DeviceID] = device
		assert.True(t, device.WifiData.Valid())
		assert.Equal(t, "ssid-a\n", device.WifiData.String())
		assert.False(t, device.SystemStats.Valid())
		assert.Nil(t, device.LightingHistory)
		assert.Nil(t, device.RelatedCrashes)
	}

	assert.JSONEq(t, `{"state":"found","ip":"10.0.0.2"}`, string(byID["AABBCC"].NetworkData))
	assert.JSONEq(t, `{"cpu":12}`, string(byID["AABBCC"].HealthData))
	assert.Nil(t, byID["DDEEFF"].HealthData)
}

func TestCorrelateInvalidNetworkData(t *testing.T) {
	t.Parallel()
	layout := locate(t, map[string]string{
		"logcapture-1/" + networkDevicePath + "AABBCC": `{"state":"found"}`,
		"logcapture-1/" + networkDevicePath + "DDEEFF": `{"state":`,
	})

	_, err := ingest.Correlate(context.Background(), layout)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ingest.ErrDeviceProcessing))
	assert.False(t, ingest.IsClientError(err))

	var deviceErr *ingest.DeviceError
	require.True(t, errors.As(err, &deviceErr))
	assert.Equal(t, "DDEEFF", deviceErr.DeviceID)
}

func TestCorrelateInvalidHealthData(t *testing.T) {
	t.Parallel()
	layout := locate(t, map[string]string{
		"logcapture-1/" + networkDevicePath + "AABBCC": `{"state":"found"}`,
		"logcapture-1/lighting/SystemHealth/AABBCC":    `not json`,
	})

	_, err := ingest.Correlate(context.Background(), layout)
	assert.True(t, errors.Is(err, ingest.ErrDeviceProcessing), "got %v", err)
}

func TestCorrelateCrashesAndHistory(t *testing.T) {
	t.Parallel()
	layout := locate(t, map[string]string{
		// AABBCC sorts first but the crash naming it lives in ZZ0001's entry.
		"logcapture-1/" + networkDevicePath + "AABBCC": `{"state":"lost"}`,
		"logcapture-1/" + networkDevicePath + "ZZ0001": `{"state":"found","log":"Process: lightingd Date/Time: 2024-01-15 09:29:58 Device ID: AABBCC"}`,
		"logcapture-1/lighting/systemstats":            "load 0.3",
	})
	makeHistoryStore(t, layout.HistoryStore, [][3]any{
		{"AABBCC", "on", 1},
		{"AABBCC", "off", 2},
	})

	correlation, err := ingest.Correlate(context.Background(), layout)
	require.NoError(t, err)
	require.Len(t, correlation.Devices, 2)
	require.Len(t, correlation.Crashes, 2)
	assert.Equal(t, models.UnknownProcess, correlation.Crashes[0].ProcessName)
	assert.Equal(t, "lightingd", correlation.Crashes[1].ProcessName)
	assert.Equal(t, "AABBCC", correlation.Crashes[1].RelatedDeviceID.String())

	device := correlation.Devices[0]
	require.Equal(t, "AABBCC", device.DeviceID)
	assert.Equal(t, "load 0.3", device.SystemStats.String())

	var related []models.CrashSummary
	require.NoError(t, json.Unmarshal(device.RelatedCrashes, &related))
	require.Len(t, related, 1)
	assert.Equal(t, "lightingd", related[0].Process)
	require.NotNil(t, related[0].DeviceID)
	assert.Equal(t, "AABBCC", *related[0].DeviceID)

	var history []map[string]any
	require.NoError(t, json.Unmarshal(device.LightingHistory, &history))
	require.Len(t, history, 2)
	assert.Equal(t, "off", history[0]["state"])

	other := correlation.Devices[1]
	assert.Equal(t, "ZZ0001", other.DeviceID)
	assert.Nil(t, other.RelatedCrashes)
	assert.Nil(t, other.LightingHistory)
}

func TestCorrelateDeviceWithoutCrashMarkers(t *testing.T) {
	t.Parallel()
	layout := locate(t, map[string]string{
		"logcapture-1/" + networkDevicePath + "AABBCC": `{"state":"found"}`,
	})

	correlation, err := ingest.Correlate(context.Background(), layout)
	require.NoError(t, err)
	require.Len(t, correlation.Devices, 1)
	require.Len(t, correlation.Crashes, 1)

	crash := correlation.Crashes[0]
	assert.Equal(t, models.UnknownProcess, crash.ProcessName)
	assert.Nil(t, crash.Timestamp)
	assert.False(t, crash.RelatedDeviceID.Valid())
	assert.Equal(t, `{"state":"found"}`, crash.CrashData)
	assert.Nil(t, correlation.Devices[0].RelatedCrashes)
}

func TestCorrelateEmptyNetworkDeviceDirectory(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"logcapture-1/lighting/wifilist.out": "",
	})
	require.NoError(t, mkdirAll(filepath.Join(root, "logcapture-1", "lighting", "NetworkDevice")))

	layout, err := ingest.LocateCapture(root)
	require.NoError(t, err)
	correlation, err := ingest.Correlate(context.Background(), layout)
	require.NoError(t, err)
	assert.Empty(t, correlation.Devices)
}
