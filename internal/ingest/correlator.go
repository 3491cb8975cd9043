package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/USA-RedDragon/logcapture-server/internal/db/models"
	"github.com/USA-RedDragon/logcapture-server/internal/tracing"
	"github.com/go-errors/errors"
	"github.com/mattn/go-nulltype"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"
)

var errNotJSON = errors.New("network data is not valid JSON")

// Correlation is everything gathered from one capture, ready to persist.
// CaptureID is left zero on every row.
type Correlation struct {
	Devices []models.Device
	Crashes []models.CrashReport
}

// captureSources holds the data read once per capture and shared by every device.
type captureSources struct {
	history     History
	wifi        nulltype.NullString
	systemStats nulltype.NullString
	crashes     []ParsedCrash
}

// Correlate builds one Device per entry of the capture's NetworkDevice
// directory. The first device whose network data is missing or unparsable
// aborts the whole capture with a *DeviceError.
func Correlate(ctx context.Context, layout CaptureLayout) (Correlation, error) {
	ctx, span := tracing.StartSpan(ctx, "ingest.Correlate")
	defer span.End()

	entries, err := os.ReadDir(layout.NetworkDeviceDir)
	if err != nil {
		tracing.RecordError(span, err)
		return Correlation{}, fmt.Errorf("%w: %w", ErrNoNetworkDeviceDirectory, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	sources := gatherSources(ctx, layout, entries)

	correlation := Correlation{
		Devices: make([]models.Device, 0, len(entries)),
	}
	for _, crash := range sources.crashes {
		correlation.Crashes = append(correlation.Crashes, crash.Record())
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return Correlation{}, ctx.Err()
		}
		device, err := correlateDevice(layout, entry.Name(), sources)
		if err != nil {
			tracing.RecordError(span, err)
			return Correlation{}, err
		}
		correlation.Devices = append(correlation.Devices, device)
	}

	span.SetAttributes(
		attribute.Int("ingest.devices", len(correlation.Devices)),
		attribute.Int("ingest.crashes", len(correlation.Crashes)),
	)
	return correlation, nil
}

func gatherSources(ctx context.Context, layout CaptureLayout, entries []fs.DirEntry) captureSources {
	var sources captureSources

	if fileExists(layout.HistoryStore) {
		sources.history = ReadStateHistory(ctx, layout.HistoryStore)
	} else {
		slog.Warn("No lighting history store in capture", "path", layout.HistoryStore)
	}
	sources.wifi = readOptionalText(layout.WifiFile)
	sources.systemStats = readOptionalText(layout.SystemStatsFile)

	for _, entry := range entries {
		crash := ParseCrashReport(filepath.Join(layout.NetworkDeviceDir, entry.Name()))
		if crash == nil {
			continue
		}
		sources.crashes = append(sources.crashes, *crash)
	}

	return sources
}

func correlateDevice(layout CaptureLayout, deviceID string, sources captureSources) (models.Device, error) {
	networkData, err := os.ReadFile(filepath.Join(layout.NetworkDeviceDir, deviceID))
	if err != nil {
		return models.Device{}, &DeviceError{DeviceID: deviceID, Err: err}
	}
	if !json.Valid(networkData) {
		return models.Device{}, &DeviceError{DeviceID: deviceID, Err: errNotJSON}
	}

	device := models.Device{
		DeviceID:    deviceID,
		NetworkData: datatypes.JSON(networkData),
		WifiData:    sources.wifi,
		SystemStats: sources.systemStats,
	}

	healthPath := filepath.Join(layout.SystemHealthDir, deviceID)
	if fileExists(healthPath) {
		healthData, err := os.ReadFile(healthPath)
		if err != nil {
			return models.Device{}, &DeviceError{DeviceID: deviceID, Err: err}
		}
		if !json.Valid(healthData) {
			return models.Device{}, &DeviceError{DeviceID: deviceID, Err: fmt.Errorf("health data for %s is not valid JSON", deviceID)}
		}
		device.HealthData = datatypes.JSON(healthData)
	} else {
		slog.Warn("No health data for device", "device_id", deviceID)
	}

	if entries := sources.history[deviceID]; len(entries) > 0 {
		history, err := json.Marshal(entries)
		if err != nil {
			return models.Device{}, &DeviceError{DeviceID: deviceID, Err: err}
		}
		device.LightingHistory = datatypes.JSON(history)
	}

	var related []models.CrashSummary
	for _, crash := range sources.crashes {
		if crash.DeviceID != nil && *crash.DeviceID == deviceID {
			related = append(related, crash.Summary())
		}
	}
	if len(related) > 0 {
		crashes, err := json.Marshal(related)
		if err != nil {
			return models.Device{}, &DeviceError{DeviceID: deviceID, Err: err}
		}
		device.RelatedCrashes = datatypes.JSON(crashes)
	}

	return device, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func readOptionalText(path string) nulltype.NullString {
	if !fileExists(path) {
		slog.Warn("Optional capture file missing", "path", path)
		return nulltype.NullString{}
	}
	content, err := os.ReadFile(path)
	if err != nil {
		slog.Error("Failed to read optional capture file", "path", path, "error", err)
		return nulltype.NullString{}
	}
	return nulltype.NullStringOf(string(content))
}
