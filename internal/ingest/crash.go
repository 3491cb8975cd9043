package ingest

import (
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/USA-RedDragon/logcapture-server/internal/db/models"
	"github.com/mattn/go-nulltype"
)

// CrashTimestampLayout is the layout of the Date/Time line in crash logs.
const CrashTimestampLayout = "2006-01-02 15:04:05"

//nolint:golint,gochecknoglobals
var (
	processPattern  = regexp.MustCompile(`Process:\s+(\w+)`)
	dateTimePattern = regexp.MustCompile(`Date/Time:\s+(.+)`)
	deviceIDPattern = regexp.MustCompile(`Device ID: ([A-F0-9]+)`)
)

// ParsedCrash holds the fields found in one crash log. Timestamp and
// DeviceID are nil when their marker is absent.
type ParsedCrash struct {
	Process   string
	Timestamp *string
	DeviceID  *string
	Content   string
}

// ParseCrashText never fails: missing markers fall back to defaults.
func ParseCrashText(content string) ParsedCrash {
	crash := ParsedCrash{
		Process: models.UnknownProcess,
		Content: content,
	}
	if m := processPattern.FindStringSubmatch(content); m != nil {
		crash.Process = m[1]
	}
	if m := dateTimePattern.FindStringSubmatch(content); m != nil {
		timestamp := m[1]
		crash.Timestamp = &timestamp
	}
	if m := deviceIDPattern.FindStringSubmatch(content); m != nil {
		deviceID := m[1]
		crash.DeviceID = &deviceID
	}
	return crash
}

// ParseCrashReport reads and parses the crash log at path. A file that
// cannot be read yields nil; the failure is logged, not returned.
func ParseCrashReport(path string) *ParsedCrash {
	content, err := os.ReadFile(path)
	if err != nil {
		slog.Error("Error parsing crash report", "path", path, "error", err)
		return nil
	}
	crash := ParseCrashText(string(content))
	return &crash
}

// Summary is the form attached to the related_crashes of a device.
func (c ParsedCrash) Summary() models.CrashSummary {
	return models.CrashSummary{
		Process:   c.Process,
		Timestamp: c.Timestamp,
		DeviceID:  c.DeviceID,
		Content:   c.Content,
	}
}

// Record converts the parsed crash into a row. An unparsable Date/Time
// is stored as a null timestamp.
func (c ParsedCrash) Record() models.CrashReport {
	report := models.CrashReport{
		ProcessName: c.Process,
		CrashData:   c.Content,
	}
	if c.Timestamp != nil {
		ts, err := time.Parse(CrashTimestampLayout, strings.TrimSpace(*c.Timestamp))
		if err != nil {
			slog.Warn("Unparsable crash timestamp", "process", c.Process, "timestamp", *c.Timestamp)
		} else {
			report.Timestamp = &ts
		}
	}
	if c.DeviceID != nil {
		report.RelatedDeviceID = nulltype.NullStringOf(*c.DeviceID)
	}
	return report
}
