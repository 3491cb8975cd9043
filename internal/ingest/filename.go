package ingest

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const (
	ArchiveSuffix = "_DiagnosticReports.tgz"
	// TimestampLayout is the capture timestamp embedded in archive names, e.g. 2024-01-15-093000.
	TimestampLayout = "2006-01-02-150405"
)

type ArchiveName struct {
	Project      string
	Timestamp    time.Time
	RawTimestamp string
}

// ParseFilename splits <project>_<timestamp>_DiagnosticReports.tgz into its parts.
// Segments after the timestamp are ignored.
func ParseFilename(filename string) (ArchiveName, error) {
	base := strings.TrimSuffix(filepath.Base(filename), ArchiveSuffix)
	parts := strings.Split(base, "_")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return ArchiveName{}, fmt.Errorf("%w: %q", ErrMalformedFilename, filename)
	}

	timestamp, err := time.Parse(TimestampLayout, parts[1])
	if err != nil {
		return ArchiveName{}, fmt.Errorf("%w: %s", ErrInvalidTimestamp, parts[1])
	}

	return ArchiveName{
		Project:      parts[0],
		Timestamp:    timestamp,
		RawTimestamp: parts[1],
	}, nil
}
