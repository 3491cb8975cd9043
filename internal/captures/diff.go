package captures

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/USA-RedDragon/logcapture-server/internal/db/models"
	"github.com/USA-RedDragon/logcapture-server/internal/tracing"
	"github.com/go-errors/errors"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// FoundState is the network state of a device that was discovered and is
// behaving normally. Devices in this state are listed last.
const FoundState = "found"

// Snapshot is a device's network and health data as of one capture.
type Snapshot struct {
	NetworkData      datatypes.JSON
	HealthData       datatypes.JSON
	CaptureTimestamp time.Time
}

// DeviceDiff pairs a device in the current capture with the same device
// identifier in the previous one. Previous is nil when there is no match.
type DeviceDiff struct {
	ID       uint
	DeviceID string
	Current  Snapshot
	Previous *Snapshot

	state string
}

// DiffDevices compares the devices of a capture with those of the capture
// before it. With captureID nil the project's most recent capture is used.
// An unknown project, or a capture outside it, yields an empty result.
func DiffDevices(ctx context.Context, db *gorm.DB, projectID uint, captureID *uint) ([]DeviceDiff, error) {
	ctx, span := tracing.StartSpan(ctx, "captures.DiffDevices")
	defer span.End()
	db = db.WithContext(ctx)

	var (
		current models.Capture
		err     error
	)
	if captureID != nil {
		current, err = models.FindCaptureForProject(db, projectID, *captureID)
	} else {
		current, err = models.FindLatestCapture(db, projectID)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return []DeviceDiff{}, nil
	}
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	currentDevices, err := models.ListDevicesForCapture(db, current.ID)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	var (
		previous        *models.Capture
		previousDevices = map[string]models.Device{}
	)
	prev, err := models.FindPreviousCapture(db, projectID, current.Timestamp)
	switch {
	case err == nil:
		previous = &prev
		devices, err := models.ListDevicesForCapture(db, prev.ID)
		if err != nil {
			tracing.RecordError(span, err)
			return nil, err
		}
		for _, device := range devices {
			if _, ok := previousDevices[device.DeviceID]; !ok {
				previousDevices[device.DeviceID] = device
			}
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		tracing.RecordError(span, err)
		return nil, err
	}

	diffs := make([]DeviceDiff, 0, len(currentDevices))
	for _, device := range currentDevices {
		diff := DeviceDiff{
			ID:       device.ID,
			DeviceID: device.DeviceID,
			Current: Snapshot{
				NetworkData:      device.NetworkData,
				HealthData:       device.HealthData,
				CaptureTimestamp: current.Timestamp,
			},
			state: networkState(device.NetworkData),
		}
		if match, ok := previousDevices[device.DeviceID]; ok && previous != nil {
			diff.Previous = &Snapshot{
				NetworkData:      match.NetworkData,
				HealthData:       match.HealthData,
				CaptureTimestamp: previous.Timestamp,
			}
		}
		diffs = append(diffs, diff)
	}

	SortByState(diffs)

	span.SetAttributes(
		attribute.Int64("captures.capture_id", int64(current.ID)),
		attribute.Int("captures.devices", len(diffs)),
	)
	return diffs, nil
}

// SortByState orders devices in the found state after all others, and by
// state within each group. Equal states keep their relative order.
func SortByState(diffs []DeviceDiff) {
	sort.SliceStable(diffs, func(i, j int) bool {
		iFound := diffs[i].state == FoundState
		jFound := diffs[j].state == FoundState
		if iFound != jFound {
			return !iFound
		}
		return diffs[i].state < diffs[j].state
	})
}

// State returns the "state" field of the current network data, or "" if
// it has none.
func (d DeviceDiff) State() string {
	return d.state
}

func networkState(data datatypes.JSON) string {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return ""
	}
	state, _ := fields["state"].(string)
	return state
}
