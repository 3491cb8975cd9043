package ingest

import (
	"fmt"

	"github.com/go-errors/errors"
)

var (
	ErrMalformedFilename        = errors.New("filename must look like <project>_<YYYY-MM-DD-HHMMSS>_DiagnosticReports.tgz")
	ErrInvalidTimestamp         = errors.New("invalid timestamp format in filename")
	ErrInvalidArchive           = errors.New("archive is not a readable gzip-compressed tar")
	ErrCaptureRootNotFound      = errors.New("could not find logcapture directory in uploaded file")
	ErrNoNetworkDeviceDirectory = errors.New("NetworkDevice directory not found")
	ErrDeviceProcessing         = errors.New("error processing device")
)

// DeviceError reports which device aborted a capture.
type DeviceError struct {
	DeviceID string
	Err      error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("error processing device %s: %v", e.DeviceID, e.Err)
}

// Unwrap exposes both ErrDeviceProcessing and the underlying cause.
func (e *DeviceError) Unwrap() []error {
	return []error{ErrDeviceProcessing, e.Err}
}

// IsClientError reports whether err was caused by the uploaded file itself
// rather than by processing it.
func IsClientError(err error) bool {
	return errors.Is(err, ErrMalformedFilename) ||
		errors.Is(err, ErrInvalidTimestamp) ||
		errors.Is(err, ErrInvalidArchive) ||
		errors.Is(err, ErrCaptureRootNotFound) ||
		errors.Is(err, ErrNoNetworkDeviceDirectory)
}
