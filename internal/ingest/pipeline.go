package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/USA-RedDragon/logcapture-server/internal/db/models"
	"github.com/USA-RedDragon/logcapture-server/internal/metrics"
	"github.com/USA-RedDragon/logcapture-server/internal/storage"
	"github.com/USA-RedDragon/logcapture-server/internal/tracing"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

const createBatchSize = 100

// Result summarises a committed capture.
type Result struct {
	ProjectID        uint
	ProjectName      string
	CaptureID        uint
	Timestamp        time.Time
	DevicesProcessed int
}

// Pipeline turns uploaded archives into stored captures. Uploads share no
// state besides the database, so one Pipeline serves concurrent requests.
type Pipeline struct {
	db       *gorm.DB
	workRoot string
	archives storage.ArchiveStore
	metrics  *metrics.Metrics
}

// NewPipeline builds a pipeline extracting under workRoot. archives and
// metrics are optional.
func NewPipeline(db *gorm.DB, workRoot string, archives storage.ArchiveStore, metrics *metrics.Metrics) *Pipeline {
	return &Pipeline{
		db:       db,
		workRoot: workRoot,
		archives: archives,
		metrics:  metrics,
	}
}

// Ingest processes one archive named filename. Either every device of the
// capture is committed or nothing is.
func (p *Pipeline) Ingest(ctx context.Context, filename string, r io.Reader) (Result, error) {
	ctx, span := tracing.StartSpan(ctx, "ingest.Ingest")
	defer span.End()
	span.SetAttributes(attribute.String("ingest.filename", filename))

	start := time.Now()
	result, err := p.ingest(ctx, filename, r)
	if err != nil {
		tracing.RecordError(span, err)
	}

	if p.metrics != nil {
		p.metrics.ObserveUpload(resultLabel(err), time.Since(start))
	}
	return result, err
}

func (p *Pipeline) ingest(ctx context.Context, filename string, r io.Reader) (Result, error) {
	name, err := ParseFilename(filename)
	if err != nil {
		return Result{}, err
	}
	slog.Info("Ingesting capture", "project", name.Project, "timestamp", name.RawTimestamp)

	workDir, err := NewWorkDir(p.workRoot)
	if err != nil {
		return Result{}, err
	}
	defer workDir.Release()

	retained := p.retain(ctx, name)
	if retained != nil {
		r = io.TeeReader(r, retained)
	}

	err = Extract(ctx, r, workDir.Path)
	if retained != nil {
		// Trailing bytes after the tar end marker still belong to the upload.
		if err == nil {
			_, err = io.Copy(io.Discard, r)
		}
		retained.finish(ctx, err)
	}
	if err != nil {
		return Result{}, err
	}

	layout, err := LocateCapture(workDir.Path)
	if err != nil {
		if retained != nil {
			retained.discard(ctx)
		}
		return Result{}, err
	}

	correlation, err := Correlate(ctx, layout)
	if err != nil {
		return Result{}, err
	}

	return p.persist(ctx, name, correlation)
}

func (p *Pipeline) persist(ctx context.Context, name ArchiveName, correlation Correlation) (Result, error) {
	ctx, span := tracing.StartSpan(ctx, "ingest.persist")
	defer span.End()

	var result Result
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		project, err := models.FirstOrCreateProject(tx, name.Project)
		if err != nil {
			return fmt.Errorf("failed to resolve project: %w", err)
		}

		capture := models.Capture{
			ProjectID: project.ID,
			Timestamp: name.Timestamp,
		}
		if err := tx.Create(&capture).Error; err != nil {
			return fmt.Errorf("failed to create capture: %w", err)
		}

		for i := range correlation.Devices {
			correlation.Devices[i].CaptureID = capture.ID
		}
		if len(correlation.Devices) > 0 {
			if err := tx.CreateInBatches(&correlation.Devices, createBatchSize).Error; err != nil {
				return fmt.Errorf("failed to store devices: %w", err)
			}
		}

		for i := range correlation.Crashes {
			correlation.Crashes[i].CaptureID = capture.ID
		}
		if len(correlation.Crashes) > 0 {
			if err := tx.CreateInBatches(&correlation.Crashes, createBatchSize).Error; err != nil {
				return fmt.Errorf("failed to store crash reports: %w", err)
			}
		}

		result = Result{
			ProjectID:        project.ID,
			ProjectName:      project.Name,
			CaptureID:        capture.ID,
			Timestamp:        capture.Timestamp,
			DevicesProcessed: len(correlation.Devices),
		}
		return nil
	})
	if err != nil {
		tracing.RecordError(span, err)
		return Result{}, err
	}

	slog.Info("Capture stored", "project", result.ProjectName, "capture_id", result.CaptureID, "devices", result.DevicesProcessed, "crash_reports", len(correlation.Crashes))
	if p.metrics != nil {
		p.metrics.AddDevicesProcessed(result.ProjectName, result.DevicesProcessed)
		p.metrics.AddCrashReports(result.ProjectName, len(correlation.Crashes))
	}
	return result, nil
}

// ArchiveKey is where a retained copy of an upload is stored.
func ArchiveKey(name ArchiveName) string {
	return fmt.Sprintf("%s/%s-%s.tgz", name.Project, name.RawTimestamp, uuid.NewString())
}

func (p *Pipeline) retain(ctx context.Context, name ArchiveName) *retainedArchive {
	if p.archives == nil {
		return nil
	}
	key := ArchiveKey(name)
	w, err := p.archives.Create(ctx, key)
	if err != nil {
		slog.Error("Failed to open archive for retention", "key", key, "error", err)
		return nil
	}
	return &retainedArchive{key: key, w: w, store: p.archives}
}

// retainedArchive copies the upload to archive storage. Storage failures are
// logged and never interrupt the upload.
type retainedArchive struct {
	key    string
	w      io.WriteCloser
	store  storage.ArchiveStore
	failed error
}

func (a *retainedArchive) Write(p []byte) (int, error) {
	if a.failed == nil {
		if _, err := a.w.Write(p); err != nil {
			a.failed = err
		}
	}
	return len(p), nil
}

// finish closes the stored copy, dropping it if either the copy or the
// extraction failed.
func (a *retainedArchive) finish(ctx context.Context, extractErr error) {
	closeErr := a.w.Close()
	switch {
	case a.failed != nil:
		slog.Error("Failed to retain archive", "key", a.key, "error", a.failed)
		a.discard(ctx)
	case closeErr != nil:
		slog.Error("Failed to retain archive", "key", a.key, "error", closeErr)
		a.discard(ctx)
	case extractErr != nil:
		a.discard(ctx)
	default:
		slog.Info("Archive retained", "key", a.key)
	}
}

func (a *retainedArchive) discard(ctx context.Context) {
	if err := a.store.Remove(ctx, a.key); err != nil {
		slog.Warn("Failed to remove retained archive", "key", a.key, "error", err)
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case IsClientError(err):
		return metrics.ResultClientError
	default:
		return metrics.ResultServerError
	}
}
