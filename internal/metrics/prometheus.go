package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ResultSuccess     = "success"
	ResultClientError = "client_error"
	ResultServerError = "server_error"
)

type Metrics struct {
	uploads          *prometheus.CounterVec
	devicesProcessed *prometheus.CounterVec
	crashReports     *prometheus.CounterVec
	uploadDuration   *prometheus.HistogramVec
}

// NewMetrics registers the ingestion collectors with reg. Passing nil uses
// the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	metrics := &Metrics{
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "logcapture_uploads_total",
			Help: "The total number of diagnostic archive uploads, by result",
		}, []string{"result"}),
		devicesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "logcapture_devices_processed_total",
			Help: "The total number of devices stored from ingested captures",
		}, []string{"project"}),
		crashReports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "logcapture_crash_reports_total",
			Help: "The total number of crash reports found in ingested captures",
		}, []string{"project"}),
		uploadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "logcapture_upload_duration_seconds",
			Help:    "Time taken to ingest one diagnostic archive",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"result"}),
	}
	metrics.register(reg)
	return metrics
}

func (m *Metrics) register(reg prometheus.Registerer) {
	reg.MustRegister(m.uploads, m.devicesProcessed, m.crashReports, m.uploadDuration)
}

func (m *Metrics) ObserveUpload(result string, elapsed time.Duration) {
	m.uploads.WithLabelValues(result).Inc()
	m.uploadDuration.WithLabelValues(result).Observe(elapsed.Seconds())
}

func (m *Metrics) AddDevicesProcessed(project string, count int) {
	m.devicesProcessed.WithLabelValues(project).Add(float64(count))
}

func (m *Metrics) AddCrashReports(project string, count int) {
	m.crashReports.WithLabelValues(project).Add(float64(count))
}
