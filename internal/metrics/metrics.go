// Package metrics defines the Prometheus collectors shared by the decoder
// front ends: the preview server, the uploader, staging and export.
//
// Every method is safe to call on a nil *Metrics, so callers that run without
// a registry (tests, one-shot CLI commands) can pass nil.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Decode metrics
	FilesDecoded   *prometheus.CounterVec
	RecordsDecoded *prometheus.CounterVec
	DecodeDuration *prometheus.HistogramVec

	// Upload metrics
	UploadBatches   *prometheus.CounterVec
	RecordsUploaded prometheus.Counter
	FilesProcessed  *prometheus.CounterVec

	// Preview metrics
	PreviewsInFlight prometheus.Gauge
	PreviewsRejected prometheus.Counter

	// Sink metrics
	RecordsStaged   prometheus.Counter
	RecordsExported *prometheus.CounterVec
}

// New creates and registers all metrics on registry.
func New(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		FilesDecoded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docstream_files_decoded_total",
				Help: "Files decoded, by format, resolved encoding and outcome",
			},
			[]string{"format", "encoding", "status"},
		),
		RecordsDecoded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docstream_records_decoded_total",
				Help: "Records yielded by the decoder",
			},
			[]string{"format"},
		),
		DecodeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docstream_decode_duration_seconds",
				Help:    "Time spent decoding one file",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format"},
		),
		UploadBatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docstream_upload_batches_total",
				Help: "upload_documents calls, by outcome",
			},
			[]string{"status"},
		),
		RecordsUploaded: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "docstream_records_uploaded_total",
				Help: "Records accepted by the remote API",
			},
		),
		FilesProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docstream_dir_files_processed_total",
				Help: "Files handled by directory processing, by outcome",
			},
			[]string{"status"},
		),
		PreviewsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "docstream_previews_in_flight",
				Help: "Preview requests currently decoding",
			},
		),
		PreviewsRejected: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "docstream_previews_rejected_total",
				Help: "Preview requests rejected because every slot was busy",
			},
		),
		RecordsStaged: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "docstream_records_staged_total",
				Help: "Records copied into the staging table",
			},
		),
		RecordsExported: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docstream_records_exported_total",
				Help: "Records written to export files",
			},
			[]string{"format"},
		),
	}
}

// ObserveDecode records one finished decode.
func (m *Metrics) ObserveDecode(format, encoding string, records int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusFailure
	}
	if encoding == "" {
		encoding = "none"
	}
	m.FilesDecoded.WithLabelValues(format, encoding, status).Inc()
	m.RecordsDecoded.WithLabelValues(format).Add(float64(records))
	m.DecodeDuration.WithLabelValues(format).Observe(elapsed.Seconds())
}

// ObserveUploadBatch records one upload_documents call.
func (m *Metrics) ObserveUploadBatch(records int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.UploadBatches.WithLabelValues(StatusFailure).Inc()
		return
	}
	m.UploadBatches.WithLabelValues(StatusSuccess).Inc()
	m.RecordsUploaded.Add(float64(records))
}

// IncFilesProcessed counts a file moved aside by directory processing.
func (m *Metrics) IncFilesProcessed(status string) {
	if m == nil {
		return
	}
	m.FilesProcessed.WithLabelValues(status).Inc()
}

// PreviewStarted and PreviewFinished bracket one preview decode.
func (m *Metrics) PreviewStarted() {
	if m == nil {
		return
	}
	m.PreviewsInFlight.Inc()
}

func (m *Metrics) PreviewFinished() {
	if m == nil {
		return
	}
	m.PreviewsInFlight.Dec()
}

// IncPreviewsRejected counts a preview turned away by the limiter.
func (m *Metrics) IncPreviewsRejected() {
	if m == nil {
		return
	}
	m.PreviewsRejected.Inc()
}

// AddStaged counts records copied into PostgreSQL.
func (m *Metrics) AddStaged(n int64) {
	if m == nil {
		return
	}
	m.RecordsStaged.Add(float64(n))
}

// AddExported counts records written in format.
func (m *Metrics) AddExported(format string, n int) {
	if m == nil {
		return
	}
	m.RecordsExported.WithLabelValues(format).Add(float64(n))
}
