// Package metrics records Prometheus metrics for evaluation batches.
package metrics

import (
	"fmt"
	"time"

	"github.com/attendrisk/attendrisk/schema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "attendrisk"

// Recorder collects batch metrics on its own registry, so evaluations in one process
// never share counters with unrelated collectors.
type Recorder struct {
	registry *prometheus.Registry

	batches            prometheus.Counter
	cancelledBatches   prometheus.Counter
	studentsByLabel    *prometheus.CounterVec
	skippedEvents      *prometheus.CounterVec
	filteredDetections prometheus.Counter
	fallbackScored     prometheus.Counter
	failedStudents     prometheus.Counter
	riskScores         prometheus.Histogram
	batchDuration      prometheus.Histogram
	lastBatchUnix      prometheus.Gauge
}

// NewRecorder creates a recorder with all metrics registered.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	auto := promauto.With(reg)
	return &Recorder{
		registry: reg,
		batches: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Total number of evaluation batches",
		}),
		cancelledBatches: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_cancelled_total",
			Help:      "Total number of evaluation batches stopped before every student was evaluated",
		}),
		studentsByLabel: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "students_evaluated_total",
			Help:      "Total number of student reports by risk label",
		}, []string{"label"}),
		skippedEvents: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_skipped_total",
			Help:      "Total number of malformed inputs dropped by source",
		}, []string{"source"}),
		filteredDetections: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detections_filtered_total",
			Help:      "Total number of vision detections below the confidence floor",
		}),
		fallbackScored: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_fallback_scored_total",
			Help:      "Total number of reports scored by the rule model after a predictor failure",
		}),
		failedStudents: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "students_failed_total",
			Help:      "Total number of students whose evaluation failed",
		}),
		riskScores: auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "risk_score",
			Help:      "Distribution of risk scores",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 9),
		}),
		batchDuration: auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Evaluation batch duration",
			Buckets:   prometheus.DefBuckets,
		}),
		lastBatchUnix: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_batch_timestamp_seconds",
			Help:      "Unix time of the last finished evaluation batch",
		}),
	}
}

// ObserveBatch records one finished batch.
func (r *Recorder) ObserveBatch(result *schema.BatchResult, elapsed time.Duration) {
	r.batches.Inc()
	if result.Summary.Cancelled {
		r.cancelledBatches.Inc()
	}
	for _, label := range schema.AllRiskLabels {
		// Touch every label so a zero count is still exported.
		r.studentsByLabel.WithLabelValues(string(label))
	}
	for _, report := range result.Reports {
		r.studentsByLabel.WithLabelValues(string(report.RiskLabel)).Inc()
		r.riskScores.Observe(report.RiskScore)
	}
	for _, skipped := range result.Summary.Skipped {
		r.skippedEvents.WithLabelValues(string(skipped.Source)).Inc()
	}
	r.filteredDetections.Add(float64(result.Summary.FilteredDetectionCount))
	r.fallbackScored.Add(float64(result.Summary.FallbackScoredCount))
	r.failedStudents.Add(float64(len(result.Summary.Failed)))
	r.batchDuration.Observe(elapsed.Seconds())
	r.lastBatchUnix.SetToCurrentTime()
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes all metrics in the text exposition format, for the node
// exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
