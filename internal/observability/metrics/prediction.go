package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PredictionMetrics tracks uploads and classifier outcomes.
type PredictionMetrics struct {
	predictionsTotal  *prometheus.CounterVec
	predictionErrors  *prometheus.CounterVec
	inferenceDuration prometheus.Histogram
	uploadsRejected   *prometheus.CounterVec
}

// NewPredictionMetrics creates and registers the prediction metrics.
func NewPredictionMetrics(registry prometheus.Registerer) (*PredictionMetrics, error) {
	m := &PredictionMetrics{
		predictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "predictions_total",
				Help:      "Classified images by label",
			},
			[]string{"label"},
		),
		predictionErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "prediction_errors_total",
				Help:      "Failed classifications by reason",
			},
			[]string{"reason"}, // inference, storage
		),
		inferenceDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "inference_duration_seconds",
				Help:      "Time taken to preprocess and classify one image",
				Buckets:   prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12),
			},
		),
		uploadsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "uploads_rejected_total",
				Help:      "Uploads refused before classification",
			},
			[]string{"reason"},
		),
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *PredictionMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.predictionsTotal, m.predictionErrors, m.inferenceDuration, m.uploadsRejected}
}

// Describe implements prometheus.Collector.
func (m *PredictionMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (m *PredictionMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}

// RecordPrediction counts a successful classification and its duration.
func (m *PredictionMetrics) RecordPrediction(label string, seconds float64) {
	m.predictionsTotal.WithLabelValues(label).Inc()
	m.inferenceDuration.Observe(seconds)
}

// RecordPredictionError counts a failed classification.
func (m *PredictionMetrics) RecordPredictionError(reason string) {
	m.predictionErrors.WithLabelValues(reason).Inc()
}

// RecordUploadRejected counts an upload refused by intake.
func (m *PredictionMetrics) RecordUploadRejected(reason string) {
	m.uploadsRejected.WithLabelValues(reason).Inc()
}
