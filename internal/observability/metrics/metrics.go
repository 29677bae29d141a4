package metrics

import "github.com/prometheus/client_golang/prometheus"

// PipelineMetrics exposes counters/histograms for transcript processing.
type PipelineMetrics struct {
	turnsSegmented *prometheus.CounterVec
	detections     *prometheus.CounterVec
	spansRedacted  prometheus.Counter
	stageLatency   *prometheus.HistogramVec
}

func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		turnsSegmented: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "insight",
			Subsystem: "transcript",
			Name:      "turns_segmented_total",
			Help:      "Turns produced by transcript segmentation",
		}, []string{"role"}),
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "insight",
			Subsystem: "pii",
			Name:      "detections_total",
			Help:      "PII detections by category and final status",
		}, []string{"pii_type", "status"}),
		spansRedacted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "insight",
			Subsystem: "pii",
			Name:      "spans_redacted_total",
			Help:      "Spans replaced with placeholder tokens",
		}),
		stageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "insight",
			Subsystem: "pipeline",
			Name:      "stage_latency_seconds",
			Help:      "Latency of segment/scan/apply stages",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsSegmented, m.detections, m.spansRedacted, m.stageLatency)
	return m
}

func (m *PipelineMetrics) ObserveTurn(isInterviewer bool) {
	if m == nil {
		return
	}
	role := "participant"
	if isInterviewer {
		role = "interviewer"
	}
	m.turnsSegmented.WithLabelValues(role).Inc()
}

func (m *PipelineMetrics) ObserveDetection(piiType, status string) {
	if m == nil {
		return
	}
	m.detections.WithLabelValues(piiType, status).Inc()
}

func (m *PipelineMetrics) ObserveRedacted(spans int) {
	if m == nil || spans <= 0 {
		return
	}
	m.spansRedacted.Add(float64(spans))
}

func (m *PipelineMetrics) ObserveStage(stage string, err error, seconds float64) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.stageLatency.WithLabelValues(stage, status).Observe(seconds)
}
