package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/labreport-analyzer/internal/core/domain"
)

// AnalysisMetrics observes the report analysis pipeline.
type AnalysisMetrics struct {
	service string

	analysisTotal    *prometheus.CounterVec
	analysisDuration *prometheus.HistogramVec
	analysisInFlight prometheus.Gauge
	parameters       *prometheus.HistogramVec
	ocrDuration      *prometheus.HistogramVec
	qualityGateTotal *prometheus.CounterVec
}

func NewAnalysisMetrics(service string, registerer prometheus.Registerer) *AnalysisMetrics {
	analysisTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "labreport",
			Subsystem: "analysis",
			Name:      "total",
			Help:      "Total report analyses by file type, text provenance and outcome.",
		},
		[]string{"service", "file_type", "provenance", "outcome"},
	)
	analysisDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "labreport",
			Subsystem: "analysis",
			Name:      "duration_seconds",
			Help:      "End-to-end report analysis duration in seconds by outcome.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 12},
		},
		[]string{"service", "outcome"},
	)
	analysisInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "labreport",
			Subsystem: "analysis",
			Name:      "in_flight",
			Help:      "Number of in-flight report analyses.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	parameters := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "labreport",
			Subsystem: "analysis",
			Name:      "parameters",
			Help:      "Recognized parameters per completed analysis.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 12},
		},
		[]string{"service", "file_type"},
	)
	ocrDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "labreport",
			Subsystem: "ocr",
			Name:      "duration_seconds",
			Help:      "Tesseract recognition duration in seconds by status.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 3, 4, 6, 8, 10},
		},
		[]string{"service", "status"},
	)
	qualityGateTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "labreport",
			Subsystem: "quality_gate",
			Name:      "total",
			Help:      "Analyses skipped because OCR produced too little text.",
		},
		[]string{"service", "provenance"},
	)

	registerer.MustRegister(analysisTotal, analysisDuration, analysisInFlight, parameters, ocrDuration, qualityGateTotal)

	return &AnalysisMetrics{
		service:          service,
		analysisTotal:    analysisTotal,
		analysisDuration: analysisDuration,
		analysisInFlight: analysisInFlight,
		parameters:       parameters,
		ocrDuration:      ocrDuration,
		qualityGateTotal: qualityGateTotal,
	}
}

func (m *AnalysisMetrics) StartAnalysis() {
	m.analysisInFlight.Inc()
}

func (m *AnalysisMetrics) FinishAnalysis(
	fileType string,
	provenance domain.Provenance,
	outcome domain.AnalysisOutcome,
	parameters int,
	duration time.Duration,
) {
	m.analysisInFlight.Dec()

	prov := string(provenance)
	if prov == "" {
		prov = "none"
	}
	m.analysisTotal.WithLabelValues(m.service, fileType, prov, string(outcome)).Inc()
	m.analysisDuration.WithLabelValues(m.service, string(outcome)).Observe(duration.Seconds())
	if outcome == domain.OutcomeCompleted {
		m.parameters.WithLabelValues(m.service, fileType).Observe(float64(parameters))
	}
}

func (m *AnalysisMetrics) ObserveOCR(duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.ocrDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}

func (m *AnalysisMetrics) ObserveQualityGate(provenance domain.Provenance) {
	m.qualityGateTotal.WithLabelValues(m.service, string(provenance)).Inc()
}
