package extract

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records extraction activity on a caller-supplied registry. A nil
// *Metrics records nothing.
type Metrics struct {
	extractions *prometheus.CounterVec
	rows        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// NewMetrics registers the extraction collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		extractions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "genomatrix_extractions_total",
			Help: "Extractions by outcome",
		}, []string{"outcome"}),
		rows: f.NewCounterVec(prometheus.CounterOpts{
			Name: "genomatrix_extract_rows_total",
			Help: "Genotype rows transcribed by orientation",
		}, []string{"orientation"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "genomatrix_extract_duration_seconds",
			Help:    "Extraction duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"outcome"}),
	}
}

func (m *Metrics) observe(outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.extractions.WithLabelValues(outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(time.Since(started).Seconds())
}

func (m *Metrics) addRows(orientation string, n int) {
	if m == nil {
		return
	}
	m.rows.WithLabelValues(orientation).Add(float64(n))
}
