package export

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"rideguardian/internal/apperrors"
)

var (
	exportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rideguardian_exports_total",
		Help: "Document exports by document, format and result",
	}, []string{"document", "format", "result"})
	exportDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rideguardian_export_duration_seconds",
		Help:    "Export duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"document", "format"})
)

func observe(document, format string, ok bool, err error, began time.Time) {
	result := "written"
	switch {
	case err != nil:
		result = string(apperrors.KindOf(err))
	case !ok:
		result = "empty"
	}
	exportsTotal.WithLabelValues(document, format, result).Inc()
	exportDuration.WithLabelValues(document, format).Observe(time.Since(began).Seconds())
}
