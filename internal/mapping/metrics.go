package mapping

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rideguardian_mapping_cache_hits_total",
		Help: "Address cache hits",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rideguardian_mapping_cache_misses_total",
		Help: "Address cache misses",
	})
	providerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rideguardian_mapping_provider_requests_total",
		Help: "Mapping provider requests by outcome",
	}, []string{"outcome"})
	fallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rideguardian_mapping_fallbacks_total",
		Help: "Lookups answered by the fallback estimate",
	})
)
