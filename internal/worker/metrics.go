package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rideguardian_jobs_total",
	Help: "Background job transitions by kind and status",
}, []string{"kind", "status"})
