package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pairOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "finanze",
		Subsystem: "fetch",
		Name:      "pairs_total",
		Help:      "Per (feature, status) outcomes of fetch runs.",
	}, []string{"feature", "status"})

	entityOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "finanze",
		Subsystem: "fetch",
		Name:      "entities_total",
		Help:      "Per-entity summary codes of fetch runs.",
	}, []string{"code"})
)
