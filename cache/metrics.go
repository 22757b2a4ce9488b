package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var proofsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rln",
	Subsystem: "cache",
	Name:      "proofs_total",
	Help:      "Number of proof shares evaluated by the cache, by status.",
}, []string{"status"})
