package registry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var syncedBlock = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "rln",
	Subsystem: "registry",
	Name:      "synced_block",
	Help:      "Last block whose membership events were indexed.",
})
