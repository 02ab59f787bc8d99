package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// opsTotal counts store operations by op and result
	opsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studydeck_store_ops_total",
		Help: "Total store operations by op and result",
	}, []string{"op", "result"})

	// eventsTotal counts events queued to listeners
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studydeck_store_events_total",
		Help: "Total subscription events queued by kind",
	}, []string{"kind"})

	subscriptionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "studydeck_store_subscriptions",
		Help: "Live subscriptions across all connections",
	})

	connectionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "studydeck_store_connections",
		Help: "Open store connections",
	})
)

func observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	opsTotal.WithLabelValues(op, result).Inc()
}
