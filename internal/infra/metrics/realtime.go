package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(wsConnections, wsPushes) }

var (
	wsConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "latexy_ws_connections",
			Help: "Live realtime connections.",
		},
	)

	wsPushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "latexy_ws_pushes_total",
			Help: "Realtime messages sent, by outcome.",
		},
		[]string{"outcome"}, // delivered, dropped
	)
)

func SetWSConnections(n int) { wsConnections.Set(float64(n)) }

func IncWSPush(outcome string) { wsPushes.WithLabelValues(norm(outcome)).Inc() }
