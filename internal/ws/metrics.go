package ws

import "github.com/prometheus/client_golang/prometheus"

var (
	wsClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "creditdesk_ws_clients",
		Help: "Connected monitor stream clients.",
	})
	wsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "creditdesk_ws_dropped_messages_total",
		Help: "Messages dropped because a client's send buffer was full.",
	})
)

func init() {
	prometheus.MustRegister(wsClients, wsDropped)
}
