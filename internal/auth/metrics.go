package auth

import "github.com/prometheus/client_golang/prometheus"

var authFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "creditdesk_auth_failures_total",
		Help: "Rejected logins and token verifications by operation and kind.",
	},
	[]string{"op", "kind"},
)

func init() {
	prometheus.MustRegister(authFailures)
}
