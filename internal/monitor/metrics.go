package monitor

import "github.com/prometheus/client_golang/prometheus"

var (
	healthPercentage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "creditdesk_health_percentage",
		Help: "Share of healthy probes in the latest cycle.",
	})
	probeStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "creditdesk_probe_status",
			Help: "1 for the status each probe reported in the latest cycle, 0 otherwise.",
		},
		[]string{"probe", "status"},
	)
	alertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "creditdesk_alerts_total",
			Help: "Alerts that passed the cooldown gate.",
		},
		[]string{"subject", "status"},
	)
	cycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "creditdesk_cycle_duration_seconds",
		Help:    "Wall time of a health cycle.",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	})
)

var allStatuses = []Status{StatusHealthy, StatusDegraded, StatusUnhealthy, StatusError, StatusWarning}

func init() {
	prometheus.MustRegister(healthPercentage, probeStatus, alertsTotal, cycleDuration)
}

func observeReport(r *HealthReport) {
	healthPercentage.Set(r.HealthPercentage)
	cycleDuration.Observe(r.DurationMs / 1000)
	for _, c := range r.Checks {
		for _, s := range allStatuses {
			v := 0.0
			if s == c.Status {
				v = 1
			}
			probeStatus.WithLabelValues(c.Subject, string(s)).Set(v)
		}
	}
}
