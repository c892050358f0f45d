package monitor

import (
	"context"
	"fmt"
	"strings"

	"github.com/HerbHall/creditdesk/pkg/platform"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Dispatcher turns a report into gated alerts and fans them out to notifiers.
type Dispatcher struct {
	gate      *AlertGate
	notifiers []Notifier
	bus       platform.Publisher
	clock     clockwork.Clock
	logger    *zap.Logger
}

// NewDispatcher wires a dispatcher. bus may be nil.
func NewDispatcher(gate *AlertGate, notifiers []Notifier, bus platform.Publisher, clock clockwork.Clock, logger *zap.Logger) *Dispatcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Dispatcher{gate: gate, notifiers: notifiers, bus: bus, clock: clock, logger: logger}
}

// Gate returns the dispatcher's alert gate.
func (d *Dispatcher) Gate() *AlertGate { return d.gate }

// Process evaluates report against the gate and delivers every alert that
// passes. A platform alert is raised when the overall status is unhealthy or
// degraded; a service alert for every check that is unhealthy, error or
// warning. Delivery failures are logged and never stop other deliveries.
func (d *Dispatcher) Process(ctx context.Context, report *HealthReport) []Alert {
	now := d.clock.Now().UTC()
	var alerts []Alert

	if report.OverallStatus == StatusUnhealthy || report.OverallStatus == StatusDegraded {
		if d.gate.ShouldAlert(PlatformSubject, report.OverallStatus, now) {
			alerts = append(alerts, Alert{
				Kind:    KindPlatform,
				Subject: PlatformSubject,
				Status:  report.OverallStatus,
				Message: fmt.Sprintf("platform is %s: %.2f%% of checks healthy (%d/%d)",
					report.OverallStatus, report.HealthPercentage, report.ChecksPassed, report.TotalChecks),
				Details: map[string]any{
					"health_percentage": report.HealthPercentage,
					"checks_passed":     report.ChecksPassed,
					"total_checks":      report.TotalChecks,
				},
			})
		}
	}

	for _, c := range report.Checks {
		switch c.Status {
		case StatusUnhealthy, StatusError, StatusWarning:
		default:
			continue
		}
		if !d.gate.ShouldAlert(c.Subject, c.Status, now) {
			continue
		}
		msg := fmt.Sprintf("%s is %s", c.Subject, c.Status)
		switch {
		case c.Error != "":
			msg += ": " + c.Error
		case len(c.Alerts) > 0:
			msg += ": " + strings.Join(c.Alerts, "; ")
		}
		alerts = append(alerts, Alert{
			Kind:    KindService,
			Subject: c.Subject,
			Status:  c.Status,
			Message: msg,
			Details: c.Details,
		})
	}

	for i := range alerts {
		a := &alerts[i]
		a.ID = uuid.NewString()
		a.Severity = SeverityFor(a.Status)
		a.TriggeredAt = now
		alertsTotal.WithLabelValues(a.Subject, string(a.Status)).Inc()
		d.deliver(ctx, a)
	}
	return alerts
}

func (d *Dispatcher) deliver(ctx context.Context, alert *Alert) {
	for _, n := range d.notifiers {
		if err := n.Notify(ctx, alert); err != nil {
			d.logger.Warn("notification delivery failed",
				zap.String("notifier", n.Type()),
				zap.String("alert_id", alert.ID),
				zap.String("subject", alert.Subject),
				zap.Error(err),
			)
			continue
		}
		d.logger.Debug("notification delivered",
			zap.String("notifier", n.Type()),
			zap.String("alert_id", alert.ID),
		)
	}
	if d.bus != nil {
		if err := d.bus.Publish(ctx, platform.Event{
			Topic:     TopicAlertTriggered,
			Source:    EventSource,
			Timestamp: alert.TriggeredAt,
			Payload:   alert,
		}); err != nil {
			d.logger.Warn("publish alert event", zap.Error(err))
		}
	}
}
