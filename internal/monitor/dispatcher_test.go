package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/HerbHall/creditdesk/internal/event"
	"github.com/HerbHall/creditdesk/pkg/platform"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, a *Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, *a)
	return n.err
}

func (n *recordingNotifier) Type() string { return "recording" }

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

func reportOf(results ...ProbeResult) *HealthReport {
	return Summarize(results, epoch)
}

func TestDispatcher_PlatformAndServiceAlerts(t *testing.T) {
	rec := &recordingNotifier{}
	d := NewDispatcher(NewAlertGate(30*time.Minute), []Notifier{rec}, nil, clockwork.NewFakeClockAt(epoch), zap.NewNop())

	report := reportOf(
		ProbeResult{Subject: "api", Status: StatusHealthy},
		ProbeResult{Subject: "db", Status: StatusUnhealthy, Error: "HTTP 503"},
		ProbeResult{Subject: "postal", Status: StatusError, Error: "token request failed"},
		ProbeResult{Subject: "disk", Status: StatusWarning},
	)
	alerts := d.Process(context.Background(), report)

	if len(alerts) != 4 {
		t.Fatalf("got %d alerts, want 4 (platform + 3 services)", len(alerts))
	}
	if alerts[0].Kind != KindPlatform || alerts[0].Status != StatusUnhealthy {
		t.Errorf("first alert = %+v, want platform/unhealthy", alerts[0])
	}
	if alerts[1].Subject != "db" || alerts[1].Message != "db is unhealthy: HTTP 503" {
		t.Errorf("db alert = %+v", alerts[1])
	}
	if alerts[1].Severity != "critical" || alerts[3].Severity != "warning" {
		t.Errorf("severities = %s, %s", alerts[1].Severity, alerts[3].Severity)
	}
	for _, a := range alerts {
		if a.ID == "" || !a.TriggeredAt.Equal(epoch) {
			t.Errorf("alert %s missing id or timestamp: %+v", a.Subject, a)
		}
	}
	if rec.count() != 4 {
		t.Errorf("notifier received %d, want 4", rec.count())
	}
}

func TestDispatcher_ResourceAlertsInMessage(t *testing.T) {
	d := NewDispatcher(NewAlertGate(30*time.Minute), nil, nil, clockwork.NewFakeClockAt(epoch), zap.NewNop())
	report := reportOf(
		ProbeResult{Subject: "api", Status: StatusHealthy},
		ProbeResult{Subject: "system", Status: StatusWarning, Alerts: []string{"High CPU usage: 93.5%", "High memory usage: 90.0%"}},
	)
	alerts := d.Process(context.Background(), report)

	var msg string
	for _, a := range alerts {
		if a.Subject == "system" {
			msg = a.Message
		}
	}
	if want := "system is warning: High CPU usage: 93.5%; High memory usage: 90.0%"; msg != want {
		t.Errorf("message = %q, want %q", msg, want)
	}
}

func TestDispatcher_HealthyReportIsSilent(t *testing.T) {
	rec := &recordingNotifier{}
	d := NewDispatcher(NewAlertGate(time.Minute), []Notifier{rec}, nil, clockwork.NewFakeClockAt(epoch), zap.NewNop())

	alerts := d.Process(context.Background(), reportOf(
		ProbeResult{Subject: "api", Status: StatusHealthy},
		ProbeResult{Subject: "db", Status: StatusHealthy},
	))
	if len(alerts) != 0 || rec.count() != 0 {
		t.Errorf("healthy report produced %d alerts", len(alerts))
	}
}

func TestDispatcher_DegradedPlatformAlert(t *testing.T) {
	d := NewDispatcher(NewAlertGate(time.Minute), nil, nil, clockwork.NewFakeClockAt(epoch), zap.NewNop())

	results := make([]ProbeResult, 0, 10)
	for range 8 {
		results = append(results, ProbeResult{Subject: "ok", Status: StatusHealthy})
	}
	results = append(results, ProbeResult{Subject: "x", Status: StatusDegraded}, ProbeResult{Subject: "y", Status: StatusDegraded})

	alerts := d.Process(context.Background(), reportOf(results...))
	if len(alerts) != 1 || alerts[0].Status != StatusDegraded {
		t.Errorf("alerts = %+v, want one degraded platform alert", alerts)
	}
}

func TestDispatcher_CooldownAcrossCycles(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	rec := &recordingNotifier{}
	d := NewDispatcher(NewAlertGate(30*time.Minute), []Notifier{rec}, nil, clock, zap.NewNop())
	report := reportOf(
		ProbeResult{Subject: "api", Status: StatusHealthy},
		ProbeResult{Subject: "b", Status: StatusHealthy},
		ProbeResult{Subject: "c", Status: StatusHealthy},
		ProbeResult{Subject: "d", Status: StatusHealthy},
		ProbeResult{Subject: "e", Status: StatusHealthy},
		ProbeResult{Subject: "f", Status: StatusHealthy},
		ProbeResult{Subject: "g", Status: StatusHealthy},
		ProbeResult{Subject: "h", Status: StatusHealthy},
		ProbeResult{Subject: "i", Status: StatusHealthy},
		ProbeResult{Subject: "db", Status: StatusUnhealthy},
	)

	ctx := context.Background()
	if n := len(d.Process(ctx, report)); n != 1 {
		t.Fatalf("first cycle: %d alerts, want 1", n)
	}
	clock.Advance(5 * time.Minute)
	if n := len(d.Process(ctx, report)); n != 0 {
		t.Errorf("cycle inside cooldown: %d alerts, want 0", n)
	}
	clock.Advance(26 * time.Minute)
	if n := len(d.Process(ctx, report)); n != 1 {
		t.Errorf("cycle after cooldown: %d alerts, want 1", n)
	}
	if rec.count() != 2 {
		t.Errorf("notifier received %d, want 2", rec.count())
	}
}

func TestDispatcher_FailingNotifierDoesNotStopOthers(t *testing.T) {
	failing := &recordingNotifier{err: errors.New("smtp down")}
	rec := &recordingNotifier{}
	bus := event.NewBus(zap.NewNop())

	var published []platform.Event
	bus.Subscribe(TopicAlertTriggered, func(_ context.Context, e platform.Event) {
		published = append(published, e)
	})

	d := NewDispatcher(NewAlertGate(time.Minute), []Notifier{failing, rec}, bus, clockwork.NewFakeClockAt(epoch), zap.NewNop())
	d.Process(context.Background(), reportOf(ProbeResult{Subject: "db", Status: StatusError}))

	if failing.count() != 2 || rec.count() != 2 {
		t.Errorf("deliveries = %d/%d, want 2/2", failing.count(), rec.count())
	}
	if len(published) != 2 {
		t.Fatalf("published %d events, want 2", len(published))
	}
	if a, ok := published[1].Payload.(*Alert); !ok || a.Subject != "db" {
		t.Errorf("payload = %#v, want *Alert for db", published[1].Payload)
	}
}
