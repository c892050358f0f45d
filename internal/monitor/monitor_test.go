package monitor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/HerbHall/creditdesk/internal/event"
	"github.com/HerbHall/creditdesk/pkg/platform"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Interval = 0
	return cfg
}

func TestMonitor_RunOnce(t *testing.T) {
	rs := newReportStore(t)
	bus := event.NewBus(zap.NewNop())
	rec := &recordingNotifier{}
	clock := clockwork.NewFakeClockAt(epoch)

	var completed []*HealthReport
	bus.Subscribe(TopicReportCompleted, func(_ context.Context, e platform.Event) {
		completed = append(completed, e.Payload.(*HealthReport))
	})

	cfg := testConfig()
	cfg.ReportDir = t.TempDir()
	probes := []Probe{healthyProbe("api"), statusProbe("db", StatusUnhealthy)}
	m := New(cfg, probes, Options{Store: rs, Bus: bus, Notifiers: []Notifier{rec}, Clock: clock}, zap.NewNop())

	report, err := m.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if report.OverallStatus != StatusUnhealthy || report.Platform != "Credit Repair Platform" {
		t.Errorf("report = %s / %q", report.OverallStatus, report.Platform)
	}

	stored, err := rs.Latest(context.Background())
	if err != nil || stored.HealthPercentage != 50 {
		t.Errorf("stored = %+v, %v", stored, err)
	}
	if len(completed) != 1 {
		t.Errorf("report events = %d, want 1", len(completed))
	}
	if rec.count() != 2 {
		t.Errorf("alerts = %d, want platform + db", rec.count())
	}
	if _, err := os.Stat(filepath.Join(cfg.ReportDir, "health_report_20260301_120000.json")); err != nil {
		t.Errorf("report file: %v", err)
	}

	// Second cycle inside the cooldown persists but does not notify.
	if _, err := m.RunOnce(context.Background()); err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if rec.count() != 2 {
		t.Errorf("alerts after second cycle = %d, want 2", rec.count())
	}
	hist, _ := m.History(context.Background(), epoch.Add(-time.Hour), 0)
	if len(hist) != 2 {
		t.Errorf("history = %d, want 2", len(hist))
	}
}

func TestMonitor_LatestWithoutStore(t *testing.T) {
	m := New(testConfig(), []Probe{healthyProbe("api")}, Options{Clock: clockwork.NewFakeClockAt(epoch)}, zap.NewNop())

	if _, err := m.Latest(context.Background()); !errors.Is(err, ErrNoReport) {
		t.Fatalf("err = %v, want ErrNoReport", err)
	}
	if _, err := m.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	r, err := m.Latest(context.Background())
	if err != nil || r.OverallStatus != StatusHealthy {
		t.Errorf("Latest = %+v, %v", r, err)
	}
	hist, _ := m.History(context.Background(), epoch.Add(-time.Minute), 10)
	if len(hist) != 1 {
		t.Errorf("history = %d, want 1", len(hist))
	}
}

func TestMonitor_MaintenancePrunesHistory(t *testing.T) {
	rs := newReportStore(t)
	ctx := context.Background()
	_ = rs.Save(ctx, reportAt(epoch.Add(-48*time.Hour), StatusHealthy))
	_ = rs.Save(ctx, reportAt(epoch.Add(-time.Hour), StatusHealthy))

	m := New(testConfig(), nil, Options{Store: rs, Clock: clockwork.NewFakeClockAt(epoch)}, zap.NewNop())
	m.Gate().ShouldAlert("db", StatusError, epoch.Add(-time.Hour))
	m.runMaintenance(ctx)

	hist, _ := rs.History(ctx, time.Time{}, 0)
	if len(hist) != 1 {
		t.Errorf("history after prune = %d, want 1", len(hist))
	}
	if m.Gate().Len() != 0 {
		t.Errorf("gate entries = %d, want swept", m.Gate().Len())
	}
}
