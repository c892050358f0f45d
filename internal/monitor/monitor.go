package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HerbHall/creditdesk/pkg/platform"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Monitor ties one health cycle to its consequences: persistence, alerting,
// events, metrics and the optional report file.
type Monitor struct {
	cfg        Config
	probes     []Probe
	aggregator *Aggregator
	dispatcher *Dispatcher
	store      *ReportStore
	bus        platform.Publisher
	clock      clockwork.Clock
	logger     *zap.Logger

	latest atomic.Pointer[HealthReport]
	runMu  sync.Mutex

	scheduler   *Scheduler
	maintenance *Scheduler
}

// Options carries the optional collaborators of a Monitor.
type Options struct {
	Store     *ReportStore // nil keeps only the latest report in memory
	Bus       platform.Publisher
	Notifiers []Notifier
	Clock     clockwork.Clock
}

func New(cfg Config, probes []Probe, opts Options, logger *zap.Logger) *Monitor {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	m := &Monitor{
		cfg:    cfg,
		probes: probes,
		aggregator: NewAggregator(AggregatorConfig{
			Platform:     cfg.Platform,
			CycleTimeout: cfg.CycleTimeout,
			ProbeTimeout: cfg.ProbeTimeout,
		}, clock, logger),
		dispatcher: NewDispatcher(NewAlertGate(cfg.AlertCooldown), opts.Notifiers, opts.Bus, clock, logger),
		store:      opts.Store,
		bus:        opts.Bus,
		clock:      clock,
		logger:     logger,
	}
	if cfg.Interval > 0 {
		m.scheduler = NewScheduler(func(ctx context.Context) {
			if _, err := m.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Warn("scheduled health cycle", zap.Error(err))
			}
		}, cfg.Interval, clock, logger)
	}
	if m.store != nil && cfg.HistoryRetention > 0 {
		interval := cfg.MaintenanceInterval
		if interval <= 0 {
			interval = time.Hour
		}
		m.maintenance = NewScheduler(m.runMaintenance, interval, clock, logger)
	}
	return m
}

// Gate exposes the alert gate for operators.
func (m *Monitor) Gate() *AlertGate { return m.dispatcher.Gate() }

// Probes returns the configured probe names in run order.
func (m *Monitor) Probes() []string {
	names := make([]string, len(m.probes))
	for i, p := range m.probes {
		names[i] = p.Name()
	}
	return names
}

// RunOnce executes one cycle and everything that follows it. The report is
// returned even when persisting it fails; that error is returned alongside.
// Concurrent callers are serialized so alerts are decided in cycle order.
func (m *Monitor) RunOnce(ctx context.Context) (*HealthReport, error) {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	report := m.aggregator.RunCycle(ctx, m.probes)
	m.latest.Store(report)
	observeReport(report)

	var errs []error
	if m.store != nil {
		if err := m.store.Save(ctx, report); err != nil {
			errs = append(errs, err)
		}
	}

	alerts := m.dispatcher.Process(ctx, report)

	if m.bus != nil {
		if err := m.bus.Publish(ctx, platform.Event{
			Topic:     TopicReportCompleted,
			Source:    EventSource,
			Timestamp: report.CompletedAt,
			Payload:   report,
		}); err != nil {
			errs = append(errs, err)
		}
	}

	if m.cfg.ReportDir != "" {
		path, err := WriteReport(m.cfg.ReportDir, report, m.cfg.ReportFormat)
		if err != nil {
			errs = append(errs, err)
		} else {
			m.logger.Debug("report written", zap.String("path", path))
		}
	}

	m.logger.Info("health cycle completed",
		zap.String("overall_status", string(report.OverallStatus)),
		zap.Float64("health_percentage", report.HealthPercentage),
		zap.Int("checks_passed", report.ChecksPassed),
		zap.Int("total_checks", report.TotalChecks),
		zap.Int("alerts", len(alerts)),
		zap.Float64("duration_ms", report.DurationMs),
	)
	return report, errors.Join(errs...)
}

// Latest returns the most recent report, from memory if a cycle ran in this
// process, else from the store.
func (m *Monitor) Latest(ctx context.Context) (*HealthReport, error) {
	if r := m.latest.Load(); r != nil {
		return r, nil
	}
	if m.store == nil {
		return nil, ErrNoReport
	}
	return m.store.Latest(ctx)
}

// History returns stored reports since the given time, newest first.
func (m *Monitor) History(ctx context.Context, since time.Time, limit int) ([]HealthReport, error) {
	if m.store == nil {
		if r := m.latest.Load(); r != nil && !r.Timestamp.Before(since) {
			return []HealthReport{*r}, nil
		}
		return []HealthReport{}, nil
	}
	return m.store.History(ctx, since, limit)
}

// Start launches periodic cycles and history maintenance.
func (m *Monitor) Start(ctx context.Context) {
	if m.scheduler != nil {
		m.scheduler.Start(ctx)
	}
	if m.maintenance != nil {
		m.maintenance.Start(ctx)
	}
	m.logger.Info("monitor started",
		zap.Int("probes", len(m.probes)),
		zap.Duration("interval", m.cfg.Interval),
		zap.Duration("alert_cooldown", m.Gate().Cooldown()),
	)
}

// Stop halts the background loops and waits for them.
func (m *Monitor) Stop() {
	if m.scheduler != nil {
		m.scheduler.Stop()
	}
	if m.maintenance != nil {
		m.maintenance.Stop()
	}
}

func (m *Monitor) runMaintenance(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	now := m.clock.Now()
	deleted, err := m.store.DeleteBefore(ctx, now.Add(-m.cfg.HistoryRetention))
	if err != nil {
		m.logger.Warn("failed to prune report history", zap.Error(err))
	} else if deleted > 0 {
		m.logger.Info("pruned report history", zap.Int64("count", deleted))
	}
	if n := m.Gate().Sweep(now); n > 0 {
		m.logger.Debug("swept alert gate", zap.Int("entries", n))
	}
}
