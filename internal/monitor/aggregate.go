package monitor

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Overall status thresholds on the healthy percentage (inclusive lower bounds).
const (
	HealthyThreshold  = 90.0
	DegradedThreshold = 70.0
)

// AggregatorConfig bounds a cycle.
type AggregatorConfig struct {
	Platform     string
	CycleTimeout time.Duration // whole cycle; default 60s
	ProbeTimeout time.Duration // each probe; default 10s
}

// Aggregator runs probes concurrently and builds HealthReports. It holds no
// state between cycles and may be shared.
type Aggregator struct {
	cfg    AggregatorConfig
	clock  clockwork.Clock
	logger *zap.Logger
}

// NewAggregator fills zero timeouts with defaults. A probe timeout longer
// than the cycle timeout is clamped to it.
func NewAggregator(cfg AggregatorConfig, clock clockwork.Clock, logger *zap.Logger) *Aggregator {
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = 60 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	if cfg.ProbeTimeout > cfg.CycleTimeout {
		cfg.ProbeTimeout = cfg.CycleTimeout
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Aggregator{cfg: cfg, clock: clock, logger: logger}
}

type slotResult struct {
	index  int
	result ProbeResult
}

// RunCycle runs every probe in its own goroutine and returns once all have
// finished or the cycle timeout (or ctx) ends the wait. Results keep the
// order of probes. A probe that errors, panics or returns nothing is
// recorded as StatusError with the reason; one still running when the wait
// ends is recorded as timed out and its late result is discarded.
func (a *Aggregator) RunCycle(ctx context.Context, probes []Probe) *HealthReport {
	started := a.clock.Now().UTC()

	cycleCtx, cancel := context.WithTimeout(ctx, a.cfg.CycleTimeout)
	defer cancel()

	// Buffered so that stragglers never block after we stop listening.
	done := make(chan slotResult, len(probes))
	names := make([]string, len(probes))
	for i, p := range probes {
		names[i] = probeName(p, i)
		go func(i int, p Probe) {
			done <- slotResult{index: i, result: a.runProbe(cycleCtx, p, names[i])}
		}(i, p)
	}

	results := make([]ProbeResult, len(probes))
	filled := make([]bool, len(probes))
	remaining := len(probes)

	timeout := a.clock.After(a.cfg.CycleTimeout)
wait:
	for remaining > 0 {
		select {
		case r := <-done:
			results[r.index] = r.result
			filled[r.index] = true
			remaining--
		case <-timeout:
			break wait
		case <-cycleCtx.Done():
			break wait
		}
	}

	if remaining > 0 {
		now := a.clock.Now().UTC()
		reason := fmt.Sprintf("probe timed out after %s", a.cfg.CycleTimeout)
		if ctx.Err() != nil {
			reason = fmt.Sprintf("cycle cancelled: %v", ctx.Err())
		}
		for i, ok := range filled {
			if ok {
				continue
			}
			results[i] = ProbeResult{
				Subject:   names[i],
				Status:    StatusError,
				Error:     reason,
				Timestamp: now,
			}
			a.logger.Warn("probe did not finish in time", zap.String("probe", names[i]))
		}
	}

	report := Summarize(results, started)
	report.Platform = a.cfg.Platform
	report.CompletedAt = a.clock.Now().UTC()
	report.DurationMs = float64(report.CompletedAt.Sub(started)) / float64(time.Millisecond)
	return report
}

// runProbe invokes p under the per-probe timeout and converts every failure
// mode into a result.
func (a *Aggregator) runProbe(ctx context.Context, p Probe, name string) (res ProbeResult) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("probe panicked", zap.String("probe", name), zap.Any("panic", r))
			res = ProbeResult{
				Subject:   name,
				Status:    StatusError,
				Error:     fmt.Sprintf("probe panicked: %v", r),
				Timestamp: a.clock.Now().UTC(),
			}
		}
	}()

	probeCtx, cancel := context.WithTimeout(ctx, a.cfg.ProbeTimeout)
	defer cancel()

	out, err := p.Check(probeCtx)
	switch {
	case err != nil:
		res = ProbeResult{Subject: name, Status: StatusError, Error: err.Error()}
		if out != nil {
			res.LatencyMs, res.Details = out.LatencyMs, out.Details
		}
	case out == nil:
		res = ProbeResult{Subject: name, Status: StatusError, Error: "probe returned no result"}
	default:
		res = *out
		if res.Subject == "" {
			res.Subject = name
		}
		if !res.Status.Valid() {
			res.Error = fmt.Sprintf("probe reported unknown status %q", res.Status)
			res.Status = StatusError
		}
	}
	if res.Timestamp.IsZero() {
		res.Timestamp = a.clock.Now().UTC()
	}
	return res
}

// probeName returns p.Name(), or a positional name when Name panics.
func probeName(p Probe, i int) (name string) {
	defer func() {
		if r := recover(); r != nil {
			name = fmt.Sprintf("probe-%d", i+1)
		}
	}()
	return p.Name()
}

// Summarize builds a report from finished results. It is pure: the same
// results always yield the same totals and overall status.
func Summarize(results []ProbeResult, started time.Time) *HealthReport {
	report := &HealthReport{
		Timestamp:   started,
		TotalChecks: len(results),
		Checks:      results,
		Summary:     make(map[string]Status, len(results)),
	}
	if report.Checks == nil {
		report.Checks = []ProbeResult{}
	}
	for _, r := range results {
		if r.Status == StatusHealthy {
			report.ChecksPassed++
		}
		report.Summary[r.Subject] = r.Status
	}
	report.HealthPercentage = HealthPercentage(report.ChecksPassed, report.TotalChecks)
	report.OverallStatus = DeriveOverall(report.HealthPercentage, report.TotalChecks)
	return report
}

// HealthPercentage is 100*healthy/total rounded to two decimals, or 0 when
// there is nothing to count.
func HealthPercentage(healthy, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(healthy)/float64(total)*100*100) / 100
}

// DeriveOverall maps a percentage onto healthy, degraded or unhealthy. An
// empty report is unhealthy.
func DeriveOverall(percentage float64, total int) Status {
	switch {
	case total == 0:
		return StatusUnhealthy
	case percentage >= HealthyThreshold:
		return StatusHealthy
	case percentage >= DegradedThreshold:
		return StatusDegraded
	default:
		return StatusUnhealthy
	}
}
