// Package monitor runs the platform health checks: it fans probes out
// concurrently, folds their results into a HealthReport, and decides through
// an AlertGate which findings may notify.
package monitor

import (
	"context"
	"time"
)

// Status is the health classification of one probe or of a whole report.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusError     Status = "error"
	StatusWarning   Status = "warning"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusHealthy, StatusDegraded, StatusUnhealthy, StatusError, StatusWarning:
		return true
	}
	return false
}

// ProbeResult is the outcome of one probe in one cycle.
type ProbeResult struct {
	Subject   string         `json:"service" yaml:"service"`
	Status    Status         `json:"status" yaml:"status"`
	LatencyMs *float64       `json:"response_time_ms,omitempty" yaml:"response_time_ms,omitempty"`
	Error     string         `json:"error,omitempty" yaml:"error,omitempty"`
	Details   map[string]any `json:"details,omitempty" yaml:"details,omitempty"`
	Alerts    []string       `json:"alerts,omitempty" yaml:"alerts,omitempty"`
	Timestamp time.Time      `json:"timestamp" yaml:"timestamp"`
}

// Latency converts d into the optional LatencyMs field.
func Latency(d time.Duration) *float64 {
	ms := float64(d) / float64(time.Millisecond)
	return &ms
}

// HealthReport aggregates one cycle. Timestamp is when the cycle started.
type HealthReport struct {
	Platform         string            `json:"platform" yaml:"platform"`
	OverallStatus    Status            `json:"overall_status" yaml:"overall_status"`
	HealthPercentage float64           `json:"health_percentage" yaml:"health_percentage"`
	ChecksPassed     int               `json:"checks_passed" yaml:"checks_passed"`
	TotalChecks      int               `json:"total_checks" yaml:"total_checks"`
	Timestamp        time.Time         `json:"timestamp" yaml:"timestamp"`
	CompletedAt      time.Time         `json:"completed_at" yaml:"completed_at"`
	DurationMs       float64           `json:"duration_ms" yaml:"duration_ms"`
	Checks           []ProbeResult     `json:"checks" yaml:"checks"`
	Summary          map[string]Status `json:"summary" yaml:"summary"`
}

// Probe checks one subject. Implementations may return an error or even
// panic; the aggregator turns either into a StatusError result.
type Probe interface {
	Name() string
	Check(ctx context.Context) (*ProbeResult, error)
}

// ProbeFunc adapts a function into a Probe.
type ProbeFunc struct {
	Subject string
	Fn      func(ctx context.Context) (*ProbeResult, error)
}

func (p ProbeFunc) Name() string { return p.Subject }

func (p ProbeFunc) Check(ctx context.Context) (*ProbeResult, error) { return p.Fn(ctx) }
