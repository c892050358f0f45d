package monitor

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

var _ Probe = (*SystemProbe)(nil)

// Default resource thresholds, in percent.
const (
	DefaultCPUThreshold    = 80.0
	DefaultMemoryThreshold = 85.0
	DefaultDiskThreshold   = 90.0
)

// ResourceUsage is one sample of host utilisation.
type ResourceUsage struct {
	CPUPercent      float64
	MemoryPercent   float64
	MemoryAvailable uint64
	DiskPercent     float64
	DiskFree        uint64
}

// ResourceSampler reads host utilisation.
type ResourceSampler interface {
	Sample(ctx context.Context) (ResourceUsage, error)
}

// Thresholds are the usage percentages above which SystemProbe reports a
// problem. Zero fields take the defaults.
type Thresholds struct {
	CPU    float64 `mapstructure:"cpu"`
	Memory float64 `mapstructure:"memory"`
	Disk   float64 `mapstructure:"disk"`
}

func (t Thresholds) withDefaults() Thresholds {
	if t.CPU <= 0 {
		t.CPU = DefaultCPUThreshold
	}
	if t.Memory <= 0 {
		t.Memory = DefaultMemoryThreshold
	}
	if t.Disk <= 0 {
		t.Disk = DefaultDiskThreshold
	}
	return t
}

// SystemProbe checks the host the platform runs on. CPU or memory above
// threshold is a warning; a full disk is unhealthy since uploads and reports
// start failing. Each crossed threshold adds a line to Alerts.
type SystemProbe struct {
	Subject    string
	Thresholds Thresholds
	sampler    ResourceSampler
}

// NewSystemProbe builds a probe over sampler; nil samples the local host,
// measuring disk usage at path ("/" when empty).
func NewSystemProbe(subject, path string, thresholds Thresholds, sampler ResourceSampler) *SystemProbe {
	if sampler == nil {
		sampler = HostSampler{Path: path}
	}
	return &SystemProbe{Subject: subject, Thresholds: thresholds.withDefaults(), sampler: sampler}
}

func (p *SystemProbe) Name() string { return p.Subject }

func (p *SystemProbe) Check(ctx context.Context) (*ProbeResult, error) {
	u, err := p.sampler.Sample(ctx)
	if err != nil {
		return nil, fmt.Errorf("sample system resources: %w", err)
	}

	res := &ProbeResult{
		Subject: p.Subject,
		Status:  StatusHealthy,
		Details: map[string]any{
			"cpu_percent":         round2(u.CPUPercent),
			"memory_percent":      round2(u.MemoryPercent),
			"memory_available_gb": round2(float64(u.MemoryAvailable) / (1 << 30)),
			"disk_percent":        round2(u.DiskPercent),
			"disk_free_gb":        round2(float64(u.DiskFree) / (1 << 30)),
		},
	}
	if u.CPUPercent > p.Thresholds.CPU {
		res.Status = StatusWarning
		res.Alerts = append(res.Alerts, fmt.Sprintf("High CPU usage: %.1f%%", u.CPUPercent))
	}
	if u.MemoryPercent > p.Thresholds.Memory {
		res.Status = StatusWarning
		res.Alerts = append(res.Alerts, fmt.Sprintf("High memory usage: %.1f%%", u.MemoryPercent))
	}
	if u.DiskPercent > p.Thresholds.Disk {
		res.Status = StatusUnhealthy
		res.Alerts = append(res.Alerts, fmt.Sprintf("High disk usage: %.1f%%", u.DiskPercent))
	}
	return res, nil
}

// HostSampler reads the local host through gopsutil.
type HostSampler struct {
	Path      string        // filesystem to measure; "/" when empty
	CPUWindow time.Duration // CPU averaging window; 1s when zero
}

func (h HostSampler) Sample(ctx context.Context) (ResourceUsage, error) {
	path, window := h.Path, h.CPUWindow
	if path == "" {
		path = "/"
	}
	if window <= 0 {
		window = time.Second
	}

	var u ResourceUsage
	pct, err := cpu.PercentWithContext(ctx, window, false)
	if err != nil {
		return u, fmt.Errorf("cpu: %w", err)
	}
	if len(pct) > 0 {
		u.CPUPercent = pct[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return u, fmt.Errorf("memory: %w", err)
	}
	u.MemoryPercent, u.MemoryAvailable = vm.UsedPercent, vm.Available

	du, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return u, fmt.Errorf("disk %s: %w", path, err)
	}
	u.DiskPercent, u.DiskFree = du.UsedPercent, du.Free
	return u, nil
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
