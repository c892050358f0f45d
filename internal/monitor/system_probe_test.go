package monitor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type fixedSampler struct {
	usage ResourceUsage
	err   error
}

func (s fixedSampler) Sample(context.Context) (ResourceUsage, error) { return s.usage, s.err }

func TestSystemProbe(t *testing.T) {
	tests := []struct {
		name       string
		usage      ResourceUsage
		wantStatus Status
		wantAlerts []string
	}{
		{
			name:       "quiet host",
			usage:      ResourceUsage{CPUPercent: 12, MemoryPercent: 40, DiskPercent: 55},
			wantStatus: StatusHealthy,
		},
		{
			name:       "busy cpu",
			usage:      ResourceUsage{CPUPercent: 93.5, MemoryPercent: 40, DiskPercent: 55},
			wantStatus: StatusWarning,
			wantAlerts: []string{"High CPU usage: 93.5%"},
		},
		{
			name:       "cpu and memory",
			usage:      ResourceUsage{CPUPercent: 81, MemoryPercent: 90, DiskPercent: 55},
			wantStatus: StatusWarning,
			wantAlerts: []string{"High CPU usage: 81.0%", "High memory usage: 90.0%"},
		},
		{
			name:       "full disk",
			usage:      ResourceUsage{CPUPercent: 12, MemoryPercent: 40, DiskPercent: 97},
			wantStatus: StatusUnhealthy,
			wantAlerts: []string{"High disk usage: 97.0%"},
		},
		{
			name:       "exactly at threshold",
			usage:      ResourceUsage{CPUPercent: 80, MemoryPercent: 85, DiskPercent: 90},
			wantStatus: StatusHealthy,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := NewSystemProbe("system", "", Thresholds{}, fixedSampler{usage: tc.usage})
			res, err := p.Check(context.Background())
			if err != nil {
				t.Fatalf("Check: %v", err)
			}
			if res.Status != tc.wantStatus {
				t.Errorf("Status = %s, want %s", res.Status, tc.wantStatus)
			}
			if strings.Join(res.Alerts, "|") != strings.Join(tc.wantAlerts, "|") {
				t.Errorf("Alerts = %q, want %q", res.Alerts, tc.wantAlerts)
			}
			if res.Details["cpu_percent"] != tc.usage.CPUPercent {
				t.Errorf("cpu_percent = %v", res.Details["cpu_percent"])
			}
		})
	}
}

func TestSystemProbe_CustomThresholds(t *testing.T) {
	p := NewSystemProbe("system", "", Thresholds{CPU: 50}, fixedSampler{usage: ResourceUsage{CPUPercent: 60, MemoryPercent: 86}})
	res, err := p.Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Status != StatusWarning || len(res.Alerts) != 2 {
		t.Errorf("result = %+v, want warning with cpu and default memory alerts", res)
	}
}

func TestSystemProbe_SamplerError(t *testing.T) {
	p := NewSystemProbe("system", "", Thresholds{}, fixedSampler{err: errors.New("no /proc")})
	if _, err := p.Check(context.Background()); err == nil || !strings.Contains(err.Error(), "no /proc") {
		t.Errorf("err = %v", err)
	}
}

func TestBuildProbes_System(t *testing.T) {
	probes, err := BuildProbes([]ProbeSpec{{
		Name:       "host",
		Type:       ProbeSystem,
		Thresholds: Thresholds{Disk: 50},
	}}, ProbeDeps{Sampler: fixedSampler{usage: ResourceUsage{DiskPercent: 60}}})
	if err != nil {
		t.Fatalf("BuildProbes: %v", err)
	}
	res, err := probes[0].Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Subject != "host" || res.Status != StatusUnhealthy {
		t.Errorf("result = %+v", res)
	}
}

func TestHostSampler(t *testing.T) {
	if testing.Short() {
		t.Skip("samples the real host")
	}
	u, err := HostSampler{CPUWindow: 50 * time.Millisecond}.Sample(context.Background())
	if err != nil {
		t.Skipf("host metrics unavailable: %v", err)
	}
	if u.MemoryPercent <= 0 || u.MemoryPercent > 100 {
		t.Errorf("MemoryPercent = %v", u.MemoryPercent)
	}
}
