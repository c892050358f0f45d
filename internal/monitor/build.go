package monitor

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"
)

// Probe types accepted in monitor.probes.
const (
	ProbeHTTP     = "http"
	ProbeTCP      = "tcp"
	ProbeICMP     = "icmp"
	ProbeSQL      = "sql"
	ProbePostal   = "postal"
	ProbePayments = "payments"
	ProbeSystem   = "system"
)

// ProbeSpec is one configured probe.
type ProbeSpec struct {
	Name         string            `mapstructure:"name"`
	Type         string            `mapstructure:"type"`
	Target       string            `mapstructure:"target"`
	Headers      map[string]string `mapstructure:"headers"`
	ExpectStatus int               `mapstructure:"expect_status"`
	Count        int               `mapstructure:"count"`
	Path         string            `mapstructure:"path"`
	Thresholds   Thresholds        `mapstructure:"thresholds"`
}

// ProbeDeps supplies the collaborators some probe types need.
type ProbeDeps struct {
	DB       Pinger
	Postal   Probe
	Payments Probe
	Sampler  ResourceSampler // nil samples the local host
	Clock    clockwork.Clock
}

// BuildProbes turns configuration into probes. Names must be unique since
// they key the report summary and the alert gate.
func BuildProbes(specs []ProbeSpec, deps ProbeDeps) ([]Probe, error) {
	probes := make([]Probe, 0, len(specs))
	seen := make(map[string]bool, len(specs))
	for i, s := range specs {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return nil, fmt.Errorf("probe %d: name is required", i)
		}
		if seen[name] {
			return nil, fmt.Errorf("probe %q: duplicate name", name)
		}
		seen[name] = true

		p, err := buildProbe(name, s, deps)
		if err != nil {
			return nil, fmt.Errorf("probe %q: %w", name, err)
		}
		probes = append(probes, p)
	}
	return probes, nil
}

func buildProbe(name string, s ProbeSpec, deps ProbeDeps) (Probe, error) {
	switch strings.ToLower(s.Type) {
	case ProbeHTTP:
		if s.Target == "" {
			return nil, fmt.Errorf("http probe needs a target URL")
		}
		return NewHTTPProbe(name, s.Target, s.Headers, s.ExpectStatus, deps.Clock), nil
	case ProbeTCP:
		if s.Target == "" {
			return nil, fmt.Errorf("tcp probe needs a host:port target")
		}
		return NewTCPProbe(name, s.Target, deps.Clock), nil
	case ProbeICMP:
		if s.Target == "" {
			return nil, fmt.Errorf("icmp probe needs a host target")
		}
		return NewICMPProbe(name, s.Target, s.Count), nil
	case ProbeSystem:
		return NewSystemProbe(name, s.Path, s.Thresholds, deps.Sampler), nil
	case ProbeSQL:
		if deps.DB == nil {
			return nil, fmt.Errorf("sql probe: no database configured")
		}
		return NewSQLProbe(name, deps.DB, deps.Clock), nil
	case ProbePostal:
		if deps.Postal == nil {
			return nil, fmt.Errorf("postal probe: postal client is disabled")
		}
		return renamed{name: name, Probe: deps.Postal}, nil
	case ProbePayments:
		if deps.Payments == nil {
			return nil, fmt.Errorf("payments probe: payment provider is disabled")
		}
		return renamed{name: name, Probe: deps.Payments}, nil
	default:
		return nil, fmt.Errorf("unknown probe type %q", s.Type)
	}
}

// renamed reports an injected probe under its configured name.
type renamed struct {
	Probe
	name string
}

func (r renamed) Name() string { return r.name }

func (r renamed) Check(ctx context.Context) (*ProbeResult, error) {
	res, err := r.Probe.Check(ctx)
	if res != nil {
		res.Subject = r.name
	}
	return res, err
}
