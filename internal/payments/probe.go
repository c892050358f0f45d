package payments

import (
	"context"

	"github.com/HerbHall/creditdesk/internal/monitor"
	"github.com/jonboulle/clockwork"
)

var _ monitor.Probe = (*AccountProbe)(nil)

// AccountProbe looks up the processor account. An account that cannot take
// charges is a warning; one that cannot be read is an error.
type AccountProbe struct {
	provider Provider
	clock    clockwork.Clock
}

func NewAccountProbe(provider Provider, clock clockwork.Clock) *AccountProbe {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &AccountProbe{provider: provider, clock: clock}
}

func (p *AccountProbe) Name() string { return "payments" }

func (p *AccountProbe) Check(ctx context.Context) (*monitor.ProbeResult, error) {
	start := p.clock.Now()
	acct, err := p.provider.Account(ctx)
	elapsed := p.clock.Since(start)
	if err != nil {
		return &monitor.ProbeResult{Subject: p.Name(), LatencyMs: monitor.Latency(elapsed)}, err
	}

	res := &monitor.ProbeResult{
		Subject:   p.Name(),
		Status:    monitor.StatusHealthy,
		LatencyMs: monitor.Latency(elapsed),
		Details: map[string]any{
			"account_id":      acct.ID,
			"charges_enabled": acct.ChargesEnabled,
			"payouts_enabled": acct.PayoutsEnabled,
		},
	}
	if !acct.ChargesEnabled {
		res.Status = monitor.StatusWarning
		res.Alerts = append(res.Alerts, "charges are disabled on the payment account")
	}
	if !acct.PayoutsEnabled {
		res.Status = monitor.StatusWarning
		res.Alerts = append(res.Alerts, "payouts are disabled on the payment account")
	}
	return res, nil
}
