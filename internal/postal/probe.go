package postal

import (
	"context"
	"time"

	"github.com/HerbHall/creditdesk/internal/monitor"
	"github.com/jonboulle/clockwork"
)

var _ monitor.Probe = (*TokenProbe)(nil)

// TokenProbe reports whether the client can hold a valid access token.
type TokenProbe struct {
	client *Client
	clock  clockwork.Clock
}

func NewTokenProbe(client *Client, clock clockwork.Clock) *TokenProbe {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TokenProbe{client: client, clock: clock}
}

func (p *TokenProbe) Name() string { return "postal" }

func (p *TokenProbe) Check(ctx context.Context) (*monitor.ProbeResult, error) {
	start := p.clock.Now()
	tok, err := p.client.Token(ctx)
	elapsed := p.clock.Since(start)
	if err != nil {
		return &monitor.ProbeResult{Subject: p.Name(), LatencyMs: monitor.Latency(elapsed)}, err
	}
	details := map[string]any{"token_type": tok.Type()}
	if !tok.Expiry.IsZero() {
		details["expires_in_seconds"] = int(tok.Expiry.Sub(p.clock.Now()) / time.Second)
	}
	return &monitor.ProbeResult{
		Subject:   p.Name(),
		Status:    monitor.StatusHealthy,
		LatencyMs: monitor.Latency(elapsed),
		Details:   details,
	}, nil
}
