package monitor

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"runtime"
	"time"

	"github.com/jonboulle/clockwork"
	probing "github.com/prometheus-community/pro-bing"
)

var (
	_ Probe = (*HTTPProbe)(nil)
	_ Probe = (*TCPProbe)(nil)
	_ Probe = (*ICMPProbe)(nil)
	_ Probe = (*SQLProbe)(nil)
	_ Probe = ProbeFunc{}
)

// maxDetailBody bounds how much of a status endpoint's body is decoded.
const maxDetailBody = 64 << 10

// HTTPProbe GETs a status endpoint. 2xx (or ExpectStatus when set) is
// healthy, anything else unhealthy. A JSON object body becomes Details.
type HTTPProbe struct {
	Subject      string
	URL          string
	Headers      map[string]string
	ExpectStatus int

	client *http.Client
	clock  clockwork.Clock
}

// NewHTTPProbe builds an HTTP probe. Self-signed TLS certificates are accepted.
func NewHTTPProbe(subject, url string, headers map[string]string, expectStatus int, clock clockwork.Clock) *HTTPProbe {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &HTTPProbe{
		Subject:      subject,
		URL:          url,
		Headers:      headers,
		ExpectStatus: expectStatus,
		client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig:   &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: true}, //nolint:gosec // G402: internal status endpoints often use self-signed certs
				DisableKeepAlives: true,
			},
		},
		clock: clock,
	}
}

func (p *HTTPProbe) Name() string { return p.Subject }

func (p *HTTPProbe) Check(ctx context.Context) (*ProbeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", p.URL, err)
	}
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}

	start := p.clock.Now()
	resp, err := p.client.Do(req)
	elapsed := p.clock.Since(start)
	if err != nil {
		return &ProbeResult{Subject: p.Subject, LatencyMs: Latency(elapsed)}, fmt.Errorf("http get %s: %w", p.URL, err)
	}
	defer resp.Body.Close()

	res := &ProbeResult{
		Subject:   p.Subject,
		Status:    StatusHealthy,
		LatencyMs: Latency(elapsed),
		Details:   map[string]any{"status_code": resp.StatusCode},
	}
	var body map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDetailBody)).Decode(&body); err == nil {
		for k, v := range body {
			res.Details[k] = v
		}
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if p.ExpectStatus != 0 {
		ok = resp.StatusCode == p.ExpectStatus
	}
	if !ok {
		res.Status = StatusUnhealthy
		res.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return res, nil
}

// TCPProbe dials host:port.
type TCPProbe struct {
	Subject string
	Address string

	clock clockwork.Clock
}

func NewTCPProbe(subject, address string, clock clockwork.Clock) *TCPProbe {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TCPProbe{Subject: subject, Address: address, clock: clock}
}

func (p *TCPProbe) Name() string { return p.Subject }

func (p *TCPProbe) Check(ctx context.Context) (*ProbeResult, error) {
	if _, _, err := net.SplitHostPort(p.Address); err != nil {
		return nil, fmt.Errorf("invalid target %q: %w", p.Address, err)
	}

	var dialer net.Dialer
	start := p.clock.Now()
	conn, err := dialer.DialContext(ctx, "tcp", p.Address)
	elapsed := p.clock.Since(start)
	if err != nil {
		return &ProbeResult{
			Subject:   p.Subject,
			Status:    StatusUnhealthy,
			LatencyMs: Latency(elapsed),
			Error:     err.Error(),
		}, nil
	}
	conn.Close()
	return &ProbeResult{Subject: p.Subject, Status: StatusHealthy, LatencyMs: Latency(elapsed)}, nil
}

// ICMPProbe pings a host. Any reply is healthy; partial loss is a warning.
type ICMPProbe struct {
	Subject string
	Host    string
	Count   int
}

func NewICMPProbe(subject, host string, count int) *ICMPProbe {
	if count <= 0 {
		count = 3
	}
	return &ICMPProbe{Subject: subject, Host: host, Count: count}
}

func (p *ICMPProbe) Name() string { return p.Subject }

func (p *ICMPProbe) Check(ctx context.Context) (*ProbeResult, error) {
	pinger, err := probing.NewPinger(p.Host)
	if err != nil {
		return nil, fmt.Errorf("create pinger for %s: %w", p.Host, err)
	}
	pinger.Count = p.Count
	if deadline, ok := ctx.Deadline(); ok {
		pinger.Timeout = time.Until(deadline)
	}
	pinger.SetPrivileged(runtime.GOOS == "windows")

	if err := pinger.RunWithContext(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("ping %s: %w", p.Host, err)
	}

	stats := pinger.Statistics()
	res := &ProbeResult{
		Subject: p.Subject,
		Details: map[string]any{
			"packets_sent": stats.PacketsSent,
			"packets_recv": stats.PacketsRecv,
			"packet_loss":  stats.PacketLoss,
		},
	}
	switch {
	case stats.PacketsRecv == 0:
		res.Status = StatusUnhealthy
		res.Error = fmt.Sprintf("no reply from %s", p.Host)
	case stats.PacketsRecv < stats.PacketsSent:
		res.Status = StatusWarning
		res.LatencyMs = Latency(stats.AvgRtt)
	default:
		res.Status = StatusHealthy
		res.LatencyMs = Latency(stats.AvgRtt)
	}
	return res, nil
}

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// SQLProbe checks database reachability.
type SQLProbe struct {
	Subject string
	DB      Pinger

	clock clockwork.Clock
}

func NewSQLProbe(subject string, db Pinger, clock clockwork.Clock) *SQLProbe {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SQLProbe{Subject: subject, DB: db, clock: clock}
}

func (p *SQLProbe) Name() string { return p.Subject }

func (p *SQLProbe) Check(ctx context.Context) (*ProbeResult, error) {
	start := p.clock.Now()
	err := p.DB.PingContext(ctx)
	elapsed := p.clock.Since(start)
	if err != nil {
		return &ProbeResult{Subject: p.Subject, LatencyMs: Latency(elapsed)}, fmt.Errorf("ping database: %w", err)
	}
	return &ProbeResult{Subject: p.Subject, Status: StatusHealthy, LatencyMs: Latency(elapsed)}, nil
}
