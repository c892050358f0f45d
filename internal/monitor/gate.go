package monitor

import (
	"sync"
	"time"
)

// DefaultAlertCooldown is the gate window when none is configured.
const DefaultAlertCooldown = 30 * time.Minute

type gateKey struct {
	subject string
	status  Status
}

// AlertGate suppresses repeated alerts for the same (subject, status) pair
// within a cooldown window. It is safe for concurrent use.
type AlertGate struct {
	cooldown time.Duration

	mu   sync.Mutex
	last map[gateKey]time.Time
}

// NewAlertGate returns a gate with the given cooldown. A non-positive value
// selects DefaultAlertCooldown.
func NewAlertGate(cooldown time.Duration) *AlertGate {
	if cooldown <= 0 {
		cooldown = DefaultAlertCooldown
	}
	return &AlertGate{cooldown: cooldown, last: make(map[gateKey]time.Time)}
}

// Cooldown returns the configured window.
func (g *AlertGate) Cooldown() time.Duration { return g.cooldown }

// ShouldAlert reports whether an alert for subject in status may fire at now.
// Healthy never alerts and leaves the gate untouched. A true answer records
// now for the pair; a false answer changes nothing.
func (g *AlertGate) ShouldAlert(subject string, status Status, now time.Time) bool {
	if status == StatusHealthy {
		return false
	}
	key := gateKey{subject: subject, status: status}

	g.mu.Lock()
	defer g.mu.Unlock()
	if last, ok := g.last[key]; ok && now.Sub(last) < g.cooldown {
		return false
	}
	g.last[key] = now
	return true
}

// Reset forgets every recorded alert.
func (g *AlertGate) Reset() {
	g.mu.Lock()
	g.last = make(map[gateKey]time.Time)
	g.mu.Unlock()
}

// Len returns the number of tracked pairs.
func (g *AlertGate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.last)
}

// Sweep drops pairs whose window has fully elapsed at now. Such pairs would
// be allowed to alert anyway, so dropping them never changes a decision.
func (g *AlertGate) Sweep(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	removed := 0
	for k, last := range g.last {
		if now.Sub(last) >= g.cooldown {
			delete(g.last, k)
			removed++
		}
	}
	return removed
}
