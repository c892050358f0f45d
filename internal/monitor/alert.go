package monitor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Alert kinds.
const (
	KindPlatform = "platform"
	KindService  = "service"
)

// PlatformSubject is the gate subject used for report-level alerts.
const PlatformSubject = "platform"

// Alert is one notification that passed the gate.
type Alert struct {
	ID          string         `json:"id"`
	Kind        string         `json:"kind"`
	Subject     string         `json:"subject"`
	Status      Status         `json:"status"`
	Severity    string         `json:"severity"`
	Message     string         `json:"message"`
	Details     map[string]any `json:"details,omitempty"`
	TriggeredAt time.Time      `json:"triggered_at"`
}

// SeverityFor maps a status onto a notification severity.
func SeverityFor(s Status) string {
	switch s {
	case StatusUnhealthy, StatusError:
		return "critical"
	case StatusDegraded, StatusWarning:
		return "warning"
	default:
		return "info"
	}
}

// Notifier delivers alerts through one channel.
type Notifier interface {
	Notify(ctx context.Context, alert *Alert) error
	// Type returns the channel identifier ("webhook", "alertmanager", "log").
	Type() string
}

// NotifierConfig describes one configured channel under monitor.notifiers.
type NotifierConfig struct {
	Type    string            `mapstructure:"type"`
	URL     string            `mapstructure:"url"`
	Secret  string            `mapstructure:"secret"` //nolint:gosec // G101: config field name, not a credential
	Headers map[string]string `mapstructure:"headers"`
}

// BuildNotifier constructs the notifier for cfg.
func BuildNotifier(cfg NotifierConfig, logger *zap.Logger) (Notifier, error) {
	switch cfg.Type {
	case "webhook":
		if cfg.URL == "" {
			return nil, fmt.Errorf("webhook notifier: url is required")
		}
		return NewWebhookNotifier(WebhookConfig{URL: cfg.URL, Secret: cfg.Secret, Headers: cfg.Headers}), nil
	case "alertmanager":
		if cfg.URL == "" {
			return nil, fmt.Errorf("alertmanager notifier: url is required")
		}
		return NewAlertmanagerNotifier(AlertmanagerConfig{URL: cfg.URL, Secret: cfg.Secret}), nil
	case "log", "":
		return NewLogNotifier(logger), nil
	default:
		return nil, fmt.Errorf("unknown notifier type %q", cfg.Type)
	}
}

var _ Notifier = (*LogNotifier)(nil)

// LogNotifier writes alerts to the structured log.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, alert *Alert) error {
	n.logger.Warn("health alert",
		zap.String("alert_id", alert.ID),
		zap.String("kind", alert.Kind),
		zap.String("subject", alert.Subject),
		zap.String("status", string(alert.Status)),
		zap.String("severity", alert.Severity),
		zap.String("message", alert.Message),
	)
	return nil
}

func (n *LogNotifier) Type() string { return "log" }
