package monitor

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/HerbHall/creditdesk/internal/version"
)

var (
	_ Notifier = (*WebhookNotifier)(nil)
	_ Notifier = (*AlertmanagerNotifier)(nil)
)

// WebhookConfig configures a generic JSON webhook.
type WebhookConfig struct {
	URL     string
	Secret  string //nolint:gosec // G101: config field name, not a credential
	Headers map[string]string
}

// AlertmanagerConfig configures an Alertmanager-compatible receiver.
type AlertmanagerConfig struct {
	URL    string
	Secret string //nolint:gosec // G101: config field name, not a credential
}

type webhookPayload struct {
	EventType string    `json:"event_type"`
	Alert     *Alert    `json:"alert"`
	Timestamp time.Time `json:"timestamp"`
}

// WebhookNotifier POSTs each alert as JSON.
type WebhookNotifier struct {
	client *http.Client
	cfg    WebhookConfig
}

func NewWebhookNotifier(cfg WebhookConfig) *WebhookNotifier {
	return &WebhookNotifier{client: &http.Client{Timeout: 10 * time.Second}, cfg: cfg}
}

func (w *WebhookNotifier) Notify(ctx context.Context, alert *Alert) error {
	body, err := json.Marshal(webhookPayload{
		EventType: "triggered",
		Alert:     alert,
		Timestamp: alert.TriggeredAt,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	return post(ctx, w.client, "webhook", w.cfg.URL, w.cfg.Secret, w.cfg.Headers, body)
}

func (w *WebhookNotifier) Type() string { return "webhook" }

// alertmanagerPayload matches the Alertmanager webhook receiver format (v4).
type alertmanagerPayload struct {
	Version string              `json:"version"`
	Status  string              `json:"status"`
	Alerts  []alertmanagerAlert `json:"alerts"`
}

type alertmanagerAlert struct {
	Status       string            `json:"status"`
	Labels       map[string]string `json:"labels"`
	Annotations  map[string]string `json:"annotations"`
	StartsAt     time.Time         `json:"startsAt"`
	EndsAt       time.Time         `json:"endsAt"`
	GeneratorURL string            `json:"generatorURL"`
}

// AlertmanagerNotifier delivers alerts in Alertmanager webhook format.
type AlertmanagerNotifier struct {
	client *http.Client
	cfg    AlertmanagerConfig
}

func NewAlertmanagerNotifier(cfg AlertmanagerConfig) *AlertmanagerNotifier {
	return &AlertmanagerNotifier{client: &http.Client{Timeout: 10 * time.Second}, cfg: cfg}
}

func (n *AlertmanagerNotifier) Notify(ctx context.Context, alert *Alert) error {
	payload := alertmanagerPayload{
		Version: "4",
		Status:  "firing",
		Alerts: []alertmanagerAlert{{
			Status: "firing",
			Labels: map[string]string{
				"alertname": "CreditDeskHealth",
				"kind":      alert.Kind,
				"subject":   alert.Subject,
				"status":    string(alert.Status),
				"severity":  alert.Severity,
				"source":    "creditdesk",
			},
			Annotations: map[string]string{"summary": alert.Message},
			StartsAt:    alert.TriggeredAt,
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal alertmanager payload: %w", err)
	}
	return post(ctx, n.client, "alertmanager", n.cfg.URL, n.cfg.Secret, nil, body)
}

func (n *AlertmanagerNotifier) Type() string { return "alertmanager" }

// Sign returns the hex HMAC-SHA256 of body under secret, as sent in X-Signature.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func post(ctx context.Context, client *http.Client, kind, url, secret string, headers map[string]string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", kind, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "CreditDesk-Monitor/"+version.Short())
	if secret != "" {
		req.Header.Set("X-Signature", Sign(secret, body))
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s POST %s: %w", kind, url, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain body for connection reuse

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s POST %s: status %d", kind, url, resp.StatusCode)
	}
	return nil
}
