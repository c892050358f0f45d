package monitor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func testAlert() *Alert {
	return &Alert{
		ID:          "alert-1",
		Kind:        KindService,
		Subject:     "payments",
		Status:      StatusUnhealthy,
		Severity:    "critical",
		Message:     "payments is unhealthy: HTTP 502",
		TriggeredAt: epoch,
	}
}

func TestWebhookNotifier_SignsBody(t *testing.T) {
	var (
		body    []byte
		headers http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookConfig{
		URL:     srv.URL,
		Secret:  "hook-secret",
		Headers: map[string]string{"X-Team": "ops"},
	})
	if err := n.Notify(context.Background(), testAlert()); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if got, want := headers.Get("X-Signature"), Sign("hook-secret", body); got != want {
		t.Errorf("X-Signature = %q, want %q", got, want)
	}
	if headers.Get("X-Team") != "ops" {
		t.Error("custom header not forwarded")
	}
	if !strings.HasPrefix(headers.Get("User-Agent"), "CreditDesk-Monitor/") {
		t.Errorf("User-Agent = %q", headers.Get("User-Agent"))
	}

	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.EventType != "triggered" || p.Alert.Subject != "payments" {
		t.Errorf("payload = %+v", p)
	}
}

func TestWebhookNotifier_NoSecretNoSignature(t *testing.T) {
	var sig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sig = r.Header.Get("X-Signature")
	}))
	defer srv.Close()

	if err := NewWebhookNotifier(WebhookConfig{URL: srv.URL}).Notify(context.Background(), testAlert()); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if sig != "" {
		t.Errorf("X-Signature = %q, want empty", sig)
	}
}

func TestWebhookNotifier_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(WebhookConfig{URL: srv.URL}).Notify(context.Background(), testAlert())
	if err == nil || !strings.Contains(err.Error(), "status 502") {
		t.Errorf("err = %v, want status 502", err)
	}
}

func TestAlertmanagerNotifier_Payload(t *testing.T) {
	var p alertmanagerPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&p)
	}))
	defer srv.Close()

	if err := NewAlertmanagerNotifier(AlertmanagerConfig{URL: srv.URL}).Notify(context.Background(), testAlert()); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if p.Version != "4" || p.Status != "firing" || len(p.Alerts) != 1 {
		t.Fatalf("payload = %+v", p)
	}
	a := p.Alerts[0]
	if a.Labels["subject"] != "payments" || a.Labels["severity"] != "critical" {
		t.Errorf("labels = %v", a.Labels)
	}
	if a.Annotations["summary"] != "payments is unhealthy: HTTP 502" {
		t.Errorf("summary = %q", a.Annotations["summary"])
	}
	if !a.StartsAt.Equal(epoch) {
		t.Errorf("startsAt = %v", a.StartsAt)
	}
}

func TestBuildNotifier(t *testing.T) {
	tests := []struct {
		cfg      NotifierConfig
		wantType string
		wantErr  bool
	}{
		{NotifierConfig{Type: "webhook", URL: "http://example.test/hook"}, "webhook", false},
		{NotifierConfig{Type: "alertmanager", URL: "http://am.test/api/v2/alerts"}, "alertmanager", false},
		{NotifierConfig{Type: "log"}, "log", false},
		{NotifierConfig{Type: "webhook"}, "", true},
		{NotifierConfig{Type: "pager"}, "", true},
	}
	for _, tc := range tests {
		n, err := BuildNotifier(tc.cfg, zap.NewNop())
		if tc.wantErr {
			if err == nil {
				t.Errorf("BuildNotifier(%+v) expected error", tc.cfg)
			}
			continue
		}
		if err != nil {
			t.Errorf("BuildNotifier(%+v): %v", tc.cfg, err)
			continue
		}
		if n.Type() != tc.wantType {
			t.Errorf("Type = %q, want %q", n.Type(), tc.wantType)
		}
	}
}
