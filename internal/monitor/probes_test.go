package monitor

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/HerbHall/creditdesk/internal/store"
)

func TestHTTPProbe(t *testing.T) {
	tests := []struct {
		name       string
		code       int
		body       string
		expect     int
		wantStatus Status
		wantError  string
	}{
		{"ok with json", http.StatusOK, `{"status":"ok","version":"2.1"}`, 0, StatusHealthy, ""},
		{"ok plain", http.StatusNoContent, "", 0, StatusHealthy, ""},
		{"server error", http.StatusServiceUnavailable, "down", 0, StatusUnhealthy, "HTTP 503"},
		{"expected 401", http.StatusUnauthorized, "", http.StatusUnauthorized, StatusHealthy, ""},
		{"expected 200 got 204", http.StatusNoContent, "", http.StatusOK, StatusUnhealthy, "HTTP 204"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var gotKey string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotKey = r.Header.Get("X-Api-Key")
				w.WriteHeader(tc.code)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			p := NewHTTPProbe("payments", srv.URL, map[string]string{"X-Api-Key": "k"}, tc.expect, nil)
			res, err := p.Check(context.Background())
			if err != nil {
				t.Fatalf("Check: %v", err)
			}
			if res.Status != tc.wantStatus || res.Error != tc.wantError {
				t.Errorf("result = %s %q, want %s %q", res.Status, res.Error, tc.wantStatus, tc.wantError)
			}
			if gotKey != "k" {
				t.Errorf("header X-Api-Key = %q", gotKey)
			}
			if res.LatencyMs == nil {
				t.Error("LatencyMs not set")
			}
			if res.Details["status_code"] != tc.code {
				t.Errorf("status_code detail = %v", res.Details["status_code"])
			}
		})
	}
}

func TestHTTPProbe_DecodesJSONDetails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"queue_depth":3}`))
	}))
	defer srv.Close()

	res, err := NewHTTPProbe("queue", srv.URL, nil, 0, nil).Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Details["queue_depth"] != float64(3) {
		t.Errorf("queue_depth = %v", res.Details["queue_depth"])
	}
}

func TestHTTPProbe_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPProbe("gone", url, nil, 0, nil).Check(context.Background())
	if err == nil {
		t.Fatal("expected error for closed server")
	}
}

func TestTCPProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()

	res, err := NewTCPProbe("redis", addr, nil).Check(context.Background())
	if err != nil || res.Status != StatusHealthy {
		t.Fatalf("open port: %+v, %v", res, err)
	}

	ln.Close()
	res, err = NewTCPProbe("redis", addr, nil).Check(context.Background())
	if err != nil {
		t.Fatalf("closed port returned error: %v", err)
	}
	if res.Status != StatusUnhealthy || res.Error == "" {
		t.Errorf("closed port = %+v, want unhealthy with error", res)
	}

	if _, err := NewTCPProbe("bad", "no-port", nil).Check(context.Background()); err == nil {
		t.Error("expected error for target without port")
	}
}

type failingPinger struct{}

func (failingPinger) PingContext(context.Context) error { return errors.New("database is locked") }

func TestSQLProbe(t *testing.T) {
	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	res, err := NewSQLProbe("database", db.DB(), nil).Check(context.Background())
	if err != nil || res.Status != StatusHealthy {
		t.Errorf("healthy db: %+v, %v", res, err)
	}

	_, err = NewSQLProbe("database", failingPinger{}, nil).Check(context.Background())
	if err == nil || !strings.Contains(err.Error(), "database is locked") {
		t.Errorf("err = %v", err)
	}
}

func TestBuildProbes(t *testing.T) {
	postal := ProbeFunc{Subject: "postal-token", Fn: func(context.Context) (*ProbeResult, error) {
		return &ProbeResult{Subject: "postal-token", Status: StatusHealthy}, nil
	}}
	stripe := ProbeFunc{Subject: "payments", Fn: func(context.Context) (*ProbeResult, error) {
		return &ProbeResult{Subject: "payments", Status: StatusWarning, Alerts: []string{"charges are disabled"}}, nil
	}}
	deps := ProbeDeps{DB: failingPinger{}, Postal: postal, Payments: stripe}

	probes, err := BuildProbes([]ProbeSpec{
		{Name: "api", Type: "http", Target: "http://localhost:8080/healthz"},
		{Name: "cache", Type: "TCP", Target: "localhost:6379"},
		{Name: "gateway", Type: "icmp", Target: "10.0.0.1"},
		{Name: "database", Type: "sql"},
		{Name: "usps", Type: "postal"},
		{Name: "billing", Type: "payments"},
	}, deps)
	if err != nil {
		t.Fatalf("BuildProbes: %v", err)
	}
	if len(probes) != 6 {
		t.Fatalf("got %d probes", len(probes))
	}
	res, _ := probes[4].Check(context.Background())
	if probes[4].Name() != "usps" || res.Subject != "usps" {
		t.Errorf("postal probe reported as %q/%q, want usps", probes[4].Name(), res.Subject)
	}
	res, _ = probes[5].Check(context.Background())
	if res.Subject != "billing" || res.Status != StatusWarning || len(res.Alerts) != 1 {
		t.Errorf("payments probe result = %+v", res)
	}

	bad := []struct {
		name  string
		specs []ProbeSpec
		deps  ProbeDeps
	}{
		{"missing name", []ProbeSpec{{Type: "http", Target: "http://x"}}, deps},
		{"duplicate", []ProbeSpec{{Name: "a", Type: "sql"}, {Name: "a", Type: "sql"}}, deps},
		{"unknown type", []ProbeSpec{{Name: "a", Type: "smtp"}}, deps},
		{"http without target", []ProbeSpec{{Name: "a", Type: "http"}}, deps},
		{"sql without db", []ProbeSpec{{Name: "a", Type: "sql"}}, ProbeDeps{}},
		{"postal disabled", []ProbeSpec{{Name: "a", Type: "postal"}}, ProbeDeps{}},
		{"payments disabled", []ProbeSpec{{Name: "a", Type: "payments"}}, ProbeDeps{}},
	}
	for _, tc := range bad {
		if _, err := BuildProbes(tc.specs, tc.deps); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}
