package main

import (
	"bytes"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	body := "logging:\n  level: error\n" +
		"database:\n  path: " + filepath.Join(dir, "data", "creditdesk.db") + "\n" + extra
	path := filepath.Join(dir, "creditdesk.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "creditdesk ") {
		t.Errorf("output = %q", out)
	}
}

func TestMonitorCmd_HealthyWritesReport(t *testing.T) {
	cfg := writeConfig(t, "")
	outDir := filepath.Join(t.TempDir(), "reports")

	out, err := execute(t, "--config", cfg, "monitor", "--out", outDir, "--format", "yaml")
	if err != nil {
		t.Fatalf("monitor: %v\n%s", err, out)
	}
	if !strings.Contains(out, "healthy (100.00%, 1/1 checks passed") {
		t.Errorf("summary missing overall line:\n%s", out)
	}
	if !strings.Contains(out, "database") {
		t.Errorf("summary missing database probe:\n%s", out)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatalf("read report dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("report files = %d, want 1", len(entries))
	}
	name := entries[0].Name()
	if !strings.HasPrefix(name, "health_report_") || !strings.HasSuffix(name, ".yaml") {
		t.Errorf("report file = %q", name)
	}
	if !strings.Contains(out, filepath.Join(outDir, name)) {
		t.Errorf("report path not printed:\n%s", out)
	}
}

func TestMonitorCmd_UnhealthyExitCode(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	closed := ln.Addr().String()
	ln.Close()

	cfg := writeConfig(t, "monitor:\n  probe_timeout: 2s\n  probes:\n"+
		"    - name: gone\n      type: tcp\n      target: "+closed+"\n")

	out, err := execute(t, "--config", cfg, "monitor")
	var ee *exitError
	if !errors.As(err, &ee) || ee.code != 2 {
		t.Fatalf("err = %v, want exit code 2\n%s", err, out)
	}
	if !strings.Contains(out, "unhealthy (0.00%, 0/1 checks passed") {
		t.Errorf("summary:\n%s", out)
	}
	if !strings.Contains(out, "gone") {
		t.Errorf("summary missing probe name:\n%s", out)
	}
}

func TestMonitorCmd_RejectsUnknownFormat(t *testing.T) {
	_, err := execute(t, "--config", writeConfig(t, ""), "monitor", "--format", "xml")
	if err == nil || !strings.Contains(err.Error(), "unknown --format") {
		t.Errorf("err = %v", err)
	}
}

func TestServeCmd_RequiresSecretOutsideDevMode(t *testing.T) {
	t.Setenv("CD_AUTH_JWT_SECRET", "")
	_, err := execute(t, "--config", writeConfig(t, "server:\n  port: 0\n"), "serve")
	if err == nil || !strings.Contains(err.Error(), "jwt_secret") {
		t.Errorf("err = %v, want missing secret error", err)
	}
}
