package ws

import (
	"time"

	"github.com/HerbHall/creditdesk/internal/monitor"
)

// MessageType discriminates WebSocket messages.
type MessageType string

const (
	MessageReport MessageType = "monitor.report"
	MessageAlert  MessageType = "monitor.alert"
	MessageError  MessageType = "error"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      any         `json:"data"`
}

// ReportData is the payload for monitor.report messages. It carries the
// headline numbers and the per-probe summary, not the full check details.
type ReportData struct {
	Platform         string                    `json:"platform"`
	OverallStatus    monitor.Status            `json:"overall_status"`
	HealthPercentage float64                   `json:"health_percentage"`
	ChecksPassed     int                       `json:"checks_passed"`
	TotalChecks      int                       `json:"total_checks"`
	DurationMs       float64                   `json:"duration_ms"`
	Summary          map[string]monitor.Status `json:"summary"`
}

// ErrorData is the payload for error messages.
type ErrorData struct {
	Error string `json:"error"`
}

func reportData(r *monitor.HealthReport) ReportData {
	return ReportData{
		Platform:         r.Platform,
		OverallStatus:    r.OverallStatus,
		HealthPercentage: r.HealthPercentage,
		ChecksPassed:     r.ChecksPassed,
		TotalChecks:      r.TotalChecks,
		DurationMs:       r.DurationMs,
		Summary:          r.Summary,
	}
}
