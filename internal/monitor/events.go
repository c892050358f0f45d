package monitor

// Event topics published by the monitor.
const (
	TopicReportCompleted = "monitor.report.completed"
	TopicAlertTriggered  = "monitor.alert.triggered"
)

// EventSource identifies the monitor on the event bus.
const EventSource = "monitor"
