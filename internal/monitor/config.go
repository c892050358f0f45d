package monitor

import "time"

type Config struct {
	Enabled             bool             `mapstructure:"enabled"`
	Platform            string           `mapstructure:"platform"`
	Interval            time.Duration    `mapstructure:"interval"`
	CycleTimeout        time.Duration    `mapstructure:"cycle_timeout"`
	ProbeTimeout        time.Duration    `mapstructure:"probe_timeout"`
	AlertCooldown       time.Duration    `mapstructure:"alert_cooldown"`
	HistoryRetention    time.Duration    `mapstructure:"history_retention"`
	MaintenanceInterval time.Duration    `mapstructure:"maintenance_interval"`
	ReportDir           string           `mapstructure:"report_dir"`
	ReportFormat        string           `mapstructure:"report_format"`
	Probes              []ProbeSpec      `mapstructure:"probes"`
	Notifiers           []NotifierConfig `mapstructure:"notifiers"`
}

func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		Platform:            "Credit Repair Platform",
		Interval:            5 * time.Minute,
		CycleTimeout:        60 * time.Second,
		ProbeTimeout:        10 * time.Second,
		AlertCooldown:       DefaultAlertCooldown,
		HistoryRetention:    24 * time.Hour,
		MaintenanceInterval: time.Hour,
		ReportFormat:        FormatJSON,
	}
}
