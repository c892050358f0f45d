package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the server configuration.
type Config struct {
	Host      string          `mapstructure:"host"`
	Port      int             `mapstructure:"port"`
	DevMode   bool            `mapstructure:"dev_mode"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// Addr returns the listen address as host:port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoadConfig reads configuration from file and environment variables.
// An empty configPath searches for creditdesk.yaml in the usual places; a
// missing file is not an error.
func LoadConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("creditdesk")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/creditdesk")
	}

	// Environment variable support: CD_SERVER_PORT=9090, CD_AUTH_JWT_SECRET=...
	v.SetEnvPrefix("CD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	return v, nil
}

// SetDefaults registers the default value of every known key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.dev_mode", false)
	v.SetDefault("server.rate_limit.rps", 100)
	v.SetDefault("server.rate_limit.burst", 200)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("database.path", "./data/creditdesk.db")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("auth.issuer", "creditdesk")
	v.SetDefault("auth.audience", "credit-repair-platform")
	v.SetDefault("auth.bcrypt_cost", 12)
	v.SetDefault("auth.revocation.backend", "sqlite")
	v.SetDefault("auth.revocation.redis_addr", "")
	v.SetDefault("auth.revocation.redis_password", "")
	v.SetDefault("auth.revocation.redis_db", 0)
	v.SetDefault("auth.revocation.key_prefix", "creditdesk:revoked:")
	v.SetDefault("auth.revocation.sweep_interval", "1h")
	v.SetDefault("auth.login_rate.attempts", 5)
	v.SetDefault("auth.login_rate.window", "15m")

	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.platform", "Credit Repair Platform")
	v.SetDefault("monitor.interval", "5m")
	v.SetDefault("monitor.cycle_timeout", "60s")
	v.SetDefault("monitor.probe_timeout", "10s")
	v.SetDefault("monitor.alert_cooldown", "30m")
	v.SetDefault("monitor.history_retention", "24h")
	v.SetDefault("monitor.maintenance_interval", "1h")
	v.SetDefault("monitor.report_dir", "")
	v.SetDefault("monitor.report_format", "json")

	v.SetDefault("postal.enabled", false)
	v.SetDefault("postal.base_url", "https://apis.usps.com")
	v.SetDefault("postal.token_url", "")
	v.SetDefault("postal.client_id", "")
	v.SetDefault("postal.client_secret", "")
	v.SetDefault("postal.scopes", []string{"addresses", "prices", "labels", "tracking"})
	v.SetDefault("postal.token_refresh_margin", "5m")
	v.SetDefault("postal.timeout", "15s")

	v.SetDefault("payments.enabled", false)
	v.SetDefault("payments.base_url", "https://api.stripe.com")
	v.SetDefault("payments.secret_key", "")
	v.SetDefault("payments.webhook_secret", "")
	v.SetDefault("payments.webhook_tolerance", "5m")
	v.SetDefault("payments.timeout", "15s")

	v.SetDefault("casework.success_probability", 0.85)
}
