package postal

import "time"

type Config struct {
	Enabled            bool          `mapstructure:"enabled"`
	BaseURL            string        `mapstructure:"base_url"`
	TokenURL           string        `mapstructure:"token_url"` // default BaseURL + /oauth2/v3/token
	ClientID           string        `mapstructure:"client_id"`
	ClientSecret       string        `mapstructure:"client_secret"` //nolint:gosec // G101: config field name, not a credential
	Scopes             []string      `mapstructure:"scopes"`
	TokenRefreshMargin time.Duration `mapstructure:"token_refresh_margin"`
	Timeout            time.Duration `mapstructure:"timeout"`
}

func DefaultConfig() Config {
	return Config{
		BaseURL:            "https://apis.usps.com",
		Scopes:             []string{"addresses", "prices", "labels", "tracking"},
		TokenRefreshMargin: 5 * time.Minute,
		Timeout:            15 * time.Second,
	}
}
