package payments

import "time"

type Config struct {
	Enabled          bool          `mapstructure:"enabled"`
	BaseURL          string        `mapstructure:"base_url"`
	SecretKey        string        `mapstructure:"secret_key"`     //nolint:gosec // G101: config field name, not a credential
	WebhookSecret    string        `mapstructure:"webhook_secret"` //nolint:gosec // G101: config field name, not a credential
	WebhookTolerance time.Duration `mapstructure:"webhook_tolerance"`
	Timeout          time.Duration `mapstructure:"timeout"`
	Plans            []Plan        `mapstructure:"plans"`
}

func DefaultConfig() Config {
	return Config{
		BaseURL:          "https://api.stripe.com",
		WebhookTolerance: 5 * time.Minute,
		Timeout:          15 * time.Second,
		Plans:            DefaultPlans(),
	}
}

// DefaultPlans is the service catalogue offered to new clients. PriceID is
// filled from configuration per deployment.
func DefaultPlans() []Plan {
	return []Plan{
		{
			ID: "basic", Name: "Basic Credit Repair", Amount: 9700, Currency: "usd", Interval: "month",
			Features: []string{"Credit report analysis", "Basic dispute letters", "Monthly credit monitoring", "Email support"},
		},
		{
			ID: "professional", Name: "Professional Credit Repair", Amount: 19700, Currency: "usd", Interval: "month",
			Features: []string{"Everything in Basic", "Advanced dispute strategies", "Full enforcement chain", "Phone support", "Goodwill letters"},
			Popular:  true,
		},
		{
			ID: "elite", Name: "Elite Credit Repair", Amount: 39700, Currency: "usd", Interval: "month",
			Features: []string{"Everything in Professional", "Priority processing", "Attorney consultation", "Business credit repair"},
		},
	}
}
