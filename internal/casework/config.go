package casework

type Config struct {
	SuccessProbability float64 `mapstructure:"success_probability"`
}

func DefaultConfig() Config {
	return Config{SuccessProbability: 0.85}
}
