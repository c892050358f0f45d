package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/HerbHall/creditdesk/pkg/platform"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Config is the "auth" configuration section.
type Config struct {
	JWTSecret  string           `mapstructure:"jwt_secret"`
	TokenTTL   time.Duration    `mapstructure:"token_ttl"`
	Issuer     string           `mapstructure:"issuer"`
	Audience   string           `mapstructure:"audience"`
	BcryptCost int              `mapstructure:"bcrypt_cost"`
	Revocation RevocationConfig `mapstructure:"revocation"`
	LoginRate  LoginRateConfig  `mapstructure:"login_rate"`
}

// RevocationConfig selects and tunes the revocation backend.
type RevocationConfig struct {
	Backend       string        `mapstructure:"backend"` // "memory", "sqlite" or "redis"
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// LoginRateConfig limits login attempts per client address.
type LoginRateConfig struct {
	Attempts int           `mapstructure:"attempts"`
	Window   time.Duration `mapstructure:"window"`
}

// DefaultConfig mirrors the defaults registered by server.LoadConfig.
func DefaultConfig() Config {
	return Config{
		TokenTTL:   24 * time.Hour,
		Issuer:     "creditdesk",
		Audience:   "credit-repair-platform",
		BcryptCost: 12,
		Revocation: RevocationConfig{
			Backend:       "sqlite",
			KeyPrefix:     "creditdesk:revoked:",
			SweepInterval: time.Hour,
		},
		LoginRate: LoginRateConfig{Attempts: 5, Window: 15 * time.Minute},
	}
}

// NewRevoker builds the revocation backend named by cfg.Backend. The
// returned closer releases backend resources and is never nil.
func NewRevoker(ctx context.Context, cfg RevocationConfig, store platform.Store, clock clockwork.Clock) (Revoker, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case "memory":
		return NewMemoryRevoker(), noop, nil
	case "sqlite", "":
		r, err := NewSQLRevoker(ctx, store, clock)
		return r, noop, err
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, noop, fmt.Errorf("auth.revocation.redis_addr is required for the redis backend")
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.RedisAddr},
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, noop, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		return NewRedisRevoker(client, cfg.KeyPrefix, clock), client.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown revocation backend %q", cfg.Backend)
	}
}

// RunSweeper removes expired revocation entries every interval until ctx is
// cancelled.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			n, err := s.SweepRevocations(sweepCtx)
			cancel()
			if err != nil {
				s.logger.Warn("revocation sweep failed", zap.Error(err))
			} else if n > 0 {
				s.logger.Info("swept expired revocations", zap.Int("count", n))
			}
		}
	}
}

