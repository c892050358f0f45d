// Package config provides the Viper-backed platform.Config and the zap logger
// factory used by every creditdesk command.
package config

import (
	"strings"
	"time"

	"github.com/HerbHall/creditdesk/pkg/platform"
	"github.com/spf13/viper"
)

var _ platform.Config = (*ViperConfig)(nil)

// ViperConfig adapts a Viper instance to platform.Config.
type ViperConfig struct {
	v *viper.Viper
}

// New wraps v. A nil v yields an empty configuration, so a missing
// section behaves like a section with every key unset.
func New(v *viper.Viper) *ViperConfig {
	if v == nil {
		v = viper.New()
	}
	return &ViperConfig{v: v}
}

func (c *ViperConfig) Unmarshal(target any) error { return c.v.Unmarshal(target) }
func (c *ViperConfig) Get(key string) any { return c.v.Get(key) }
func (c *ViperConfig) GetString(key string) string { return c.v.GetString(key) }
func (c *ViperConfig) GetInt(key string) int { return c.v.GetInt(key) }
func (c *ViperConfig) GetBool(key string) bool { return c.v.GetBool(key) }
func (c *ViperConfig) GetDuration(key string) time.Duration { return c.v.GetDuration(key) }
func (c *ViperConfig) IsSet(key string) bool { return c.v.IsSet(key) }

// Sub scopes the configuration to one module section ("auth", "monitor").
// Values are resolved through the parent, so environment overrides such as
// CD_AUTH_JWT_SECRET reach the section; viper's own Sub drops them.
func (c *ViperConfig) Sub(key string) platform.Config {
	sub := viper.New()
	prefix := key + "."
	for _, k := range c.v.AllKeys() {
		if rest, ok := strings.CutPrefix(k, prefix); ok {
			sub.Set(rest, c.v.Get(k))
		}
	}
	return New(sub)
}

// Viper exposes the wrapped instance for top-level keys such as server.port.
func (c *ViperConfig) Viper() *viper.Viper { return c.v }
