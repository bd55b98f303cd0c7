/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package limits

import (
	"fmt"

	"github.com/zanata/restlimit/config"
)

const cfgDefaultKeyPrefix = "rest.limits"

const (
	cfgKeyMaxConcurrent = "maxConcurrent"
	cfgKeyMaxActive     = "maxActive"
)

// Config holds the caps of a CallLimiter ("rest.limits" section by default).
// It is loaded with config.Loader and may be re-applied at runtime with CallLimiter.ApplyConfig.
type Config struct {
	// MaxConcurrent is the maximum number of concurrently accepted calls. 0 means no limit.
	MaxConcurrent int `mapstructure:"maxConcurrent" yaml:"maxConcurrent" json:"maxConcurrent"`

	// MaxActive is the maximum number of actively executing calls. 0 means no limit.
	MaxActive int `mapstructure:"maxActive" yaml:"maxActive" json:"maxActive"`

	keyPrefix string
}

var (
	_ config.Config            = (*Config)(nil)
	_ config.KeyPrefixProvider = (*Config)(nil)
)

// ConfigOption customizes a Config created by NewConfig.
type ConfigOption func(*Config)

// WithKeyPrefix makes the Config read its values under keyPrefix instead of "rest.limits".
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(c *Config) {
		c.keyPrefix = keyPrefix
	}
}

// NewConfig returns a Config with both caps unlimited.
func NewConfig(options ...ConfigOption) *Config {
	cfg := &Config{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(cfg)
	}
	return cfg
}

// KeyPrefix implements config.KeyPrefixProvider.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults implements config.Config.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyMaxConcurrent, 0)
	dp.SetDefault(cfgKeyMaxActive, 0)
}

// Set implements config.Config. Negative caps are rejected.
func (c *Config) Set(dp config.DataProvider) error {
	for _, f := range []struct {
		key string
		dst *int
	}{
		{cfgKeyMaxConcurrent, &c.MaxConcurrent},
		{cfgKeyMaxActive, &c.MaxActive},
	} {
		n, err := dp.GetInt(f.key)
		if err != nil {
			return err
		}
		if n < 0 {
			return dp.WrapKeyErr(f.key, fmt.Errorf("should be >= 0"))
		}
		*f.dst = n
	}
	return nil
}

// NewFromConfig creates a new CallLimiter with caps taken from the configuration.
func NewFromConfig(cfg *Config, opts Opts) (*CallLimiter, error) {
	return NewWithOpts(cfg.MaxConcurrent, cfg.MaxActive, opts)
}

// ApplyConfig sets caps from the configuration. Only the pools whose cap differs from the configured one are replaced.
func (l *CallLimiter) ApplyConfig(cfg *Config) error {
	if cfg.MaxConcurrent != l.MaxConcurrent() {
		if err := l.SetMaxConcurrent(cfg.MaxConcurrent); err != nil {
			return err
		}
	}
	if cfg.MaxActive != l.MaxActive() {
		if err := l.SetMaxActive(cfg.MaxActive); err != nil {
			return err
		}
	}
	return nil
}
