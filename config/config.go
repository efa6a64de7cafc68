// Package config loads the master's runtime configuration: the network
// device to bind, the tick cadence, the device-description search path, and
// the gateway listener addresses. Values come from a YAML file, environment
// variables (ECMASTER_*), and defaults: an ECMASTER_* variable overrides the
// file's value for a key the file sets, and defaults fill whatever is still
// unset — the same layering dittofs/pkg/config applies, decoded with
// github.com/mitchellh/mapstructure through github.com/spf13/viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Port is the registered TCP/UDP port for the mailbox gateway (spec.md §6).
const Port = 0x88A4 // 34980

// Valid ranges for the tick cadence, mirroring the teacher's pattern of
// naming the bounds a Valid() method enforces.
const (
	TickIntervalMin = 100 * time.Microsecond
	TickIntervalMax = 100 * time.Millisecond
)

// Config is the top-level configuration for one master instance.
type Config struct {
	// Network names the raw Ethernet interface the master binds to (e.g.
	// "eth0"). Empty selects an in-memory loopback device, used by tests
	// and by `ecmasterctl` commands that don't need a live ring.
	Network string `mapstructure:"network" yaml:"network"`

	// TickInterval is the cadence of the cyclic engine's Tick calls.
	TickInterval time.Duration `mapstructure:"tick_interval" yaml:"tick_interval"`

	// DeviceDescriptionPath is the directory devdesc searches for slave
	// device-description files.
	DeviceDescriptionPath string `mapstructure:"device_description_path" yaml:"device_description_path"`

	// Gateway configures the optional mailbox gateway listeners.
	Gateway GatewayConfig `mapstructure:"gateway" yaml:"gateway"`

	// DebugLevel is the master's diagnostic verbosity (0-3).
	DebugLevel int `mapstructure:"debug_level" yaml:"debug_level"`

	// Slaves is the static ring topology to register at startup: this
	// build has no physical bus scan, so the set of expected slaves (and
	// the domain each belongs to) is declared rather than discovered.
	Slaves []SlaveConfig `mapstructure:"slaves" yaml:"slaves"`
}

// SlaveConfig is one statically-declared ring member.
type SlaveConfig struct {
	RingPosition int    `mapstructure:"ring_position" yaml:"ring_position"`
	Vendor       uint32 `mapstructure:"vendor" yaml:"vendor"`
	Product      uint32 `mapstructure:"product" yaml:"product"`
	Domain       string `mapstructure:"domain" yaml:"domain"`
}

// GatewayConfig configures the TCP/UDP mailbox gateway.
type GatewayConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Address string `mapstructure:"address" yaml:"address"`

	// MaxClients bounds concurrent TCP gateway clients.
	MaxClients int `mapstructure:"max_clients" yaml:"max_clients"`
}

// Valid applies defaults for every unspecified field and rejects values
// outside their accepted range, following the same validate-in-place shape
// the teacher's cs104.Config.Valid uses.
func (c *Config) Valid() error {
	if c == nil {
		return errors.New("config: nil Config")
	}
	if c.TickInterval == 0 {
		c.TickInterval = time.Millisecond
	} else if c.TickInterval < TickIntervalMin || c.TickInterval > TickIntervalMax {
		return fmt.Errorf("config: tick_interval not in [%s, %s]", TickIntervalMin, TickIntervalMax)
	}
	if c.Gateway.Enabled {
		if c.Gateway.Address == "" {
			c.Gateway.Address = fmt.Sprintf(":%d", Port)
		}
		if c.Gateway.MaxClients == 0 {
			c.Gateway.MaxClients = 16
		} else if c.Gateway.MaxClients < 1 {
			return errors.New("config: gateway.max_clients must be positive")
		}
	}
	if c.DebugLevel < 0 || c.DebugLevel > 3 {
		return errors.New("config: debug_level not in [0, 3]")
	}
	for i, s := range c.Slaves {
		if s.RingPosition < 0 {
			return fmt.Errorf("config: slaves[%d].ring_position must be >= 0", i)
		}
		if s.Domain == "" {
			return fmt.Errorf("config: slaves[%d].domain must be set", i)
		}
	}
	return nil
}

// DefaultConfig returns a Config with every field at its documented
// default, as if Valid had run against a zero Config.
func DefaultConfig() Config {
	c := Config{}
	_ = c.Valid()
	return c
}

// Load reads configuration from path (if non-empty), overlays ECMASTER_*
// environment variables, applies defaults, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ECMASTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}
	if err := cfg.Valid(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
