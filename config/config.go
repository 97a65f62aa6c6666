// Package config loads the node configuration from file, environment
// variables and defaults, viper-backed.
//
// Lookup order per key: explicit Set, environment (LOOM_ prefix, dots
// become underscores), config file, default.
package config

import (
	"fmt"
	"log/slog"
	"net/netip"
	"strings"

	"github.com/LukaGiorgadze/gonull"
	"github.com/loomnet/loom/types"
	"github.com/spf13/viper"
)

const EnvPrefix = "LOOM"

type Config struct {
	Log       LogConfig
	Transport TransportConfig
	Node      NodeConfig
}

type LogConfig struct {
	Level string
}

type TransportConfig struct {
	RequireAuth bool

	// AllowedCIDRs restricts accepted TCP remotes. Empty means allow all.
	AllowedCIDRs []string

	// Listen addresses, in the forms types.ParseEndpoint accepts.
	Listen []string

	// MaxPeers is invalid when unlimited.
	MaxPeers gonull.Nullable[uint]
}

type NodeConfig struct {
	// KeyFile is empty when the node should use an ephemeral key.
	KeyFile string
}

func setDefaults() {
	viper.SetDefault("log.level", "info")

	viper.SetDefault("transport.require_auth", false)
	viper.SetDefault("transport.allowed_cidrs", []string{})
	viper.SetDefault("transport.listen", []string{})
	// negative means unlimited
	viper.SetDefault("transport.max_peers", -1)

	viper.SetDefault("node.key_file", "")
}

// Load reads the configuration. cfgFile may be empty, in which case
// loom.yaml is searched for in the working directory; a missing file falls
// back to defaults, but an explicitly named file must exist.
func Load(cfgFile string) (*Config, error) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("loom")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
			return nil, fmt.Errorf("could not read config: %w", err)
		}
	}

	return fromViper(), nil
}

func fromViper() *Config {
	var maxPeers gonull.Nullable[uint]

	if mp := viper.GetInt("transport.max_peers"); mp >= 0 {
		maxPeers = gonull.NewNullable(uint(mp))
	}

	return &Config{
		Log: LogConfig{
			Level: viper.GetString("log.level"),
		},
		Transport: TransportConfig{
			RequireAuth:  viper.GetBool("transport.require_auth"),
			AllowedCIDRs: viper.GetStringSlice("transport.allowed_cidrs"),
			Listen:       viper.GetStringSlice("transport.listen"),
			MaxPeers:     maxPeers,
		},
		Node: NodeConfig{
			KeyFile: viper.GetString("node.key_file"),
		},
	}
}

// Endpoints parses the configured listen addresses.
func (c *Config) Endpoints() ([]types.Endpoint, error) {
	eps := make([]types.Endpoint, 0, len(c.Transport.Listen))

	for _, s := range c.Transport.Listen {
		ep, err := types.ParseEndpoint(s)
		if err != nil {
			return nil, fmt.Errorf("bad listen address %q: %w", s, err)
		}

		eps = append(eps, ep)
	}

	return eps, nil
}

// Prefixes parses the configured allowlist CIDRs.
func (c *Config) Prefixes() ([]netip.Prefix, error) {
	ps := make([]netip.Prefix, 0, len(c.Transport.AllowedCIDRs))

	for _, s := range c.Transport.AllowedCIDRs {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return nil, fmt.Errorf("bad allowlist cidr %q: %w", s, err)
		}

		ps = append(ps, p)
	}

	return ps, nil
}

// Level maps the configured log level, falling back to info on garbage.
func (c *Config) Level() slog.Level {
	var l slog.Level

	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		slog.Warn("config: unknown log level, using info", "level", c.Log.Level)
		return slog.LevelInfo
	}

	return l
}
