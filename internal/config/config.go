// Package config loads netdiag configuration through Viper and builds
// the Zap logger from it.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/HerbHall/netdiag/internal/probe"
	"github.com/HerbHall/netdiag/internal/scan"
	"github.com/HerbHall/netdiag/internal/traffic"
)

// LoggingConfig selects log level and output format.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config is the full netdiag configuration tree.
type Config struct {
	Logging LoggingConfig  `mapstructure:"logging"`
	Probe   probe.Config   `mapstructure:"probe"`
	Scan    scan.Config    `mapstructure:"scan"`
	Traffic traffic.Config `mapstructure:"traffic"`
}

// Load builds the configuration from defaults, an optional YAML file,
// and NETDIAG_* environment variables, in increasing precedence.
// An empty path skips the file layer.
func Load(path string) (*Config, *viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("NETDIAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	pd := probe.DefaultConfig()
	v.SetDefault("probe.count", pd.Count)
	v.SetDefault("probe.timeout", pd.Timeout)
	v.SetDefault("probe.interval", pd.Interval)

	sd := scan.DefaultConfig()
	v.SetDefault("scan.timeout", sd.Timeout)
	v.SetDefault("scan.concurrency", sd.Concurrency)
	v.SetDefault("scan.cancel_grace", sd.CancelGrace)
	v.SetDefault("scan.dials_per_second", sd.DialsPerSecond)

	td := traffic.DefaultConfig()
	v.SetDefault("traffic.alert_threshold_bytes", td.AlertThresholdBytes)
}
