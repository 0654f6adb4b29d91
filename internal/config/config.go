package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ryandielhenn/cloudheal/internal/logger"
)

// EnvPrefix namespaces every environment override, e.g. CLOUDHEAL_NODES_COUNT.
const EnvPrefix = "CLOUDHEAL"

// NodesConfig describes the simulated fleet.
type NodesConfig struct {
	Count            int           `mapstructure:"count" yaml:"count" json:"count"`
	Interval         time.Duration `mapstructure:"interval" yaml:"interval" json:"interval"`
	FaultProbability float64       `mapstructure:"fault_probability" yaml:"fault_probability" json:"fault_probability"`
}

type MonitorConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval" json:"interval"`
	// StatusTTL bounds how long a monitor observation is served by the status
	// cache. Zero means twice the monitor interval.
	StatusTTL time.Duration `mapstructure:"status_ttl" yaml:"status_ttl" json:"status_ttl"`
}

type SimulationConfig struct {
	Duration      time.Duration `mapstructure:"duration" yaml:"duration" json:"duration"`
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace" yaml:"shutdown_grace" json:"shutdown_grace"`
}

// HTTPConfig controls the optional status server. Empty Addr disables it.
type HTTPConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr" json:"addr"`
}

// EtcdConfig controls the optional etcd publisher. No endpoints disables it.
// DialTimeout also bounds each lease and write request.
type EtcdConfig struct {
	Endpoints   []string      `mapstructure:"endpoints" yaml:"endpoints" json:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout" json:"dial_timeout"`
	LeaseTTL    int64         `mapstructure:"lease_ttl" yaml:"lease_ttl" json:"lease_ttl"`
	Prefix      string        `mapstructure:"prefix" yaml:"prefix" json:"prefix"`
}

type Config struct {
	Nodes      NodesConfig      `mapstructure:"nodes" yaml:"nodes" json:"nodes"`
	Monitor    MonitorConfig    `mapstructure:"monitor" yaml:"monitor" json:"monitor"`
	Simulation SimulationConfig `mapstructure:"simulation" yaml:"simulation" json:"simulation"`
	HTTP       HTTPConfig       `mapstructure:"http" yaml:"http" json:"http"`
	Etcd       EtcdConfig       `mapstructure:"etcd" yaml:"etcd" json:"etcd"`
	Log        logger.Config    `mapstructure:"log" yaml:"log" json:"log"`
}

// DefaultConfig returns the stock simulation: three nodes faulting with 20%
// probability every 2s, a monitor sweeping every 3s, for 30s.
func DefaultConfig() *Config {
	return &Config{
		Nodes: NodesConfig{
			Count:            3,
			Interval:         2 * time.Second,
			FaultProbability: 0.2,
		},
		Monitor: MonitorConfig{
			Interval: 3 * time.Second,
		},
		Simulation: SimulationConfig{
			Duration:      30 * time.Second,
			ShutdownGrace: 3 * time.Second,
		},
		Etcd: EtcdConfig{
			DialTimeout: 5 * time.Second,
			LeaseTTL:    10,
			Prefix:      "/cloudheal/nodes/",
		},
		Log: logger.Config{
			Level:      "info",
			OutputPath: "stdout",
			Format:     logger.FormatPlain,
		},
	}
}

// Load reads configuration from an optional YAML file and CLOUDHEAL_* env vars.
// v may carry flag bindings; nil means a fresh viper instance.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	cfg := DefaultConfig()
	setDefaults(v, cfg)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("cloudheal")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/cloudheal")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can see it during Unmarshal.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("nodes.count", cfg.Nodes.Count)
	v.SetDefault("nodes.interval", cfg.Nodes.Interval)
	v.SetDefault("nodes.fault_probability", cfg.Nodes.FaultProbability)
	v.SetDefault("monitor.interval", cfg.Monitor.Interval)
	v.SetDefault("monitor.status_ttl", cfg.Monitor.StatusTTL)
	v.SetDefault("simulation.duration", cfg.Simulation.Duration)
	v.SetDefault("simulation.shutdown_grace", cfg.Simulation.ShutdownGrace)
	v.SetDefault("http.addr", cfg.HTTP.Addr)
	v.SetDefault("etcd.endpoints", cfg.Etcd.Endpoints)
	v.SetDefault("etcd.dial_timeout", cfg.Etcd.DialTimeout)
	v.SetDefault("etcd.lease_ttl", cfg.Etcd.LeaseTTL)
	v.SetDefault("etcd.prefix", cfg.Etcd.Prefix)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.output_path", cfg.Log.OutputPath)
	v.SetDefault("log.format", cfg.Log.Format)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Nodes.Count <= 0 {
		return fmt.Errorf("nodes.count must be positive, got %d", c.Nodes.Count)
	}
	if c.Nodes.Interval <= 0 {
		return fmt.Errorf("nodes.interval must be positive, got %s", c.Nodes.Interval)
	}
	if c.Nodes.FaultProbability < 0 || c.Nodes.FaultProbability > 1 {
		return fmt.Errorf("nodes.fault_probability must be within [0,1], got %g", c.Nodes.FaultProbability)
	}
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor.interval must be positive, got %s", c.Monitor.Interval)
	}
	if c.Monitor.StatusTTL < 0 {
		return fmt.Errorf("monitor.status_ttl must not be negative, got %s", c.Monitor.StatusTTL)
	}
	if c.Simulation.Duration <= 0 {
		return fmt.Errorf("simulation.duration must be positive, got %s", c.Simulation.Duration)
	}
	if c.Simulation.ShutdownGrace < 0 {
		return fmt.Errorf("simulation.shutdown_grace must not be negative, got %s", c.Simulation.ShutdownGrace)
	}
	if len(c.Etcd.Endpoints) > 0 && c.Etcd.LeaseTTL <= 0 {
		return fmt.Errorf("etcd.lease_ttl must be positive when etcd is enabled, got %d", c.Etcd.LeaseTTL)
	}
	if len(c.Etcd.Endpoints) > 0 && c.Etcd.DialTimeout <= 0 {
		return fmt.Errorf("etcd.dial_timeout must be positive when etcd is enabled, got %s", c.Etcd.DialTimeout)
	}
	return nil
}
