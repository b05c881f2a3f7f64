// Package config loads the typed configuration consumed by the routing core.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// RoutingMode selects the runway-selection policy used by the routing engine.
type RoutingMode string

const (
	RoutingModeLatency         RoutingMode = "latency"
	RoutingModeFirstAccessible RoutingMode = "first_accessible"
	RoutingModeRoundRobin      RoutingMode = "round_robin"
)

// DNSServer is a configured upstream DNS resolver.
type DNSServer struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Name string `mapstructure:"name"`
}

// UpstreamProxy is a configured upstream forward proxy. Only Type "http" is
// wired for forwarding; other types are accepted as configuration noise.
type UpstreamProxy struct {
	Type string `mapstructure:"type"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Config holds all configuration consumed by the routing core. It is
// immutable after load.
type Config struct {
	RoutingMode    RoutingMode     `mapstructure:"routing_mode"`
	DNSServers     []DNSServer     `mapstructure:"dns_servers"`
	UpstreamProxies []UpstreamProxy `mapstructure:"upstream_proxies"`
	Interfaces     []string        `mapstructure:"interfaces"`

	HealthCheckInterval  time.Duration `mapstructure:"health_check_interval"`
	AccessibilityTimeout time.Duration `mapstructure:"accessibility_timeout"`
	DNSTimeout           time.Duration `mapstructure:"dns_timeout"`
	NetworkTimeout       time.Duration `mapstructure:"network_timeout"`
	UserValidationTimeout time.Duration `mapstructure:"user_validation_timeout"`

	MaxConcurrentConnections int `mapstructure:"max_concurrent_connections"`
	MaxConnectionsPerRunway  int `mapstructure:"max_connections_per_runway"`

	SuccessRateThreshold float64 `mapstructure:"success_rate_threshold"`
	SuccessRateWindow    int     `mapstructure:"success_rate_window"`

	ProxyListenHost string `mapstructure:"proxy_listen_host"`
	ProxyListenPort int    `mapstructure:"proxy_listen_port"`

	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`

	DataDir string `mapstructure:"data_dir"`
}

// Default returns configuration with the defaults carried over from the
// original implementation's Config constructor.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".multipathproxy")

	return &Config{
		RoutingMode: RoutingModeLatency,
		DNSServers: []DNSServer{
			{Host: "8.8.8.8", Port: 53, Name: "google"},
			{Host: "1.1.1.1", Port: 53, Name: "cloudflare"},
		},
		Interfaces: []string{"auto"},

		HealthCheckInterval:   60 * time.Second,
		AccessibilityTimeout:  5 * time.Second,
		DNSTimeout:            3 * time.Second,
		NetworkTimeout:        10 * time.Second,
		UserValidationTimeout: 15 * time.Second,

		MaxConcurrentConnections: 100,
		MaxConnectionsPerRunway:  10,

		SuccessRateThreshold: 0.5,
		SuccessRateWindow:    10,

		ProxyListenHost: "127.0.0.1",
		ProxyListenPort: 2123,

		LogLevel: "info",
		LogFile:  filepath.Join(dataDir, "proxy.log"),

		DataDir: dataDir,
	}
}

// Load reads configuration from file and environment, falling back to
// Default() for anything unset.
func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(cfg.DataDir)
		v.AddConfigPath(".")
	}

	v.SetDefault("routing_mode", cfg.RoutingMode)
	v.SetDefault("interfaces", cfg.Interfaces)
	v.SetDefault("health_check_interval", cfg.HealthCheckInterval)
	v.SetDefault("accessibility_timeout", cfg.AccessibilityTimeout)
	v.SetDefault("dns_timeout", cfg.DNSTimeout)
	v.SetDefault("network_timeout", cfg.NetworkTimeout)
	v.SetDefault("user_validation_timeout", cfg.UserValidationTimeout)
	v.SetDefault("max_concurrent_connections", cfg.MaxConcurrentConnections)
	v.SetDefault("max_connections_per_runway", cfg.MaxConnectionsPerRunway)
	v.SetDefault("success_rate_threshold", cfg.SuccessRateThreshold)
	v.SetDefault("success_rate_window", cfg.SuccessRateWindow)
	v.SetDefault("proxy_listen_host", cfg.ProxyListenHost)
	v.SetDefault("proxy_listen_port", cfg.ProxyListenPort)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_file", cfg.LogFile)

	v.SetEnvPrefix("MULTIPATHPROXY")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if len(cfg.DNSServers) == 0 {
		cfg.DNSServers = Default().DNSServers
	}
	for i := range cfg.DNSServers {
		if cfg.DNSServers[i].Port == 0 {
			cfg.DNSServers[i].Port = 53
		}
	}

	return cfg, nil
}
