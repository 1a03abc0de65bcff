// Package config loads the control tool configuration from TOML.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// EnvLogLevel overrides the configured log level when set.
const EnvLogLevel = "XMM7360_LOG_LEVEL"

// Config names the modem endpoint and the session parameters. Zero worker,
// queue and frame-size values mean the library defaults.
type Config struct {
	Device          string `toml:"device"`
	APN             string `toml:"apn"`
	Table           string `toml:"table"`
	Trace           string `toml:"trace"`
	MetricsAddr     string `toml:"metrics_addr"`
	LogLevel        string `toml:"log_level"`
	Workers         int    `toml:"workers"`
	QueueSize       int    `toml:"queue_size"`
	MaxFrameSize    int    `toml:"max_frame_size"`
	DatachannelPath string `toml:"datachannel_path"`
}

func Default() Config {
	cfg := Config{
		Device:   "/dev/xmm0/rpc",
		LogLevel: "info",
	}
	applyEnvOverrides(&cfg)
	return cfg
}

func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	applyEnvOverrides(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.LogLevel = v
	}
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Device) == "" {
		return fmt.Errorf("config missing device")
	}
	if cfg.Workers < 0 {
		return fmt.Errorf("config workers must not be negative")
	}
	if cfg.QueueSize < 0 {
		return fmt.Errorf("config queue_size must not be negative")
	}
	if cfg.MaxFrameSize != 0 && cfg.MaxFrameSize < 16 {
		return fmt.Errorf("config max_frame_size below the smallest frame")
	}
	return nil
}
