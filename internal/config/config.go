// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Fuelink

// Package config loads the forecourt controller configuration from a YAML
// file and FORECOURT_* environment variables, with protocol-correct defaults.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the full controller configuration.
type Config struct {
	Serial    SerialConfig    `mapstructure:"serial"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Fleet     FleetConfig     `mapstructure:"fleet"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Logger    LoggerConfig    `mapstructure:"logger"`
}

// SerialConfig covers the physical line parameters.
type SerialConfig struct {
	BaudRate           int `mapstructure:"baudRate"`
	ResponseWindowMs   int `mapstructure:"responseWindowMs"`
	DataBlockTimeoutMs int `mapstructure:"dataBlockTimeoutMs"`
	MaxDataBlockBytes  int `mapstructure:"maxDataBlockBytes"`
}

// DiscoveryConfig covers the pump discovery scan.
type DiscoveryConfig struct {
	AddressLo           int `mapstructure:"addressLo"`
	AddressHi           int `mapstructure:"addressHi"`
	Retries             int `mapstructure:"retries"`
	RetryDelayMs        int `mapstructure:"retryDelayMs"`
	ProbeTimeoutSeconds int `mapstructure:"probeTimeoutSeconds"`
}

// FleetConfig covers the fleet manager's concurrency limits.
type FleetConfig struct {
	Workers            int `mapstructure:"workers"`
	PollTimeoutSeconds int `mapstructure:"pollTimeoutSeconds"`
}

// HTTPConfig covers the management API server.
type HTTPConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	TimeoutSeconds int    `mapstructure:"timeoutSeconds"`
}

// LoggerConfig covers log output, formatting, and rotation.
type LoggerConfig struct {
	Level         string `mapstructure:"level"`
	Format        string `mapstructure:"format"`
	FilePath      string `mapstructure:"filePath"`
	MaxSizeMB     int    `mapstructure:"maxSizeMB"`
	MaxBackups    int    `mapstructure:"maxBackups"`
	MaxAgeDays    int    `mapstructure:"maxAgeDays"`
	EnableConsole bool   `mapstructure:"enableConsole"`
}

// Load reads configuration from the given path (or the defaults when the path
// is empty or the file is absent) and overlays FORECOURT_* environment
// variables, e.g. FORECOURT_HTTP_PORT.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FORECOURT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/forecourt")
		if err := v.ReadInConfig(); err != nil {
			// Running purely on defaults is fine; a broken file is not.
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("serial.baudRate", 9600)
	v.SetDefault("serial.responseWindowMs", 68)
	v.SetDefault("serial.dataBlockTimeoutMs", 1000)
	v.SetDefault("serial.maxDataBlockBytes", 50)

	v.SetDefault("discovery.addressLo", 1)
	v.SetDefault("discovery.addressHi", 16)
	v.SetDefault("discovery.retries", 3)
	v.SetDefault("discovery.retryDelayMs", 100)
	v.SetDefault("discovery.probeTimeoutSeconds", 2)

	v.SetDefault("fleet.workers", 10)
	v.SetDefault("fleet.pollTimeoutSeconds", 5)

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.timeoutSeconds", 30)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "text")
	v.SetDefault("logger.filePath", "")
	v.SetDefault("logger.maxSizeMB", 50)
	v.SetDefault("logger.maxBackups", 5)
	v.SetDefault("logger.maxAgeDays", 30)
	v.SetDefault("logger.enableConsole", true)
}
