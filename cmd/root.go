// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Fuelink

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/fuelink/forecourt/internal/config"
	"github.com/fuelink/forecourt/internal/logger"
)

var (
	cfgPath string
	cfg     *config.Config

	// Serial connection flags
	baudRate int

	// WebSocket bridge flags
	wsUsername    string
	wsNoSSLVerify bool
)

var rootCmd = &cobra.Command{
	Use:   "forecourt",
	Short: "Two-wire fuel pump controller",
	Long: `Forecourt - a controller for fuel dispensers speaking the two-wire
current-loop protocol.

Pumps cascade on shared half-duplex serial lines, up to sixteen per line.
Commands address one pump per exchange; the controller owns the line and
serializes traffic on it.

Connection modes:
  Serial:    pumps are reached through local serial devices, e.g. /dev/ttyUSB0
  WebSocket: a port argument of ws:// or wss:// is treated as a serial bridge
             URL; --username enables HTTP Basic auth

For bridge authentication, the password is read from the FORECOURT_WS_PASSWORD
environment variable, or prompted interactively if not set. There is no
--password flag, to keep credentials out of shell history.`,
	Version: "1.0.0",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		if baudRate > 0 {
			cfg.Serial.BaudRate = baudRate
		}
		return logger.Init(cfg.Logger)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Config file path (YAML)")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 0, "Baud rate override (serial only)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for bridge HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
