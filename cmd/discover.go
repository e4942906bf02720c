// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Fuelink

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fuelink/forecourt/internal/fleet"
)

var (
	discoverPorts   []string
	discoverFrom    int
	discoverTo      int
	discoverTimeout float64
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Scan lines for responsive pumps",
	Long: `Probe pump addresses on one or more lines and report every pump that
answers a status poll.

Each address gets up to three probes before it is declared absent; pumps in
any state, including errored ones, count as found. Without --ports, all local
serial devices are scanned.

Examples:
  # Scan every local serial port, full address range
  forecourt discover

  # Scan two lines, addresses 1-8, 2 second budget per address
  forecourt discover --ports /dev/ttyUSB0,/dev/ttyUSB1 --from 1 --to 8 --timeout 2

  # Scan through a WebSocket serial bridge
  forecourt discover --ports wss://bridge.local/line1 --username ops

Exit codes:
  0 - At least one pump found
  1 - Scan completed, no pumps found
  2 - Scan could not run`,
	RunE: runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	discoverCmd.Flags().StringSliceVar(&discoverPorts, "ports", nil, "Ports to scan (default: all local serial ports)")
	discoverCmd.Flags().IntVar(&discoverFrom, "from", 0, "First address to probe (default 1)")
	discoverCmd.Flags().IntVar(&discoverTo, "to", 0, "Last address to probe (default 16)")
	discoverCmd.Flags().Float64Var(&discoverTimeout, "timeout", 0, "Per-address probe budget in seconds")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	mgr, err := newManager()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Setup failed: %v\n", err)
		os.Exit(2)
	}

	scanCfg := fleet.DiscoveryConfig{
		AddressLo:  discoverFrom,
		AddressHi:  discoverTo,
		Retries:    cfg.Discovery.Retries,
		RetryDelay: time.Duration(cfg.Discovery.RetryDelayMs) * time.Millisecond,
	}
	if discoverTimeout > 0 {
		scanCfg.ProbeTimeout = time.Duration(discoverTimeout * float64(time.Second))
	} else if cfg.Discovery.ProbeTimeoutSeconds > 0 {
		scanCfg.ProbeTimeout = time.Duration(cfg.Discovery.ProbeTimeoutSeconds) * time.Second
	}

	res, err := mgr.Discover(discoverPorts, scanCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Scan failed: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("Scan %s: %d port(s), %.2fs\n", res.ScanID, len(res.ScannedPorts), res.ScanDuration)
	for _, w := range res.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
	for _, p := range res.Devices {
		fmt.Printf("  %-24s address %-2d  %s\n", p.Port, p.Address, p.State)
	}

	if res.TotalFound == 0 {
		fmt.Println("No pumps found")
		os.Exit(1)
	}
	fmt.Printf("%d pump(s) found\n", res.TotalFound)
	return nil
}
