// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Fuelink

package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fuelink/forecourt/internal/session"
	"github.com/fuelink/forecourt/pkg/twowire"
)

var statusCmd = &cobra.Command{
	Use:   "status <port> <address>",
	Short: "Poll one pump for its current state",
	Long: `Send a single status poll to a pump and print the decoded state.

A pump that does not answer within the response window reports OFFLINE.

Examples:
  forecourt status /dev/ttyUSB0 1
  forecourt status wss://bridge.local/line1 3 --username ops

Exit codes:
  0 - Pump answered
  1 - Pump offline or reply malformed
  2 - Connection error`,
	Args: cobra.ExactArgs(2),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// parseAddress parses and range-checks a pump address argument.
func parseAddress(arg string) (int, error) {
	addr, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("address must be an integer: %q", arg)
	}
	if addr < twowire.MinAddress || addr > twowire.MaxAddress {
		return 0, fmt.Errorf("address %d out of range %d-%d",
			addr, twowire.MinAddress, twowire.MaxAddress)
	}
	return addr, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	addr, err := parseAddress(args[1])
	if err != nil {
		return err
	}
	line, err := newLine(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Setup failed: %v\n", err)
		os.Exit(2)
	}
	if err := line.Open(); err != nil {
		fmt.Fprintf(os.Stderr, "Connection failed: %v\n", err)
		os.Exit(2)
	}
	defer line.Close()

	res := session.New(line, addr).PollStatus()
	fmt.Printf("Pump %d on %s: %s", addr, args[0], res.State)
	if res.RawCode != "" {
		fmt.Printf(" (code %s, wire %s)", res.RawCode, res.WireFormat)
	}
	fmt.Println()
	if res.ErrorMessage != "" {
		fmt.Printf("  %s\n", res.ErrorMessage)
	}

	if res.State == twowire.StateOffline || res.State == twowire.StateError {
		os.Exit(1)
	}
	return nil
}
