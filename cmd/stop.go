// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Fuelink

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fuelink/forecourt/internal/session"
)

var stopAllPumps bool

var stopCmd = &cobra.Command{
	Use:   "stop <port> [address]",
	Short: "Stop one pump, or every pump on a line",
	Long: `Send the stop command to a pump and verify it halted.

With --all, the all-stop word is broadcast instead: every pump cascaded on
the line halts at once, with no individual confirmation. This is the
emergency stop.

Examples:
  forecourt stop /dev/ttyUSB0 1
  forecourt stop /dev/ttyUSB0 --all

Exit codes:
  0 - Stop confirmed (or broadcast sent)
  1 - Pump did not confirm
  2 - Connection error`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runStop,
}

func init() {
	rootCmd.AddCommand(stopCmd)
	stopCmd.Flags().BoolVar(&stopAllPumps, "all", false, "Broadcast all-stop to every pump on the line")
}

func runStop(cmd *cobra.Command, args []string) error {
	if !stopAllPumps && len(args) < 2 {
		return fmt.Errorf("an address is required unless --all is given")
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

	if stopAllPumps {
		if err := session.AllStop(line); err != nil {
			fmt.Fprintf(os.Stderr, "All-stop broadcast failed: %v\n", err)
			os.Exit(2)
		}
		fmt.Printf("All-stop broadcast on %s\n", args[0])
		return nil
	}

	addr, err := parseAddress(args[1])
	if err != nil {
		return err
	}
	if !session.New(line, addr).Stop() {
		fmt.Printf("Pump %d did not confirm stop\n", addr)
		os.Exit(1)
	}
	fmt.Printf("Pump %d stopped\n", addr)
	return nil
}
