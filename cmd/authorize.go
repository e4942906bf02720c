// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Fuelink

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fuelink/forecourt/internal/session"
)

var authorizeCmd = &cobra.Command{
	Use:   "authorize <port> <address>",
	Short: "Authorize a pump for dispensing",
	Long: `Send the authorize command to a pump and verify it took effect.

The pump does not acknowledge the command on the wire; the controller waits
for the pump to settle, then polls its status. Authorization is confirmed
when the pump reports AUTHORIZED or has already begun DISPENSING.

Examples:
  forecourt authorize /dev/ttyUSB0 1

Exit codes:
  0 - Authorization confirmed
  1 - Pump did not confirm
  2 - Connection error`,
	Args: cobra.ExactArgs(2),
	RunE: runAuthorize,
}

func init() {
	rootCmd.AddCommand(authorizeCmd)
}

func runAuthorize(cmd *cobra.Command, args []string) error {
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

	if !session.New(line, addr).Authorize() {
		fmt.Printf("Pump %d did not confirm authorization\n", addr)
		os.Exit(1)
	}
	fmt.Printf("Pump %d authorized\n", addr)
	return nil
}
