// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Fuelink

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fuelink/forecourt/internal/session"
	"github.com/fuelink/forecourt/pkg/twowire"
)

var transactionTotals bool

var transactionCmd = &cobra.Command{
	Use:   "transaction <port> <address>",
	Short: "Fetch a pump's transaction data",
	Long: `Request the most recent transaction data block from a pump and print
the decoded fields.

With --totals, the running totals block is requested instead; it shares the
same frame grammar.

Examples:
  forecourt transaction /dev/ttyUSB0 1
  forecourt transaction /dev/ttyUSB0 1 --totals

Exit codes:
  0 - Data block received and decoded
  1 - No data or undecodable block
  2 - Connection error`,
	Args: cobra.ExactArgs(2),
	RunE: runTransaction,
}

func init() {
	rootCmd.AddCommand(transactionCmd)
	transactionCmd.Flags().BoolVar(&transactionTotals, "totals", false, "Request running totals instead of the last transaction")
}

func runTransaction(cmd *cobra.Command, args []string) error {
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

	sess := session.New(line, addr)
	var rec *twowire.TransactionRecord
	if transactionTotals {
		rec = sess.RequestTotals()
	} else {
		rec = sess.RequestTransaction()
	}
	if rec == nil {
		fmt.Printf("No data from pump %d\n", addr)
		os.Exit(1)
	}

	printRecord(rec)
	return nil
}

func printRecord(rec *twowire.TransactionRecord) {
	if rec.Present.Has(twowire.FieldPumpID) {
		fmt.Printf("  Pump ID:  % X\n", rec.PumpData)
	}
	if rec.Present.Has(twowire.FieldGrade) {
		fmt.Printf("  Grade:    %d\n", rec.Grade)
	}
	if rec.Present.Has(twowire.FieldPPU) {
		fmt.Printf("  Price:    %.3f per unit\n", rec.PricePerUnit)
	}
	if rec.Present.Has(twowire.FieldVolume) {
		fmt.Printf("  Volume:   %.3f\n", rec.Volume)
	}
	if rec.Present.Has(twowire.FieldMoney) {
		fmt.Printf("  Money:    %.2f\n", rec.Money)
	}
	if rec.Present.Has(twowire.FieldLRC) {
		match := "ok"
		if !rec.LRCMatch {
			match = "MISMATCH"
		}
		fmt.Printf("  LRC:      0x%X (%s)\n", rec.LRC, match)
	}
	if rec.Partial() {
		fmt.Printf("  Partial decode, unknown control words: %s\n",
			twowire.FormatBytes(rec.UnknownDCWs))
	}
}
