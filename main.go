// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Fuelink
//
// Forecourt - two-wire fuel pump controller
//
// Drives fuel dispensers over half-duplex current-loop serial lines: status
// polling, authorization, transaction retrieval, discovery, and an HTTP
// management API.

package main

import (
	"os"

	"github.com/fuelink/forecourt/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
