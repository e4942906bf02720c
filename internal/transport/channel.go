// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Fuelink

// Package transport owns the physical serial channels of the forecourt and
// the half-duplex exchange discipline on them. One Line exists per physical
// port; every pump cascaded on that port shares it.
package transport

import (
	"errors"
	"io"
	"time"
)

// Channel is the byte pipe underneath a Line: a local serial port or a
// remote serial bridge. Read follows serial timeout semantics and returns
// (0, nil) when no byte arrived within the configured read timeout.
type Channel interface {
	io.ReadWriteCloser

	// Drain discards any stale input buffered on the channel.
	Drain() error

	// SetReadTimeout bounds how long a single Read blocks for.
	SetReadTimeout(d time.Duration) error
}

// Opener dials the Channel for a named port. The fleet layer injects one so
// lines can ride a local port, a WebSocket bridge, or a test double.
type Opener func(port string) (Channel, error)

// Exchange errors
var (
	// ErrTimeout: the pump sent nothing within the response window.
	ErrTimeout = errors.New("transport: no reply within response window")

	// ErrDisconnected: the channel failed mid-exchange. The line is marked
	// closed and must be reopened before the next exchange.
	ErrDisconnected = errors.New("transport: channel failed mid-exchange")
)
