// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Fuelink

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/fuelink/forecourt/internal/fleet"
	"github.com/fuelink/forecourt/internal/transport"
)

// GetPassword retrieves the bridge password from the environment or prompts
// the user with echo disabled.
func GetPassword() (string, error) {
	if pw := os.Getenv("FORECOURT_WS_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// newOpener builds an Opener that dials serial devices directly and routes
// ws:// or wss:// port identifiers through the WebSocket bridge.
func newOpener() (transport.Opener, error) {
	serialOpen := transport.SerialOpener(
		cfg.Serial.BaudRate,
		time.Duration(cfg.Serial.ResponseWindowMs)*time.Millisecond,
	)

	password := ""
	if wsUsername != "" {
		var err error
		password, err = GetPassword()
		if err != nil {
			return nil, err
		}
	}
	bridgeOpen := transport.WebSocketOpener(wsUsername, password, wsNoSSLVerify)

	return func(port string) (transport.Channel, error) {
		if transport.IsBridgeURL(port) {
			return bridgeOpen(port)
		}
		return serialOpen(port)
	}, nil
}

func lineConfig() transport.LineConfig {
	return transport.LineConfig{
		ResponseWindow: time.Duration(cfg.Serial.ResponseWindowMs) * time.Millisecond,
		BlockTimeout:   time.Duration(cfg.Serial.DataBlockTimeoutMs) * time.Millisecond,
	}
}

// newManager builds a fleet manager from the loaded configuration.
func newManager() (*fleet.Manager, error) {
	opener, err := newOpener()
	if err != nil {
		return nil, err
	}
	return fleet.NewManager(opener, fleet.ManagerConfig{
		Workers:     cfg.Fleet.Workers,
		PollTimeout: time.Duration(cfg.Fleet.PollTimeoutSeconds) * time.Second,
		Line:        lineConfig(),
	}), nil
}

// newLine builds a standalone line for single-pump commands that name a port
// directly.
func newLine(port string) (*transport.Line, error) {
	opener, err := newOpener()
	if err != nil {
		return nil, err
	}
	return transport.NewLine(port, opener, lineConfig()), nil
}
