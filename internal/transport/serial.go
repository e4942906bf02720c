// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Fuelink

package transport

import (
	"fmt"
	"time"

	"go.bug.st/serial"

	"github.com/fuelink/forecourt/pkg/twowire"
)

// serialChannel adapts a go.bug.st serial port to the Channel interface.
type serialChannel struct {
	port serial.Port
}

func (s *serialChannel) Read(p []byte) (int, error)  { return s.port.Read(p) }
func (s *serialChannel) Write(p []byte) (int, error) { return s.port.Write(p) }
func (s *serialChannel) Close() error                { return s.port.Close() }
func (s *serialChannel) Drain() error                { return s.port.ResetInputBuffer() }

func (s *serialChannel) SetReadTimeout(d time.Duration) error {
	return s.port.SetReadTimeout(d)
}

// OpenSerial opens a local serial port with the two-wire electrical
// parameters: 8 data bits, even parity, one stop bit, read timeout sized to
// the protocol response window.
func OpenSerial(portName string, baudRate int, readTimeout time.Duration) (Channel, error) {
	if baudRate == 0 || baudRate == twowire.NominalBaudRate {
		// Adapters rarely support the nominal 5787 baud.
		baudRate = twowire.FallbackBaudRate
	}
	if readTimeout <= 0 {
		readTimeout = twowire.ResponseWindow
	}

	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.EvenParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", portName, err)
	}

	return &serialChannel{port: port}, nil
}

// SerialOpener returns an Opener dialing local serial ports with fixed
// parameters.
func SerialOpener(baudRate int, readTimeout time.Duration) Opener {
	return func(port string) (Channel, error) {
		return OpenSerial(port, baudRate, readTimeout)
	}
}

// ListPorts enumerates the serial ports visible on this host.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	return ports, nil
}
