// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Fuelink

package twowire

import (
	"errors"
	"fmt"
)

// ErrMalformedReply reports a status reply that does not conform to the wire
// grammar (wrong length or undecodable address nibble).
var ErrMalformedReply = errors.New("malformed status reply")

// DecodeStatusReply parses a single status reply byte into the responding
// pump address and its raw status code. The status code occupies the high
// nibble, the address nibble the low.
func DecodeStatusReply(reply []byte) (int, StatusCode, error) {
	if len(reply) != 1 {
		return 0, 0, fmt.Errorf("%w: expected 1 byte, got %d", ErrMalformedReply, len(reply))
	}
	word := reply[0]
	code := StatusCode(word >> 4)
	addr, err := NibbleToAddress(word & 0x0F)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	return addr, code, nil
}

// StatusToState maps a raw status code to the externally visible device
// state. The mapping is total: unknown codes map to StateOffline.
func StatusToState(code StatusCode) DeviceState {
	switch code {
	case StatusDataError:
		return StateError
	case StatusOff:
		return StateIdle
	case StatusCall:
		return StateCalling
	case StatusAuth:
		return StateAuthorized
	case StatusBusy:
		return StateDispensing
	case StatusPEOT, StatusFEOT:
		return StateComplete
	case StatusStop:
		return StateStopped
	case StatusSendData:
		// Data-request anomaly, surfaced as an error state.
		return StateError
	default:
		return StateOffline
	}
}

// String returns the status code mnemonic.
func (s StatusCode) String() string {
	switch s {
	case StatusDataError:
		return "DATA_ERROR"
	case StatusOff:
		return "OFF"
	case StatusCall:
		return "CALL"
	case StatusAuth:
		return "AUTH"
	case StatusBusy:
		return "BUSY"
	case StatusPEOT:
		return "PEOT"
	case StatusFEOT:
		return "FEOT"
	case StatusStop:
		return "STOP"
	case StatusSendData:
		return "SEND_DATA"
	default:
		return fmt.Sprintf("UNKNOWN(0x%X)", byte(s))
	}
}
