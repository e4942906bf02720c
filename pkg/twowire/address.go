// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Fuelink

package twowire

import "fmt"

// AddressToNibble converts a pump address (1-16) to its wire nibble.
// Address 16 encodes as nibble 0x0; 1-15 encode as themselves.
func AddressToNibble(addr int) (byte, error) {
	switch {
	case addr == MaxAddress:
		return 0x0, nil
	case addr >= MinAddress && addr < MaxAddress:
		return byte(addr), nil
	default:
		return 0, fmt.Errorf("invalid pump address: %d", addr)
	}
}

// NibbleToAddress converts a wire nibble back to a pump address.
// The mapping is the inverse of AddressToNibble over {0x0..0xF}.
func NibbleToAddress(n byte) (int, error) {
	switch {
	case n == 0x0:
		return MaxAddress, nil
	case n <= 0xF:
		return int(n), nil
	default:
		return 0, fmt.Errorf("invalid address nibble: 0x%X", n)
	}
}
