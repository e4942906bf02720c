// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Fuelink

package twowire

import (
	"fmt"
	"strings"
)

// FormatBytes renders data as space-separated uppercase hex.
func FormatBytes(data []byte) string {
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, " ")
}

// DescribeByte names a frame byte: control words by mnemonic, data bytes by
// their digit, anything else as unknown.
func DescribeByte(b byte) string {
	switch b {
	case STX:
		return "STX"
	case ETX:
		return "ETX"
	case DCWGrade:
		return "GRADE_NEXT"
	case DCWPPU:
		return "PPU_NEXT"
	case DCWPumpID:
		return "PUMP_ID_NEXT"
	case DCWVolume:
		return "VOLUME_NEXT"
	case DCWMoney:
		return "MONEY_NEXT"
	case DCWLrc:
		return "LRC_NEXT"
	}
	switch b & 0xF0 {
	case 0xF0:
		return fmt.Sprintf("DCW(0xF%X)", b&0x0F)
	case 0xE0:
		return fmt.Sprintf("DATA(%d)", b&0x0F)
	default:
		return "UNKNOWN"
	}
}

// FormatFrame renders an annotated, line-per-byte dump of a transaction data
// block for diagnostics.
func FormatFrame(data []byte) string {
	var sb strings.Builder
	for i, b := range data {
		fmt.Fprintf(&sb, "%2d: 0x%02X  %s\n", i, b, DescribeByte(b))
	}
	return sb.String()
}

// FormatWireByte renders a single wire byte as 0xNN.
func FormatWireByte(b byte) string {
	return fmt.Sprintf("0x%02X", b)
}
