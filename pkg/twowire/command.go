// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Fuelink

package twowire

import "fmt"

// EncodeCommand serializes a command plus a pump address to its single wire
// byte: opcode in the high nibble, address nibble in the low.
func EncodeCommand(cmd Command, addr int) (byte, error) {
	if cmd > CmdRealTimeMoney {
		return 0, fmt.Errorf("invalid command opcode: 0x%X", byte(cmd))
	}
	nibble, err := AddressToNibble(addr)
	if err != nil {
		return 0, err
	}
	return byte(cmd)<<4 | nibble, nil
}

// EncodeAllStop returns the fixed broadcast stop byte. All pumps on the line
// act on it; no reply is ever sent.
func EncodeAllStop() byte {
	return AllStopByte
}

// String returns the command mnemonic.
func (c Command) String() string {
	switch c {
	case CmdStatus:
		return "STATUS"
	case CmdAuthorize:
		return "AUTHORIZE"
	case CmdSendData:
		return "SEND_DATA"
	case CmdStop:
		return "STOP"
	case CmdTransaction:
		return "TRANSACTION"
	case CmdTotals:
		return "TOTALS"
	case CmdRealTimeMoney:
		return "REAL_TIME_MONEY"
	default:
		return fmt.Sprintf("UNKNOWN(0x%X)", byte(c))
	}
}
