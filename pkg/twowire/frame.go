// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Fuelink

package twowire

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedFrame reports a transaction data block that does not conform
// to the wire grammar.
var ErrMalformedFrame = errors.New("malformed transaction frame")

// FieldSet records which sections were present in a decoded frame.
type FieldSet uint8

// Frame fields
const (
	FieldPumpID FieldSet = 1 << iota
	FieldGrade
	FieldPPU
	FieldVolume
	FieldMoney
	FieldLRC
)

// Has reports whether all fields in f are present in s.
func (s FieldSet) Has(f FieldSet) bool {
	return s&f == f
}

// String lists the present fields.
func (s FieldSet) String() string {
	names := []struct {
		f    FieldSet
		name string
	}{
		{FieldPumpID, "pump-id"},
		{FieldGrade, "grade"},
		{FieldPPU, "ppu"},
		{FieldVolume, "volume"},
		{FieldMoney, "money"},
		{FieldLRC, "lrc"},
	}
	var present []string
	for _, n := range names {
		if s.Has(n.f) {
			present = append(present, n.name)
		}
	}
	if len(present) == 0 {
		return "none"
	}
	return strings.Join(present, ",")
}

// TransactionRecord is the decoded content of a transaction data block.
// Fields are only meaningful when flagged in Present; short frames that
// terminate cleanly at ETX still yield whatever sections arrived.
type TransactionRecord struct {
	PumpData     []byte  `json:"pump_data,omitempty"` // 5-byte pump identifier diagnostic block
	Grade        int     `json:"grade"`
	PricePerUnit float64 `json:"price_per_unit"`
	Volume       float64 `json:"volume"`
	Money        float64 `json:"money"`

	// LRC is advisory: the exact byte coverage of the checksum varies per
	// deployment, so a mismatch is recorded, never a parse failure.
	LRC      byte `json:"lrc,omitempty"`
	LRCMatch bool `json:"lrc_match"`

	Present FieldSet `json:"-"`

	// UnknownDCWs lists control words this decoder did not recognize. Their
	// payload length is assumed to be one byte; a non-empty list marks the
	// record as only partially decoded.
	UnknownDCWs []byte `json:"unknown_dcws,omitempty"`
}

// Partial reports whether the frame contained control words the decoder had
// to skip blind.
func (r *TransactionRecord) Partial() bool {
	return len(r.UnknownDCWs) > 0
}

// ComputeLRC returns the 4-bit running XOR of data.
func ComputeLRC(data []byte) byte {
	var lrc byte
	for _, b := range data {
		lrc ^= b
	}
	return lrc & 0x0F
}

// DecodeTransactionFrame walks a transaction data block, consuming
// (DCW, payload) sections between STX and ETX.
//
// It fails with ErrMalformedFrame if STX is missing at position 0, if a
// declared payload would run past the buffer end, if a payload byte carries a
// high nibble outside {0xE, 0xF}, or if ETX is never reached. A frame that
// closes at ETX with only some sections present decodes successfully; callers
// consult Present for what arrived.
func DecodeTransactionFrame(data []byte) (*TransactionRecord, error) {
	if len(data) == 0 || data[0] != STX {
		return nil, fmt.Errorf("%w: missing STX at start of block", ErrMalformedFrame)
	}

	rec := &TransactionRecord{}
	pos := 1
	closed := false
	lrcEnd := -1

walk:
	for pos < len(data) {
		dcw := data[pos]
		pos++

		switch dcw {
		case ETX:
			closed = true
			break walk

		case DCWPumpID:
			payload, err := takePayload(data, &pos, PumpIDLen)
			if err != nil {
				return nil, err
			}
			rec.PumpData = append([]byte(nil), payload...)
			rec.Present |= FieldPumpID

		case DCWGrade:
			payload, err := takePayload(data, &pos, GradeLen)
			if err != nil {
				return nil, err
			}
			rec.Grade = int(payload[0] & 0x0F)
			rec.Present |= FieldGrade

		case DCWPPU:
			payload, err := takePayload(data, &pos, PPULen)
			if err != nil {
				return nil, err
			}
			rec.PricePerUnit = DecodeBCDField(payload, PPUDivisor)
			rec.Present |= FieldPPU

		case DCWVolume:
			payload, err := takePayload(data, &pos, VolumeLen)
			if err != nil {
				return nil, err
			}
			rec.Volume = DecodeBCDField(payload, VolumeDivisor)
			rec.Present |= FieldVolume

		case DCWMoney:
			payload, err := takePayload(data, &pos, MoneyLen)
			if err != nil {
				return nil, err
			}
			rec.Money = DecodeBCDField(payload, MoneyDivisor)
			rec.Present |= FieldMoney

		case DCWLrc:
			payload, err := takePayload(data, &pos, 1)
			if err != nil {
				return nil, err
			}
			rec.LRC = payload[0] & 0x0F
			rec.Present |= FieldLRC
			lrcEnd = pos - 2 // interior bytes end before the LRC control word

		default:
			// Unknown DCW: assume a single payload byte and flag the record
			// as partially decoded rather than resynchronizing silently.
			if pos >= len(data) {
				return nil, fmt.Errorf("%w: payload for DCW 0x%02X runs past buffer end", ErrMalformedFrame, dcw)
			}
			rec.UnknownDCWs = append(rec.UnknownDCWs, dcw)
			pos++
		}
	}

	if !closed {
		return nil, fmt.Errorf("%w: ETX never reached", ErrMalformedFrame)
	}

	if rec.Present.Has(FieldLRC) && lrcEnd > 0 {
		rec.LRCMatch = ComputeLRC(data[1:lrcEnd]) == rec.LRC
	}

	return rec, nil
}

// takePayload consumes n payload bytes at *pos, validating the data marker
// nibble on each.
func takePayload(data []byte, pos *int, n int) ([]byte, error) {
	if *pos+n > len(data) {
		return nil, fmt.Errorf("%w: declared %d-byte payload runs past buffer end at offset %d", ErrMalformedFrame, n, *pos)
	}
	payload := data[*pos : *pos+n]
	for i, b := range payload {
		if hi := b & 0xF0; hi != 0xE0 && hi != 0xF0 {
			return nil, fmt.Errorf("%w: byte 0x%02X at offset %d is neither data nor control", ErrMalformedFrame, b, *pos+i)
		}
	}
	*pos += n
	return payload, nil
}
