// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Fuelink

package twowire

// BCD fields carry one decimal digit per byte in the low nibble, ordered
// least-significant digit first. The high nibble of every payload byte on the
// wire is 0xE (data marker); it is ignored here and validated during frame
// decoding.

// DecodeBCDField converts a BCD payload to its decimal value, dividing by
// divisor for the field's implied decimal places.
func DecodeBCDField(data []byte, divisor int) float64 {
	var magnitude uint64
	mult := uint64(1)
	for _, b := range data {
		magnitude += uint64(b&0x0F) * mult
		mult *= 10
	}
	return float64(magnitude) / float64(divisor)
}

// EncodeBCDField converts a decimal value into a wire-form BCD payload of the
// given digit count, applying the field's implied scaling. Each byte carries
// the 0xE data marker in its high nibble. Values beyond the digit capacity
// wrap; callers pick digits per the field being encoded.
func EncodeBCDField(value float64, digits, divisor int) []byte {
	magnitude := uint64(value*float64(divisor) + 0.5)
	out := make([]byte, digits)
	for i := 0; i < digits; i++ {
		out[i] = 0xE0 | byte(magnitude%10)
		magnitude /= 10
	}
	return out
}
