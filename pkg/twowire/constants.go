// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Fuelink

// Package twowire implements the codec for the two-wire forecourt protocol
// used by cascaded fuel-dispenser pumps on a shared half-duplex serial line.
//
// The package is pure: it converts between logical protocol values (commands,
// addresses, status codes, BCD quantities) and wire bytes, and performs no
// I/O. Transport discipline lives in internal/transport.
package twowire

import "time"

// Command is a 4-bit opcode occupying the high nibble of a command byte.
type Command byte

// Command opcodes
const (
	CmdStatus        Command = 0x0 // status poll
	CmdAuthorize     Command = 0x1 // authorize dispensing
	CmdSendData      Command = 0x2 // send data to pump
	CmdStop          Command = 0x3 // pump stop
	CmdTransaction   Command = 0x4 // request transaction data
	CmdTotals        Command = 0x5 // request pump totals
	CmdRealTimeMoney Command = 0x6 // request real-time money
)

// AllStopByte is the fixed broadcast stop word. It carries no address and is
// sent as-is to every pump on the line.
const AllStopByte byte = 0xFC

// StatusCode is the 4-bit value in the high nibble of a status reply byte.
type StatusCode byte

// Status codes reported by pumps
const (
	StatusDataError StatusCode = 0x0 // data error
	StatusOff       StatusCode = 0x6 // pump off / ready
	StatusCall      StatusCode = 0x7 // customer requesting service
	StatusAuth      StatusCode = 0x8 // authorized, not delivering
	StatusBusy      StatusCode = 0x9 // delivering product
	StatusPEOT      StatusCode = 0xA // transaction complete (PEOT)
	StatusFEOT      StatusCode = 0xB // transaction complete (FEOT)
	StatusStop      StatusCode = 0xC // pump stopped
	StatusSendData  StatusCode = 0xD // send-data response anomaly
)

// Data control words delimiting transaction frame sections
const (
	STX       byte = 0xFF // start of text
	ETX       byte = 0xF0 // end of text
	DCWGrade  byte = 0xF6 // grade data next (1 byte)
	DCWPPU    byte = 0xF7 // price-per-unit next (4 BCD bytes)
	DCWPumpID byte = 0xF8 // pump identifier block next (5 bytes)
	DCWVolume byte = 0xF9 // volume next (6 BCD bytes)
	DCWMoney  byte = 0xFA // money next (6 BCD bytes)
	DCWLrc    byte = 0xFB // LRC check character next (1 byte)
)

// Payload section lengths in bytes
const (
	PumpIDLen = 5
	GradeLen  = 1
	PPULen    = 4
	VolumeLen = 6
	MoneyLen  = 6
)

// Implied decimal scaling per BCD field
const (
	PPUDivisor    = 1000 // X.XXX
	VolumeDivisor = 1000 // XXX.XXX
	MoneyDivisor  = 100  // XXXX.XX
)

// Electrical and timing parameters of the two-wire line.
// The nominal 5787 baud is rarely supported by RS-232/485 adapters; 9600 is
// the common substitute.
const (
	NominalBaudRate  = 5787
	FallbackBaudRate = 9600
	ResponseWindow   = 68 * time.Millisecond
	DataBlockTimeout = time.Second
	MaxDataBlockLen  = 50
)

// Address bounds on a single line.
const (
	MinAddress = 1
	MaxAddress = 16
)

// DeviceState is the externally visible pump state. Offline has no wire
// representation; it is inferred locally from communication failure.
type DeviceState string

// Device states
const (
	StateIdle       DeviceState = "IDLE"
	StateCalling    DeviceState = "CALLING"
	StateAuthorized DeviceState = "AUTHORIZED"
	StateDispensing DeviceState = "DISPENSING"
	StateComplete   DeviceState = "COMPLETE"
	StateStopped    DeviceState = "STOPPED"
	StateError      DeviceState = "ERROR"
	StateOffline    DeviceState = "OFFLINE"
)
