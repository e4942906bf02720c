// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Fuelink

// Package fleet manages the registry of pumps across serial lines: adding and
// removing devices, fanning status polls out concurrently, discovery scans,
// and the forecourt-wide emergency stop.
package fleet

import (
	"time"

	"github.com/fuelink/forecourt/internal/session"
	"github.com/fuelink/forecourt/pkg/twowire"
)

// Device is one registered pump: a port/address pair plus the last state the
// manager observed for it.
type Device struct {
	ID          int                 `json:"id"`
	Port        string              `json:"port"`
	Address     int                 `json:"address"`
	Name        string              `json:"name,omitempty"`
	Connected   bool                `json:"connected"`
	LastState   twowire.DeviceState `json:"last_state"`
	LastUpdated time.Time           `json:"last_updated,omitempty"`
	LastError   string              `json:"last_error,omitempty"`
}

// DeviceStatusResult pairs a poll outcome with the device it came from.
type DeviceStatusResult struct {
	DeviceID int `json:"device_id"`
	session.StatusResult
}
