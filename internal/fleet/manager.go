// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Fuelink

package fleet

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fuelink/forecourt/internal/session"
	"github.com/fuelink/forecourt/internal/transport"
	"github.com/fuelink/forecourt/pkg/twowire"
)

// ErrNotFound is returned for operations against an unregistered device ID.
var ErrNotFound = errors.New("device not found")

const (
	defaultWorkers     = 10
	defaultPollTimeout = 5 * time.Second
)

// ManagerConfig tunes the fleet manager.
type ManagerConfig struct {
	// Workers bounds how many status polls run concurrently across lines.
	// Zero means 10.
	Workers int

	// PollTimeout caps how long a fleet-wide status sweep waits on any one
	// device. Zero means five seconds.
	PollTimeout time.Duration

	// Line is applied to every line the manager creates.
	Line transport.LineConfig
}

// Manager owns the device registry and one Line per physical port. Exchanges
// to pumps on the same port serialize behind that port's line; pumps on
// different ports poll in parallel, bounded by the worker semaphore.
type Manager struct {
	opener transport.Opener
	cfg    ManagerConfig
	log    *logrus.Entry
	sem    chan struct{}

	mu      sync.RWMutex
	devices map[int]*Device
	lines   map[string]*transport.Line
	nextID  int
}

// NewManager creates an empty fleet using the given opener for every line.
func NewManager(opener transport.Opener, cfg ManagerConfig) *Manager {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	return &Manager{
		opener:  opener,
		cfg:     cfg,
		log:     logrus.WithField("component", "fleet"),
		sem:     make(chan struct{}, cfg.Workers),
		devices: make(map[int]*Device),
		lines:   make(map[string]*transport.Line),
	}
}

// Add registers a pump at a port/address pair. The line is dialed lazily on
// first use; the device starts disconnected.
func (m *Manager) Add(port string, address int, name string) (*Device, error) {
	if address < twowire.MinAddress || address > twowire.MaxAddress {
		return nil, fmt.Errorf("address %d out of range %d-%d",
			address, twowire.MinAddress, twowire.MaxAddress)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, d := range m.devices {
		if d.Port == port && d.Address == address {
			return nil, fmt.Errorf("pump already registered at %s address %d", port, address)
		}
	}

	m.nextID++
	dev := &Device{
		ID:        m.nextID,
		Port:      port,
		Address:   address,
		Name:      name,
		LastState: twowire.StateOffline,
	}
	m.devices[dev.ID] = dev
	if _, ok := m.lines[port]; !ok {
		m.lines[port] = transport.NewLine(port, m.opener, m.cfg.Line)
	}
	m.log.WithFields(logrus.Fields{
		"device_id": dev.ID,
		"port":      port,
		"address":   address,
	}).Info("pump registered")
	return snapshot(dev), nil
}

// Get returns a snapshot of one device.
func (m *Manager) Get(id int) (*Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	dev, ok := m.devices[id]
	if !ok {
		return nil, ErrNotFound
	}
	return snapshot(dev), nil
}

// List returns snapshots of every device, ordered by ID.
func (m *Manager) List() []*Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, snapshot(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Remove deregisters a device. The port's line is closed and dropped when the
// last device on it goes.
func (m *Manager) Remove(id int) error {
	m.mu.Lock()
	dev, ok := m.devices[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(m.devices, id)

	var orphan *transport.Line
	if !m.portInUseLocked(dev.Port) {
		orphan = m.lines[dev.Port]
		delete(m.lines, dev.Port)
	}
	m.mu.Unlock()

	if orphan != nil {
		if err := orphan.Close(); err != nil {
			m.log.WithError(err).WithField("port", dev.Port).Warn("closing orphaned line")
		}
	}
	m.log.WithField("device_id", id).Info("pump removed")
	return nil
}

// Connect opens the device's line and refreshes its state with one poll.
func (m *Manager) Connect(id int) (*Device, error) {
	dev, line, err := m.deviceLine(id)
	if err != nil {
		return nil, err
	}
	if err := line.Open(); err != nil {
		m.updateDevice(id, func(d *Device) {
			d.Connected = false
			d.LastError = err.Error()
		})
		return nil, err
	}

	res := session.New(line, dev.Address).PollStatus()
	m.updateDevice(id, func(d *Device) {
		d.Connected = true
		applyStatus(d, res)
	})
	return m.Get(id)
}

// Disconnect marks the device disconnected and closes the line once no other
// connected device shares the port.
func (m *Manager) Disconnect(id int) error {
	m.mu.Lock()
	dev, ok := m.devices[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	dev.Connected = false
	dev.LastState = twowire.StateOffline

	var idle *transport.Line
	if !m.portConnectedLocked(dev.Port) {
		idle = m.lines[dev.Port]
	}
	m.mu.Unlock()

	if idle != nil {
		if err := idle.Close(); err != nil {
			return err
		}
	}
	return nil
}

// ConnectAll connects every registered device, returning how many succeeded.
func (m *Manager) ConnectAll() int {
	ok := 0
	for _, d := range m.List() {
		if _, err := m.Connect(d.ID); err != nil {
			m.log.WithError(err).WithField("device_id", d.ID).Warn("connect failed")
			continue
		}
		ok++
	}
	return ok
}

// DisconnectAll disconnects every registered device.
func (m *Manager) DisconnectAll() {
	for _, d := range m.List() {
		if err := m.Disconnect(d.ID); err != nil {
			m.log.WithError(err).WithField("device_id", d.ID).Warn("disconnect failed")
		}
	}
}

// Status polls one device and records the outcome on it.
func (m *Manager) Status(id int) (DeviceStatusResult, error) {
	dev, line, err := m.deviceLine(id)
	if err != nil {
		return DeviceStatusResult{}, err
	}
	res := session.New(line, dev.Address).PollStatus()
	m.updateDevice(id, func(d *Device) { applyStatus(d, res) })
	return DeviceStatusResult{DeviceID: id, StatusResult: res}, nil
}

// Statuses polls every registered device concurrently. Pumps on the same port
// serialize behind the port's line; the worker semaphore bounds total
// concurrency. Devices that do not answer within the poll timeout are dropped
// from the result; their late replies are discarded.
func (m *Manager) Statuses() []DeviceStatusResult {
	devices := m.List()
	results := make(chan DeviceStatusResult, len(devices))

	for _, d := range devices {
		go func(id int) {
			m.sem <- struct{}{}
			defer func() { <-m.sem }()
			res, err := m.Status(id)
			if err != nil {
				res = DeviceStatusResult{
					DeviceID: id,
					StatusResult: session.StatusResult{
						State:        twowire.StateOffline,
						LastUpdated:  time.Now(),
						ErrorMessage: err.Error(),
					},
				}
			}
			results <- res
		}(d.ID)
	}

	out := make([]DeviceStatusResult, 0, len(devices))
	for range devices {
		select {
		case res := <-results:
			out = append(out, res)
		case <-time.After(m.cfg.PollTimeout):
			m.log.Warn("status sweep timed out waiting on a device")
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// Authorize authorizes one pump for dispensing.
func (m *Manager) Authorize(id int) (bool, error) {
	dev, line, err := m.deviceLine(id)
	if err != nil {
		return false, err
	}
	ok := session.New(line, dev.Address).Authorize()
	m.refresh(id)
	return ok, nil
}

// Stop halts one pump.
func (m *Manager) Stop(id int) (bool, error) {
	dev, line, err := m.deviceLine(id)
	if err != nil {
		return false, err
	}
	ok := session.New(line, dev.Address).Stop()
	m.refresh(id)
	return ok, nil
}

// Transaction fetches the most recent transaction record from one pump.
func (m *Manager) Transaction(id int) (*twowire.TransactionRecord, error) {
	dev, line, err := m.deviceLine(id)
	if err != nil {
		return nil, err
	}
	rec := session.New(line, dev.Address).RequestTransaction()
	if rec == nil {
		return nil, fmt.Errorf("no transaction data from pump %d", id)
	}
	return rec, nil
}

// Totals fetches the running totals block from one pump.
func (m *Manager) Totals(id int) (*twowire.TransactionRecord, error) {
	dev, line, err := m.deviceLine(id)
	if err != nil {
		return nil, err
	}
	rec := session.New(line, dev.Address).RequestTotals()
	if rec == nil {
		return nil, fmt.Errorf("no totals data from pump %d", id)
	}
	return rec, nil
}

// StopAll is the forecourt emergency stop: the all-stop word is broadcast on
// every open line, then every pump gets an individual stop sweep. Returns how
// many pumps confirmed stopped.
func (m *Manager) StopAll() int {
	m.mu.RLock()
	lines := make([]*transport.Line, 0, len(m.lines))
	for _, l := range m.lines {
		if l.IsOpen() {
			lines = append(lines, l)
		}
	}
	m.mu.RUnlock()

	for _, l := range lines {
		if err := session.AllStop(l); err != nil {
			m.log.WithError(err).WithField("port", l.Port()).Warn("all-stop broadcast failed")
		}
	}

	stopped := 0
	for _, d := range m.List() {
		if !d.Connected {
			continue
		}
		ok, err := m.Stop(d.ID)
		if err == nil && ok {
			stopped++
		}
	}
	m.log.WithField("stopped", stopped).Info("emergency stop complete")
	return stopped
}

// deviceLine resolves a device and its line without holding the lock during
// the caller's I/O.
func (m *Manager) deviceLine(id int) (*Device, *transport.Line, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	dev, ok := m.devices[id]
	if !ok {
		return nil, nil, ErrNotFound
	}
	line, ok := m.lines[dev.Port]
	if !ok {
		return nil, nil, fmt.Errorf("no line for port %s", dev.Port)
	}
	return snapshot(dev), line, nil
}

func (m *Manager) updateDevice(id int, fn func(*Device)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if dev, ok := m.devices[id]; ok {
		fn(dev)
	}
}

// refresh re-polls a device to keep its recorded state current after a
// control command.
func (m *Manager) refresh(id int) {
	if _, err := m.Status(id); err != nil {
		m.log.WithError(err).WithField("device_id", id).Debug("refresh failed")
	}
}

func (m *Manager) portInUseLocked(port string) bool {
	for _, d := range m.devices {
		if d.Port == port {
			return true
		}
	}
	return false
}

func (m *Manager) portConnectedLocked(port string) bool {
	for _, d := range m.devices {
		if d.Port == port && d.Connected {
			return true
		}
	}
	return false
}

func applyStatus(d *Device, res session.StatusResult) {
	d.LastState = res.State
	d.LastUpdated = res.LastUpdated
	d.LastError = res.ErrorMessage
}

func snapshot(d *Device) *Device {
	c := *d
	return &c
}
