// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Fuelink

package fleet

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fuelink/forecourt/internal/transport"
	"github.com/fuelink/forecourt/pkg/twowire"
)

// busChannel emulates one physical line with any number of pumps cascaded on
// it, each at its own address with its own state.
type busChannel struct {
	mu      sync.Mutex
	states  map[int]twowire.StatusCode
	frames  map[int][]byte
	pending []byte
	closed  bool
}

func newBus(addresses ...int) *busChannel {
	b := &busChannel{
		states: make(map[int]twowire.StatusCode),
		frames: make(map[int][]byte),
	}
	for _, a := range addresses {
		b.states[a] = twowire.StatusOff
	}
	return b
}

func (b *busChannel) setState(addr int, s twowire.StatusCode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.states[addr] = s
}

func (b *busChannel) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, cmd := range p {
		if cmd == twowire.AllStopByte {
			for a := range b.states {
				b.states[a] = twowire.StatusStop
			}
			continue
		}
		nibble := cmd & 0x0F
		addr, err := twowire.NibbleToAddress(nibble)
		if err != nil {
			continue
		}
		state, present := b.states[addr]
		if !present {
			continue
		}
		switch twowire.Command(cmd >> 4) {
		case twowire.CmdStatus:
			b.pending = []byte{byte(state)<<4 | nibble}
		case twowire.CmdAuthorize:
			b.states[addr] = twowire.StatusAuth
		case twowire.CmdStop:
			b.states[addr] = twowire.StatusStop
		case twowire.CmdTransaction, twowire.CmdTotals:
			b.pending = append([]byte(nil), b.frames[addr]...)
		}
	}
	return len(p), nil
}

func (b *busChannel) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) == 0 {
		return 0, nil
	}
	n := copy(p, b.pending[:1])
	b.pending = b.pending[1:]
	return n, nil
}

func (b *busChannel) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *busChannel) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *busChannel) Drain() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = nil
	return nil
}

func (b *busChannel) SetReadTimeout(time.Duration) error { return nil }

// harness wires named buses behind a transport.Opener and counts dials.
type harness struct {
	mu    sync.Mutex
	buses map[string]*busChannel
	opens map[string]int
}

func newHarness() *harness {
	return &harness{
		buses: make(map[string]*busChannel),
		opens: make(map[string]int),
	}
}

func (h *harness) addBus(port string, addresses ...int) *busChannel {
	b := newBus(addresses...)
	h.mu.Lock()
	h.buses[port] = b
	h.mu.Unlock()
	return b
}

func (h *harness) opener(port string) (transport.Channel, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.buses[port]
	if !ok {
		return nil, fmt.Errorf("no such port %s", port)
	}
	h.opens[port]++
	b.mu.Lock()
	b.closed = false
	b.mu.Unlock()
	return b, nil
}

func (h *harness) manager() *Manager {
	return NewManager(h.opener, ManagerConfig{
		Workers:     4,
		PollTimeout: time.Second,
		Line: transport.LineConfig{
			ResponseWindow: time.Millisecond,
			BlockTimeout:   20 * time.Millisecond,
		},
	})
}

func TestAddValidation(t *testing.T) {
	h := newHarness()
	h.addBus("P1", 1)
	m := h.manager()

	if _, err := m.Add("P1", 0, ""); err == nil {
		t.Error("address 0 accepted")
	}
	if _, err := m.Add("P1", 17, ""); err == nil {
		t.Error("address 17 accepted")
	}
	if _, err := m.Add("P1", 1, "north island"); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if _, err := m.Add("P1", 1, ""); err == nil {
		t.Error("duplicate port/address pair accepted")
	}
}

func TestRegistryLifecycle(t *testing.T) {
	h := newHarness()
	h.addBus("P1", 1, 2)
	m := h.manager()

	a, err := m.Add("P1", 1, "")
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}
	b, err := m.Add("P1", 2, "")
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if a.ID == b.ID {
		t.Fatalf("duplicate device IDs: %d", a.ID)
	}

	got, err := m.Get(a.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Port != "P1" || got.Address != 1 || got.Connected {
		t.Errorf("unexpected device: %+v", got)
	}
	if got.LastState != twowire.StateOffline {
		t.Errorf("fresh device state = %s, want OFFLINE", got.LastState)
	}

	if list := m.List(); len(list) != 2 || list[0].ID != a.ID || list[1].ID != b.ID {
		t.Errorf("List() = %+v", list)
	}

	if err := m.Remove(a.ID); err != nil {
		t.Fatalf("Remove error: %v", err)
	}
	if _, err := m.Get(a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after remove error = %v, want ErrNotFound", err)
	}
	if err := m.Remove(a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("double Remove error = %v, want ErrNotFound", err)
	}
}

func TestRemoveLastDeviceClosesLine(t *testing.T) {
	h := newHarness()
	bus := h.addBus("P1", 1, 2)
	m := h.manager()

	a, _ := m.Add("P1", 1, "")
	b, _ := m.Add("P1", 2, "")
	if _, err := m.Connect(a.ID); err != nil {
		t.Fatalf("Connect error: %v", err)
	}

	if err := m.Remove(a.ID); err != nil {
		t.Fatalf("Remove error: %v", err)
	}
	if bus.isClosed() {
		t.Error("line closed while a device remains on the port")
	}

	if err := m.Remove(b.ID); err != nil {
		t.Fatalf("Remove error: %v", err)
	}
	if !bus.isClosed() {
		t.Error("line left open after the last device on the port was removed")
	}

	// Re-registering the port recreates the line cleanly.
	c, err := m.Add("P1", 1, "")
	if err != nil {
		t.Fatalf("Add after remove error: %v", err)
	}
	got, err := m.Connect(c.ID)
	if err != nil {
		t.Fatalf("Connect after remove error: %v", err)
	}
	if got.LastState != twowire.StateIdle {
		t.Errorf("state after reconnect = %s, want IDLE", got.LastState)
	}
}

func TestConnectRefreshesState(t *testing.T) {
	h := newHarness()
	h.addBus("P1", 3)
	m := h.manager()

	dev, _ := m.Add("P1", 3, "")
	got, err := m.Connect(dev.ID)
	if err != nil {
		t.Fatalf("Connect error: %v", err)
	}
	if !got.Connected {
		t.Error("device not marked connected")
	}
	if got.LastState != twowire.StateIdle {
		t.Errorf("state after connect = %s, want IDLE", got.LastState)
	}
}

func TestConnectUnknownPortFails(t *testing.T) {
	h := newHarness()
	m := h.manager()

	dev, _ := m.Add("NOPE", 1, "")
	if _, err := m.Connect(dev.ID); err == nil {
		t.Error("Connect succeeded for an unopenable port")
	}
	got, _ := m.Get(dev.ID)
	if got.Connected {
		t.Error("device marked connected despite dial failure")
	}
	if got.LastError == "" {
		t.Error("dial failure not recorded on the device")
	}
}

func TestDisconnectClosesIdleLine(t *testing.T) {
	h := newHarness()
	bus := h.addBus("P1", 1, 2)
	m := h.manager()

	a, _ := m.Add("P1", 1, "")
	b, _ := m.Add("P1", 2, "")
	m.Connect(a.ID)
	m.Connect(b.ID)

	if err := m.Disconnect(a.ID); err != nil {
		t.Fatalf("Disconnect error: %v", err)
	}
	if bus.isClosed() {
		t.Error("line closed while another device on the port is connected")
	}

	if err := m.Disconnect(b.ID); err != nil {
		t.Fatalf("Disconnect error: %v", err)
	}
	if !bus.isClosed() {
		t.Error("line left open with no connected devices on the port")
	}
}

func TestStatusesSweep(t *testing.T) {
	h := newHarness()
	bus1 := h.addBus("P1", 1, 2)
	h.addBus("P2", 1)
	bus1.setState(2, twowire.StatusBusy)
	m := h.manager()

	a, _ := m.Add("P1", 1, "")
	b, _ := m.Add("P1", 2, "")
	c, _ := m.Add("P2", 1, "")
	d, _ := m.Add("P1", 9, "") // nobody at address 9

	results := m.Statuses()
	if len(results) != 4 {
		t.Fatalf("got %d results, want 4", len(results))
	}
	byID := make(map[int]DeviceStatusResult, len(results))
	for i, r := range results {
		if i > 0 && results[i-1].DeviceID > r.DeviceID {
			t.Error("results not ordered by device ID")
		}
		byID[r.DeviceID] = r
	}
	if byID[a.ID].State != twowire.StateIdle {
		t.Errorf("device %d state = %s, want IDLE", a.ID, byID[a.ID].State)
	}
	if byID[b.ID].State != twowire.StateDispensing {
		t.Errorf("device %d state = %s, want DISPENSING", b.ID, byID[b.ID].State)
	}
	if byID[c.ID].State != twowire.StateIdle {
		t.Errorf("device %d state = %s, want IDLE", c.ID, byID[c.ID].State)
	}
	if byID[d.ID].State != twowire.StateOffline {
		t.Errorf("device %d state = %s, want OFFLINE", d.ID, byID[d.ID].State)
	}
}

func TestAuthorizeAndStop(t *testing.T) {
	h := newHarness()
	h.addBus("P1", 1)
	m := h.manager()

	dev, _ := m.Add("P1", 1, "")
	ok, err := m.Authorize(dev.ID)
	if err != nil {
		t.Fatalf("Authorize error: %v", err)
	}
	if !ok {
		t.Fatal("Authorize not confirmed")
	}
	got, _ := m.Get(dev.ID)
	if got.LastState != twowire.StateAuthorized {
		t.Errorf("state after authorize = %s, want AUTHORIZED", got.LastState)
	}

	ok, err = m.Stop(dev.ID)
	if err != nil {
		t.Fatalf("Stop error: %v", err)
	}
	if !ok {
		t.Fatal("Stop not confirmed")
	}
	got, _ = m.Get(dev.ID)
	if got.LastState != twowire.StateStopped {
		t.Errorf("state after stop = %s, want STOPPED", got.LastState)
	}
}

func TestTransactionFetch(t *testing.T) {
	h := newHarness()
	bus := h.addBus("P1", 4)
	bus.frames[4] = []byte{
		0xFF,
		0xF6, 0xE1,
		0xF9, 0xE1, 0xE2, 0xE3, 0xE0, 0xE0, 0xE0,
		0xFA, 0xE5, 0xE0, 0xE0, 0xE0, 0xE0, 0xE0,
		0xF0,
	}
	m := h.manager()

	dev, _ := m.Add("P1", 4, "")
	rec, err := m.Transaction(dev.ID)
	if err != nil {
		t.Fatalf("Transaction error: %v", err)
	}
	if rec.Grade != 1 || rec.Volume != 0.321 || rec.Money != 0.05 {
		t.Errorf("decoded grade=%d volume=%v money=%v", rec.Grade, rec.Volume, rec.Money)
	}
}

func TestStopAll(t *testing.T) {
	h := newHarness()
	bus1 := h.addBus("P1", 1, 2)
	bus2 := h.addBus("P2", 1)
	bus1.setState(1, twowire.StatusBusy)
	bus1.setState(2, twowire.StatusAuth)
	bus2.setState(1, twowire.StatusBusy)
	m := h.manager()

	ids := []int{}
	for _, spec := range []struct {
		port string
		addr int
	}{{"P1", 1}, {"P1", 2}, {"P2", 1}} {
		dev, err := m.Add(spec.port, spec.addr, "")
		if err != nil {
			t.Fatalf("Add error: %v", err)
		}
		if _, err := m.Connect(dev.ID); err != nil {
			t.Fatalf("Connect error: %v", err)
		}
		ids = append(ids, dev.ID)
	}

	if stopped := m.StopAll(); stopped != 3 {
		t.Errorf("StopAll() = %d, want 3", stopped)
	}
	for _, id := range ids {
		got, _ := m.Get(id)
		if got.LastState != twowire.StateStopped {
			t.Errorf("device %d state = %s, want STOPPED", id, got.LastState)
		}
	}
}

func TestOperationsOnUnknownDevice(t *testing.T) {
	h := newHarness()
	m := h.manager()

	if _, err := m.Status(42); !errors.Is(err, ErrNotFound) {
		t.Errorf("Status error = %v, want ErrNotFound", err)
	}
	if _, err := m.Authorize(42); !errors.Is(err, ErrNotFound) {
		t.Errorf("Authorize error = %v, want ErrNotFound", err)
	}
	if _, err := m.Transaction(42); !errors.Is(err, ErrNotFound) {
		t.Errorf("Transaction error = %v, want ErrNotFound", err)
	}
}
