// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Fuelink

package fleet

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fuelink/forecourt/internal/session"
	"github.com/fuelink/forecourt/internal/transport"
	"github.com/fuelink/forecourt/pkg/twowire"
)

// DiscoveryConfig tunes a discovery scan.
type DiscoveryConfig struct {
	// AddressLo and AddressHi bound the scanned address range, inclusive.
	// Zero values mean the full protocol range 1-16.
	AddressLo int
	AddressHi int

	// Retries is how many status probes each address gets before it is
	// declared absent. Zero means 3.
	Retries int

	// RetryDelay separates consecutive probes of the same address. Zero
	// means 100 ms.
	RetryDelay time.Duration

	// ProbeTimeout caps the total time spent on one address across all its
	// retries. Zero means no cap beyond the per-probe response window.
	ProbeTimeout time.Duration

	// AutoAdd registers every pump found with the manager.
	AutoAdd bool
}

// DiscoveredPump is one responsive address found during a scan.
type DiscoveredPump struct {
	Port     string              `json:"port"`
	Address  int                 `json:"address"`
	State    twowire.DeviceState `json:"state"`
	DeviceID int                 `json:"device_id,omitempty"`
}

// DiscoveryResult summarizes one scan.
type DiscoveryResult struct {
	ScanID       string           `json:"scan_id"`
	Devices      []DiscoveredPump `json:"devices"`
	TotalFound   int              `json:"total_found"`
	ScanDuration float64          `json:"scan_duration_seconds"`
	ScannedPorts []string         `json:"scanned_ports"`
	Timestamp    time.Time        `json:"timestamp"`
	Warnings     []string         `json:"warnings,omitempty"`
}

// Discover probes the address range on each port and reports every pump that
// answered a status poll. Ports scan in parallel under the worker semaphore;
// addresses on one port scan sequentially, since its line is half-duplex
// anyway. A nil or empty port list scans all local serial ports. Ports that
// cannot be opened produce a warning, not a failure.
func (m *Manager) Discover(ports []string, cfg DiscoveryConfig) (*DiscoveryResult, error) {
	if cfg.AddressLo <= 0 {
		cfg.AddressLo = twowire.MinAddress
	}
	if cfg.AddressHi <= 0 {
		cfg.AddressHi = twowire.MaxAddress
	}
	if cfg.AddressLo < twowire.MinAddress || cfg.AddressHi > twowire.MaxAddress ||
		cfg.AddressLo > cfg.AddressHi {
		return nil, fmt.Errorf("invalid address range %d-%d", cfg.AddressLo, cfg.AddressHi)
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 100 * time.Millisecond
	}

	if len(ports) == 0 {
		local, err := transport.ListPorts()
		if err != nil {
			return nil, fmt.Errorf("enumerate serial ports: %w", err)
		}
		ports = local
	}

	result := &DiscoveryResult{
		ScanID:       uuid.NewString(),
		ScannedPorts: ports,
		Timestamp:    time.Now(),
	}
	log := m.log.WithField("scan_id", result.ScanID)
	log.WithFields(logrus.Fields{
		"ports":     ports,
		"addresses": fmt.Sprintf("%d-%d", cfg.AddressLo, cfg.AddressHi),
	}).Info("discovery scan started")

	start := time.Now()
	var (
		mu       sync.Mutex
		found    []DiscoveredPump
		warnings []string
		wg       sync.WaitGroup
	)

	for _, port := range ports {
		wg.Add(1)
		go func(port string) {
			defer wg.Done()
			m.sem <- struct{}{}
			defer func() { <-m.sem }()

			pumps, warn := m.scanPort(port, cfg, log)
			mu.Lock()
			found = append(found, pumps...)
			if warn != "" {
				warnings = append(warnings, warn)
			}
			mu.Unlock()
		}(port)
	}
	wg.Wait()

	if cfg.AutoAdd {
		for i := range found {
			dev, err := m.Add(found[i].Port, found[i].Address, "")
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("%s addr %d: %v",
					found[i].Port, found[i].Address, err))
				continue
			}
			found[i].DeviceID = dev.ID
		}
	}

	result.Devices = found
	result.TotalFound = len(found)
	result.Warnings = warnings
	result.ScanDuration = time.Since(start).Seconds()
	log.WithFields(logrus.Fields{
		"found":    result.TotalFound,
		"duration": result.ScanDuration,
	}).Info("discovery scan complete")
	return result, nil
}

// scanPort probes every address in range on one port. The line is dialed
// fresh if the manager does not already hold one for the port.
func (m *Manager) scanPort(port string, cfg DiscoveryConfig, log *logrus.Entry) ([]DiscoveredPump, string) {
	line := m.lineFor(port)
	if err := line.Open(); err != nil {
		return nil, fmt.Sprintf("%s: %v", port, err)
	}

	var pumps []DiscoveredPump
	for addr := cfg.AddressLo; addr <= cfg.AddressHi; addr++ {
		state, ok := probe(line, addr, cfg)
		if !ok {
			continue
		}
		log.WithFields(logrus.Fields{
			"port":    port,
			"address": addr,
			"state":   state,
		}).Info("pump found")
		pumps = append(pumps, DiscoveredPump{Port: port, Address: addr, State: state})
	}
	if len(pumps) == 0 {
		m.releaseLine(port)
	}
	return pumps, ""
}

// probe polls one address until it answers, retries are spent, or the
// per-address budget runs out.
func probe(line *transport.Line, addr int, cfg DiscoveryConfig) (twowire.DeviceState, bool) {
	var deadline time.Time
	if cfg.ProbeTimeout > 0 {
		deadline = time.Now().Add(cfg.ProbeTimeout)
	}

	sess := session.New(line, addr)
	for attempt := 0; attempt < cfg.Retries; attempt++ {
		if attempt > 0 {
			time.Sleep(cfg.RetryDelay)
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return twowire.StateOffline, false
		}
		res := sess.PollStatus()
		if res.State != twowire.StateOffline {
			return res.State, true
		}
	}
	return twowire.StateOffline, false
}

// lineFor returns the manager's line for a port, creating one if the port has
// no registered devices yet. Discovery lines persist so a follow-up Add finds
// the channel already dialed.
func (m *Manager) lineFor(port string) *transport.Line {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.lines[port]; ok {
		return l
	}
	l := transport.NewLine(port, m.opener, m.cfg.Line)
	m.lines[port] = l
	return l
}

// releaseLine closes and drops a port's line unless a registered device still
// needs it.
func (m *Manager) releaseLine(port string) {
	m.mu.Lock()
	if m.portInUseLocked(port) {
		m.mu.Unlock()
		return
	}
	l := m.lines[port]
	delete(m.lines, port)
	m.mu.Unlock()

	if l != nil {
		if err := l.Close(); err != nil {
			m.log.WithError(err).WithField("port", port).Debug("closing scan line")
		}
	}
}
