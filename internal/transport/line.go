// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Fuelink

package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fuelink/forecourt/pkg/twowire"
)

// LineConfig tunes the exchange timing on one physical line.
type LineConfig struct {
	// ResponseWindow is the mandated wait between writing a command and
	// reading the reply. Zero means the protocol default of 68 ms.
	ResponseWindow time.Duration

	// BlockTimeout caps the byte-by-byte polling for a data block reply.
	// Zero means the protocol default of one second.
	BlockTimeout time.Duration
}

// Line owns one physical serial channel shared by every pump cascaded on it.
// The bus is half-duplex: exactly one command/response exchange may be in
// flight per line, enforced by the mutex. Exchanges queue FIFO behind it.
type Line struct {
	port   string
	opener Opener
	cfg    LineConfig
	log    *logrus.Entry

	mu   sync.Mutex
	ch   Channel
	open bool
}

// NewLine creates a closed line for a port. The channel is dialed lazily on
// first use.
func NewLine(port string, opener Opener, cfg LineConfig) *Line {
	if cfg.ResponseWindow <= 0 {
		cfg.ResponseWindow = twowire.ResponseWindow
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = twowire.DataBlockTimeout
	}
	return &Line{
		port:   port,
		opener: opener,
		cfg:    cfg,
		log:    logrus.WithField("port", port),
	}
}

// Port returns the physical port identifier this line owns.
func (l *Line) Port() string {
	return l.port
}

// IsOpen reports whether the channel is currently open.
func (l *Line) IsOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open
}

// Open dials the channel. Idempotent if already open.
func (l *Line) Open() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.openLocked()
}

func (l *Line) openLocked() error {
	if l.open {
		l.log.Debug("already connected")
		return nil
	}
	ch, err := l.opener(l.port)
	if err != nil {
		return fmt.Errorf("connect %s: %w", l.port, err)
	}
	l.ch = ch
	l.open = true
	l.log.Info("line connected")
	return nil
}

// Close releases the channel. Safe to call when not open.
func (l *Line) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open {
		return nil
	}
	err := l.ch.Close()
	l.closeLocked()
	l.log.Info("line disconnected")
	return err
}

// closeLocked marks the line not-open without touching the channel; used
// after a mid-exchange failure where the channel state is unknown.
func (l *Line) closeLocked() {
	l.open = false
	l.ch = nil
}

// Exchange performs one command/response exchange under the line's exclusive
// gate: stale input is discarded, the command written, and — when a reply is
// expected — the response window waited out before reading.
//
// With maxReplyLen <= 1 exactly one byte is read after the wait. Larger
// values switch to data-block mode: bytes are polled one at a time until
// maxReplyLen bytes arrived, an ETX terminated the block, or the block
// timeout elapsed. Fire-and-forget commands (expectReply false) return an
// empty result immediately after the write.
//
// Exchange never retries; that policy belongs to the session and discovery
// layers.
func (l *Line) Exchange(command []byte, expectReply bool, maxReplyLen int) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.openLocked(); err != nil {
		return nil, err
	}

	if err := l.ch.Drain(); err != nil {
		l.log.WithError(err).Debug("drain before write failed")
	}

	l.log.WithField("command", twowire.FormatBytes(command)).Debug("sending command")
	if _, err := l.ch.Write(command); err != nil {
		l.closeLocked()
		return nil, fmt.Errorf("%w: %v", ErrDisconnected, err)
	}

	if !expectReply {
		return nil, nil
	}

	time.Sleep(l.cfg.ResponseWindow)

	if maxReplyLen <= 1 {
		return l.readStatusByte()
	}
	return l.readDataBlock(maxReplyLen)
}

func (l *Line) readStatusByte() ([]byte, error) {
	buf := make([]byte, 1)
	n, err := l.ch.Read(buf)
	if err != nil {
		l.closeLocked()
		return nil, fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	if n == 0 {
		return nil, ErrTimeout
	}
	l.log.WithField("reply", twowire.FormatWireByte(buf[0])).Debug("received status reply")
	return buf[:1], nil
}

func (l *Line) readDataBlock(maxLen int) ([]byte, error) {
	block := make([]byte, 0, maxLen)
	buf := make([]byte, 1)
	deadline := time.Now().Add(l.cfg.BlockTimeout)

	for len(block) < maxLen && time.Now().Before(deadline) {
		n, err := l.ch.Read(buf)
		if err != nil {
			l.closeLocked()
			return nil, fmt.Errorf("%w: %v", ErrDisconnected, err)
		}
		if n == 0 {
			continue
		}
		block = append(block, buf[0])
		if buf[0] == twowire.ETX {
			break
		}
	}

	if len(block) == 0 {
		return nil, ErrTimeout
	}
	l.log.WithFields(logrus.Fields{
		"bytes": len(block),
		"block": twowire.FormatBytes(block),
	}).Debug("received data block")
	return block, nil
}
