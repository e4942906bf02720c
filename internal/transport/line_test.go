// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Fuelink

package transport

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fuelink/forecourt/pkg/twowire"
)

// scriptChannel is a scripted in-memory Channel. Replies are produced from
// the last written command by the respond func; every operation is appended
// to the shared op log.
type scriptChannel struct {
	mu      sync.Mutex
	ops     []string
	lastCmd byte
	pending []byte
	respond func(cmd byte) []byte
	readErr error
	closed  bool
}

func (c *scriptChannel) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastCmd = p[len(p)-1]
	if c.respond != nil {
		c.pending = append([]byte(nil), c.respond(c.lastCmd)...)
	}
	c.ops = append(c.ops, fmt.Sprintf("W:%02X", c.lastCmd))
	return len(p), nil
}

func (c *scriptChannel) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return 0, c.readErr
	}
	if len(c.pending) == 0 {
		c.ops = append(c.ops, "R:none")
		return 0, nil
	}
	n := copy(p, c.pending[:1])
	c.ops = append(c.ops, fmt.Sprintf("R:%02X", c.pending[0]))
	c.pending = c.pending[1:]
	return n, nil
}

func (c *scriptChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *scriptChannel) Drain() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = nil
	return nil
}

func (c *scriptChannel) SetReadTimeout(time.Duration) error { return nil }

func (c *scriptChannel) log() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ops...)
}

func fastConfig() LineConfig {
	return LineConfig{
		ResponseWindow: time.Millisecond,
		BlockTimeout:   50 * time.Millisecond,
	}
}

func TestLineOpenIdempotent(t *testing.T) {
	opens := 0
	line := NewLine("SIM1", func(string) (Channel, error) {
		opens++
		return &scriptChannel{}, nil
	}, fastConfig())

	for i := 0; i < 3; i++ {
		if err := line.Open(); err != nil {
			t.Fatalf("Open #%d error: %v", i+1, err)
		}
	}
	if opens != 1 {
		t.Errorf("opener called %d times, want 1", opens)
	}
	if !line.IsOpen() {
		t.Error("line not marked open")
	}
}

func TestLineCloseWhenNotOpen(t *testing.T) {
	line := NewLine("SIM1", func(string) (Channel, error) {
		return &scriptChannel{}, nil
	}, fastConfig())
	if err := line.Close(); err != nil {
		t.Errorf("Close on a closed line error: %v", err)
	}
}

func TestExchangeStatusReply(t *testing.T) {
	ch := &scriptChannel{respond: func(cmd byte) []byte {
		// Pump answers a status poll with idle + its own address nibble.
		return []byte{0x60 | cmd&0x0F}
	}}
	line := NewLine("SIM1", func(string) (Channel, error) { return ch, nil }, fastConfig())

	reply, err := line.Exchange([]byte{0x01}, true, 1)
	if err != nil {
		t.Fatalf("Exchange error: %v", err)
	}
	if len(reply) != 1 || reply[0] != 0x61 {
		t.Errorf("reply = % X, want 61", reply)
	}
}

func TestExchangeFireAndForget(t *testing.T) {
	ch := &scriptChannel{respond: func(byte) []byte { return []byte{0xAA} }}
	line := NewLine("SIM1", func(string) (Channel, error) { return ch, nil }, fastConfig())

	reply, err := line.Exchange([]byte{0x11}, false, 0)
	if err != nil {
		t.Fatalf("Exchange error: %v", err)
	}
	if reply != nil {
		t.Errorf("fire-and-forget returned % X, want nil", reply)
	}
	for _, op := range ch.log() {
		if op[0] == 'R' {
			t.Errorf("fire-and-forget exchange read from the channel: %v", ch.log())
		}
	}
}

func TestExchangeTimeout(t *testing.T) {
	ch := &scriptChannel{} // never answers
	line := NewLine("SIM1", func(string) (Channel, error) { return ch, nil }, fastConfig())

	_, err := line.Exchange([]byte{0x01}, true, 1)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("error = %v, want ErrTimeout", err)
	}
	if !line.IsOpen() {
		t.Error("timeout should not close the line")
	}
}

func TestExchangeDisconnectMarksClosed(t *testing.T) {
	ch := &scriptChannel{readErr: errors.New("device unplugged")}
	opens := 0
	line := NewLine("SIM1", func(string) (Channel, error) {
		opens++
		if opens > 1 {
			// The redial finds a healthy device.
			ch.readErr = nil
			ch.respond = func(cmd byte) []byte { return []byte{0x60 | cmd&0x0F} }
		}
		return ch, nil
	}, fastConfig())

	_, err := line.Exchange([]byte{0x01}, true, 1)
	if !errors.Is(err, ErrDisconnected) {
		t.Fatalf("error = %v, want ErrDisconnected", err)
	}
	if line.IsOpen() {
		t.Error("line still marked open after channel failure")
	}

	// The next exchange redials and succeeds.
	reply, err := line.Exchange([]byte{0x01}, true, 1)
	if err != nil {
		t.Fatalf("Exchange after reopen error: %v", err)
	}
	if reply[0] != 0x61 {
		t.Errorf("reply = % X, want 61", reply)
	}
	if opens != 2 {
		t.Errorf("opener called %d times, want 2", opens)
	}
}

func TestExchangeDataBlockStopsAtETX(t *testing.T) {
	block := []byte{0xFF, 0xF6, 0xE2, 0xF0, 0x99, 0x99}
	ch := &scriptChannel{respond: func(byte) []byte { return block }}
	line := NewLine("SIM1", func(string) (Channel, error) { return ch, nil }, fastConfig())

	reply, err := line.Exchange([]byte{0x41}, true, twowire.MaxDataBlockLen)
	if err != nil {
		t.Fatalf("Exchange error: %v", err)
	}
	want := block[:4]
	if len(reply) != len(want) {
		t.Fatalf("reply = % X, want % X (stop at ETX)", reply, want)
	}
	for i := range want {
		if reply[i] != want[i] {
			t.Fatalf("reply = % X, want % X", reply, want)
		}
	}
}

func TestExchangeDataBlockHonorsMaxLen(t *testing.T) {
	long := make([]byte, 20)
	for i := range long {
		long[i] = 0xE1
	}
	ch := &scriptChannel{respond: func(byte) []byte { return long }}
	line := NewLine("SIM1", func(string) (Channel, error) { return ch, nil }, fastConfig())

	reply, err := line.Exchange([]byte{0x41}, true, 8)
	if err != nil {
		t.Fatalf("Exchange error: %v", err)
	}
	if len(reply) != 8 {
		t.Errorf("reply length = %d, want 8", len(reply))
	}
}

// Concurrent exchanges must never interleave their write/read pairs: the
// half-duplex bus allows one exchange in flight per line.
func TestExchangeSerialization(t *testing.T) {
	ch := &scriptChannel{respond: func(cmd byte) []byte {
		return []byte{0x60 | cmd&0x0F}
	}}
	line := NewLine("SIM1", func(string) (Channel, error) { return ch, nil }, fastConfig())

	const tasks = 8
	var wg sync.WaitGroup
	for i := 1; i <= tasks; i++ {
		wg.Add(1)
		go func(addr int) {
			defer wg.Done()
			cmd := byte(addr)
			reply, err := line.Exchange([]byte{cmd}, true, 1)
			if err != nil {
				t.Errorf("Exchange(%02X) error: %v", cmd, err)
				return
			}
			// Each exchange must read the reply to its own command.
			if reply[0] != 0x60|cmd&0x0F {
				t.Errorf("Exchange(%02X) got reply %02X from another exchange", cmd, reply[0])
			}
		}(i)
	}
	wg.Wait()

	ops := ch.log()
	for i := 0; i < len(ops); i += 2 {
		if i+1 >= len(ops) || ops[i][0] != 'W' || ops[i+1][0] != 'R' {
			t.Fatalf("interleaved exchange pairs on the line: %v", ops)
		}
	}
}
