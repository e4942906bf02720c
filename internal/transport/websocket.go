// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Fuelink

package transport

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// ErrChannelClosed is returned when reading from a closed bridge channel.
var ErrChannelClosed = fmt.Errorf("websocket channel closed")

// wsChannel carries raw line bytes over a WebSocket serial bridge. Binary
// messages hold the bytes; a pump goroutine feeds them to Read so that read
// timeouts do not poison the underlying connection.
type wsChannel struct {
	conn      *websocket.Conn
	incoming  chan []byte
	buf       []byte
	bufOffset int
	timeout   time.Duration
	readErr   error
}

func newWSChannel(conn *websocket.Conn) *wsChannel {
	c := &wsChannel{
		conn:     conn,
		incoming: make(chan []byte, 16),
		timeout:  time.Second,
	}
	go c.pump()
	return c
}

func (c *wsChannel) pump() {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.readErr = err
			close(c.incoming)
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		c.incoming <- data
	}
}

// Read returns buffered bridge bytes, or (0, nil) if nothing arrives within
// the read timeout — matching local serial port semantics.
func (c *wsChannel) Read(p []byte) (int, error) {
	if c.bufOffset < len(c.buf) {
		n := copy(p, c.buf[c.bufOffset:])
		c.bufOffset += n
		return n, nil
	}

	select {
	case data, ok := <-c.incoming:
		if !ok {
			if c.readErr != nil {
				return 0, c.readErr
			}
			return 0, ErrChannelClosed
		}
		c.buf = data
		c.bufOffset = 0
		n := copy(p, c.buf)
		c.bufOffset = n
		return n, nil
	case <-time.After(c.timeout):
		return 0, nil
	}
}

func (c *wsChannel) Write(p []byte) (int, error) {
	if err := c.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsChannel) Close() error {
	return c.conn.Close()
}

// Drain drops everything buffered locally and anything already queued by the
// bridge.
func (c *wsChannel) Drain() error {
	c.buf = nil
	c.bufOffset = 0
	for {
		select {
		case _, ok := <-c.incoming:
			if !ok {
				return nil
			}
		default:
			return nil
		}
	}
}

func (c *wsChannel) SetReadTimeout(d time.Duration) error {
	c.timeout = d
	return nil
}

// OpenWebSocket dials a serial bridge endpoint with optional HTTP Basic auth.
func OpenWebSocket(wsURL, username, password string, skipSSLVerify bool) (Channel, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid bridge URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("bridge connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("bridge connection failed: %w", err)
	}

	return newWSChannel(conn), nil
}

// WebSocketOpener returns an Opener treating port identifiers as bridge URLs.
func WebSocketOpener(username, password string, skipSSLVerify bool) Opener {
	return func(port string) (Channel, error) {
		return OpenWebSocket(port, username, password, skipSSLVerify)
	}
}

// IsBridgeURL reports whether a port identifier names a WebSocket serial
// bridge rather than a local device.
func IsBridgeURL(port string) bool {
	return strings.HasPrefix(port, "ws://") || strings.HasPrefix(port, "wss://")
}
