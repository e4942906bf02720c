// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Fuelink

// Package session binds a transport line and a pump address to the protocol
// semantics: status polling, transaction requests, and the fire-and-forget
// control commands with their settle-then-verify confirmation.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fuelink/forecourt/internal/transport"
	"github.com/fuelink/forecourt/pkg/twowire"
)

// settleDelay is the pause between a fire-and-forget command and the status
// poll that verifies it took effect. The pumps answer nothing to Authorize
// and Stop; polling afterwards is the only confirmation there is.
const settleDelay = 100 * time.Millisecond

// StatusResult is the outcome of one status poll. Transport and decode
// failures are folded into State (Offline for silence, Error for garbage);
// a poll never fails outright.
type StatusResult struct {
	State        twowire.DeviceState `json:"state"`
	LastUpdated  time.Time           `json:"last_updated"`
	ErrorMessage string              `json:"error_message,omitempty"`
	RawCode      string              `json:"raw_status_code,omitempty"`
	WireFormat   string              `json:"wire_format,omitempty"`
}

// Session is an ephemeral view of one pump on one line.
type Session struct {
	line    *transport.Line
	address int
	log     *logrus.Entry
}

// New creates a session for a pump address on a line. The address is assumed
// valid (1-16); the fleet layer validates on registration.
func New(line *transport.Line, address int) *Session {
	return &Session{
		line:    line,
		address: address,
		log: logrus.WithFields(logrus.Fields{
			"port":    line.Port(),
			"address": address,
		}),
	}
}

// Address returns the pump address this session talks to.
func (s *Session) Address() int {
	return s.address
}

// PollStatus sends a status poll and interprets the single-byte reply.
func (s *Session) PollStatus() StatusResult {
	now := time.Now()

	cmd, err := twowire.EncodeCommand(twowire.CmdStatus, s.address)
	if err != nil {
		return StatusResult{State: twowire.StateError, LastUpdated: now, ErrorMessage: err.Error()}
	}

	reply, err := s.line.Exchange([]byte{cmd}, true, 1)
	if err != nil {
		if errors.Is(err, transport.ErrTimeout) {
			s.log.Debug("no response to status poll")
			return StatusResult{State: twowire.StateOffline, LastUpdated: now, ErrorMessage: "no response from pump"}
		}
		s.log.WithError(err).Warn("status poll failed")
		return StatusResult{State: twowire.StateOffline, LastUpdated: now, ErrorMessage: err.Error()}
	}

	addr, code, err := twowire.DecodeStatusReply(reply)
	if err != nil {
		s.log.WithError(err).Warn("invalid status reply")
		return StatusResult{State: twowire.StateError, LastUpdated: now, ErrorMessage: err.Error()}
	}
	if addr != s.address {
		// Cascaded pumps share the line; a reply from the wrong address is
		// suspicious but not fatal.
		s.log.WithField("reply_address", addr).Warn("status reply address mismatch")
	}

	state := twowire.StatusToState(code)
	res := StatusResult{
		State:       state,
		LastUpdated: now,
		RawCode:     fmt.Sprintf("0x%X", byte(code)),
		WireFormat:  twowire.FormatWireByte(reply[0]),
	}
	if state == twowire.StateError {
		res.ErrorMessage = fmt.Sprintf("data error (code 0x%X)", byte(code))
	}
	s.log.WithField("state", state).Debug("status poll complete")
	return res
}

// RequestTransaction asks for the most recent transaction data block.
// Any I/O or decode failure yields nil rather than an error; the most recent
// poll is all this protocol offers, there is nothing to retry against.
func (s *Session) RequestTransaction() *twowire.TransactionRecord {
	return s.requestDataBlock(twowire.CmdTransaction)
}

// RequestTotals asks for the pump totals block. Totals frames share the
// transaction frame grammar.
func (s *Session) RequestTotals() *twowire.TransactionRecord {
	return s.requestDataBlock(twowire.CmdTotals)
}

func (s *Session) requestDataBlock(cmd twowire.Command) *twowire.TransactionRecord {
	wire, err := twowire.EncodeCommand(cmd, s.address)
	if err != nil {
		s.log.WithError(err).Error("cannot encode data request")
		return nil
	}

	block, err := s.line.Exchange([]byte{wire}, true, twowire.MaxDataBlockLen)
	if err != nil {
		s.log.WithError(err).WithField("command", cmd.String()).Warn("no data block response")
		return nil
	}

	rec, err := twowire.DecodeTransactionFrame(block)
	if err != nil {
		s.log.WithError(err).WithField("block", twowire.FormatBytes(block)).Warn("undecodable data block")
		return nil
	}
	if rec.Partial() {
		s.log.WithField("unknown_dcws", twowire.FormatBytes(rec.UnknownDCWs)).Warn("data block partially decoded")
	}
	return rec
}

// Authorize sends the authorize command and verifies it via a follow-up
// poll. True means the pump reached Authorized or Dispensing.
func (s *Session) Authorize() bool {
	if !s.fireAndForget(twowire.CmdAuthorize) {
		return false
	}
	time.Sleep(settleDelay)
	state := s.PollStatus().State
	ok := state == twowire.StateAuthorized || state == twowire.StateDispensing
	if ok {
		s.log.WithField("state", state).Info("pump authorized")
	} else {
		s.log.WithField("state", state).Warn("authorize not confirmed")
	}
	return ok
}

// Stop sends the stop command and verifies the pump settled into Stopped or
// Idle.
func (s *Session) Stop() bool {
	if !s.fireAndForget(twowire.CmdStop) {
		return false
	}
	time.Sleep(settleDelay)
	state := s.PollStatus().State
	ok := state == twowire.StateStopped || state == twowire.StateIdle
	if ok {
		s.log.WithField("state", state).Info("pump stopped")
	} else {
		s.log.WithField("state", state).Warn("stop not confirmed")
	}
	return ok
}

func (s *Session) fireAndForget(cmd twowire.Command) bool {
	wire, err := twowire.EncodeCommand(cmd, s.address)
	if err != nil {
		s.log.WithError(err).Error("cannot encode command")
		return false
	}
	if _, err := s.line.Exchange([]byte{wire}, false, 0); err != nil {
		s.log.WithError(err).WithField("command", cmd.String()).Warn("command write failed")
		return false
	}
	return true
}

// AllStop broadcasts the all-stop word on the session's line. Every pump on
// the line acts on it; nothing replies.
func AllStop(line *transport.Line) error {
	_, err := line.Exchange([]byte{twowire.EncodeAllStop()}, false, 0)
	return err
}
