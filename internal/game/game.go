// Copyright 2025 JC-Lab
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-FEL

// Package game runs one paired match: it relays gameplay frames between two
// Players and returns them to the Lobby on termination. One Session owns
// one match for its lifetime; a fresh goroutine is spawned per Session by
// Start, mirroring the Lobby's single-dispatcher-per-worker-group shape at
// game scope (two reader goroutines feeding one dispatcher goroutine).
package game

import (
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/flymesh/chessrelay/internal/connection"
	"github.com/flymesh/chessrelay/internal/metrics"
	"github.com/flymesh/chessrelay/internal/protocol"
)

func errFrameType(typ protocol.Type) error {
	return errors.Errorf("type %d illegal in game state", typ)
}

const readPollInterval = 100 * time.Millisecond
const readBufSize = 4096
const writeDeadline = 5 * time.Second

// Player is the per-game view of a Connection: its transport plus the Side
// assigned for this match (spec §3).
type Player struct {
	Conn *connection.Connection
	Side protocol.Side
}

// ReturnFunc hands a Player's underlying Connection back to the Lobby at
// match end, preserving its identifier.
type ReturnFunc func(*connection.Connection)

type gameEvent struct {
	from *connection.Connection
	data []byte
	err  error
}

// Session is the transient state of one match.
type Session struct {
	a, b     Player
	returnFn ReturnFunc
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// Start assigns sides and spawns the match goroutine, which sends
// PAIRING_COMPLETE to both connections and — if that startup succeeds —
// relays the match to completion. Start itself does no I/O. a and b have
// already been removed from the Lobby by the caller.
func Start(a, b *connection.Connection, returnFn ReturnFunc, logger *zap.Logger, m *metrics.Metrics) {
	matchID := uuid.New()
	logger = logger.With(zap.String("match", matchID.String()),
		zap.Uint32("id_a", a.ID), zap.Uint32("id_b", b.ID))

	sideA, sideB := protocol.SideWhite, protocol.SideBlack
	if coinFlip() {
		sideA, sideB = protocol.SideBlack, protocol.SideWhite
	}

	s := &Session{
		a:        Player{Conn: a, Side: sideA},
		b:        Player{Conn: b, Side: sideB},
		returnFn: returnFn,
		logger:   logger,
		metrics:  m,
	}
	go s.run()
}

func (s *Session) run() {
	if !s.sendPairingComplete() {
		return
	}
	s.metrics.IncActiveGames()
	defer s.metrics.DecActiveGames()

	s.logger.Info("match started")
	s.relay()
}

// sendPairingComplete sends PAIRING_COMPLETE to player one then player two.
// A failure on the first send returns the second player alone, without
// attempting to send to them at all; a failure on the second returns the
// first (original_source/gameManager.c sendPairingCompleteMsg).
func (s *Session) sendPairingComplete() bool {
	if err := s.write(s.a.Conn, protocol.EncodeSide(s.a.Side)); err != nil {
		s.logger.Warn("pairing-complete send failed", zap.String("addr", s.a.Conn.Addr), zap.Error(err))
		_ = s.a.Conn.Close()
		s.returnFn(s.b.Conn)
		return false
	}
	if err := s.write(s.b.Conn, protocol.EncodeSide(s.b.Side)); err != nil {
		s.logger.Warn("pairing-complete send failed", zap.String("addr", s.b.Conn.Addr), zap.Error(err))
		_ = s.b.Conn.Close()
		s.returnFn(s.a.Conn)
		return false
	}
	return true
}

func (s *Session) write(c *connection.Connection, wire []byte) error {
	_ = c.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return protocol.WriteFrame(c.Conn, wire)
}

func (s *Session) sendBestEffort(c *connection.Connection, wire []byte) {
	if err := s.write(c, wire); err != nil {
		s.logger.Warn("write failed", zap.String("addr", c.Addr), zap.Error(err))
	}
}

// writeOrTerminate writes wire to target and reports whether the match
// should continue. A write failure closes target, returns the opposite
// player to the Lobby, and reports false without sending target any
// notification — the write target is the one that just failed, so there is
// nothing to tell it (original_source/gameManager.c forwardMessage:
// closesocket(to->sock); quitGame(NULL, from)).
func (s *Session) writeOrTerminate(target *connection.Connection, wire []byte) bool {
	if err := s.write(target, wire); err != nil {
		survivor := s.peerOf(target)
		s.logger.Warn("write failed, ending match",
			zap.String("addr", target.Addr), zap.Error(err))
		_ = target.Close()
		s.returnFn(survivor)
		return false
	}
	return true
}

func (s *Session) peerOf(c *connection.Connection) *connection.Connection {
	if c == s.a.Conn {
		return s.b.Conn
	}
	return s.a.Conn
}

func (s *Session) relay() {
	eventCh := make(chan gameEvent, 16)
	stopA, doneA := make(chan struct{}), make(chan struct{})
	stopB, doneB := make(chan struct{}), make(chan struct{})

	// Returns to the Lobby are held until both readers have exited, so the
	// Lobby never starts reading a socket this match is still reading.
	returnFn := s.returnFn
	var returning []*connection.Connection
	s.returnFn = func(c *connection.Connection) { returning = append(returning, c) }

	go readerLoop(s.a.Conn, eventCh, stopA, doneA)
	go readerLoop(s.b.Conn, eventCh, stopB, doneB)
	defer func() {
		close(stopA)
		close(stopB)
		<-doneA
		<-doneB
		for _, c := range returning {
			returnFn(c)
		}
	}()

	for ev := range eventCh {
		if ev.err != nil {
			s.terminatePeerGone(ev.from, ev.err)
			return
		}
		if err := ev.from.Reassembler.Feed(ev.data); err != nil {
			s.terminateViolation(ev.from, err)
			return
		}
		done := false
		for ev.from.Reassembler.Ready() {
			frame, err := ev.from.Reassembler.Take()
			if err != nil {
				s.terminateViolation(ev.from, err)
				return
			}
			if !protocol.LegalInGame(frame.Type) {
				s.terminateViolation(ev.from, errFrameType(frame.Type))
				return
			}
			if s.dispatchFrame(ev.from, frame) {
				done = true
				break
			}
		}
		if done {
			return
		}
	}
}

// dispatchFrame applies one legal in-game frame and reports whether the
// match has now ended (spec §4.4 relay rules).
func (s *Session) dispatchFrame(sender *connection.Connection, frame protocol.Frame) bool {
	peer := s.peerOf(sender)
	wire := protocol.Encode(frame.Type, frame.Payload)
	s.metrics.IncFramesRelayed(frame.Type)

	switch frame.Type {
	case protocol.TypeUnpair:
		if !s.writeOrTerminate(sender, wire) {
			return true
		}
		if !s.writeOrTerminate(peer, wire) {
			return true
		}
		s.logger.Info("match ended: unpair")
		s.returnFn(sender)
		s.returnFn(peer)
		return true
	case protocol.TypeRematchDecline:
		if !s.writeOrTerminate(peer, wire) {
			return true
		}
		s.logger.Info("match ended: rematch declined")
		s.returnFn(sender)
		s.returnFn(peer)
		return true
	default:
		return !s.writeOrTerminate(peer, wire)
	}
}

func (s *Session) terminatePeerGone(offender *connection.Connection, cause error) {
	peer := s.peerOf(offender)
	if cause == io.EOF {
		s.logger.Info("peer closed connection", zap.String("addr", offender.Addr))
	} else {
		s.logger.Warn("connection I/O error", zap.String("addr", offender.Addr), zap.Error(cause))
	}
	s.sendBestEffort(peer, protocol.EncodeEmpty(protocol.TypeOpponentClosedConnection))
	_ = offender.Close()
	s.returnFn(peer)
}

func (s *Session) terminateViolation(offender *connection.Connection, cause error) {
	peer := s.peerOf(offender)
	s.logger.Warn("protocol violation in game", zap.String("addr", offender.Addr), zap.Error(cause))
	s.metrics.IncMalformedFrames()
	s.sendBestEffort(peer, protocol.EncodeEmpty(protocol.TypeOpponentClosedConnection))
	_ = offender.Close()
	s.returnFn(peer)
}

func readerLoop(c *connection.Connection, eventCh chan<- gameEvent, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	buf := make([]byte, readBufSize)
	for {
		select {
		case <-stop:
			return
		default:
		}
		_ = c.Conn.SetReadDeadline(time.Now().Add(readPollInterval))
		n, err := c.Conn.Read(buf)
		if err != nil {
			if connection.IsTimeout(err) {
				continue
			}
			select {
			case eventCh <- gameEvent{from: c, err: err}:
			case <-stop:
			}
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		select {
		case eventCh <- gameEvent{from: c, data: data}:
		case <-stop:
			return
		}
	}
}
