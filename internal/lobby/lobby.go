// Copyright 2025 JC-Lab
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-FEL

// Package lobby holds connections that are not currently paired in a match:
// it assigns identifiers, negotiates the pairing handshake, and spawns Game
// workers. A single dispatcher goroutine owns all mutable lobby state; every
// other goroutine (one reader per resident connection, the Acceptor, any
// running Game) talks to it over channels rather than sharing memory
// directly. This replaces both condition variables the original design used
// (`lobby_non_empty`, `game_handoff_ready`) with ordinary channel sends: an
// admission is just another event the dispatcher drains, and a handoff to
// Game is a synchronous removal performed by the dispatcher itself before
// the Game worker is ever started, so there is nothing for a second
// condition variable to signal (spec §9 Design Notes).
package lobby

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/flymesh/chessrelay/internal/connection"
	"github.com/flymesh/chessrelay/internal/metrics"
	"github.com/flymesh/chessrelay/internal/protocol"
)

// readPollInterval bounds how long a reader goroutine's blocking Read can
// hide a pending stop signal. It plays the role of the original's ~20µs
// select() timeout: short enough that handoff to a Game worker is
// effectively instantaneous, long enough not to spin the CPU.
const readPollInterval = 100 * time.Millisecond

const readBufSize = 4096

type readerHandle struct {
	stop chan struct{}
	done chan struct{}
}

type lobbyEvent struct {
	conn *connection.Connection
	data []byte
	err  error
}

type admitRequest struct {
	conn   *connection.Connection
	result chan bool
}

type outstandingRequest struct {
	peerID uint32
	timer  *time.Timer
}

type pairTimeoutEvent struct {
	requester uint32
	timer     *time.Timer
}

// Lobby is the single-dispatcher component described above.
type Lobby struct {
	membership  *Membership
	pairTimeout time.Duration
	logger      *zap.Logger
	metrics     *metrics.Metrics

	admitCh   chan *admitRequest
	eventCh   chan lobbyEvent
	timeoutCh chan pairTimeoutEvent
	returnCh  chan *connection.Connection

	outstanding map[uint32]*outstandingRequest
	readers     map[uint32]*readerHandle

	// startGame is invoked once two connections have been removed from the
	// Lobby for a successful pairing. It is injected by the caller (the
	// cmd/chessrelayd wiring) to avoid an import cycle: the game package
	// calls back into Lobby.Return at match end, so Lobby cannot import
	// game directly.
	startGame func(a, b *connection.Connection)
}

// New constructs a Lobby bounded at capacity. SetStartGame must be called
// before Run.
func New(capacity int, pairTimeout time.Duration, logger *zap.Logger, m *metrics.Metrics) *Lobby {
	return &Lobby{
		membership:  NewMembership(capacity),
		pairTimeout: pairTimeout,
		logger:      logger,
		metrics:     m,
		admitCh:     make(chan *admitRequest),
		eventCh:     make(chan lobbyEvent, 64),
		timeoutCh:   make(chan pairTimeoutEvent, 8),
		returnCh:    make(chan *connection.Connection),
		outstanding: make(map[uint32]*outstandingRequest),
		readers:     make(map[uint32]*readerHandle),
	}
}

// SetStartGame wires the callback used to hand a successful pairing to a
// new Game worker.
func (l *Lobby) SetStartGame(fn func(a, b *connection.Connection)) {
	l.startGame = fn
}

// Run is the dispatcher loop. It owns all lobby mutable state and must run
// in its own goroutine for the lifetime of the server.
func (l *Lobby) Run() {
	for {
		select {
		case req := <-l.admitCh:
			l.handleAdmit(req)
		case ev := <-l.eventCh:
			l.handleEvent(ev)
		case ev := <-l.timeoutCh:
			l.handlePairTimeout(ev)
		case c := <-l.returnCh:
			l.handleReturn(c)
		}
	}
}

// TryAdmit offers a freshly accepted connection to the Lobby. It blocks
// until the dispatcher has decided: true means c was assigned an identifier
// and is now resident; false means the Lobby was full, SERVER_FULL was
// already sent, and c has been closed.
func (l *Lobby) TryAdmit(c *connection.Connection) bool {
	req := &admitRequest{conn: c, result: make(chan bool, 1)}
	l.admitCh <- req
	return <-req.result
}

// Return hands a connection whose match just ended back to the Lobby. Its
// identifier is unchanged (spec §3: "stable until the connection leaves the
// lobby, including while in a game").
func (l *Lobby) Return(c *connection.Connection) {
	l.returnCh <- c
}

func (l *Lobby) handleAdmit(req *admitRequest) {
	if l.membership.Full() {
		l.sendBestEffort(req.conn, protocol.EncodeEmpty(protocol.TypeServerFull))
		_ = req.conn.Close()
		l.metrics.IncRejectedFull()
		req.result <- false
		return
	}
	req.conn.ID = l.membership.allocateID()
	l.membership.Insert(req.conn)
	l.startReader(req.conn)
	l.sendBestEffort(req.conn, protocol.EncodeU32(protocol.TypeNewID, req.conn.ID))
	l.metrics.SetLobbySize(l.membership.Len())
	l.logger.Info("admitted to lobby", zap.String("addr", req.conn.Addr), zap.Uint32("id", req.conn.ID))
	req.result <- true
}

func (l *Lobby) handleReturn(c *connection.Connection) {
	l.membership.InsertReturning(c)
	l.startReader(c)
	l.metrics.SetLobbySize(l.membership.Len())
	l.logger.Info("returned to lobby", zap.String("addr", c.Addr), zap.Uint32("id", c.ID))
}

func (l *Lobby) startReader(c *connection.Connection) {
	h := &readerHandle{stop: make(chan struct{}), done: make(chan struct{})}
	l.readers[c.ID] = h
	go l.readerLoop(c, h)
}

// stopReader signals c's reader goroutine and waits for it to exit before
// returning, so that by the time a connection is removed from the Lobby
// (for a pairing handoff or otherwise) nothing is still reading its socket.
func (l *Lobby) stopReader(id uint32) {
	h, ok := l.readers[id]
	if !ok {
		return
	}
	close(h.stop)
	<-h.done
	delete(l.readers, id)
}

func (l *Lobby) readerLoop(c *connection.Connection, h *readerHandle) {
	defer close(h.done)
	buf := make([]byte, readBufSize)
	for {
		select {
		case <-h.stop:
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
			case l.eventCh <- lobbyEvent{conn: c, err: err}:
			case <-h.stop:
			}
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		select {
		case l.eventCh <- lobbyEvent{conn: c, data: data}:
		case <-h.stop:
			return
		}
	}
}

func (l *Lobby) handleEvent(ev lobbyEvent) {
	// Drop events a reader queued before its connection was handed to a
	// Game: the Lobby no longer owns that socket or reassembler.
	if cur, ok := l.membership.Get(ev.conn.ID); !ok || cur != ev.conn {
		return
	}
	if ev.err != nil {
		l.removeSilently(ev.conn)
		return
	}
	if err := ev.conn.Reassembler.Feed(ev.data); err != nil {
		l.closeMalformed(ev.conn, err)
		return
	}
	for ev.conn.Reassembler.Ready() {
		frame, err := ev.conn.Reassembler.Take()
		if err != nil {
			l.closeMalformed(ev.conn, err)
			return
		}
		if !protocol.LegalInLobby(frame.Type) {
			l.closeMalformed(ev.conn, errors.Errorf("type %d illegal in lobby state", frame.Type))
			return
		}
		if l.dispatch(ev.conn, frame) {
			return
		}
	}
}

// dispatch applies one legal lobby frame and reports whether sender has
// left the Lobby as a result (a successful pairing handoff). The caller
// must stop consuming sender's buffered frames the instant this is true:
// ownership of its socket and reassembler has already passed to a Game
// worker (spec section 8 property 2).
func (l *Lobby) dispatch(sender *connection.Connection, frame protocol.Frame) bool {
	switch frame.Type {
	case protocol.TypePairRequest:
		l.handlePairRequest(sender, frame)
	case protocol.TypePairAccept:
		return l.handlePairAccept(sender, frame)
	case protocol.TypePairDecline:
		l.handlePairDecline(sender, frame)
	}
	return false
}

func (l *Lobby) handlePairRequest(sender *connection.Connection, frame protocol.Frame) {
	peerID := protocol.DecodeU32(frame)
	if peerID == sender.ID {
		l.sendBestEffort(sender, protocol.EncodeU32(protocol.TypeIDNotInLobby, peerID))
		return
	}
	peer, ok := l.membership.Get(peerID)
	if !ok {
		l.sendBestEffort(sender, protocol.EncodeU32(protocol.TypeIDNotInLobby, peerID))
		return
	}
	if _, busy := l.outstanding[sender.ID]; busy {
		l.sendBestEffort(sender, protocol.EncodeEmpty(protocol.TypePairRequestTooSoon))
		return
	}

	requesterID := sender.ID
	var timer *time.Timer
	timer = time.AfterFunc(l.pairTimeout, func() {
		l.timeoutCh <- pairTimeoutEvent{requester: requesterID, timer: timer}
	})
	l.outstanding[sender.ID] = &outstandingRequest{peerID: peerID, timer: timer}
	l.sendBestEffort(peer, protocol.EncodeU32(protocol.TypePairRequest, sender.ID))
}

func (l *Lobby) handlePairAccept(acceptor *connection.Connection, frame protocol.Frame) bool {
	requesterID := protocol.DecodeU32(frame)
	requester, ok := l.membership.Get(requesterID)
	if !ok {
		// Either never existed, or a racing PAIR_ACCEPT already removed it
		// from the Lobby (spec §4.3 tie-break).
		l.sendBestEffort(acceptor, protocol.EncodeU32(protocol.TypeIDNotInLobby, requesterID))
		return false
	}
	l.clearOutstanding(requesterID)

	l.stopReader(requester.ID)
	l.stopReader(acceptor.ID)
	l.membership.Remove(requester.ID)
	l.membership.Remove(acceptor.ID)
	l.metrics.SetLobbySize(l.membership.Len())

	l.logger.Info("pair accepted",
		zap.Uint32("requester", requester.ID), zap.Uint32("acceptor", acceptor.ID))
	l.startGame(requester, acceptor)
	return true
}

func (l *Lobby) handlePairDecline(decliner *connection.Connection, frame protocol.Frame) {
	requesterID := protocol.DecodeU32(frame)
	requester, ok := l.membership.Get(requesterID)
	if !ok {
		l.sendBestEffort(decliner, protocol.EncodeU32(protocol.TypeIDNotInLobby, requesterID))
		return
	}
	l.clearOutstanding(requesterID)
	l.sendBestEffort(requester, protocol.EncodeU32(protocol.TypePairDecline, decliner.ID))
}

func (l *Lobby) clearOutstanding(requesterID uint32) {
	if st, ok := l.outstanding[requesterID]; ok {
		st.timer.Stop()
		delete(l.outstanding, requesterID)
	}
}

func (l *Lobby) handlePairTimeout(ev pairTimeoutEvent) {
	st, ok := l.outstanding[ev.requester]
	if !ok || st.timer != ev.timer {
		return // already resolved or superseded
	}
	delete(l.outstanding, ev.requester)
	if c, ok := l.membership.Get(ev.requester); ok {
		l.sendBestEffort(c, protocol.EncodeEmpty(protocol.TypePairNoResponse))
		l.metrics.IncPairTimeout()
	}
}

// removeSilently drops a connection that closed or faulted while idle in
// the Lobby (spec §7 PeerClosed/TransientIO: "In Lobby: silently remove").
func (l *Lobby) removeSilently(c *connection.Connection) {
	l.stopReader(c.ID)
	l.clearOutstanding(c.ID)
	l.membership.Remove(c.ID)
	l.metrics.SetLobbySize(l.membership.Len())
	_ = c.Close()
}

func (l *Lobby) closeMalformed(c *connection.Connection, cause error) {
	l.logger.Warn("malformed frame from lobby connection",
		zap.String("addr", c.Addr), zap.Uint32("id", c.ID), zap.Error(cause))
	l.metrics.IncMalformedFrames()
	l.removeSilently(c)
}

// sendBestEffort writes a frame synchronously from the dispatcher goroutine.
// The dispatcher is the sole writer for every resident connection, so this
// never races the connection's reader goroutine (which only ever reads).
func (l *Lobby) sendBestEffort(c *connection.Connection, wire []byte) {
	_ = c.Conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := protocol.WriteFrame(c.Conn, wire); err != nil {
		l.logger.Warn("write failed", zap.String("addr", c.Addr), zap.Uint32("id", c.ID), zap.Error(err))
	}
}
