// Copyright 2025 JC-Lab
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-FEL

// Package connection holds the per-socket record shared by the Lobby and
// Game components as a connection moves between them.
package connection

import (
	"net"

	"github.com/flymesh/chessrelay/internal/protocol"
)

// Connection is the record for one client participating in the Lobby stage.
// It is owned by exactly one component at a time: the Acceptor briefly on
// creation, then the Lobby, then (if paired) the Game for one match, then
// the Lobby again. No Connection is ever concurrently read by two
// components (spec §3 invariant).
type Connection struct {
	Conn net.Conn
	Addr string

	// ID is unique among currently resident Lobby members; assigned at
	// entry and stable until the connection leaves the Lobby, including
	// while it is on loan to a Game.
	ID uint32

	Reassembler *protocol.Reassembler
}

// New wraps an accepted net.Conn. The ID is assigned by the Lobby on
// admission, not here.
func New(conn net.Conn) *Connection {
	return &Connection{
		Conn:        conn,
		Addr:        conn.RemoteAddr().String(),
		Reassembler: protocol.NewReassembler(),
	}
}

// Close closes the underlying transport and returns its error, including the
// error from closing an already-closed transport.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

// IsTimeout reports whether err is a net.Error signaling a deadline expiry,
// as opposed to a genuine I/O failure or peer close.
func IsTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
