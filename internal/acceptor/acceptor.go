// Copyright 2025 JC-Lab
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-FEL

// Package acceptor owns the chess relay's listening socket. It never parses
// protocol frames; it only produces accepted connections and hands them to
// the Lobby (spec §4.2).
package acceptor

import (
	"context"
	"net"

	"go.uber.org/zap"

	"github.com/flymesh/chessrelay/internal/connection"
)

// Admitter is satisfied by Lobby.TryAdmit.
type Admitter interface {
	TryAdmit(c *connection.Connection) bool
}

// Acceptor listens on a fixed TCP address and feeds every accepted
// connection to an Admitter.
type Acceptor struct {
	listenAddr string
	lobby      Admitter
	logger     *zap.Logger
}

// New constructs an Acceptor. listenAddr is the chess relay's TCP listen
// address, e.g. ":42069" (spec §6).
func New(listenAddr string, lobby Admitter, logger *zap.Logger) *Acceptor {
	return &Acceptor{listenAddr: listenAddr, lobby: lobby, logger: logger}
}

// Run listens and accepts until ctx is canceled or the listener fails.
func (a *Acceptor) Run(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", a.listenAddr)
	if err != nil {
		return err
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	a.logger.Info("acceptor listening", zap.String("addr", ln.Addr().String()))
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			a.logger.Error("accept failed", zap.Error(err))
			continue
		}
		a.logger.Info("accepted connection", zap.String("addr", conn.RemoteAddr().String()))
		go a.admit(conn)
	}
}

func (a *Acceptor) admit(conn net.Conn) {
	c := connection.New(conn)
	a.lobby.TryAdmit(c)
}
