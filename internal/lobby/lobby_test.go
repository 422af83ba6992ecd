// Copyright 2025 JC-Lab
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-FEL

package lobby

import (
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/flymesh/chessrelay/internal/connection"
	"github.com/flymesh/chessrelay/internal/metrics"
	"github.com/flymesh/chessrelay/internal/protocol"
)

func newTestLobby(t *testing.T, pairTimeout time.Duration) *Lobby {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	lb := New(DefaultCapacity, pairTimeout, zap.NewNop(), m)
	lb.SetStartGame(func(a, b *connection.Connection) {
		// Games are out of scope for lobby tests; just drop both ends.
		_ = a.Close()
		_ = b.Close()
	})
	go lb.Run()
	return lb
}

// admitClient wires a net.Pipe pair, admits the server side on lb, and
// returns the client side for the test to drive.
func admitClient(t *testing.T, lb *Lobby) net.Conn {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	c := connection.New(serverSide)
	go lb.TryAdmit(c)
	return clientSide
}

func readFrame(t *testing.T, conn net.Conn) protocol.Frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	header := make([]byte, protocol.HeaderSize)
	if _, err := readFull(conn, header); err != nil {
		t.Fatalf("read header: %v", err)
	}
	size := int(header[1])
	payload := make([]byte, size-protocol.HeaderSize)
	if len(payload) > 0 {
		if _, err := readFull(conn, payload); err != nil {
			t.Fatalf("read payload: %v", err)
		}
	}
	return protocol.Frame{Type: protocol.Type(header[0]), Payload: payload}
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func writeFrame(t *testing.T, conn net.Conn, wire []byte) {
	t.Helper()
	if _, err := conn.Write(wire); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestAdmitAssignsDistinctIDs(t *testing.T) {
	lb := newTestLobby(t, 10*time.Second)

	a := admitClient(t, lb)
	b := admitClient(t, lb)

	fa := readFrame(t, a)
	fb := readFrame(t, b)

	if fa.Type != protocol.TypeNewID || fb.Type != protocol.TypeNewID {
		t.Fatalf("want NEW_ID frames, got %d and %d", fa.Type, fb.Type)
	}
	idA := protocol.DecodeU32(fa)
	idB := protocol.DecodeU32(fb)
	if idA == 0 || idB == 0 {
		t.Fatalf("identifiers must be non-zero in practice (got %d, %d)", idA, idB)
	}
	if idA == idB {
		t.Fatalf("identifiers must differ: both were %d", idA)
	}
}

func TestSelfPairRejected(t *testing.T) {
	lb := newTestLobby(t, 10*time.Second)
	a := admitClient(t, lb)
	fa := readFrame(t, a)
	idA := protocol.DecodeU32(fa)

	writeFrame(t, a, protocol.EncodeU32(protocol.TypePairRequest, idA))
	resp := readFrame(t, a)
	if resp.Type != protocol.TypeIDNotInLobby {
		t.Fatalf("want ID_NOT_IN_LOBBY, got %d", resp.Type)
	}
	if got := protocol.DecodeU32(resp); got != idA {
		t.Fatalf("payload = %d, want %d", got, idA)
	}
}

func TestUnknownPeerRejected(t *testing.T) {
	lb := newTestLobby(t, 10*time.Second)
	a := admitClient(t, lb)
	_ = readFrame(t, a) // NEW_ID

	const unknown = 0xFFFFFFFF
	writeFrame(t, a, protocol.EncodeU32(protocol.TypePairRequest, unknown))
	resp := readFrame(t, a)
	if resp.Type != protocol.TypeIDNotInLobby {
		t.Fatalf("want ID_NOT_IN_LOBBY, got %d", resp.Type)
	}
	if got := protocol.DecodeU32(resp); got != unknown {
		t.Fatalf("payload = %#x, want %#x", got, uint32(unknown))
	}
}

func TestPairRequestForwardedToPeer(t *testing.T) {
	lb := newTestLobby(t, 10*time.Second)
	a := admitClient(t, lb)
	b := admitClient(t, lb)
	idA := protocol.DecodeU32(readFrame(t, a))
	idB := protocol.DecodeU32(readFrame(t, b))

	writeFrame(t, a, protocol.EncodeU32(protocol.TypePairRequest, idB))
	fwd := readFrame(t, b)
	if fwd.Type != protocol.TypePairRequest {
		t.Fatalf("want PAIR_REQUEST forwarded, got %d", fwd.Type)
	}
	if got := protocol.DecodeU32(fwd); got != idA {
		t.Fatalf("forwarded payload = %d, want sender id %d", got, idA)
	}
}

func TestPairAcceptHandsOffToGame(t *testing.T) {
	var startedWith [2]uint32
	started := make(chan struct{})

	m := metrics.New(prometheus.NewRegistry())
	lb := New(DefaultCapacity, 10*time.Second, zap.NewNop(), m)
	lb.SetStartGame(func(a, b *connection.Connection) {
		startedWith[0], startedWith[1] = a.ID, b.ID
		_ = a.Close()
		_ = b.Close()
		close(started)
	})
	go lb.Run()

	a := admitClient(t, lb)
	b := admitClient(t, lb)
	idA := protocol.DecodeU32(readFrame(t, a))
	idB := protocol.DecodeU32(readFrame(t, b))

	writeFrame(t, a, protocol.EncodeU32(protocol.TypePairRequest, idB))
	fwd := readFrame(t, b)
	if fwd.Type != protocol.TypePairRequest {
		t.Fatalf("want PAIR_REQUEST, got %d", fwd.Type)
	}

	writeFrame(t, b, protocol.EncodeU32(protocol.TypePairAccept, idA))

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("startGame callback never fired")
	}
	if startedWith[0] != idA || startedWith[1] != idB {
		t.Fatalf("startGame got (%d, %d), want (%d, %d)", startedWith[0], startedWith[1], idA, idB)
	}
}

func TestRateLimitAndTimeout(t *testing.T) {
	lb := newTestLobby(t, 60*time.Millisecond)
	a := admitClient(t, lb)
	b := admitClient(t, lb)
	_ = protocol.DecodeU32(readFrame(t, a))
	idB := protocol.DecodeU32(readFrame(t, b))

	writeFrame(t, a, protocol.EncodeU32(protocol.TypePairRequest, idB))
	_ = readFrame(t, b) // forwarded PAIR_REQUEST to b, consumed so it doesn't block b's pipe

	writeFrame(t, a, protocol.EncodeU32(protocol.TypePairRequest, idB))
	resp := readFrame(t, a)
	if resp.Type != protocol.TypePairRequestTooSoon {
		t.Fatalf("want PAIR_REQUEST_TOO_SOON, got %d", resp.Type)
	}

	resp = readFrame(t, a)
	if resp.Type != protocol.TypePairNoResponse {
		t.Fatalf("want PAIR_NORESPONSE after timeout, got %d", resp.Type)
	}
}
