// Copyright 2025 JC-Lab
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-FEL

// Package metrics exposes the server's ambient Prometheus instrumentation.
// It never influences protocol behavior; every method here is a one-way
// observation hook called from the Lobby and Game dispatchers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/flymesh/chessrelay/internal/protocol"
)

// Metrics holds the process's Prometheus collectors.
type Metrics struct {
	lobbySize      prometheus.Gauge
	activeGames    prometheus.Gauge
	framesRelayed  *prometheus.CounterVec
	malformed      prometheus.Counter
	rejectedFull   prometheus.Counter
	pairTimeouts   prometheus.Counter
}

// New registers all collectors against reg and returns a Metrics handle.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		lobbySize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chessrelay_lobby_size",
			Help: "Current number of connections resident in the lobby.",
		}),
		activeGames: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chessrelay_active_games",
			Help: "Current number of in-progress matches.",
		}),
		framesRelayed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chessrelay_frames_relayed_total",
			Help: "Total in-game frames relayed, by frame type.",
		}, []string{"type"}),
		malformed: factory.NewCounter(prometheus.CounterOpts{
			Name: "chessrelay_malformed_frames_total",
			Help: "Total connections closed for a malformed or state-illegal frame.",
		}),
		rejectedFull: factory.NewCounter(prometheus.CounterOpts{
			Name: "chessrelay_connections_rejected_full_total",
			Help: "Total connections rejected with SERVER_FULL.",
		}),
		pairTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "chessrelay_pair_timeouts_total",
			Help: "Total PAIR_NORESPONSE timeouts fired.",
		}),
	}
}

func (m *Metrics) SetLobbySize(n int)  { m.lobbySize.Set(float64(n)) }
func (m *Metrics) IncActiveGames()     { m.activeGames.Inc() }
func (m *Metrics) DecActiveGames()     { m.activeGames.Dec() }
func (m *Metrics) IncRejectedFull()    { m.rejectedFull.Inc() }
func (m *Metrics) IncPairTimeout()     { m.pairTimeouts.Inc() }
func (m *Metrics) IncMalformedFrames() { m.malformed.Inc() }

// IncFramesRelayed records one relayed frame of typ.
func (m *Metrics) IncFramesRelayed(typ protocol.Type) {
	m.framesRelayed.WithLabelValues(frameTypeLabel(typ)).Inc()
}

func frameTypeLabel(typ protocol.Type) string {
	switch typ {
	case protocol.TypeMove:
		return "move"
	case protocol.TypeResign:
		return "resign"
	case protocol.TypeDrawOffer:
		return "draw_offer"
	case protocol.TypeDrawAccept:
		return "draw_accept"
	case protocol.TypeDrawDecline:
		return "draw_decline"
	case protocol.TypeRematchRequest:
		return "rematch_request"
	case protocol.TypeRematchAccept:
		return "rematch_accept"
	case protocol.TypeRematchDecline:
		return "rematch_decline"
	case protocol.TypeUnpair:
		return "unpair"
	default:
		return "other"
	}
}
