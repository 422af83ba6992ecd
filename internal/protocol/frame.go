// Copyright 2025 JC-Lab
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-FEL

// Package protocol defines the wire frame format used between the chess
// relay server and its clients: a 2-byte header (type, total_size) followed
// by a type-specific payload, all multi-byte fields big-endian.
package protocol

// Type is the one-byte frame-type discriminator carried in every frame's
// header.
type Type uint8

const (
	TypeMove                     Type = 1
	TypeResign                   Type = 2
	TypeDrawOffer                Type = 3
	TypeDrawAccept                Type = 4
	TypeDrawDecline               Type = 5
	TypeRematchRequest            Type = 6
	TypeRematchAccept             Type = 7
	TypePairingComplete           Type = 8
	TypePairRequest               Type = 9
	TypePairAccept                Type = 10
	TypePairDecline               Type = 11
	TypePairNoResponse            Type = 12
	TypeServerFull                Type = 13
	TypeIDNotInLobby              Type = 14
	TypeUnpair                    Type = 15
	TypeOpponentClosedConnection  Type = 16
	TypeRematchDecline            Type = 17
	TypePairRequestTooSoon        Type = 18
	TypeNewID                     Type = 19
)

// HeaderSize is the number of bytes in every frame's header: {type, total_size}.
const HeaderSize = 2

// sizes is the authoritative type -> total_size table from spec §4.1.
// total_size counts the header itself.
var sizes = map[Type]uint8{
	TypeMove:                    10,
	TypeResign:                  2,
	TypeDrawOffer:               2,
	TypeDrawAccept:              2,
	TypeDrawDecline:             2,
	TypeRematchRequest:          2,
	TypeRematchAccept:           2,
	TypePairingComplete:         3,
	TypePairRequest:             6,
	TypePairAccept:              6,
	TypePairDecline:             6,
	TypePairNoResponse:          2,
	TypeServerFull:              2,
	TypeIDNotInLobby:            6,
	TypeUnpair:                  2,
	TypeOpponentClosedConnection: 2,
	TypeRematchDecline:          2,
	TypePairRequestTooSoon:      2,
	TypeNewID:                   6,
}

// MaxFrameSize is the largest total_size in the table (MOVE, 10 bytes).
// Used to size reassembly buffers per spec §3/§4.1.
const MaxFrameSize = 10

// CanonicalSize returns the required total_size for typ and whether typ is
// a recognized frame type at all.
func CanonicalSize(typ Type) (size uint8, known bool) {
	size, known = sizes[typ]
	return
}

// Side is the chess color assigned to a player for one match.
type Side uint8

const (
	SideInvalid Side = 0
	SideWhite   Side = 1
	SideBlack   Side = 2
)

// lobbyLegalTypes are the frame types a connection in the Lobby state may
// legally send (spec §4.3).
var lobbyLegalTypes = map[Type]bool{
	TypePairRequest: true,
	TypePairAccept:  true,
	TypePairDecline: true,
}

// gameLegalTypes are the frame types a connection in the Game state may
// legally send (spec §4.4).
var gameLegalTypes = map[Type]bool{
	TypeMove:            true,
	TypeResign:          true,
	TypeDrawOffer:       true,
	TypeDrawAccept:      true,
	TypeDrawDecline:     true,
	TypeRematchRequest:  true,
	TypeRematchAccept:   true,
	TypeRematchDecline:  true,
	TypeUnpair:          true,
}

// LegalInLobby reports whether typ may be dispatched while its sender is in
// the Lobby state.
func LegalInLobby(typ Type) bool { return lobbyLegalTypes[typ] }

// LegalInGame reports whether typ may be dispatched while its sender is in
// the Game state.
func LegalInGame(typ Type) bool { return gameLegalTypes[typ] }
