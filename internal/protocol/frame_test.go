// Copyright 2025 JC-Lab
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-FEL

package protocol

import "testing"

func TestCanonicalSize(t *testing.T) {
	cases := []struct {
		typ   Type
		size  uint8
		known bool
	}{
		{TypeMove, 10, true},
		{TypeResign, 2, true},
		{TypePairingComplete, 3, true},
		{TypePairRequest, 6, true},
		{TypeNewID, 6, true},
		{Type(0), 0, false},
		{Type(200), 0, false},
	}
	for _, c := range cases {
		size, known := CanonicalSize(c.typ)
		if known != c.known || size != c.size {
			t.Errorf("CanonicalSize(%d) = (%d, %v), want (%d, %v)", c.typ, size, known, c.size, c.known)
		}
	}
}

func TestLegalInLobby(t *testing.T) {
	legal := []Type{TypePairRequest, TypePairAccept, TypePairDecline}
	for _, typ := range legal {
		if !LegalInLobby(typ) {
			t.Errorf("LegalInLobby(%d) = false, want true", typ)
		}
	}
	illegal := []Type{TypeMove, TypeUnpair, TypeNewID, TypePairingComplete}
	for _, typ := range illegal {
		if LegalInLobby(typ) {
			t.Errorf("LegalInLobby(%d) = true, want false", typ)
		}
	}
}

func TestLegalInGame(t *testing.T) {
	legal := []Type{
		TypeMove, TypeResign, TypeDrawOffer, TypeDrawAccept, TypeDrawDecline,
		TypeRematchRequest, TypeRematchAccept, TypeRematchDecline, TypeUnpair,
	}
	for _, typ := range legal {
		if !LegalInGame(typ) {
			t.Errorf("LegalInGame(%d) = false, want true", typ)
		}
	}
	illegal := []Type{TypePairRequest, TypePairAccept, TypePairDecline, TypeNewID}
	for _, typ := range illegal {
		if LegalInGame(typ) {
			t.Errorf("LegalInGame(%d) = true, want false", typ)
		}
	}
}
