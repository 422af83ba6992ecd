// Copyright 2025 JC-Lab
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-FEL

package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		typ     Type
		payload []byte
	}{
		{"resign", TypeResign, nil},
		{"pair-request", TypePairRequest, []byte{0, 0, 0, 42}},
		{"pairing-complete", TypePairingComplete, []byte{byte(SideWhite)}},
		{"move", TypeMove, []byte{4, 1, 4, 3, 0, 0, 0, 0}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			wire := Encode(c.typ, c.payload)

			r := NewReassembler()
			if err := r.Feed(wire); err != nil {
				t.Fatalf("Feed: %v", err)
			}
			if !r.Ready() {
				t.Fatalf("Ready() = false after feeding a complete frame")
			}
			f, err := r.Take()
			if err != nil {
				t.Fatalf("Take: %v", err)
			}
			if f.Type != c.typ {
				t.Errorf("Type = %d, want %d", f.Type, c.typ)
			}
			if !bytes.Equal(f.Payload, c.payload) && !(len(f.Payload) == 0 && len(c.payload) == 0) {
				t.Errorf("Payload = %v, want %v", f.Payload, c.payload)
			}
		})
	}
}

func TestReassemblyArbitraryChunking(t *testing.T) {
	frames := [][]byte{
		Encode(TypePairRequest, []byte{0, 0, 0, 1}),
		Encode(TypeResign, nil),
		Encode(TypeMove, []byte{1, 2, 3, 4, 5, 6, 7, 8}),
	}
	var stream []byte
	for _, f := range frames {
		stream = append(stream, f...)
	}

	// Partition the 18-byte stream into six 3-byte chunks, so the first and
	// last frames arrive split across reads.
	const chunkSize = 3
	r := NewReassembler()
	var got []Frame
	for i := 0; i < len(stream); i += chunkSize {
		end := i + chunkSize
		if end > len(stream) {
			end = len(stream)
		}
		if err := r.Feed(stream[i:end]); err != nil {
			t.Fatalf("Feed: %v", err)
		}
		for r.Ready() {
			f, err := r.Take()
			if err != nil {
				t.Fatalf("Take: %v", err)
			}
			got = append(got, f)
		}
	}

	if len(got) != len(frames) {
		t.Fatalf("got %d frames, want %d", len(got), len(frames))
	}
	for i, f := range got {
		want, err := NewReassembler(), error(nil)
		_ = want
		if err := want.Feed(frames[i]); err != nil {
			t.Fatal(err)
		}
		wantFrame, err := want.Take()
		if err != nil {
			t.Fatal(err)
		}
		if f.Type != wantFrame.Type || !bytes.Equal(f.Payload, wantFrame.Payload) {
			t.Errorf("frame %d = %+v, want %+v", i, f, wantFrame)
		}
	}
}

func TestTakeMalformedUnknownType(t *testing.T) {
	r := NewReassembler()
	if err := r.Feed([]byte{99, 2}); err != nil {
		t.Fatal(err)
	}
	if !r.Ready() {
		t.Fatal("Ready() = false")
	}
	_, err := r.Take()
	if err == nil {
		t.Fatal("Take: want error for unknown type")
	}
	var mf *MalformedFrameError
	if !errors.As(err, &mf) {
		t.Fatalf("Take error = %v, want *MalformedFrameError", err)
	}
}

func TestTakeMalformedSizeMismatch(t *testing.T) {
	r := NewReassembler()
	// TypeResign's canonical size is 2, claim 6 instead.
	if err := r.Feed([]byte{byte(TypeResign), 6, 0, 0, 0, 0}); err != nil {
		t.Fatal(err)
	}
	if !r.Ready() {
		t.Fatal("Ready() = false")
	}
	if _, err := r.Take(); err == nil {
		t.Fatal("Take: want error for size mismatch")
	}
}

func TestFeedOverflow(t *testing.T) {
	r := NewReassembler()
	if err := r.Feed(make([]byte, bufferCapacity+1)); err != ErrOverflow {
		t.Fatalf("Feed: got %v, want ErrOverflow", err)
	}
}
