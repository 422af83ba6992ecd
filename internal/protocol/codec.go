// Copyright 2025 JC-Lab
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-FEL

package protocol

import (
	"encoding/binary"
	"io"
	"time"

	"github.com/pkg/errors"
)

// Frame is one fully reassembled application-level message: a type and its
// payload bytes (total_size minus the 2-byte header).
type Frame struct {
	Type    Type
	Payload []byte
}

var (
	// ErrMalformedFrame is returned by Take when the buffered header's
	// total_size disagrees with the canonical size for its type, or the
	// type is not in the master table at all. The caller must close the
	// offending connection (spec §4.1, §7).
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrOverflow is returned by Feed when appending would exceed the
	// reassembly buffer's capacity. Also a MalformedFrame-class error.
	ErrOverflow = errors.New("reassembly buffer overflow")
)

// MalformedFrameError carries the offending type/size for logging.
type MalformedFrameError struct {
	Type Type
	Size int
}

func (e *MalformedFrameError) Error() string {
	return errors.Wrapf(ErrMalformedFrame, "type=%d size=%d", e.Type, e.Size).Error()
}

func (e *MalformedFrameError) Unwrap() error { return ErrMalformedFrame }

// bufferCapacity is the spec-mandated minimum: at least 128 bytes plus the
// largest frame (spec §3).
const bufferCapacity = 128 + MaxFrameSize

// Reassembler accumulates bytes delivered from successive short reads of a
// single connection and yields complete frames in arrival order. It is not
// safe for concurrent use: exactly one goroutine may own a Reassembler at a
// time, matching the ownership-exclusivity invariant of the Connection it
// belongs to.
type Reassembler struct {
	buf []byte
}

// NewReassembler returns an empty Reassembler sized per spec §3.
func NewReassembler() *Reassembler {
	return &Reassembler{buf: make([]byte, 0, bufferCapacity)}
}

// Feed appends newly-read bytes to the reassembly buffer. It returns
// ErrOverflow if doing so would exceed the buffer's fixed capacity, which
// the caller must treat as a MalformedFrame-class protocol error.
func (r *Reassembler) Feed(data []byte) error {
	if len(r.buf)+len(data) > cap(r.buf) {
		return ErrOverflow
	}
	r.buf = append(r.buf, data...)
	return nil
}

// Ready reports whether a full frame is present: at least 2 bytes buffered
// and the buffered count is at least the (untrusted) size byte.
func (r *Reassembler) Ready() bool {
	if len(r.buf) < HeaderSize {
		return false
	}
	return len(r.buf) >= int(r.buf[1])
}

// Take consumes one complete frame from the front of the buffer and shifts
// any remaining bytes forward. Callers must check Ready first: Take panics
// if called when not Ready, since every caller in this repo always gates on
// Ready().
//
// Take validates the frame's total_size against the canonical size for its
// type (spec §4.1); it does not know about Lobby/Game state legality, which
// is the dispatcher's job (spec §8 property 5).
func (r *Reassembler) Take() (Frame, error) {
	if !r.Ready() {
		panic("protocol: Take called without a ready frame")
	}
	size := int(r.buf[1])
	typ := Type(r.buf[0])

	shift := func() {
		copy(r.buf, r.buf[size:])
		r.buf = r.buf[:len(r.buf)-size]
	}

	canonical, known := CanonicalSize(typ)
	if !known || int(canonical) != size || size < HeaderSize {
		shift()
		return Frame{}, &MalformedFrameError{Type: typ, Size: size}
	}

	payload := make([]byte, size-HeaderSize)
	copy(payload, r.buf[HeaderSize:size])
	shift()

	return Frame{Type: typ, Payload: payload}, nil
}

// Encode builds the wire bytes for a frame of the given type carrying
// payload. It panics on an unknown type or a payload whose length doesn't
// match the canonical size — both are programmer errors in this codebase,
// since every call site encodes a type this package itself defines.
func Encode(typ Type, payload []byte) []byte {
	size, known := CanonicalSize(typ)
	if !known {
		panic("protocol: Encode of unknown type")
	}
	if int(size)-HeaderSize != len(payload) {
		panic("protocol: Encode payload size mismatch")
	}
	buf := make([]byte, size)
	buf[0] = byte(typ)
	buf[1] = size
	copy(buf[HeaderSize:], payload)
	return buf
}

// EncodeEmpty builds a header-only frame (no payload) for typ.
func EncodeEmpty(typ Type) []byte { return Encode(typ, nil) }

// EncodeU32 builds a frame carrying a single big-endian uint32 payload,
// used by PAIR_REQUEST/PAIR_ACCEPT/PAIR_DECLINE/ID_NOT_IN_LOBBY/NEW_ID.
func EncodeU32(typ Type, v uint32) []byte {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, v)
	return Encode(typ, payload)
}

// EncodeSide builds a PAIRING_COMPLETE frame carrying the assigned Side.
func EncodeSide(side Side) []byte {
	return Encode(TypePairingComplete, []byte{byte(side)})
}

// DecodeU32 extracts a big-endian uint32 payload (PAIR_REQUEST/PAIR_ACCEPT/
// PAIR_DECLINE/ID_NOT_IN_LOBBY/NEW_ID all carry exactly one).
func DecodeU32(f Frame) uint32 {
	return binary.BigEndian.Uint32(f.Payload)
}

// writeRetryBackoff is how long WriteFrame pauses after a zero-byte,
// no-error Write, to avoid busy-spinning (spec §4.1 writer contract).
const writeRetryBackoff = time.Millisecond

// WriteFrame writes every byte of a pre-encoded frame to w, looping over
// partial writes and backing off briefly on a zero-byte write instead of
// busy-spinning.
func WriteFrame(w io.Writer, data []byte) error {
	for len(data) > 0 {
		n, err := w.Write(data)
		if err != nil {
			return err
		}
		if n == 0 {
			time.Sleep(writeRetryBackoff)
			continue
		}
		data = data[n:]
	}
	return nil
}
