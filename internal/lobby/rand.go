// Copyright 2025 JC-Lab
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-FEL

package lobby

import (
	"crypto/rand"
	"encoding/binary"
)

// randomUint32 draws a random 32-bit value from crypto/rand, mirroring the teacher's
// crypto/rand-backed randomUint64 helper (relay-manager/relay.go). Using
// crypto/rand rather than math/rand sidesteps the "seeded per process, not
// per worker" requirement entirely: there is no seed state to share.
func randomUint32() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint32(b[:])
}
