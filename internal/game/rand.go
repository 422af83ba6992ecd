// Copyright 2025 JC-Lab
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-FEL

package game

import "crypto/rand"

// coinFlip chooses one of the two paired connections uniformly at random to
// be White; the other is Black (spec §4.4: "choose a Side for each Player
// uniformly at random"; original_source/gameManager.c: one flip decides
// player 1's side, player 2 always gets the complement).
func coinFlip() bool {
	var b [1]byte
	_, _ = rand.Read(b[:])
	return b[0]&1 == 1
}
