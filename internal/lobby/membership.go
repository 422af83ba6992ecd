// Copyright 2025 JC-Lab
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-FEL

package lobby

import (
	"sync"

	"github.com/flymesh/chessrelay/internal/connection"
)

// DefaultCapacity is the spec-mandated maximum number of simultaneously
// resident Lobby members (spec §6 LOBBY_CAPACITY), used when no override is
// configured.
const DefaultCapacity = 50

// Membership is the process-wide mapping from identifier to Connection for
// every Connection currently in the Lobby. It is a dense slice (for
// swap-with-last compaction) backed by a map for O(1) identifier lookup.
// All access is guarded by mu. The dispatcher goroutine is its only caller
// (Game workers hand connections back through Lobby.Return, and the
// dispatcher then calls InsertReturning), so in practice contention never
// happens.
type Membership struct {
	mu       sync.Mutex
	capacity int
	members  []*connection.Connection
	byID     map[uint32]*connection.Connection
}

// NewMembership returns an empty Membership bounded at capacity.
func NewMembership(capacity int) *Membership {
	return &Membership{
		capacity: capacity,
		byID:     make(map[uint32]*connection.Connection, capacity),
	}
}

// Len returns the current resident count.
func (m *Membership) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.members)
}

// Full reports whether the Lobby is at capacity.
func (m *Membership) Full() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.members) >= m.capacity
}

// Insert adds c under c.ID. It reports false if the Lobby is already at
// capacity; the caller must have assigned c.ID before calling (Lobby does
// this via allocateID, which itself locks m).
func (m *Membership) Insert(c *connection.Connection) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.members) >= m.capacity {
		return false
	}
	m.members = append(m.members, c)
	m.byID[c.ID] = c
	return true
}

// InsertReturning re-admits a connection whose match just ended. Lobby
// capacity governs new admissions only (spec §6); a connection returning
// from a Game already held a slot before it left and must not be dropped on
// the floor because other newcomers filled the Lobby in the meantime, so
// this bypasses the capacity check that Insert enforces.
func (m *Membership) InsertReturning(c *connection.Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members = append(m.members, c)
	m.byID[c.ID] = c
}

// Remove deletes the member with id by swap-with-last, reporting whether it
// was present.
func (m *Membership) Remove(id uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return false
	}
	delete(m.byID, id)
	for i, other := range m.members {
		if other == c {
			last := len(m.members) - 1
			m.members[i] = m.members[last]
			m.members[last] = nil
			m.members = m.members[:last]
			break
		}
	}
	return true
}

// Get returns the resident Connection for id, if any.
func (m *Membership) Get(id uint32) (*connection.Connection, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	return c, ok
}

// allocateID draws a process-random non-zero uint32 and resamples on zero or
// on collision against resident identifiers (spec §4.3: "linear scan
// suffices" under a capacity of 50). Caller must not hold m.mu.
func (m *Membership) allocateID() uint32 {
	for {
		id := randomUint32()
		if id == 0 {
			continue
		}
		m.mu.Lock()
		_, collide := m.byID[id]
		m.mu.Unlock()
		if !collide {
			return id
		}
	}
}
