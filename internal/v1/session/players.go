package session

import (
	"sync"

	"k8s.io/utils/set"

	"github.com/driftlab/roomrelay/internal/v1/room"
)

// PlayerRegistry is the process-wide set of logged-in player ids. It
// enforces single-login: a player id is held by at most one session at
// a time, from successful login until that session terminates.
type PlayerRegistry struct {
	mu      sync.RWMutex
	players set.Set[room.PlayerID]
}

// NewPlayerRegistry creates an empty registry.
func NewPlayerRegistry() *PlayerRegistry {
	return &PlayerRegistry{players: set.New[room.PlayerID]()}
}

// TryInsert claims id. It reports false if another session already
// holds it, in which case the registry is unchanged.
func (r *PlayerRegistry) TryInsert(id room.PlayerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.players.Has(id) {
		return false
	}
	r.players.Insert(id)
	return true
}

// Remove releases id. Removing an absent id is a no-op.
func (r *PlayerRegistry) Remove(id room.PlayerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.players.Delete(id)
}

// Has reports whether id is currently logged in.
func (r *PlayerRegistry) Has(id room.PlayerID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.players.Has(id)
}

// Len reports the number of logged-in players.
func (r *PlayerRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.players.Len()
}
