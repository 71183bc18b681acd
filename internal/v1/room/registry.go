package room

import (
	"sync"

	"go.uber.org/zap"

	"github.com/driftlab/roomrelay/internal/v1/logging"
	"github.com/driftlab/roomrelay/internal/v1/mailbox"
	"github.com/driftlab/roomrelay/internal/v1/metrics"
)

// Handle is the sending end of a room's inbox.
type Handle = *mailbox.Mailbox[InputEvent]

// Registry is the process-wide mapping from room id to the room's
// inbox. Creation and the room's own removal share the write lock, so
// a GetOrCreate that observes no entry always creates a fresh room and
// never hands out a handle to one that is about to stop reading.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[RoomID]Handle
	presence Presence
}

// NewRegistry creates an empty registry. presence may be nil.
func NewRegistry(presence Presence) *Registry {
	return &Registry{
		rooms:    make(map[RoomID]Handle),
		presence: presence,
	}
}

// Get looks up the inbox for id.
func (r *Registry) Get(id RoomID) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.rooms[id]
	return h, ok
}

// GetOrCreate returns the existing inbox for id, or spawns a room actor
// with the given config and returns its inbox. An existing room keeps
// its creator's config; a mismatched joiner is rejected by the room
// itself.
func (r *Registry) GetOrCreate(id RoomID, config Config) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.rooms[id]; ok {
		return h
	}

	logging.GetLogger().Info("creating room",
		zap.String("roomId", string(id)),
		zap.Uint32("maxPlayers", config.MaxPlayers))

	inbox := mailbox.New[InputEvent]()
	a := newActor(id, config, inbox, r, r.presence)
	go a.run()

	r.rooms[id] = inbox
	metrics.ActiveRooms.Inc()
	return inbox
}

// remove deletes id from the registry. Called only by the room actor
// on self-termination, before it stops consuming its inbox.
func (r *Registry) remove(id RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, id)
}

// Len reports the number of live rooms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
