// Package room implements the room actor: the single owner of one
// room's membership and the serializer of every join, leave, and
// fan-out that touches it. Sessions talk to rooms only through the
// registry and the room's inbox; rooms talk back only through each
// member's event sink.
package room

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/driftlab/roomrelay/internal/v1/logging"
	"github.com/driftlab/roomrelay/internal/v1/metrics"
)

// JoinErrorKind discriminates the ways a join can be rejected.
type JoinErrorKind int

const (
	JoinErrAlreadyJoined JoinErrorKind = iota
	JoinErrConfigMismatch
	JoinErrRoomFull
)

func (k JoinErrorKind) String() string {
	switch k {
	case JoinErrAlreadyJoined:
		return "AlreadyJoined"
	case JoinErrConfigMismatch:
		return "ConfigMismatch"
	case JoinErrRoomFull:
		return "RoomFull"
	}
	return "Unknown"
}

// JoinError is the room's rejection of a join attempt.
type JoinError struct {
	Kind     JoinErrorKind
	RoomID   RoomID
	PlayerID PlayerID
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("join rejected (%s): roomId=%s playerId=%s", e.Kind, e.RoomID, e.PlayerID)
}

// state is the membership owned by exactly one actor goroutine. None of
// its methods are safe for concurrent use; the actor's inbox provides
// the serialization.
type state struct {
	id      RoomID
	config  Config
	members map[PlayerID]Member
}

func newState(id RoomID, config Config) *state {
	return &state{
		id:      id,
		config:  config,
		members: make(map[PlayerID]Member),
	}
}

// addMember admits m if the requested config matches, m is not already
// a member, and the room is below capacity.
func (s *state) addMember(m Member, requested Config) *JoinError {
	if s.config != requested {
		return &JoinError{Kind: JoinErrConfigMismatch, RoomID: s.id, PlayerID: m.ID}
	}
	if _, ok := s.members[m.ID]; ok {
		return &JoinError{Kind: JoinErrAlreadyJoined, RoomID: s.id, PlayerID: m.ID}
	}
	if uint32(len(s.members)) >= s.config.MaxPlayers {
		return &JoinError{Kind: JoinErrRoomFull, RoomID: s.id, PlayerID: m.ID}
	}
	s.members[m.ID] = m
	return nil
}

func (s *state) removeMember(id PlayerID) bool {
	if _, ok := s.members[id]; !ok {
		return false
	}
	delete(s.members, id)
	return true
}

func (s *state) isMember(id PlayerID) bool {
	_, ok := s.members[id]
	return ok
}

func (s *state) size() int {
	return len(s.members)
}

// memberIDs snapshots the current membership. Order is unspecified.
func (s *state) memberIDs() []PlayerID {
	ids := make([]PlayerID, 0, len(s.members))
	for id := range s.members {
		ids = append(ids, id)
	}
	return ids
}

// broadcast delivers ev to every member. A closed sink is logged and
// skipped; reaping the dead session is the session's own job.
func (s *state) broadcast(ev OutputEvent) {
	for _, m := range s.members {
		if !m.Deliver(ev) {
			metrics.DroppedDeliveries.Inc()
			logging.GetLogger().Warn("dropped event for closed session",
				zap.String("roomId", string(s.id)),
				zap.String("playerId", string(m.ID)))
		}
	}
}

// broadcastExcept delivers ev to every member but one.
func (s *state) broadcastExcept(skip PlayerID, ev OutputEvent) {
	for _, m := range s.members {
		if m.ID == skip {
			continue
		}
		if !m.Deliver(ev) {
			metrics.DroppedDeliveries.Inc()
			logging.GetLogger().Warn("dropped event for closed session",
				zap.String("roomId", string(s.id)),
				zap.String("playerId", string(m.ID)))
		}
	}
}

// unicast delivers ev to one member if present.
func (s *state) unicast(id PlayerID, ev OutputEvent) {
	m, ok := s.members[id]
	if !ok {
		return
	}
	if !m.Deliver(ev) {
		metrics.DroppedDeliveries.Inc()
		logging.GetLogger().Warn("dropped event for closed session",
			zap.String("roomId", string(s.id)),
			zap.String("playerId", string(id)))
	}
}
