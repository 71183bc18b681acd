package room

import (
	"context"

	"go.uber.org/zap"

	"github.com/driftlab/roomrelay/internal/v1/logging"
	"github.com/driftlab/roomrelay/internal/v1/mailbox"
	"github.com/driftlab/roomrelay/internal/v1/metrics"
)

// Presence mirrors membership changes to an external observer (Redis in
// production, nil in single-instance mode). Calls are best-effort and
// must not block the caller's critical path for long; the actor
// dispatches them from bounded goroutines.
type Presence interface {
	PlayerJoined(ctx context.Context, roomID, playerID string)
	PlayerLeft(ctx context.Context, roomID, playerID string)
	RoomClosed(ctx context.Context, roomID string)
}

// maxConcurrentPresenceOps bounds in-flight presence publishes per room.
const maxConcurrentPresenceOps = 16

// actor owns one room. It consumes the inbox until the membership
// drops back to zero, then unregisters itself and stops.
type actor struct {
	state    *state
	inbox    *mailbox.Mailbox[InputEvent]
	registry *Registry
	presence Presence

	presenceSem chan struct{}
}

func newActor(id RoomID, config Config, inbox *mailbox.Mailbox[InputEvent], registry *Registry, presence Presence) *actor {
	return &actor{
		state:       newState(id, config),
		inbox:       inbox,
		registry:    registry,
		presence:    presence,
		presenceSem: make(chan struct{}, maxConcurrentPresenceOps),
	}
}

func (a *actor) run() {
	log := logging.GetLogger().With(zap.String("roomId", string(a.state.id)))
	log.Debug("room started")

	for ev := range a.inbox.Out() {
		switch ev := ev.(type) {
		case JoinInput:
			a.handleJoin(ev)
		case LeaveInput:
			a.handleLeave(ev, log)
		case MessageInput:
			a.handleMessage(ev, log)
		}

		// A room that has emptied is terminal. Unregister before
		// dropping the inbox so no new producer can find the handle;
		// anything already in flight is lost by design.
		if a.state.size() == 0 {
			a.registry.remove(a.state.id)
			a.inbox.Close()
			for range a.inbox.Out() {
			}
			a.notifyRoomClosed()
			metrics.ActiveRooms.Dec()
			metrics.RoomMembers.DeleteLabelValues(string(a.state.id))
			log.Debug("room stopped")
			return
		}
	}
}

func (a *actor) handleJoin(ev JoinInput) {
	if err := a.state.addMember(ev.Player, ev.Config); err != nil {
		// Rejections go only to the failing joiner.
		if !ev.Player.Deliver(JoinFailedOutput{
			RoomID:   a.state.id,
			PlayerID: ev.Player.ID,
			Err:      err,
		}) {
			logging.GetLogger().Warn("join rejected and joiner already disconnected",
				zap.String("roomId", string(a.state.id)),
				zap.String("playerId", string(ev.Player.ID)))
		}
		return
	}

	out := JoinOutput{
		RoomID:    a.state.id,
		PlayerID:  ev.Player.ID,
		MemberIDs: a.state.memberIDs(),
		Config:    a.state.config,
	}

	// The joiner's copy doubles as the join confirmation. If their
	// session died between pushing the join and now, evict them so the
	// room doesn't hold a member nobody will ever leave for.
	if !ev.Player.Deliver(out) {
		logging.GetLogger().Warn("joiner disconnected before confirmation, evicting",
			zap.String("roomId", string(a.state.id)),
			zap.String("playerId", string(ev.Player.ID)))
		a.state.removeMember(ev.Player.ID)
		return
	}
	a.state.broadcastExcept(ev.Player.ID, out)

	metrics.RoomMembers.WithLabelValues(string(a.state.id)).Set(float64(a.state.size()))
	a.notifyJoined(ev.Player.ID)
}

func (a *actor) handleLeave(ev LeaveInput, log *zap.Logger) {
	if !a.state.isMember(ev.PlayerID) {
		// Double leave or a leave for a room never joined.
		log.Warn("leave for non-member ignored", zap.String("playerId", string(ev.PlayerID)))
		return
	}

	// The leaver still observes its own Leave event.
	a.state.broadcast(LeaveOutput{
		RoomID:   a.state.id,
		PlayerID: ev.PlayerID,
	})
	a.state.removeMember(ev.PlayerID)

	metrics.RoomMembers.WithLabelValues(string(a.state.id)).Set(float64(a.state.size()))
	a.notifyLeft(ev.PlayerID)
}

func (a *actor) handleMessage(ev MessageInput, log *zap.Logger) {
	out := MessageOutput{
		RoomID:   a.state.id,
		SenderID: ev.SenderID,
		Body:     ev.Body,
	}

	if len(ev.TargetIDs) == 0 {
		a.state.broadcast(out)
		metrics.MessagesFanout.WithLabelValues("broadcast").Inc()
		return
	}

	for _, id := range ev.TargetIDs {
		if !a.state.isMember(id) {
			// Messaging is best-effort; unknown targets are skipped.
			log.Warn("message target is not a member", zap.String("playerId", string(id)))
			continue
		}
		a.state.unicast(id, out)
	}
	metrics.MessagesFanout.WithLabelValues("unicast").Inc()
}

// --- presence dispatch ---

func (a *actor) dispatchPresence(op func(ctx context.Context)) {
	if a.presence == nil {
		return
	}
	select {
	case a.presenceSem <- struct{}{}:
		go func() {
			defer func() { <-a.presenceSem }()
			op(context.Background())
		}()
	default:
		logging.GetLogger().Warn("presence queue full, dropping update",
			zap.String("roomId", string(a.state.id)))
	}
}

func (a *actor) notifyJoined(id PlayerID) {
	a.dispatchPresence(func(ctx context.Context) {
		a.presence.PlayerJoined(ctx, string(a.state.id), string(id))
	})
}

func (a *actor) notifyLeft(id PlayerID) {
	a.dispatchPresence(func(ctx context.Context) {
		a.presence.PlayerLeft(ctx, string(a.state.id), string(id))
	})
}

func (a *actor) notifyRoomClosed() {
	a.dispatchPresence(func(ctx context.Context) {
		a.presence.RoomClosed(ctx, string(a.state.id))
	})
}
