// Package session implements the per-connection actor. Each accepted
// connection gets exactly one Session; the transport pushes decoded
// client messages in through Submit and drains server messages from
// Out. The session owns the login handshake, the player's joined-room
// set, and the fan-in of room events, so nothing else has to lock.
package session

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/driftlab/roomrelay/internal/v1/auth"
	"github.com/driftlab/roomrelay/internal/v1/logging"
	"github.com/driftlab/roomrelay/internal/v1/mailbox"
	"github.com/driftlab/roomrelay/internal/v1/metrics"
	"github.com/driftlab/roomrelay/internal/v1/protocol"
	"github.com/driftlab/roomrelay/internal/v1/room"
)

// Session is one connection's actor. Submit and Close may be called
// from any goroutine; Out is consumed by the transport's writer.
type Session struct {
	connID string

	in     *mailbox.Mailbox[*protocol.ClientMessage]
	events *mailbox.Mailbox[room.OutputEvent]
	out    *mailbox.Mailbox[*protocol.ServerMessage]

	rooms   *room.Registry
	players *PlayerRegistry
	authcfg auth.Config

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a session and starts its actor goroutine. The caller
// must drain Out until it closes; the channel closing is the signal
// that the session has fully terminated and the connection should be
// torn down.
func New(rooms *room.Registry, players *PlayerRegistry, authcfg auth.Config) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		connID:  uuid.NewString(),
		in:      mailbox.New[*protocol.ClientMessage](),
		events:  mailbox.New[room.OutputEvent](),
		out:     mailbox.New[*protocol.ServerMessage](),
		rooms:   rooms,
		players: players,
		authcfg: authcfg,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	metrics.ActiveSessions.Inc()
	go s.run()
	return s
}

// ConnID is the connection identifier used in logs.
func (s *Session) ConnID() string { return s.connID }

// Submit hands a decoded client message to the actor. It never blocks
// and reports false once the session has begun terminating.
func (s *Session) Submit(msg *protocol.ClientMessage) bool {
	return s.in.Push(msg)
}

// Out is the stream of server messages for the transport writer. It is
// closed when the session terminates.
func (s *Session) Out() <-chan *protocol.ServerMessage {
	return s.out.Out()
}

// Close requests termination. Safe to call multiple times and from any
// goroutine; the transport calls it when the connection drops.
func (s *Session) Close() {
	s.cancel()
}

// Done is closed after the actor has finished its teardown.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) run() {
	log := logging.GetLogger().With(zap.String("connId", s.connID))
	log.Debug("session started")

	playerID, ok := s.waitLogin(log)
	if ok {
		log = log.With(zap.String("playerId", string(playerID)))
		s.loop(playerID, log)
		s.teardown(playerID)
	} else {
		s.teardown("")
	}

	log.Debug("session stopped")
}

// waitLogin runs the pre-login phase. The first message must be a
// LoginRequest; anything else terminates the session without a
// response. Registration happens before the credential check so two
// racing logins for the same player id cannot both pass.
func (s *Session) waitLogin(log *zap.Logger) (room.PlayerID, bool) {
	select {
	case <-s.ctx.Done():
		return "", false

	case msg, open := <-s.in.Out():
		if !open {
			return "", false
		}
		login := msg.LoginRequest
		if login == nil {
			log.Warn("message before login, closing connection")
			return "", false
		}

		playerID := room.PlayerID(login.PlayerID)
		if !s.players.TryInsert(playerID) {
			metrics.Logins.WithLabelValues("already_logged_in").Inc()
			s.respond(&protocol.ServerMessage{LoginResponse: &protocol.LoginResponse{
				Error: protocol.NewError(protocol.ErrorCodeAlreadyLoggedIn, "Player already logged in"),
			}})
			return "", false
		}

		if !s.authcfg.Authorize(login.AuthConfig) {
			s.players.Remove(playerID)
			metrics.Logins.WithLabelValues("unauthorized").Inc()
			log.Warn("login rejected", zap.String("playerId", login.PlayerID))
			s.respond(&protocol.ServerMessage{LoginResponse: &protocol.LoginResponse{
				Error: protocol.NewError(protocol.ErrorCodeUnauthorized, "Invalid credentials"),
			}})
			return "", false
		}

		metrics.Logins.WithLabelValues("ok").Inc()
		log.Info("player logged in", zap.String("playerId", login.PlayerID))
		s.respond(&protocol.ServerMessage{LoginResponse: &protocol.LoginResponse{
			Error: protocol.NoError(),
		}})
		return playerID, true
	}
}

// loop is the steady state after login. joined tracks confirmed
// memberships only: a room is added when the session observes its own
// JoinOutput, not when the join is sent.
func (s *Session) loop(playerID room.PlayerID, log *zap.Logger) {
	joined := make(map[room.RoomID]room.Handle)

	for {
		select {
		case <-s.ctx.Done():
			s.leaveAll(playerID, joined)
			return

		case msg, open := <-s.in.Out():
			if !open {
				s.leaveAll(playerID, joined)
				return
			}
			s.onClientMessage(playerID, joined, msg, log)

		case ev, open := <-s.events.Out():
			if !open {
				s.leaveAll(playerID, joined)
				return
			}
			s.onRoomEvent(playerID, joined, ev)
		}
	}
}

func (s *Session) onClientMessage(playerID room.PlayerID, joined map[room.RoomID]room.Handle, msg *protocol.ClientMessage, log *zap.Logger) {
	switch {
	case msg.LoginRequest != nil:
		// A second login on a live session is an error but not fatal.
		metrics.Logins.WithLabelValues("already_logged_in").Inc()
		s.respond(&protocol.ServerMessage{LoginResponse: &protocol.LoginResponse{
			Error: protocol.NewError(protocol.ErrorCodeAlreadyLoggedIn, "Player already logged in"),
		}})

	case msg.JoinRequest != nil:
		req := msg.JoinRequest
		cfg := room.DefaultConfig()
		if req.RoomConfig != nil {
			cfg = room.Config{MaxPlayers: req.RoomConfig.MaxPlayers}
		}
		roomID := room.RoomID(req.RoomID)
		handle := s.rooms.GetOrCreate(roomID, cfg)
		pushed := handle.Push(room.JoinInput{
			Player: room.Member{ID: playerID, Events: s.events},
			Config: cfg,
		})
		if !pushed {
			// The room stopped between lookup and push. The client can
			// simply retry; the next GetOrCreate will spawn a fresh room.
			s.respond(&protocol.ServerMessage{JoinResponse: &protocol.JoinResponse{
				RoomID: req.RoomID,
				Error:  protocol.NewError(protocol.ErrorCodeRoomNotFound, "Room not found"),
			}})
		}

	case msg.LeaveRequest != nil:
		req := msg.LeaveRequest
		roomID := room.RoomID(req.RoomID)
		handle, ok := joined[roomID]
		if !ok {
			s.respond(&protocol.ServerMessage{LeaveResponse: &protocol.LeaveResponse{
				RoomID: req.RoomID,
				Error:  protocol.NewError(protocol.ErrorCodeFailedPrecondition, "Not a member of the room"),
			}})
			return
		}
		handle.Push(room.LeaveInput{PlayerID: playerID})

	case msg.SendMessage != nil:
		req := msg.SendMessage
		roomID := room.RoomID(req.RoomID)
		handle, ok := joined[roomID]
		if !ok {
			// Messaging is fire and forget; no error response exists for it.
			log.Warn("message for room not joined dropped", zap.String("roomId", req.RoomID))
			return
		}
		targets := make([]room.PlayerID, 0, len(req.TargetIDs))
		for _, t := range req.TargetIDs {
			targets = append(targets, room.PlayerID(t))
		}
		handle.Push(room.MessageInput{
			SenderID:  playerID,
			TargetIDs: targets,
			Body:      req.Body,
		})
	}
}

func (s *Session) onRoomEvent(playerID room.PlayerID, joined map[room.RoomID]room.Handle, ev room.OutputEvent) {
	switch ev := ev.(type) {
	case room.JoinOutput:
		if ev.PlayerID != playerID {
			s.respond(&protocol.ServerMessage{JoinNotification: &protocol.JoinNotification{
				RoomID:   string(ev.RoomID),
				PlayerID: string(ev.PlayerID),
			}})
			return
		}

		// Membership is confirmed only by observing our own join. The
		// handle is re-resolved here; if the room has already stopped
		// the join is reported as failed and never recorded.
		handle, ok := s.rooms.Get(ev.RoomID)
		if !ok {
			s.respond(&protocol.ServerMessage{JoinResponse: &protocol.JoinResponse{
				RoomID: string(ev.RoomID),
				Error:  protocol.NewError(protocol.ErrorCodeRoomNotFound, "Room not found"),
			}})
			return
		}
		joined[ev.RoomID] = handle

		players := make([]string, 0, len(ev.MemberIDs))
		for _, id := range ev.MemberIDs {
			players = append(players, string(id))
		}
		s.respond(&protocol.ServerMessage{JoinResponse: &protocol.JoinResponse{
			RoomID:         string(ev.RoomID),
			CurrentPlayers: players,
			RoomConfig:     &protocol.RoomConfig{MaxPlayers: ev.Config.MaxPlayers},
			Error:          protocol.NoError(),
		}})

	case room.JoinFailedOutput:
		s.respond(&protocol.ServerMessage{JoinResponse: &protocol.JoinResponse{
			RoomID: string(ev.RoomID),
			Error:  joinError(ev.Err),
		}})

	case room.LeaveOutput:
		if ev.PlayerID == playerID {
			delete(joined, ev.RoomID)
			s.respond(&protocol.ServerMessage{LeaveResponse: &protocol.LeaveResponse{
				RoomID: string(ev.RoomID),
				Error:  protocol.NoError(),
			}})
			return
		}
		s.respond(&protocol.ServerMessage{LeaveNotification: &protocol.LeaveNotification{
			RoomID:   string(ev.RoomID),
			PlayerID: string(ev.PlayerID),
		}})

	case room.MessageOutput:
		s.respond(&protocol.ServerMessage{MessageNotification: &protocol.MessageNotification{
			RoomID:   string(ev.RoomID),
			SenderID: string(ev.SenderID),
			Body:     ev.Body,
		}})
	}
}

func joinError(err *room.JoinError) *protocol.Error {
	switch err.Kind {
	case room.JoinErrAlreadyJoined:
		return protocol.NewError(protocol.ErrorCodeAlreadyJoinedTheRoom, "Already joined the room")
	case room.JoinErrConfigMismatch:
		return protocol.NewError(protocol.ErrorCodeRoomConfigDoesNotMatch, "Room config does not match")
	case room.JoinErrRoomFull:
		return protocol.NewError(protocol.ErrorCodeRoomIsFull, "Room is full")
	}
	return protocol.NewError(protocol.ErrorCodeFailedPrecondition, err.Error())
}

// leaveAll pushes a best-effort leave to every confirmed room. Rooms
// that already stopped are skipped; their membership died with them.
func (s *Session) leaveAll(playerID room.PlayerID, joined map[room.RoomID]room.Handle) {
	for _, handle := range joined {
		handle.Push(room.LeaveInput{PlayerID: playerID})
	}
}

func (s *Session) teardown(playerID room.PlayerID) {
	if playerID != "" {
		s.players.Remove(playerID)
	}

	// Stop producers, then drain both inbound mailboxes so their pumps
	// exit. Room events arriving during the drain are discarded.
	s.in.Close()
	for range s.in.Out() {
	}
	s.events.Close()
	for range s.events.Out() {
	}

	s.out.Close()
	metrics.ActiveSessions.Dec()
	close(s.done)
}

// respond queues a server message for the transport writer.
func (s *Session) respond(msg *protocol.ServerMessage) {
	s.out.Push(msg)
}
