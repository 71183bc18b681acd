package room

import "github.com/driftlab/roomrelay/internal/v1/mailbox"

// PlayerID identifies a logged-in player.
type PlayerID string

// RoomID identifies a room.
type RoomID string

// Config is the room configuration fixed at creation time. A joiner
// whose requested config differs from the creator's is rejected.
type Config struct {
	MaxPlayers uint32
}

// DefaultConfig is the config applied when a join request carries none.
func DefaultConfig() Config {
	return Config{MaxPlayers: 2}
}

// Member is a room's view of one session: the player id plus the sink
// the room pushes output events into.
type Member struct {
	ID     PlayerID
	Events *mailbox.Mailbox[OutputEvent]
}

// Deliver pushes ev into the member's event sink. It reports false if
// the sink is already closed.
func (m Member) Deliver(ev OutputEvent) bool {
	return m.Events.Push(ev)
}

// InputEvent is a command sent into a room's inbox.
type InputEvent interface {
	isInputEvent()
}

// JoinInput asks the room to admit Player under the requested Config.
type JoinInput struct {
	Player Member
	Config Config
}

// LeaveInput asks the room to remove the player.
type LeaveInput struct {
	PlayerID PlayerID
}

// MessageInput fans Body out to TargetIDs, or to every member when
// TargetIDs is empty.
type MessageInput struct {
	SenderID  PlayerID
	TargetIDs []PlayerID
	Body      []byte
}

func (JoinInput) isInputEvent()    {}
func (LeaveInput) isInputEvent()   {}
func (MessageInput) isInputEvent() {}

// OutputEvent is an event a room pushes into member event sinks.
type OutputEvent interface {
	isOutputEvent()
}

// JoinOutput announces that PlayerID joined RoomID. MemberIDs is the
// membership snapshot taken after admission, including the joiner;
// its order is unspecified.
type JoinOutput struct {
	RoomID    RoomID
	PlayerID  PlayerID
	MemberIDs []PlayerID
	Config    Config
}

// JoinFailedOutput is delivered only to the rejected joiner.
type JoinFailedOutput struct {
	RoomID   RoomID
	PlayerID PlayerID
	Err      *JoinError
}

// LeaveOutput announces that PlayerID left RoomID. The leaver receives
// it too.
type LeaveOutput struct {
	RoomID   RoomID
	PlayerID PlayerID
}

// MessageOutput carries an application payload relayed through RoomID.
type MessageOutput struct {
	RoomID   RoomID
	SenderID PlayerID
	Body     []byte
}

func (JoinOutput) isOutputEvent()       {}
func (JoinFailedOutput) isOutputEvent() {}
func (LeaveOutput) isOutputEvent()      {}
func (MessageOutput) isOutputEvent()    {}
