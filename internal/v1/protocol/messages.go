// Package protocol defines the client/server message schema shared by
// every transport adapter. An envelope carries exactly one variant,
// modeled as mutually exclusive pointer fields; the zero envelope and
// envelopes with more than one variant set are invalid on the wire.
package protocol

// ErrorCode enumerates the protocol-level error taxonomy. The zero
// value means success.
type ErrorCode int32

const (
	ErrorCodeNone ErrorCode = iota
	ErrorCodeUnauthorized
	ErrorCodeAlreadyLoggedIn
	ErrorCodeAlreadyJoinedTheRoom
	ErrorCodeRoomConfigDoesNotMatch
	ErrorCodeRoomNotFound
	ErrorCodeFailedPrecondition
	ErrorCodeRoomIsFull
)

func (c ErrorCode) String() string {
	switch c {
	case ErrorCodeNone:
		return "None"
	case ErrorCodeUnauthorized:
		return "Unauthorized"
	case ErrorCodeAlreadyLoggedIn:
		return "AlreadyLoggedIn"
	case ErrorCodeAlreadyJoinedTheRoom:
		return "AlreadyJoinedTheRoom"
	case ErrorCodeRoomConfigDoesNotMatch:
		return "RoomConfigDoesNotMatch"
	case ErrorCodeRoomNotFound:
		return "RoomNotFound"
	case ErrorCodeFailedPrecondition:
		return "FailedPrecondition"
	case ErrorCodeRoomIsFull:
		return "RoomIsFull"
	}
	return "Unknown"
}

// Error is the error payload embedded in responses.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message,omitempty"`
}

// Ok reports whether the error payload denotes success.
func (e *Error) Ok() bool {
	return e == nil || e.Code == ErrorCodeNone
}

// NewError builds an error payload for the given code.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NoError is the success payload carried by responses.
func NoError() *Error {
	return &Error{Code: ErrorCodeNone}
}

// RoomConfig is the configuration attached to a room at creation time.
type RoomConfig struct {
	MaxPlayers uint32 `json:"maxPlayers"`
}

// AuthConfigBearer carries the shared bearer token presented at login.
type AuthConfigBearer struct {
	Token string `json:"token"`
}

// AuthConfig is the oneof auth payload of a LoginRequest. Only bearer
// auth exists today.
type AuthConfig struct {
	Bearer *AuthConfigBearer `json:"bearer,omitempty"`
}

// --- Client -> Server ---

type LoginRequest struct {
	PlayerID   string      `json:"playerId"`
	AuthConfig *AuthConfig `json:"authConfig,omitempty"`
}

type JoinRequest struct {
	RoomID     string      `json:"roomId"`
	RoomConfig *RoomConfig `json:"roomConfig,omitempty"`
}

type LeaveRequest struct {
	RoomID string `json:"roomId"`
}

type SendMessage struct {
	RoomID    string   `json:"roomId"`
	TargetIDs []string `json:"targetIds,omitempty"`
	Body      []byte   `json:"body"`
}

// ClientMessage is the client-to-server envelope. Exactly one field
// must be set.
type ClientMessage struct {
	LoginRequest *LoginRequest `json:"loginRequest,omitempty"`
	JoinRequest  *JoinRequest  `json:"joinRequest,omitempty"`
	LeaveRequest *LeaveRequest `json:"leaveRequest,omitempty"`
	SendMessage  *SendMessage  `json:"sendMessage,omitempty"`
}

// --- Server -> Client ---

type LoginResponse struct {
	Error *Error `json:"error"`
}

type JoinResponse struct {
	RoomID         string      `json:"roomId"`
	CurrentPlayers []string    `json:"currentPlayers,omitempty"`
	RoomConfig     *RoomConfig `json:"roomConfig,omitempty"`
	Error          *Error      `json:"error"`
}

type LeaveResponse struct {
	RoomID string `json:"roomId"`
	Error  *Error `json:"error"`
}

type JoinNotification struct {
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
}

type LeaveNotification struct {
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
}

type MessageNotification struct {
	RoomID   string `json:"roomId"`
	SenderID string `json:"senderId"`
	Body     []byte `json:"body"`
}

// ServerMessage is the server-to-client envelope. Exactly one field is
// set by the server.
type ServerMessage struct {
	LoginResponse       *LoginResponse       `json:"loginResponse,omitempty"`
	JoinResponse        *JoinResponse        `json:"joinResponse,omitempty"`
	LeaveResponse       *LeaveResponse       `json:"leaveResponse,omitempty"`
	JoinNotification    *JoinNotification    `json:"joinNotification,omitempty"`
	LeaveNotification   *LeaveNotification   `json:"leaveNotification,omitempty"`
	MessageNotification *MessageNotification `json:"messageNotification,omitempty"`
}
