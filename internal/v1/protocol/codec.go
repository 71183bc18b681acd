package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidEnvelope is returned for frames that do not carry exactly
// one message variant. Adapters treat it as fatal for the connection.
var ErrInvalidEnvelope = errors.New("protocol: envelope must carry exactly one message")

// EncodeClient serializes a client envelope for the wire.
func EncodeClient(msg *ClientMessage) ([]byte, error) {
	if err := validateClient(msg); err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

// DecodeClient parses a client envelope and validates its oneof shape.
func DecodeClient(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("protocol: decode client message: %w", err)
	}
	if err := validateClient(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// EncodeServer serializes a server envelope for the wire.
func EncodeServer(msg *ServerMessage) ([]byte, error) {
	if err := validateServer(msg); err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

// DecodeServer parses a server envelope and validates its oneof shape.
func DecodeServer(data []byte) (*ServerMessage, error) {
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("protocol: decode server message: %w", err)
	}
	if err := validateServer(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ValidateClient checks the oneof shape of an already-decoded client
// envelope. Adapters whose codec bypasses DecodeClient use this.
func ValidateClient(msg *ClientMessage) error {
	return validateClient(msg)
}

func validateClient(msg *ClientMessage) error {
	if msg == nil {
		return ErrInvalidEnvelope
	}
	set := 0
	if msg.LoginRequest != nil {
		set++
	}
	if msg.JoinRequest != nil {
		set++
	}
	if msg.LeaveRequest != nil {
		set++
	}
	if msg.SendMessage != nil {
		set++
	}
	if set != 1 {
		return ErrInvalidEnvelope
	}
	return nil
}

func validateServer(msg *ServerMessage) error {
	if msg == nil {
		return ErrInvalidEnvelope
	}
	set := 0
	if msg.LoginResponse != nil {
		set++
	}
	if msg.JoinResponse != nil {
		set++
	}
	if msg.LeaveResponse != nil {
		set++
	}
	if msg.JoinNotification != nil {
		set++
	}
	if msg.LeaveNotification != nil {
		set++
	}
	if msg.MessageNotification != nil {
		set++
	}
	if set != 1 {
		return ErrInvalidEnvelope
	}
	return nil
}
