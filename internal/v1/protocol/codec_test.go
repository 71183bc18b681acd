package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeClientRejectsEmptyEnvelope(t *testing.T) {
	_, err := DecodeClient([]byte(`{}`))
	assert.ErrorIs(t, err, ErrInvalidEnvelope)
}

func TestDecodeClientRejectsMultipleVariants(t *testing.T) {
	frame := []byte(`{"loginRequest":{"playerId":"p1"},"leaveRequest":{"roomId":"r"}}`)
	_, err := DecodeClient(frame)
	assert.ErrorIs(t, err, ErrInvalidEnvelope)
}

func TestDecodeClientRejectsMalformedJSON(t *testing.T) {
	_, err := DecodeClient([]byte(`{"loginRequest":`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidEnvelope)
}

func TestClientEnvelopeRoundTrip(t *testing.T) {
	msg := &ClientMessage{
		SendMessage: &SendMessage{
			RoomID:    "r",
			TargetIDs: []string{"p2"},
			Body:      []byte{0x00, 0x01, 0xff},
		},
	}

	data, err := EncodeClient(msg)
	require.NoError(t, err)

	decoded, err := DecodeClient(data)
	require.NoError(t, err)
	require.NotNil(t, decoded.SendMessage)
	assert.Equal(t, "r", decoded.SendMessage.RoomID)
	assert.Equal(t, []string{"p2"}, decoded.SendMessage.TargetIDs)
	assert.Equal(t, []byte{0x00, 0x01, 0xff}, decoded.SendMessage.Body)
}

func TestServerEnvelopeRoundTrip(t *testing.T) {
	msg := &ServerMessage{
		JoinResponse: &JoinResponse{
			RoomID:         "r",
			CurrentPlayers: []string{"p1", "p2"},
			RoomConfig:     &RoomConfig{MaxPlayers: 2},
			Error:          NoError(),
		},
	}

	data, err := EncodeServer(msg)
	require.NoError(t, err)

	decoded, err := DecodeServer(data)
	require.NoError(t, err)
	require.NotNil(t, decoded.JoinResponse)
	assert.True(t, decoded.JoinResponse.Error.Ok())
	assert.Equal(t, uint32(2), decoded.JoinResponse.RoomConfig.MaxPlayers)
}

func TestErrorOk(t *testing.T) {
	assert.True(t, (*Error)(nil).Ok())
	assert.True(t, NoError().Ok())
	assert.False(t, NewError(ErrorCodeRoomNotFound, "gone").Ok())
}

func TestErrorCodeString(t *testing.T) {
	assert.Equal(t, "None", ErrorCodeNone.String())
	assert.Equal(t, "RoomIsFull", ErrorCodeRoomIsFull.String())
	assert.Equal(t, "Unknown", ErrorCode(99).String())
}
