package transport

import (
	"bytes"
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftlab/roomrelay/internal/v1/auth"
	"github.com/driftlab/roomrelay/internal/v1/protocol"
	"github.com/driftlab/roomrelay/internal/v1/room"
	"github.com/driftlab/roomrelay/internal/v1/session"
)

func newTestDeps() Deps {
	return Deps{
		Rooms:   room.NewRegistry(nil),
		Players: session.NewPlayerRegistry(),
		Auth:    auth.Config{},
	}
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	payload := []byte(`{"loginRequest":{"playerId":"alice"}}`)
	require.NoError(t, writeFrame(&buf, payload))

	got, err := readFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestReadFrame_TooLarge(t *testing.T) {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], tcpMaxFrameSize+1)

	_, err := readFrame(bytes.NewReader(header[:]))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestReadFrame_ZeroLength(t *testing.T) {
	var header [4]byte

	_, err := readFrame(bytes.NewReader(header[:]))
	assert.Error(t, err)
}

func TestWriteFrame_TooLarge(t *testing.T) {
	var buf bytes.Buffer
	err := writeFrame(&buf, make([]byte, tcpMaxFrameSize+1))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

// tcpClient is a minimal framed client for exercising the server.
type tcpClient struct {
	conn net.Conn
}

func dialTCP(t *testing.T, addr string) *tcpClient {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	return &tcpClient{conn: conn}
}

func (c *tcpClient) send(t *testing.T, msg *protocol.ClientMessage) {
	t.Helper()
	data, err := protocol.EncodeClient(msg)
	require.NoError(t, err)
	require.NoError(t, writeFrame(c.conn, data))
}

func (c *tcpClient) recv(t *testing.T) *protocol.ServerMessage {
	t.Helper()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	data, err := readFrame(c.conn)
	require.NoError(t, err)
	msg, err := protocol.DecodeServer(data)
	require.NoError(t, err)
	return msg
}

func (c *tcpClient) close() {
	_ = c.conn.Close()
}

func startTCPServer(t *testing.T, deps Deps) (addr string, stop func()) {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewTCPServer(deps, nil).Serve(ctx, lis)
	}()

	return lis.Addr().String(), func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("tcp server did not stop")
		}
	}
}

func TestTCPServer_LoginJoinMessage(t *testing.T) {
	deps := newTestDeps()
	addr, stop := startTCPServer(t, deps)
	defer stop()

	alice := dialTCP(t, addr)
	defer alice.close()
	bob := dialTCP(t, addr)
	defer bob.close()

	alice.send(t, &protocol.ClientMessage{LoginRequest: &protocol.LoginRequest{PlayerID: "alice"}})
	require.True(t, alice.recv(t).LoginResponse.Error.Ok())

	bob.send(t, &protocol.ClientMessage{LoginRequest: &protocol.LoginRequest{PlayerID: "bob"}})
	require.True(t, bob.recv(t).LoginResponse.Error.Ok())

	alice.send(t, &protocol.ClientMessage{JoinRequest: &protocol.JoinRequest{RoomID: "room-1"}})
	joined := alice.recv(t).JoinResponse
	require.NotNil(t, joined)
	require.True(t, joined.Error.Ok())
	assert.ElementsMatch(t, []string{"alice"}, joined.CurrentPlayers)

	bob.send(t, &protocol.ClientMessage{JoinRequest: &protocol.JoinRequest{RoomID: "room-1"}})
	require.True(t, bob.recv(t).JoinResponse.Error.Ok())

	notif := alice.recv(t).JoinNotification
	require.NotNil(t, notif)
	assert.Equal(t, "bob", notif.PlayerID)

	alice.send(t, &protocol.ClientMessage{SendMessage: &protocol.SendMessage{RoomID: "room-1", Body: []byte("over tcp")}})
	for _, c := range []*tcpClient{alice, bob} {
		got := c.recv(t).MessageNotification
		require.NotNil(t, got)
		assert.Equal(t, "alice", got.SenderID)
		assert.Equal(t, []byte("over tcp"), got.Body)
	}
}

func TestTCPServer_InvalidFrameClosesConnection(t *testing.T) {
	deps := newTestDeps()
	addr, stop := startTCPServer(t, deps)
	defer stop()

	client := dialTCP(t, addr)
	defer client.close()

	// Not a valid envelope: two variants at once.
	require.NoError(t, writeFrame(client.conn, []byte(`{"loginRequest":{"playerId":"x"},"leaveRequest":{"roomId":"r"}}`)))

	require.NoError(t, client.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := readFrame(client.conn)
	assert.Error(t, err)
}

func TestTCPServer_DisconnectReleasesPlayer(t *testing.T) {
	deps := newTestDeps()
	addr, stop := startTCPServer(t, deps)
	defer stop()

	client := dialTCP(t, addr)
	client.send(t, &protocol.ClientMessage{LoginRequest: &protocol.LoginRequest{PlayerID: "alice"}})
	require.True(t, client.recv(t).LoginResponse.Error.Ok())
	require.Equal(t, 1, deps.Players.Len())

	client.close()

	require.Eventually(t, func() bool { return deps.Players.Len() == 0 },
		2*time.Second, 10*time.Millisecond)
}
