package transport

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/driftlab/roomrelay/internal/v1/logging"
	"github.com/driftlab/roomrelay/internal/v1/metrics"
	"github.com/driftlab/roomrelay/internal/v1/protocol"
	"github.com/driftlab/roomrelay/internal/v1/session"
)

const (
	// Frame payloads larger than this are a protocol violation.
	tcpMaxFrameSize = 1 << 20

	tcpFrameHeaderSize = 4
	tcpWriteWait       = 10 * time.Second
)

// ErrFrameTooLarge is returned when a frame header announces a payload
// over the limit.
var ErrFrameTooLarge = errors.New("transport: frame exceeds maximum size")

// TCPServer serves the session protocol over raw TCP. Each message is
// one frame: a 4-byte big-endian payload length followed by the JSON
// envelope.
type TCPServer struct {
	deps      Deps
	tlsConfig *tls.Config

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// NewTCPServer creates a TCP adapter. tlsConfig may be nil for
// plaintext listeners.
func NewTCPServer(deps Deps, tlsConfig *tls.Config) *TCPServer {
	return &TCPServer{
		deps:      deps,
		tlsConfig: tlsConfig,
		conns:     make(map[net.Conn]struct{}),
	}
}

// Serve accepts connections until ctx is cancelled or the listener is
// closed, then waits for in-flight connections to drain.
func (s *TCPServer) Serve(ctx context.Context, lis net.Listener) error {
	if s.tlsConfig != nil {
		lis = tls.NewListener(lis, s.tlsConfig)
	}

	go func() {
		<-ctx.Done()
		_ = lis.Close()
		s.closeAll()
	}()

	logging.Info(ctx, "tcp listener started", zap.String("addr", lis.Addr().String()))

	for {
		conn, err := lis.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.wg.Wait()
				return nil
			}
			return fmt.Errorf("tcp accept: %w", err)
		}

		if !s.deps.AllowConn(ctx, conn.RemoteAddr().String()) {
			metrics.ConnectionsRejected.WithLabelValues("rate_limited").Inc()
			_ = conn.Close()
			continue
		}

		s.track(conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handleConn(conn)
		}()
	}
}

func (s *TCPServer) track(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[conn] = struct{}{}
}

func (s *TCPServer) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

func (s *TCPServer) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}

func (s *TCPServer) handleConn(conn net.Conn) {
	sess := s.deps.NewSession()
	log := logging.GetLogger().With(
		zap.String("connId", sess.ConnID()),
		zap.String("remoteAddr", conn.RemoteAddr().String()))
	log.Info("tcp connected")

	go s.readPump(conn, sess, log)
	s.writePump(conn, sess, log)
}

func (s *TCPServer) readPump(conn net.Conn, sess *session.Session, log *zap.Logger) {
	defer sess.Close()

	for {
		data, err := readFrame(conn)
		if err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				log.Warn("tcp read failed", zap.Error(err))
			}
			return
		}

		msg, err := protocol.DecodeClient(data)
		if err != nil {
			log.Warn("invalid client message, closing", zap.Error(err))
			return
		}
		if !sess.Submit(msg) {
			return
		}
	}
}

func (s *TCPServer) writePump(conn net.Conn, sess *session.Session, log *zap.Logger) {
	defer func() { _ = conn.Close() }()

	for msg := range sess.Out() {
		data, err := protocol.EncodeServer(msg)
		if err != nil {
			log.Error("failed to encode server message", zap.Error(err))
			continue
		}

		_ = conn.SetWriteDeadline(time.Now().Add(tcpWriteWait))
		if err := writeFrame(conn, data); err != nil {
			log.Warn("tcp write failed", zap.Error(err))
			sess.Close()
			for range sess.Out() {
			}
			return
		}
	}

	log.Info("tcp closed")
}

// readFrame reads one length-prefixed frame.
func readFrame(r io.Reader) ([]byte, error) {
	var header [tcpFrameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(header[:])
	if size == 0 || size > tcpMaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// writeFrame writes one length-prefixed frame in a single Write call
// so concurrent writers cannot interleave headers and payloads.
func writeFrame(w io.Writer, payload []byte) error {
	if len(payload) > tcpMaxFrameSize {
		return ErrFrameTooLarge
	}

	frame := make([]byte, tcpFrameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(frame[:tcpFrameHeaderSize], uint32(len(payload)))
	copy(frame[tcpFrameHeaderSize:], payload)

	_, err := w.Write(frame)
	return err
}
