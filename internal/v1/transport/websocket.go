package transport

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/driftlab/roomrelay/internal/v1/logging"
	"github.com/driftlab/roomrelay/internal/v1/metrics"
	"github.com/driftlab/roomrelay/internal/v1/protocol"
	"github.com/driftlab/roomrelay/internal/v1/session"
)

const (
	// Client messages larger than this close the connection.
	wsMaxMessageSize = 1 << 20

	wsWriteWait = 10 * time.Second
)

// WebSocketServer serves the session protocol over WebSocket binary
// frames, one JSON envelope per frame. Pings are answered by the
// library's default pong handler inside the read loop.
type WebSocketServer struct {
	deps           Deps
	allowedOrigins []string
}

// NewWebSocketServer creates a WebSocket adapter.
func NewWebSocketServer(deps Deps, allowedOrigins []string) *WebSocketServer {
	return &WebSocketServer{
		deps:           deps,
		allowedOrigins: allowedOrigins,
	}
}

// RegisterRoutes mounts the WebSocket endpoint on the given router.
func (s *WebSocketServer) RegisterRoutes(r *gin.Engine) {
	r.GET("/app", s.ServeWs)
}

// ServeWs checks the connection limit and origin, upgrades, and runs a
// session until either side goes away.
func (s *WebSocketServer) ServeWs(c *gin.Context) {
	// Rate limit before spending anything on the upgrade.
	if !s.deps.AllowConn(c.Request.Context(), c.ClientIP()) {
		metrics.ConnectionsRejected.WithLabelValues("rate_limited").Inc()
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many connections from this IP"})
		return
	}

	if err := validateOrigin(c.Request, s.allowedOrigins); err != nil {
		metrics.ConnectionsRejected.WithLabelValues("origin").Inc()
		c.JSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return validateOrigin(r, s.allowedOrigins) == nil
		},
		WriteBufferPool: &sync.Pool{
			New: func() any {
				return make([]byte, 4096)
			},
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to upgrade connection", zap.Error(err))
		return
	}

	sess := s.deps.NewSession()
	log := logging.GetLogger().With(
		zap.String("connId", sess.ConnID()),
		zap.String("remoteAddr", conn.RemoteAddr().String()))
	log.Info("websocket connected")

	go s.readPump(conn, sess, log)
	s.writePump(conn, sess, log)
}

// readPump feeds decoded frames into the session until the connection
// or the session dies. A frame that is not a valid envelope closes the
// connection.
func (s *WebSocketServer) readPump(conn *websocket.Conn, sess *session.Session, log *zap.Logger) {
	defer sess.Close()

	conn.SetReadLimit(wsMaxMessageSize)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("websocket read failed", zap.Error(err))
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

// writePump drains the session's output. The output closing means the
// session is gone, so the pump sends a close frame and drops the
// connection, which in turn unblocks the read pump.
func (s *WebSocketServer) writePump(conn *websocket.Conn, sess *session.Session, log *zap.Logger) {
	defer func() { _ = conn.Close() }()

	for msg := range sess.Out() {
		data, err := protocol.EncodeServer(msg)
		if err != nil {
			log.Error("failed to encode server message", zap.Error(err))
			continue
		}

		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
			log.Warn("websocket write failed", zap.Error(err))
			sess.Close()
			// Keep draining so the session can finish its teardown.
			for range sess.Out() {
			}
			return
		}
	}

	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	log.Info("websocket closed")
}
