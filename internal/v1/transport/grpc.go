package transport

import (
	"crypto/tls"
	"encoding/json"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/driftlab/roomrelay/internal/v1/logging"
	"github.com/driftlab/roomrelay/internal/v1/metrics"
	"github.com/driftlab/roomrelay/internal/v1/protocol"
)

// jsonCodec carries the JSON envelopes over gRPC so all three
// transports share one wire schema. Forced on the server; clients must
// request the same codec via the content-subtype.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return "json" }

// relayService implements the single bidirectional Start stream.
type relayService struct {
	deps Deps
}

// relayServiceDesc is the hand-rolled service descriptor for
// relay.v1.Relay. The service carries JSON envelopes, so there is no
// generated stub to register.
var relayServiceDesc = grpc.ServiceDesc{
	ServiceName: "relay.v1.Relay",
	HandlerType: (*any)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Start",
			Handler:       startHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
}

func startHandler(srv any, stream grpc.ServerStream) error {
	return srv.(*relayService).start(stream)
}

// NewGRPCServer builds a gRPC server exposing the relay stream.
// tlsConfig may be nil for plaintext listeners.
func NewGRPCServer(deps Deps, tlsConfig *tls.Config) *grpc.Server {
	opts := []grpc.ServerOption{
		grpc.ForceServerCodec(jsonCodec{}),
	}
	if tlsConfig != nil {
		opts = append(opts, grpc.Creds(credentials.NewTLS(tlsConfig)))
	}

	srv := grpc.NewServer(opts...)
	srv.RegisterService(&relayServiceDesc, &relayService{deps: deps})
	return srv
}

// start runs one session over a bidi stream. The client half feeds the
// session; the stream ends when the session terminates.
func (s *relayService) start(stream grpc.ServerStream) error {
	ctx := stream.Context()

	remoteAddr := "unknown"
	if p, ok := peer.FromContext(ctx); ok {
		remoteAddr = p.Addr.String()
	}

	if !s.deps.AllowConn(ctx, remoteAddr) {
		metrics.ConnectionsRejected.WithLabelValues("rate_limited").Inc()
		return status.Error(codes.ResourceExhausted, "too many connections from this IP")
	}

	sess := s.deps.NewSession()
	log := logging.GetLogger().With(
		zap.String("connId", sess.ConnID()),
		zap.String("remoteAddr", remoteAddr))
	log.Info("grpc stream connected")

	// Reader: client messages into the session. Recv fails once the
	// client goes away or the stream context is cancelled.
	go func() {
		defer sess.Close()
		for {
			var msg protocol.ClientMessage
			if err := stream.RecvMsg(&msg); err != nil {
				return
			}
			if err := protocol.ValidateClient(&msg); err != nil {
				log.Warn("invalid client message, closing", zap.Error(err))
				return
			}
			if !sess.Submit(&msg) {
				return
			}
		}
	}()

	// Writer: session output onto the stream until the session ends.
	for msg := range sess.Out() {
		if err := stream.SendMsg(msg); err != nil {
			log.Warn("grpc send failed", zap.Error(err))
			sess.Close()
			for range sess.Out() {
			}
			return err
		}
	}

	log.Info("grpc stream closed")
	return nil
}
