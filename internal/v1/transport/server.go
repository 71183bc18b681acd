package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/driftlab/roomrelay/internal/v1/config"
	"github.com/driftlab/roomrelay/internal/v1/health"
	"github.com/driftlab/roomrelay/internal/v1/logging"
	"github.com/driftlab/roomrelay/internal/v1/presence"
)

const shutdownTimeout = 10 * time.Second

// Server runs the configured transport listener plus the ops HTTP
// server (metrics, health probes, room inspection).
type Server struct {
	cfg      *config.Config
	deps     Deps
	presence *presence.Service
	origins  []string
}

// NewServer assembles the serving stack. presenceSvc may be nil in
// single-instance mode.
func NewServer(cfg *config.Config, deps Deps, presenceSvc *presence.Service, origins []string) *Server {
	return &Server{
		cfg:      cfg,
		deps:     deps,
		presence: presenceSvc,
		origins:  origins,
	}
}

// Run blocks until ctx is cancelled or a listener fails.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, 2)

	go func() {
		errs <- s.runOps(ctx)
	}()

	go func() {
		switch s.cfg.Protocol {
		case config.ProtocolWebSocket:
			errs <- s.runWebSocket(ctx)
		case config.ProtocolTCP:
			errs <- s.runTCP(ctx)
		case config.ProtocolGRPC:
			errs <- s.runGRPC(ctx)
		default:
			errs <- fmt.Errorf("unknown protocol %q", s.cfg.Protocol)
		}
	}()

	// The first listener to fail (or a clean cancel) takes the whole
	// server down.
	err := <-errs
	cancel()
	if second := <-errs; err == nil {
		err = second
	}
	return err
}

// opsRouter exposes the operational surface shared by every protocol.
func (s *Server) opsRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins: s.origins,
		AllowMethods: []string{"GET"},
		MaxAge:       12 * time.Hour,
	}))

	h := health.NewHandler(s.presence, health.Stats{
		Sessions: s.deps.Players.Len,
		Rooms:    s.deps.Rooms.Len,
	})
	r.GET("/health/live", h.Liveness)
	r.GET("/health/ready", h.Readiness)
	r.GET("/health/status", h.Status)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Mirrored membership, readable across instances when Redis is on.
	r.GET("/rooms/:id/members", func(c *gin.Context) {
		members, err := s.presence.RoomMembers(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "presence unavailable"})
			return
		}
		if members == nil {
			members = []string{}
		}
		c.JSON(http.StatusOK, gin.H{"roomId": c.Param("id"), "members": members})
	})

	return r
}

func (s *Server) runOps(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.OpsAddr,
		Handler: s.opsRouter(),
	}
	logging.Info(ctx, "ops server started", zap.String("addr", s.cfg.OpsAddr))
	return runHTTP(ctx, srv)
}

func (s *Server) runWebSocket(ctx context.Context) error {
	r := gin.New()
	r.Use(gin.Recovery())
	NewWebSocketServer(s.deps, s.origins).RegisterRoutes(r)

	srv := &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: r,
	}
	logging.Info(ctx, "websocket server started", zap.String("addr", s.cfg.ListenAddr))
	return runHTTP(ctx, srv)
}

func (s *Server) runTCP(ctx context.Context) error {
	tlsConfig, err := s.loadTLS()
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("tcp listen: %w", err)
	}
	return NewTCPServer(s.deps, tlsConfig).Serve(ctx, lis)
}

func (s *Server) runGRPC(ctx context.Context) error {
	tlsConfig, err := s.loadTLS()
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	srv := NewGRPCServer(s.deps, tlsConfig)
	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()

	logging.Info(ctx, "grpc server started", zap.String("addr", s.cfg.ListenAddr))
	return srv.Serve(lis)
}

func (s *Server) loadTLS() (*tls.Config, error) {
	if !s.cfg.TLSEnabled {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
	if err != nil {
		return nil, fmt.Errorf("load TLS keypair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// runHTTP serves until ctx is cancelled, then shuts down gracefully.
func runHTTP(ctx context.Context, srv *http.Server) error {
	done := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		done <- srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return <-done
}
