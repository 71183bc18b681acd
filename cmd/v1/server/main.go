package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/driftlab/roomrelay/internal/v1/auth"
	"github.com/driftlab/roomrelay/internal/v1/config"
	"github.com/driftlab/roomrelay/internal/v1/logging"
	"github.com/driftlab/roomrelay/internal/v1/presence"
	"github.com/driftlab/roomrelay/internal/v1/ratelimit"
	"github.com/driftlab/roomrelay/internal/v1/room"
	"github.com/driftlab/roomrelay/internal/v1/session"
	"github.com/driftlab/roomrelay/internal/v1/tracing"
	"github.com/driftlab/roomrelay/internal/v1/transport"
)

func main() {
	// Load .env file for local development.
	// Try multiple paths to handle different ways of running the app
	envPaths := []string{".env", "../../../.env", "../../.env"}
	var envLoaded bool

	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			slog.Info("Loaded environment from", "path", path)
			envLoaded = true
			break
		}
	}

	if !envLoaded {
		slog.Warn("No .env file found in any expected location, relying on environment variables")
	}

	// Validate environment variables before starting the server
	cfg, err := config.ValidateEnv()
	if err != nil {
		slog.Error("Environment validation failed", "error", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.DevelopmentMode); err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}

	if cfg.DevelopmentMode {
		slog.Info("Running in DEVELOPMENT MODE")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Tracing (Optional) ---
	if cfg.OtelEnabled {
		tp, err := tracing.InitTracer(ctx, "roomrelay", cfg.OtelCollector)
		if err != nil {
			slog.Error("Failed to initialize tracer", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				slog.Error("Failed to shut down tracer", "error", err)
			}
		}()
		slog.Info("✅ Tracing initialized", "collector", cfg.OtelCollector)
	}

	// --- Redis Presence Mirror (Optional) ---
	var presenceSvc *presence.Service
	if cfg.RedisEnabled {
		presenceSvc, err = presence.NewService(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			slog.Error("Failed to connect to Redis, running in single-instance mode", "error", err)
			presenceSvc = nil // Fallback to single-instance mode
		} else {
			slog.Info("✅ Redis presence mirror initialized", "addr", cfg.RedisAddr)
		}
	} else {
		slog.Info("Running in single-instance mode (Redis disabled)")
	}

	// --- Rate Limiter ---
	// Disabled in development mode; a nil limiter allows everything.
	var limiter *ratelimit.ConnLimiter
	if !cfg.DevelopmentMode {
		limiter, err = ratelimit.NewConnLimiter(cfg.RateLimitConnIP, presenceSvc.Client())
		if err != nil {
			slog.Error("Failed to create rate limiter", "error", err)
			os.Exit(1)
		}
	}

	// --- Actor Registries ---
	// The interface stays nil in single-instance mode so room actors
	// skip presence dispatch entirely.
	var roomPresence room.Presence
	if presenceSvc != nil {
		roomPresence = presenceSvc
	}
	rooms := room.NewRegistry(roomPresence)
	players := session.NewPlayerRegistry()

	deps := transport.Deps{
		Rooms:   rooms,
		Players: players,
		Auth:    auth.Config{EnableBearer: cfg.BearerEnabled, Bearer: cfg.Bearer},
		Limiter: limiter,
	}

	origins := auth.GetAllowedOrigins(cfg.AllowedOrigins, []string{"http://localhost:3000"})

	srv := transport.NewServer(cfg, deps, presenceSvc, origins)
	slog.Info("Server starting", "protocol", cfg.Protocol, "addr", cfg.ListenAddr)
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}

	// Close Redis connection if it was initialized
	if presenceSvc != nil {
		if err := presenceSvc.Close(); err != nil {
			slog.Error("Failed to close Redis connection:", "error", err)
		} else {
			slog.Info("Redis connection closed")
		}
	}

	slog.Info("Server exiting")
}
