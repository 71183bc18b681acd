// Package transport adapts the session actor to the three supported
// wire protocols: WebSocket, length-prefixed TCP, and gRPC streaming.
// Every adapter follows the same shape: a reader feeds decoded client
// messages into the session, a writer drains the session's output, and
// the session closing its output stream is the one signal that the
// connection must be torn down.
package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/driftlab/roomrelay/internal/v1/auth"
	"github.com/driftlab/roomrelay/internal/v1/logging"
	"github.com/driftlab/roomrelay/internal/v1/ratelimit"
	"github.com/driftlab/roomrelay/internal/v1/room"
	"github.com/driftlab/roomrelay/internal/v1/session"
)

// Deps bundles what every transport needs to run sessions.
type Deps struct {
	Rooms   *room.Registry
	Players *session.PlayerRegistry
	Auth    auth.Config
	Limiter *ratelimit.ConnLimiter
}

// NewSession spawns a session actor for one accepted connection.
func (d Deps) NewSession() *session.Session {
	return session.New(d.Rooms, d.Players, d.Auth)
}

// AllowConn applies the per-IP connection limit. addr is the remote
// address as reported by the transport; a bare IP is accepted too.
func (d Deps) AllowConn(ctx context.Context, addr string) bool {
	ip := addr
	if host, _, err := net.SplitHostPort(addr); err == nil {
		ip = host
	}
	return d.Limiter.AllowConn(ctx, ip)
}

// validateOrigin checks if the request origin is in the allowed list.
func validateOrigin(r *http.Request, allowedOrigins []string) error {
	origin := r.Header.Get("Origin")
	if origin == "" {
		logging.GetLogger().Debug("No origin header - allowing non-browser client")
		return nil // Allow non-browser clients (e.g., for testing)
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		logging.Warn(context.Background(), "Invalid origin URL", zap.String("origin", origin), zap.Error(err))
		return fmt.Errorf("invalid origin URL: %w", err)
	}

	for _, allowed := range allowedOrigins {
		allowedURL, err := url.Parse(allowed)
		if err != nil {
			continue
		}
		// Check if the scheme and host match
		if originURL.Scheme == allowedURL.Scheme && originURL.Host == allowedURL.Host {
			return nil
		}
	}

	logging.Warn(context.Background(), "Origin not in allowed list", zap.String("origin", origin), zap.Strings("allowedOrigins", allowedOrigins))
	return fmt.Errorf("origin not allowed: %s", origin)
}
