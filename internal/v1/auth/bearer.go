// Package auth validates the shared bearer token presented at login.
package auth

import (
	"crypto/subtle"
	"strings"

	"github.com/driftlab/roomrelay/internal/v1/protocol"
)

// Config holds the process-wide bearer settings.
type Config struct {
	EnableBearer bool
	Bearer       string
}

// Authorize checks a login's auth payload against the configured
// bearer. With bearer auth disabled every login is accepted. With it
// enabled, a missing auth config, a missing bearer variant, and a
// token mismatch are all unauthorized.
func (c Config) Authorize(ac *protocol.AuthConfig) bool {
	if !c.EnableBearer {
		return true
	}
	if ac == nil || ac.Bearer == nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(ac.Bearer.Token), []byte(c.Bearer)) == 1
}

// GetAllowedOrigins splits a comma-separated origin allow-list,
// falling back to defaults when the value is empty.
func GetAllowedOrigins(value string, defaults []string) []string {
	if strings.TrimSpace(value) == "" {
		return defaults
	}
	parts := strings.Split(value, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		return defaults
	}
	return origins
}
