package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds validated environment configuration
type Config struct {
	// Required variables
	Protocol   string
	ListenAddr string

	// Optional variables with defaults
	OpsAddr  string
	GoEnv    string
	LogLevel string

	// Auth
	BearerEnabled bool
	Bearer        string

	// TLS (TCP and gRPC listeners)
	TLSEnabled  bool
	TLSCertFile string
	TLSKeyFile  string

	// Presence mirror
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string

	// Misc
	DevelopmentMode bool
	AllowedOrigins  string
	OtelEnabled     bool
	OtelCollector   string

	// Rate Limits
	RateLimitConnIP string
}

// Transport protocols accepted for PROTOCOL.
const (
	ProtocolWebSocket = "websocket"
	ProtocolTCP       = "tcp"
	ProtocolGRPC      = "grpc"
)

// ValidateEnv validates all required environment variables and returns a Config object
// Returns an error if any required variable is missing or invalid
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errors []string

	// Required: PROTOCOL (websocket, tcp, or grpc)
	cfg.Protocol = strings.ToLower(os.Getenv("PROTOCOL"))
	switch cfg.Protocol {
	case "":
		errors = append(errors, "PROTOCOL is required (websocket, tcp, or grpc)")
	case ProtocolWebSocket, ProtocolTCP, ProtocolGRPC:
	default:
		errors = append(errors, fmt.Sprintf("PROTOCOL must be websocket, tcp, or grpc (got '%s')", cfg.Protocol))
	}

	// Required: LISTEN_ADDR (format: host:port or :port)
	cfg.ListenAddr = os.Getenv("LISTEN_ADDR")
	if cfg.ListenAddr == "" {
		errors = append(errors, "LISTEN_ADDR is required")
	} else if !isValidListenAddr(cfg.ListenAddr) {
		errors = append(errors, fmt.Sprintf("LISTEN_ADDR must be in format 'host:port' or ':port' (got '%s')", cfg.ListenAddr))
	}

	// Optional: OPS_ADDR for metrics and health (defaults to :9090)
	cfg.OpsAddr = getEnvOrDefault("OPS_ADDR", ":9090")
	if !isValidListenAddr(cfg.OpsAddr) {
		errors = append(errors, fmt.Sprintf("OPS_ADDR must be in format 'host:port' or ':port' (got '%s')", cfg.OpsAddr))
	}

	// Conditional: AUTH_BEARER (required if AUTH_BEARER_ENABLED=true)
	cfg.BearerEnabled = os.Getenv("AUTH_BEARER_ENABLED") == "true"
	if cfg.BearerEnabled {
		cfg.Bearer = os.Getenv("AUTH_BEARER")
		if cfg.Bearer == "" {
			errors = append(errors, "AUTH_BEARER is required when AUTH_BEARER_ENABLED=true")
		} else if len(cfg.Bearer) < 16 {
			errors = append(errors, fmt.Sprintf("AUTH_BEARER must be at least 16 characters (got %d)", len(cfg.Bearer)))
		}
	}

	// Conditional: TLS_CERT_FILE and TLS_KEY_FILE (required if TLS_ENABLED=true)
	cfg.TLSEnabled = os.Getenv("TLS_ENABLED") == "true"
	if cfg.TLSEnabled {
		cfg.TLSCertFile = os.Getenv("TLS_CERT_FILE")
		cfg.TLSKeyFile = os.Getenv("TLS_KEY_FILE")
		if cfg.TLSCertFile == "" {
			errors = append(errors, "TLS_CERT_FILE is required when TLS_ENABLED=true")
		}
		if cfg.TLSKeyFile == "" {
			errors = append(errors, "TLS_KEY_FILE is required when TLS_ENABLED=true")
		}
		if cfg.Protocol == ProtocolWebSocket {
			errors = append(errors, "TLS_ENABLED applies to tcp and grpc only; terminate TLS for websocket at the ingress")
		}
	}

	// Conditional: REDIS_ADDR (required if REDIS_ENABLED=true)
	cfg.RedisEnabled = os.Getenv("REDIS_ENABLED") == "true"
	if cfg.RedisEnabled {
		cfg.RedisAddr = os.Getenv("REDIS_ADDR")
		if cfg.RedisAddr == "" {
			// Default to localhost:6379 if not specified
			cfg.RedisAddr = "localhost:6379"
			slog.Warn("REDIS_ADDR not set, using default", "addr", cfg.RedisAddr)
		} else if !isValidHostPort(cfg.RedisAddr) {
			errors = append(errors, fmt.Sprintf("REDIS_ADDR must be in format 'host:port' (got '%s')", cfg.RedisAddr))
		}
		cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	}

	// Optional: GO_ENV (defaults to "production")
	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")

	// Optional: LOG_LEVEL (defaults to "info")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.DevelopmentMode = os.Getenv("DEVELOPMENT_MODE") == "true"
	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")

	cfg.OtelEnabled = os.Getenv("OTEL_ENABLED") == "true"
	if cfg.OtelEnabled {
		cfg.OtelCollector = os.Getenv("OTEL_COLLECTOR_ADDR")
		if cfg.OtelCollector == "" {
			errors = append(errors, "OTEL_COLLECTOR_ADDR is required when OTEL_ENABLED=true")
		} else if !isValidHostPort(cfg.OtelCollector) {
			errors = append(errors, fmt.Sprintf("OTEL_COLLECTOR_ADDR must be in format 'host:port' (got '%s')", cfg.OtelCollector))
		}
	}

	// Rate Limits (Defaults: M = Minute, H = Hour)
	cfg.RateLimitConnIP = getEnvOrDefault("RATE_LIMIT_CONN_IP", "60-M")

	// If there are validation errors, return them
	if len(errors) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	// Log validated configuration (with secrets redacted)
	logValidatedConfig(cfg)

	return cfg, nil
}

// isValidHostPort checks if a string is in the format "host:port"
func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}

	// Validate port is a number
	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return false
	}

	// Validate host is not empty
	if parts[0] == "" {
		return false
	}

	return true
}

// isValidListenAddr is isValidHostPort with the host part optional,
// so ":8080" binds every interface.
func isValidListenAddr(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}
	port, err := strconv.Atoi(parts[1])
	return err == nil && port >= 1 && port <= 65535
}

// logValidatedConfig logs the validated configuration with secrets redacted
func logValidatedConfig(cfg *Config) {
	slog.Info("✅ Environment configuration validated successfully")
	slog.Info("Configuration",
		"protocol", cfg.Protocol,
		"listen_addr", cfg.ListenAddr,
		"ops_addr", cfg.OpsAddr,
		"bearer_enabled", cfg.BearerEnabled,
		"bearer", redactSecret(cfg.Bearer),
		"tls_enabled", cfg.TLSEnabled,
		"redis_enabled", cfg.RedisEnabled,
		"redis_addr", cfg.RedisAddr,
		"go_env", cfg.GoEnv,
		"log_level", cfg.LogLevel,
		"development_mode", cfg.DevelopmentMode,
		"rate_limit_conn_ip", cfg.RateLimitConnIP,
	)
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// redactSecret redacts a secret by showing only the first 8 characters
func redactSecret(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:8] + "***"
}
