package config

import (
	"os"
	"strings"
	"testing"
)

// setupTestEnv sets up environment variables for testing
func setupTestEnv(t *testing.T) func() {
	keys := []string{
		"PROTOCOL",
		"LISTEN_ADDR",
		"OPS_ADDR",
		"AUTH_BEARER_ENABLED",
		"AUTH_BEARER",
		"TLS_ENABLED",
		"TLS_CERT_FILE",
		"TLS_KEY_FILE",
		"REDIS_ENABLED",
		"REDIS_ADDR",
		"GO_ENV",
		"LOG_LEVEL",
		"OTEL_ENABLED",
		"OTEL_COLLECTOR_ADDR",
		"RATE_LIMIT_CONN_IP",
	}

	// Save original env vars
	origVars := make(map[string]string, len(keys))
	for _, key := range keys {
		origVars[key] = os.Getenv(key)
		os.Unsetenv(key)
	}

	// Return cleanup function
	return func() {
		for key, val := range origVars {
			if val != "" {
				os.Setenv(key, val)
			} else {
				os.Unsetenv(key)
			}
		}
	}
}

func TestValidateEnv_ValidConfiguration(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("PROTOCOL", "websocket")
	os.Setenv("LISTEN_ADDR", ":8080")
	os.Setenv("REDIS_ENABLED", "false")

	cfg, err := ValidateEnv()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.Protocol != ProtocolWebSocket {
		t.Errorf("Expected PROTOCOL to be 'websocket', got '%s'", cfg.Protocol)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("Expected LISTEN_ADDR to be ':8080', got '%s'", cfg.ListenAddr)
	}
	if cfg.OpsAddr != ":9090" {
		t.Errorf("Expected OPS_ADDR to default to ':9090', got '%s'", cfg.OpsAddr)
	}
	if cfg.GoEnv != "production" {
		t.Errorf("Expected GO_ENV to default to 'production', got '%s'", cfg.GoEnv)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected LOG_LEVEL to default to 'info', got '%s'", cfg.LogLevel)
	}
	if cfg.RateLimitConnIP != "60-M" {
		t.Errorf("Expected RATE_LIMIT_CONN_IP to default to '60-M', got '%s'", cfg.RateLimitConnIP)
	}
}

func TestValidateEnv_MissingProtocol(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("LISTEN_ADDR", ":8080")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("Expected error for missing PROTOCOL, got nil")
	}
	if !strings.Contains(err.Error(), "PROTOCOL is required") {
		t.Errorf("Expected error message about PROTOCOL, got: %v", err)
	}
}

func TestValidateEnv_UnknownProtocol(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("PROTOCOL", "carrier-pigeon")
	os.Setenv("LISTEN_ADDR", ":8080")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("Expected error for unknown PROTOCOL, got nil")
	}
	if !strings.Contains(err.Error(), "PROTOCOL must be websocket, tcp, or grpc") {
		t.Errorf("Expected error message about PROTOCOL, got: %v", err)
	}
}

func TestValidateEnv_MissingListenAddr(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("PROTOCOL", "tcp")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("Expected error for missing LISTEN_ADDR, got nil")
	}
	if !strings.Contains(err.Error(), "LISTEN_ADDR is required") {
		t.Errorf("Expected error message about LISTEN_ADDR, got: %v", err)
	}
}

func TestValidateEnv_InvalidListenAddr(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("PROTOCOL", "tcp")
	os.Setenv("LISTEN_ADDR", "localhost:99999")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("Expected error for invalid LISTEN_ADDR, got nil")
	}
	if !strings.Contains(err.Error(), "LISTEN_ADDR must be in format") {
		t.Errorf("Expected error message about invalid LISTEN_ADDR, got: %v", err)
	}
}

func TestValidateEnv_BearerRequiredWhenEnabled(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("PROTOCOL", "websocket")
	os.Setenv("LISTEN_ADDR", ":8080")
	os.Setenv("AUTH_BEARER_ENABLED", "true")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("Expected error for missing AUTH_BEARER, got nil")
	}
	if !strings.Contains(err.Error(), "AUTH_BEARER is required") {
		t.Errorf("Expected error message about AUTH_BEARER, got: %v", err)
	}
}

func TestValidateEnv_ShortBearer(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("PROTOCOL", "websocket")
	os.Setenv("LISTEN_ADDR", ":8080")
	os.Setenv("AUTH_BEARER_ENABLED", "true")
	os.Setenv("AUTH_BEARER", "short")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("Expected error for short AUTH_BEARER, got nil")
	}
	if !strings.Contains(err.Error(), "must be at least 16 characters") {
		t.Errorf("Expected error message about AUTH_BEARER length, got: %v", err)
	}
}

func TestValidateEnv_TLSRequiresCertAndKey(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("PROTOCOL", "tcp")
	os.Setenv("LISTEN_ADDR", ":7000")
	os.Setenv("TLS_ENABLED", "true")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("Expected error for missing TLS files, got nil")
	}
	if !strings.Contains(err.Error(), "TLS_CERT_FILE is required") {
		t.Errorf("Expected error message about TLS_CERT_FILE, got: %v", err)
	}
	if !strings.Contains(err.Error(), "TLS_KEY_FILE is required") {
		t.Errorf("Expected error message about TLS_KEY_FILE, got: %v", err)
	}
}

func TestValidateEnv_TLSRejectedForWebSocket(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("PROTOCOL", "websocket")
	os.Setenv("LISTEN_ADDR", ":8080")
	os.Setenv("TLS_ENABLED", "true")
	os.Setenv("TLS_CERT_FILE", "/tmp/cert.pem")
	os.Setenv("TLS_KEY_FILE", "/tmp/key.pem")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("Expected error for TLS with websocket, got nil")
	}
	if !strings.Contains(err.Error(), "tcp and grpc only") {
		t.Errorf("Expected error message about TLS transport support, got: %v", err)
	}
}

func TestValidateEnv_InvalidRedisAddr(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("PROTOCOL", "grpc")
	os.Setenv("LISTEN_ADDR", ":50051")
	os.Setenv("REDIS_ENABLED", "true")
	os.Setenv("REDIS_ADDR", "invalid-format")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("Expected error for invalid REDIS_ADDR, got nil")
	}
	if !strings.Contains(err.Error(), "REDIS_ADDR must be in format 'host:port'") {
		t.Errorf("Expected error message about REDIS_ADDR format, got: %v", err)
	}
}

func TestValidateEnv_RedisDefaultAddr(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("PROTOCOL", "grpc")
	os.Setenv("LISTEN_ADDR", ":50051")
	os.Setenv("REDIS_ENABLED", "true")
	// Don't set REDIS_ADDR

	cfg, err := ValidateEnv()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("Expected REDIS_ADDR to default to 'localhost:6379', got '%s'", cfg.RedisAddr)
	}
}

func TestValidateEnv_OtelRequiresCollector(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("PROTOCOL", "websocket")
	os.Setenv("LISTEN_ADDR", ":8080")
	os.Setenv("OTEL_ENABLED", "true")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("Expected error for missing OTEL_COLLECTOR_ADDR, got nil")
	}
	if !strings.Contains(err.Error(), "OTEL_COLLECTOR_ADDR is required") {
		t.Errorf("Expected error message about OTEL_COLLECTOR_ADDR, got: %v", err)
	}
}

func TestRedactSecret(t *testing.T) {
	tests := []struct {
		name     string
		secret   string
		expected string
	}{
		{"Long secret", "this-is-a-very-long-secret-key", "this-is-***"},
		{"Short secret", "short", "***"},
		{"Exactly 8 chars", "12345678", "***"},
		{"9 chars", "123456789", "12345678***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := redactSecret(tt.secret)
			if result != tt.expected {
				t.Errorf("Expected '%s', got '%s'", tt.expected, result)
			}
		})
	}
}

func TestIsValidHostPort(t *testing.T) {
	tests := []struct {
		name     string
		addr     string
		expected bool
	}{
		{"Valid localhost", "localhost:8080", true},
		{"Valid IP", "127.0.0.1:3000", true},
		{"Valid hostname", "example.com:443", true},
		{"Missing port", "localhost", false},
		{"Missing host", ":8080", false},
		{"Invalid port", "localhost:99999", false},
		{"Non-numeric port", "localhost:abc", false},
		{"Multiple colons", "localhost:8080:9090", false},
		{"Empty string", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isValidHostPort(tt.addr)
			if result != tt.expected {
				t.Errorf("isValidHostPort('%s') = %v, expected %v", tt.addr, result, tt.expected)
			}
		})
	}
}

func TestIsValidListenAddr(t *testing.T) {
	tests := []struct {
		name     string
		addr     string
		expected bool
	}{
		{"Port only", ":8080", true},
		{"Host and port", "0.0.0.0:7000", true},
		{"Missing colon", "8080", false},
		{"Port out of range", ":70000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isValidListenAddr(tt.addr)
			if result != tt.expected {
				t.Errorf("isValidListenAddr('%s') = %v, expected %v", tt.addr, result, tt.expected)
			}
		})
	}
}
