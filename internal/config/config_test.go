package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/orgdesk/go-client/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range []string{
		"ORGDESK_API_URL", "ORGDESK_WS_URL", "ORGDESK_STATE_DIR",
		"ORGDESK_STATE_BACKEND", "ORGDESK_HTTP_TIMEOUT", "ORGDESK_LOG_LEVEL",
		"ORGDESK_EMAIL", "ORGDESK_PASSWORD", "ORGDESK_CONFIG",
	} {
		t.Setenv(v, "")
	}
}

func writeOverlay(t *testing.T, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orgdesk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("ORGDESK_CONFIG", path)
}

func TestConfig_Defaults(t *testing.T) {
	clearEnv(t)
	c := config.New()

	require.Equal(t, "http://localhost:3000", c.GetAPIBaseURL())
	require.Equal(t, "ws://localhost:3000/ws", c.GetRealtimeURL())
	require.Equal(t, "./state", c.GetStateDir())
	require.Equal(t, config.StateBackendFile, c.GetStateBackend())
	require.Equal(t, 30*time.Second, c.GetHTTPTimeout())
	require.Equal(t, "info", c.GetLogLevel())
	require.Empty(t, c.GetEmail())
	require.Empty(t, c.GetPassword())
}

func TestConfig_OverlayFile(t *testing.T) {
	clearEnv(t)
	writeOverlay(t, `
api_base_url: https://api.orgdesk.example
realtime_url: wss://api.orgdesk.example/ws
state_backend: sqlite
http_timeout: 10s
log_level: debug
`)
	c := config.New()

	require.Equal(t, "https://api.orgdesk.example", c.GetAPIBaseURL())
	require.Equal(t, "wss://api.orgdesk.example/ws", c.GetRealtimeURL())
	require.Equal(t, config.StateBackendSQLite, c.GetStateBackend())
	require.Equal(t, 10*time.Second, c.GetHTTPTimeout())
	require.Equal(t, "debug", c.GetLogLevel())
}

func TestConfig_EnvBeatsOverlay(t *testing.T) {
	clearEnv(t)
	writeOverlay(t, "api_base_url: https://from-file.example\n")
	t.Setenv("ORGDESK_API_URL", "https://from-env.example")

	c := config.New()
	require.Equal(t, "https://from-env.example", c.GetAPIBaseURL())
}

func TestConfig_UnknownBackendFallsBackToFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("ORGDESK_STATE_BACKEND", "redis")

	c := config.New()
	require.Equal(t, config.StateBackendFile, c.GetStateBackend())
}

func TestConfig_BadTimeoutFallsBackToDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("ORGDESK_HTTP_TIMEOUT", "soon")

	c := config.New()
	require.Equal(t, 30*time.Second, c.GetHTTPTimeout())
}

func TestConfig_MissingOverlayIsEmpty(t *testing.T) {
	clearEnv(t)
	t.Setenv("ORGDESK_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))

	c := config.New()
	require.Equal(t, "http://localhost:3000", c.GetAPIBaseURL())
}
