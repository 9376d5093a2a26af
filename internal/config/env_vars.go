package config

import (
	"os"
	"time"
)

const (
	apiURLEnvVar       = "ORGDESK_API_URL"
	realtimeURLEnvVar  = "ORGDESK_WS_URL"
	stateDirEnvVar     = "ORGDESK_STATE_DIR"
	stateBackendEnvVar = "ORGDESK_STATE_BACKEND"
	httpTimeoutEnvVar  = "ORGDESK_HTTP_TIMEOUT"
	logLevelEnvVar     = "ORGDESK_LOG_LEVEL"
	emailEnvVar        = "ORGDESK_EMAIL"
	passwordEnvVar     = "ORGDESK_PASSWORD"
)

// StateBackendFile and StateBackendSQLite are the supported session
// store backends.
const (
	StateBackendFile   = "file"
	StateBackendSQLite = "sqlite"
)

type EnvVars struct {
	overlay overlay
}

var _ Config = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv("ORGDESK_APP_NAME", "OrgDesk Client")
}

func (e EnvVars) GetAPIBaseURL() string {
	return GetEnv(apiURLEnvVar, withDefault(e.overlay.APIBaseURL, "http://localhost:3000"))
}

func (e EnvVars) GetRealtimeURL() string {
	return GetEnv(realtimeURLEnvVar, withDefault(e.overlay.RealtimeURL, "ws://localhost:3000/ws"))
}

func (e EnvVars) GetStateDir() string {
	return GetEnv(stateDirEnvVar, withDefault(e.overlay.StateDir, "./state"))
}

func (e EnvVars) GetStateBackend() string {
	backend := GetEnv(stateBackendEnvVar, withDefault(e.overlay.StateBackend, StateBackendFile))
	if backend != StateBackendFile && backend != StateBackendSQLite {
		return StateBackendFile
	}
	return backend
}

func (e EnvVars) GetHTTPTimeout() time.Duration {
	raw := GetEnv(httpTimeoutEnvVar, e.overlay.HTTPTimeout)
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	return 30 * time.Second
}

func (e EnvVars) GetLogLevel() string {
	return GetEnv(logLevelEnvVar, withDefault(e.overlay.LogLevel, "info"))
}

func (EnvVars) GetEmail() string {
	return GetEnv(emailEnvVar, "")
}

func (EnvVars) GetPassword() string {
	return GetEnv(passwordEnvVar, "")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

func withDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}
