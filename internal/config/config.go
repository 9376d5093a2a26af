package config

import "time"

// Config is everything the client reads at startup. Values come from
// environment variables, falling back to an optional YAML file, then to
// built-in defaults.
type Config interface {
	EnvConfig
	ClientConfig
}

type EnvConfig interface {
	GetAppName() string
	GetLogLevel() string
	GetEmail() string
	GetPassword() string
}

type ClientConfig interface {
	GetAPIBaseURL() string
	GetRealtimeURL() string
	GetStateDir() string
	GetStateBackend() string
	GetHTTPTimeout() time.Duration
}

type mainConfig struct {
	EnvVars
}

// New loads the optional config file and returns the combined config.
func New() Config {
	return mainConfig{EnvVars{overlay: loadOverlay()}}
}
