package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

const overlayPathEnvVar = "ORGDESK_CONFIG"

// overlay mirrors the optional YAML config file. Environment variables
// take precedence over it.
type overlay struct {
	APIBaseURL   string `yaml:"api_base_url"`
	RealtimeURL  string `yaml:"realtime_url"`
	StateDir     string `yaml:"state_dir"`
	StateBackend string `yaml:"state_backend"`
	HTTPTimeout  string `yaml:"http_timeout"`
	LogLevel     string `yaml:"log_level"`
}

// loadOverlay reads the file named by ORGDESK_CONFIG, falling back to
// ./orgdesk.yaml. A missing or unreadable file yields an empty overlay.
func loadOverlay() overlay {
	path := os.Getenv(overlayPathEnvVar)
	if path == "" {
		path = "orgdesk.yaml"
	}

	var o overlay
	data, err := os.ReadFile(path)
	if err != nil {
		return o
	}
	if err := yaml.Unmarshal(data, &o); err != nil {
		return overlay{}
	}
	return o
}
