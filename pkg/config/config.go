// Package config loads server settings from the environment and an optional
// YAML manifest.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"

	"mcp-toolserver/pkg/telemetry"
)

// ServerConfig holds the server identity and transport settings
type ServerConfig struct {
	Name              string `env:"TOOLSERVER_NAME,default=mcp-toolserver"`
	Version           string `env:"TOOLSERVER_VERSION,default=0.1.0"`
	Transport         string `env:"TOOLSERVER_TRANSPORT,default=envelope"`
	ListenAddr        string `env:"TOOLSERVER_LISTEN_ADDR,default=127.0.0.1:7070"`
	MetricsAddr       string `env:"TOOLSERVER_METRICS_ADDR"`
	LogLevel          string `env:"TOOLSERVER_LOG_LEVEL,default=INFO"`
	Manifest          string `env:"TOOLSERVER_MANIFEST"`
	Handlers          string `env:"TOOLSERVER_HANDLERS,default=system"`
	ValidateArguments bool   `env:"TOOLSERVER_VALIDATE_ARGUMENTS,default=true"`
	WatchFiles        bool   `env:"TOOLSERVER_WATCH_FILES,default=true"`
}

// DockerConfig configures the docker handler set
type DockerConfig struct {
	Binary         string        `env:"DOCKER_BINARY,default=docker"`
	InspectTimeout time.Duration `env:"DOCKER_INSPECT_TIMEOUT,default=30s"`
	PullTimeout    time.Duration `env:"DOCKER_PULL_TIMEOUT,default=300s"`
}

// GitHubConfig configures the github handler set
type GitHubConfig struct {
	Token        string        `env:"GITHUB_TOKEN"`
	APIURL       string        `env:"GITHUB_API_URL,default=https://api.github.com"`
	Timeout      time.Duration `env:"GITHUB_TIMEOUT,default=30s"`
	CloneTimeout time.Duration `env:"GITHUB_CLONE_TIMEOUT,default=300s"`
	GitBinary    string        `env:"GIT_BINARY,default=git"`
	RateLimit    float64       `env:"GITHUB_RATE_LIMIT,default=10"`
	RateBurst    int           `env:"GITHUB_RATE_BURST,default=5"`
}

// Config is the complete server configuration
type Config struct {
	Server    ServerConfig
	Docker    DockerConfig
	GitHub    GitHubConfig
	Telemetry telemetry.Config
}

// Load decodes the configuration from the environment
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	return &cfg, nil
}

// HandlerSets returns the enabled handler set names in order, without duplicates
func (c *Config) HandlerSets() []string {
	return SplitList(c.Server.Handlers)
}

// SetHandlerSets replaces the enabled handler sets
func (c *Config) SetHandlerSets(names []string) {
	c.Server.Handlers = strings.Join(names, ",")
}

// Validate checks values that cannot be expressed as defaults
func (c *Config) Validate() error {
	switch c.Server.Transport {
	case TransportEnvelope, TransportMCP, TransportTCP:
	default:
		return fmt.Errorf("unknown transport %q (want %s, %s or %s)",
			c.Server.Transport, TransportEnvelope, TransportMCP, TransportTCP)
	}
	if c.Server.Transport == TransportTCP && c.Server.ListenAddr == "" {
		return fmt.Errorf("tcp transport requires a listen address")
	}
	for _, name := range c.HandlerSets() {
		switch name {
		case HandlerSystem, HandlerDocker, HandlerGitHub:
		default:
			return fmt.Errorf("unknown handler set %q", name)
		}
	}
	if c.Server.Name == "" {
		return fmt.Errorf("server name cannot be empty")
	}
	return nil
}

// SplitList parses a comma separated list, trimming blanks and duplicates
func SplitList(s string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" || seen[part] {
			continue
		}
		seen[part] = true
		out = append(out, part)
	}
	return out
}
