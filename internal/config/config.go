// SPDX-License-Identifier: MIT

// Package config loads the daemon configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"
)

// AppConfig holds the full daemon configuration.
// Precedence is ENV > defaults; there is no config file. The service keeps no
// server-side state beyond the shared store and the stream metadata database.
type AppConfig struct {
	// HTTP
	Listen         string // listen address for the HTTP server
	HostURL        string // public base URL, used to build fallback video URLs
	TrustedProxies string // CSV of CIDRs allowed to set X-Forwarded-For

	// Shared store
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Session codec
	SecretKey string // required; derives the AEAD key for session tokens

	// Gating
	EnableRateLimit bool
	PublicInstance  bool   // public instances never enforce the API password
	APIPassword     string // optional; enforced on AuthRequired routes when private

	// Stream metadata store
	StreamDBPath string

	// Fallback videos served under /static/
	StaticDir string

	// Worker recycling
	MaxResolutions int // resolutions before a controlled restart is requested (0 = never)

	// Logging
	LogLevel   string
	LogService string

	// Timeouts
	ShutdownTimeout time.Duration
}

// Load reads configuration from the environment.
func Load() AppConfig {
	return AppConfig{
		Listen:          ParseString("STREAMGATE_LISTEN", ":8080"),
		HostURL:         ParseString("STREAMGATE_HOST_URL", "http://localhost:8080"),
		TrustedProxies:  ParseString("STREAMGATE_TRUSTED_PROXIES", ""),
		RedisAddr:       ParseString("STREAMGATE_REDIS_ADDR", "localhost:6379"),
		RedisPassword:   ParseString("STREAMGATE_REDIS_PASSWORD", ""),
		RedisDB:         ParseInt("STREAMGATE_REDIS_DB", 0),
		SecretKey:       ParseString("STREAMGATE_SECRET_KEY", ""),
		EnableRateLimit: ParseBool("STREAMGATE_ENABLE_RATE_LIMIT", true),
		PublicInstance:  ParseBool("STREAMGATE_PUBLIC_INSTANCE", false),
		APIPassword:     ParseString("STREAMGATE_API_PASSWORD", ""),
		StreamDBPath:    ParseString("STREAMGATE_STREAM_DB", "streams.db"),
		StaticDir:       ParseString("STREAMGATE_STATIC_DIR", "static"),
		MaxResolutions:  ParseInt("STREAMGATE_MAX_RESOLUTIONS", 0),
		LogLevel:        ParseString("STREAMGATE_LOG_LEVEL", "info"),
		LogService:      ParseString("STREAMGATE_LOG_SERVICE", "streamgate"),
		ShutdownTimeout: ParseDuration("STREAMGATE_SHUTDOWN_TIMEOUT", 15*time.Second),
	}
}

// Validate reports configuration errors that must fail startup.
func (c AppConfig) Validate() error {
	if c.SecretKey == "" {
		return errors.New("STREAMGATE_SECRET_KEY is required")
	}
	if c.RedisAddr == "" {
		return errors.New("STREAMGATE_REDIS_ADDR must not be empty")
	}
	if c.MaxResolutions < 0 {
		return fmt.Errorf("STREAMGATE_MAX_RESOLUTIONS must be >= 0, got %d", c.MaxResolutions)
	}
	return nil
}
