// Package config holds server configuration with fixed defaults and
// environment overrides.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the chat server configuration.
type Config struct {
	// Port is the raw TCP listen port for WebSocket connections.
	Port int
	// HTTPPort is the listen port for the room CRUD API.
	HTTPPort int

	// NetworkDelay is the assumed round-trip bound.
	NetworkDelay time.Duration
	// HeartbeatInterval is the expected client heartbeat period.
	HeartbeatInterval time.Duration
	// MaxHeartbeatLoseCount is how many consecutive missed heartbeats are
	// tolerated before the connection is declared lost.
	MaxHeartbeatLoseCount int

	// RoomIdleTimeout is how long a room may stay empty before it is
	// deleted automatically.
	RoomIdleTimeout time.Duration

	// MessageRate limits inbound messages per second per connection.
	// Zero disables limiting.
	MessageRate float64
	// MessageBurst is the limiter burst size.
	MessageBurst int

	// Debug enables debug-level logging.
	Debug bool
}

// Default returns the fixed defaults.
func Default() Config {
	return Config{
		Port:                  8080,
		HTTPPort:              3000,
		NetworkDelay:          2 * time.Second,
		HeartbeatInterval:     5 * time.Second,
		MaxHeartbeatLoseCount: 3,
		RoomIdleTimeout:       time.Minute,
		MessageBurst:          8,
	}
}

// FromEnv loads configuration from environment variables, falling back to
// defaults for any missing or unparsable value.
func FromEnv() Config {
	cfg := Default()

	cfg.Port = envInt("CHAT_PORT", cfg.Port)
	cfg.HTTPPort = envInt("CHAT_HTTP_PORT", cfg.HTTPPort)
	cfg.NetworkDelay = envDurationMS("CHAT_NETWORK_DELAY_MS", cfg.NetworkDelay)
	cfg.HeartbeatInterval = envDurationMS("CHAT_HEARTBEAT_INTERVAL_MS", cfg.HeartbeatInterval)
	cfg.MaxHeartbeatLoseCount = envInt("CHAT_MAX_HEARTBEAT_LOSE", cfg.MaxHeartbeatLoseCount)
	cfg.RoomIdleTimeout = envDurationMS("CHAT_ROOM_IDLE_MS", cfg.RoomIdleTimeout)
	cfg.MessageBurst = envInt("CHAT_MESSAGE_BURST", cfg.MessageBurst)

	if v := os.Getenv("CHAT_MESSAGE_RATE"); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.MessageRate = rate
		}
	}
	if v := os.Getenv("CHAT_DEBUG"); v != "" {
		if debug, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = debug
		}
	}
	return cfg
}

func envInt(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDurationMS(name string, fallback time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}
