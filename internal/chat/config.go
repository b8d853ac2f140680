package chat

import (
	"os"
	"strconv"
)

const (
	DefaultAddr            = ":1234"
	DefaultMaxClients      = 50
	DefaultMaxMessageBytes = 500
)

// Config holds the runtime settings for the chat server.
type Config struct {
	Addr            string
	MaxClients      int
	MaxMessageBytes int
}

// DefaultConfig returns a Config populated with the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Addr:            DefaultAddr,
		MaxClients:      DefaultMaxClients,
		MaxMessageBytes: DefaultMaxMessageBytes,
	}
}

// ConfigFromEnv returns the default configuration overridden by
// CHAT_ADDR, CHAT_MAX_CLIENTS, and CHAT_MAX_MESSAGE_BYTES when set.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if addr := os.Getenv("CHAT_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if v := os.Getenv("CHAT_MAX_CLIENTS"); v != "" {
		cfg.MaxClients = parsePositiveInt(v, cfg.MaxClients)
	}
	if v := os.Getenv("CHAT_MAX_MESSAGE_BYTES"); v != "" {
		cfg.MaxMessageBytes = parsePositiveInt(v, cfg.MaxMessageBytes)
	}

	return cfg
}

func parsePositiveInt(value string, fallback int) int {
	if n, err := strconv.Atoi(value); err == nil && n > 0 {
		return n
	}
	return fallback
}

func (c Config) sanitized() Config {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.MaxClients <= 0 {
		c.MaxClients = DefaultMaxClients
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = DefaultMaxMessageBytes
	}
	return c
}
