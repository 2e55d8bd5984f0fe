package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config is the server configuration. Values come from the YAML file first and are then
// overridden by environment variables.
type Config struct {
	Port                string          `yaml:"port"`
	LogLevel            string          `yaml:"log_level"`
	NATSURL             string          `yaml:"nats_url"`
	NudgeCooldown       time.Duration   `yaml:"nudge_cooldown"`
	IdleTimeout         time.Duration   `yaml:"meeting_idle_timeout"`
	JanitorInterval     time.Duration   `yaml:"janitor_interval"`
	CommandTimeout      time.Duration   `yaml:"command_timeout"`
	AgendaNotifyChannel string          `yaml:"agenda_notify_channel"`
	AutoMigrate         bool            `yaml:"auto_migrate"`
	WebSocket           WebSocketConfig `yaml:"websocket"`
}

// WebSocketConfig holds the client connection limits.
type WebSocketConfig struct {
	MaxMessageSize int64         `yaml:"max_message_size"`
	SendBufferSize int           `yaml:"send_buffer_size"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
}

func defaultConfig() Config {
	return Config{
		Port:                "8080",
		LogLevel:            "info",
		NudgeCooldown:       5 * time.Minute,
		IdleTimeout:         30 * time.Minute,
		JanitorInterval:     time.Minute,
		CommandTimeout:      5 * time.Second,
		AgendaNotifyChannel: "agenda_items_changed",
		AutoMigrate:         true,
		WebSocket: WebSocketConfig{
			MaxMessageSize: 4096,
			SendBufferSize: 256,
			PingInterval:   30 * time.Second,
			ReadTimeout:    60 * time.Second,
			WriteTimeout:   10 * time.Second,
		},
	}
}

// loadConfig reads path (a missing file is fine) and applies environment overrides.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Debug().Str("path", path).Msg("no config file, using defaults")
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnv(&config)
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func applyEnv(c *Config) {
	c.Port = getEnv("PORT", c.Port)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.NATSURL = getEnv("NATS_URL", c.NATSURL)
	c.AgendaNotifyChannel = getEnv("AGENDA_NOTIFY_CHANNEL", c.AgendaNotifyChannel)
	c.AutoMigrate = getEnvAsBool("AUTO_MIGRATE", c.AutoMigrate)

	// COOLDOWN_MS is the older millisecond form
	if ms := getEnvAsInt("COOLDOWN_MS", -1); ms >= 0 {
		c.NudgeCooldown = time.Duration(ms) * time.Millisecond
	}
	c.NudgeCooldown = getEnvAsDuration("NUDGE_COOLDOWN", c.NudgeCooldown)
	c.IdleTimeout = getEnvAsDuration("MEETING_IDLE_TIMEOUT", c.IdleTimeout)
	c.JanitorInterval = getEnvAsDuration("JANITOR_INTERVAL", c.JanitorInterval)
	c.CommandTimeout = getEnvAsDuration("COMMAND_TIMEOUT", c.CommandTimeout)

	c.WebSocket.MaxMessageSize = int64(getEnvAsInt("WS_MAX_MESSAGE_SIZE", int(c.WebSocket.MaxMessageSize)))
	c.WebSocket.SendBufferSize = getEnvAsInt("WS_SEND_BUFFER_SIZE", c.WebSocket.SendBufferSize)
}

func (c *Config) validate() error {
	if c.NudgeCooldown <= 0 {
		return fmt.Errorf("nudge cooldown must be positive, got %s", c.NudgeCooldown)
	}
	if c.CommandTimeout <= 0 {
		return fmt.Errorf("command timeout must be positive, got %s", c.CommandTimeout)
	}
	if c.WebSocket.SendBufferSize <= 0 {
		return fmt.Errorf("websocket send buffer must be positive, got %d", c.WebSocket.SendBufferSize)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		log.Warn().Str("key", key).Str("value", value).Msg("ignoring invalid integer")
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
		log.Warn().Str("key", key).Str("value", value).Msg("ignoring invalid boolean")
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Warn().Str("key", key).Str("value", value).Msg("ignoring invalid duration")
	}
	return defaultValue
}
