package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Storage backends
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// Config holds all configuration for the application
// Following 12-factor app principles, all config is loaded from environment variables
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Menu     MenuConfig
	Ticket   TicketConfig
	LogLevel string
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     int
	WriteTimeout    int
	ShutdownTimeout int
}

// StoreConfig selects the persistence backend
type StoreConfig struct {
	Backend     string
	FilePath    string
	DatabaseURL string
}

// MenuConfig controls the bulk import run at startup
type MenuConfig struct {
	SeedSource string // path or http(s) URL; empty skips the import
}

// TicketConfig controls where kitchen tickets go after an order commits
type TicketConfig struct {
	Dir          string
	KafkaBrokers []string
	KafkaTopic   string
	Timeout      int // seconds per delivery
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			Host:            getEnv("HOST", "0.0.0.0"),
			ReadTimeout:     getEnvAsInt("READ_TIMEOUT", 15),
			WriteTimeout:    getEnvAsInt("WRITE_TIMEOUT", 15),
			ShutdownTimeout: getEnvAsInt("SHUTDOWN_TIMEOUT", 30),
		},
		Store: StoreConfig{
			Backend:     strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
			FilePath:    getEnv("STORE_FILE", "cardapio_state.json"),
			DatabaseURL: getEnv("DATABASE_URL", ""),
		},
		Menu: MenuConfig{
			SeedSource: getEnv("MENU_SEED", ""),
		},
		Ticket: TicketConfig{
			Dir:          getEnv("TICKET_DIR", ""),
			KafkaBrokers: getEnvAsSlice("KAFKA_BROKERS", nil),
			KafkaTopic:   getEnv("KAFKA_TICKET_TOPIC", "kitchen-tickets"),
			Timeout:      getEnvAsInt("TICKET_TIMEOUT", 5),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	if err := c.Store.Validate(); err != nil {
		return err
	}

	if len(c.Ticket.KafkaBrokers) > 0 && c.Ticket.KafkaTopic == "" {
		return fmt.Errorf("KAFKA_TICKET_TOPIC is required when KAFKA_BROKERS is set")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// Validate checks that the selected backend has what it needs
func (s StoreConfig) Validate() error {
	switch s.Backend {
	case BackendMemory:
		return nil
	case BackendFile:
		if s.FilePath == "" {
			return fmt.Errorf("STORE_FILE is required for the file backend")
		}
		return nil
	case BackendPostgres:
		if s.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
		return nil
	default:
		return fmt.Errorf("invalid store backend: %s (must be memory, file, or postgres)", s.Backend)
	}
}

// Helper functions for reading environment variables

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			values = append(values, p)
		}
	}
	return values
}
