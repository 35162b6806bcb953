package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all server configuration
type Config struct {
	// HTTP server
	HTTPAddr      string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
	ShutdownGrace time.Duration

	// Statement execution
	StmtTimeout time.Duration

	// Databases available for selection: name -> DSN (required)
	Databases map[string]string

	// Observability
	LogLevel string
}

// LoadFromEnv loads configuration from environment variables.
// PLANWHAT_DATABASES is a semicolon-separated list of name=dsn pairs, e.g.
// "TPC-H=postgres://localhost/tpch;IMDB=postgres://localhost/imdb".
func LoadFromEnv() (*Config, error) {
	databases, err := parseDatabases(os.Getenv("PLANWHAT_DATABASES"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		ReadTimeout:   getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:  getDuration("WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:   getDuration("IDLE_TIMEOUT", 120*time.Second),
		ShutdownGrace: getDuration("SHUTDOWN_GRACE", 30*time.Second),
		StmtTimeout:   getDuration("STMT_TIMEOUT_MS", 30000*time.Millisecond),
		Databases:     databases,
		LogLevel:      getEnv("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

func parseDatabases(value string) (map[string]string, error) {
	if strings.TrimSpace(value) == "" {
		return nil, fmt.Errorf("PLANWHAT_DATABASES is required")
	}

	databases := map[string]string{}
	for _, pair := range strings.Split(value, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, dsn, found := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		dsn = strings.TrimSpace(dsn)
		if !found || name == "" || dsn == "" {
			return nil, fmt.Errorf("PLANWHAT_DATABASES: invalid entry %q (want name=dsn)", pair)
		}
		databases[name] = dsn
	}
	if len(databases) == 0 {
		return nil, fmt.Errorf("PLANWHAT_DATABASES is required")
	}
	return databases, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		// Try parsing as milliseconds first
		if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
		// Try parsing as duration string
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
