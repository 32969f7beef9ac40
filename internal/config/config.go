// Package config loads service configuration from the environment and the
// governance policy from a YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full service configuration.
type Config struct {
	Service  ServiceConfig
	Server   ServerConfig
	Database DatabaseConfig
	NATS     NATSConfig
	Notify   NotifyConfig
	Log      LogConfig
	// PolicyFile is the governance policy YAML. Empty means built-in defaults
	// with no grants or rates.
	PolicyFile string
}

type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
}

type ServerConfig struct {
	Port            int
	GRPCPort        int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig selects the storage driver. Driver "memory" keeps all state
// in process and ignores the connection fields.
type DatabaseConfig struct {
	Driver      string
	Host        string
	Port        int
	User        string
	Password    string
	Database    string
	SSLMode     string
	MaxConns    int32
	MinConns    int32
	MaxConnTime time.Duration
	MaxIdleTime time.Duration
	HealthCheck time.Duration
	Migrate     bool
}

// NATSConfig enables notifications when URL is set.
type NATSConfig struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
}

type NotifyConfig struct {
	BaseDelay  time.Duration
	MaxRetries uint64
	Timeout    time.Duration
}

type LogConfig struct {
	Level string
	File  string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var errs []string
	env := envReader{errs: &errs}

	cfg := &Config{
		Service: ServiceConfig{
			Name:        env.str("SERVICE_NAME", "ai-governance"),
			Version:     env.str("SERVICE_VERSION", "dev"),
			Environment: env.str("ENVIRONMENT", "development"),
		},
		Server: ServerConfig{
			Port:            env.int("HTTP_PORT", 8090),
			GRPCPort:        env.int("GRPC_PORT", 9090),
			ReadTimeout:     env.duration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    env.duration("HTTP_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     env.duration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: env.duration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Driver:      strings.ToLower(env.str("STORAGE_DRIVER", "postgres")),
			Host:        env.str("DB_HOST", "localhost"),
			Port:        env.int("DB_PORT", 5432),
			User:        env.str("DB_USER", "postgres"),
			Password:    env.str("DB_PASSWORD", ""),
			Database:    env.str("DB_NAME", "ai_governance"),
			SSLMode:     env.str("DB_SSLMODE", "disable"),
			MaxConns:    int32(env.int("DB_MAX_CONNS", 10)),
			MinConns:    int32(env.int("DB_MIN_CONNS", 2)),
			MaxConnTime: env.duration("DB_MAX_CONN_TIME", time.Hour),
			MaxIdleTime: env.duration("DB_MAX_IDLE_TIME", 30*time.Minute),
			HealthCheck: env.duration("DB_HEALTH_CHECK", time.Minute),
			Migrate:     env.bool("DB_MIGRATE", true),
		},
		NATS: NATSConfig{
			URL:           env.str("NATS_URL", ""),
			MaxReconnects: env.int("NATS_MAX_RECONNECTS", 60),
			ReconnectWait: env.duration("NATS_RECONNECT_WAIT", 2*time.Second),
		},
		Notify: NotifyConfig{
			BaseDelay:  env.duration("NOTIFY_RETRY_BASE", 500*time.Millisecond),
			MaxRetries: uint64(env.int("NOTIFY_MAX_RETRIES", 5)),
			Timeout:    env.duration("NOTIFY_TIMEOUT", time.Minute),
		},
		Log: LogConfig{
			Level: env.str("LOG_LEVEL", "info"),
			File:  env.str("LOG_FILE", ""),
		},
		PolicyFile: env.str("GOVERNANCE_POLICY_FILE", ""),
	}

	switch cfg.Database.Driver {
	case "postgres", "memory":
	default:
		errs = append(errs, fmt.Sprintf("STORAGE_DRIVER: unsupported driver %q", cfg.Database.Driver))
	}
	if cfg.Notify.MaxRetries > 20 {
		errs = append(errs, "NOTIFY_MAX_RETRIES: must be at most 20")
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// envReader collects parse failures instead of stopping at the first.
type envReader struct {
	errs *[]string
}

func (e envReader) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func (e envReader) int(key string, def int) int {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		*e.errs = append(*e.errs, fmt.Sprintf("%s: expected a non-negative integer, got %q", key, v))
		return def
	}
	return n
}

func (e envReader) duration(key string, def time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*e.errs = append(*e.errs, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return d
}

func (e envReader) bool(key string, def bool) bool {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*e.errs = append(*e.errs, fmt.Sprintf("%s: expected a boolean, got %q", key, v))
		return def
	}
	return b
}
