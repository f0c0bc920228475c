// Package config assembles the immutable runtime configuration from
// defaults, an optional YAML file, and environment variables — later
// layers win.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
)

// Config is the complete runtime configuration. It is built once at
// startup and never mutated afterwards.
type Config struct {
	// ListenPort is the vendor-facing loopback port.
	ListenPort int
	// UpstreamHost must resolve to a loopback address.
	UpstreamHost string
	// UpstreamPort is the OpenAI-compatible upstream port.
	UpstreamPort int

	// AdminPort enables the ops surface when > 0.
	AdminPort int
	// AdminToken guards the admin surface; empty means unguarded.
	AdminToken string

	// StorePath is the SQLite file for request records; empty disables
	// recording.
	StorePath string
	// RetentionDays is how long records are kept; 0 disables pruning.
	RetentionDays int
	// RetentionSchedule is the standard 5-field cron expression for
	// the prune job.
	RetentionSchedule string

	// MaxConns caps concurrently handled vendor connections; 0 means
	// unlimited.
	MaxConns int
	// UpstreamDialTimeout bounds the upstream connect; no further
	// deadlines apply once connected.
	UpstreamDialTimeout time.Duration

	// RequestLog is the per-request log file path; empty disables it.
	RequestLog string
}

func defaults() *Config {
	return &Config{
		ListenPort:          11434,
		UpstreamHost:        "127.0.0.1",
		UpstreamPort:        8080,
		AdminPort:           0,
		StorePath:           "ollamabridge.db",
		RetentionDays:       30,
		RetentionSchedule:   "0 3 * * *",
		MaxConns:            0,
		UpstreamDialTimeout: 10 * time.Second,
		RequestLog:          "",
	}
}

// Load builds the configuration. filePath may be empty; environment
// variables override anything the file set.
func Load(filePath string) (*Config, error) {
	cfg := defaults()

	if filePath != "" {
		if err := cfg.applyFile(filePath); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var err error
	if c.ListenPort, err = envInt("PORT", c.ListenPort); err != nil {
		return err
	}
	if v := os.Getenv("UPSTREAM_HOST"); v != "" {
		c.UpstreamHost = v
	}
	if c.UpstreamPort, err = envInt("UPSTREAM_PORT", c.UpstreamPort); err != nil {
		return err
	}
	if c.AdminPort, err = envInt("ADMIN_PORT", c.AdminPort); err != nil {
		return err
	}
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		c.AdminToken = v
	}
	if v, ok := os.LookupEnv("STORE_PATH"); ok {
		c.StorePath = v
	}
	if c.RetentionDays, err = envInt("RETENTION_DAYS", c.RetentionDays); err != nil {
		return err
	}
	if v := os.Getenv("RETENTION_SCHEDULE"); v != "" {
		c.RetentionSchedule = v
	}
	if c.MaxConns, err = envInt("MAX_CONNS", c.MaxConns); err != nil {
		return err
	}
	if v := os.Getenv("UPSTREAM_DIAL_TIMEOUT"); v != "" {
		d, perr := time.ParseDuration(v)
		if perr != nil {
			return fmt.Errorf("invalid UPSTREAM_DIAL_TIMEOUT %q: %w", v, perr)
		}
		c.UpstreamDialTimeout = d
	}
	if v := os.Getenv("REQUEST_LOG"); v != "" {
		c.RequestLog = v
	}
	return nil
}

func envInt(name string, current int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return current, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, v, err)
	}
	return n, nil
}

// Validate checks ports, the loopback constraint on the upstream host,
// and the retention schedule.
func (c *Config) Validate() error {
	if c.ListenPort < 1 || c.ListenPort > 65535 {
		return fmt.Errorf("listen port %d out of range", c.ListenPort)
	}
	if c.UpstreamPort < 1 || c.UpstreamPort > 65535 {
		return fmt.Errorf("upstream port %d out of range", c.UpstreamPort)
	}
	if c.AdminPort < 0 || c.AdminPort > 65535 {
		return fmt.Errorf("admin port %d out of range", c.AdminPort)
	}
	if !isLoopbackHost(c.UpstreamHost) {
		return fmt.Errorf("upstream host %q is not a loopback address", c.UpstreamHost)
	}
	if c.MaxConns < 0 {
		return fmt.Errorf("max conns %d cannot be negative", c.MaxConns)
	}
	if c.UpstreamDialTimeout <= 0 {
		return fmt.Errorf("upstream dial timeout must be positive")
	}
	if c.StorePath != "" && c.RetentionDays > 0 {
		if _, err := cron.ParseStandard(c.RetentionSchedule); err != nil {
			return fmt.Errorf("invalid retention schedule %q: %w", c.RetentionSchedule, err)
		}
	}
	return nil
}

// isLoopbackHost accepts "localhost" and any literal loopback IP. The
// proxy never talks to a non-local upstream.
func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
