package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config for the optional YAML layer. Pointer
// fields distinguish "absent" from zero values so the file can clear
// defaults like the store path.
type fileConfig struct {
	ListenPort          *int           `yaml:"listen_port"`
	UpstreamHost        *string        `yaml:"upstream_host"`
	UpstreamPort        *int           `yaml:"upstream_port"`
	AdminPort           *int           `yaml:"admin_port"`
	AdminToken          *string        `yaml:"admin_token"`
	StorePath           *string        `yaml:"store_path"`
	RetentionDays       *int           `yaml:"retention_days"`
	RetentionSchedule   *string        `yaml:"retention_schedule"`
	MaxConns            *int           `yaml:"max_conns"`
	UpstreamDialTimeout *time.Duration `yaml:"upstream_dial_timeout"`
	RequestLog          *string        `yaml:"request_log"`
}

// applyFile layers a YAML config file over the current values.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if fc.ListenPort != nil {
		c.ListenPort = *fc.ListenPort
	}
	if fc.UpstreamHost != nil {
		c.UpstreamHost = *fc.UpstreamHost
	}
	if fc.UpstreamPort != nil {
		c.UpstreamPort = *fc.UpstreamPort
	}
	if fc.AdminPort != nil {
		c.AdminPort = *fc.AdminPort
	}
	if fc.AdminToken != nil {
		c.AdminToken = *fc.AdminToken
	}
	if fc.StorePath != nil {
		c.StorePath = *fc.StorePath
	}
	if fc.RetentionDays != nil {
		c.RetentionDays = *fc.RetentionDays
	}
	if fc.RetentionSchedule != nil {
		c.RetentionSchedule = *fc.RetentionSchedule
	}
	if fc.MaxConns != nil {
		c.MaxConns = *fc.MaxConns
	}
	if fc.UpstreamDialTimeout != nil {
		c.UpstreamDialTimeout = *fc.UpstreamDialTimeout
	}
	if fc.RequestLog != nil {
		c.RequestLog = *fc.RequestLog
	}
	return nil
}
