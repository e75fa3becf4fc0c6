package config

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Config is the main configuration struct, loaded from YAML with env
// overrides applied on top.
type Config struct {
	Server struct {
		Address string `yaml:"address"`
		Port    int    `yaml:"port"`
	} `yaml:"server"`
	Storage struct {
		DBPath string `yaml:"db_path"`
	} `yaml:"storage"`
	Resolver struct {
		GatewayURL  string `yaml:"gateway_url"`
		Timeout     string `yaml:"timeout"`
		MaxAttempts int    `yaml:"max_attempts"`
		BaseBackoff string `yaml:"base_backoff"`
		MaxBlobSize string `yaml:"max_blob_size"`
	} `yaml:"resolver"`
	Ingest struct {
		QueueCapacity int `yaml:"queue_capacity"`
		Workers       int `yaml:"workers"`
		Retry         struct {
			MaxAttempts int    `yaml:"max_attempts"`
			BaseBackoff string `yaml:"base_backoff"`
			MaxBackoff  string `yaml:"max_backoff"`
		} `yaml:"retry"`
	} `yaml:"ingest"`
	Chains struct {
		Ethereum struct {
			Enabled bool   `yaml:"enabled"`
			Name    string `yaml:"name"`
		} `yaml:"ethereum"`
		Solana struct {
			Enabled bool   `yaml:"enabled"`
			Name    string `yaml:"name"`
		} `yaml:"solana"`
	} `yaml:"chains"`
	Confirm struct {
		Window    string `yaml:"window"`
		SweepCron string `yaml:"sweep_cron"`
	} `yaml:"confirm"`
	Security struct {
		RateLimit struct {
			RPS   float64 `yaml:"rps"`
			Burst int     `yaml:"burst"`
		} `yaml:"rate_limit"`
	} `yaml:"security"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	host := c.Server.Address
	port := c.Server.Port
	if port == 0 {
		port = 4024
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// ParseDuration parses s, falling back to def when empty or invalid.
func ParseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// ParseSize parses a human size string ("16 MiB", "256KB"), falling back
// to def when empty or invalid.
func ParseSize(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return def
	}
	return int(n)
}
