// Package config resolves server configuration from a YAML file, AGENCE_*
// environment overrides, and command-line flags, in increasing precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Retention RetentionConfig `yaml:"retention"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
}

type ServerConfig struct {
	Address string `yaml:"address"`
	DataDir string `yaml:"data_dir"`
	// Backend selects the store: json (default), sqlite, or memory.
	Backend string `yaml:"backend"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type SecurityConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Admins    []string        `yaml:"admins"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type RetentionConfig struct {
	// Cron schedules the broadcast-notification sweep; empty disables it.
	Cron   string        `yaml:"cron"`
	MaxAge time.Duration `yaml:"max_age"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// BootstrapConfig seeds the agent roster; seeding only happens when the
// stored roster is empty.
type BootstrapConfig struct {
	Agents []BootstrapAgent `yaml:"agents"`
}

type BootstrapAgent struct {
	Name string `yaml:"name"`
	Code string `yaml:"code"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Address: ":8080",
			DataDir: "./data",
			Backend: "json",
		},
		Logging: LoggingConfig{Level: "info"},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{RPS: 20, Burst: 40},
		},
		Retention: RetentionConfig{
			Cron:   "0 3 * * *",
			MaxAge: 720 * time.Hour,
		},
	}
}

// Load reads the YAML file (if path is non-empty) over the defaults, then
// applies AGENCE_* environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		blob, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(blob, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("AGENCE_ADDR"); v != "" {
		c.Server.Address = v
	}
	if v := os.Getenv("AGENCE_DATA_DIR"); v != "" {
		c.Server.DataDir = v
	}
	if v := os.Getenv("AGENCE_BACKEND"); v != "" {
		c.Server.Backend = v
	}
	if v := os.Getenv("AGENCE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("AGENCE_RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Security.RateLimit.RPS = f
		}
	}
	if v := os.Getenv("AGENCE_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Security.RateLimit.Burst = n
		}
	}
	if v, ok := os.LookupEnv("AGENCE_RETENTION_CRON"); ok {
		c.Retention.Cron = v
	}
	if v := os.Getenv("AGENCE_RETENTION_MAX_AGE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Retention.MaxAge = d
		}
	}
	if v := os.Getenv("AGENCE_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.OTLPEndpoint = v
	}
	if v := os.Getenv("AGENCE_ADMINS"); v != "" {
		admins := []string{}
		for _, raw := range strings.Split(v, ",") {
			if a := strings.TrimSpace(raw); a != "" {
				admins = append(admins, a)
			}
		}
		c.Security.Admins = admins
	}
}

func (c *Config) validate() error {
	switch c.Server.Backend {
	case "json", "sqlite", "memory":
	default:
		return fmt.Errorf("unknown backend %q (want json, sqlite, or memory)", c.Server.Backend)
	}
	if c.Retention.MaxAge < 0 {
		return fmt.Errorf("retention.max_age must not be negative")
	}
	return nil
}
