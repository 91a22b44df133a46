// Package config loads the portal configuration from a YAML file.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Fabric   FabricConfig   `yaml:"fabric"`
	Vlan     VlanConfig     `yaml:"vlan"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Listen          string        `yaml:"listen"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	// Driver is one of "postgres" (lib/pq), "pgx" or "sqlite".
	Driver       string `yaml:"driver"`
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// FabricConfig holds the base URLs of the fabric services.
type FabricConfig struct {
	FwAPI    string `yaml:"fwapi"`
	VmAPI    string `yaml:"vmapi"`
	NAPI     string `yaml:"napi"`
	ImgAPI   string `yaml:"imgapi"`
	PAPI     string `yaml:"papi"`
	Workflow string `yaml:"workflow"`

	Timeout         time.Duration `yaml:"timeout"`
	RateLimit       float64       `yaml:"rate_limit"`
	Burst           int           `yaml:"burst"`
	Concurrency     int           `yaml:"concurrency"`
	JobPollInterval time.Duration `yaml:"job_poll_interval"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
}

type VlanConfig struct {
	MinID      int `yaml:"min_id"`
	MaxID      int `yaml:"max_id"`
	MaxRetries int `yaml:"max_retries"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file overrides a value.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:          ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:       "postgres",
			DSN:          "postgres://localhost/fabric_portal?sslmode=disable",
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		Fabric: FabricConfig{
			Timeout:         30 * time.Second,
			RateLimit:       20,
			Burst:           10,
			Concurrency:     8,
			JobPollInterval: 2 * time.Second,
			JobTimeout:      5 * time.Minute,
		},
		Vlan: VlanConfig{
			MinID:      2,
			MaxID:      4094,
			MaxRetries: 5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the file at path on top of Default. An empty path yields the
// defaults. PORTAL_DB_DSN and PORTAL_LISTEN override the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read config")
		}
		if err := yaml.UnmarshalStrict(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "failed to parse config %s", path)
		}
	}
	if dsn := os.Getenv("PORTAL_DB_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if listen := os.Getenv("PORTAL_LISTEN"); listen != "" {
		cfg.Server.Listen = listen
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "pgx", "sqlite":
	default:
		return errors.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database dsn is required")
	}
	if c.Fabric.Timeout <= 0 {
		return errors.New("fabric timeout must be positive")
	}
	if c.Fabric.Concurrency <= 0 {
		return errors.New("fabric concurrency must be positive")
	}
	if c.Vlan.MinID < 2 {
		return errors.Errorf("vlan min_id must be at least 2, got %d", c.Vlan.MinID)
	}
	if c.Vlan.MaxID > 4094 || c.Vlan.MaxID < c.Vlan.MinID {
		return errors.Errorf("vlan max_id must be between min_id and 4094, got %d", c.Vlan.MaxID)
	}
	if c.Vlan.MaxRetries < 0 {
		return errors.New("vlan max_retries must not be negative")
	}
	return nil
}
