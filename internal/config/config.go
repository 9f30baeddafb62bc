// Package config loads run configuration: simulation parameters from a YAML
// file, then environment overrides, then command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/stuphys1729/SenHons/internal/engine"
)

// Config is everything a run needs beyond the simulation parameters.
type Config struct {
	engine.Params `yaml:",inline"`

	MaxSteps    int    `yaml:"max_steps"`
	Seed        int64  `yaml:"seed"`
	RunID       string `yaml:"run_id"`
	TownsFile   string `yaml:"towns_file"`
	GenTowns    int    `yaml:"gen_towns"`
	ReportEvery int    `yaml:"report_every"`
	SaveEvery   int    `yaml:"save_every"`
	IntervalMs  int    `yaml:"interval_ms"`

	Telemetry Telemetry `yaml:"telemetry"`
	Server    Server    `yaml:"server"`
	Storage   Storage   `yaml:"storage"`
}

// Telemetry configures the frame feed.
type Telemetry struct {
	BusCapacity int    `yaml:"bus_capacity"`
	RecordPath  string `yaml:"record_path"`
}

// Server configures the HTTP control plane. Port 0 disables it.
type Server struct {
	Port     int    `yaml:"port"`
	AdminKey string `yaml:"admin_key"`
}

// Storage configures persistence. Empty paths disable the store.
type Storage struct {
	DBPath string `yaml:"db_path"`
	PgDSN  string `yaml:"pg_dsn"`
}

// Default returns the configuration of a plain 1D run of 1000 steps.
func Default() *Config {
	return &Config{
		Params:      engine.DefaultParams(),
		MaxSteps:    1000,
		ReportEvery: 10,
		SaveEvery:   100,
		Telemetry:   Telemetry{BusCapacity: 64},
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault returns Default when path is empty.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// ApplyEnv overlays the MEDTRUST_* environment variables. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("MEDTRUST_SEED"); ok && v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("MEDTRUST_SEED: %w", err)
		}
		c.Seed = seed
	}
	if v, ok := lookup("MEDTRUST_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MEDTRUST_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v, ok := lookup("MEDTRUST_DB"); ok {
		c.Storage.DBPath = v
	}
	if v, ok := lookup("MEDTRUST_ADMIN_KEY"); ok {
		c.Server.AdminKey = v
	}
	if v, ok := lookup("MEDTRUST_PG_DSN"); ok {
		c.Storage.PgDSN = v
	}
	return nil
}

// EnsureRunID assigns a fresh run id if none is set.
func (c *Config) EnsureRunID() string {
	if c.RunID == "" {
		c.RunID = uuid.NewString()
	}
	return c.RunID
}

// Validate rejects impossible configurations.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Params.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.MaxSteps < 0 {
		errs = append(errs, fmt.Errorf("max_steps must not be negative, got %d", c.MaxSteps))
	}
	if c.ReportEvery < 0 || c.SaveEvery < 0 || c.IntervalMs < 0 {
		errs = append(errs, errors.New("report_every, save_every and interval_ms must not be negative"))
	}
	if c.Telemetry.BusCapacity < 1 {
		errs = append(errs, fmt.Errorf("telemetry.bus_capacity must be positive, got %d", c.Telemetry.BusCapacity))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.TownsFile != "" && c.GenTowns > 0 {
		errs = append(errs, errors.New("towns_file and gen_towns are mutually exclusive"))
	}
	if c.GenTowns < 0 {
		errs = append(errs, fmt.Errorf("gen_towns must not be negative, got %d", c.GenTowns))
	}
	return errors.Join(errs...)
}
