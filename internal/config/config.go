// Package config holds process settings. Values are layered: built-in
// defaults, then an optional YAML file, then command-line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds runtime settings for docforge.
type Config struct {
	// Production enables the eligibility gate of the safe renderer.
	Production         bool          `yaml:"production"`
	MaxContentBytes    int           `yaml:"max_content_bytes"`
	BatchConcurrency   int           `yaml:"batch_concurrency"`
	BatchRatePerSecond float64       `yaml:"batch_rate_per_second"`
	DatabaseDSN        string        `yaml:"database_dsn"`
	SeedDir            string        `yaml:"seed_dir"`
	JWTSecret          string        `yaml:"jwt_secret"`
	PrivilegedRoles    []string      `yaml:"privileged_roles"`
	ListenAddr         string        `yaml:"listen_addr"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
	LogLevel           string        `yaml:"log_level"`
	LogFormat          string        `yaml:"log_format"`
}

// Defaults returns the built-in settings.
func Defaults() Config {
	return Config{
		MaxContentBytes:    100 * 1024,
		BatchConcurrency:   4,
		BatchRatePerSecond: 20,
		PrivilegedRoles:    []string{"admin", "reviewer"},
		ListenAddr:         ":8080",
		ShutdownTimeout:    10 * time.Second,
		LogLevel:           "info",
		LogFormat:          "text",
	}
}

// LoadFile overlays the YAML file at path. Keys absent from the file keep
// their current value.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: decode %s: %w", path, err)
	}
	return nil
}

// RegisterFlags binds every setting to fs using the current values as
// defaults. The -config flag is registered so it parses cleanly; read it
// beforehand with PathFromArgs.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.String("config", "", "path to a YAML config file")
	fs.BoolVar(&c.Production, "production", c.Production, "refuse to render templates that are not production eligible")
	fs.IntVar(&c.MaxContentBytes, "max-content-bytes", c.MaxContentBytes, "content size above which verification warns and blocks")
	fs.IntVar(&c.BatchConcurrency, "batch-concurrency", c.BatchConcurrency, "templates linted in parallel")
	fs.Float64Var(&c.BatchRatePerSecond, "batch-rate", c.BatchRatePerSecond, "store writes per second during batch lint (0 disables)")
	fs.StringVar(&c.DatabaseDSN, "database-dsn", c.DatabaseDSN, "PostgreSQL DSN; empty uses the in-memory store")
	fs.StringVar(&c.SeedDir, "seed", c.SeedDir, "directory of template and flow YAML/JSON files loaded at start")
	fs.StringVar(&c.JWTSecret, "jwt-secret", c.JWTSecret, "HS256 secret for bearer tokens")
	fs.Func("privileged-roles", "comma separated roles allowed to run privileged operations", func(v string) error {
		c.PrivilegedRoles = splitList(v)
		return nil
	})
	fs.StringVar(&c.ListenAddr, "listen", c.ListenAddr, "HTTP listen address")
	fs.DurationVar(&c.ShutdownTimeout, "shutdown-timeout", c.ShutdownTimeout, "graceful shutdown timeout")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "text or json")
}

// PathFromArgs returns the value of -config/--config in args, if any.
func PathFromArgs(args []string) string {
	for i, arg := range args {
		if arg == "--" {
			break
		}
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if !strings.HasPrefix(arg, "-") || name != "config" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// Load applies defaults, the -config file named in args, then the flags in
// args, on a fresh FlagSet called name. Extra flags may be registered by
// extend before parsing. It returns the remaining positional arguments.
func Load(name string, args []string, extend func(*flag.FlagSet)) (Config, []string, error) {
	cfg := Defaults()
	if path := PathFromArgs(args); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return Config{}, nil, err
		}
	}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	cfg.RegisterFlags(fs)
	if extend != nil {
		extend(fs)
	}
	if err := fs.Parse(args); err != nil {
		return Config{}, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, nil, err
	}
	return cfg, fs.Args(), nil
}

// Validate rejects settings the services cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.MaxContentBytes <= 0 {
		errs = append(errs, fmt.Errorf("max content bytes must be positive, got %d", c.MaxContentBytes))
	}
	if c.BatchConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("batch concurrency must be positive, got %d", c.BatchConcurrency))
	}
	if c.BatchRatePerSecond < 0 {
		errs = append(errs, fmt.Errorf("batch rate must not be negative, got %v", c.BatchRatePerSecond))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
