// Package config loads server configuration from a TOML or YAML file and
// INVENTURA_* environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/erazemk/inventura/internal/archive"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "INVENTURA_"

// Config is the server configuration.
type Config struct {
	Addr      string         `toml:"addr" yaml:"addr"`
	Database  string         `toml:"database" yaml:"database"` // sqlite path or postgres:// DSN
	Replica   string         `toml:"replica" yaml:"replica"`
	JWTSecret string         `toml:"jwt_secret" yaml:"jwt_secret"`
	LogFile   string         `toml:"log_file" yaml:"log_file"`
	LogLevel  string         `toml:"log_level" yaml:"log_level"`
	Archive   archive.Config `toml:"archive" yaml:"archive"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		Addr:     ":8080",
		Database: "inventura.sqlite3",
		Replica:  "inventura-replica.sqlite3",
		LogLevel: "info",
	}
}

// Load reads path on top of the defaults and then applies environment
// overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return fmt.Errorf("load config %s: %w", path, err)
		}
	case ".yaml", ".yml":
		buf, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("load config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	default:
		return fmt.Errorf("config %s: unsupported format (want .toml, .yaml or .yml)", path)
	}
	return nil
}

// ApplyEnv overrides fields from INVENTURA_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"ADDR":                &c.Addr,
		"DATABASE":            &c.Database,
		"REPLICA":             &c.Replica,
		"JWT_SECRET":          &c.JWTSecret,
		"LOG_FILE":            &c.LogFile,
		"LOG_LEVEL":           &c.LogLevel,
		"ARCHIVE_DRIVER":      &c.Archive.Driver,
		"ARCHIVE_DIR":         &c.Archive.Dir,
		"ARCHIVE_S3_BUCKET":   &c.Archive.S3.Bucket,
		"ARCHIVE_S3_REGION":   &c.Archive.S3.Region,
		"ARCHIVE_S3_ENDPOINT": &c.Archive.S3.Endpoint,
	}
	for name, dst := range strs {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	if v, ok := lookup(EnvPrefix + "ARCHIVE_S3_PATH_STYLE"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse %sARCHIVE_S3_PATH_STYLE: %w", EnvPrefix, err)
		}
		c.Archive.S3.PathStyle = b
	}
	return nil
}

// Validate checks the fields that have no usable zero value.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.Replica == "" {
		return fmt.Errorf("replica is required")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	switch c.Archive.Driver {
	case archive.DriverNone:
	case archive.DriverFS:
		if c.Archive.Dir == "" {
			return fmt.Errorf("archive.dir is required for the fs driver")
		}
	case archive.DriverS3:
		if c.Archive.S3.Bucket == "" {
			return fmt.Errorf("archive.s3.bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("unknown archive driver %q", c.Archive.Driver)
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}
