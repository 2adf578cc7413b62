// Package archive stores the summaries of completed sessions.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/erazemk/inventura/internal/model"
)

// Drivers.
const (
	DriverNone = ""
	DriverFS   = "fs"
	DriverS3   = "s3"
)

// Archiver persists a completed session summary.
type Archiver interface {
	Archive(ctx context.Context, s model.Summary) error
}

// Config selects and configures the archive backend.
type Config struct {
	Driver string   `toml:"driver" yaml:"driver"`
	Dir    string   `toml:"dir" yaml:"dir"`
	S3     S3Config `toml:"s3" yaml:"s3"`
}

// New returns the archiver for cfg, or nil when archiving is disabled.
func New(ctx context.Context, cfg Config) (Archiver, error) {
	switch cfg.Driver {
	case DriverNone:
		return nil, nil
	case DriverFS:
		a, err := NewFS(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return a, nil
	case DriverS3:
		a, err := NewS3(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unknown archive driver %q", cfg.Driver)
	}
}

// Key returns the object key a summary is stored under.
func Key(sessionID string) string {
	return path.Join("sessions", sessionID, "summary.json")
}

func encode(s model.Summary) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// FS writes summaries below a root directory.
type FS struct {
	root string
}

// NewFS creates root if needed.
func NewFS(root string) (*FS, error) {
	if root == "" {
		return nil, fmt.Errorf("archive dir required for fs driver")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("creating archive dir: %w", err)
	}
	return &FS{root: root}, nil
}

// Archive writes the summary atomically, replacing any earlier copy.
func (f *FS) Archive(_ context.Context, s model.Summary) error {
	data, err := encode(s)
	if err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}

	dst := filepath.Join(f.root, filepath.FromSlash(Key(s.SessionID)))
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return fmt.Errorf("creating summary dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".summary-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing summary: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("renaming summary: %w", err)
	}
	return nil
}
