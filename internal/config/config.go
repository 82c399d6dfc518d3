package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/tikpoptv/terrahost/internal/extractor"
)

type ServerConfig struct {
	Host           string `yaml:"host" toml:"host"`
	Port           int    `yaml:"port" toml:"port"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes" toml:"max_upload_bytes"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// StorageConfig selects the blob store holding uploaded rasters.
type StorageConfig struct {
	Backend string `yaml:"backend" toml:"backend"` // fs or badger
	Root    string `yaml:"root" toml:"root"`
}

type ScratchConfig struct {
	Directory string `yaml:"directory" toml:"directory"`
}

type WorkerConfig struct {
	Binary    string        `yaml:"binary" toml:"binary"`
	Args      []string      `yaml:"args" toml:"args"`
	Timeout   time.Duration `yaml:"timeout" toml:"timeout"`
	PoolSize  int           `yaml:"pool_size" toml:"pool_size"`
	QueueSize int           `yaml:"queue_size" toml:"queue_size"`
}

type ReportsConfig struct {
	Directory string `yaml:"directory" toml:"directory"`
	FontPath  string `yaml:"font_path" toml:"font_path"`
}

type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Storage  StorageConfig  `yaml:"storage" toml:"storage"`
	Scratch  ScratchConfig  `yaml:"scratch" toml:"scratch"`
	Worker   WorkerConfig   `yaml:"worker" toml:"worker"`
	Reports  ReportsConfig  `yaml:"reports" toml:"reports"`
	Log      LogConfig      `yaml:"log" toml:"log"`
}

func defaults() *Config {
	pool := runtime.NumCPU() / 2
	if pool < 1 {
		pool = 1
	}
	return &Config{
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           8080,
			MaxUploadBytes: 2 << 30,
		},
		Database: DatabaseConfig{
			Path: "terrahost.db",
		},
		Storage: StorageConfig{
			Backend: "fs",
			Root:    "./data/blobs",
		},
		Scratch: ScratchConfig{
			Directory: filepath.Join(os.TempDir(), "terrahost"),
		},
		Worker: WorkerConfig{
			Binary:    "python3",
			Args:      []string{"scripts/geotiff_extractor.py"},
			Timeout:   extractor.DefaultTimeout,
			PoolSize:  pool,
			QueueSize: 16,
		},
		Reports: ReportsConfig{
			Directory: "./reports",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads path as YAML, or TOML when it ends in .toml. A missing file
// yields the defaults. TERRAHOST_* environment variables override the file.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	case strings.EqualFold(filepath.Ext(path), ".toml"):
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
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
	strs := map[string]*string{
		"TERRAHOST_HOST":            &c.Server.Host,
		"TERRAHOST_DB_PATH":         &c.Database.Path,
		"TERRAHOST_STORAGE_BACKEND": &c.Storage.Backend,
		"TERRAHOST_STORAGE_ROOT":    &c.Storage.Root,
		"TERRAHOST_SCRATCH_DIR":     &c.Scratch.Directory,
		"TERRAHOST_WORKER_BINARY":   &c.Worker.Binary,
		"TERRAHOST_REPORTS_DIR":     &c.Reports.Directory,
		"TERRAHOST_FONT_PATH":       &c.Reports.FontPath,
		"TERRAHOST_LOG_LEVEL":       &c.Log.Level,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("TERRAHOST_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TERRAHOST_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("TERRAHOST_WORKER_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("TERRAHOST_WORKER_TIMEOUT: %w", err)
		}
		c.Worker.Timeout = d
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "fs", "badger":
	default:
		return fmt.Errorf("storage.backend must be fs or badger, got %q", c.Storage.Backend)
	}
	if c.Worker.Binary == "" {
		return fmt.Errorf("worker.binary is required")
	}
	if c.Worker.Timeout <= 0 || c.Worker.Timeout > extractor.DefaultTimeout {
		return fmt.Errorf("worker.timeout must be between 0 and %s, got %s", extractor.DefaultTimeout, c.Worker.Timeout)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	return nil
}

// SlogLevel maps log.level onto a slog level. Unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
