package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"github.com/objectfs/webvfs/internal/circuit"
	"github.com/objectfs/webvfs/internal/storage/bolt"
	"github.com/objectfs/webvfs/internal/storage/s3"
	"github.com/objectfs/webvfs/pkg/api"
	"github.com/objectfs/webvfs/pkg/errors"
	"github.com/objectfs/webvfs/pkg/health"
	"github.com/objectfs/webvfs/pkg/retry"
	"github.com/objectfs/webvfs/pkg/utils"
	"github.com/objectfs/webvfs/pkg/vpath"
)

// EnvPrefix prefixes every environment override, e.g. WEBVFS_FS_MAX_NODES.
const EnvPrefix = "WEBVFS"

// Storage backends
const (
	BackendMemory = "memory"
	BackendBolt   = "bolt"
	BackendS3     = "s3"
)

// Configuration represents the complete application configuration
type Configuration struct {
	Filesystem FilesystemConfig     `yaml:"filesystem" envconfig:"FS"`
	Storage    StorageConfig        `yaml:"storage" envconfig:"STORAGE"`
	Logging    utils.LoggerConfig   `yaml:"logging" envconfig:"LOG"`
	Metrics    MetricsConfig        `yaml:"metrics" envconfig:"METRICS"`
	Health     health.TrackerConfig `yaml:"health" envconfig:"HEALTH"`
	API        api.ServerConfig     `yaml:"api" envconfig:"API"`
}

// FilesystemConfig represents engine limits and defaults
type FilesystemConfig struct {
	SyncInterval           time.Duration `yaml:"sync_interval" split_words:"true"`
	MaxNodes               int           `yaml:"max_nodes" split_words:"true"`
	MaxFileSize            string        `yaml:"max_file_size" split_words:"true"`
	MaxTotalSize           string        `yaml:"max_total_size" split_words:"true"`
	DefaultFilePermissions string        `yaml:"default_file_permissions" split_words:"true"`
	DefaultDirPermissions  string        `yaml:"default_dir_permissions" split_words:"true"`
	ReservedDirs           []string      `yaml:"reserved_dirs" split_words:"true"`
	HomeDir                string        `yaml:"home_dir" split_words:"true"`
}

// StorageConfig represents durable storage configuration
type StorageConfig struct {
	Backend        string         `yaml:"backend" split_words:"true"`
	Bolt           bolt.Config    `yaml:"bolt" envconfig:"BOLT"`
	S3             s3.Config      `yaml:"s3" envconfig:"S3"`
	Backup         BackupConfig   `yaml:"backup" envconfig:"BACKUP"`
	Resilience     bool           `yaml:"resilience" split_words:"true"`
	Retry          retry.Config   `yaml:"retry" envconfig:"RETRY"`
	CircuitBreaker circuit.Config `yaml:"circuit_breaker" envconfig:"CIRCUIT_BREAKER"`
}

// BackupConfig represents the local fallback store. An empty directory with
// Enabled set keeps the backup in memory.
type BackupConfig struct {
	Enabled   bool   `yaml:"enabled" split_words:"true"`
	Directory string `yaml:"directory" split_words:"true"`
}

// MetricsConfig represents Prometheus metrics settings
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" split_words:"true"`
	Namespace string `yaml:"namespace" split_words:"true"`
	Address   string `yaml:"address" split_words:"true"`
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	s3cfg := s3.NewDefaultConfig()
	return &Configuration{
		Filesystem: FilesystemConfig{
			SyncInterval:           5 * time.Second,
			MaxNodes:               10000,
			MaxFileSize:            "10MB",
			MaxTotalSize:           "100MB",
			DefaultFilePermissions: "rw-r--r--",
			DefaultDirPermissions:  "rwxr-xr-x",
			ReservedDirs:           []string{"/home", "/home/user", "/tmp", "/etc", "/var", "/usr", "/bin"},
			HomeDir:                "/home/user",
		},
		Storage: StorageConfig{
			Backend: BackendMemory,
			Bolt: bolt.Config{
				Path:        "webvfs.db",
				OpenTimeout: time.Second,
			},
			S3: *s3cfg,
			Backup: BackupConfig{
				Enabled: true,
			},
			Resilience: true,
			Retry:      retry.DefaultConfig(),
			CircuitBreaker: circuit.Config{
				FailureThreshold: 5,
				MaxRequests:      1,
				Interval:         60 * time.Second,
				Timeout:          30 * time.Second,
			},
		},
		Logging: utils.LoggerConfig{
			Level:  "INFO",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Namespace: "webvfs",
			Address:   ":9090",
		},
		Health: health.DefaultConfig(),
		API:    api.DefaultServerConfig(),
	}
}

// Load builds a configuration from defaults, an optional YAML file and the
// environment, in that order, and validates the result.
func Load(filename string) (*Configuration, error) {
	cfg := NewDefault()
	if filename != "" {
		if err := cfg.LoadFromFile(filename); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return errors.NewError(errors.ErrCodeInvalidConfig, "failed to read config file").
			WithPath(filename).WithCause(err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.NewError(errors.ErrCodeInvalidConfig, "failed to parse config file").
			WithPath(filename).WithCause(err)
	}

	return nil
}

// LoadFromEnv overrides fields from WEBVFS_* environment variables. Unset
// variables leave the current value alone.
func (c *Configuration) LoadFromEnv() error {
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return errors.NewError(errors.ErrCodeInvalidConfig, "failed to load environment overrides").WithCause(err)
	}
	return nil
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	fs := c.Filesystem
	if fs.SyncInterval < 0 {
		return invalid("sync_interval cannot be negative")
	}
	if fs.MaxNodes <= 0 {
		return invalid("max_nodes must be greater than 0")
	}

	maxFile, maxTotal, err := fs.Limits()
	if err != nil {
		return err
	}
	if maxFile > maxTotal {
		return invalid("max_file_size (%s) exceeds max_total_size (%s)", fs.MaxFileSize, fs.MaxTotalSize)
	}

	if !validPermissions(fs.DefaultFilePermissions) {
		return invalid("invalid default_file_permissions: %q", fs.DefaultFilePermissions)
	}
	if !validPermissions(fs.DefaultDirPermissions) {
		return invalid("invalid default_dir_permissions: %q", fs.DefaultDirPermissions)
	}

	for _, dir := range fs.ReservedDirs {
		if err := vpath.Validate(dir); err != nil {
			return invalid("invalid reserved_dirs entry %q", dir)
		}
		if dir == vpath.Root {
			return invalid("reserved_dirs cannot contain the root")
		}
	}
	if err := vpath.Validate(fs.HomeDir); err != nil {
		return invalid("invalid home_dir: %q", fs.HomeDir)
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendBolt:
		if c.Storage.Bolt.Path == "" {
			return invalid("storage.bolt.path is required for the bolt backend")
		}
	case BackendS3:
		if c.Storage.S3.Bucket == "" {
			return invalid("storage.s3.bucket is required for the s3 backend")
		}
	default:
		return invalid("invalid storage backend: %s (must be one of: %s)",
			c.Storage.Backend, strings.Join([]string{BackendMemory, BackendBolt, BackendS3}, ", "))
	}

	if c.Storage.Resilience {
		if c.Storage.Retry.MaxAttempts <= 0 {
			return invalid("retry max_attempts must be greater than 0")
		}
		if c.Storage.CircuitBreaker.FailureThreshold == 0 {
			return invalid("circuit_breaker failure_threshold must be greater than 0")
		}
	}

	if _, err := utils.ParseLogLevel(c.Logging.Level); err != nil {
		return invalid("invalid log level: %s (must be one of: DEBUG, INFO, WARN, ERROR)", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console", "text":
	default:
		return invalid("invalid log format: %s", c.Logging.Format)
	}

	if c.Health.ErrorThreshold <= 0 || c.Health.RecoveryThreshold <= 0 {
		return invalid("health error_threshold and recovery_threshold must be greater than 0")
	}
	if c.Health.UnavailableThreshold < c.Health.ErrorThreshold {
		return invalid("health unavailable_threshold cannot be below error_threshold")
	}

	if c.API.Enabled && c.API.Address == "" {
		return invalid("api address is required when the api is enabled")
	}
	if c.API.MaxBodySize < 0 {
		return invalid("api max_body_size cannot be negative")
	}

	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		return invalid("metrics namespace is required when metrics are enabled")
	}

	return nil
}

// Limits parses the size limits.
func (f FilesystemConfig) Limits() (maxFile, maxTotal int64, err error) {
	maxFile, err = utils.ParseBytes(f.MaxFileSize)
	if err != nil || maxFile <= 0 {
		return 0, 0, invalid("invalid max_file_size: %q", f.MaxFileSize)
	}
	maxTotal, err = utils.ParseBytes(f.MaxTotalSize)
	if err != nil || maxTotal <= 0 {
		return 0, 0, invalid("invalid max_total_size: %q", f.MaxTotalSize)
	}
	return maxFile, maxTotal, nil
}

func validPermissions(p string) bool {
	if len(p) != 9 {
		return false
	}
	for i, ch := range p {
		want := "rwx"[i%3]
		if ch != '-' && byte(ch) != want {
			return false
		}
	}
	return true
}

func invalid(format string, args ...interface{}) error {
	return errors.Errorf(errors.ErrCodeInvalidConfig, format, args...)
}
