package s3

import (
	"time"
)

// Config represents S3 backend configuration
type Config struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id" split_words:"true"`
	SecretAccessKey string `yaml:"secret_access_key" split_words:"true"`
	SessionToken    string `yaml:"session_token" split_words:"true"`
	ForcePathStyle  bool   `yaml:"force_path_style" split_words:"true"`

	// Performance settings
	MaxRetries     int           `yaml:"max_retries" split_words:"true"`
	RequestTimeout time.Duration `yaml:"request_timeout" split_words:"true"`
	Concurrency    int           `yaml:"concurrency"`

	// Storage class for new objects: STANDARD, STANDARD_IA, ONEZONE_IA or
	// INTELLIGENT_TIERING
	StorageTier string `yaml:"storage_tier" split_words:"true"`

	// CargoShip optimized uploads
	EnableCargoShipOptimization bool `yaml:"enable_cargoship_optimization" split_words:"true"`
}

// S3 storage tiers usable for records
const (
	TierStandard    = "STANDARD"
	TierStandardIA  = "STANDARD_IA"
	TierOneZoneIA   = "ONEZONE_IA"
	TierIntelligent = "INTELLIGENT_TIERING"
)

// NewDefaultConfig returns a configuration with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Region:         "us-east-1",
		Prefix:         "webvfs/",
		MaxRetries:     3,
		RequestTimeout: 30 * time.Second,
		Concurrency:    8,
		StorageTier:    TierStandard,
	}
}
