// Package config loads backup configuration from environment variables.
//
// All knobs the backup pipeline consumes are collected here so that a
// single invocation carries an immutable snapshot of its configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	backuperrors "github.com/dc-tec/spaces-backup/internal/errors"
)

// Environment variable names understood by the loader.
const (
	EnvSourceBucket   = "SOURCE_BUCKET"
	EnvSourceRegion   = "SOURCE_REGION"
	EnvSourceEndpoint = "SOURCE_ENDPOINT"
	EnvDestBucket     = "DEST_BUCKET"
	EnvDestRegion     = "DEST_REGION"
	EnvDestEndpoint   = "DEST_ENDPOINT"
	EnvSpacesKey      = "SPACES_KEY"
	EnvSpacesSecret   = "SPACES_SECRET"
	EnvArchivePrefix  = "ARCHIVE_PREFIX"

	EnvCompressionLevel  = "COMPRESSION_LEVEL"
	EnvUploadPartSize    = "UPLOAD_PART_SIZE"
	EnvUploadConcurrency = "UPLOAD_CONCURRENCY"
	EnvUsePathStyle      = "USE_PATH_STYLE"
	EnvFetchRateLimit    = "FETCH_RATE_LIMIT"
	EnvBackupSchedule    = "BACKUP_SCHEDULE"
	EnvListenAddr        = "LISTEN_ADDR"
)

// Defaults applied when the corresponding variable is unset.
const (
	DefaultRegion           = "nyc3"
	DefaultArchivePrefix    = "backups"
	DefaultCompressionLevel = 6
	DefaultListenAddr       = ":8080"
)

// Config holds everything one backup invocation needs. It is read-only for
// the invocation's lifetime; concurrent invocations must each hold their own
// copy.
type Config struct {
	// Source bucket information.
	SourceBucket   string
	SourceRegion   string
	SourceEndpoint string

	// Destination bucket information.
	DestBucket   string
	DestRegion   string
	DestEndpoint string

	// Credentials shared by both storage clients.
	AccessKey string
	SecretKey string

	// ArchivePrefix is the key prefix under which archives are stored.
	ArchivePrefix string

	// CompressionLevel is the deflate level (0-9) for archive entries.
	CompressionLevel int

	// UploadPartSize is the multipart upload part size in bytes.
	// Zero selects the SDK default.
	UploadPartSize int64
	// UploadConcurrency is the number of parts uploaded in parallel.
	// Zero selects the SDK default.
	UploadConcurrency int

	// UsePathStyle forces path-style bucket addressing (MinIO and some
	// S3-compatible stores).
	UsePathStyle bool

	// FetchRateLimit caps source GetObject requests per second.
	// Zero means unlimited.
	FetchRateLimit float64

	// BackupSchedule is an optional cron expression for the server binary.
	BackupSchedule string
	// ListenAddr is the HTTP listen address for the server binary.
	ListenAddr string
}

// Load reads configuration from the environment, applies defaults, and
// validates required fields. Missing or malformed values surface as
// ConfigError so the invocation boundary can classify them as client-class
// failures before any network call.
func Load() (*Config, error) {
	cfg := &Config{}

	loadBuckets(cfg)
	loadCredentials(cfg)
	if err := loadTuning(cfg); err != nil {
		return nil, err
	}
	loadServer(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required fields are present and that tuning
// knobs are in range.
func (c *Config) Validate() error {
	if c.SourceBucket == "" {
		return backuperrors.Newf(backuperrors.KindConfig, "validate", "%s environment variable is required", EnvSourceBucket)
	}
	if c.DestBucket == "" {
		return backuperrors.Newf(backuperrors.KindConfig, "validate", "%s environment variable is required", EnvDestBucket)
	}
	if c.AccessKey == "" {
		return backuperrors.Newf(backuperrors.KindConfig, "validate", "%s environment variable is required", EnvSpacesKey)
	}
	if c.SecretKey == "" {
		return backuperrors.Newf(backuperrors.KindConfig, "validate", "%s environment variable is required", EnvSpacesSecret)
	}
	if c.CompressionLevel < 0 || c.CompressionLevel > 9 {
		return backuperrors.Newf(backuperrors.KindConfig, "validate", "compression level %d out of range 0-9", c.CompressionLevel)
	}
	return nil
}

// SpacesEndpoint derives the regional DigitalOcean Spaces endpoint.
func SpacesEndpoint(region string) string {
	return fmt.Sprintf("https://%s.digitaloceanspaces.com", region)
}

// loadBuckets reads bucket names, regions, and endpoints. Endpoints default
// to the regional Spaces URL when unset.
func loadBuckets(cfg *Config) {
	cfg.SourceBucket = strings.TrimSpace(os.Getenv(EnvSourceBucket))
	cfg.SourceRegion = strings.TrimSpace(os.Getenv(EnvSourceRegion))
	if cfg.SourceRegion == "" {
		cfg.SourceRegion = DefaultRegion
	}
	cfg.SourceEndpoint = strings.TrimSpace(os.Getenv(EnvSourceEndpoint))
	if cfg.SourceEndpoint == "" {
		cfg.SourceEndpoint = SpacesEndpoint(cfg.SourceRegion)
	}

	cfg.DestBucket = strings.TrimSpace(os.Getenv(EnvDestBucket))
	cfg.DestRegion = strings.TrimSpace(os.Getenv(EnvDestRegion))
	if cfg.DestRegion == "" {
		cfg.DestRegion = DefaultRegion
	}
	cfg.DestEndpoint = strings.TrimSpace(os.Getenv(EnvDestEndpoint))
	if cfg.DestEndpoint == "" {
		cfg.DestEndpoint = SpacesEndpoint(cfg.DestRegion)
	}

	cfg.ArchivePrefix = strings.TrimSpace(os.Getenv(EnvArchivePrefix))
	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = DefaultArchivePrefix
	}
}

// loadCredentials reads the shared Spaces key pair.
func loadCredentials(cfg *Config) {
	cfg.AccessKey = strings.TrimSpace(os.Getenv(EnvSpacesKey))
	cfg.SecretKey = strings.TrimSpace(os.Getenv(EnvSpacesSecret))
}

// loadTuning reads compression, upload, and rate-limit knobs.
func loadTuning(cfg *Config) error {
	cfg.CompressionLevel = DefaultCompressionLevel
	if v := strings.TrimSpace(os.Getenv(EnvCompressionLevel)); v != "" {
		level, err := strconv.Atoi(v)
		if err != nil {
			return backuperrors.Newf(backuperrors.KindConfig, "load", "invalid %s value %q: %v", EnvCompressionLevel, v, err)
		}
		cfg.CompressionLevel = level
	}

	if v := strings.TrimSpace(os.Getenv(EnvUploadPartSize)); v != "" {
		partSize, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return backuperrors.Newf(backuperrors.KindConfig, "load", "invalid %s value %q: %v", EnvUploadPartSize, v, err)
		}
		cfg.UploadPartSize = partSize
	}

	if v := strings.TrimSpace(os.Getenv(EnvUploadConcurrency)); v != "" {
		concurrency, err := strconv.Atoi(v)
		if err != nil {
			return backuperrors.Newf(backuperrors.KindConfig, "load", "invalid %s value %q: %v", EnvUploadConcurrency, v, err)
		}
		cfg.UploadConcurrency = concurrency
	}

	if v := strings.TrimSpace(os.Getenv(EnvUsePathStyle)); v != "" {
		usePathStyle, err := strconv.ParseBool(v)
		if err != nil {
			return backuperrors.Newf(backuperrors.KindConfig, "load", "invalid %s value %q: %v", EnvUsePathStyle, v, err)
		}
		cfg.UsePathStyle = usePathStyle
	}

	if v := strings.TrimSpace(os.Getenv(EnvFetchRateLimit)); v != "" {
		qps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return backuperrors.Newf(backuperrors.KindConfig, "load", "invalid %s value %q: %v", EnvFetchRateLimit, v, err)
		}
		cfg.FetchRateLimit = qps
	}

	return nil
}

// loadServer reads server-mode settings.
func loadServer(cfg *Config) {
	cfg.BackupSchedule = strings.TrimSpace(os.Getenv(EnvBackupSchedule))
	cfg.ListenAddr = strings.TrimSpace(os.Getenv(EnvListenAddr))
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
}
