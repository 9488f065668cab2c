// Package config loads abxctl settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"

	"abxcore/internal/blob"
	"abxcore/internal/core"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds every setting read from ABX_* variables.
type Config struct {
	StorageDriver string `envconfig:"ABX_STORAGE_DRIVER" default:"sqlite"`
	SQLitePath    string `envconfig:"ABX_SQLITE_PATH" default:"abx.db"`
	PostgresDSN   string `envconfig:"ABX_POSTGRES_DSN" default:"postgres://localhost/abx?sslmode=disable"`

	BlobDriver        string `envconfig:"ABX_BLOB_DRIVER" default:"fs"`
	BlobFSRoot        string `envconfig:"ABX_BLOB_FS_ROOT" default:"./backups"`
	S3Bucket          string `envconfig:"ABX_BLOB_S3_BUCKET"`
	S3Region          string `envconfig:"ABX_BLOB_S3_REGION" default:"us-east-1"`
	S3Endpoint        string `envconfig:"ABX_BLOB_S3_ENDPOINT"`
	S3PathStyle       bool   `envconfig:"ABX_BLOB_S3_PATH_STYLE" default:"false"`
	S3AccessKeyID     string `envconfig:"ABX_BLOB_S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `envconfig:"ABX_BLOB_S3_SECRET_ACCESS_KEY"`

	BackupKeep int `envconfig:"ABX_BACKUP_KEEP" default:"4"`

	LogLevel       string `envconfig:"ABX_LOG_LEVEL" default:"info"`
	LogDevelopment bool   `envconfig:"ABX_LOG_DEVELOPMENT" default:"false"`

	SeedAntibiotics bool `envconfig:"ABX_SEED_ANTIBIOTICS" default:"false"`
}

// Load reads the given .env files (".env" when none are named) and then
// the process environment. Missing .env files are not an error; variables
// already set in the environment win over file values.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects unknown drivers and nonsensical values.
func (c *Config) Validate() error {
	switch core.StorageDriver(c.StorageDriver) {
	case core.StorageMemory, core.StorageSQLite, core.StoragePostgres:
	default:
		return fmt.Errorf("ABX_STORAGE_DRIVER: unknown driver %q", c.StorageDriver)
	}
	switch blob.Driver(c.BlobDriver) {
	case blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("ABX_BLOB_S3_BUCKET is required for the s3 blob driver")
		}
	default:
		return fmt.Errorf("ABX_BLOB_DRIVER: unknown driver %q", c.BlobDriver)
	}
	if c.BackupKeep < 1 {
		return fmt.Errorf("ABX_BACKUP_KEEP must be at least 1, got %d", c.BackupKeep)
	}
	return nil
}

// Storage returns the persistent store selection.
func (c *Config) Storage() core.StorageConfig {
	return core.StorageConfig{
		Driver:      core.StorageDriver(c.StorageDriver),
		SQLitePath:  c.SQLitePath,
		PostgresDSN: c.PostgresDSN,
	}
}

// Blob returns the backup blob store selection.
func (c *Config) Blob() blob.Config {
	return blob.Config{
		Driver: blob.Driver(c.BlobDriver),
		FSRoot: c.BlobFSRoot,
		S3: blob.S3Config{
			Region:          c.S3Region,
			Bucket:          c.S3Bucket,
			Endpoint:        c.S3Endpoint,
			AccessKeyID:     c.S3AccessKeyID,
			SecretAccessKey: c.S3SecretAccessKey,
			PathStyle:       c.S3PathStyle,
		},
	}
}
