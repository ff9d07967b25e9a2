package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	DatabaseURL string // WATTSON_DATABASE_URL (required)
	HTTPAddr    string // WATTSON_HTTP_ADDR (default ":8080")
	NATSURL     string // WATTSON_NATS_URL (optional, empty = no events)
	AuthToken   string // WATTSON_AUTH_TOKEN (optional, empty = auth disabled)
	Timezone    string // WATTSON_TZ (optional, empty = system local; stats windows)
	RolesFile   string // WATTSON_ROLES_FILE (optional, empty = built-in policy)
	UsersFile   string // WATTSON_USERS_FILE (optional, empty = IDs render as unknown)

	// Backup settings
	BackupInterval   time.Duration // WATTSON_BACKUP_INTERVAL (default 1h; 0 = disabled)
	BackupS3Bucket   string        // WATTSON_BACKUP_S3_BUCKET (enables S3 when set)
	BackupS3Endpoint string        // WATTSON_BACKUP_S3_ENDPOINT (custom endpoint for MinIO)
	BackupS3Region   string        // WATTSON_BACKUP_S3_REGION (default "us-east-1")
	BackupS3Prefix   string        // WATTSON_BACKUP_S3_PREFIX (default "wattson/backups")
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:      os.Getenv("WATTSON_DATABASE_URL"),
		HTTPAddr:         envOrDefault("WATTSON_HTTP_ADDR", ":8080"),
		NATSURL:          os.Getenv("WATTSON_NATS_URL"),
		AuthToken:        os.Getenv("WATTSON_AUTH_TOKEN"),
		Timezone:         os.Getenv("WATTSON_TZ"),
		RolesFile:        os.Getenv("WATTSON_ROLES_FILE"),
		UsersFile:        os.Getenv("WATTSON_USERS_FILE"),
		BackupS3Bucket:   os.Getenv("WATTSON_BACKUP_S3_BUCKET"),
		BackupS3Endpoint: os.Getenv("WATTSON_BACKUP_S3_ENDPOINT"),
		BackupS3Region:   envOrDefault("WATTSON_BACKUP_S3_REGION", "us-east-1"),
		BackupS3Prefix:   envOrDefault("WATTSON_BACKUP_S3_PREFIX", "wattson/backups"),
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("WATTSON_DATABASE_URL is required")
	}

	intervalStr := envOrDefault("WATTSON_BACKUP_INTERVAL", "1h")
	if intervalStr != "" {
		d, err := time.ParseDuration(intervalStr)
		if err != nil {
			return nil, fmt.Errorf("WATTSON_BACKUP_INTERVAL: %w", err)
		}
		c.BackupInterval = d
	}

	return c, nil
}

// Location resolves the configured stats time zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("WATTSON_TZ: %w", err)
	}
	return loc, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
