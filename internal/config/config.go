// Package config loads detailcrm settings from the environment.
//
//	DETAILCRM_HTTP_ADDR            listen address (default :8080)
//	DETAILCRM_STORAGE_DRIVER       memory|sqlite|postgres|redis (default sqlite)
//	DETAILCRM_SQLITE_PATH          sqlite file (default ./detailcrm.db)
//	DETAILCRM_POSTGRES_DSN         DSN when driver=postgres
//	DETAILCRM_REDIS_ADDR           redis address (driver=redis or bus=redis)
//	DETAILCRM_REDIS_PASSWORD       optional
//	DETAILCRM_REDIS_DB             database index (default 0)
//	DETAILCRM_REDIS_NAMESPACE      key/channel namespace (default detailcrm)
//	DETAILCRM_BUS_DRIVER           local|redis (default local)
//	DETAILCRM_ARCHIVE_DRIVER       fs|s3|memory (default fs)
//	DETAILCRM_ARCHIVE_FS_ROOT      root when driver=fs (default ./archive)
//	DETAILCRM_ARCHIVE_S3_*         BUCKET, REGION, ENDPOINT, PATH_STYLE,
//	                               ACCESS_KEY, SECRET_KEY (default AWS chain)
//	DETAILCRM_SEED_POLICY          seed-once|reseed-on-empty (default seed-once)
//	DETAILCRM_REMOTE_BASE_URL      fallback backend for unrecognized endpoints
//	DETAILCRM_REMOTE_BACKOFF       retry backoff (default 500ms)
//	DETAILCRM_REMOTE_TIMEOUT       per-attempt timeout (default 10s)
//	DETAILCRM_JWT_SECRET           session token signing secret
//	DETAILCRM_LOG_LEVEL            debug|info|warn|error (default info)
//	DETAILCRM_LOG_FORMAT           text|json (default text)
//	DETAILCRM_RETENTION_SCHEDULE   cron spec (default @daily)
//	DETAILCRM_RETENTION_USAGE_DAYS usage history window (default 365, 0 disables)
//	DETAILCRM_RETENTION_ALERT_DAYS read alert window (default 30, 0 disables)
//
// A .env file in the working directory is loaded first when present;
// variables already set in the process environment win.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting.
type Config struct {
	HTTPAddr string

	StorageDriver string
	SQLitePath    string
	PostgresDSN   string

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisNamespace string

	BusDriver string

	ArchiveDriver      string
	ArchiveFSRoot      string
	ArchiveS3Bucket    string
	ArchiveS3Region    string
	ArchiveS3Endpoint  string
	ArchiveS3PathStyle bool
	ArchiveS3AccessKey string
	ArchiveS3SecretKey string

	SeedPolicy string

	RemoteBaseURL string
	RemoteBackoff time.Duration
	RemoteTimeout time.Duration

	JWTSecret string

	LogLevel  string
	LogFormat string

	RetentionSchedule  string
	RetentionUsageDays int
	RetentionAlertDays int
}

// Load reads .env (if any) and the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from an arbitrary variable source.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	get := func(name, def string) string {
		if v, ok := lookup("DETAILCRM_" + name); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}
	var errs []error
	intVar := func(name string, def int) int {
		raw := get(name, "")
		if raw == "" {
			return def
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("DETAILCRM_%s: %w", name, err))
			return def
		}
		return n
	}
	durVar := func(name string, def time.Duration) time.Duration {
		raw := get(name, "")
		if raw == "" {
			return def
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("DETAILCRM_%s: %w", name, err))
			return def
		}
		return d
	}

	cfg := Config{
		HTTPAddr:           get("HTTP_ADDR", ":8080"),
		StorageDriver:      strings.ToLower(get("STORAGE_DRIVER", "sqlite")),
		SQLitePath:         get("SQLITE_PATH", "./detailcrm.db"),
		PostgresDSN:        get("POSTGRES_DSN", ""),
		RedisAddr:          get("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      get("REDIS_PASSWORD", ""),
		RedisDB:            intVar("REDIS_DB", 0),
		RedisNamespace:     get("REDIS_NAMESPACE", "detailcrm"),
		BusDriver:          strings.ToLower(get("BUS_DRIVER", "local")),
		ArchiveDriver:      strings.ToLower(get("ARCHIVE_DRIVER", "fs")),
		ArchiveFSRoot:      get("ARCHIVE_FS_ROOT", "./archive"),
		ArchiveS3Bucket:    get("ARCHIVE_S3_BUCKET", ""),
		ArchiveS3Region:    get("ARCHIVE_S3_REGION", ""),
		ArchiveS3Endpoint:  get("ARCHIVE_S3_ENDPOINT", ""),
		ArchiveS3PathStyle: strings.EqualFold(get("ARCHIVE_S3_PATH_STYLE", "false"), "true"),
		ArchiveS3AccessKey: get("ARCHIVE_S3_ACCESS_KEY", ""),
		ArchiveS3SecretKey: get("ARCHIVE_S3_SECRET_KEY", ""),
		SeedPolicy:         strings.ToLower(get("SEED_POLICY", "seed-once")),
		RemoteBaseURL:      get("REMOTE_BASE_URL", ""),
		RemoteBackoff:      durVar("REMOTE_BACKOFF", 500*time.Millisecond),
		RemoteTimeout:      durVar("REMOTE_TIMEOUT", 10*time.Second),
		JWTSecret:          get("JWT_SECRET", "dev_secret"),
		LogLevel:           get("LOG_LEVEL", "info"),
		LogFormat:          get("LOG_FORMAT", "text"),
		RetentionSchedule:  get("RETENTION_SCHEDULE", "@daily"),
		RetentionUsageDays: intVar("RETENTION_USAGE_DAYS", 365),
		RetentionAlertDays: intVar("RETENTION_ALERT_DAYS", 30),
	}

	switch cfg.StorageDriver {
	case "memory", "sqlite", "postgres", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %s", cfg.StorageDriver))
	}
	switch cfg.BusDriver {
	case "local", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown bus driver %s", cfg.BusDriver))
	}
	switch cfg.SeedPolicy {
	case "seed-once", "reseed-on-empty":
	default:
		errs = append(errs, fmt.Errorf("unknown seed policy %s", cfg.SeedPolicy))
	}
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Memory returns a configuration for a fully in-memory instance, used by
// tests and the demo mode.
func Memory() Config {
	return Config{
		HTTPAddr:           ":0",
		StorageDriver:      "memory",
		BusDriver:          "local",
		ArchiveDriver:      "memory",
		SeedPolicy:         "seed-once",
		RemoteBackoff:      500 * time.Millisecond,
		RemoteTimeout:      10 * time.Second,
		JWTSecret:          "test_secret",
		LogLevel:           "info",
		LogFormat:          "text",
		RetentionSchedule:  "@daily",
		RetentionUsageDays: 365,
		RetentionAlertDays: 30,
	}
}
