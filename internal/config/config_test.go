package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestFromLookupDefaults(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(nil))
	if err != nil {
		t.Fatalf("FromLookup: %v", err)
	}
	if cfg.StorageDriver != "sqlite" || cfg.SQLitePath != "./detailcrm.db" {
		t.Fatalf("unexpected storage defaults: %+v", cfg)
	}
	if cfg.SeedPolicy != "seed-once" {
		t.Fatalf("expected seed-once default, got %s", cfg.SeedPolicy)
	}
	if cfg.RemoteBackoff != 500*time.Millisecond {
		t.Fatalf("expected 500ms backoff, got %v", cfg.RemoteBackoff)
	}
}

func TestFromLookupOverrides(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{
		"DETAILCRM_STORAGE_DRIVER":        "Postgres",
		"DETAILCRM_POSTGRES_DSN":          "postgres://x",
		"DETAILCRM_REDIS_DB":              "3",
		"DETAILCRM_REMOTE_BACKOFF":        "2s",
		"DETAILCRM_ARCHIVE_S3_PATH_STYLE": "TRUE",
		"DETAILCRM_SEED_POLICY":           "reseed-on-empty",
	}))
	if err != nil {
		t.Fatalf("FromLookup: %v", err)
	}
	if cfg.StorageDriver != "postgres" || cfg.PostgresDSN != "postgres://x" {
		t.Fatalf("storage override not applied: %+v", cfg)
	}
	if cfg.RedisDB != 3 || cfg.RemoteBackoff != 2*time.Second || !cfg.ArchiveS3PathStyle {
		t.Fatalf("typed overrides not applied: %+v", cfg)
	}
	if cfg.SeedPolicy != "reseed-on-empty" {
		t.Fatalf("seed policy override not applied")
	}
}

func TestFromLookupRejectsInvalidValues(t *testing.T) {
	_, err := FromLookup(lookupFrom(map[string]string{
		"DETAILCRM_STORAGE_DRIVER": "floppy",
		"DETAILCRM_REDIS_DB":       "two",
		"DETAILCRM_SEED_POLICY":    "never",
	}))
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, want := range []string{"floppy", "DETAILCRM_REDIS_DB", "never"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("DETAILCRM_LOG_LEVEL=debug\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	chdir(t, dir)
	t.Setenv("DETAILCRM_STORAGE_DRIVER", "memory")
	t.Cleanup(func() { _ = os.Unsetenv("DETAILCRM_LOG_LEVEL") })
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected log level from .env, got %s", cfg.LogLevel)
	}
	if cfg.StorageDriver != "memory" {
		t.Fatalf("expected env override, got %s", cfg.StorageDriver)
	}
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
