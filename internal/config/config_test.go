package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/heartmarshall/coursesync/internal/domain"
)

func validEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_DSN", "postgres://u:p@localhost:5432/testdb")
}

func writeYAML(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	return path
}

func validConfig() *Config {
	return &Config{
		Database: DatabaseConfig{DSN: "postgres://u:p@localhost:5432/testdb", MaxConns: 5, MinConns: 1},
		Log:      LogConfig{Level: "info", Format: "text", MaxSizeMB: 50},
		Sync: SyncConfig{
			MinContentLength:     20,
			DefaultMode:          "merge",
			FallbackEnabled:      true,
			MinContainmentLength: 5,
			MinKeywordScore:      2,
			FingerprintPrefix:    500,
			Timeout:              30 * time.Minute,
		},
		Backup: BackupConfig{RetentionDays: 30, SnapshotBeforeDedup: true},
	}
}

const validYAML = `
database:
  dsn: "postgres://u:p@localhost:5432/testdb"
  max_conns: 10
  min_conns: 2

log:
  level: "debug"
  format: "json"
  file: "/var/log/coursesync.log"
  max_size_mb: 10

sync:
  min_content_length: 40
  default_mode: "exact"
  preserve_progress: true
  fallback_enabled: false
  min_keyword_score: 3
  keywords_path: "topics.yaml"
  fingerprint_prefix: 300
  timeout: "10m"

backup:
  retention_days: 7
  snapshot_before_dedup: false
`

func TestLoad_ValidYAML(t *testing.T) {
	path := writeYAML(t, t.TempDir(), validYAML)
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Path != path {
		t.Errorf("cfg.Path = %q, want %q", cfg.Path, path)
	}
	if cfg.Database.MaxConns != 10 {
		t.Errorf("database.max_conns = %d, want 10", cfg.Database.MaxConns)
	}
	if cfg.Log.Level != "debug" || cfg.Log.File != "/var/log/coursesync.log" || cfg.Log.MaxSizeMB != 10 {
		t.Errorf("log = %+v", cfg.Log)
	}
	if cfg.Sync.Mode() != domain.SyncModeExact {
		t.Errorf("sync.default_mode = %q, want exact", cfg.Sync.DefaultMode)
	}
	if !cfg.Sync.PreserveProgress || cfg.Sync.FallbackEnabled {
		t.Errorf("sync flags = %+v", cfg.Sync)
	}
	if cfg.Sync.MinContentLength != 40 || cfg.Sync.MinKeywordScore != 3 || cfg.Sync.FingerprintPrefix != 300 {
		t.Errorf("sync numbers = %+v", cfg.Sync)
	}
	// Not set in YAML: default applies.
	if cfg.Sync.MinContainmentLength != 5 {
		t.Errorf("sync.min_containment_length = %d, want default 5", cfg.Sync.MinContainmentLength)
	}
	if cfg.Sync.Timeout != 10*time.Minute {
		t.Errorf("sync.timeout = %v, want 10m", cfg.Sync.Timeout)
	}
	if cfg.Backup.Retention() != 7*24*time.Hour {
		t.Errorf("backup retention = %v", cfg.Backup.Retention())
	}
}

func TestLoad_ENVOverridesYAML(t *testing.T) {
	path := writeYAML(t, t.TempDir(), validYAML)
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("SYNC_DEFAULT_MODE", "merge")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Sync.Mode() != domain.SyncModeMerge {
		t.Errorf("sync.default_mode = %q, want merge (ENV override)", cfg.Sync.DefaultMode)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("log.level = %q, want warn (ENV override)", cfg.Log.Level)
	}
}

func TestLoad_NoFile_ENVOnly(t *testing.T) {
	validEnv(t)
	t.Setenv("CONFIG_PATH", "")
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Sync.MinContentLength != 20 {
		t.Errorf("sync.min_content_length = %d, want 20 (default)", cfg.Sync.MinContentLength)
	}
	if cfg.Sync.PreserveProgress {
		t.Error("sync.preserve_progress should default to false")
	}
	if !cfg.Sync.FallbackEnabled {
		t.Error("sync.fallback_enabled should default to true")
	}
	if cfg.Sync.Timeout != 30*time.Minute {
		t.Errorf("sync.timeout = %v, want 30m", cfg.Sync.Timeout)
	}
	if cfg.Database.ApplicationName != "coursesync" || cfg.Database.LockTimeout != 30*time.Second {
		t.Errorf("database session params = %q / %v", cfg.Database.ApplicationName, cfg.Database.LockTimeout)
	}
	if cfg.Path != "" {
		t.Errorf("cfg.Path = %q, want empty without a file", cfg.Path)
	}
}

func TestLoad_ExplicitPathNotFound(t *testing.T) {
	if _, err := LoadFrom("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing explicit config path")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeYAML(t, t.TempDir(), `{{{invalid yaml`)
	if _, err := LoadFrom(path); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "unknown mode", mutate: func(c *Config) { c.Sync.DefaultMode = "replace" }, wantErr: true},
		{name: "negative min content", mutate: func(c *Config) { c.Sync.MinContentLength = -1 }, wantErr: true},
		{name: "zero min content allowed", mutate: func(c *Config) { c.Sync.MinContentLength = 0 }},
		{name: "zero containment length", mutate: func(c *Config) { c.Sync.MinContainmentLength = 0 }, wantErr: true},
		{name: "zero keyword score", mutate: func(c *Config) { c.Sync.MinKeywordScore = 0 }, wantErr: true},
		{name: "zero fingerprint prefix", mutate: func(c *Config) { c.Sync.FingerprintPrefix = 0 }, wantErr: true},
		{name: "zero timeout", mutate: func(c *Config) { c.Sync.Timeout = 0 }, wantErr: true},
		{name: "zero retention", mutate: func(c *Config) { c.Backup.RetentionDays = 0 }, wantErr: true},
		{name: "bad log format", mutate: func(c *Config) { c.Log.Format = "xml" }, wantErr: true},
		{name: "log file without size", mutate: func(c *Config) { c.Log.File = "x.log"; c.Log.MaxSizeMB = 0 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
