package config

import (
	"time"

	"github.com/heartmarshall/coursesync/internal/domain"
)

// Config is the root application configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Sync     SyncConfig     `yaml:"sync"`
	Backup   BackupConfig   `yaml:"backup"`

	// Path is the file the config was read from, empty for ENV-only.
	Path string `yaml:"-"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"                env:"DATABASE_DSN"                env-required:"true"`
	MaxConns        int32         `yaml:"max_conns"          env:"DATABASE_MAX_CONNS"          env-default:"5"`
	MinConns        int32         `yaml:"min_conns"          env:"DATABASE_MIN_CONNS"          env-default:"1"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"  env:"DATABASE_MAX_CONN_LIFETIME"  env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DATABASE_MAX_CONN_IDLE_TIME" env-default:"30m"`
	// ApplicationName tags sync sessions in pg_stat_activity.
	ApplicationName string `yaml:"application_name" env:"DATABASE_APPLICATION_NAME" env-default:"coursesync"`
	// LockTimeout bounds waits on table locks taken by snapshot and restore.
	LockTimeout time.Duration `yaml:"lock_timeout" env:"DATABASE_LOCK_TIMEOUT" env-default:"30s"`
}

// LogConfig holds logging settings. When File is set, logs are also written
// to a size-rotated file.
type LogConfig struct {
	Level      string `yaml:"level"        env:"LOG_LEVEL"        env-default:"info"`
	Format     string `yaml:"format"       env:"LOG_FORMAT"       env-default:"text"`
	File       string `yaml:"file"         env:"LOG_FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb"  env:"LOG_MAX_SIZE_MB"  env-default:"50"`
	MaxBackups int    `yaml:"max_backups"  env:"LOG_MAX_BACKUPS"  env-default:"5"`
	MaxAgeDays int    `yaml:"max_age_days" env:"LOG_MAX_AGE_DAYS" env-default:"30"`
}

// SyncConfig holds reconciliation engine settings.
type SyncConfig struct {
	MinContentLength     int           `yaml:"min_content_length"     env:"SYNC_MIN_CONTENT_LENGTH"     env-default:"20"`
	DefaultMode          string        `yaml:"default_mode"           env:"SYNC_DEFAULT_MODE"           env-default:"merge"`
	PreserveProgress     bool          `yaml:"preserve_progress"      env:"SYNC_PRESERVE_PROGRESS"      env-default:"false"`
	FallbackEnabled      bool          `yaml:"fallback_enabled"       env:"SYNC_FALLBACK_ENABLED"       env-default:"true"`
	MinContainmentLength int           `yaml:"min_containment_length" env:"SYNC_MIN_CONTAINMENT_LENGTH" env-default:"5"`
	MinKeywordScore      int           `yaml:"min_keyword_score"      env:"SYNC_MIN_KEYWORD_SCORE"      env-default:"2"`
	KeywordsPath         string        `yaml:"keywords_path"          env:"SYNC_KEYWORDS_PATH"`
	FingerprintPrefix    int           `yaml:"fingerprint_prefix"     env:"SYNC_FINGERPRINT_PREFIX"     env-default:"500"`
	Timeout              time.Duration `yaml:"timeout"                env:"SYNC_TIMEOUT"                env-default:"30m"`
	SkipDedup            bool          `yaml:"skip_dedup"             env:"SYNC_SKIP_DEDUP"             env-default:"false"`
}

// Mode returns DefaultMode as a domain.SyncMode.
func (c SyncConfig) Mode() domain.SyncMode { return domain.SyncMode(c.DefaultMode) }

// BackupConfig holds snapshot settings.
type BackupConfig struct {
	RetentionDays       int  `yaml:"retention_days"        env:"BACKUP_RETENTION_DAYS"        env-default:"30"`
	SnapshotBeforeDedup bool `yaml:"snapshot_before_dedup" env:"BACKUP_SNAPSHOT_BEFORE_DEDUP" env-default:"true"`
}

// Retention returns RetentionDays as a duration.
func (c BackupConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}
