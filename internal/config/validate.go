package config

import (
	"fmt"
	"strings"
)

// Validate performs business-rule validation on the loaded configuration.
// It must be called after loading; Load calls it automatically.
func (c *Config) Validate() error {
	if err := c.Log.validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if err := c.Sync.validate(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if c.Backup.RetentionDays < 1 {
		return fmt.Errorf("backup: retention_days must be >= 1 (got %d)", c.Backup.RetentionDays)
	}
	return nil
}

func (l *LogConfig) validate() error {
	switch strings.ToLower(l.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("format must be json or text (got %q)", l.Format)
	}
	if l.File != "" && l.MaxSizeMB <= 0 {
		return fmt.Errorf("max_size_mb must be > 0 (got %d)", l.MaxSizeMB)
	}
	return nil
}

func (s *SyncConfig) validate() error {
	if !s.Mode().IsValid() {
		return fmt.Errorf("default_mode must be merge or exact (got %q)", s.DefaultMode)
	}
	if s.MinContentLength < 0 {
		return fmt.Errorf("min_content_length must be >= 0 (got %d)", s.MinContentLength)
	}
	if s.MinContainmentLength < 1 {
		return fmt.Errorf("min_containment_length must be >= 1 (got %d)", s.MinContainmentLength)
	}
	if s.MinKeywordScore < 1 {
		return fmt.Errorf("min_keyword_score must be >= 1 (got %d)", s.MinKeywordScore)
	}
	if s.FingerprintPrefix < 1 {
		return fmt.Errorf("fingerprint_prefix must be >= 1 (got %d)", s.FingerprintPrefix)
	}
	if s.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0 (got %s)", s.Timeout)
	}
	return nil
}
