package coursesync

import (
	"fmt"

	"github.com/heartmarshall/coursesync/internal/config"
	"github.com/heartmarshall/coursesync/internal/domain"
)

// Config holds the settings of one sync run.
type Config struct {
	SourcePath string
	// CourseRef is a course id or slug.
	CourseRef string
	Mode      domain.SyncMode
	DryRun    bool

	PreserveProgress    bool
	SkipDedup           bool
	SnapshotBeforeDedup bool

	MinContentLength     int
	FallbackEnabled      bool
	MinContainmentLength int
	MinKeywordScore      int
	KeywordsPath         string
	FingerprintPrefix    int
}

// ConfigFrom fills the engine settings from the application config. Source
// path, course and run flags are left to the caller.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Mode:                 cfg.Sync.Mode(),
		PreserveProgress:     cfg.Sync.PreserveProgress,
		SkipDedup:            cfg.Sync.SkipDedup,
		SnapshotBeforeDedup:  cfg.Backup.SnapshotBeforeDedup,
		MinContentLength:     cfg.Sync.MinContentLength,
		FallbackEnabled:      cfg.Sync.FallbackEnabled,
		MinContainmentLength: cfg.Sync.MinContainmentLength,
		MinKeywordScore:      cfg.Sync.MinKeywordScore,
		KeywordsPath:         cfg.Sync.KeywordsPath,
		FingerprintPrefix:    cfg.Sync.FingerprintPrefix,
	}
}

// Validate checks the run settings.
func (c Config) Validate() error {
	var errs []domain.FieldError
	if c.SourcePath == "" {
		errs = append(errs, domain.FieldError{Field: "source", Message: "required"})
	}
	if c.CourseRef == "" {
		errs = append(errs, domain.FieldError{Field: "course", Message: "required"})
	}
	if !c.Mode.IsValid() {
		errs = append(errs, domain.FieldError{Field: "mode", Message: fmt.Sprintf("must be %q or %q", domain.SyncModeMerge, domain.SyncModeExact)})
	}
	if c.MinContentLength < 0 {
		errs = append(errs, domain.FieldError{Field: "min_content_length", Message: "must not be negative"})
	}
	if len(errs) > 0 {
		return domain.NewValidationErrors(errs)
	}
	return nil
}
