package domain

// SyncMode selects how the executor applies a plan.
type SyncMode string

const (
	// SyncModeMerge creates and updates, never deletes.
	SyncModeMerge SyncMode = "merge"
	// SyncModeExact replaces every chapter's lessons with the source rows.
	SyncModeExact SyncMode = "exact"
)

func (m SyncMode) String() string { return string(m) }

func (m SyncMode) IsValid() bool {
	switch m {
	case SyncModeMerge, SyncModeExact:
		return true
	}
	return false
}

// IsDestructive reports whether the mode may delete persisted rows.
func (m SyncMode) IsDestructive() bool { return m == SyncModeExact }

// MatchStrategy names the matcher strategy that paired a source record.
type MatchStrategy string

const (
	MatchStrategyExact       MatchStrategy = "exact"
	MatchStrategyClean       MatchStrategy = "clean"
	MatchStrategyContainment MatchStrategy = "containment"
	MatchStrategyKeyword     MatchStrategy = "keyword"
	MatchStrategyFallback    MatchStrategy = "fallback"
	MatchStrategyNone        MatchStrategy = "none"
)

func (s MatchStrategy) String() string { return string(s) }

func (s MatchStrategy) IsValid() bool {
	switch s {
	case MatchStrategyExact, MatchStrategyClean, MatchStrategyContainment,
		MatchStrategyKeyword, MatchStrategyFallback, MatchStrategyNone:
		return true
	}
	return false
}

// Confidence returns the tier a strategy's matches are reported with.
func (s MatchStrategy) Confidence() ConfidenceTier {
	switch s {
	case MatchStrategyExact, MatchStrategyClean:
		return ConfidenceHigh
	case MatchStrategyContainment, MatchStrategyKeyword:
		return ConfidenceMedium
	case MatchStrategyFallback:
		return ConfidenceLow
	}
	return ConfidenceNone
}

// ConfidenceTier grades how trustworthy a match is.
type ConfidenceTier string

const (
	ConfidenceHigh   ConfidenceTier = "high"
	ConfidenceMedium ConfidenceTier = "medium"
	ConfidenceLow    ConfidenceTier = "low"
	ConfidenceNone   ConfidenceTier = "none"
)

func (c ConfidenceTier) String() string { return string(c) }

// AuditAction represents the kind of mutation recorded in the audit log.
type AuditAction string

const (
	AuditActionCreate  AuditAction = "CREATE"
	AuditActionUpdate  AuditAction = "UPDATE"
	AuditActionDelete  AuditAction = "DELETE"
	AuditActionRestore AuditAction = "RESTORE"
)

func (a AuditAction) String() string { return string(a) }

func (a AuditAction) IsValid() bool {
	switch a {
	case AuditActionCreate, AuditActionUpdate, AuditActionDelete, AuditActionRestore:
		return true
	}
	return false
}

// ChangeSource tags who or what produced a mutation.
type ChangeSource string

const (
	ChangeSourceBulkSync   ChangeSource = "bulk-sync"
	ChangeSourceAdminPanel ChangeSource = "admin-panel"
	ChangeSourceRecovery   ChangeSource = "recovery"
	ChangeSourceDedup      ChangeSource = "dedup"
)

func (c ChangeSource) String() string { return string(c) }

func (c ChangeSource) IsValid() bool {
	switch c {
	case ChangeSourceBulkSync, ChangeSourceAdminPanel, ChangeSourceRecovery, ChangeSourceDedup:
		return true
	}
	return false
}

// DriftKind classifies a structural difference between source and database.
type DriftKind string

const (
	DriftMissingFromSource   DriftKind = "missing-from-source"
	DriftMissingFromDatabase DriftKind = "missing-from-database"
)

func (d DriftKind) String() string { return string(d) }

// Table names the engine reads and writes. Backups are restricted to these.
const (
	TableChapters       = "chapters"
	TableLessons        = "lessons"
	TableLessonProgress = "lesson_progress"
	TableContentDetails = "lesson_content_details"
)

// BackupTables lists the snapshot-able tables in parent-to-child order.
var BackupTables = []string{TableChapters, TableLessons, TableLessonProgress, TableContentDetails}

// IsBackupTable reports whether name may be snapshotted and restored.
func IsBackupTable(name string) bool {
	for _, t := range BackupTables {
		if t == name {
			return true
		}
	}
	return false
}
