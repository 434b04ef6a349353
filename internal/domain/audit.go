package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AuditEntry is an immutable record of one mutation.
type AuditEntry struct {
	ID        uuid.UUID
	RunID     *uuid.UUID
	TableName string
	RecordID  uuid.UUID
	Action    AuditAction
	OldValue  map[string]any
	NewValue  map[string]any
	Source    ChangeSource
	CreatedAt time.Time
}

// BackupSnapshot describes a shadow copy of a table taken at CreatedAt.
type BackupSnapshot struct {
	ID          uuid.UUID
	RunID       *uuid.UUID
	SourceTable string
	ShadowTable string
	RowCount    int64
	Reason      string
	CreatedAt   time.Time
}

// LessonValues renders the audited fields of a lesson.
func LessonValues(l Lesson) map[string]any {
	return map[string]any{
		"chapter_id":  l.ChapterID.String(),
		"course_id":   l.CourseID.String(),
		"title":       l.Title,
		"content":     l.Content,
		"order_index": l.OrderIndex,
	}
}

// ChapterValues renders the audited fields of a chapter.
func ChapterValues(c Chapter) map[string]any {
	return map[string]any{
		"course_id":   c.CourseID.String(),
		"title":       c.Title,
		"order_index": c.OrderIndex,
	}
}

// ShadowTableName returns the shadow table name for a snapshot of table taken
// at ts: <table>_bak_<yyyymmdd_hhmmss>_<first 8 hex digits of id>.
func ShadowTableName(table string, ts time.Time, id uuid.UUID) string {
	hex := strings.ReplaceAll(id.String(), "-", "")
	return fmt.Sprintf("%s_bak_%s_%s", table, ts.UTC().Format("20060102_150405"), hex[:8])
}
