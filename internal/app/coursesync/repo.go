// Package coursesync runs a full reconciliation of one course against a
// source export: parse, match, plan, execute, deduplicate and verify.
package coursesync

import (
	"context"

	"github.com/google/uuid"

	"github.com/heartmarshall/coursesync/internal/domain"
)

// CourseRepo is the persistence contract consumed by the pipeline. It is
// implemented by course.Repo (PostgreSQL) and memstore.Store.
type CourseRepo interface {
	// Reads.
	FindCourse(ctx context.Context, ref string) (domain.Course, error)
	ListChaptersAndLessons(ctx context.Context, courseID uuid.UUID) ([]domain.ChapterWithLessons, error)
	ListAllLessons(ctx context.Context) ([]domain.CorpusLesson, error)
	ListProgressByLessonIDs(ctx context.Context, lessonIDs []uuid.UUID) ([]domain.LessonProgress, error)
	ListContentDetailsByLessonIDs(ctx context.Context, lessonIDs []uuid.UUID) ([]domain.LessonContentDetail, error)

	// Chapters.
	FindChapter(ctx context.Context, courseID uuid.UUID, title string) (domain.Chapter, error)
	CreateChapter(ctx context.Context, courseID uuid.UUID, title string, orderIndex int) (domain.Chapter, error)
	DeleteChapter(ctx context.Context, id uuid.UUID) error

	// Lessons.
	FindLesson(ctx context.Context, chapterID uuid.UUID, title string) (domain.Lesson, error)
	CreateLesson(ctx context.Context, l domain.Lesson) (domain.Lesson, error)
	UpdateLesson(ctx context.Context, id uuid.UUID, params domain.LessonUpdateParams) (domain.Lesson, error)
	UpdateLessonContent(ctx context.Context, id uuid.UUID, content string) error
	DeleteLessons(ctx context.Context, ids []uuid.UUID) (int, error)
	DeleteLessonsByChapter(ctx context.Context, chapterID uuid.UUID) (int, error)

	// Dependents.
	DeleteDependentsByLessonIDs(ctx context.Context, lessonIDs []uuid.UUID) (domain.DependentCounts, error)
	DeleteDependentsByChapter(ctx context.Context, chapterID uuid.UUID) (domain.DependentCounts, error)
	InsertProgress(ctx context.Context, progress []domain.LessonProgress) error
}

// TxManager scopes a unit of work.
type TxManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Recovery takes snapshots and records audit entries.
type Recovery interface {
	Snapshot(ctx context.Context, table, reason string) (domain.BackupSnapshot, error)
	SnapshotTables(ctx context.Context, tables []string, reason string) ([]domain.BackupSnapshot, error)
	Record(ctx context.Context, e domain.AuditEntry)
}

// Backend bundles the collaborators one run writes through.
type Backend struct {
	Repo     CourseRepo
	Tx       TxManager
	Recovery Recovery
}
