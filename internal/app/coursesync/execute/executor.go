// Package execute applies a reconciliation plan to the course store.
package execute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/heartmarshall/coursesync/internal/domain"
)

// ---------------------------------------------------------------------------
// Consumer-defined interfaces (private)
// ---------------------------------------------------------------------------

type courseRepo interface {
	FindChapter(ctx context.Context, courseID uuid.UUID, title string) (domain.Chapter, error)
	CreateChapter(ctx context.Context, courseID uuid.UUID, title string, orderIndex int) (domain.Chapter, error)
	DeleteChapter(ctx context.Context, id uuid.UUID) error
	FindLesson(ctx context.Context, chapterID uuid.UUID, title string) (domain.Lesson, error)
	CreateLesson(ctx context.Context, l domain.Lesson) (domain.Lesson, error)
	UpdateLesson(ctx context.Context, id uuid.UUID, params domain.LessonUpdateParams) (domain.Lesson, error)
	DeleteLessons(ctx context.Context, ids []uuid.UUID) (int, error)
	DeleteLessonsByChapter(ctx context.Context, chapterID uuid.UUID) (int, error)
	DeleteDependentsByLessonIDs(ctx context.Context, lessonIDs []uuid.UUID) (domain.DependentCounts, error)
	DeleteDependentsByChapter(ctx context.Context, chapterID uuid.UUID) (domain.DependentCounts, error)
	ListProgressByLessonIDs(ctx context.Context, lessonIDs []uuid.UUID) ([]domain.LessonProgress, error)
	InsertProgress(ctx context.Context, progress []domain.LessonProgress) error
}

type txManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// auditRecorder writes audit entries on a best-effort basis.
type auditRecorder interface {
	Record(ctx context.Context, e domain.AuditEntry)
}

// ---------------------------------------------------------------------------
// Options and result
// ---------------------------------------------------------------------------

// Options controls how a plan is applied.
type Options struct {
	Mode domain.SyncMode
	// PreserveProgress carries learner progress of replaced lessons over to
	// their replacements in exact mode. Progress of lessons without a
	// replacement is always deleted.
	PreserveProgress bool
}

// OpError is a failed operation. Lesson is empty for chapter-level failures.
type OpError struct {
	Op      string
	Chapter string
	Lesson  string
	Err     error
}

func (e OpError) Error() string {
	if e.Lesson == "" {
		return fmt.Sprintf("%s chapter %q: %v", e.Op, e.Chapter, e.Err)
	}
	return fmt.Sprintf("%s lesson %q in %q: %v", e.Op, e.Lesson, e.Chapter, e.Err)
}

func (e OpError) Unwrap() error { return e.Err }

// Result summarises an execution.
type Result struct {
	Mode              domain.SyncMode
	ChaptersCreated   int
	ChaptersDeleted   int
	LessonsCreated    int
	LessonsUpdated    int
	LessonsUnchanged  int
	LessonsDeleted    int
	DependentsDeleted int
	ProgressCarried   int
	Errors            []OpError
}

// HasErrors reports whether any operation failed.
func (r *Result) HasErrors() bool { return len(r.Errors) > 0 }

// ---------------------------------------------------------------------------
// Executor
// ---------------------------------------------------------------------------

// Executor applies plans. It is not safe for concurrent use.
type Executor struct {
	log   *slog.Logger
	repo  courseRepo
	tx    txManager
	audit auditRecorder
}

// New creates an Executor.
func New(logger *slog.Logger, repo courseRepo, tx txManager, audit auditRecorder) *Executor {
	return &Executor{
		log:   logger.With("component", "executor"),
		repo:  repo,
		tx:    tx,
		audit: audit,
	}
}

// Execute applies p. Failures are collected in the result; Execute itself
// only stops early when ctx is done.
func (e *Executor) Execute(ctx context.Context, p *domain.Plan, opts Options) *Result {
	if opts.Mode == "" {
		opts.Mode = domain.SyncModeMerge
	}
	res := &Result{Mode: opts.Mode}

	switch opts.Mode {
	case domain.SyncModeExact:
		e.executeExact(ctx, p, opts, res)
	default:
		e.executeMerge(ctx, p, res)
	}

	e.log.Info("plan executed",
		slog.String("mode", string(res.Mode)),
		slog.Int("chapters_created", res.ChaptersCreated),
		slog.Int("chapters_deleted", res.ChaptersDeleted),
		slog.Int("lessons_created", res.LessonsCreated),
		slog.Int("lessons_updated", res.LessonsUpdated),
		slog.Int("lessons_unchanged", res.LessonsUnchanged),
		slog.Int("lessons_deleted", res.LessonsDeleted),
		slog.Int("dependents_deleted", res.DependentsDeleted),
		slog.Int("errors", len(res.Errors)),
	)
	return res
}

func (e *Executor) fail(res *Result, op OpError) {
	res.Errors = append(res.Errors, op)
	e.log.Error("operation failed",
		slog.String("op", op.Op),
		slog.String("chapter", op.Chapter),
		slog.String("lesson", op.Lesson),
		slog.String("error", op.Err.Error()),
	)
}

// resolveChapter returns the planned chapter, creating it when it does not
// exist yet. The boolean reports whether it was created.
func (e *Executor) resolveChapter(ctx context.Context, courseID uuid.UUID, cp domain.ChapterPlan) (domain.Chapter, bool, error) {
	if cp.Existing != nil {
		return *cp.Existing, false, nil
	}

	ch, err := e.repo.FindChapter(ctx, courseID, cp.Title)
	if err == nil {
		return ch, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Chapter{}, false, fmt.Errorf("find chapter: %w", err)
	}

	ch, err = e.repo.CreateChapter(ctx, courseID, cp.Title, cp.OrderIndex)
	if err != nil {
		return domain.Chapter{}, false, fmt.Errorf("create chapter: %w", err)
	}
	return ch, true, nil
}

func newLesson(ch domain.Chapter, op domain.LessonOp) domain.Lesson {
	return domain.Lesson{
		ChapterID:  ch.ID,
		CourseID:   ch.CourseID,
		Title:      strings.TrimSpace(op.Record.LessonName),
		Content:    op.Record.Content,
		OrderIndex: op.OrderIndex,
	}
}

// ---------------------------------------------------------------------------
// Audit helpers
// ---------------------------------------------------------------------------

func (e *Executor) auditChapter(ctx context.Context, action domain.AuditAction, ch domain.Chapter) {
	entry := domain.AuditEntry{TableName: domain.TableChapters, RecordID: ch.ID, Action: action}
	if action == domain.AuditActionDelete {
		entry.OldValue = domain.ChapterValues(ch)
	} else {
		entry.NewValue = domain.ChapterValues(ch)
	}
	e.audit.Record(ctx, entry)
}

func (e *Executor) auditLesson(ctx context.Context, action domain.AuditAction, before, after *domain.Lesson) {
	entry := domain.AuditEntry{TableName: domain.TableLessons, Action: action}
	if before != nil {
		entry.RecordID = before.ID
		entry.OldValue = domain.LessonValues(*before)
	}
	if after != nil {
		entry.RecordID = after.ID
		entry.NewValue = domain.LessonValues(*after)
	}
	e.audit.Record(ctx, entry)
}
