// Package course implements the course tree repository (courses, chapters,
// lessons and their dependent rows) using PostgreSQL.
package course

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	postgres "github.com/heartmarshall/coursesync/internal/adapter/postgres"
	"github.com/heartmarshall/coursesync/internal/domain"
)

var (
	courseColumns   = []string{"id", "slug", "title", "created_at"}
	chapterColumns  = []string{"id", "course_id", "title", "order_index", "created_at", "updated_at"}
	lessonColumns   = []string{"id", "chapter_id", "course_id", "title", "content", "order_index", "created_at", "updated_at"}
	progressColumns = []string{"id", "lesson_id", "user_id", "completed", "completed_at", "updated_at"}
)

// Repo provides course tree persistence backed by PostgreSQL.
type Repo struct {
	pool postgres.Querier
	now  func() time.Time
}

// New creates a new course repository.
func New(pool postgres.Querier) *Repo {
	return &Repo{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

func (r *Repo) q(ctx context.Context) postgres.Querier {
	return postgres.QuerierFromCtx(ctx, r.pool)
}

// ---------------------------------------------------------------------------
// Courses
// ---------------------------------------------------------------------------

// FindCourse looks a course up by slug, or by id when ref is a UUID.
func (r *Repo) FindCourse(ctx context.Context, ref string) (domain.Course, error) {
	where := sq.Eq{"slug": ref}
	var cond sq.Sqlizer = where
	if id, err := uuid.Parse(ref); err == nil {
		cond = sq.Or{sq.Eq{"id": id}, where}
	}

	query, args, err := postgres.Builder().
		Select(courseColumns...).From("courses").Where(cond).Limit(1).
		ToSql()
	if err != nil {
		return domain.Course{}, fmt.Errorf("build find course: %w", err)
	}

	var c domain.Course
	err = r.q(ctx).QueryRow(ctx, query, args...).Scan(&c.ID, &c.Slug, &c.Title, &c.CreatedAt)
	if err != nil {
		return domain.Course{}, fmt.Errorf("course %q: %w", ref, mapNoRows(err))
	}
	return c, nil
}

// ---------------------------------------------------------------------------
// Tree reads
// ---------------------------------------------------------------------------

// ListChaptersAndLessons returns the chapters of a course ordered by
// order_index, each with its lessons ordered by order_index.
func (r *Repo) ListChaptersAndLessons(ctx context.Context, courseID uuid.UUID) ([]domain.ChapterWithLessons, error) {
	query, args, err := postgres.Builder().
		Select(chapterColumns...).From("chapters").
		Where(sq.Eq{"course_id": courseID}).
		OrderBy("order_index", "created_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list chapters: %w", err)
	}

	rows, err := r.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list chapters of course %s: %w", courseID, err)
	}
	chapters, err := pgx.CollectRows(rows, scanChapter)
	if err != nil {
		return nil, fmt.Errorf("scan chapters of course %s: %w", courseID, err)
	}

	query, args, err = postgres.Builder().
		Select(lessonColumns...).From("lessons").
		Where(sq.Eq{"course_id": courseID}).
		OrderBy("order_index", "created_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list lessons: %w", err)
	}

	rows, err = r.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list lessons of course %s: %w", courseID, err)
	}
	lessons, err := pgx.CollectRows(rows, scanLesson)
	if err != nil {
		return nil, fmt.Errorf("scan lessons of course %s: %w", courseID, err)
	}

	byChapter := make(map[uuid.UUID][]domain.Lesson, len(chapters))
	for _, l := range lessons {
		byChapter[l.ChapterID] = append(byChapter[l.ChapterID], l)
	}

	out := make([]domain.ChapterWithLessons, len(chapters))
	for i, ch := range chapters {
		out[i] = domain.ChapterWithLessons{Chapter: ch, Lessons: byChapter[ch.ID]}
	}
	return out, nil
}

// ListAllLessons returns every lesson of every course ordered by course,
// chapter position, lesson position and id.
func (r *Repo) ListAllLessons(ctx context.Context) ([]domain.CorpusLesson, error) {
	cols := make([]string, 0, len(lessonColumns)+2)
	for _, c := range lessonColumns {
		cols = append(cols, "l."+c)
	}
	cols = append(cols, "c.title", "c.order_index")

	query, args, err := postgres.Builder().
		Select(cols...).
		From("lessons l").
		Join("chapters c ON c.id = l.chapter_id").
		OrderBy("l.course_id", "c.order_index", "l.order_index", "l.id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list corpus: %w", err)
	}

	rows, err := r.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list corpus lessons: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.CorpusLesson, error) {
		var cl domain.CorpusLesson
		l := &cl.Lesson
		err := row.Scan(&l.ID, &l.ChapterID, &l.CourseID, &l.Title, &l.Content, &l.OrderIndex,
			&l.CreatedAt, &l.UpdatedAt, &cl.ChapterTitle, &cl.ChapterOrder)
		return cl, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan corpus lessons: %w", err)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Chapters
// ---------------------------------------------------------------------------

// FindChapter returns the chapter of the course whose trimmed title equals
// title. Returns domain.ErrNotFound if there is none.
func (r *Repo) FindChapter(ctx context.Context, courseID uuid.UUID, title string) (domain.Chapter, error) {
	query, args, err := postgres.Builder().
		Select(chapterColumns...).From("chapters").
		Where(sq.Eq{"course_id": courseID}).
		Where("btrim(title) = btrim(?)", title).
		OrderBy("order_index", "id").
		Limit(1).
		ToSql()
	if err != nil {
		return domain.Chapter{}, fmt.Errorf("build find chapter: %w", err)
	}

	rows, err := r.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return domain.Chapter{}, postgres.MapError(err, "chapter", uuid.Nil)
	}
	ch, err := pgx.CollectExactlyOneRow(rows, scanChapter)
	if err != nil {
		return domain.Chapter{}, fmt.Errorf("chapter %q: %w", title, mapNoRows(err))
	}
	return ch, nil
}

// CreateChapter inserts a chapter and returns it.
func (r *Repo) CreateChapter(ctx context.Context, courseID uuid.UUID, title string, orderIndex int) (domain.Chapter, error) {
	now := r.now()
	ch := domain.Chapter{
		ID:         uuid.New(),
		CourseID:   courseID,
		Title:      title,
		OrderIndex: orderIndex,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	query, args, err := postgres.Builder().
		Insert("chapters").Columns(chapterColumns...).
		Values(ch.ID, ch.CourseID, ch.Title, ch.OrderIndex, ch.CreatedAt, ch.UpdatedAt).
		ToSql()
	if err != nil {
		return domain.Chapter{}, fmt.Errorf("build create chapter: %w", err)
	}

	if _, err := r.q(ctx).Exec(ctx, query, args...); err != nil {
		return domain.Chapter{}, postgres.MapError(err, "chapter", ch.ID)
	}
	return ch, nil
}

// DeleteChapter removes a chapter. Its lessons must already be gone.
func (r *Repo) DeleteChapter(ctx context.Context, id uuid.UUID) error {
	query, args, err := postgres.Builder().
		Delete("chapters").Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete chapter: %w", err)
	}

	tag, err := r.q(ctx).Exec(ctx, query, args...)
	if err != nil {
		return postgres.MapError(err, "chapter", id)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("chapter %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Lessons
// ---------------------------------------------------------------------------

// FindLesson returns the lesson of the chapter whose trimmed title equals
// title. Returns domain.ErrNotFound if there is none.
func (r *Repo) FindLesson(ctx context.Context, chapterID uuid.UUID, title string) (domain.Lesson, error) {
	query, args, err := postgres.Builder().
		Select(lessonColumns...).From("lessons").
		Where(sq.Eq{"chapter_id": chapterID}).
		Where("btrim(title) = btrim(?)", title).
		OrderBy("order_index", "id").
		Limit(1).
		ToSql()
	if err != nil {
		return domain.Lesson{}, fmt.Errorf("build find lesson: %w", err)
	}

	rows, err := r.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return domain.Lesson{}, postgres.MapError(err, "lesson", uuid.Nil)
	}
	l, err := pgx.CollectExactlyOneRow(rows, scanLesson)
	if err != nil {
		return domain.Lesson{}, fmt.Errorf("lesson %q: %w", title, mapNoRows(err))
	}
	return l, nil
}

// CreateLesson inserts a lesson. A nil ID is replaced by a fresh one.
func (r *Repo) CreateLesson(ctx context.Context, l domain.Lesson) (domain.Lesson, error) {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	now := r.now()
	l.CreatedAt, l.UpdatedAt = now, now

	query, args, err := postgres.Builder().
		Insert("lessons").Columns(lessonColumns...).
		Values(l.ID, l.ChapterID, l.CourseID, l.Title, l.Content, l.OrderIndex, l.CreatedAt, l.UpdatedAt).
		ToSql()
	if err != nil {
		return domain.Lesson{}, fmt.Errorf("build create lesson: %w", err)
	}

	if _, err := r.q(ctx).Exec(ctx, query, args...); err != nil {
		return domain.Lesson{}, postgres.MapError(err, "lesson", l.ID)
	}
	return l, nil
}

// UpdateLesson applies the non-nil fields of params and returns the
// updated lesson.
func (r *Repo) UpdateLesson(ctx context.Context, id uuid.UUID, params domain.LessonUpdateParams) (domain.Lesson, error) {
	upd := postgres.Builder().Update("lessons").
		Set("updated_at", r.now()).
		Where(sq.Eq{"id": id}).
		Suffix("RETURNING " + strings.Join(lessonColumns, ", "))
	if params.ChapterID != nil {
		upd = upd.Set("chapter_id", *params.ChapterID)
	}
	if params.Title != nil {
		upd = upd.Set("title", *params.Title)
	}
	if params.Content != nil {
		upd = upd.Set("content", *params.Content)
	}
	if params.OrderIndex != nil {
		upd = upd.Set("order_index", *params.OrderIndex)
	}

	query, args, err := upd.ToSql()
	if err != nil {
		return domain.Lesson{}, fmt.Errorf("build update lesson: %w", err)
	}

	rows, err := r.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return domain.Lesson{}, postgres.MapError(err, "lesson", id)
	}
	l, err := pgx.CollectExactlyOneRow(rows, scanLesson)
	if err != nil {
		return domain.Lesson{}, postgres.MapError(err, "lesson", id)
	}
	return l, nil
}

// UpdateLessonContent replaces the content of one lesson.
func (r *Repo) UpdateLessonContent(ctx context.Context, id uuid.UUID, content string) error {
	query, args, err := postgres.Builder().Update("lessons").
		Set("content", content).
		Set("updated_at", r.now()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update lesson content: %w", err)
	}

	tag, err := r.q(ctx).Exec(ctx, query, args...)
	if err != nil {
		return postgres.MapError(err, "lesson", id)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("lesson %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// DeleteLessonsByChapter removes every lesson of a chapter and returns how
// many were deleted. Dependent rows must already be gone.
func (r *Repo) DeleteLessonsByChapter(ctx context.Context, chapterID uuid.UUID) (int, error) {
	query, args, err := postgres.Builder().
		Delete("lessons").Where(sq.Eq{"chapter_id": chapterID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete lessons: %w", err)
	}

	tag, err := r.q(ctx).Exec(ctx, query, args...)
	if err != nil {
		return 0, postgres.MapError(err, "chapter", chapterID)
	}
	return int(tag.RowsAffected()), nil
}

// DeleteLessons removes the lessons with the given ids and returns how many
// existed. Dependent rows must already be gone.
func (r *Repo) DeleteLessons(ctx context.Context, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query, args, err := postgres.Builder().
		Delete("lessons").Where(sq.Eq{"id": ids}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete lessons by id: %w", err)
	}

	tag, err := r.q(ctx).Exec(ctx, query, args...)
	if err != nil {
		return 0, postgres.MapError(err, "lesson", ids[0])
	}
	return int(tag.RowsAffected()), nil
}

// ---------------------------------------------------------------------------
// Dependent rows
// ---------------------------------------------------------------------------

// DeleteDependentsByLessonIDs removes the content-detail and progress rows
// that reference any of the lessons.
func (r *Repo) DeleteDependentsByLessonIDs(ctx context.Context, lessonIDs []uuid.UUID) (domain.DependentCounts, error) {
	if len(lessonIDs) == 0 {
		return domain.DependentCounts{}, nil
	}
	return r.deleteDependents(ctx, sq.Eq{"lesson_id": lessonIDs})
}

// DeleteDependentsByChapter removes the content-detail and progress rows
// that reference any lesson of the chapter.
func (r *Repo) DeleteDependentsByChapter(ctx context.Context, chapterID uuid.UUID) (domain.DependentCounts, error) {
	return r.deleteDependents(ctx, sq.Expr("lesson_id IN (SELECT id FROM lessons WHERE chapter_id = ?)", chapterID))
}

func (r *Repo) deleteDependents(ctx context.Context, pred sq.Sqlizer) (domain.DependentCounts, error) {
	var counts domain.DependentCounts
	for _, dep := range []struct {
		table string
		n     *int
	}{
		{domain.TableContentDetails, &counts.ContentDetails},
		{domain.TableLessonProgress, &counts.Progress},
	} {
		query, args, err := postgres.Builder().
			Delete(dep.table).Where(pred).
			ToSql()
		if err != nil {
			return counts, fmt.Errorf("build delete %s: %w", dep.table, err)
		}
		tag, err := r.q(ctx).Exec(ctx, query, args...)
		if err != nil {
			return counts, fmt.Errorf("delete %s: %w", dep.table, err)
		}
		*dep.n = int(tag.RowsAffected())
	}
	return counts, nil
}

// ListProgressByLessonIDs returns the progress rows of the lessons.
func (r *Repo) ListProgressByLessonIDs(ctx context.Context, lessonIDs []uuid.UUID) ([]domain.LessonProgress, error) {
	if len(lessonIDs) == 0 {
		return nil, nil
	}

	query, args, err := postgres.Builder().
		Select(progressColumns...).From(domain.TableLessonProgress).
		Where(sq.Eq{"lesson_id": lessonIDs}).
		OrderBy("lesson_id", "user_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list progress: %w", err)
	}

	rows, err := r.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.LessonProgress, error) {
		var p domain.LessonProgress
		err := row.Scan(&p.ID, &p.LessonID, &p.UserID, &p.Completed, &p.CompletedAt, &p.UpdatedAt)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan progress: %w", err)
	}
	return out, nil
}

// ListContentDetailsByLessonIDs returns the content-detail rows of the
// lessons.
func (r *Repo) ListContentDetailsByLessonIDs(ctx context.Context, lessonIDs []uuid.UUID) ([]domain.LessonContentDetail, error) {
	if len(lessonIDs) == 0 {
		return nil, nil
	}

	query, args, err := postgres.Builder().
		Select("id", "lesson_id", "kind", "body").From(domain.TableContentDetails).
		Where(sq.Eq{"lesson_id": lessonIDs}).
		OrderBy("lesson_id", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list content details: %w", err)
	}

	rows, err := r.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list content details: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.LessonContentDetail, error) {
		var d domain.LessonContentDetail
		err := row.Scan(&d.ID, &d.LessonID, &d.Kind, &d.Body)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan content details: %w", err)
	}
	return out, nil
}

// InsertProgress inserts progress rows as given.
func (r *Repo) InsertProgress(ctx context.Context, progress []domain.LessonProgress) error {
	if len(progress) == 0 {
		return nil
	}

	ins := postgres.Builder().Insert(domain.TableLessonProgress).Columns(progressColumns...)
	for _, p := range progress {
		ins = ins.Values(p.ID, p.LessonID, p.UserID, p.Completed, p.CompletedAt, p.UpdatedAt)
	}
	query, args, err := ins.ToSql()
	if err != nil {
		return fmt.Errorf("build insert progress: %w", err)
	}

	if _, err := r.q(ctx).Exec(ctx, query, args...); err != nil {
		return postgres.MapError(err, "lesson_progress", progress[0].ID)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Scanning helpers
// ---------------------------------------------------------------------------

func scanChapter(row pgx.CollectableRow) (domain.Chapter, error) {
	var ch domain.Chapter
	err := row.Scan(&ch.ID, &ch.CourseID, &ch.Title, &ch.OrderIndex, &ch.CreatedAt, &ch.UpdatedAt)
	return ch, err
}

func scanLesson(row pgx.CollectableRow) (domain.Lesson, error) {
	var l domain.Lesson
	err := row.Scan(&l.ID, &l.ChapterID, &l.CourseID, &l.Title, &l.Content, &l.OrderIndex, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

func mapNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}
