package testhelper

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heartmarshall/coursesync/internal/domain"
)

func uniqueSuffix() string {
	return uuid.New().String()[:8]
}

// SeedCourse creates an empty course with a unique slug.
func SeedCourse(t *testing.T, pool *pgxpool.Pool) domain.Course {
	t.Helper()

	suffix := uniqueSuffix()
	course := domain.Course{
		ID:        uuid.New(),
		Slug:      "course-" + suffix,
		Title:     "Test Course " + suffix,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}

	_, err := pool.Exec(context.Background(),
		`INSERT INTO courses (id, slug, title, created_at) VALUES ($1, $2, $3, $4)`,
		course.ID, course.Slug, course.Title, course.CreatedAt,
	)
	if err != nil {
		t.Fatalf("testhelper: SeedCourse: %v", err)
	}
	return course
}

// SeedChapter creates a chapter in the course.
func SeedChapter(t *testing.T, pool *pgxpool.Pool, courseID uuid.UUID, title string, orderIndex int) domain.Chapter {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Microsecond)
	ch := domain.Chapter{
		ID:         uuid.New(),
		CourseID:   courseID,
		Title:      title,
		OrderIndex: orderIndex,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	_, err := pool.Exec(context.Background(),
		`INSERT INTO chapters (id, course_id, title, order_index, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		ch.ID, ch.CourseID, ch.Title, ch.OrderIndex, ch.CreatedAt, ch.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("testhelper: SeedChapter: %v", err)
	}
	return ch
}

// SeedLesson creates a lesson in the chapter. Empty content is replaced by a
// placeholder derived from the title, since lessons require content.
func SeedLesson(t *testing.T, pool *pgxpool.Pool, ch domain.Chapter, title, content string, orderIndex int) domain.Lesson {
	t.Helper()

	if strings.TrimSpace(content) == "" {
		content = "Content of " + title + " " + uniqueSuffix()
	}
	now := time.Now().UTC().Truncate(time.Microsecond)
	l := domain.Lesson{
		ID:         uuid.New(),
		ChapterID:  ch.ID,
		CourseID:   ch.CourseID,
		Title:      title,
		Content:    content,
		OrderIndex: orderIndex,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	_, err := pool.Exec(context.Background(),
		`INSERT INTO lessons (id, chapter_id, course_id, title, content, order_index, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		l.ID, l.ChapterID, l.CourseID, l.Title, l.Content, l.OrderIndex, l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("testhelper: SeedLesson: %v", err)
	}
	return l
}

// SeedProgress marks the lesson completed for a fresh user.
func SeedProgress(t *testing.T, pool *pgxpool.Pool, lessonID uuid.UUID) domain.LessonProgress {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Microsecond)
	p := domain.LessonProgress{
		ID:          uuid.New(),
		LessonID:    lessonID,
		UserID:      uuid.New(),
		Completed:   true,
		CompletedAt: &now,
		UpdatedAt:   now,
	}

	_, err := pool.Exec(context.Background(),
		`INSERT INTO lesson_progress (id, lesson_id, user_id, completed, completed_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.LessonID, p.UserID, p.Completed, p.CompletedAt, p.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("testhelper: SeedProgress: %v", err)
	}
	return p
}

// SeedContentDetail attaches a content-detail row to the lesson.
func SeedContentDetail(t *testing.T, pool *pgxpool.Pool, lessonID uuid.UUID) domain.LessonContentDetail {
	t.Helper()

	d := domain.LessonContentDetail{
		ID:       uuid.New(),
		LessonID: lessonID,
		Kind:     "summary",
		Body:     "summary " + uniqueSuffix(),
	}

	_, err := pool.Exec(context.Background(),
		`INSERT INTO lesson_content_details (id, lesson_id, kind, body) VALUES ($1, $2, $3, $4)`,
		d.ID, d.LessonID, d.Kind, d.Body,
	)
	if err != nil {
		t.Fatalf("testhelper: SeedContentDetail: %v", err)
	}
	return d
}

// CountRows returns the number of rows in table matching the optional
// where clause.
func CountRows(t *testing.T, pool *pgxpool.Pool, table, where string, args ...any) int {
	t.Helper()

	q := "SELECT count(*) FROM " + table
	if where != "" {
		q += " WHERE " + where
	}
	var n int
	if err := pool.QueryRow(context.Background(), q, args...).Scan(&n); err != nil {
		t.Fatalf("testhelper: CountRows %s: %v", table, err)
	}
	return n
}
