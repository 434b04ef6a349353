package domain

import (
	"time"

	"github.com/google/uuid"
)

// Course is the root of a content tree.
type Course struct {
	ID        uuid.UUID
	Slug      string
	Title     string
	CreatedAt time.Time
}

// Chapter groups lessons inside a course.
type Chapter struct {
	ID         uuid.UUID
	CourseID   uuid.UUID
	Title      string
	OrderIndex int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Lesson is a leaf content node. CourseID is denormalized from its chapter.
type Lesson struct {
	ID         uuid.UUID
	ChapterID  uuid.UUID
	CourseID   uuid.UUID
	Title      string
	Content    string
	OrderIndex int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// LessonUpdateParams carries the fields of a lesson update. Nil fields are
// left untouched.
type LessonUpdateParams struct {
	ChapterID  *uuid.UUID
	Title      *string
	Content    *string
	OrderIndex *int
}

// IsEmpty reports whether the update would change nothing.
func (p LessonUpdateParams) IsEmpty() bool {
	return p.ChapterID == nil && p.Title == nil && p.Content == nil && p.OrderIndex == nil
}

// ChapterWithLessons is a chapter and its lessons ordered by OrderIndex.
type ChapterWithLessons struct {
	Chapter
	Lessons []Lesson
}

// CourseTree is the persisted chapter/lesson hierarchy of one course,
// chapters ordered by OrderIndex.
type CourseTree struct {
	Course   Course
	Chapters []ChapterWithLessons
}

// Lessons flattens the tree in chapter order, then lesson order.
func (t CourseTree) Lessons() []Lesson {
	var out []Lesson
	for _, ch := range t.Chapters {
		out = append(out, ch.Lessons...)
	}
	return out
}

// ChapterByID returns the chapter with the given id.
func (t CourseTree) ChapterByID(id uuid.UUID) (ChapterWithLessons, bool) {
	for _, ch := range t.Chapters {
		if ch.ID == id {
			return ch, true
		}
	}
	return ChapterWithLessons{}, false
}

// CorpusLesson is a lesson with the position data needed to order the whole
// corpus deterministically.
type CorpusLesson struct {
	Lesson
	ChapterTitle string
	ChapterOrder int
}

// LessonProgress is a learner's progress row. It references a lesson and
// must be removed (or moved) before that lesson can be deleted.
type LessonProgress struct {
	ID          uuid.UUID
	LessonID    uuid.UUID
	UserID      uuid.UUID
	Completed   bool
	CompletedAt *time.Time
	UpdatedAt   time.Time
}

// LessonContentDetail is a content-derived row keyed by lesson id.
type LessonContentDetail struct {
	ID       uuid.UUID
	LessonID uuid.UUID
	Kind     string
	Body     string
}

// DependentCounts reports how many dependent rows a cascade removed.
type DependentCounts struct {
	Progress       int
	ContentDetails int
}

// Total returns the sum of all removed dependent rows.
func (c DependentCounts) Total() int { return c.Progress + c.ContentDetails }

// Add accumulates o into c.
func (c *DependentCounts) Add(o DependentCounts) {
	c.Progress += o.Progress
	c.ContentDetails += o.ContentDetails
}
