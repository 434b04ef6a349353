package memstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/heartmarshall/coursesync/internal/domain"
)

// Source is the read side of a live store.
type Source interface {
	ListChaptersAndLessons(ctx context.Context, courseID uuid.UUID) ([]domain.ChapterWithLessons, error)
	ListAllLessons(ctx context.Context) ([]domain.CorpusLesson, error)
	ListProgressByLessonIDs(ctx context.Context, lessonIDs []uuid.UUID) ([]domain.LessonProgress, error)
	ListContentDetailsByLessonIDs(ctx context.Context, lessonIDs []uuid.UUID) ([]domain.LessonContentDetail, error)
}

// Load builds a Store holding a copy of the course tree with its dependent
// rows, plus every other lesson of the corpus. Chapters of other courses
// are reconstructed from the corpus rows.
func Load(ctx context.Context, src Source, course domain.Course) (*Store, error) {
	s := New()
	s.PutCourse(course)

	tree, err := src.ListChaptersAndLessons(ctx, course.ID)
	if err != nil {
		return nil, fmt.Errorf("load course tree: %w", err)
	}
	var lessonIDs []uuid.UUID
	for _, ch := range tree {
		s.PutChapter(ch.Chapter)
		for _, l := range ch.Lessons {
			s.PutLesson(l)
			lessonIDs = append(lessonIDs, l.ID)
		}
	}

	corpus, err := src.ListAllLessons(ctx)
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	for _, cl := range corpus {
		if cl.CourseID == course.ID {
			continue
		}
		if _, ok := s.st.courses[cl.CourseID]; !ok {
			s.PutCourse(domain.Course{ID: cl.CourseID, Slug: cl.CourseID.String()})
		}
		if _, ok := s.st.chapters[cl.ChapterID]; !ok {
			s.PutChapter(domain.Chapter{
				ID:         cl.ChapterID,
				CourseID:   cl.CourseID,
				Title:      cl.ChapterTitle,
				OrderIndex: cl.ChapterOrder,
			})
		}
		s.PutLesson(cl.Lesson)
	}

	progress, err := src.ListProgressByLessonIDs(ctx, lessonIDs)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	for _, p := range progress {
		s.PutProgress(p)
	}

	details, err := src.ListContentDetailsByLessonIDs(ctx, lessonIDs)
	if err != nil {
		return nil, fmt.Errorf("load content details: %w", err)
	}
	for _, d := range details {
		s.PutContentDetail(d)
	}

	return s, nil
}
