package memstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/heartmarshall/coursesync/internal/domain"
)

// ---------------------------------------------------------------------------
// Courses and tree reads
// ---------------------------------------------------------------------------

// FindCourse looks a course up by slug, or by id when ref is a UUID.
func (s *Store) FindCourse(_ context.Context, ref string) (domain.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, err := uuid.Parse(ref); err == nil {
		if c, ok := s.st.courses[id]; ok {
			return c, nil
		}
	}
	for _, c := range s.st.courses {
		if c.Slug == ref {
			return c, nil
		}
	}
	return domain.Course{}, fmt.Errorf("course %q: %w", ref, domain.ErrNotFound)
}

// ListChaptersAndLessons returns the ordered tree of one course.
func (s *Store) ListChaptersAndLessons(_ context.Context, courseID uuid.UUID) ([]domain.ChapterWithLessons, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chapters := s.chaptersOf(courseID)
	out := make([]domain.ChapterWithLessons, len(chapters))
	for i, ch := range chapters {
		out[i] = domain.ChapterWithLessons{Chapter: ch, Lessons: s.lessonsOf(ch.ID)}
	}
	return out, nil
}

// ListAllLessons returns every lesson ordered by course, chapter position,
// lesson position and id.
func (s *Store) ListAllLessons(_ context.Context) ([]domain.CorpusLesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.CorpusLesson, 0, len(s.st.lessons))
	for _, l := range s.st.lessons {
		ch := s.st.chapters[l.ChapterID]
		out = append(out, domain.CorpusLesson{Lesson: l, ChapterTitle: ch.Title, ChapterOrder: ch.OrderIndex})
	}
	slices.SortFunc(out, func(a, b domain.CorpusLesson) int {
		return cmp.Or(strings.Compare(a.CourseID.String(), b.CourseID.String()),
			cmp.Compare(a.ChapterOrder, b.ChapterOrder),
			cmp.Compare(a.OrderIndex, b.OrderIndex),
			strings.Compare(a.ID.String(), b.ID.String()))
	})
	return out, nil
}

// ---------------------------------------------------------------------------
// Chapters
// ---------------------------------------------------------------------------

// FindChapter returns the first chapter of the course whose trimmed title
// equals title.
func (s *Store) FindChapter(_ context.Context, courseID uuid.UUID, title string) (domain.Chapter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := strings.TrimSpace(title)
	for _, ch := range s.chaptersOf(courseID) {
		if strings.TrimSpace(ch.Title) == want {
			return ch, nil
		}
	}
	return domain.Chapter{}, fmt.Errorf("chapter %q: %w", title, domain.ErrNotFound)
}

// CreateChapter inserts a chapter.
func (s *Store) CreateChapter(_ context.Context, courseID uuid.UUID, title string, orderIndex int) (domain.Chapter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.courses[courseID]; !ok {
		return domain.Chapter{}, fmt.Errorf("chapter: course %s: %w", courseID, domain.ErrNotFound)
	}
	now := s.now()
	ch := domain.Chapter{
		ID:         uuid.New(),
		CourseID:   courseID,
		Title:      title,
		OrderIndex: orderIndex,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.st.chapters[ch.ID] = ch
	return ch, nil
}

// DeleteChapter removes a chapter. Its lessons must already be gone unless
// constraints are deferred.
func (s *Store) DeleteChapter(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.chapters[id]; !ok {
		return fmt.Errorf("chapter %s: %w", id, domain.ErrNotFound)
	}
	if !deferred(ctx) {
		for _, l := range s.st.lessons {
			if l.ChapterID == id {
				return fmt.Errorf("chapter %s still referenced by lesson %s: %w", id, l.ID, domain.ErrConflict)
			}
		}
	}
	delete(s.st.chapters, id)
	return nil
}

// ---------------------------------------------------------------------------
// Lessons
// ---------------------------------------------------------------------------

// FindLesson returns the first lesson of the chapter whose trimmed title
// equals title.
func (s *Store) FindLesson(_ context.Context, chapterID uuid.UUID, title string) (domain.Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := strings.TrimSpace(title)
	for _, l := range s.lessonsOf(chapterID) {
		if strings.TrimSpace(l.Title) == want {
			return l, nil
		}
	}
	return domain.Lesson{}, fmt.Errorf("lesson %q: %w", title, domain.ErrNotFound)
}

// CreateLesson inserts a lesson. A nil ID is replaced by a fresh one.
func (s *Store) CreateLesson(_ context.Context, l domain.Lesson) (domain.Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if _, ok := s.st.lessons[l.ID]; ok {
		return domain.Lesson{}, fmt.Errorf("lesson %s: %w", l.ID, domain.ErrAlreadyExists)
	}
	if err := s.checkLesson(l); err != nil {
		return domain.Lesson{}, err
	}
	now := s.now()
	l.CreatedAt, l.UpdatedAt = now, now
	s.st.lessons[l.ID] = l
	return l, nil
}

// UpdateLesson applies the non-nil fields of params.
func (s *Store) UpdateLesson(_ context.Context, id uuid.UUID, params domain.LessonUpdateParams) (domain.Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.st.lessons[id]
	if !ok {
		return domain.Lesson{}, fmt.Errorf("lesson %s: %w", id, domain.ErrNotFound)
	}
	if params.ChapterID != nil {
		l.ChapterID = *params.ChapterID
	}
	if params.Title != nil {
		l.Title = *params.Title
	}
	if params.Content != nil {
		l.Content = *params.Content
	}
	if params.OrderIndex != nil {
		l.OrderIndex = *params.OrderIndex
	}
	if err := s.checkLesson(l); err != nil {
		return domain.Lesson{}, err
	}
	l.UpdatedAt = s.now()
	s.st.lessons[id] = l
	return l, nil
}

// UpdateLessonContent replaces the content of one lesson.
func (s *Store) UpdateLessonContent(ctx context.Context, id uuid.UUID, content string) error {
	_, err := s.UpdateLesson(ctx, id, domain.LessonUpdateParams{Content: &content})
	return err
}

// DeleteLessonsByChapter removes every lesson of a chapter.
func (s *Store) DeleteLessonsByChapter(ctx context.Context, chapterID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []uuid.UUID
	for _, l := range s.st.lessons {
		if l.ChapterID == chapterID {
			ids = append(ids, l.ID)
		}
	}
	return s.deleteLessons(ctx, ids)
}

// DeleteLessons removes the lessons with the given ids and returns how many
// existed.
func (s *Store) DeleteLessons(ctx context.Context, ids []uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLessons(ctx, ids)
}

func (s *Store) deleteLessons(ctx context.Context, ids []uuid.UUID) (int, error) {
	set := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := s.st.lessons[id]; ok {
			set[id] = struct{}{}
		}
	}
	if !deferred(ctx) {
		for _, p := range s.st.progress {
			if _, ok := set[p.LessonID]; ok {
				return 0, fmt.Errorf("lesson %s still referenced by lesson_progress %s: %w", p.LessonID, p.ID, domain.ErrConflict)
			}
		}
		for _, d := range s.st.details {
			if _, ok := set[d.LessonID]; ok {
				return 0, fmt.Errorf("lesson %s still referenced by lesson_content_details %s: %w", d.LessonID, d.ID, domain.ErrConflict)
			}
		}
	}
	for id := range set {
		delete(s.st.lessons, id)
	}
	return len(set), nil
}

func (s *Store) checkLesson(l domain.Lesson) error {
	if strings.TrimSpace(l.Content) == "" {
		return fmt.Errorf("lesson %s: empty content: %w", l.ID, domain.ErrValidation)
	}
	ch, ok := s.st.chapters[l.ChapterID]
	if !ok {
		return fmt.Errorf("lesson %s: chapter %s: %w", l.ID, l.ChapterID, domain.ErrNotFound)
	}
	if ch.CourseID != l.CourseID {
		return fmt.Errorf("lesson %s: course %s does not own chapter %s: %w", l.ID, l.CourseID, l.ChapterID, domain.ErrValidation)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Dependent rows
// ---------------------------------------------------------------------------

// DeleteDependentsByLessonIDs removes the content-detail and progress rows
// that reference any of the lessons.
func (s *Store) DeleteDependentsByLessonIDs(_ context.Context, lessonIDs []uuid.UUID) (domain.DependentCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteDependents(lessonIDs), nil
}

// DeleteDependentsByChapter removes the content-detail and progress rows
// that reference any lesson of the chapter.
func (s *Store) DeleteDependentsByChapter(_ context.Context, chapterID uuid.UUID) (domain.DependentCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []uuid.UUID
	for _, l := range s.st.lessons {
		if l.ChapterID == chapterID {
			ids = append(ids, l.ID)
		}
	}
	return s.deleteDependents(ids), nil
}

func (s *Store) deleteDependents(lessonIDs []uuid.UUID) domain.DependentCounts {
	set := make(map[uuid.UUID]struct{}, len(lessonIDs))
	for _, id := range lessonIDs {
		set[id] = struct{}{}
	}

	var counts domain.DependentCounts
	for id, d := range s.st.details {
		if _, ok := set[d.LessonID]; ok {
			delete(s.st.details, id)
			counts.ContentDetails++
		}
	}
	for id, p := range s.st.progress {
		if _, ok := set[p.LessonID]; ok {
			delete(s.st.progress, id)
			counts.Progress++
		}
	}
	return counts
}

// ListProgressByLessonIDs returns the progress rows of the lessons.
func (s *Store) ListProgressByLessonIDs(_ context.Context, lessonIDs []uuid.UUID) ([]domain.LessonProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := make(map[uuid.UUID]struct{}, len(lessonIDs))
	for _, id := range lessonIDs {
		set[id] = struct{}{}
	}
	var out []domain.LessonProgress
	for _, p := range s.st.progress {
		if _, ok := set[p.LessonID]; ok {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b domain.LessonProgress) int {
		return cmp.Or(strings.Compare(a.LessonID.String(), b.LessonID.String()),
			strings.Compare(a.UserID.String(), b.UserID.String()))
	})
	return out, nil
}

// ListContentDetailsByLessonIDs returns the content-detail rows of the
// lessons.
func (s *Store) ListContentDetailsByLessonIDs(_ context.Context, lessonIDs []uuid.UUID) ([]domain.LessonContentDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := make(map[uuid.UUID]struct{}, len(lessonIDs))
	for _, id := range lessonIDs {
		set[id] = struct{}{}
	}
	var out []domain.LessonContentDetail
	for _, d := range s.st.details {
		if _, ok := set[d.LessonID]; ok {
			out = append(out, d)
		}
	}
	slices.SortFunc(out, func(a, b domain.LessonContentDetail) int {
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return out, nil
}

// InsertProgress inserts progress rows as given.
func (s *Store) InsertProgress(ctx context.Context, progress []domain.LessonProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range progress {
		if _, ok := s.st.progress[p.ID]; ok {
			return fmt.Errorf("lesson_progress %s: %w", p.ID, domain.ErrAlreadyExists)
		}
		for _, other := range s.st.progress {
			if other.LessonID == p.LessonID && other.UserID == p.UserID {
				return fmt.Errorf("lesson_progress %s: %w", p.ID, domain.ErrAlreadyExists)
			}
		}
		if _, ok := s.st.lessons[p.LessonID]; !ok && !deferred(ctx) {
			return fmt.Errorf("lesson_progress %s: lesson %s: %w", p.ID, p.LessonID, domain.ErrNotFound)
		}
	}
	for _, p := range progress {
		s.st.progress[p.ID] = p
	}
	return nil
}
