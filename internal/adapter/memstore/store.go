// Package memstore is an in-memory implementation of the course tree,
// audit log and backup repositories. It backs dry runs and engine tests and
// enforces the same foreign key and content rules as the PostgreSQL schema.
package memstore

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/coursesync/internal/domain"
)

// state is everything a transaction may roll back.
type state struct {
	courses  map[uuid.UUID]domain.Course
	chapters map[uuid.UUID]domain.Chapter
	lessons  map[uuid.UUID]domain.Lesson
	progress map[uuid.UUID]domain.LessonProgress
	details  map[uuid.UUID]domain.LessonContentDetail

	audit     []domain.AuditEntry
	snapshots map[uuid.UUID]domain.BackupSnapshot
	shadows   map[string]tableRows
}

func newState() state {
	return state{
		courses:   make(map[uuid.UUID]domain.Course),
		chapters:  make(map[uuid.UUID]domain.Chapter),
		lessons:   make(map[uuid.UUID]domain.Lesson),
		progress:  make(map[uuid.UUID]domain.LessonProgress),
		details:   make(map[uuid.UUID]domain.LessonContentDetail),
		snapshots: make(map[uuid.UUID]domain.BackupSnapshot),
		shadows:   make(map[string]tableRows),
	}
}

func (s state) clone() state {
	return state{
		courses:   maps.Clone(s.courses),
		chapters:  maps.Clone(s.chapters),
		lessons:   maps.Clone(s.lessons),
		progress:  maps.Clone(s.progress),
		details:   maps.Clone(s.details),
		audit:     slices.Clone(s.audit),
		snapshots: maps.Clone(s.snapshots),
		shadows:   maps.Clone(s.shadows),
	}
}

// Store holds one in-memory database.
type Store struct {
	mu  sync.Mutex
	st  state
	now func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{st: newState(), now: func() time.Time { return time.Now().UTC() }}
}

// Audit returns the audit log view of the store.
func (s *Store) Audit() *AuditLog { return &AuditLog{s: s} }

// Backups returns the snapshot view of the store.
func (s *Store) Backups() *Backups { return &Backups{s: s} }

// TxManager returns a transaction manager for the store.
func (s *Store) TxManager() *TxManager { return &TxManager{s: s} }

// ---------------------------------------------------------------------------
// Seeding
// ---------------------------------------------------------------------------

// PutCourse inserts or replaces a course.
func (s *Store) PutCourse(c domain.Course) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.courses[c.ID] = c
}

// PutChapter inserts or replaces a chapter without checks.
func (s *Store) PutChapter(ch domain.Chapter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.chapters[ch.ID] = ch
}

// PutLesson inserts or replaces a lesson without checks.
func (s *Store) PutLesson(l domain.Lesson) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.lessons[l.ID] = l
}

// PutProgress inserts or replaces a progress row without checks.
func (s *Store) PutProgress(p domain.LessonProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.progress[p.ID] = p
}

// PutContentDetail inserts or replaces a content-detail row without checks.
func (s *Store) PutContentDetail(d domain.LessonContentDetail) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.details[d.ID] = d
}

// ---------------------------------------------------------------------------
// Inspection
// ---------------------------------------------------------------------------

// Lesson returns a lesson by id.
func (s *Store) Lesson(id uuid.UUID) (domain.Lesson, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.st.lessons[id]
	return l, ok
}

// Chapters returns the chapters of a course in order.
func (s *Store) Chapters(courseID uuid.UUID) []domain.Chapter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chaptersOf(courseID)
}

// Progress returns every progress row ordered by lesson and user.
func (s *Store) Progress() []domain.LessonProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Collect(maps.Values(s.st.progress))
	slices.SortFunc(out, func(a, b domain.LessonProgress) int {
		return cmp.Or(strings.Compare(a.LessonID.String(), b.LessonID.String()),
			strings.Compare(a.UserID.String(), b.UserID.String()))
	})
	return out
}

// ContentDetails returns every content-detail row ordered by id.
func (s *Store) ContentDetails() []domain.LessonContentDetail {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Collect(maps.Values(s.st.details))
	slices.SortFunc(out, func(a, b domain.LessonContentDetail) int {
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return out
}

// CheckIntegrity reports the first dangling reference, if any.
func (s *Store) CheckIntegrity() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkRefs()
}

// ---------------------------------------------------------------------------
// Internal helpers (callers hold mu)
// ---------------------------------------------------------------------------

func (s *Store) chaptersOf(courseID uuid.UUID) []domain.Chapter {
	var out []domain.Chapter
	for _, ch := range s.st.chapters {
		if ch.CourseID == courseID {
			out = append(out, ch)
		}
	}
	slices.SortFunc(out, compareChapters)
	return out
}

func (s *Store) lessonsOf(chapterID uuid.UUID) []domain.Lesson {
	var out []domain.Lesson
	for _, l := range s.st.lessons {
		if l.ChapterID == chapterID {
			out = append(out, l)
		}
	}
	slices.SortFunc(out, compareLessons)
	return out
}

func compareChapters(a, b domain.Chapter) int {
	return cmp.Or(cmp.Compare(a.OrderIndex, b.OrderIndex),
		a.CreatedAt.Compare(b.CreatedAt),
		strings.Compare(a.ID.String(), b.ID.String()))
}

func compareLessons(a, b domain.Lesson) int {
	return cmp.Or(cmp.Compare(a.OrderIndex, b.OrderIndex),
		a.CreatedAt.Compare(b.CreatedAt),
		strings.Compare(a.ID.String(), b.ID.String()))
}

// checkRefs validates every foreign key of the schema.
func (s *Store) checkRefs() error {
	for _, ch := range s.st.chapters {
		if _, ok := s.st.courses[ch.CourseID]; !ok {
			return fmt.Errorf("chapter %s references missing course %s: %w", ch.ID, ch.CourseID, domain.ErrNotFound)
		}
	}
	for _, l := range s.st.lessons {
		if _, ok := s.st.chapters[l.ChapterID]; !ok {
			return fmt.Errorf("lesson %s references missing chapter %s: %w", l.ID, l.ChapterID, domain.ErrNotFound)
		}
	}
	for _, p := range s.st.progress {
		if _, ok := s.st.lessons[p.LessonID]; !ok {
			return fmt.Errorf("lesson_progress %s references missing lesson %s: %w", p.ID, p.LessonID, domain.ErrNotFound)
		}
	}
	for _, d := range s.st.details {
		if _, ok := s.st.lessons[d.LessonID]; !ok {
			return fmt.Errorf("lesson_content_details %s references missing lesson %s: %w", d.ID, d.LessonID, domain.ErrNotFound)
		}
	}
	return nil
}

// deferred reports whether ctx carries a transaction with deferred
// constraints.
func deferred(ctx context.Context) bool {
	tx := txFromCtx(ctx)
	return tx != nil && tx.deferred
}
